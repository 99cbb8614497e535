// Package uploads stores the proof documents attached to enrollments.
package uploads

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/OpenNSW/enrollment/internal/apperror"
)

// MaxDocumentSize is the largest accepted proof document.
const MaxDocumentSize int64 = 5 << 20

// allowedTypes maps sniffed content types to the extension stored in the key.
var allowedTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

// CheckDocument validates size and sniffed type of an uploaded file and
// returns its content type. The error message is suitable for a form field.
func CheckDocument(fh *multipart.FileHeader) (string, error) {
	if fh.Size > MaxDocumentSize {
		return "", apperror.New(apperror.CodeValidation, fmt.Sprintf("Ensure this file is at most %d MB.", MaxDocumentSize>>20))
	}
	if fh.Size == 0 {
		return "", apperror.New(apperror.CodeValidation, "The submitted file is empty.")
	}

	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	contentType := sniff(head[:n])
	if _, ok := allowedTypes[contentType]; !ok {
		return "", apperror.New(apperror.CodeValidation, "Upload a PDF, PNG or JPEG file.")
	}
	return contentType, nil
}

// UploadService stores documents through a StorageDriver.
type UploadService struct {
	Driver StorageDriver
}

func NewUploadService(driver StorageDriver) *UploadService {
	return &UploadService{Driver: driver}
}

// UploadHeader checks and stores a file from a multipart form.
func (s *UploadService) UploadHeader(ctx context.Context, fh *multipart.FileHeader) (*Document, error) {
	contentType, err := CheckDocument(fh)
	if err != nil {
		return nil, err
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	return s.Upload(ctx, fh.Filename, f, fh.Size, contentType)
}

// Upload saves body under a fresh key and returns its metadata.
func (s *UploadService) Upload(ctx context.Context, filename string, body io.Reader, size int64, contentType string) (*Document, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	id := uuid.New()
	ext, ok := allowedTypes[contentType]
	if !ok {
		ext = strings.ToLower(filepath.Ext(filename))
	}
	key := id.String() + ext

	if err := s.Driver.Save(ctx, key, body, contentType); err != nil {
		return nil, fmt.Errorf("storage driver failed: %w", err)
	}

	url, err := s.Driver.GenerateURL(ctx, key, 0)
	if err != nil {
		if delErr := s.Driver.Delete(ctx, key); delErr != nil {
			slog.WarnContext(ctx, "failed to cleanup orphaned document", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("failed to generate URL: %w", err)
	}

	doc := &Document{
		ID:          id,
		Filename:    filepath.Base(filename),
		Key:         key,
		URL:         url,
		Size:        size,
		ContentType: contentType,
	}
	slog.InfoContext(ctx, "document stored", "key", key, "size", size)
	return doc, nil
}

// Download retrieves the content of key and its content type.
func (s *UploadService) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	return s.Driver.Get(ctx, key)
}

// Remove deletes the content of key.
func (s *UploadService) Remove(ctx context.Context, key string) error {
	return s.Driver.Delete(ctx, key)
}

func sniff(data []byte) string {
	contentType, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return contentType
}
