package uploads

import (
	"context"
	"io"
	"time"
)

// StorageDriver stores the binary content of proof documents.
type StorageDriver interface {
	// Save writes body under key.
	Save(ctx context.Context, key string, body io.Reader, contentType string) error

	// Get streams the content stored under key with its content type.
	// Missing keys yield drivers.ErrObjectNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// GenerateURL returns a link the browser can fetch the content from.
	GenerateURL(ctx context.Context, key string, expires time.Duration) (string, error)
}
