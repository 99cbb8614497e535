package uploads

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/OpenNSW/enrollment/internal/auth"
	"github.com/OpenNSW/enrollment/internal/uploads/drivers"
)

// OwnerCheck reports whether the user may read the document stored under key.
type OwnerCheck func(c *gin.Context, userID, key string) (bool, error)

type HTTPHandler struct {
	Service *UploadService
	Owns    OwnerCheck
}

func NewHTTPHandler(service *UploadService, owns OwnerCheck) *HTTPHandler {
	return &HTTPHandler{Service: service, Owns: owns}
}

// Download streams the document named by the :key route parameter.
func (h *HTTPHandler) Download(c *gin.Context) {
	ctx := c.Request.Context()
	key := c.Param("key")
	if err := drivers.ValidateKey(key); err != nil {
		c.String(http.StatusBadRequest, "invalid document key")
		return
	}

	actor := auth.ActorFromContext(ctx)
	if actor == nil {
		c.String(http.StatusUnauthorized, "authentication required")
		return
	}
	if h.Owns != nil {
		ok, err := h.Owns(c, actor.ID, key)
		if err != nil {
			slog.ErrorContext(ctx, "failed to check document owner", "key", key, "error", err)
			c.String(http.StatusInternalServerError, "internal server error")
			return
		}
		if !ok {
			c.String(http.StatusNotFound, "document not found")
			return
		}
	}

	reader, contentType, err := h.Service.Download(ctx, key)
	if err != nil {
		if errors.Is(err, drivers.ErrObjectNotFound) {
			c.String(http.StatusNotFound, "document not found")
			return
		}
		slog.ErrorContext(ctx, "document download failed", "key", key, "error", err)
		c.String(http.StatusInternalServerError, "internal server error")
		return
	}
	defer reader.Close()

	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": key}))
	c.Header("X-Content-Type-Options", "nosniff")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		slog.WarnContext(ctx, "document download interrupted", "key", key, "error", err)
	}
}
