package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/OpenNSW/enrollment/internal/auth"
	"github.com/OpenNSW/enrollment/internal/database"
	"github.com/OpenNSW/enrollment/internal/enrollment"
	"github.com/OpenNSW/enrollment/internal/session"
	"github.com/OpenNSW/enrollment/internal/uploads"
)

// Deps are everything the HTTP surface is assembled from.
type Deps struct {
	DB         *gorm.DB
	JWTSecret  string
	Sessions   session.Store
	Session    session.Options
	Enrollment *enrollment.Deps
}

// New builds the gin engine serving the enrollment pages, document
// downloads and the health check.
func New(d Deps) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestLogger(), auth.Middleware(d.JWTSecret))

	engine.GET("/healthz", healthCheck(d.DB))

	pages := engine.Group("/", auth.RequireActor(), session.Middleware(d.Sessions, d.Session))
	for _, route := range enrollment.Routes(d.Enrollment) {
		// The views answer unsupported methods themselves.
		pages.Any(route.Path, gin.WrapH(route.Handler))
		slog.Debug("route registered", "name", route.Name, "path", route.Path)
	}

	if d.Enrollment.Uploads != nil {
		handler := uploads.NewHTTPHandler(d.Enrollment.Uploads, documentOwner(d.Enrollment.Store))
		engine.GET("/uploads/:key", auth.RequireActor(), handler.Download)
	}

	return engine
}

// RequestLogger logs one line per request once the handler chain is done.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if actor := auth.ActorFromContext(c.Request.Context()); actor != nil {
			attrs = append(attrs, "user_id", actor.ID)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			slog.ErrorContext(c.Request.Context(), "request failed", attrs...)
			return
		}
		slog.InfoContext(c.Request.Context(), "request completed", attrs...)
	}
}

func healthCheck(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := database.HealthCheck(db); err != nil {
			slog.ErrorContext(c.Request.Context(), "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func documentOwner(store *enrollment.Store) uploads.OwnerCheck {
	return func(c *gin.Context, userID, key string) (bool, error) {
		return store.DocumentOwnedBy(c.Request.Context(), key, userID)
	}
}
