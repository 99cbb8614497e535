package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/OpenNSW/enrollment/internal/config"
	"github.com/OpenNSW/enrollment/internal/database"
	"github.com/OpenNSW/enrollment/internal/enrollment"
	"github.com/OpenNSW/enrollment/internal/model"
	"github.com/OpenNSW/enrollment/internal/policy"
	"github.com/OpenNSW/enrollment/internal/render"
	"github.com/OpenNSW/enrollment/internal/router"
	"github.com/OpenNSW/enrollment/internal/session"
	"github.com/OpenNSW/enrollment/internal/submission"
	"github.com/OpenNSW/enrollment/internal/uploads"
	"github.com/OpenNSW/enrollment/internal/urls"
	"github.com/OpenNSW/enrollment/web"
)

const sessionSweepInterval = 15 * time.Minute

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	slog.SetDefault(slog.New(newLogHandler(cfg.Log)))

	slog.Info("configuration loaded successfully",
		"db_driver", cfg.Database.Driver,
		"db_host", cfg.Database.Host,
		"db_port", cfg.Database.Port,
		"db_name", cfg.Database.Name,
		"db_sslmode", cfg.Database.SSLMode,
	)

	slog.Info("server configuration",
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"session_store", cfg.Session.Store,
		"storage", cfg.Storage.Type,
		"draft_policy", cfg.Submission.DraftPolicy,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	if err := database.HealthCheck(db); err != nil {
		log.Fatalf("database health check failed: %v", err)
	}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db,
			&model.Submission{},
			&model.BenefitPlan{},
			&model.EmployeeEnrollment{},
			&session.Session{},
		); err != nil {
			log.Fatalf("%v", err)
		}
	}

	store := enrollment.NewStore(db)
	if err := store.SeedPlans(ctx, enrollment.DefaultPlans); err != nil {
		log.Fatalf("failed to seed benefit plans: %v", err)
	}

	policies := policy.NewRegistry()
	if cfg.Policy.File != "" {
		if policies, err = policy.Load(cfg.Policy.File); err != nil {
			log.Fatalf("failed to load enrollment policy: %v", err)
		}
	}

	renderer, err := render.New(templateFS(cfg.Templates),
		render.WithDebug(cfg.Templates.Debug),
		render.WithGlobals(map[string]any{"site_name": cfg.Templates.SiteName}),
	)
	if err != nil {
		log.Fatalf("failed to initialize templates: %v", err)
	}

	reverser := urls.NewReverser()
	if err := enrollment.RegisterPaths(reverser); err != nil {
		log.Fatalf("failed to register routes: %v", err)
	}

	driver, err := uploads.NewStorageFromConfig(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("failed to initialize document storage: %v", err)
	}

	sessions := newSessionStore(cfg.Session, db)
	if gs, ok := sessions.(*session.GormStore); ok {
		go sweepSessions(ctx, gs)
	}

	gin.SetMode(cfg.Server.Mode)
	handler := router.New(router.Deps{
		DB:        db,
		JWTSecret: cfg.Auth.JWTSecret,
		Sessions:  sessions,
		Session: session.Options{
			CookieName: cfg.Session.CookieName,
			TTL:        cfg.Session.TTL,
			Secure:     cfg.Session.Secure,
		},
		Enrollment: &enrollment.Deps{
			Renderer:    renderer,
			URLs:        reverser,
			Submissions: submission.NewService(submission.NewStore(db), submission.DraftPolicy(cfg.Submission.DraftPolicy)),
			Store:       store,
			Uploads:     uploads.NewUploadService(driver),
			Policies:    policies,
		},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("starting server", "port", cfg.Server.Port, "url", cfg.Server.ServiceURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			stop()
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	} else {
		slog.Info("server gracefully stopped")
	}
}

func newLogHandler(cfg config.LogConfig) slog.Handler {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.NewTextHandler(os.Stdout, opts)
}

// templateFS serves templates from disk when a directory is configured and
// from the binary otherwise.
func templateFS(cfg config.TemplateConfig) fs.FS {
	if cfg.Dir != "" {
		slog.Info("loading templates from disk", "dir", cfg.Dir, "debug", cfg.Debug)
		return os.DirFS(cfg.Dir)
	}
	return web.Templates()
}

func newSessionStore(cfg config.SessionConfig, db *gorm.DB) session.Store {
	if cfg.Store == "memory" {
		slog.Warn("using in-memory session store, sessions are lost on restart")
		return session.NewMemoryStore()
	}
	return session.NewGormStore(db)
}

// sweepSessions deletes expired sessions until ctx is cancelled.
func sweepSessions(ctx context.Context, store *session.GormStore) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.DeleteExpired(ctx, now)
			if err != nil {
				slog.Error("failed to delete expired sessions", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired sessions deleted", "count", n)
			}
		}
	}
}
