package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/OpenNSW/enrollment/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey string

const stateContextKey contextKey = "session"

// Options configure the session cookie.
type Options struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Handle is the State of the current request. Changes are written through to
// the store immediately.
type Handle struct {
	mu    sync.Mutex
	store Store
	sess  *Session
}

// NewHandle wraps sess for use as State.
func NewHandle(store Store, sess *Session) *Handle {
	return &Handle{store: store, sess: sess}
}

// ID returns the session id.
func (h *Handle) ID() string {
	return h.sess.ID
}

func (h *Handle) SubmissionID() (uuid.UUID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sess.SubmissionID == nil {
		return uuid.Nil, false
	}
	return *h.sess.SubmissionID, true
}

func (h *Handle) SetSubmissionID(ctx context.Context, id uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sess.SubmissionID != nil && *h.sess.SubmissionID == id {
		return nil
	}
	h.sess.SubmissionID = &id
	return h.store.Save(ctx, h.sess)
}

func (h *Handle) ClearSubmissionID(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sess.SubmissionID == nil {
		return nil
	}
	h.sess.SubmissionID = nil
	return h.store.Save(ctx, h.sess)
}

// WithState returns a copy of ctx carrying state.
func WithState(ctx context.Context, state State) context.Context {
	return context.WithValue(ctx, stateContextKey, state)
}

// FromContext returns the session state of the request, or nil.
func FromContext(ctx context.Context) State {
	state, ok := ctx.Value(stateContextKey).(State)
	if !ok {
		return nil
	}
	return state
}

// Middleware loads or starts the session of the authenticated actor and
// places it in the request context. It must run after auth.Middleware.
func Middleware(store Store, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		actor := auth.ActorFromContext(ctx)
		if actor == nil {
			c.String(http.StatusUnauthorized, "authentication required")
			c.Abort()
			return
		}

		sess, err := load(ctx, store, c, opts, actor.ID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to load session", "error", err)
			c.String(http.StatusInternalServerError, "internal server error")
			c.Abort()
			return
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(opts.CookieName, sess.ID, int(opts.TTL.Seconds()), "/", "", opts.Secure, true)
		c.Request = c.Request.WithContext(WithState(ctx, NewHandle(store, sess)))
		c.Next()
	}
}

func load(ctx context.Context, store Store, c *gin.Context, opts Options, userID string) (*Session, error) {
	now := time.Now().UTC()
	if id, err := c.Cookie(opts.CookieName); err == nil && id != "" {
		sess, err := store.Get(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
			slog.DebugContext(ctx, "unknown session, starting a new one")
		case err != nil:
			return nil, err
		case sess.Expired(now):
			slog.DebugContext(ctx, "session expired, starting a new one", "session_id", sess.ID)
			if err := store.Delete(ctx, sess.ID); err != nil {
				return nil, err
			}
		case sess.UserID != userID:
			slog.WarnContext(ctx, "session belongs to another user, starting a new one", "user_id", userID)
			if err := store.Delete(ctx, sess.ID); err != nil {
				return nil, err
			}
		default:
			sess.ExpiresAt = now.Add(opts.TTL)
			if err := store.Save(ctx, sess); err != nil {
				return nil, err
			}
			return sess, nil
		}
	}

	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(opts.TTL),
	}
	if err := store.Save(ctx, sess); err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "session started", "session_id", sess.ID, "user_id", userID)
	return sess, nil
}
