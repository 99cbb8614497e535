package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/OpenNSW/enrollment/internal/auth"
)

func setupGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&Session{}))
	return NewGormStore(db)
}

func TestStores(t *testing.T) {
	stores := map[string]Store{
		"gorm":   setupGormStore(t),
		"memory": NewMemoryStore(),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			sess := &Session{ID: "s1", UserID: "emp-1", ExpiresAt: time.Now().Add(time.Hour)}
			require.NoError(t, store.Save(ctx, sess))

			id := uuid.New()
			sess.SubmissionID = &id
			require.NoError(t, store.Save(ctx, sess))

			got, err := store.Get(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, "emp-1", got.UserID)
			require.NotNil(t, got.SubmissionID)
			assert.Equal(t, id, *got.SubmissionID)

			require.NoError(t, store.Delete(ctx, "s1"))
			_, err = store.Get(ctx, "s1")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestGormStore_DeleteExpired(t *testing.T) {
	store := setupGormStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.Save(ctx, &Session{ID: "old", UserID: "u", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, store.Save(ctx, &Session{ID: "new", UserID: "u", ExpiresAt: now.Add(time.Hour)}))

	n, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = store.Get(ctx, "new")
	assert.NoError(t, err)
}

func TestHandle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	h := NewHandle(store, &Session{ID: "s1", UserID: "emp-1"})

	_, ok := h.SubmissionID()
	assert.False(t, ok)

	id := uuid.New()
	require.NoError(t, h.SetSubmissionID(ctx, id))
	got, ok := h.SubmissionID()
	assert.True(t, ok)
	assert.Equal(t, id, got)

	stored, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, id, *stored.SubmissionID)

	require.NoError(t, h.ClearSubmissionID(ctx))
	_, ok = h.SubmissionID()
	assert.False(t, ok)
	stored, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, stored.SubmissionID)
}

func newTestEngine(store Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			c.Request = c.Request.WithContext(auth.WithActor(c.Request.Context(), &auth.Actor{ID: user}))
		}
		c.Next()
	})
	engine.Use(Middleware(store, Options{CookieName: "sid", TTL: time.Hour}))
	engine.GET("/", func(c *gin.Context) {
		state := FromContext(c.Request.Context())
		if id, ok := state.SubmissionID(); ok {
			c.String(http.StatusOK, id.String())
			return
		}
		c.String(http.StatusOK, "none")
	})
	engine.POST("/", func(c *gin.Context) {
		id := uuid.MustParse(c.Query("id"))
		if err := FromContext(c.Request.Context()).SetSubmissionID(c.Request.Context(), id); err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		c.Status(http.StatusNoContent)
	})
	return engine
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sid" {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestMiddleware(t *testing.T) {
	store := NewMemoryStore()
	engine := newTestEngine(store)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Test-User", "emp-1")
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "none", rec.Body.String())
	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	id := uuid.New()
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/?id="+id.String(), nil)
	req.Header.Set("X-Test-User", "emp-1")
	req.AddCookie(cookie)
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	t.Run("same user keeps the session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Test-User", "emp-1")
		req.AddCookie(cookie)
		engine.ServeHTTP(rec, req)
		assert.Equal(t, id.String(), rec.Body.String())
		assert.Equal(t, cookie.Value, sessionCookie(t, rec).Value)
	})

	t.Run("other user gets a fresh session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Test-User", "emp-2")
		req.AddCookie(cookie)
		engine.ServeHTTP(rec, req)
		assert.Equal(t, "none", rec.Body.String())
		assert.NotEqual(t, cookie.Value, sessionCookie(t, rec).Value)
	})

	t.Run("anonymous is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestMiddleware_ExpiredSession(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, store.Save(ctx, &Session{ID: "stale", UserID: "emp-1", SubmissionID: &id, ExpiresAt: time.Now().Add(-time.Minute)}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Test-User", "emp-1")
	req.AddCookie(&http.Cookie{Name: "sid", Value: "stale"})
	newTestEngine(store).ServeHTTP(rec, req)

	assert.Equal(t, "none", rec.Body.String())
	_, err := store.Get(ctx, "stale")
	assert.ErrorIs(t, err, ErrNotFound)
}
