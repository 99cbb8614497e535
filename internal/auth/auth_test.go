package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestIssueAndParseToken(t *testing.T) {
	actor := Actor{ID: "emp-1", Email: "ada@example.com", Company: "acme"}
	token, err := IssueToken(testSecret, actor, time.Hour)
	require.NoError(t, err)

	parsed, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, &actor, parsed)

	_, err = ParseToken("other-secret", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_Rejects(t *testing.T) {
	expired, err := IssueToken(testSecret, Actor{ID: "emp-1"}, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(testSecret, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "emp-1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseToken(testSecret, unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = IssueToken("", Actor{ID: "emp-1"}, time.Hour)
	assert.Error(t, err)
	_, err = IssueToken(testSecret, Actor{}, time.Hour)
	assert.Error(t, err)
}

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(Middleware(testSecret))
	engine.GET("/open", func(c *gin.Context) {
		if actor := ActorFromContext(c.Request.Context()); actor != nil {
			c.String(http.StatusOK, actor.ID)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})
	engine.GET("/closed", RequireActor(), func(c *gin.Context) {
		c.String(http.StatusOK, ActorFromContext(c.Request.Context()).Company)
	})
	return engine
}

func TestMiddleware(t *testing.T) {
	engine := newTestEngine()
	token, err := IssueToken(testSecret, Actor{ID: "emp-1", Company: "acme"}, time.Hour)
	require.NoError(t, err)

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/open", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		assert.Equal(t, "emp-1", rec.Body.String())
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/closed", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "acme", rec.Body.String())
	})

	t.Run("invalid token continues anonymously", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/open", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		assert.Equal(t, "anonymous", rec.Body.String())
	})

	t.Run("require actor", func(t *testing.T) {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/closed", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestActorFromContext(t *testing.T) {
	assert.Nil(t, ActorFromContext(context.Background()))

	actor := &Actor{ID: "emp-1"}
	assert.Same(t, actor, ActorFromContext(WithActor(context.Background(), actor)))
}
