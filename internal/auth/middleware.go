package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenCookie is the cookie consulted when no Authorization header is sent,
// so plain browser navigation between form pages stays authenticated.
const TokenCookie = "access_token"

// Middleware creates a gin middleware that resolves the actor from a bearer
// token or the access_token cookie and injects it into the request context.
//
// If the token is missing or fails verification the request proceeds without
// an actor. Handlers that need one sit behind RequireActor.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := extractToken(c)
		if tokenStr == "" {
			slog.Debug("no access token provided")
			c.Next()
			return
		}

		actor, err := ParseToken(secret, tokenStr)
		if err != nil {
			slog.Warn("failed to verify access token",
				"error", err,
				"path", c.Request.URL.Path,
			)
			c.Next()
			return
		}

		c.Request = c.Request.WithContext(WithActor(c.Request.Context(), actor))
		slog.Debug("actor injected successfully", "user_id", actor.ID)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := c.Cookie(TokenCookie); err == nil {
		return cookie
	}
	return ""
}

// RequireActor aborts with 401 Unauthorized when no actor was resolved.
// It must run after Middleware.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ActorFromContext(c.Request.Context()) == nil {
			slog.Warn("authentication required but not provided",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			)
			c.String(http.StatusUnauthorized, "authentication required")
			c.Abort()
			return
		}
		c.Next()
	}
}
