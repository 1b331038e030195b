// Package auth places the caller's identity in the request context.
//
// Sessions are owned by the upstream gateway, which forwards the signed-in
// user as X-User-ID. Operator routes additionally require X-Admin-Secret.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/merakimarket/meraki/internal/logging"
)

const (
	// HeaderUserID carries the authenticated user from the gateway.
	HeaderUserID = "X-User-ID"
	// HeaderAdminSecret authorizes operator routes.
	HeaderAdminSecret = "X-Admin-Secret"
	// ContextKeyUserID is the gin context key handlers read the caller from.
	ContextKeyUserID = "authUserID"

	maxUserIDLength = 64
)

// Middleware copies the gateway's user header into the gin context and the
// request's logging context. Requests without it continue anonymously.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID != "" && len(userID) <= maxUserIDLength {
			c.Set(ContextKeyUserID, userID)
			c.Request = c.Request.WithContext(logging.WithUserID(c.Request.Context(), userID))
		}
		c.Next()
	}
}

// RequireAuth rejects requests without a user.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Sign in required.",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests whose X-Admin-Secret does not match secret.
// An empty secret closes admin routes entirely.
func RequireAdmin(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		given := c.GetHeader(HeaderAdminSecret)
		if secret == "" || subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin access required.",
			})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user, or "" for anonymous requests.
func UserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}
