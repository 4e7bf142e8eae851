package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pansan0/saleidia/internal/identity"
)

const userIDKey = "userID"

func AuthMiddleware(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := identity.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		userID, err := verifier.Verify(c.Request.Context(), token)
		if err != nil || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// AnonKeyMiddleware guards the public routes (signup, login). The caller must
// present the anon key or any valid session token. An empty anonKey disables
// the check.
func AnonKeyMiddleware(anonKey string, verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if anonKey == "" {
			c.Next()
			return
		}
		token := identity.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(anonKey)) == 1 {
			c.Next()
			return
		}
		if userID, err := verifier.Verify(c.Request.Context(), token); err != nil || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func MustUserID(c *gin.Context) string {
	return c.MustGet(userIDKey).(string)
}

// UserID returns the authenticated user, or "" on public routes.
func UserID(c *gin.Context) string {
	v, _ := c.Get(userIDKey)
	s, _ := v.(string)
	return s
}
