package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const callerIDKey = "caller_id"

// TokenVerifier checks a bearer token and returns the caller identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Auth rejects requests without a valid bearer token. A nil verifier makes
// it a pass-through, for deployments where the gateway terminates auth.
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		callerID, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(callerIDKey, callerID)
		c.Next()
	}
}

// CallerID returns the identity set by Auth, or "" when auth is disabled.
func CallerID(c *gin.Context) string {
	return c.GetString(callerIDKey)
}
