package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ClaimsKey is the gin context key holding the caller's Claims.
const ClaimsKey = "claims"

// TerminalAuth enforces bearer JWT tokens issued to check-in terminals.
func TerminalAuth(issuer *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			abort(c, "missing bearer token")
			return
		}
		claims, err := issuer.Parse(strings.TrimSpace(authz[len("bearer "):]))
		if err != nil {
			abort(c, "invalid token")
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// TerminalID returns the authenticated terminal, if any.
func TerminalID(c *gin.Context) string {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return ""
	}
	claims, _ := v.(Claims)
	return claims.Subject
}

func abort(c *gin.Context, reason string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"status": "error",
		"error":  gin.H{"kind": "Unauthorized", "reason": reason},
	})
}
