// Package middleware provides HTTP middleware for the command API:
// shared-secret authentication and request logging.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireAPIKey enforces a shared-secret API key. Clients must send
// `X-API-Key: <key>`; an empty expected key disables the check.
func RequireAPIKey(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-API-Key")
		if expected == "" || got == expected {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}
