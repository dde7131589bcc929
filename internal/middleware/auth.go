// Package middleware implements the gin middleware guarding the gateway's
// internal AI API: a constant-time API-key check, replacing the teacher's
// tenant/JWT extraction with the single shared-secret scheme this service
// needs (the delivery worker is the API's only caller).
package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKeyAuth returns a gin middleware that requires the `X-API-Key` header
// to match apiKey via constant-time comparison. A blank apiKey rejects
// every request rather than disabling auth, so misconfiguration fails
// closed.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	expected := sha256.Sum256([]byte(apiKey))

	return func(c *gin.Context) {
		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "internal API key not configured"})
			c.Abort()
			return
		}

		header := c.GetHeader("X-API-Key")
		if header == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing X-API-Key header"})
			c.Abort()
			return
		}

		presented := sha256.Sum256([]byte(header))
		if subtle.ConstantTimeCompare(expected[:], presented[:]) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			c.Abort()
			return
		}

		c.Next()
	}
}
