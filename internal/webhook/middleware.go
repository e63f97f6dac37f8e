package webhook

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SecretHeader carries the shared secret the voice platform is configured
// to send with every webhook delivery.
const SecretHeader = "X-Webhook-Secret"

// SharedSecretMiddleware rejects deliveries that do not present the
// configured shared secret. Comparison is constant time.
func SharedSecretMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "webhook secret not configured"})
			return
		}

		provided := c.GetHeader(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}

		c.Next()
	}
}
