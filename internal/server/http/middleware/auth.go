package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	pkgAuth "github.com/avoray/ordersync/internal/pkg/auth"
)

// APIKeyHeader carries the admin API key on management requests.
const APIKeyHeader = "X-API-Key"

// APIKeyRequired gates admin endpoints behind the configured API key.
func APIKeyRequired(verifier *pkgAuth.APIKeyVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if key == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		if err := verifier.Verify(key); err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
