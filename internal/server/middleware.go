package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderSignature = "X-Signature"
	HeaderActorID   = "X-Actor-Id"
)

// BearerTokenRequired guards operator routes. An empty token leaves the
// group open, which is how local and test deployments run.
func BearerTokenRequired(token string) gin.HandlerFunc {
	token = strings.TrimSpace(token)
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		const prefix = "Bearer "
		if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		presented := strings.TrimSpace(header[len(prefix):])
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}
