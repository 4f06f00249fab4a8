package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/projecthub/pkg/logger"
	"github.com/rs/xid"
)

const HeaderRequestID = "X-Request-ID"

// RequestID tags each request with a correlation id, reusing the caller's
// X-Request-ID when it sends one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = xid.New().String()
		}
		c.Set(logger.RequestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}
