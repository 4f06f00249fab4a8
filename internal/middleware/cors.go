package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/huangang/projecthub/internal/config"
)

// CORS builds the cross-origin policy. Credentials are only allowed for an
// explicit origin list; with "*" the bearer token travels in a header anyway.
// Origins outside the list get 403.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	origins := cfg.AllowOrigins
	anyOrigin := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			anyOrigin = true
		}
	}

	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 12 * time.Hour
	}

	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", HeaderRequestID},
		ExposeHeaders: []string{"Content-Length", "Retry-After", HeaderRequestID},
		MaxAge:        maxAge,
	}
	if anyOrigin {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
		c.AllowWildcard = true
		c.AllowCredentials = true
	}
	return cors.New(c)
}
