package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins  []string
	AllowAllOrigins bool
}

const (
	corsAllowHeaders  = "Content-Type, Content-Length, Accept, Authorization, X-Request-ID"
	corsAllowMethods  = "GET, POST, OPTIONS"
	corsExposeHeaders = "Content-Length, X-Request-ID"
)

// CORS lets the admin front end call the job API from another origin.
// With AllowAllOrigins the wildcard is sent and credentials are disabled;
// otherwise only listed origins are echoed back.
func CORS(config CORSConfig) gin.HandlerFunc {
	allowed := make(map[string]bool, len(config.AllowedOrigins))
	wildcard := config.AllowAllOrigins
	for _, o := range config.AllowedOrigins {
		if o == "*" {
			wildcard = true
			continue
		}
		allowed[strings.ToLower(o)] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Add("Vary", "Origin")
		switch {
		case wildcard:
			h.Set("Access-Control-Allow-Origin", "*")
		case allowed[strings.ToLower(origin)]:
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
		default:
			c.Next()
			return
		}
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		h.Set("Access-Control-Expose-Headers", corsExposeHeaders)

		if c.Request.Method == http.MethodOptions {
			h.Set("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
