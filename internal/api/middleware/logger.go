package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/timmy/lenscat/internal/logger"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// quietPaths are logged at debug level; probes hit them constantly.
var quietPaths = map[string]bool{"/health": true, "/metrics": true}

// LoggerMiddleware injects a request-scoped logger into the request context
// and logs one line per completed request.
// Parameters:
//   - log: base logger; nil uses the default logger.
// Returns:
//   - gin.HandlerFunc: middleware handler.
func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.GetDefault()
	}
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := log.WithFields(logger.Fields{
			logger.FieldRequestID: requestID,
			logger.FieldComponent: "api",
		}).WithContext(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderRequestID, requestID)

		c.Next()

		// RequireRole may have added the user to the request logger.
		ctx = c.Request.Context()
		entry := logger.With(logger.Fields{
			logger.FieldStatus:     c.Writer.Status(),
			logger.FieldDurationMs: time.Since(start).Milliseconds(),
			logger.FieldSize:       c.Writer.Size(),
			"route":                c.FullPath(),
		})
		path := c.Request.URL.Path
		switch {
		case len(c.Errors) > 0:
			entry.Error(ctx, "Request failed: method=%s, path=%s, errors=%s", c.Request.Method, path, c.Errors.String())
		case quietPaths[path]:
			entry.Debug(ctx, "Request completed: method=%s, path=%s", c.Request.Method, path)
		default:
			entry.Info(ctx, "Request completed: method=%s, path=%s, client_ip=%s", c.Request.Method, path, c.ClientIP())
		}
	}
}
