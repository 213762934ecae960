package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AksahyDwivedi/pharmacy/pkg/logger"
)

// Logger writes one line per request. Probes under /health are logged at
// debug level; 4xx at warn and 5xx at error.
func Logger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		path, query := c.Request.URL.Path, c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"bytes", c.Writer.Size(),
			"client_ip", c.ClientIP(),
		}
		if query != "" {
			fields = append(fields, "query", query)
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			fields = append(fields, "error", errs.String())
		}

		reqLog := log.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			reqLog.Errorw("request failed", fields...)
		case status >= 400:
			reqLog.Warnw("request rejected", fields...)
		case strings.HasPrefix(path, "/health"):
			reqLog.Debugw("probe", fields...)
		default:
			reqLog.Infow("request", fields...)
		}
	}
}
