package api

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/pitchtrack/internal/observability"
)

const requestIDHeader = "X-Request-ID"

// RequestMiddleware tags each request with an ID, logs it and records its
// latency under the route template.
func RequestMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)

		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		attrs := []any{
			"request_id", reqID,
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", elapsed.String(),
			"ip", c.ClientIP(),
		}
		if id := c.Param("id"); id != "" {
			attrs = append(attrs, "match_id", id)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			slog.Error("request", attrs...)
		case route == "/healthz" || route == "/readyz" || route == "/metrics":
			slog.Debug("request", attrs...)
		default:
			slog.Info("request", attrs...)
		}

		observability.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).
			Observe(elapsed.Seconds())
	}
}
