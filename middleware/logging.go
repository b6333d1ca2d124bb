package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	TraceIDHeader     = "X-Trace-ID"
	TraceParentHeader = "traceparent"

	traceIDKey = "trace_id"
)

// GetTraceID returns the trace id of the incoming request. It prefers the
// W3C traceparent header (00-<trace_id>-<parent_id>-<flags>), then
// X-Trace-ID, and generates a fresh id when neither is present.
func GetTraceID(c *gin.Context) string {
	if traceParent := c.GetHeader(TraceParentHeader); traceParent != "" {
		parts := strings.Split(traceParent, "-")
		if len(parts) >= 2 && parts[1] != "" {
			return parts[1]
		}
	}

	if traceID := c.GetHeader(TraceIDHeader); traceID != "" {
		return traceID
	}

	return generateTraceID()
}

func generateTraceID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// LoggingMiddleware attaches a trace-scoped zerolog logger to the request
// context and writes one access log line per request.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		traceID := GetTraceID(c)

		c.Set(traceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		logger := log.With().Str(traceIDKey, traceID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		default:
			event = logger.Info()
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		// Path parameters carry session ids, so only the route template is logged.
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Msg("HTTP request")
	}
}
