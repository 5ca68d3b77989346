package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/huddle-backend/internal/platform/ctxutil"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

// RequestLogger writes one line per request. Realtime streams log when they
// close, since their duration is the connection lifetime.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		fields := append([]interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"path", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}, chatFields(c)...)

		switch {
		case isStreamRoute(route):
			log.Info("Realtime stream closed", fields...)
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}

func chatFields(c *gin.Context) []interface{} {
	var fields []interface{}
	if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
		if td.TraceID != "" {
			fields = append(fields, "trace_id", td.TraceID)
		}
		if td.RequestID != "" {
			fields = append(fields, "request_id", td.RequestID)
		}
		if td.ConversationID != "" {
			fields = append(fields, "conversation_id", td.ConversationID)
		}
		if td.IdempotencyKey != "" {
			fields = append(fields, "idempotent_replay", td.Replayed)
		}
	}
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil && rd.UserID != uuid.Nil {
		fields = append(fields, "user_id", rd.UserID.String())
	}
	return fields
}

// isStreamRoute matches the long-lived realtime transports.
func isStreamRoute(route string) bool {
	return route == "/api/realtime/stream" || route == "/api/realtime/ws"
}
