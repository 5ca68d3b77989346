package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/huddle-backend/internal/observability"
	"github.com/yungbote/huddle-backend/internal/platform/ctxutil"
)

const (
	headerTraceID        = "X-Trace-Id"
	headerRequestID      = "X-Request-Id"
	headerIdempotencyKey = "Idempotency-Key"
)

// AttachTraceContext stamps request and trace ids, and records the
// conversation and idempotency key a chat request acts on so spans and the
// request log carry them.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())

		reqID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.New().String()
		}
		traceID := strings.TrimSpace(c.GetHeader(headerTraceID))
		if traceID == "" && span.SpanContext().HasTraceID() {
			traceID = span.SpanContext().TraceID().String()
		}
		if traceID == "" {
			traceID = uuid.New().String()
		}

		td := &ctxutil.TraceData{
			TraceID:        traceID,
			RequestID:      reqID,
			ConversationID: routeConversationID(c),
			IdempotencyKey: strings.TrimSpace(c.GetHeader(headerIdempotencyKey)),
		}
		span.SetAttributes(observability.RequestAttrs(td.ConversationID, td.IdempotencyKey != "")...)

		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), td))
		c.Set("trace_id", traceID)
		c.Set("request_id", reqID)
		c.Writer.Header().Set(headerTraceID, traceID)
		c.Writer.Header().Set(headerRequestID, reqID)

		c.Next()

		if td.Replayed {
			span.SetAttributes(observability.AttrIdempotentReplay.Bool(true))
		}
	}
}

// routeConversationID returns the :id of conversation and group routes, the
// two route families keyed by a conversation.
func routeConversationID(c *gin.Context) string {
	route := c.FullPath()
	if !strings.HasPrefix(route, "/api/conversations/:id") && !strings.HasPrefix(route, "/api/groups/:id") {
		return ""
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return ""
	}
	return id.String()
}
