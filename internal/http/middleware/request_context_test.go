package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yungbote/huddle-backend/internal/observability"
	"github.com/yungbote/huddle-backend/internal/platform/ctxutil"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

func TestTraceContextRecordsConversationAndReplay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	var seen ctxutil.TraceData
	r := gin.New()
	r.Use(AttachTraceContext(), RequestLogger(log))
	r.POST("/api/conversations/:id/messages", func(c *gin.Context) {
		ctxutil.MarkReplayed(c.Request.Context())
		seen = *ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})
	r.GET("/api/users/:id/presence", func(c *gin.Context) {
		seen = *ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	convID := uuid.New()
	key := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/api/conversations/"+convID.String()+"/messages", nil)
	req.Header.Set("Idempotency-Key", key)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if seen.ConversationID != convID.String() || seen.IdempotencyKey != key {
		t.Fatalf("trace data not populated: %+v", seen)
	}
	entries := logs.FilterMessage("HTTP request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request log line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["conversation_id"] != convID.String() || fields["idempotent_replay"] != true {
		t.Fatalf("request log missing chat fields: %v", fields)
	}
	if _, ok := fields["idempotency_key"]; ok {
		t.Fatalf("idempotency key must not be logged: %v", fields)
	}

	// A user id in the path is not a conversation.
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/users/"+uuid.NewString()+"/presence", nil))
	if seen.ConversationID != "" {
		t.Fatalf("unexpected conversation id %q", seen.ConversationID)
	}
}

func TestMetricsSkipsStreamsAndCollapsesUnmatched(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("METRICS_ENABLED", "true")
	m := observability.Init(logger.Nop())
	if m == nil {
		t.Fatalf("metrics should be enabled")
	}

	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/api/realtime/stream", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/conversations", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/api/realtime/stream", "/api/conversations", "/wp-login.php"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `route="/api/conversations",status="200"`) {
		t.Fatalf("missing routed request:\n%s", out)
	}
	if !strings.Contains(out, `route="unmatched",status="404"`) {
		t.Fatalf("missing unmatched label:\n%s", out)
	}
	if strings.Contains(out, "/api/realtime/stream") || strings.Contains(out, "wp-login") {
		t.Fatalf("stream or raw path leaked into labels:\n%s", out)
	}
}
