package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMetricsWritePrometheus(t *testing.T) {
	m := newMetrics()
	m.ObserveAPI("POST", "/api/conversations/:id/messages", "201", 30*time.Millisecond)
	m.ObserveAPI("GET", "/api/conversations", "500", time.Second)
	m.IncMessageSent("text")
	m.ObservePostCommit("message.created", nil)
	m.ObservePostCommit("unread.increment", errors.New("boom"))
	m.SetRealtimeClients(3)

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`huddle_api_requests_total{method="POST",route="/api/conversations/:id/messages",status="201"} 1.000000`,
		`huddle_api_requests_error_total 1.000000`,
		`huddle_messages_sent_total{type="text"} 1.000000`,
		`huddle_postcommit_tasks_total{task="unread.increment",status="error"} 1.000000`,
		`huddle_realtime_clients 3.000000`,
		`huddle_api_request_duration_seconds_bucket{method="GET",route="/api/conversations",status="500",le="+Inf"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/", "200", time.Millisecond)
	m.IncMessageSent("text")
	m.ObservePostCommit("x", nil)
	m.SetRealtimeClients(1)
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("nil WritePrometheus: %v", err)
	}
}

func TestLabelEscaping(t *testing.T) {
	got := labelString([]string{"a"}, []string{"x\"y\\z\n"})
	if got != `{a="x\"y\\z\n"}` {
		t.Fatalf("labelString: %s", got)
	}
	if withLe("", "0.5") != `{le="0.5"}` {
		t.Fatalf("withLe empty: %s", withLe("", "0.5"))
	}
}
