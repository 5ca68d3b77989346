package logger

import (
	"strings"
	"testing"
)

func TestSanitizeKVsRedactsAndHashes(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"content", "hello there",
		"sender_id", "6a1f7c1e-0000-4000-8000-000000000001",
		"conversation_id", "c1",
		"dangling",
	})
	if len(out) != 7 {
		t.Fatalf("len: want=7 got=%d", len(out))
	}
	if out[1] != "[REDACTED]" {
		t.Fatalf("content should be redacted, got=%v", out[1])
	}
	hashed, _ := out[3].(string)
	if !strings.HasPrefix(hashed, "hash:") || len(hashed) != len("hash:")+12 {
		t.Fatalf("sender_id should be hashed, got=%v", out[3])
	}
	if out[5] != "c1" {
		t.Fatalf("conversation_id should pass through, got=%v", out[5])
	}
	if out[6] != "dangling" {
		t.Fatalf("odd trailing key should be kept, got=%v", out[6])
	}
}

func TestSanitizeValueNestedMapAndJWT(t *testing.T) {
	got := sanitizeValue("payload", map[string]interface{}{"authorization": "Bearer x", "seq": 3})
	m, ok := got.(map[string]interface{})
	if !ok {
		t.Fatalf("want map, got %T", got)
	}
	if m["authorization"] != "[REDACTED]" || m["seq"] != 3 {
		t.Fatalf("unexpected nested sanitize result: %#v", m)
	}
	jwt := "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxMjM0NTY3ODkwIn0.sig"
	if sanitizeValue("note", jwt) != "[REDACTED]" {
		t.Fatalf("jwt-looking value should be redacted")
	}
}
