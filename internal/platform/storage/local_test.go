package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir(), "http://cdn.local/files")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	if err := s.Put(ctx, "attachments/u1/a.txt", strings.NewReader("hello"), "text/plain"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	rc, err := s.Open(ctx, "attachments/u1/a.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "hello" {
		t.Fatalf("content: got=%q", string(b))
	}
	if got := s.URL("attachments/u1/a.txt"); got != "http://cdn.local/files/attachments/u1/a.txt" {
		t.Fatalf("URL: got=%s", got)
	}
	if err := s.Delete(ctx, "attachments/u1/a.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Open(ctx, "attachments/u1/a.txt"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("Open after delete: want ErrObjectNotFound got %v", err)
	}
}

func TestCleanKeyRejectsTraversal(t *testing.T) {
	for _, k := range []string{"", "../etc/passwd", "/abs/key", "a/../../b"} {
		if _, err := CleanKey(k); err == nil {
			t.Fatalf("CleanKey(%q) should fail", k)
		}
	}
	if got, err := CleanKey("a/b/c.png"); err != nil || got != "a/b/c.png" {
		t.Fatalf("CleanKey valid: got=%q err=%v", got, err)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{Mode: "s3"}).Validate(); err == nil {
		t.Fatalf("unknown mode should fail")
	}
	if err := (Config{Mode: ModeGCS}).Validate(); err == nil {
		t.Fatalf("gcs without bucket should fail")
	}
	if err := (Config{Mode: ModeLocal, LocalDir: "x"}).Validate(); err != nil {
		t.Fatalf("local valid: %v", err)
	}
}
