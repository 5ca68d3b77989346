package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("send: %w", Forbidden("You are not a participant in this conversation."))
	if got := KindOf(err); got != KindForbidden {
		t.Fatalf("KindOf: want=%s got=%s", KindForbidden, got)
	}
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("errors.Is should match ErrForbidden")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("errors.Is should not match ErrNotFound")
	}
	var e *Error
	if !errors.As(err, &e) || e.Status != http.StatusForbidden {
		t.Fatalf("expected 403 *Error, got %#v", e)
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Fatalf("KindOf plain: want=%s got=%s", KindInternal, got)
	}
	if got := InvalidOperation("x").Error(); got != "x" {
		t.Fatalf("Error(): want=x got=%s", got)
	}
}
