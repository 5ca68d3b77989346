package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/huddle-backend/internal/data/repos/testutil"
	"github.com/yungbote/huddle-backend/internal/platform/apierr"
	"github.com/yungbote/huddle-backend/internal/platform/kvstore"
)

type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Get(context.Context, string) (string, bool, error) { return "", false, errStoreDown }
func (failingStore) MGet(context.Context, []string) (map[string]string, error) {
	return nil, errStoreDown
}
func (failingStore) Set(context.Context, string, string, time.Duration) error { return errStoreDown }
func (failingStore) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errStoreDown
}
func (failingStore) Delete(context.Context, ...string) error { return errStoreDown }
func (failingStore) IncrIfExists(context.Context, string, int64) (int64, bool, error) {
	return 0, false, errStoreDown
}
func (failingStore) Close() error { return nil }

// stuckRecordStore holds a malformed record that can be neither claimed nor
// deleted.
type stuckRecordStore struct {
	failingStore
	deletes int
}

func (*stuckRecordStore) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, nil
}
func (*stuckRecordStore) Get(context.Context, string) (string, bool, error) {
	return "not-a-uuid", true, nil
}
func (s *stuckRecordStore) Delete(context.Context, ...string) error {
	s.deletes++
	return errStoreDown
}

func newGate(t *testing.T, kv kvstore.Store, wait time.Duration) IdempotencyGate {
	t.Helper()
	return NewIdempotencyGate(kv, testutil.Logger(t), IdempotencyConfig{Wait: wait, PollInterval: 5 * time.Millisecond}, nil)
}

func TestIdempotencyMissCommitHit(t *testing.T) {
	ctx := context.Background()
	g := newGate(t, kvstore.NewMemoryStore(), 50*time.Millisecond)
	user := uuid.New()

	if _, hit, err := g.Reserve(ctx, IdempotencyScopeMessage, user, "k1"); err != nil || hit {
		t.Fatalf("first reserve: hit=%v err=%v", hit, err)
	}
	id := uuid.New()
	g.Commit(ctx, IdempotencyScopeMessage, user, "k1", id)

	got, hit, err := g.Reserve(ctx, IdempotencyScopeMessage, user, "k1")
	if err != nil || !hit || got != id {
		t.Fatalf("expected hit %s, got %s hit=%v err=%v", id, got, hit, err)
	}

	// Tokens are scoped per principal and per operation.
	if _, hit, _ := g.Reserve(ctx, IdempotencyScopeMessage, uuid.New(), "k1"); hit {
		t.Fatalf("token leaked across principals")
	}
	if _, hit, _ := g.Reserve(ctx, IdempotencyScopeGroup, user, "k1"); hit {
		t.Fatalf("token leaked across scopes")
	}
}

func TestIdempotencyEmptyTokenBypasses(t *testing.T) {
	g := newGate(t, kvstore.NewMemoryStore(), 50*time.Millisecond)
	for i := 0; i < 2; i++ {
		if _, hit, err := g.Reserve(context.Background(), IdempotencyScopeMessage, uuid.New(), "  "); err != nil || hit {
			t.Fatalf("blank token should bypass the gate: hit=%v err=%v", hit, err)
		}
	}
}

func TestIdempotencyPendingTimesOut(t *testing.T) {
	ctx := context.Background()
	g := newGate(t, kvstore.NewMemoryStore(), 30*time.Millisecond)
	user := uuid.New()

	if _, _, err := g.Reserve(ctx, IdempotencyScopeMessage, user, "k"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	_, _, err := g.Reserve(ctx, IdempotencyScopeMessage, user, "k")
	expectKind(t, err, apierr.KindInvalidOperation)
}

func TestIdempotencyReleaseAllowsRetry(t *testing.T) {
	ctx := context.Background()
	g := newGate(t, kvstore.NewMemoryStore(), 30*time.Millisecond)
	user := uuid.New()

	if _, _, err := g.Reserve(ctx, IdempotencyScopeMessage, user, "k"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	g.Release(ctx, IdempotencyScopeMessage, user, "k")
	if _, hit, err := g.Reserve(ctx, IdempotencyScopeMessage, user, "k"); err != nil || hit {
		t.Fatalf("reserve after release: hit=%v err=%v", hit, err)
	}

	// Release never removes a committed record.
	id := uuid.New()
	g.Commit(ctx, IdempotencyScopeMessage, user, "k", id)
	g.Release(ctx, IdempotencyScopeMessage, user, "k")
	if got, hit, _ := g.Reserve(ctx, IdempotencyScopeMessage, user, "k"); !hit || got != id {
		t.Fatalf("committed record was released")
	}
}

func TestIdempotencyWaiterSeesCommit(t *testing.T) {
	ctx := context.Background()
	g := newGate(t, kvstore.NewMemoryStore(), 2*time.Second)
	user := uuid.New()
	if _, _, err := g.Reserve(ctx, IdempotencyScopeMessage, user, "k"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	id := uuid.New()
	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Commit(ctx, IdempotencyScopeMessage, user, "k", id)
	}()
	got, hit, err := g.Reserve(ctx, IdempotencyScopeMessage, user, "k")
	if err != nil || !hit || got != id {
		t.Fatalf("waiter expected %s, got %s hit=%v err=%v", id, got, hit, err)
	}
}

func TestIdempotencyStoreFailureDegradesToMiss(t *testing.T) {
	g := newGate(t, failingStore{}, 30*time.Millisecond)
	if _, hit, err := g.Reserve(context.Background(), IdempotencyScopeMessage, uuid.New(), "k"); err != nil || hit {
		t.Fatalf("expected degraded miss, hit=%v err=%v", hit, err)
	}
}

func TestIdempotencyMalformedRecordUndeletableDegradesToMiss(t *testing.T) {
	kv := &stuckRecordStore{}
	g := newGate(t, kv, time.Hour)
	done := make(chan error, 1)
	go func() {
		_, hit, err := g.Reserve(context.Background(), IdempotencyScopeMessage, uuid.New(), "k")
		if hit {
			err = errors.New("unexpected hit")
		}
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected degraded miss, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Reserve kept retrying an undeletable record")
	}
	if kv.deletes != 1 {
		t.Fatalf("expected a single delete attempt, got %d", kv.deletes)
	}
}
