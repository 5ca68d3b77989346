package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/huddle-backend/internal/data/repos/testutil"
	"github.com/yungbote/huddle-backend/internal/platform/kvstore"
)

func TestPresenceTouchAndOnlineMap(t *testing.T) {
	ctx := context.Background()
	p := NewPresenceStore(kvstore.NewMemoryStore(), testutil.Logger(t))
	a, b := uuid.New(), uuid.New()

	if p.IsOnline(ctx, a) {
		t.Fatalf("unknown user reported online")
	}
	p.Touch(ctx, a)
	if !p.IsOnline(ctx, a) {
		t.Fatalf("touched user reported offline")
	}
	m := p.OnlineMap(ctx, []uuid.UUID{a, b})
	if len(m) != 2 || !m[a] || m[b] {
		t.Fatalf("unexpected online map %v", m)
	}
}

func TestPresenceStoreFailureReportsOffline(t *testing.T) {
	ctx := context.Background()
	p := NewPresenceStore(failingStore{}, testutil.Logger(t))
	a := uuid.New()
	p.Touch(ctx, a)
	if p.IsOnline(ctx, a) {
		t.Fatalf("failing store must report offline")
	}
	if m := p.OnlineMap(ctx, []uuid.UUID{a}); m[a] {
		t.Fatalf("failing store must report offline in batch")
	}
}

func TestUnreadCounterCachesAndIncrements(t *testing.T) {
	ctx := context.Background()
	u := NewUnreadCounter(kvstore.NewMemoryStore(), testutil.Logger(t))
	user := uuid.New()

	// Increment before any Get leaves the counter absent.
	if err := u.Increment(ctx, user); err != nil {
		t.Fatalf("increment: %v", err)
	}
	var calls int32
	rebuild := func(context.Context) (int64, error) {
		atomic.AddInt32(&calls, 1)
		return 4, nil
	}
	if n, err := u.Get(ctx, user, rebuild); err != nil || n != 4 {
		t.Fatalf("get: %d %v", n, err)
	}
	if err := u.Increment(ctx, user); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if n, _ := u.Get(ctx, user, rebuild); n != 5 {
		t.Fatalf("expected cached 5, got %d", n)
	}
	if calls != 1 {
		t.Fatalf("expected one rebuild, got %d", calls)
	}

	u.Invalidate(ctx, user)
	if n, _ := u.Get(ctx, user, rebuild); n != 4 || calls != 2 {
		t.Fatalf("invalidate should force a rebuild, got n=%d calls=%d", n, calls)
	}
}

func TestUnreadCounterCoalescesRebuilds(t *testing.T) {
	ctx := context.Background()
	u := NewUnreadCounter(kvstore.NewMemoryStore(), testutil.Logger(t))
	user := uuid.New()

	var calls int32
	release := make(chan struct{})
	rebuild := func(context.Context) (int64, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 7, nil
	}
	var wg sync.WaitGroup
	results := make([]int64, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = u.Get(ctx, user, rebuild)
		}(i)
	}
	time.Sleep(30 * time.Millisecond)
	close(release)
	wg.Wait()
	for _, n := range results {
		if n != 7 {
			t.Fatalf("unexpected result %v", results)
		}
	}
	if c := atomic.LoadInt32(&calls); c < 1 || c > 2 {
		t.Fatalf("rebuilds were not coalesced: %d", c)
	}
}
