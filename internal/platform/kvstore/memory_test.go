package kvstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStoreWithClock(clock.Now)

	if err := s.Set(ctx, "user_online_a", "1", 5*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	clock.Advance(4 * time.Minute)
	if _, ok, _ := s.Get(ctx, "user_online_a"); !ok {
		t.Fatalf("key should still be live after 4m")
	}
	clock.Advance(time.Minute)
	if _, ok, _ := s.Get(ctx, "user_online_a"); ok {
		t.Fatalf("key should have expired at 5m")
	}
}

func TestMemoryStoreSetNX(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ok, _ := s.SetNX(ctx, "k", "pending", time.Minute)
	if !ok {
		t.Fatalf("first SetNX should win")
	}
	ok, _ = s.SetNX(ctx, "k", "other", time.Minute)
	if ok {
		t.Fatalf("second SetNX should lose")
	}
	v, _, _ := s.Get(ctx, "k")
	if v != "pending" {
		t.Fatalf("value: want=pending got=%s", v)
	}
}

func TestMemoryStoreIncrIfExists(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, ok, err := s.IncrIfExists(ctx, "user_unread_count_a", 1); ok || err != nil {
		t.Fatalf("increment on missing key must be a no-op: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := s.Get(ctx, "user_unread_count_a"); ok {
		t.Fatalf("increment must not create the key")
	}

	_ = s.Set(ctx, "user_unread_count_a", "3", time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = s.IncrIfExists(ctx, "user_unread_count_a", 1)
		}()
	}
	wg.Wait()
	v, _, _ := s.Get(ctx, "user_unread_count_a")
	if v != "53" {
		t.Fatalf("value after concurrent increments: want=53 got=%s", v)
	}
}

func TestMemoryStoreMGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, "a", "1", 0)
	_ = s.Set(ctx, "c", "3", 0)
	got, err := s.MGet(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("MGet: %v", err)
	}
	if len(got) != 2 || got["a"] != "1" || got["c"] != "3" {
		t.Fatalf("MGet: unexpected %#v", got)
	}
}

func TestMemoryStoreSweepDropsUnreadExpiredKeys(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := newMemoryStore(clock.Now)

	for _, k := range []string{"user_online_a", "user_online_b"} {
		if err := s.Set(ctx, k, "1", 5*time.Minute); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if err := s.Set(ctx, "unread_a", "3", time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "pinned", "1", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	clock.Advance(6 * time.Minute)
	if n := s.sweep(); n != 2 {
		t.Fatalf("expected 2 expired keys swept, got %d", n)
	}
	s.mu.Lock()
	left := len(s.data)
	s.mu.Unlock()
	if left != 2 {
		t.Fatalf("expected 2 live keys left, got %d", left)
	}
}

func TestSweepingMemoryStoreCloseStopsSweeper(t *testing.T) {
	s := NewSweepingMemoryStore(time.Millisecond)
	if err := s.Set(context.Background(), "k", "v", time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	ms := s.(*memoryStore)
	for {
		ms.mu.Lock()
		n := len(ms.data)
		ms.mu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sweeper never removed the expired key")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
