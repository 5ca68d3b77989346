package kvstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value   string
	expires time.Time
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]memoryEntry
	now  func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore returns a process-local Store. Used in tests and single-node dev.
func NewMemoryStore() Store {
	return NewMemoryStoreWithClock(time.Now)
}

func NewMemoryStoreWithClock(now func() time.Time) Store {
	return newMemoryStore(now)
}

// NewSweepingMemoryStore also drops expired keys every interval, so keys that
// are never read again do not pile up. Close stops the sweeper.
func NewSweepingMemoryStore(every time.Duration) Store {
	s := newMemoryStore(time.Now)
	if every > 0 {
		go s.sweepLoop(every)
	}
	return s
}

func newMemoryStore(now func() time.Time) *memoryStore {
	if now == nil {
		now = time.Now
	}
	return &memoryStore{data: make(map[string]memoryEntry), now: now, stopCh: make(chan struct{})}
}

func (s *memoryStore) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep removes every expired entry and reports how many it dropped.
func (s *memoryStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for k, e := range s.data {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(s.data, k)
			n++
		}
	}
	return n
}

// lookup must be called with mu held.
func (s *memoryStore) lookup(key string) (memoryEntry, bool) {
	e, ok := s.data[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		delete(s.data, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *memoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	return e.value, ok, nil
}

func (s *memoryStore) MGet(ctx context.Context, keys []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if e, ok := s.lookup(k); ok {
			out[k] = e.value
		}
	}
	return out, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = memoryEntry{value: value, expires: s.expiry(ttl)}
	return nil
}

func (s *memoryStore) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lookup(key); ok {
		return false, nil
	}
	s.data[key] = memoryEntry{value: value, expires: s.expiry(ttl)}
	return true, nil
}

func (s *memoryStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *memoryStore) IncrIfExists(ctx context.Context, key string, delta int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	if !ok {
		return 0, false, nil
	}
	cur, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("kvstore: value at %q is not an integer", key)
	}
	cur += delta
	e.value = strconv.FormatInt(cur, 10)
	s.data[key] = e
	return cur, true, nil
}

func (s *memoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}
