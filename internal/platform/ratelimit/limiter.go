package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterStore keeps one token bucket per key and forgets idle keys.
type LimiterStore struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	entries  map[string]*limiterEntry
	stopOnce sync.Once
	stopCh   chan struct{}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiterStore allows perMinute events per key with the given burst.
// A cleanupInterval of zero disables the background sweeper.
func NewLimiterStore(perMinute int, burst int, cleanupInterval time.Duration) *LimiterStore {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	s := &LimiterStore{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		entries: map[string]*limiterEntry{},
		stopCh:  make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go s.cleanupLoop(cleanupInterval)
	}
	return s
}

func (s *LimiterStore) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.stopCh:
			return
		}
	}
}

func (s *LimiterStore) sweep(now time.Time) {
	cutoff := now.Add(-s.idleTTL)
	s.mu.Lock()
	for k, v := range s.entries {
		if v.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
	s.mu.Unlock()
}

func (s *LimiterStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *LimiterStore) Allow(key string) bool {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.entries[key] = e
	}
	e.lastSeen = time.Now()
	s.mu.Unlock()
	return e.limiter.Allow()
}

func (s *LimiterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
