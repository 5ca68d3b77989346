package postcommit

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/yungbote/huddle-backend/internal/platform/ctxutil"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

type QueueConfig struct {
	Shards int
	Buffer int
	// OnResult observes every finished task; err is nil on success.
	OnResult func(name string, err error)
	// OnDrop is called for tasks rejected by a full shard or a closed queue.
	OnDrop func(name string)
}

type queued struct {
	ctx  context.Context
	task Task
}

// Queue is a sharded in-process task queue. Each shard is a single goroutine,
// so tasks with the same key execute one at a time in FIFO order.
type Queue struct {
	log      *logger.Logger
	shards   []chan queued
	onResult func(name string, err error)
	onDrop   func(name string)

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

func NewQueue(log *logger.Logger, cfg QueueConfig) *Queue {
	if cfg.Shards < 1 {
		cfg.Shards = 8
	}
	if cfg.Buffer < 1 {
		cfg.Buffer = 1024
	}
	q := &Queue{
		log:      log.With("component", "PostCommitQueue"),
		shards:   make([]chan queued, cfg.Shards),
		onResult: cfg.OnResult,
		onDrop:   cfg.OnDrop,
	}
	for i := range q.shards {
		q.shards[i] = make(chan queued, cfg.Buffer)
	}
	return q
}

func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	q.log.Info("Starting post-commit queue", "shards", len(q.shards))
	for i, ch := range q.shards {
		q.wg.Add(1)
		go q.runShard(i, ch)
	}
}

// Submit enqueues t without blocking. A full shard drops the task with a warning.
func (q *Queue) Submit(ctx context.Context, t Task) {
	if t.Run == nil {
		return
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.log.Warn("Post-commit queue closed; dropping task", "task", t.Name)
		q.dropped(t.Name)
		return
	}
	ch := q.shards[q.shardFor(t.Key)]
	select {
	case ch <- queued{ctx: ctxutil.Detached(ctx), task: t}:
	default:
		q.log.Warn("Post-commit shard full; dropping task", "task", t.Name, "key", t.Key)
		q.dropped(t.Name)
	}
}

// Close stops accepting tasks and waits for queued ones to drain.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	started := q.started
	for _, ch := range q.shards {
		close(ch)
	}
	q.mu.Unlock()
	if started {
		q.wg.Wait()
	}
}

func (q *Queue) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(q.shards)))
}

func (q *Queue) runShard(idx int, ch <-chan queued) {
	defer q.wg.Done()
	for item := range ch {
		q.execute(idx, item)
	}
}

func (q *Queue) execute(idx int, item queued) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("Post-commit task panic", "shard", idx, "task", item.task.Name, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			q.log.Warn("Post-commit task failed", "shard", idx, "task", item.task.Name, "key", item.task.Key, "error", err)
		}
		q.report(item.task.Name, err)
	}()
	err = item.task.Run(item.ctx)
}

func (q *Queue) dropped(name string) {
	if q.onDrop != nil {
		q.onDrop(name)
	}
}

func (q *Queue) report(name string, err error) {
	if q.onResult != nil {
		q.onResult(name, err)
	}
}

// Inline runs tasks synchronously in Submit. It keeps the failure policy of
// Queue (log, recover, never return) and is meant for tests and tools.
type Inline struct {
	Log *logger.Logger
}

func (r Inline) Submit(ctx context.Context, t Task) {
	if t.Run == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil && r.Log != nil {
			r.Log.Error("Post-commit task panic", "task", t.Name, "panic", rec)
		}
	}()
	if err := t.Run(ctxutil.Detached(ctx)); err != nil && r.Log != nil {
		r.Log.Warn("Post-commit task failed", "task", t.Name, "key", t.Key, "error", err)
	}
}
