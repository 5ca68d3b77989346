package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/huddle-backend/internal/data/repos"
	types "github.com/yungbote/huddle-backend/internal/domain"
	"github.com/yungbote/huddle-backend/internal/jobs/runtime"
	"github.com/yungbote/huddle-backend/internal/observability"
	"github.com/yungbote/huddle-backend/internal/platform/dbctx"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
	Heartbeat    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 2
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 30 * time.Second
	}
	if c.StaleRunning <= 0 {
		c.StaleRunning = 10 * time.Minute
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 30 * time.Second
	}
	return c
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
	metrics  *observability.Metrics
	cfg      Config
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry, metrics *observability.Metrics, cfg Config) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
	}
}

// Run polls for jobs on Concurrency loops until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting job worker pool", "concurrency", w.cfg.Concurrency, "job_types", w.registry.Types())
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			w.runLoop(gctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// Drain the queue before waiting for the next tick.
			for ctx.Err() == nil {
				ran, err := w.RunOnce(ctx)
				if err != nil {
					w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
					break
				}
				if !ran {
					break
				}
			}
		}
	}
}

// RunOnce claims and executes at most one job. It reports whether a job ran.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.MaxAttempts, w.cfg.RetryDelay, w.cfg.StaleRunning)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.execute(ctx, job)
	return true, nil
}

func (w *Worker) execute(ctx context.Context, job *types.JobRun) {
	start := time.Now()
	jlog := w.log.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)
	jc := runtime.NewContext(ctx, w.db, job, w.repo, jlog)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		jlog.Warn("No handler registered for job_type")
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		w.metrics.ObserveJob(job.JobType, job.Status, time.Since(start))
		return
	}

	stopBeat := w.heartbeat(ctx, job)
	func() {
		defer func() {
			if r := recover(); r != nil {
				jlog.Error("Job handler panic", "panic", r)
				jc.Fail("panic", &panicError{Val: r})
			}
		}()
		if runErr := h.Run(jc); runErr != nil && !jc.Done() {
			jc.Fail("run", runErr)
		}
	}()
	stopBeat()

	if !jc.Done() {
		jc.Succeed("done", nil)
	}
	if job.Status == types.JobStatusFailed {
		jlog.Warn("Job failed", "stage", job.Stage, "error", job.Error)
	} else {
		jlog.Debug("Job finished", "duration", time.Since(start))
	}
	w.metrics.ObserveJob(job.JobType, job.Status, time.Since(start))
}

// heartbeat keeps a long run from being reclaimed as stale.
func (w *Worker) heartbeat(ctx context.Context, job *types.JobRun) func() {
	hctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(w.cfg.Heartbeat)
		defer t.Stop()
		for {
			select {
			case <-hctx.Done():
				return
			case <-t.C:
				if err := w.repo.Heartbeat(dbctx.Context{Ctx: hctx}, job.ID); err != nil {
					w.log.Warn("Job heartbeat failed", "job_id", job.ID, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
