package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/huddle-backend/internal/data/repos"
	jobchat "github.com/yungbote/huddle-backend/internal/jobs/chat"
	jobrt "github.com/yungbote/huddle-backend/internal/jobs/runtime"
	"github.com/yungbote/huddle-backend/internal/jobs/worker"
	"github.com/yungbote/huddle-backend/internal/observability"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
	"github.com/yungbote/huddle-backend/internal/platform/postcommit"
	"github.com/yungbote/huddle-backend/internal/platform/ratelimit"
	"github.com/yungbote/huddle-backend/internal/realtime"
	"github.com/yungbote/huddle-backend/internal/services"
)

type Services struct {
	Auth        services.AuthService
	Idempotency services.IdempotencyGate
	Unread      services.UnreadCounter
	Presence    services.PresenceStore
	Notifier    services.ChatNotifier
	Jobs        services.JobService
	Chat        services.ChatService
	Groups      services.GroupService
	Typing      services.TypingService
	Attachments services.AttachmentService
	Realtime    services.RealtimeService

	PostCommit    *postcommit.Queue
	TypingLimiter *ratelimit.LimiterStore
	JobWorker     *worker.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repo repos.Set, hub *realtime.SSEHub, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	queue := postcommit.NewQueue(log, postcommit.QueueConfig{
		Shards:   cfg.PostCommitShards,
		Buffer:   cfg.PostCommitBuffer,
		OnResult: metrics.ObservePostCommit,
		OnDrop:   func(string) { metrics.IncPostCommitDropped() },
	})
	coord := postcommit.NewCoordinator(db, queue)

	var emitter services.SSEEmitter = &services.HubEmitter{Hub: hub}
	if clients.Bus != nil {
		emitter = &services.BusEmitter{Bus: clients.Bus, Fallback: hub, Log: log, Metrics: metrics}
	}
	notify := services.NewChatNotifier(emitter)

	idem := services.NewIdempotencyGate(clients.KV, log, services.IdempotencyConfig{
		RecordTTL: cfg.IdempotencyTTL,
		Wait:      cfg.IdempotencyWait,
	}, metrics)
	unread := services.NewUnreadCounter(clients.KV, log)
	presence := services.NewPresenceStore(clients.KV, log)
	jobs := services.NewJobService(db, log, repo.JobRuns)
	limiter := ratelimit.NewLimiterStore(cfg.TypingRatePerMinute, cfg.TypingBurst, 0)

	chat := services.NewChatService(db, log, coord, repo, idem, unread, presence, notify, jobs, clients.Files, metrics)
	groups := services.NewGroupService(db, log, coord, repo, idem, unread, notify)
	typing := services.NewTypingService(log, repo, limiter, notify, metrics)

	registry := jobrt.NewRegistry()
	if err := registry.Register(jobchat.NewAttachmentsProcessor(log, repo.Messages, repo.Attachments, clients.Files)); err != nil {
		return Services{}, fmt.Errorf("register job handlers: %w", err)
	}
	jobWorker := worker.NewWorker(db, log, repo.JobRuns, registry, metrics, worker.Config{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
		MaxAttempts:  cfg.WorkerMaxAttempts,
	})

	return Services{
		Auth:          services.NewAuthService(log, cfg.JWTSecretKey),
		Idempotency:   idem,
		Unread:        unread,
		Presence:      presence,
		Notifier:      notify,
		Jobs:          jobs,
		Chat:          chat,
		Groups:        groups,
		Typing:        typing,
		Attachments:   services.NewAttachmentService(log, repo.Attachments, clients.Files),
		Realtime:      services.NewRealtimeService(log, hub, repo, typing),
		PostCommit:    queue,
		TypingLimiter: limiter,
		JobWorker:     jobWorker,
	}, nil
}
