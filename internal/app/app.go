package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/huddle-backend/internal/data/db"
	"github.com/yungbote/huddle-backend/internal/data/repos"
	"github.com/yungbote/huddle-backend/internal/http"
	"github.com/yungbote/huddle-backend/internal/observability"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
	"github.com/yungbote/huddle-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Metrics  *observability.Metrics
	Clients  Clients
	Repos    repos.Set
	Services Services
	Hub      *realtime.SSEHub
	Server   *http.Server

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, cfg.Tracing)
	metrics := observability.Init(log)

	pg, err := db.NewPostgresService(log, cfg.Postgres)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	hub := realtime.NewSSEHub(log)
	hub.SetHooks(realtime.HubHooks{
		OnDrop:    metrics.IncRealtimeDropped,
		OnClients: metrics.SetRealtimeClients,
	})

	log.Info("Wiring repos...")
	reposet := repos.NewSet(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, reposet, hub, clients, metrics)
	if err != nil {
		clients.Close()
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, theDB, cfg, serviceset, hub)
	middleware := wireMiddleware(log, serviceset)
	server := http.NewServer(cfg.HTTPAddr, routerConfig(log, cfg, metrics, serviceset, handlerset, middleware))

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Metrics:      metrics,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Hub:          hub,
		Server:       server,
		pg:           pg,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves HTTP and runs the job worker until ctx is canceled or one of
// them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	a.Services.PostCommit.Start()
	if a.Clients.Bus != nil {
		if err := a.Clients.Bus.StartForwarder(gctx, a.Hub.Deliver); err != nil {
			return fmt.Errorf("start realtime forwarder: %w", err)
		}
	}

	a.Metrics.StartPostgresCollector(gctx, a.Log, a.DB)
	a.Metrics.StartRedisCollector(gctx, a.Log, a.Clients.Redis)
	a.Metrics.StartJobQueueCollector(gctx, a.Log, a.DB)

	g.Go(func() error {
		return a.Services.JobWorker.Run(gctx)
	})
	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
		return a.Server.Run(gctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close drains post-commit work and releases clients. Call it after Run returns.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Services.PostCommit != nil {
		a.Services.PostCommit.Close()
	}
	if a.Services.TypingLimiter != nil {
		a.Services.TypingLimiter.Stop()
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
