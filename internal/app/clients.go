package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	redisclient "github.com/yungbote/huddle-backend/internal/clients/redis"
	"github.com/yungbote/huddle-backend/internal/platform/kvstore"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
	"github.com/yungbote/huddle-backend/internal/platform/storage"
	"github.com/yungbote/huddle-backend/internal/realtime/bus"
)

type Clients struct {
	Redis *goredis.Client
	KV    kvstore.Store
	Bus   bus.Bus
	Files storage.Store
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Redis
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewClient(ctx, log, redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		out.Redis = rdb
		out.KV = kvstore.NewRedisStore(log, rdb)
	} else {
		log.Warn("REDIS_ADDR not set; idempotency, presence and unread state are process-local")
		out.KV = kvstore.NewSweepingMemoryStore(time.Minute)
	}

	// Realtime bus
	switch cfg.RealtimeBus {
	case BusRedis:
		b, err := bus.NewRedisBus(log, out.Redis, cfg.RedisChannel)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init redis realtime bus: %w", err)
		}
		out.Bus = b
	case BusAMQP:
		b, err := bus.NewAMQPBus(log, cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init amqp realtime bus: %w", err)
		}
		out.Bus = b
	}

	// Attachments
	files, err := storage.New(ctx, log, cfg.StorageConfig())
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init object storage: %w", err)
	}
	out.Files = files

	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	} else if c.KV != nil {
		_ = c.KV.Close()
	}
}
