package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/huddle-backend/internal/observability"
	"github.com/yungbote/huddle-backend/internal/platform/apierr"
	"github.com/yungbote/huddle-backend/internal/platform/kvstore"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

const (
	IdempotencyScopeMessage = "message"
	IdempotencyScopeGroup   = "group"

	idemPendingMarker = "pending"
)

const errIdempotencyInFlight = "a request with this idempotency key is still in progress"

type IdempotencyConfig struct {
	RecordTTL    time.Duration
	PendingTTL   time.Duration
	Wait         time.Duration
	PollInterval time.Duration
}

func (c IdempotencyConfig) withDefaults() IdempotencyConfig {
	if c.RecordTTL <= 0 {
		c.RecordTTL = 24 * time.Hour
	}
	if c.PendingTTL <= 0 {
		c.PendingTTL = 30 * time.Second
	}
	if c.Wait <= 0 {
		c.Wait = 3 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	return c
}

// IdempotencyGate turns client retries of a create call into a single write.
// An empty token disables the gate for that call.
type IdempotencyGate interface {
	// Reserve returns hit=true with the committed id, or hit=false once the
	// caller owns the reservation. A reservation held by another attempt is
	// awaited for a bounded time before failing with InvalidOperation.
	Reserve(ctx context.Context, scope string, principal uuid.UUID, token string) (uuid.UUID, bool, error)
	Commit(ctx context.Context, scope string, principal uuid.UUID, token string, id uuid.UUID)
	Release(ctx context.Context, scope string, principal uuid.UUID, token string)
}

type idempotencyGate struct {
	kv      kvstore.Store
	log     *logger.Logger
	cfg     IdempotencyConfig
	metrics *observability.Metrics
}

func NewIdempotencyGate(kv kvstore.Store, baseLog *logger.Logger, cfg IdempotencyConfig, metrics *observability.Metrics) IdempotencyGate {
	return &idempotencyGate{
		kv:      kv,
		log:     baseLog.With("service", "IdempotencyGate"),
		cfg:     cfg.withDefaults(),
		metrics: metrics,
	}
}

func idempotencyKey(scope string, principal uuid.UUID, token string) string {
	return fmt.Sprintf("idem:%s:%s:%s", scope, principal, token)
}

func (g *idempotencyGate) Reserve(ctx context.Context, scope string, principal uuid.UUID, token string) (uuid.UUID, bool, error) {
	token = strings.TrimSpace(token)
	if token == "" || g.kv == nil {
		return uuid.Nil, false, nil
	}
	key := idempotencyKey(scope, principal, token)
	deadline := time.Now().Add(g.cfg.Wait)

	for {
		acquired, err := g.kv.SetNX(ctx, key, idemPendingMarker, g.cfg.PendingTTL)
		if err != nil {
			g.degraded("SetNX", key, err)
			return uuid.Nil, false, nil
		}
		if acquired {
			g.metrics.IncIdempotency(scope, "miss")
			return uuid.Nil, false, nil
		}

		val, ok, err := g.kv.Get(ctx, key)
		if err != nil {
			g.degraded("Get", key, err)
			return uuid.Nil, false, nil
		}
		if ok && val != idemPendingMarker {
			id, perr := uuid.Parse(val)
			if perr == nil {
				g.metrics.IncIdempotency(scope, "hit")
				return id, true, nil
			}
			g.log.Warn("Discarding malformed idempotency record", "key", key, "error", perr)
			if err := g.kv.Delete(ctx, key); err != nil {
				g.degraded("Delete", key, err)
				return uuid.Nil, false, nil
			}
			continue
		}
		if !ok && time.Now().Before(deadline) {
			// Released or expired between SetNX and Get; try to take it.
			continue
		}

		if time.Now().After(deadline) {
			g.metrics.IncIdempotency(scope, "pending")
			return uuid.Nil, false, apierr.InvalidOperation(errIdempotencyInFlight)
		}
		select {
		case <-ctx.Done():
			return uuid.Nil, false, ctx.Err()
		case <-time.After(g.cfg.PollInterval):
		}
	}
}

func (g *idempotencyGate) Commit(ctx context.Context, scope string, principal uuid.UUID, token string, id uuid.UUID) {
	token = strings.TrimSpace(token)
	if token == "" || g.kv == nil || id == uuid.Nil {
		return
	}
	key := idempotencyKey(scope, principal, token)
	if err := g.kv.Set(ctx, key, id.String(), g.cfg.RecordTTL); err != nil {
		g.degraded("Set", key, err)
	}
}

func (g *idempotencyGate) Release(ctx context.Context, scope string, principal uuid.UUID, token string) {
	token = strings.TrimSpace(token)
	if token == "" || g.kv == nil {
		return
	}
	key := idempotencyKey(scope, principal, token)
	val, ok, err := g.kv.Get(ctx, key)
	if err != nil {
		g.degraded("Get", key, err)
		return
	}
	if !ok || val != idemPendingMarker {
		return
	}
	if err := g.kv.Delete(ctx, key); err != nil {
		g.degraded("Delete", key, err)
	}
}

func (g *idempotencyGate) degraded(op, key string, err error) {
	g.log.Warn("Idempotency store unavailable; treating as miss", "op", op, "key", key, "error", err)
	g.metrics.IncIdempotency("store", "error")
}
