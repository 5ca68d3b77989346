package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/huddle-backend/internal/platform/kvstore"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

const presenceTTL = 5 * time.Minute

// PresenceStore tracks who has been active recently. Reads are best effort:
// a failing store reports everyone offline.
type PresenceStore interface {
	Touch(ctx context.Context, userID uuid.UUID)
	IsOnline(ctx context.Context, userID uuid.UUID) bool
	OnlineMap(ctx context.Context, userIDs []uuid.UUID) map[uuid.UUID]bool
}

type presenceStore struct {
	kv  kvstore.Store
	log *logger.Logger
	ttl time.Duration
}

func NewPresenceStore(kv kvstore.Store, baseLog *logger.Logger) PresenceStore {
	return &presenceStore{kv: kv, log: baseLog.With("service", "PresenceStore"), ttl: presenceTTL}
}

func presenceKey(userID uuid.UUID) string { return "user_online_" + userID.String() }

func (p *presenceStore) Touch(ctx context.Context, userID uuid.UUID) {
	if p.kv == nil || userID == uuid.Nil {
		return
	}
	if err := p.kv.Set(ctx, presenceKey(userID), "1", p.ttl); err != nil {
		p.log.Warn("Presence touch failed", "user_id", userID, "error", err)
	}
}

func (p *presenceStore) IsOnline(ctx context.Context, userID uuid.UUID) bool {
	if p.kv == nil || userID == uuid.Nil {
		return false
	}
	_, ok, err := p.kv.Get(ctx, presenceKey(userID))
	if err != nil {
		p.log.Warn("Presence lookup failed", "user_id", userID, "error", err)
		return false
	}
	return ok
}

func (p *presenceStore) OnlineMap(ctx context.Context, userIDs []uuid.UUID) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		out[id] = false
		keys = append(keys, presenceKey(id))
	}
	if p.kv == nil {
		return out
	}
	found, err := p.kv.MGet(ctx, keys)
	if err != nil {
		p.log.Warn("Presence batch lookup failed", "count", len(keys), "error", err)
		return out
	}
	for _, id := range userIDs {
		if _, ok := found[presenceKey(id)]; ok {
			out[id] = true
		}
	}
	return out
}
