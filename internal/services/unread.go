package services

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/huddle-backend/internal/platform/kvstore"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

const unreadTTL = time.Hour

// UnreadCounter caches the per-user unread total. The durable watermark
// query is the source of truth; the cache only saves recomputation.
type UnreadCounter interface {
	Get(ctx context.Context, userID uuid.UUID, rebuild func(ctx context.Context) (int64, error)) (int64, error)
	Increment(ctx context.Context, userID uuid.UUID) error
	Invalidate(ctx context.Context, userID uuid.UUID)
}

type unreadCounter struct {
	kv    kvstore.Store
	log   *logger.Logger
	group singleflight.Group
}

func NewUnreadCounter(kv kvstore.Store, baseLog *logger.Logger) UnreadCounter {
	return &unreadCounter{kv: kv, log: baseLog.With("service", "UnreadCounter")}
}

func unreadKey(userID uuid.UUID) string { return "user_unread_count_" + userID.String() }

func (u *unreadCounter) Get(ctx context.Context, userID uuid.UUID, rebuild func(ctx context.Context) (int64, error)) (int64, error) {
	key := unreadKey(userID)
	if u.kv != nil {
		val, ok, err := u.kv.Get(ctx, key)
		if err != nil {
			u.log.Warn("Unread cache read failed; recomputing", "user_id", userID, "error", err)
		} else if ok {
			if n, perr := strconv.ParseInt(val, 10, 64); perr == nil {
				return n, nil
			}
		}
	}

	v, err, _ := u.group.Do(key, func() (interface{}, error) {
		n, err := rebuild(ctx)
		if err != nil {
			return int64(0), err
		}
		if u.kv != nil {
			if serr := u.kv.Set(ctx, key, strconv.FormatInt(n, 10), unreadTTL); serr != nil {
				u.log.Warn("Unread cache write failed", "user_id", userID, "error", serr)
			}
		}
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Increment bumps a cached counter. A missing counter stays missing so the
// next Get recomputes it from the watermark.
func (u *unreadCounter) Increment(ctx context.Context, userID uuid.UUID) error {
	if u.kv == nil || userID == uuid.Nil {
		return nil
	}
	_, _, err := u.kv.IncrIfExists(ctx, unreadKey(userID), 1)
	return err
}

func (u *unreadCounter) Invalidate(ctx context.Context, userID uuid.UUID) {
	if u.kv == nil || userID == uuid.Nil {
		return
	}
	if err := u.kv.Delete(ctx, unreadKey(userID)); err != nil {
		u.log.Warn("Unread cache invalidate failed", "user_id", userID, "error", err)
	}
}
