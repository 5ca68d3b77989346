package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/huddle-backend/internal/data/repos"
	"github.com/yungbote/huddle-backend/internal/observability"
	"github.com/yungbote/huddle-backend/internal/platform/apierr"
	"github.com/yungbote/huddle-backend/internal/platform/dbctx"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
	"github.com/yungbote/huddle-backend/internal/platform/ratelimit"
)

// TypingService relays typing indicators. Nothing is persisted.
type TypingService interface {
	// Notify reports whether the indicator was relayed; rate limited calls
	// are dropped without error.
	Notify(ctx context.Context, conversationID, userID uuid.UUID, isTyping bool) (bool, error)
}

type typingService struct {
	log     *logger.Logger
	repo    repos.Set
	limiter *ratelimit.LimiterStore
	notify  ChatNotifier
	metrics *observability.Metrics
}

func NewTypingService(baseLog *logger.Logger, repo repos.Set, limiter *ratelimit.LimiterStore, notify ChatNotifier, metrics *observability.Metrics) TypingService {
	return &typingService{
		log:     baseLog.With("service", "TypingService"),
		repo:    repo,
		limiter: limiter,
		notify:  notify,
		metrics: metrics,
	}
}

func (s *typingService) Notify(ctx context.Context, conversationID, userID uuid.UUID, isTyping bool) (bool, error) {
	dbc := dbctx.Context{Ctx: ctx}
	member, err := s.repo.Participants.Get(dbc, conversationID, userID)
	if err != nil {
		return false, err
	}
	if member == nil {
		return false, apierr.Forbidden(msgNotParticipant)
	}
	// Stopping is always relayed so indicators never get stuck on.
	if isTyping && s.limiter != nil && !s.limiter.Allow(userID.String()+":"+conversationID.String()) {
		s.metrics.IncTypingLimited()
		return false, nil
	}
	name := ""
	if u, err := s.repo.Users.GetByID(dbc, userID); err != nil {
		s.log.Warn("Typing: user lookup failed", "user_id", userID, "error", err)
	} else if u != nil {
		name = u.Name
	}
	s.notify.Typing(ctx, conversationID, userID, name, isTyping)
	return true, nil
}
