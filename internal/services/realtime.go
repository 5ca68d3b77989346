package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/huddle-backend/internal/data/repos"
	"github.com/yungbote/huddle-backend/internal/platform/apierr"
	"github.com/yungbote/huddle-backend/internal/platform/dbctx"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
	"github.com/yungbote/huddle-backend/internal/realtime"
)

// RealtimeService authorizes channel subscriptions against current
// membership and executes websocket frames. It satisfies realtime.FrameHandler.
type RealtimeService interface {
	realtime.FrameHandler
	Authorize(ctx context.Context, userID uuid.UUID, channel string) error
}

type realtimeService struct {
	log    *logger.Logger
	hub    *realtime.SSEHub
	repo   repos.Set
	typing TypingService
}

func NewRealtimeService(baseLog *logger.Logger, hub *realtime.SSEHub, repo repos.Set, typing TypingService) RealtimeService {
	return &realtimeService{
		log:    baseLog.With("service", "RealtimeService"),
		hub:    hub,
		repo:   repo,
		typing: typing,
	}
}

func (s *realtimeService) Authorize(ctx context.Context, userID uuid.UUID, channel string) error {
	kind, id, err := realtime.ParseChannel(channel)
	if err != nil {
		return apierr.Validation(err.Error())
	}
	switch kind {
	case realtime.ChannelUser:
		if id != userID {
			return apierr.Forbidden("You cannot subscribe to another user's channel.")
		}
		return nil
	case realtime.ChannelConversation:
		member, err := s.repo.Participants.Get(dbctx.Context{Ctx: ctx}, id, userID)
		if err != nil {
			return err
		}
		if member == nil {
			return apierr.Forbidden(msgNotParticipant)
		}
		return nil
	}
	return apierr.Validation("unsupported channel")
}

func (s *realtimeService) Subscribe(ctx context.Context, client *realtime.SSEClient, channel string) error {
	if err := s.Authorize(ctx, client.UserID, channel); err != nil {
		return err
	}
	s.hub.AddChannel(client, channel)
	return nil
}

func (s *realtimeService) Unsubscribe(ctx context.Context, client *realtime.SSEClient, channel string) {
	s.hub.RemoveChannel(client, channel)
}

func (s *realtimeService) Typing(ctx context.Context, client *realtime.SSEClient, conversationID uuid.UUID, isTyping bool) error {
	_, err := s.typing.Notify(ctx, conversationID, client.UserID, isTyping)
	return err
}
