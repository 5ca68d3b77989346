package services

import (
	"context"

	"github.com/google/uuid"

	types "github.com/yungbote/huddle-backend/internal/domain"
	"github.com/yungbote/huddle-backend/internal/realtime"
)

// ChatNotifier maps chat state changes onto realtime channels. Calls are
// made from post-commit hooks, so nothing is emitted for rolled back writes.
type ChatNotifier interface {
	MessageCreated(ctx context.Context, msg *types.Message)
	MessageDeleted(ctx context.Context, conversationID, messageID uuid.UUID, seq int64, byUserID uuid.UUID)
	Typing(ctx context.Context, conversationID, userID uuid.UUID, userName string, isTyping bool)
	ConversationCreated(ctx context.Context, conv *types.Conversation, memberIDs []uuid.UUID)
	ConversationUpdated(ctx context.Context, conv *types.Conversation)
	ConversationCleared(ctx context.Context, conversationID, byUserID uuid.UUID, deleted int64)
	ParticipantsAdded(ctx context.Context, conv *types.Conversation, added []*types.User, byUserID uuid.UUID)
	ParticipantsRemoved(ctx context.Context, change realtime.MembershipChange)
	ReactionToggled(ctx context.Context, conversationID, messageID, userID uuid.UUID, emoji string, added bool)
}

type chatNotifier struct {
	emit SSEEmitter
}

func NewChatNotifier(emit SSEEmitter) ChatNotifier {
	return &chatNotifier{emit: emit}
}

func (n *chatNotifier) send(ctx context.Context, channel string, event realtime.SSEEvent, data any) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(ctx, realtime.SSEMessage{Channel: channel, Event: event, Data: data})
}

func (n *chatNotifier) MessageCreated(ctx context.Context, msg *types.Message) {
	if msg == nil {
		return
	}
	n.send(ctx, realtime.ConversationChannel(msg.ConversationID), realtime.SSEEventMessageCreated, map[string]any{
		"conversation_id": msg.ConversationID,
		"seq":             msg.Seq,
		"message":         msg,
	})
}

func (n *chatNotifier) MessageDeleted(ctx context.Context, conversationID, messageID uuid.UUID, seq int64, byUserID uuid.UUID) {
	n.send(ctx, realtime.ConversationChannel(conversationID), realtime.SSEEventMessageDeleted, map[string]any{
		"conversation_id": conversationID,
		"message_id":      messageID,
		"seq":             seq,
		"deleted_by":      byUserID,
	})
}

func (n *chatNotifier) Typing(ctx context.Context, conversationID, userID uuid.UUID, userName string, isTyping bool) {
	n.send(ctx, realtime.ConversationChannel(conversationID), realtime.SSEEventTyping, map[string]any{
		"conversation_id": conversationID,
		"user_id":         userID,
		"user_name":       userName,
		"is_typing":       isTyping,
	})
}

// ConversationCreated goes to user channels: members are not yet subscribed
// to a conversation they have never seen.
func (n *chatNotifier) ConversationCreated(ctx context.Context, conv *types.Conversation, memberIDs []uuid.UUID) {
	if conv == nil {
		return
	}
	for _, uid := range memberIDs {
		n.send(ctx, realtime.UserChannel(uid), realtime.SSEEventConversationCreated, map[string]any{
			"conversation": conv,
		})
	}
}

func (n *chatNotifier) ConversationUpdated(ctx context.Context, conv *types.Conversation) {
	if conv == nil {
		return
	}
	n.send(ctx, realtime.ConversationChannel(conv.ID), realtime.SSEEventConversationUpdated, map[string]any{
		"conversation_id": conv.ID,
		"name":            conv.Name,
		"avatar_url":      conv.AvatarURL,
	})
}

func (n *chatNotifier) ConversationCleared(ctx context.Context, conversationID, byUserID uuid.UUID, deleted int64) {
	n.send(ctx, realtime.ConversationChannel(conversationID), realtime.SSEEventConversationCleared, map[string]any{
		"conversation_id": conversationID,
		"cleared_by":      byUserID,
		"deleted":         deleted,
	})
}

func (n *chatNotifier) ParticipantsAdded(ctx context.Context, conv *types.Conversation, added []*types.User, byUserID uuid.UUID) {
	if conv == nil || len(added) == 0 {
		return
	}
	n.send(ctx, realtime.ConversationChannel(conv.ID), realtime.SSEEventParticipantsAdded, map[string]any{
		"conversation_id": conv.ID,
		"users":           added,
		"added_by":        byUserID,
	})
	for _, u := range added {
		n.send(ctx, realtime.UserChannel(u.ID), realtime.SSEEventConversationCreated, map[string]any{
			"conversation": conv,
		})
	}
}

func (n *chatNotifier) ParticipantsRemoved(ctx context.Context, change realtime.MembershipChange) {
	n.send(ctx, realtime.ConversationChannel(change.ConversationID), realtime.SSEEventParticipantsRemoved, change)
	for _, uid := range change.UserIDs {
		n.send(ctx, realtime.UserChannel(uid), realtime.SSEEventParticipantsRemoved, change)
	}
}

func (n *chatNotifier) ReactionToggled(ctx context.Context, conversationID, messageID, userID uuid.UUID, emoji string, added bool) {
	n.send(ctx, realtime.ConversationChannel(conversationID), realtime.SSEEventReactionToggled, map[string]any{
		"conversation_id": conversationID,
		"message_id":      messageID,
		"user_id":         userID,
		"emoji":           emoji,
		"added":           added,
	})
}
