package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/huddle-backend/internal/data/repos"
	types "github.com/yungbote/huddle-backend/internal/domain"
	"github.com/yungbote/huddle-backend/internal/observability"
	"github.com/yungbote/huddle-backend/internal/platform/apierr"
	"github.com/yungbote/huddle-backend/internal/platform/ctxutil"
	"github.com/yungbote/huddle-backend/internal/platform/dbctx"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
	"github.com/yungbote/huddle-backend/internal/platform/postcommit"
	"github.com/yungbote/huddle-backend/internal/platform/storage"
)

const (
	MaxMessageContentRunes = 5000
	MaxReactionEmojiRunes  = 10

	msgNotParticipant        = "You are not a participant in this conversation."
	msgConversationNotFound  = "Conversation not found."
	msgMessageNotFound       = "Message not found."
	msgParentNotFound        = "Parent message not found."
	msgUserNotFound          = "User not found."
	msgCannotChatWithSelf    = "Cannot chat with yourself"
	msgDeleteOwnMessagesOnly = "You can only delete your own messages."
)

type SendMessageInput struct {
	SenderID       uuid.UUID
	ConversationID uuid.UUID
	// RecipientID targets a direct conversation, created on first contact.
	RecipientID    uuid.UUID
	Content        string
	Type           types.MessageType
	ParentID       *uuid.UUID
	AttachmentIDs  []uuid.UUID
	Metadata       map[string]any
	IdempotencyKey string
}

// ConversationView is a conversation as one participant sees it.
type ConversationView struct {
	*types.Conversation
	LatestMessage *types.Message     `json:"latest_message,omitempty"`
	UnreadCount   int64              `json:"unread_count"`
	Online        map[uuid.UUID]bool `json:"online"`
}

type ChatService interface {
	SendMessage(ctx context.Context, in SendMessageInput) (*types.Message, error)
	GetOrCreateDirect(ctx context.Context, userID, peerID uuid.UUID) (*types.Conversation, error)
	ListInbox(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ConversationView, error)
	GetConversation(ctx context.Context, conversationID, userID uuid.UUID) (*ConversationView, error)
	ListMessages(ctx context.Context, conversationID, userID uuid.UUID, beforeSeq int64, limit int) ([]*types.Message, error)
	MarkAsRead(ctx context.Context, conversationID, userID uuid.UUID) error
	DeleteMessage(ctx context.Context, messageID, userID uuid.UUID) error
	ToggleFavorite(ctx context.Context, messageID, userID uuid.UUID) (*types.Message, error)
	ToggleReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error)
	ClearConversation(ctx context.Context, conversationID, userID uuid.UUID) (int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

type chatService struct {
	db       *gorm.DB
	log      *logger.Logger
	coord    *postcommit.Coordinator
	repo     repos.Set
	idem     IdempotencyGate
	unread   UnreadCounter
	presence PresenceStore
	notify   ChatNotifier
	jobs     JobService
	files    storage.Store
	metrics  *observability.Metrics
}

func NewChatService(
	db *gorm.DB,
	baseLog *logger.Logger,
	coord *postcommit.Coordinator,
	repo repos.Set,
	idem IdempotencyGate,
	unread UnreadCounter,
	presence PresenceStore,
	notify ChatNotifier,
	jobs JobService,
	files storage.Store,
	metrics *observability.Metrics,
) ChatService {
	return &chatService{
		db:       db,
		log:      baseLog.With("service", "ChatService"),
		coord:    coord,
		repo:     repo,
		idem:     idem,
		unread:   unread,
		presence: presence,
		notify:   notify,
		jobs:     jobs,
		files:    files,
		metrics:  metrics,
	}
}

func convKey(id uuid.UUID) string { return "conversation:" + id.String() }

func (s *chatService) SendMessage(ctx context.Context, in SendMessageInput) (*types.Message, error) {
	ctx, span := observability.Tracer("services").Start(ctx, "ChatService.SendMessage")
	defer span.End()

	if in.SenderID == uuid.Nil {
		return nil, apierr.Validation("sender is required")
	}
	content := strings.TrimSpace(in.Content)
	if content == "" && len(in.AttachmentIDs) == 0 {
		return nil, apierr.Validation("message content or attachments are required")
	}
	if utf8.RuneCountInString(content) > MaxMessageContentRunes {
		return nil, apierr.Validation(fmt.Sprintf("message content must be at most %d characters", MaxMessageContentRunes))
	}
	if in.Type != "" && !in.Type.Valid() {
		return nil, apierr.Validation("invalid message type")
	}
	var metadata datatypes.JSON
	if len(in.Metadata) > 0 {
		b, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, apierr.Validation("metadata must be a JSON object")
		}
		metadata = datatypes.JSON(b)
	}

	existingID, hit, err := s.idem.Reserve(ctx, IdempotencyScopeMessage, in.SenderID, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if hit {
		prior, gerr := s.repo.Messages.GetByID(dbctx.Context{Ctx: ctx}, existingID)
		if gerr != nil {
			return nil, gerr
		}
		if prior != nil {
			span.SetAttributes(observability.AttrIdempotentReplay.Bool(true), observability.AttrMessageID.String(prior.ID.String()))
			ctxutil.MarkReplayed(ctx)
			s.decorateMessage(prior)
			return prior, nil
		}
		s.log.Debug("Idempotent replay target is gone; sending again", "message_id", existingID)
	}
	committed := false
	defer func() {
		if !committed {
			s.idem.Release(context.WithoutCancel(ctx), IdempotencyScopeMessage, in.SenderID, in.IdempotencyKey)
		}
	}()

	convID := in.ConversationID
	if in.RecipientID != uuid.Nil {
		conv, err := s.GetOrCreateDirect(ctx, in.SenderID, in.RecipientID)
		if err != nil {
			return nil, err
		}
		convID = conv.ID
	}
	if convID == uuid.Nil {
		return nil, apierr.Validation("conversation or recipient is required")
	}
	span.SetAttributes(observability.AttrConversationID.String(convID.String()))

	msgType := resolveMessageType(in.Type, len(in.AttachmentIDs) > 0)
	attachmentIDs := uniqueIDs(in.AttachmentIDs, uuid.Nil)

	var out *types.Message
	err = s.coord.RunThen(ctx, func(txx *gorm.DB, hooks *postcommit.Hooks) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: txx}
		conv, err := s.repo.Conversations.LockByID(dbc, convID)
		if err != nil {
			return err
		}
		if conv == nil {
			return apierr.NotFound(msgConversationNotFound)
		}
		member, err := s.repo.Participants.Get(dbc, convID, in.SenderID)
		if err != nil {
			return err
		}
		if member == nil {
			return apierr.Forbidden(msgNotParticipant)
		}
		if in.ParentID != nil {
			parent, err := s.repo.Messages.GetInConversation(dbc, convID, *in.ParentID)
			if err != nil {
				return err
			}
			if parent == nil {
				return apierr.NotFound(msgParentNotFound)
			}
		}

		now := time.Now().UTC()
		seq := conv.NextSeq + 1
		msg := &types.Message{
			ConversationID: convID,
			SenderID:       in.SenderID,
			Seq:            seq,
			Type:           msgType,
			Metadata:       metadata,
			ParentID:       in.ParentID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if content != "" {
			msg.Content = &content
		}
		if _, err := s.repo.Messages.Create(dbc, msg); err != nil {
			return fmt.Errorf("create message: %w", err)
		}

		claimed, err := s.repo.Attachments.ClaimOrphans(dbc, msg.ID, in.SenderID, attachmentIDs)
		if err != nil {
			return fmt.Errorf("claim attachments: %w", err)
		}
		if claimed < int64(len(attachmentIDs)) {
			s.log.Debug("Ignored unclaimable attachments", "message_id", msg.ID, "requested", len(attachmentIDs), "claimed", claimed)
		}

		if err := s.repo.Conversations.UpdateFields(dbc, convID, map[string]interface{}{
			"next_seq":        seq,
			"last_message_at": now,
		}); err != nil {
			return fmt.Errorf("advance conversation: %w", err)
		}

		full, err := s.repo.Messages.GetByID(dbc, msg.ID)
		if err != nil {
			return err
		}
		s.decorateMessage(full)
		out = full

		memberIDs, err := s.repo.Participants.UserIDs(dbc, convID)
		if err != nil {
			return err
		}
		others := uniqueIDs(memberIDs, in.SenderID)

		hooks.After(convKey(convID), "message.created", func(hctx context.Context) error {
			s.notify.MessageCreated(hctx, full)
			return nil
		})
		hooks.After(convKey(convID), "unread.increment", func(hctx context.Context) error {
			var firstErr error
			for _, uid := range others {
				if err := s.unread.Increment(hctx, uid); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		})
		if claimed > 0 {
			senderID, messageID := in.SenderID, msg.ID
			hooks.After(convKey(convID), "attachments.enqueue", func(hctx context.Context) error {
				_, _, err := s.jobs.EnqueueIfNeeded(dbctx.Context{Ctx: hctx}, senderID,
					types.JobTypeMessageAttachmentsProcess, "message", messageID,
					map[string]any{"message_id": messageID.String()})
				return err
			})
		}
		return nil
	}, func() {
		committed = true
		s.idem.Commit(context.WithoutCancel(ctx), IdempotencyScopeMessage, in.SenderID, in.IdempotencyKey, out.ID)
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(observability.AttrMessageID.String(out.ID.String()), observability.AttrMessageSeq.Int64(out.Seq))
	s.metrics.IncMessageSent(string(out.Type))
	return out, nil
}

func resolveMessageType(requested types.MessageType, hasAttachments bool) types.MessageType {
	if requested != "" && requested != types.MessageTypeText {
		return requested
	}
	if hasAttachments {
		return types.MessageTypeFile
	}
	return types.MessageTypeText
}

// uniqueIDs drops duplicates, nil ids and skip, keeping first-seen order.
func uniqueIDs(ids []uuid.UUID, skip uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || id == skip || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (s *chatService) GetOrCreateDirect(ctx context.Context, userID, peerID uuid.UUID) (*types.Conversation, error) {
	if userID == peerID {
		return nil, apierr.InvalidOperation(msgCannotChatWithSelf)
	}
	dbc := dbctx.Context{Ctx: ctx}
	peer, err := s.repo.Users.GetByID(dbc, peerID)
	if err != nil {
		return nil, err
	}
	if peer == nil {
		return nil, apierr.NotFound(msgUserNotFound)
	}

	existing, err := s.repo.Conversations.GetByDirectKey(dbc, types.DirectKeyFor(userID, peerID))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.repo.Conversations.GetWithParticipants(dbc, existing.ID)
	}

	var convID uuid.UUID
	err = s.coord.Run(ctx, func(txx *gorm.DB, hooks *postcommit.Hooks) error {
		conv, created, err := s.repo.Conversations.CreateDirect(dbctx.Context{Ctx: ctx, Tx: txx}, userID, peerID)
		if err != nil {
			return err
		}
		convID = conv.ID
		if created {
			hooks.After(convKey(conv.ID), "conversation.created", func(hctx context.Context) error {
				full, err := s.repo.Conversations.GetWithParticipants(dbctx.Context{Ctx: hctx}, conv.ID)
				if err != nil {
					return err
				}
				s.notify.ConversationCreated(hctx, full, []uuid.UUID{userID, peerID})
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Conversations.GetWithParticipants(dbc, convID)
}

// requireParticipant loads the conversation and the caller's membership.
func (s *chatService) requireParticipant(dbc dbctx.Context, conversationID, userID uuid.UUID) (*types.Conversation, *types.Participant, error) {
	conv, err := s.repo.Conversations.GetByID(dbc, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if conv == nil {
		return nil, nil, apierr.NotFound(msgConversationNotFound)
	}
	member, err := s.repo.Participants.Get(dbc, conversationID, userID)
	if err != nil {
		return nil, nil, err
	}
	if member == nil {
		return nil, nil, apierr.Forbidden(msgNotParticipant)
	}
	return conv, member, nil
}

func (s *chatService) requireMessageParticipant(dbc dbctx.Context, messageID, userID uuid.UUID) (*types.Message, *types.Conversation, *types.Participant, error) {
	msg, err := s.repo.Messages.GetByID(dbc, messageID)
	if err != nil {
		return nil, nil, nil, err
	}
	if msg == nil {
		return nil, nil, nil, apierr.NotFound(msgMessageNotFound)
	}
	conv, member, err := s.requireParticipant(dbc, msg.ConversationID, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	return msg, conv, member, nil
}

func (s *chatService) ListInbox(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ConversationView, error) {
	dbc := dbctx.Context{Ctx: ctx}
	convs, err := s.repo.Conversations.ListForUser(dbc, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*ConversationView, 0, len(convs))
	if len(convs) == 0 {
		return out, nil
	}
	ids := make([]uuid.UUID, 0, len(convs))
	var peers []uuid.UUID
	for _, c := range convs {
		ids = append(ids, c.ID)
		for _, p := range c.Participants {
			peers = append(peers, p.UserID)
		}
	}
	latest, err := s.repo.Messages.LatestByConversations(dbc, ids)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.Messages.UnreadByConversation(dbc, userID, ids)
	if err != nil {
		return nil, err
	}
	online := s.presence.OnlineMap(ctx, uniqueIDs(peers, userID))

	for _, c := range convs {
		others := make([]*types.Participant, 0, len(c.Participants))
		status := map[uuid.UUID]bool{}
		for _, p := range c.Participants {
			if p.UserID == userID {
				continue
			}
			others = append(others, p)
			status[p.UserID] = online[p.UserID]
		}
		c.Participants = others
		view := &ConversationView{Conversation: c, LatestMessage: latest[c.ID], UnreadCount: unread[c.ID], Online: status}
		s.decorateMessage(view.LatestMessage)
		out = append(out, view)
	}
	return out, nil
}

func (s *chatService) GetConversation(ctx context.Context, conversationID, userID uuid.UUID) (*ConversationView, error) {
	dbc := dbctx.Context{Ctx: ctx}
	conv, err := s.repo.Conversations.GetWithParticipants(dbc, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apierr.NotFound(msgConversationNotFound)
	}
	isMember := false
	peers := make([]uuid.UUID, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		if p.UserID == userID {
			isMember = true
		}
		peers = append(peers, p.UserID)
	}
	if !isMember {
		return nil, apierr.Forbidden(msgNotParticipant)
	}
	latest, err := s.repo.Messages.LatestByConversations(dbc, []uuid.UUID{conversationID})
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.Messages.UnreadByConversation(dbc, userID, []uuid.UUID{conversationID})
	if err != nil {
		return nil, err
	}
	view := &ConversationView{
		Conversation:  conv,
		LatestMessage: latest[conversationID],
		UnreadCount:   unread[conversationID],
		Online:        s.presence.OnlineMap(ctx, uniqueIDs(peers, userID)),
	}
	s.decorateMessage(view.LatestMessage)
	return view, nil
}

func (s *chatService) ListMessages(ctx context.Context, conversationID, userID uuid.UUID, beforeSeq int64, limit int) ([]*types.Message, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if _, _, err := s.requireParticipant(dbc, conversationID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.repo.Messages.ListByConversation(dbc, conversationID, beforeSeq, limit)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		s.decorateMessage(m)
	}
	return msgs, nil
}

// MarkAsRead moves the caller's watermark to now and stamps the legacy
// read_at on messages they received. The unread cache is dropped before
// returning so the next count reflects the new watermark.
//
// The conversation row lock orders the watermark after any in-flight send,
// whose created_at is stamped under the same lock.
func (s *chatService) MarkAsRead(ctx context.Context, conversationID, userID uuid.UUID) error {
	if _, _, err := s.requireParticipant(dbctx.Context{Ctx: ctx}, conversationID, userID); err != nil {
		return err
	}
	return s.coord.RunThen(ctx, func(txx *gorm.DB, hooks *postcommit.Hooks) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: txx}
		conv, err := s.repo.Conversations.LockByID(dbc, conversationID)
		if err != nil {
			return err
		}
		if conv == nil {
			return apierr.NotFound(msgConversationNotFound)
		}
		now := time.Now().UTC()
		if err := s.repo.Participants.UpdateLastRead(dbc, conversationID, userID, now); err != nil {
			return err
		}
		_, err = s.repo.Messages.MarkReadAt(dbc, conversationID, userID, now)
		return err
	}, func() {
		s.unread.Invalidate(context.WithoutCancel(ctx), userID)
	})
}

func (s *chatService) DeleteMessage(ctx context.Context, messageID, userID uuid.UUID) error {
	msg, conv, member, err := s.requireMessageParticipant(dbctx.Context{Ctx: ctx}, messageID, userID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID && !(conv.IsGroup && member.IsAdmin) {
		return apierr.Forbidden(msgDeleteOwnMessagesOnly)
	}
	return s.coord.Run(ctx, func(txx *gorm.DB, hooks *postcommit.Hooks) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: txx}
		if err := s.repo.Messages.SoftDelete(dbc, msg.ID); err != nil {
			return err
		}
		memberIDs, err := s.repo.Participants.UserIDs(dbc, conv.ID)
		if err != nil {
			return err
		}
		hooks.After(convKey(conv.ID), "message.deleted", func(hctx context.Context) error {
			s.notify.MessageDeleted(hctx, conv.ID, msg.ID, msg.Seq, userID)
			return nil
		})
		hooks.After(convKey(conv.ID), "unread.invalidate", func(hctx context.Context) error {
			for _, uid := range uniqueIDs(memberIDs, msg.SenderID) {
				s.unread.Invalidate(hctx, uid)
			}
			return nil
		})
		return nil
	})
}

func (s *chatService) ToggleFavorite(ctx context.Context, messageID, userID uuid.UUID) (*types.Message, error) {
	dbc := dbctx.Context{Ctx: ctx}
	msg, _, _, err := s.requireMessageParticipant(dbc, messageID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Messages.UpdateFields(dbc, msg.ID, map[string]interface{}{
		"is_favorite": gorm.Expr("NOT is_favorite"),
	}); err != nil {
		return nil, err
	}
	updated, err := s.repo.Messages.GetByID(dbc, msg.ID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apierr.NotFound(msgMessageNotFound)
	}
	s.decorateMessage(updated)
	return updated, nil
}

func (s *chatService) ToggleReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > MaxReactionEmojiRunes {
		return false, apierr.Validation(fmt.Sprintf("emoji must be 1 to %d characters", MaxReactionEmojiRunes))
	}
	msg, _, _, err := s.requireMessageParticipant(dbctx.Context{Ctx: ctx}, messageID, userID)
	if err != nil {
		return false, err
	}
	var added bool
	err = s.coord.Run(ctx, func(txx *gorm.DB, hooks *postcommit.Hooks) error {
		var err error
		added, err = s.repo.Reactions.Toggle(dbctx.Context{Ctx: ctx, Tx: txx}, msg.ID, userID, emoji)
		if err != nil {
			return err
		}
		present := added
		hooks.After(convKey(msg.ConversationID), "reaction.toggled", func(hctx context.Context) error {
			s.notify.ReactionToggled(hctx, msg.ConversationID, msg.ID, userID, emoji, present)
			return nil
		})
		return nil
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

// ClearConversation hard-deletes every message for every participant.
// Groups restrict it to admins.
func (s *chatService) ClearConversation(ctx context.Context, conversationID, userID uuid.UUID) (int64, error) {
	conv, member, err := s.requireParticipant(dbctx.Context{Ctx: ctx}, conversationID, userID)
	if err != nil {
		return 0, err
	}
	if conv.IsGroup && !member.IsAdmin {
		return 0, apierr.Forbidden(msgOnlyAdmins)
	}
	var deleted int64
	err = s.coord.Run(ctx, func(txx *gorm.DB, hooks *postcommit.Hooks) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: txx}
		if _, err := s.repo.Conversations.LockByID(dbc, conversationID); err != nil {
			return err
		}
		n, err := s.repo.Messages.HardDeleteByConversation(dbc, conversationID)
		if err != nil {
			return err
		}
		deleted = n
		if err := s.repo.Conversations.UpdateFields(dbc, conversationID, map[string]interface{}{
			"last_message_at": nil,
		}); err != nil {
			return err
		}
		memberIDs, err := s.repo.Participants.UserIDs(dbc, conversationID)
		if err != nil {
			return err
		}
		hooks.After(convKey(conversationID), "conversation.cleared", func(hctx context.Context) error {
			s.notify.ConversationCleared(hctx, conversationID, userID, n)
			return nil
		})
		hooks.After(convKey(conversationID), "unread.invalidate", func(hctx context.Context) error {
			for _, uid := range memberIDs {
				s.unread.Invalidate(hctx, uid)
			}
			return nil
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *chatService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.unread.Get(ctx, userID, func(rctx context.Context) (int64, error) {
		return s.repo.Messages.CountUnreadForUser(dbctx.Context{Ctx: rctx}, userID)
	})
}

func (s *chatService) decorateMessage(m *types.Message) {
	if m == nil || s.files == nil {
		return
	}
	decorateAttachments(s.files, m.Attachments)
}

func decorateAttachments(files storage.Store, atts []*types.Attachment) {
	if files == nil {
		return
	}
	for _, a := range atts {
		if a == nil {
			continue
		}
		if a.StoragePath != "" {
			a.URL = files.URL(a.StoragePath)
		}
		if a.ThumbnailPath != nil && *a.ThumbnailPath != "" {
			a.ThumbnailURL = files.URL(*a.ThumbnailPath)
		}
	}
}
