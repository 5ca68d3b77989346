package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/huddle-backend/internal/domain"
	"github.com/yungbote/huddle-backend/internal/http/response"
	"github.com/yungbote/huddle-backend/internal/services"
)

type ConversationHandler struct {
	chat   services.ChatService
	typing services.TypingService
}

func NewConversationHandler(chat services.ChatService, typing services.TypingService) *ConversationHandler {
	return &ConversationHandler{chat: chat, typing: typing}
}

type directReq struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

type sendMessageReq struct {
	Content       string         `json:"content" validate:"max=5000"`
	Type          string         `json:"type" validate:"omitempty,oneof=text image file video voice"`
	ParentID      *string        `json:"parent_id" validate:"omitempty,uuid"`
	AttachmentIDs []string       `json:"attachment_ids" validate:"max=10,dive,uuid"`
	Metadata      map[string]any `json:"metadata"`
}

type typingReq struct {
	IsTyping *bool `json:"is_typing"`
}

func (r sendMessageReq) input(sender uuid.UUID, key string) services.SendMessageInput {
	return services.SendMessageInput{
		SenderID:       sender,
		Content:        r.Content,
		Type:           types.MessageType(r.Type),
		ParentID:       parseOptionalUUID(r.ParentID),
		AttachmentIDs:  parseUUIDs(r.AttachmentIDs),
		Metadata:       r.Metadata,
		IdempotencyKey: key,
	}
}

// GET /api/conversations?limit=20&offset=0
func (h *ConversationHandler) ListInbox(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	views, err := h.chat.ListInbox(c.Request.Context(), userID, queryInt(c, "limit", 20), queryInt(c, "offset", 0))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"conversations": views})
}

// POST /api/conversations/direct
func (h *ConversationHandler) GetOrCreateDirect(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req directReq
	if !bindJSON(c, &req) {
		return
	}
	conv, err := h.chat.GetOrCreateDirect(c.Request.Context(), userID, uuid.MustParse(req.UserID))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"conversation": conv})
}

// GET /api/conversations/:id
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	view, err := h.chat.GetConversation(c.Request.Context(), convID, userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"conversation": view})
}

// GET /api/conversations/:id/messages?limit=50&before_seq=123
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	msgs, err := h.chat.ListMessages(c.Request.Context(), convID, userID, queryInt64(c, "before_seq"), queryInt(c, "limit", 50))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"messages": msgs})
}

// POST /api/conversations/:id/messages
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req sendMessageReq
	if !bindJSON(c, &req) {
		return
	}
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}
	in := req.input(userID, key)
	in.ConversationID = convID
	msg, err := h.chat.SendMessage(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"message": msg})
}

// POST /api/conversations/:id/read
func (h *ConversationHandler) MarkAsRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	if err := h.chat.MarkAsRead(c.Request.Context(), convID, userID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": "Conversation marked as read."})
}

// DELETE /api/conversations/:id/messages
func (h *ConversationHandler) ClearConversation(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	n, err := h.chat.ClearConversation(c.Request.Context(), convID, userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": "Conversation cleared.", "deleted": n})
}

// POST /api/conversations/:id/typing
func (h *ConversationHandler) Typing(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req typingReq
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	isTyping := req.IsTyping == nil || *req.IsTyping
	relayed, err := h.typing.Notify(c.Request.Context(), convID, userID, isTyping)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"relayed": relayed})
}
