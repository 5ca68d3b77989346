package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/huddle-backend/internal/http/response"
	"github.com/yungbote/huddle-backend/internal/services"
)

type UserHandler struct {
	chat     services.ChatService
	presence services.PresenceStore
}

func NewUserHandler(chat services.ChatService, presence services.PresenceStore) *UserHandler {
	return &UserHandler{chat: chat, presence: presence}
}

// POST /api/users/:id/messages
func (h *UserHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	recipientID, ok := paramUUID(c, "id")
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
	in.RecipientID = recipientID
	msg, err := h.chat.SendMessage(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"message": msg})
}

// GET /api/users/:id/presence
func (h *UserHandler) Presence(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	response.RespondOK(c, gin.H{"user_id": id, "online": h.presence.IsOnline(c.Request.Context(), id)})
}

// GET /api/me/unread
func (h *UserHandler) UnreadCount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	n, err := h.chat.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"unread_count": n})
}
