package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/huddle-backend/internal/http/response"
	"github.com/yungbote/huddle-backend/internal/services"
)

type MessageHandler struct {
	chat services.ChatService
}

func NewMessageHandler(chat services.ChatService) *MessageHandler {
	return &MessageHandler{chat: chat}
}

type reactionReq struct {
	Emoji string `json:"emoji" validate:"required,max=10"`
}

// DELETE /api/messages/:id
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	msgID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	if err := h.chat.DeleteMessage(c.Request.Context(), msgID, userID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": "Message deleted."})
}

// POST /api/messages/:id/favorite
func (h *MessageHandler) ToggleFavorite(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	msgID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	msg, err := h.chat.ToggleFavorite(c.Request.Context(), msgID, userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": msg})
}

// POST /api/messages/:id/reactions
func (h *MessageHandler) ToggleReaction(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	msgID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req reactionReq
	if !bindJSON(c, &req) {
		return
	}
	added, err := h.chat.ToggleReaction(c.Request.Context(), msgID, userID, req.Emoji)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"added": added, "emoji": req.Emoji})
}
