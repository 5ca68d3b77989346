package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/huddle-backend/internal/http/response"
	"github.com/yungbote/huddle-backend/internal/platform/apierr"
	"github.com/yungbote/huddle-backend/internal/services"
)

type GroupHandler struct {
	groups services.GroupService
}

func NewGroupHandler(groups services.GroupService) *GroupHandler {
	return &GroupHandler{groups: groups}
}

type createGroupReq struct {
	Name           string   `json:"name" validate:"required,min=2,max=100"`
	ParticipantIDs []string `json:"participant_ids" validate:"required,min=1,max=256,dive,uuid"`
	AvatarURL      *string  `json:"avatar_url" validate:"omitempty,max=500"`
}

// updateGroupReq keeps omitted fields apart from explicit nulls. Lengths are
// checked by the group service.
type updateGroupReq struct {
	Name      optionalString `json:"name"`
	AvatarURL optionalString `json:"avatar_url"`
}

type addParticipantsReq struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,max=256,dive,uuid"`
}

// POST /api/groups
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req createGroupReq
	if !bindJSON(c, &req) {
		return
	}
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}
	conv, err := h.groups.CreateGroup(c.Request.Context(), services.CreateGroupInput{
		CreatorID:      userID,
		Name:           req.Name,
		ParticipantIDs: parseUUIDs(req.ParticipantIDs),
		AvatarURL:      req.AvatarURL,
		IdempotencyKey: key,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"conversation": conv})
}

// PATCH /api/groups/:id
func (h *GroupHandler) UpdateGroup(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req updateGroupReq
	if !bindJSON(c, &req) {
		return
	}
	if req.Name.Set && req.Name.Value == nil {
		response.RespondAPIError(c, apierr.Validation("name cannot be null"))
		return
	}
	in := services.UpdateGroupInput{Name: req.Name.Value}
	if req.AvatarURL.Set {
		// null and "" both clear the avatar.
		avatar := ""
		if req.AvatarURL.Value != nil {
			avatar = *req.AvatarURL.Value
		}
		in.AvatarURL = &avatar
	}
	conv, err := h.groups.UpdateGroup(c.Request.Context(), convID, userID, in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"conversation": conv})
}

// POST /api/groups/:id/participants
func (h *GroupHandler) AddParticipants(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req addParticipantsReq
	if !bindJSON(c, &req) {
		return
	}
	added, err := h.groups.AddParticipants(c.Request.Context(), convID, userID, parseUUIDs(req.UserIDs))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"added": added})
}

// DELETE /api/groups/:id/participants/:userId
func (h *GroupHandler) RemoveParticipant(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	targetID, ok := paramUUID(c, "userId")
	if !ok {
		return
	}
	if err := h.groups.RemoveParticipant(c.Request.Context(), convID, userID, targetID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": "Participant removed."})
}

// POST /api/groups/:id/leave
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	dissolved, err := h.groups.LeaveGroup(c.Request.Context(), convID, userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": "You left the group.", "dissolved": dissolved})
}
