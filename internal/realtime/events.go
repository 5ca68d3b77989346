package realtime

import (
	"encoding/json"

	"github.com/google/uuid"
)

type SSEEvent string

const (
	SSEEventMessageCreated      SSEEvent = "message.created"
	SSEEventMessageDeleted      SSEEvent = "message.deleted"
	SSEEventTyping              SSEEvent = "typing"
	SSEEventParticipantsAdded   SSEEvent = "participants.added"
	SSEEventParticipantsRemoved SSEEvent = "participants.removed"
	SSEEventConversationUpdated SSEEvent = "conversation.updated"
	SSEEventConversationCreated SSEEvent = "conversation.created"
	SSEEventConversationCleared SSEEvent = "conversation.cleared"
	SSEEventReactionToggled     SSEEvent = "reaction.toggled"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

// MembershipChange is the payload of participants.removed. Hubs use it to
// drop the removed user's subscription to the conversation channel.
type MembershipChange struct {
	ConversationID uuid.UUID   `json:"conversation_id"`
	UserIDs        []uuid.UUID `json:"user_ids"`
	ByUserID       uuid.UUID   `json:"by_user_id"`
	Left           bool        `json:"left"`
}

func membershipChangeOf(data any) (MembershipChange, bool) {
	switch v := data.(type) {
	case MembershipChange:
		return v, true
	case *MembershipChange:
		if v == nil {
			return MembershipChange{}, false
		}
		return *v, true
	}
	// Messages that crossed the bus arrive as decoded JSON.
	b, err := json.Marshal(data)
	if err != nil {
		return MembershipChange{}, false
	}
	var out MembershipChange
	if err := json.Unmarshal(b, &out); err != nil {
		return MembershipChange{}, false
	}
	return out, out.ConversationID != uuid.Nil
}
