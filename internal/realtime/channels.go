package realtime

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type ChannelKind string

const (
	ChannelConversation ChannelKind = "conversation"
	ChannelUser         ChannelKind = "user"

	conversationPrefix = "private-conversation."
	userPrefix         = "private-user."
)

func ConversationChannel(id uuid.UUID) string { return conversationPrefix + id.String() }

func UserChannel(id uuid.UUID) string { return userPrefix + id.String() }

// ParseChannel splits a channel name into its kind and id. Only the two
// private channel families are accepted.
func ParseChannel(name string) (ChannelKind, uuid.UUID, error) {
	name = strings.TrimSpace(name)
	var kind ChannelKind
	var raw string
	switch {
	case strings.HasPrefix(name, conversationPrefix):
		kind, raw = ChannelConversation, strings.TrimPrefix(name, conversationPrefix)
	case strings.HasPrefix(name, userPrefix):
		kind, raw = ChannelUser, strings.TrimPrefix(name, userPrefix)
	default:
		return "", uuid.Nil, fmt.Errorf("unknown channel %q", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return "", uuid.Nil, fmt.Errorf("invalid channel id in %q", name)
	}
	return kind, id, nil
}
