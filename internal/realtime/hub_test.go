package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubOrderingAndReconnect(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	channel := ConversationChannel(uuid.New())

	clientA := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientA, channel)

	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventMessageCreated, Data: map[string]any{"seq": 1}})
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventMessageDeleted, Data: map[string]any{"seq": 2}})

	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventMessageCreated {
		t.Fatalf("first event: want=%s got=%s", SSEEventMessageCreated, got.Event)
	}
	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventMessageDeleted {
		t.Fatalf("second event: want=%s got=%s", SSEEventMessageDeleted, got.Event)
	}

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	select {
	case _, ok := <-clientA.Outbound:
		if ok {
			t.Fatalf("clientA outbound should be closed after disconnect")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for clientA channel close")
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("expected no clients, got %d", hub.ClientCount())
	}

	// A closed client cannot be resubscribed.
	hub.AddChannel(clientA, channel)
	if hub.IsSubscribed(clientA, channel) {
		t.Fatalf("closed client must not be resubscribed")
	}

	clientB := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientB, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventTyping})
	if got := recvMessage(t, clientB.Outbound, time.Second); got.Event != SSEEventTyping {
		t.Fatalf("reconnect event: want=%s got=%s", SSEEventTyping, got.Event)
	}
}

func TestSSEHubDropsWhenBufferFull(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	drops := 0
	hub.SetHooks(HubHooks{OnDrop: func(string) { drops++ }})
	channel := UserChannel(uuid.New())
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, channel)

	for i := 0; i < defaultOutboundBuffer+3; i++ {
		hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventTyping, Data: i})
	}
	if drops != 3 {
		t.Fatalf("expected 3 drops, got %d", drops)
	}
	if got := recvMessage(t, client.Outbound, time.Second); got.Data != 0 {
		t.Fatalf("oldest message should be kept, got %v", got.Data)
	}
}

func TestSSEHubDropChannelForUser(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	channel := ConversationChannel(uuid.New())
	leaver := uuid.New()
	stayer := uuid.New()

	a := hub.NewSSEClient(leaver)
	b := hub.NewSSEClient(stayer)
	hub.AddChannel(a, channel)
	hub.AddChannel(b, channel)

	hub.DropChannelForUser(channel, leaver)
	if hub.IsSubscribed(a, channel) {
		t.Fatalf("leaver should be unsubscribed")
	}
	if !hub.IsSubscribed(b, channel) {
		t.Fatalf("stayer should remain subscribed")
	}

	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventParticipantsRemoved})
	recvMessage(t, b.Outbound, time.Second)
	select {
	case msg := <-a.Outbound:
		t.Fatalf("leaver received %v", msg)
	default:
	}
}

func TestSSEHubDeliverRemovalFromBus(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	convID := uuid.New()
	channel := ConversationChannel(convID)
	removed := uuid.New()
	c := hub.NewSSEClient(removed)
	hub.AddChannel(c, channel)

	// Shape of the payload after a JSON round trip through a bus.
	data := map[string]any{
		"conversation_id": convID.String(),
		"user_ids":        []any{removed.String()},
		"by_user_id":      uuid.New().String(),
	}
	hub.Deliver(SSEMessage{Channel: channel, Event: SSEEventParticipantsRemoved, Data: data})

	if got := recvMessage(t, c.Outbound, time.Second); got.Event != SSEEventParticipantsRemoved {
		t.Fatalf("removed user should see the removal, got %q", got.Event)
	}
	if hub.IsSubscribed(c, channel) {
		t.Fatalf("removed user should be unsubscribed after delivery")
	}
}
