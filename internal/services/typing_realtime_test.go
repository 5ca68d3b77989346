package services

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/huddle-backend/internal/platform/apierr"
	"github.com/yungbote/huddle-backend/internal/platform/ratelimit"
	"github.com/yungbote/huddle-backend/internal/realtime"
)

func TestTypingRateLimitsStartsOnly(t *testing.T) {
	e := newTestEnv(t)
	alice, bob, eve := e.user(t, "alice"), e.user(t, "bob"), e.user(t, "eve")
	conv := e.direct(t, alice.ID, bob.ID)
	typing := NewTypingService(e.log, e.repo, ratelimit.NewLimiterStore(1, 1, 0), e.notify, nil)

	if ok, err := typing.Notify(e.ctx, conv.ID, alice.ID, true); err != nil || !ok {
		t.Fatalf("first start: ok=%v err=%v", ok, err)
	}
	if ok, err := typing.Notify(e.ctx, conv.ID, alice.ID, true); err != nil || ok {
		t.Fatalf("second start should be dropped: ok=%v err=%v", ok, err)
	}
	if ok, err := typing.Notify(e.ctx, conv.ID, alice.ID, false); err != nil || !ok {
		t.Fatalf("stop should always relay: ok=%v err=%v", ok, err)
	}
	// Limits are per user and conversation.
	if ok, _ := typing.Notify(e.ctx, conv.ID, bob.ID, true); !ok {
		t.Fatalf("bob should not share alice's bucket")
	}

	_, err := typing.Notify(e.ctx, conv.ID, eve.ID, true)
	expectKind(t, err, apierr.KindForbidden)

	events := e.emitter.events(realtime.SSEEventTyping)
	if len(events) != 3 {
		t.Fatalf("expected 3 typing events, got %d", len(events))
	}
	if events[0].Channel != realtime.ConversationChannel(conv.ID) {
		t.Fatalf("typing should go to the conversation channel, got %s", events[0].Channel)
	}
}

func TestRealtimeAuthorize(t *testing.T) {
	e := newTestEnv(t)
	alice, bob, eve := e.user(t, "alice"), e.user(t, "bob"), e.user(t, "eve")
	conv := e.direct(t, alice.ID, bob.ID)
	hub := realtime.NewSSEHub(e.log)
	typing := NewTypingService(e.log, e.repo, nil, e.notify, nil)
	rt := NewRealtimeService(e.log, hub, e.repo, typing)

	if err := rt.Authorize(e.ctx, alice.ID, realtime.UserChannel(alice.ID)); err != nil {
		t.Fatalf("own user channel: %v", err)
	}
	expectKind(t, rt.Authorize(e.ctx, alice.ID, realtime.UserChannel(bob.ID)), apierr.KindForbidden)
	if err := rt.Authorize(e.ctx, bob.ID, realtime.ConversationChannel(conv.ID)); err != nil {
		t.Fatalf("member conversation channel: %v", err)
	}
	expectKind(t, rt.Authorize(e.ctx, eve.ID, realtime.ConversationChannel(conv.ID)), apierr.KindForbidden)
	expectKind(t, rt.Authorize(e.ctx, alice.ID, "lobby"), apierr.KindValidationFailure)
	expectKind(t, rt.Authorize(e.ctx, alice.ID, realtime.ConversationChannel(uuid.Nil)+"x"), apierr.KindValidationFailure)

	client := hub.NewSSEClient(eve.ID)
	defer hub.CloseClient(client)
	if err := rt.Subscribe(e.ctx, client, realtime.ConversationChannel(conv.ID)); err == nil {
		t.Fatalf("non-member subscribe should fail")
	}
	if hub.IsSubscribed(client, realtime.ConversationChannel(conv.ID)) {
		t.Fatalf("rejected subscription was registered")
	}

	member := hub.NewSSEClient(alice.ID)
	defer hub.CloseClient(member)
	if err := rt.Subscribe(e.ctx, member, realtime.ConversationChannel(conv.ID)); err != nil {
		t.Fatalf("member subscribe: %v", err)
	}
	if !hub.IsSubscribed(member, realtime.ConversationChannel(conv.ID)) {
		t.Fatalf("member subscription missing")
	}
	rt.Unsubscribe(e.ctx, member, realtime.ConversationChannel(conv.ID))
	if hub.IsSubscribed(member, realtime.ConversationChannel(conv.ID)) {
		t.Fatalf("unsubscribe did not take effect")
	}
}
