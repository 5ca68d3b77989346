package services

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/huddle-backend/internal/platform/apierr"
	"github.com/yungbote/huddle-backend/internal/platform/dbctx"
	"github.com/yungbote/huddle-backend/internal/realtime"
)

func TestCreateGroup(t *testing.T) {
	e := newTestEnv(t)
	alice, bob, carol := e.user(t, "alice"), e.user(t, "bob"), e.user(t, "carol")

	key := uuid.NewString()
	in := CreateGroupInput{
		CreatorID:      alice.ID,
		Name:           "  Weekend plans ",
		ParticipantIDs: []uuid.UUID{bob.ID, alice.ID, carol.ID, bob.ID},
		IdempotencyKey: key,
	}
	conv, err := e.groups.CreateGroup(e.ctx, in)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if !conv.IsGroup || conv.Name == nil || *conv.Name != "Weekend plans" {
		t.Fatalf("unexpected group %+v", conv)
	}
	if len(conv.Participants) != 3 {
		t.Fatalf("expected 3 participants, got %d", len(conv.Participants))
	}
	for _, p := range conv.Participants {
		if p.IsAdmin != (p.UserID == alice.ID) {
			t.Fatalf("only the creator should be admin, got %s admin=%v", p.UserID, p.IsAdmin)
		}
	}
	if got := len(e.emitter.events(realtime.SSEEventConversationCreated)); got != 3 {
		t.Fatalf("expected conversation.created for 3 members, got %d", got)
	}

	again, err := e.groups.CreateGroup(e.ctx, in)
	if err != nil || again.ID != conv.ID {
		t.Fatalf("idempotent create returned %v, %v", again, err)
	}

	_, err = e.groups.CreateGroup(e.ctx, CreateGroupInput{CreatorID: alice.ID, Name: "Solo", ParticipantIDs: []uuid.UUID{alice.ID}})
	expectKind(t, err, apierr.KindValidationFailure)

	_, err = e.groups.CreateGroup(e.ctx, CreateGroupInput{CreatorID: alice.ID, Name: "Ghosts", ParticipantIDs: []uuid.UUID{uuid.New()}})
	expectKind(t, err, apierr.KindNotFound)

	_, err = e.groups.CreateGroup(e.ctx, CreateGroupInput{CreatorID: alice.ID, Name: "x", ParticipantIDs: []uuid.UUID{bob.ID}})
	expectKind(t, err, apierr.KindValidationFailure)
}

func TestGroupAdminRules(t *testing.T) {
	e := newTestEnv(t)
	alice, bob, carol, dave := e.user(t, "alice"), e.user(t, "bob"), e.user(t, "carol"), e.user(t, "dave")
	g := e.group(t, alice.ID, bob.ID)
	direct := e.direct(t, alice.ID, bob.ID)

	_, err := e.groups.AddParticipants(e.ctx, g.ID, bob.ID, []uuid.UUID{carol.ID})
	expectKind(t, err, apierr.KindForbidden)

	_, err = e.groups.AddParticipants(e.ctx, direct.ID, alice.ID, []uuid.UUID{carol.ID})
	expectKind(t, err, apierr.KindInvalidOperation)

	added, err := e.groups.AddParticipants(e.ctx, g.ID, alice.ID, []uuid.UUID{bob.ID, carol.ID, dave.ID})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("existing members should be skipped, got %d added", len(added))
	}
	if got := len(e.emitter.events(realtime.SSEEventParticipantsAdded)); got != 1 {
		t.Fatalf("expected participants.added, got %d", got)
	}

	expectKind(t, e.groups.RemoveParticipant(e.ctx, g.ID, bob.ID, carol.ID), apierr.KindForbidden)
	if err := e.groups.RemoveParticipant(e.ctx, g.ID, alice.ID, carol.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	expectKind(t, e.groups.RemoveParticipant(e.ctx, g.ID, alice.ID, carol.ID), apierr.KindNotFound)

	removed := e.emitter.events(realtime.SSEEventParticipantsRemoved)
	if len(removed) == 0 {
		t.Fatalf("expected participants.removed")
	}
	change, ok := removed[0].Data.(realtime.MembershipChange)
	if !ok || len(change.UserIDs) != 1 || change.UserIDs[0] != carol.ID {
		t.Fatalf("unexpected removal payload %#v", removed[0].Data)
	}
}

func TestRemoveSelfThenLeave(t *testing.T) {
	e := newTestEnv(t)
	alice, bob := e.user(t, "alice"), e.user(t, "bob")
	g := e.group(t, alice.ID, bob.ID)

	expectKind(t, e.groups.RemoveParticipant(e.ctx, g.ID, alice.ID, alice.ID), apierr.KindInvalidOperation)

	dissolved, err := e.groups.LeaveGroup(e.ctx, g.ID, alice.ID)
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if dissolved {
		t.Fatalf("group with a remaining member must not dissolve")
	}
	bobMember, _ := e.repo.Participants.Get(dbctx.Context{Ctx: e.ctx}, g.ID, bob.ID)
	if bobMember == nil || !bobMember.IsAdmin {
		t.Fatalf("remaining member should inherit admin")
	}
}

func TestGroupDissolvesOnLastLeave(t *testing.T) {
	e := newTestEnv(t)
	alice, bob, eve := e.user(t, "alice"), e.user(t, "bob"), e.user(t, "eve")
	g := e.group(t, alice.ID, bob.ID)

	_, err := e.groups.LeaveGroup(e.ctx, g.ID, eve.ID)
	expectKind(t, err, apierr.KindForbidden)

	if dissolved, err := e.groups.LeaveGroup(e.ctx, g.ID, bob.ID); err != nil || dissolved {
		t.Fatalf("first leave: dissolved=%v err=%v", dissolved, err)
	}
	dissolved, err := e.groups.LeaveGroup(e.ctx, g.ID, alice.ID)
	if err != nil {
		t.Fatalf("last leave: %v", err)
	}
	if !dissolved {
		t.Fatalf("last leave should dissolve the group")
	}
	conv, _ := e.repo.Conversations.GetByID(dbctx.Context{Ctx: e.ctx}, g.ID)
	if conv != nil {
		t.Fatalf("dissolved group is still visible")
	}
	_, err = e.groups.LeaveGroup(e.ctx, g.ID, alice.ID)
	expectKind(t, err, apierr.KindNotFound)
}

func TestLeaveDirectConversationIsRejected(t *testing.T) {
	e := newTestEnv(t)
	alice, bob := e.user(t, "alice"), e.user(t, "bob")
	direct := e.direct(t, alice.ID, bob.ID)

	_, err := e.groups.LeaveGroup(e.ctx, direct.ID, alice.ID)
	expectKind(t, err, apierr.KindInvalidOperation)
}

func TestUpdateGroup(t *testing.T) {
	e := newTestEnv(t)
	alice, bob := e.user(t, "alice"), e.user(t, "bob")
	g := e.group(t, alice.ID, bob.ID)

	avatar := "https://cdn.example.com/a.png"
	updated, err := e.groups.UpdateGroup(e.ctx, g.ID, alice.ID, UpdateGroupInput{AvatarURL: &avatar})
	if err != nil {
		t.Fatalf("set avatar: %v", err)
	}
	if updated.AvatarURL == nil || *updated.AvatarURL != avatar {
		t.Fatalf("avatar not set")
	}
	if updated.Name == nil || *updated.Name != "group" {
		t.Fatalf("name must be untouched when not provided")
	}

	name, empty := "Renamed", ""
	updated, err = e.groups.UpdateGroup(e.ctx, g.ID, alice.ID, UpdateGroupInput{Name: &name, AvatarURL: &empty})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if *updated.Name != "Renamed" || updated.AvatarURL != nil {
		t.Fatalf("expected rename and cleared avatar, got %+v", updated)
	}

	_, err = e.groups.UpdateGroup(e.ctx, g.ID, bob.ID, UpdateGroupInput{Name: &name})
	expectKind(t, err, apierr.KindForbidden)
	if got := len(e.emitter.events(realtime.SSEEventConversationUpdated)); got != 2 {
		t.Fatalf("expected 2 conversation.updated events, got %d", got)
	}
}
