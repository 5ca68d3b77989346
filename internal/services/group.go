package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/huddle-backend/internal/data/repos"
	types "github.com/yungbote/huddle-backend/internal/domain"
	"github.com/yungbote/huddle-backend/internal/platform/apierr"
	"github.com/yungbote/huddle-backend/internal/platform/ctxutil"
	"github.com/yungbote/huddle-backend/internal/platform/dbctx"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
	"github.com/yungbote/huddle-backend/internal/platform/postcommit"
	"github.com/yungbote/huddle-backend/internal/realtime"
)

const (
	MinGroupNameRunes = 2
	MaxGroupNameRunes = 100
	MaxAvatarURLRunes = 500

	msgGroupOnly           = "This operation is only allowed for group conversations."
	msgOnlyAdmins          = "Only group admins can perform this action."
	msgNotGroupParticipant = "You are not a participant in this group."
	msgUseLeave            = "Use the leave endpoint to remove yourself."
	msgTargetNotMember     = "User is not a participant in this group."
	msgUsersNotFound       = "One or more users were not found."
	msgGroupNeedsMembers   = "A group needs at least one other participant."
)

type CreateGroupInput struct {
	CreatorID      uuid.UUID
	Name           string
	ParticipantIDs []uuid.UUID
	AvatarURL      *string
	IdempotencyKey string
}

// UpdateGroupInput uses nil for "not provided". An empty AvatarURL clears it;
// callers map an explicit null avatar to "".
type UpdateGroupInput struct {
	Name      *string
	AvatarURL *string
}

type GroupService interface {
	CreateGroup(ctx context.Context, in CreateGroupInput) (*types.Conversation, error)
	AddParticipants(ctx context.Context, conversationID, requesterID uuid.UUID, userIDs []uuid.UUID) ([]*types.User, error)
	RemoveParticipant(ctx context.Context, conversationID, requesterID, targetID uuid.UUID) error
	// LeaveGroup reports whether the departure dissolved the group.
	LeaveGroup(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	UpdateGroup(ctx context.Context, conversationID, requesterID uuid.UUID, in UpdateGroupInput) (*types.Conversation, error)
}

type groupService struct {
	db     *gorm.DB
	log    *logger.Logger
	coord  *postcommit.Coordinator
	repo   repos.Set
	idem   IdempotencyGate
	unread UnreadCounter
	notify ChatNotifier
}

func NewGroupService(
	db *gorm.DB,
	baseLog *logger.Logger,
	coord *postcommit.Coordinator,
	repo repos.Set,
	idem IdempotencyGate,
	unread UnreadCounter,
	notify ChatNotifier,
) GroupService {
	return &groupService{
		db:     db,
		log:    baseLog.With("service", "GroupService"),
		coord:  coord,
		repo:   repo,
		idem:   idem,
		unread: unread,
		notify: notify,
	}
}

func validateGroupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < MinGroupNameRunes || n > MaxGroupNameRunes {
		return "", apierr.Validation(fmt.Sprintf("group name must be %d to %d characters", MinGroupNameRunes, MaxGroupNameRunes))
	}
	return name, nil
}

func validateAvatarURL(url string) (string, error) {
	url = strings.TrimSpace(url)
	if utf8.RuneCountInString(url) > MaxAvatarURLRunes {
		return "", apierr.Validation(fmt.Sprintf("avatar url must be at most %d characters", MaxAvatarURLRunes))
	}
	return url, nil
}

// requireUsers fails with NotFound unless every id names an existing user.
func (s *groupService) requireUsers(dbc dbctx.Context, ids []uuid.UUID) ([]*types.User, error) {
	users, err := s.repo.Users.GetByIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	if len(users) != len(ids) {
		return nil, apierr.NotFound(msgUsersNotFound)
	}
	return users, nil
}

func (s *groupService) CreateGroup(ctx context.Context, in CreateGroupInput) (*types.Conversation, error) {
	name, err := validateGroupName(in.Name)
	if err != nil {
		return nil, err
	}
	var avatar *string
	if in.AvatarURL != nil {
		a, err := validateAvatarURL(*in.AvatarURL)
		if err != nil {
			return nil, err
		}
		if a != "" {
			avatar = &a
		}
	}
	members := uniqueIDs(in.ParticipantIDs, in.CreatorID)
	if len(members) == 0 {
		return nil, apierr.Validation(msgGroupNeedsMembers)
	}
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := s.requireUsers(dbc, members); err != nil {
		return nil, err
	}

	existingID, hit, err := s.idem.Reserve(ctx, IdempotencyScopeGroup, in.CreatorID, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if hit {
		prior, gerr := s.repo.Conversations.GetWithParticipants(dbc, existingID)
		if gerr != nil {
			return nil, gerr
		}
		if prior != nil {
			ctxutil.MarkReplayed(ctx)
			return prior, nil
		}
	}
	committed := false
	defer func() {
		if !committed {
			s.idem.Release(context.WithoutCancel(ctx), IdempotencyScopeGroup, in.CreatorID, in.IdempotencyKey)
		}
	}()

	conv := &types.Conversation{ID: uuid.New(), Name: &name, AvatarURL: avatar}
	err = s.coord.RunThen(ctx, func(txx *gorm.DB, hooks *postcommit.Hooks) error {
		if _, err := s.repo.Conversations.CreateGroup(dbctx.Context{Ctx: ctx, Tx: txx}, conv, in.CreatorID, members); err != nil {
			return err
		}
		everyone := append([]uuid.UUID{in.CreatorID}, members...)
		hooks.After(convKey(conv.ID), "conversation.created", func(hctx context.Context) error {
			full, err := s.repo.Conversations.GetWithParticipants(dbctx.Context{Ctx: hctx}, conv.ID)
			if err != nil {
				return err
			}
			s.notify.ConversationCreated(hctx, full, everyone)
			return nil
		})
		return nil
	}, func() {
		committed = true
		s.idem.Commit(context.WithoutCancel(ctx), IdempotencyScopeGroup, in.CreatorID, in.IdempotencyKey, conv.ID)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Group created", "conversation_id", conv.ID, "members", len(members)+1)
	return s.repo.Conversations.GetWithParticipants(dbc, conv.ID)
}

// lockGroup locks the conversation and checks it is a group the caller
// belongs to. With adminOnly the caller must also be an admin.
func (s *groupService) lockGroup(dbc dbctx.Context, conversationID, userID uuid.UUID, adminOnly bool) (*types.Conversation, *types.Participant, error) {
	conv, err := s.repo.Conversations.LockByID(dbc, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if conv == nil {
		return nil, nil, apierr.NotFound(msgConversationNotFound)
	}
	if !conv.IsGroup {
		return nil, nil, apierr.InvalidOperation(msgGroupOnly)
	}
	member, err := s.repo.Participants.Get(dbc, conversationID, userID)
	if err != nil {
		return nil, nil, err
	}
	if adminOnly && (member == nil || !member.IsAdmin) {
		return nil, nil, apierr.Forbidden(msgOnlyAdmins)
	}
	if member == nil {
		return nil, nil, apierr.Forbidden(msgNotGroupParticipant)
	}
	return conv, member, nil
}

func (s *groupService) AddParticipants(ctx context.Context, conversationID, requesterID uuid.UUID, userIDs []uuid.UUID) ([]*types.User, error) {
	ids := uniqueIDs(userIDs, uuid.Nil)
	if len(ids) == 0 {
		return nil, apierr.Validation("at least one user is required")
	}
	var addedUsers []*types.User
	err := s.coord.Run(ctx, func(txx *gorm.DB, hooks *postcommit.Hooks) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: txx}
		conv, _, err := s.lockGroup(dbc, conversationID, requesterID, true)
		if err != nil {
			return err
		}
		users, err := s.requireUsers(dbc, ids)
		if err != nil {
			return err
		}
		added, err := s.repo.Participants.Add(dbc, conversationID, ids)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*types.User, len(users))
		for _, u := range users {
			byID[u.ID] = u
		}
		addedUsers = make([]*types.User, 0, len(added))
		for _, p := range added {
			if u := byID[p.UserID]; u != nil {
				addedUsers = append(addedUsers, u)
			}
		}
		if len(addedUsers) == 0 {
			return nil
		}
		notifyUsers := addedUsers
		hooks.After(convKey(conversationID), "participants.added", func(hctx context.Context) error {
			full, err := s.repo.Conversations.GetWithParticipants(dbctx.Context{Ctx: hctx}, conv.ID)
			if err != nil {
				return err
			}
			s.notify.ParticipantsAdded(hctx, full, notifyUsers, requesterID)
			return nil
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return addedUsers, nil
}

func (s *groupService) RemoveParticipant(ctx context.Context, conversationID, requesterID, targetID uuid.UUID) error {
	return s.coord.Run(ctx, func(txx *gorm.DB, hooks *postcommit.Hooks) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: txx}
		if _, _, err := s.lockGroup(dbc, conversationID, requesterID, true); err != nil {
			return err
		}
		if targetID == requesterID {
			return apierr.InvalidOperation(msgUseLeave)
		}
		removed, err := s.repo.Participants.Remove(dbc, conversationID, targetID)
		if err != nil {
			return err
		}
		if !removed {
			return apierr.NotFound(msgTargetNotMember)
		}
		change := realtime.MembershipChange{ConversationID: conversationID, UserIDs: []uuid.UUID{targetID}, ByUserID: requesterID}
		hooks.After(convKey(conversationID), "participants.removed", func(hctx context.Context) error {
			s.notify.ParticipantsRemoved(hctx, change)
			s.unread.Invalidate(hctx, targetID)
			return nil
		})
		return nil
	})
}

// LeaveGroup detaches the caller. The last member out dissolves the group;
// a departing last admin hands the role to the longest-standing member.
func (s *groupService) LeaveGroup(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	dissolved := false
	err := s.coord.Run(ctx, func(txx *gorm.DB, hooks *postcommit.Hooks) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: txx}
		_, member, err := s.lockGroup(dbc, conversationID, userID, false)
		if err != nil {
			return err
		}
		if _, err := s.repo.Participants.Remove(dbc, conversationID, userID); err != nil {
			return err
		}
		remaining, err := s.repo.Participants.Count(dbc, conversationID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if err := s.repo.Conversations.SoftDelete(dbc, conversationID); err != nil {
				return err
			}
			dissolved = true
		} else if member.IsAdmin {
			if err := s.ensureAdmin(dbc, conversationID); err != nil {
				return err
			}
		}

		change := realtime.MembershipChange{ConversationID: conversationID, UserIDs: []uuid.UUID{userID}, ByUserID: userID, Left: true}
		hooks.After(convKey(conversationID), "participants.removed", func(hctx context.Context) error {
			s.notify.ParticipantsRemoved(hctx, change)
			s.unread.Invalidate(hctx, userID)
			return nil
		})
		return nil
	})
	if err != nil {
		return false, err
	}
	if dissolved {
		s.log.Info("Group dissolved", "conversation_id", conversationID)
	}
	return dissolved, nil
}

func (s *groupService) ensureAdmin(dbc dbctx.Context, conversationID uuid.UUID) error {
	admins, err := s.repo.Participants.CountAdmins(dbc, conversationID)
	if err != nil || admins > 0 {
		return err
	}
	ids, err := s.repo.Participants.UserIDs(dbc, conversationID)
	if err != nil || len(ids) == 0 {
		return err
	}
	return s.repo.Participants.SetAdmin(dbc, conversationID, ids[0], true)
}

func (s *groupService) UpdateGroup(ctx context.Context, conversationID, requesterID uuid.UUID, in UpdateGroupInput) (*types.Conversation, error) {
	updates := map[string]interface{}{}
	if in.Name != nil {
		name, err := validateGroupName(*in.Name)
		if err != nil {
			return nil, err
		}
		updates["name"] = name
	}
	if in.AvatarURL != nil {
		url, err := validateAvatarURL(*in.AvatarURL)
		if err != nil {
			return nil, err
		}
		if url == "" {
			updates["avatar_url"] = nil
		} else {
			updates["avatar_url"] = url
		}
	}

	err := s.coord.Run(ctx, func(txx *gorm.DB, hooks *postcommit.Hooks) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: txx}
		if _, _, err := s.lockGroup(dbc, conversationID, requesterID, true); err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := s.repo.Conversations.UpdateFields(dbc, conversationID, updates); err != nil {
			return err
		}
		hooks.After(convKey(conversationID), "conversation.updated", func(hctx context.Context) error {
			conv, err := s.repo.Conversations.GetByID(dbctx.Context{Ctx: hctx}, conversationID)
			if err != nil {
				return err
			}
			s.notify.ConversationUpdated(hctx, conv)
			return nil
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Conversations.GetWithParticipants(dbctx.Context{Ctx: ctx}, conversationID)
}
