package chat

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/yungbote/huddle-backend/internal/data/db"
	types "github.com/yungbote/huddle-backend/internal/domain"
	"github.com/yungbote/huddle-backend/internal/platform/dbctx"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

type ConversationRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Conversation, error)
	GetWithParticipants(dbc dbctx.Context, id uuid.UUID) (*types.Conversation, error)
	GetByDirectKey(dbc dbctx.Context, key string) (*types.Conversation, error)
	CreateDirect(dbc dbctx.Context, initiatorID, peerID uuid.UUID) (*types.Conversation, bool, error)
	CreateGroup(dbc dbctx.Context, conv *types.Conversation, creatorID uuid.UUID, memberIDs []uuid.UUID) (*types.Conversation, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Conversation, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	SoftDelete(dbc dbctx.Context, id uuid.UUID) error
	ListForUser(dbc dbctx.Context, userID uuid.UUID, limit, offset int) ([]*types.Conversation, error)
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, baseLog *logger.Logger) ConversationRepo {
	return &conversationRepo{db: db, log: baseLog.With("repo", "ConversationRepo")}
}

func (r *conversationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Conversation, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Conversation
	if err := dbc.Or(r.db).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *conversationRepo) GetWithParticipants(dbc dbctx.Context, id uuid.UUID) (*types.Conversation, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Conversation
	err := dbc.Or(r.db).
		Preload("Participants", func(q *gorm.DB) *gorm.DB { return q.Order("joined_at ASC") }).
		Preload("Participants.User").
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *conversationRepo) GetByDirectKey(dbc dbctx.Context, key string) (*types.Conversation, error) {
	if key == "" {
		return nil, nil
	}
	var row types.Conversation
	if err := dbc.Or(r.db).Where("direct_key = ?", key).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

// CreateDirect inserts the conversation and both participants. The initiator
// starts with last_read_at=now and the peer with NULL. When another writer
// already holds the direct key the existing row is returned with created=false.
func (r *conversationRepo) CreateDirect(dbc dbctx.Context, initiatorID, peerID uuid.UUID) (*types.Conversation, bool, error) {
	key := types.DirectKeyFor(initiatorID, peerID)
	now := time.Now().UTC()
	conv := &types.Conversation{
		ID:        uuid.New(),
		IsGroup:   false,
		CreatedBy: initiatorID,
		DirectKey: &key,
	}

	root := dbc.Or(r.db)
	err := root.Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(conv).Error; err != nil {
			return err
		}
		members := []*types.Participant{
			{ConversationID: conv.ID, UserID: initiatorID, LastReadAt: &now, JoinedAt: now},
			{ConversationID: conv.ID, UserID: peerID, JoinedAt: now},
		}
		return txx.Create(&members).Error
	})
	if err == nil {
		return conv, true, nil
	}
	if !dbpkg.IsUniqueViolation(err) {
		return nil, false, err
	}

	r.log.Debug("direct conversation race lost, refetching", "direct_key", key)
	existing, ferr := r.GetByDirectKey(dbc, key)
	if ferr != nil {
		return nil, false, ferr
	}
	if existing == nil {
		return nil, false, errors.New("direct conversation vanished after unique violation")
	}
	return existing, false, nil
}

// CreateGroup inserts conv with the creator as admin and memberIDs as plain
// participants. memberIDs must not contain the creator.
func (r *conversationRepo) CreateGroup(dbc dbctx.Context, conv *types.Conversation, creatorID uuid.UUID, memberIDs []uuid.UUID) (*types.Conversation, error) {
	if conv == nil {
		return nil, errors.New("conversation is required")
	}
	conv.IsGroup = true
	conv.CreatedBy = creatorID
	conv.DirectKey = nil
	now := time.Now().UTC()

	err := dbc.Or(r.db).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(conv).Error; err != nil {
			return err
		}
		members := make([]*types.Participant, 0, len(memberIDs)+1)
		members = append(members, &types.Participant{
			ConversationID: conv.ID,
			UserID:         creatorID,
			IsAdmin:        true,
			LastReadAt:     &now,
			JoinedAt:       now,
		})
		for _, uid := range memberIDs {
			members = append(members, &types.Participant{ConversationID: conv.ID, UserID: uid, JoinedAt: now})
		}
		return txx.Create(&members).Error
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// LockByID takes a row lock on the conversation for the rest of the transaction.
func (r *conversationRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Conversation, error) {
	if dbc.Tx == nil {
		return nil, errors.New("LockByID requires a transaction")
	}
	var row types.Conversation
	err := dbc.Or(r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *conversationRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.Or(r.db).
		Model(&types.Conversation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *conversationRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	return dbc.Or(r.db).Where("id = ?", id).Delete(&types.Conversation{}).Error
}

// ListForUser returns the user's conversations, most recently active first,
// with participants and their users preloaded.
func (r *conversationRepo) ListForUser(dbc dbctx.Context, userID uuid.UUID, limit, offset int) ([]*types.Conversation, error) {
	var out []*types.Conversation
	if userID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	sub := dbc.Or(r.db).
		Model(&types.Participant{}).
		Select("conversation_id").
		Where("user_id = ?", userID)
	err := dbc.Or(r.db).
		Preload("Participants", func(q *gorm.DB) *gorm.DB { return q.Order("joined_at ASC") }).
		Preload("Participants.User").
		Where("id IN (?)", sub).
		Order("COALESCE(last_message_at, created_at) DESC").
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
