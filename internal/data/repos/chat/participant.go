package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/huddle-backend/internal/domain"
	"github.com/yungbote/huddle-backend/internal/platform/dbctx"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

type ParticipantRepo interface {
	Get(dbc dbctx.Context, conversationID, userID uuid.UUID) (*types.Participant, error)
	ListByConversation(dbc dbctx.Context, conversationID uuid.UUID) ([]*types.Participant, error)
	UserIDs(dbc dbctx.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
	Add(dbc dbctx.Context, conversationID uuid.UUID, userIDs []uuid.UUID) ([]*types.Participant, error)
	Remove(dbc dbctx.Context, conversationID, userID uuid.UUID) (bool, error)
	Count(dbc dbctx.Context, conversationID uuid.UUID) (int64, error)
	UpdateLastRead(dbc dbctx.Context, conversationID, userID uuid.UUID, at time.Time) error
	SetAdmin(dbc dbctx.Context, conversationID, userID uuid.UUID, isAdmin bool) error
	CountAdmins(dbc dbctx.Context, conversationID uuid.UUID) (int64, error)
}

type participantRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewParticipantRepo(db *gorm.DB, baseLog *logger.Logger) ParticipantRepo {
	return &participantRepo{db: db, log: baseLog.With("repo", "ParticipantRepo")}
}

func (r *participantRepo) Get(dbc dbctx.Context, conversationID, userID uuid.UUID) (*types.Participant, error) {
	if conversationID == uuid.Nil || userID == uuid.Nil {
		return nil, nil
	}
	var row types.Participant
	err := dbc.Or(r.db).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
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

func (r *participantRepo) ListByConversation(dbc dbctx.Context, conversationID uuid.UUID) ([]*types.Participant, error) {
	var out []*types.Participant
	if conversationID == uuid.Nil {
		return out, nil
	}
	err := dbc.Or(r.db).
		Preload("User").
		Where("conversation_id = ?", conversationID).
		Order("joined_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *participantRepo) UserIDs(dbc dbctx.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	if conversationID == uuid.Nil {
		return out, nil
	}
	err := dbc.Or(r.db).
		Model(&types.Participant{}).
		Where("conversation_id = ?", conversationID).
		Order("joined_at ASC").
		Pluck("user_id", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Add attaches userIDs as non-admin participants and returns only the rows
// that were actually inserted. Existing members are skipped.
func (r *participantRepo) Add(dbc dbctx.Context, conversationID uuid.UUID, userIDs []uuid.UUID) ([]*types.Participant, error) {
	added := []*types.Participant{}
	if conversationID == uuid.Nil || len(userIDs) == 0 {
		return added, nil
	}
	var existing []uuid.UUID
	err := dbc.Or(r.db).
		Model(&types.Participant{}).
		Where("conversation_id = ? AND user_id IN ?", conversationID, userIDs).
		Pluck("user_id", &existing).Error
	if err != nil {
		return nil, err
	}
	skip := make(map[uuid.UUID]bool, len(existing))
	for _, id := range existing {
		skip[id] = true
	}
	now := time.Now().UTC()
	for _, uid := range userIDs {
		if uid == uuid.Nil || skip[uid] {
			continue
		}
		skip[uid] = true
		added = append(added, &types.Participant{ConversationID: conversationID, UserID: uid, JoinedAt: now})
	}
	if len(added) == 0 {
		return added, nil
	}
	if err := dbc.Or(r.db).Create(&added).Error; err != nil {
		return nil, err
	}
	return added, nil
}

func (r *participantRepo) Remove(dbc dbctx.Context, conversationID, userID uuid.UUID) (bool, error) {
	res := dbc.Or(r.db).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Delete(&types.Participant{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *participantRepo) Count(dbc dbctx.Context, conversationID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.Or(r.db).
		Model(&types.Participant{}).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error
	return n, err
}

func (r *participantRepo) UpdateLastRead(dbc dbctx.Context, conversationID, userID uuid.UUID, at time.Time) error {
	return dbc.Or(r.db).
		Model(&types.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("last_read_at", at.UTC()).Error
}

func (r *participantRepo) SetAdmin(dbc dbctx.Context, conversationID, userID uuid.UUID, isAdmin bool) error {
	return dbc.Or(r.db).
		Model(&types.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("is_admin", isAdmin).Error
}

func (r *participantRepo) CountAdmins(dbc dbctx.Context, conversationID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.Or(r.db).
		Model(&types.Participant{}).
		Where("conversation_id = ? AND is_admin = ?", conversationID, true).
		Count(&n).Error
	return n, err
}
