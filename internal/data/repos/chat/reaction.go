package chat

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/yungbote/huddle-backend/internal/data/db"
	types "github.com/yungbote/huddle-backend/internal/domain"
	"github.com/yungbote/huddle-backend/internal/platform/dbctx"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

type ReactionRepo interface {
	Toggle(dbc dbctx.Context, messageID, userID uuid.UUID, emoji string) (bool, error)
	ListByMessage(dbc dbctx.Context, messageID uuid.UUID) ([]*types.Reaction, error)
}

type reactionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReactionRepo(db *gorm.DB, baseLog *logger.Logger) ReactionRepo {
	return &reactionRepo{db: db, log: baseLog.With("repo", "ReactionRepo")}
}

// Toggle removes the reaction when present and adds it otherwise. It reports
// whether the reaction exists afterwards.
func (r *reactionRepo) Toggle(dbc dbctx.Context, messageID, userID uuid.UUID, emoji string) (bool, error) {
	if messageID == uuid.Nil || userID == uuid.Nil || emoji == "" {
		return false, errors.New("message, user and emoji are required")
	}
	res := dbc.Or(r.db).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&types.Reaction{})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return false, nil
	}
	err := dbc.Or(r.db).Transaction(func(txx *gorm.DB) error {
		return txx.Create(&types.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji}).Error
	})
	if err != nil {
		if dbpkg.IsUniqueViolation(err) {
			return true, nil
		}
		return false, err
	}
	return true, nil
}

func (r *reactionRepo) ListByMessage(dbc dbctx.Context, messageID uuid.UUID) ([]*types.Reaction, error) {
	var out []*types.Reaction
	err := dbc.Or(r.db).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
