package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/huddle-backend/internal/domain"
	"github.com/yungbote/huddle-backend/internal/platform/dbctx"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

type AttachmentRepo interface {
	Create(dbc dbctx.Context, att *types.Attachment) (*types.Attachment, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Attachment, error)
	ListByMessage(dbc dbctx.Context, messageID uuid.UUID) ([]*types.Attachment, error)
	ClaimOrphans(dbc dbctx.Context, messageID, uploaderID uuid.UUID, ids []uuid.UUID) (int64, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type attachmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAttachmentRepo(db *gorm.DB, baseLog *logger.Logger) AttachmentRepo {
	return &attachmentRepo{db: db, log: baseLog.With("repo", "AttachmentRepo")}
}

func (r *attachmentRepo) Create(dbc dbctx.Context, att *types.Attachment) (*types.Attachment, error) {
	if err := dbc.Or(r.db).Create(att).Error; err != nil {
		return nil, err
	}
	return att, nil
}

func (r *attachmentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Attachment, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Attachment
	if err := dbc.Or(r.db).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *attachmentRepo) ListByMessage(dbc dbctx.Context, messageID uuid.UUID) ([]*types.Attachment, error) {
	var out []*types.Attachment
	if messageID == uuid.Nil {
		return out, nil
	}
	err := dbc.Or(r.db).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimOrphans links unlinked attachments owned by uploaderID to messageID.
// Ids that are already linked or belong to someone else are left untouched;
// the returned count tells the caller how many were claimed.
func (r *attachmentRepo) ClaimOrphans(dbc dbctx.Context, messageID, uploaderID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if messageID == uuid.Nil || len(ids) == 0 {
		return 0, nil
	}
	res := dbc.Or(r.db).
		Model(&types.Attachment{}).
		Where("id IN ? AND message_id IS NULL AND uploader_id = ?", ids, uploaderID).
		Updates(map[string]interface{}{
			"message_id": messageID,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *attachmentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.Or(r.db).
		Model(&types.Attachment{}).
		Where("id = ?", id).
		Updates(updates).Error
}
