package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/huddle-backend/internal/domain"
	"github.com/yungbote/huddle-backend/internal/platform/dbctx"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

type MessageRepo interface {
	Create(dbc dbctx.Context, msg *types.Message) (*types.Message, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Message, error)
	GetInConversation(dbc dbctx.Context, conversationID, id uuid.UUID) (*types.Message, error)
	ListByConversation(dbc dbctx.Context, conversationID uuid.UUID, beforeSeq int64, limit int) ([]*types.Message, error)
	LatestByConversations(dbc dbctx.Context, conversationIDs []uuid.UUID) (map[uuid.UUID]*types.Message, error)
	CountUnreadForUser(dbc dbctx.Context, userID uuid.UUID) (int64, error)
	UnreadByConversation(dbc dbctx.Context, userID uuid.UUID, conversationIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	MarkReadAt(dbc dbctx.Context, conversationID, readerID uuid.UUID, at time.Time) (int64, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	SoftDelete(dbc dbctx.Context, id uuid.UUID) error
	HardDeleteByConversation(dbc dbctx.Context, conversationID uuid.UUID) (int64, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: baseLog.With("repo", "MessageRepo")}
}

func withMessageRelations(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Sender").
		Preload("Attachments", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC") }).
		Preload("Reactions", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC") }).
		Preload("Parent").
		Preload("Parent.Sender")
}

func (r *messageRepo) Create(dbc dbctx.Context, msg *types.Message) (*types.Message, error) {
	if err := dbc.Or(r.db).Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *messageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Message, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Message
	if err := withMessageRelations(dbc.Or(r.db)).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *messageRepo) GetInConversation(dbc dbctx.Context, conversationID, id uuid.UUID) (*types.Message, error) {
	if conversationID == uuid.Nil || id == uuid.Nil {
		return nil, nil
	}
	var row types.Message
	err := dbc.Or(r.db).
		Where("id = ? AND conversation_id = ?", id, conversationID).
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

// ListByConversation pages by seq, newest first. beforeSeq <= 0 starts at the tail.
func (r *messageRepo) ListByConversation(dbc dbctx.Context, conversationID uuid.UUID, beforeSeq int64, limit int) ([]*types.Message, error) {
	var out []*types.Message
	if conversationID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := withMessageRelations(dbc.Or(r.db)).Where("conversation_id = ?", conversationID)
	if beforeSeq > 0 {
		q = q.Where("seq < ?", beforeSeq)
	}
	if err := q.Order("seq DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *messageRepo) LatestByConversations(dbc dbctx.Context, conversationIDs []uuid.UUID) (map[uuid.UUID]*types.Message, error) {
	out := map[uuid.UUID]*types.Message{}
	if len(conversationIDs) == 0 {
		return out, nil
	}
	var rows []*types.Message
	err := dbc.Or(r.db).
		Preload("Sender").
		Joins(`JOIN (
			SELECT conversation_id AS latest_conversation_id, MAX(seq) AS latest_seq
			FROM message
			WHERE deleted_at IS NULL AND conversation_id IN ?
			GROUP BY conversation_id
		) latest ON latest.latest_conversation_id = message.conversation_id AND latest.latest_seq = message.seq`, conversationIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, m := range rows {
		out[m.ConversationID] = m
	}
	return out, nil
}

const unreadWatermarkSQL = `
	FROM message m
	JOIN conversation_participant p ON p.conversation_id = m.conversation_id AND p.user_id = ?
	JOIN conversation c ON c.id = m.conversation_id AND c.deleted_at IS NULL
	WHERE m.deleted_at IS NULL
	  AND m.sender_id <> ?
	  AND (p.last_read_at IS NULL OR m.created_at > p.last_read_at)`

// CountUnreadForUser counts messages from others that arrived after the user's
// per-conversation read watermark.
func (r *messageRepo) CountUnreadForUser(dbc dbctx.Context, userID uuid.UUID) (int64, error) {
	var n int64
	if userID == uuid.Nil {
		return 0, nil
	}
	err := dbc.Or(r.db).
		Raw("SELECT COUNT(*)"+unreadWatermarkSQL, userID, userID).
		Scan(&n).Error
	return n, err
}

func (r *messageRepo) UnreadByConversation(dbc dbctx.Context, userID uuid.UUID, conversationIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := map[uuid.UUID]int64{}
	if userID == uuid.Nil || len(conversationIDs) == 0 {
		return out, nil
	}
	type row struct {
		ConversationID uuid.UUID
		Unread         int64
	}
	var rows []row
	err := dbc.Or(r.db).
		Raw("SELECT m.conversation_id AS conversation_id, COUNT(*) AS unread"+unreadWatermarkSQL+
			" AND m.conversation_id IN ? GROUP BY m.conversation_id", userID, userID, conversationIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, rr := range rows {
		out[rr.ConversationID] = rr.Unread
	}
	return out, nil
}

// MarkReadAt sets the legacy read_at flag on messages the reader received.
func (r *messageRepo) MarkReadAt(dbc dbctx.Context, conversationID, readerID uuid.UUID, at time.Time) (int64, error) {
	res := dbc.Or(r.db).
		Model(&types.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND read_at IS NULL", conversationID, readerID).
		Update("read_at", at.UTC())
	return res.RowsAffected, res.Error
}

func (r *messageRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.Or(r.db).
		Model(&types.Message{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *messageRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	return dbc.Or(r.db).Where("id = ?", id).Delete(&types.Message{}).Error
}

// HardDeleteByConversation removes every message of the conversation along
// with its reactions and attachment rows.
func (r *messageRepo) HardDeleteByConversation(dbc dbctx.Context, conversationID uuid.UUID) (int64, error) {
	if conversationID == uuid.Nil {
		return 0, nil
	}
	var deleted int64
	err := dbc.Or(r.db).Transaction(func(txx *gorm.DB) error {
		ids := txx.Unscoped().Model(&types.Message{}).Select("id").Where("conversation_id = ?", conversationID)
		if err := txx.Where("message_id IN (?)", ids).Delete(&types.Reaction{}).Error; err != nil {
			return err
		}
		if err := txx.Where("message_id IN (?)", ids).Delete(&types.Attachment{}).Error; err != nil {
			return err
		}
		res := txx.Unscoped().Where("conversation_id = ?", conversationID).Delete(&types.Message{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}
