package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Reaction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MessageID uuid.UUID `gorm:"type:uuid;column:message_id;not null;uniqueIndex:idx_reaction_msg_user_emoji,priority:1" json:"message_id"`
	UserID    uuid.UUID `gorm:"type:uuid;column:user_id;not null;uniqueIndex:idx_reaction_msg_user_emoji,priority:2" json:"user_id"`
	Emoji     string    `gorm:"column:emoji;size:64;not null;uniqueIndex:idx_reaction_msg_user_emoji,priority:3" json:"emoji"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Reaction) TableName() string { return "message_reaction" }

func (r *Reaction) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
