package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/huddle-backend/internal/domain/user"
)

type Participant struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID  `gorm:"type:uuid;column:conversation_id;not null;uniqueIndex:idx_participant_conv_user,priority:1" json:"conversation_id"`
	UserID         uuid.UUID  `gorm:"type:uuid;column:user_id;not null;uniqueIndex:idx_participant_conv_user,priority:2;index" json:"user_id"`
	IsAdmin        bool       `gorm:"column:is_admin;not null;default:false" json:"is_admin"`
	LastReadAt     *time.Time `gorm:"column:last_read_at" json:"last_read_at,omitempty"`
	JoinedAt       time.Time  `gorm:"column:joined_at;not null" json:"joined_at"`

	User *user.User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Participant) TableName() string { return "conversation_participant" }

func (p *Participant) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}
	return nil
}
