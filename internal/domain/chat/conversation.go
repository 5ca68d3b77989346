package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	IsGroup   bool      `gorm:"column:is_group;not null;default:false;index" json:"is_group"`
	Name      *string   `gorm:"column:name" json:"name,omitempty"`
	AvatarURL *string   `gorm:"column:avatar_url" json:"avatar_url,omitempty"`
	CreatedBy uuid.UUID `gorm:"type:uuid;column:created_by;not null;index" json:"created_by"`

	// DirectKey is "<lowUUID>:<highUUID>" for direct conversations and NULL for
	// groups; the unique index makes first contact race-safe.
	DirectKey *string `gorm:"column:direct_key;uniqueIndex" json:"-"`

	NextSeq       int64      `gorm:"column:next_seq;not null;default:0" json:"-"`
	LastMessageAt *time.Time `gorm:"column:last_message_at;index" json:"last_message_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Participants []*Participant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

func (Conversation) TableName() string { return "conversation" }

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// DirectKeyFor is symmetric in its arguments.
func DirectKeyFor(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return x + ":" + y
}
