package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/huddle-backend/internal/domain/user"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeVideo  MessageType = "video"
	MessageTypeVoice  MessageType = "voice"
	MessageTypeSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeVideo, MessageTypeVoice, MessageTypeSystem:
		return true
	default:
		return false
	}
}

type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;column:conversation_id;not null;index:idx_message_conv_seq,priority:1" json:"conversation_id"`
	SenderID       uuid.UUID `gorm:"type:uuid;column:sender_id;not null;index" json:"sender_id"`
	Seq            int64     `gorm:"column:seq;not null;index:idx_message_conv_seq,priority:2" json:"seq"`

	Content  *string        `gorm:"column:content" json:"content"`
	Type     MessageType    `gorm:"column:type;not null;default:'text'" json:"type"`
	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	ParentID *uuid.UUID     `gorm:"type:uuid;column:parent_id;index" json:"parent_id,omitempty"`

	// ReadAt is the legacy single-reader flag; participant watermarks are authoritative.
	ReadAt     *time.Time `gorm:"column:read_at" json:"read_at,omitempty"`
	IsFavorite bool       `gorm:"column:is_favorite;not null;default:false" json:"is_favorite"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Sender      *user.User    `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Parent      *Message      `gorm:"foreignKey:ParentID" json:"parent,omitempty"`
	Attachments []*Attachment `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`
	Reactions   []*Reaction   `gorm:"foreignKey:MessageID" json:"reactions,omitempty"`
}

func (Message) TableName() string { return "message" }

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Type == "" {
		m.Type = MessageTypeText
	}
	return nil
}
