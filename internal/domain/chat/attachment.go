package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Attachment struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	MessageID  *uuid.UUID `gorm:"type:uuid;column:message_id;index" json:"message_id,omitempty"`
	UploaderID uuid.UUID  `gorm:"type:uuid;column:uploader_id;not null;index" json:"uploader_id"`

	OriginalName string `gorm:"column:original_name;not null" json:"original_name"`
	MimeType     string `gorm:"column:mime_type;not null" json:"mime_type"`
	StoragePath  string `gorm:"column:storage_path;not null" json:"-"`
	SizeBytes    int64  `gorm:"column:size_bytes;not null" json:"size_bytes"`

	Width         *int       `gorm:"column:width" json:"width,omitempty"`
	Height        *int       `gorm:"column:height" json:"height,omitempty"`
	ThumbnailPath *string    `gorm:"column:thumbnail_path" json:"-"`
	ProcessedAt   *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`

	// Filled by the service layer from the storage provider; not persisted.
	URL          string `gorm:"-" json:"url,omitempty"`
	ThumbnailURL string `gorm:"-" json:"thumbnail_url,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Attachment) TableName() string { return "message_attachment" }

func (a *Attachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
