package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is owned by the external identity provider; this service only reads
// id and name, and keeps a local row for joins.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Name      string    `gorm:"not null;column:name" json:"name"`
	AvatarURL string    `gorm:"column:avatar_url" json:"avatar_url,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "user" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
