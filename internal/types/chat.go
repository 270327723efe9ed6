package types

import (
	"time"

	"github.com/google/uuid"
)

// Chat is one conversation thread around a single uploaded document.
// Title stays null until the first OCR job completes and is never
// overwritten by later versions.
type Chat struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Ext       string    `gorm:"column:ext;not null" json:"ext"`
	Title     *string   `gorm:"column:title" json:"title"`
	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`

	Messages    []*Message    `gorm:"foreignKey:ChatID;references:ID" json:"messages,omitempty"`
	DocVersions []*DocVersion `gorm:"foreignKey:ChatID;references:ID" json:"doc_versions,omitempty"`
}

func (Chat) TableName() string { return "chat" }
