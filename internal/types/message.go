package types

import (
	"time"

	"github.com/google/uuid"
)

// Message is immutable once created. IsUser distinguishes the human turn
// from assistant/system turns; ordering within a chat is by created_at.
type Message struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ChatID    uuid.UUID `gorm:"type:uuid;not null;index" json:"chat_id"`
	IsUser    bool      `gorm:"column:is_user;not null" json:"is_user"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (Message) TableName() string { return "message" }
