package types

import (
	"time"

	"github.com/google/uuid"
)

// User carries identity only. Rows are created lazily the first time a
// browser shows up without a valid token.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (User) TableName() string { return "user" }
