package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Doc version job statuses. A null-content row with StatusPending is still
// processing; StatusFailed means the generation job died and the content
// will never arrive.
const (
	DocVersionStatusPending = "pending"
	DocVersionStatusDone    = "done"
	DocVersionStatusFailed  = "failed"
)

// DocOrigin is the immutable source artifact of an upload. Content holds
// the canonical latest recognized text and is reused by search and rewrite
// flows.
type DocOrigin struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	IsArchive bool      `gorm:"column:is_archive;not null" json:"is_archive"`
	Ext       string    `gorm:"column:ext;not null" json:"ext"`
	Content   *string   `gorm:"column:content;type:text" json:"content"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (DocOrigin) TableName() string { return "doc_origin" }

// DocVersion is one revision of a document's working text. DocOriginID never
// changes after creation; Content is written either by the one generation job
// that owns this id or by an explicit save.
type DocVersion struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ChatID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"chat_id"`
	DocOriginID uuid.UUID      `gorm:"type:uuid;not null;index" json:"doc_origin_id"`
	Content     *string        `gorm:"column:content;type:text" json:"content"`
	Status      string         `gorm:"column:status;not null;default:'pending';index" json:"status"`
	Metadata    datatypes.JSON `gorm:"type:jsonb;column:metadata;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (DocVersion) TableName() string { return "doc_version" }
