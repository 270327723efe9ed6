package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/docscan-backend/internal/types"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.User{},
		&types.Chat{},
		&types.Message{},
		&types.DocOrigin{},
		&types.DocVersion{},
	)
}
