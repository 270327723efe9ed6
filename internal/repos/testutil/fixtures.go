package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docscan-backend/internal/types"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB) *types.User {
	tb.Helper()
	u := &types.User{ID: uuid.New()}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedChat(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID) *types.Chat {
	tb.Helper()
	c := &types.Chat{
		ID:     uuid.New(),
		UserID: userID,
		Ext:    "png",
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed chat: %v", err)
	}
	return c
}

func SeedOrigin(tb testing.TB, ctx context.Context, tx *gorm.DB, content *string) *types.DocOrigin {
	tb.Helper()
	o := &types.DocOrigin{
		ID:        uuid.New(),
		IsArchive: false,
		Ext:       "png",
		Content:   content,
	}
	if err := tx.WithContext(ctx).Create(o).Error; err != nil {
		tb.Fatalf("seed origin: %v", err)
	}
	return o
}

func SeedVersion(tb testing.TB, ctx context.Context, tx *gorm.DB, chatID, originID uuid.UUID) *types.DocVersion {
	tb.Helper()
	v := &types.DocVersion{
		ID:          uuid.New(),
		ChatID:      chatID,
		DocOriginID: originID,
		Status:      types.DocVersionStatusPending,
		Metadata:    []byte(`{}`),
	}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed version: %v", err)
	}
	return v
}
