package repos

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "github.com/yungbote/docscan-backend/internal/pkg/errors"
	"github.com/yungbote/docscan-backend/internal/pkg/logger"
	"github.com/yungbote/docscan-backend/internal/types"
)

type ChatRepo interface {
	Create(ctx context.Context, tx *gorm.DB, chat *types.Chat) (*types.Chat, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Chat, error)
	// GetDetail returns the chat with its messages and doc versions eagerly
	// loaded, both ordered by creation time ascending.
	GetDetail(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Chat, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Chat, error)
	// SetTitleIfUnset sets the title only when it is still null and reports
	// whether a row was updated.
	SetTitleIfUnset(ctx context.Context, tx *gorm.DB, id uuid.UUID, title string) (bool, error)
}

type chatRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatRepo(db *gorm.DB, baseLog *logger.Logger) ChatRepo {
	return &chatRepo{db: db, log: baseLog.With("repo", "ChatRepo")}
}

func (r *chatRepo) Create(ctx context.Context, tx *gorm.DB, chat *types.Chat) (*types.Chat, error) {
	if chat == nil {
		return nil, fmt.Errorf("missing chat: %w", apperrors.ErrInvalidArgument)
	}
	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(chat).Error; err != nil {
		return nil, err
	}
	return chat, nil
}

func (r *chatRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Chat, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var chat types.Chat
	if err := transaction.WithContext(ctx).First(&chat, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("chat %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &chat, nil
}

func (r *chatRepo) GetDetail(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Chat, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var chat types.Chat
	err := transaction.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("DocVersions", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&chat, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("chat %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &chat, nil
}

func (r *chatRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Chat, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var chats []*types.Chat
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&chats).Error; err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *chatRepo) SetTitleIfUnset(ctx context.Context, tx *gorm.DB, id uuid.UUID, title string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.Chat{}).
		Where("id = ? AND title IS NULL", id).
		Update("title", title)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
