package repos

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "github.com/yungbote/docscan-backend/internal/pkg/errors"
	"github.com/yungbote/docscan-backend/internal/pkg/logger"
	"github.com/yungbote/docscan-backend/internal/types"
)

type MessageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, msg *types.Message) (*types.Message, error)
	ListByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) ([]*types.Message, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: baseLog.With("repo", "MessageRepo")}
}

func (r *messageRepo) Create(ctx context.Context, tx *gorm.DB, msg *types.Message) (*types.Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("missing message: %w", apperrors.ErrInvalidArgument)
	}
	if msg.ChatID == uuid.Nil {
		return nil, fmt.Errorf("missing chat_id: %w", apperrors.ErrInvalidArgument)
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *messageRepo) ListByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) ([]*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var msgs []*types.Message
	if err := transaction.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}
