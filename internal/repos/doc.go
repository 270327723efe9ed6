package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "github.com/yungbote/docscan-backend/internal/pkg/errors"
	"github.com/yungbote/docscan-backend/internal/pkg/logger"
	"github.com/yungbote/docscan-backend/internal/types"
)

type DocOriginRepo interface {
	Create(ctx context.Context, tx *gorm.DB, origin *types.DocOrigin) (*types.DocOrigin, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.DocOrigin, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.DocOrigin, error)
	// UpdateContent replaces the canonical recognized text. Idempotent:
	// writing the same content twice leaves a single value.
	UpdateContent(ctx context.Context, tx *gorm.DB, id uuid.UUID, content string) error
}

type docOriginRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocOriginRepo(db *gorm.DB, baseLog *logger.Logger) DocOriginRepo {
	return &docOriginRepo{db: db, log: baseLog.With("repo", "DocOriginRepo")}
}

func (r *docOriginRepo) Create(ctx context.Context, tx *gorm.DB, origin *types.DocOrigin) (*types.DocOrigin, error) {
	if origin == nil {
		return nil, fmt.Errorf("missing origin: %w", apperrors.ErrInvalidArgument)
	}
	if origin.ID == uuid.Nil {
		origin.ID = uuid.New()
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(origin).Error; err != nil {
		return nil, err
	}
	return origin, nil
}

func (r *docOriginRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.DocOrigin, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var origin types.DocOrigin
	if err := transaction.WithContext(ctx).First(&origin, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("doc origin %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &origin, nil
}

func (r *docOriginRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.DocOrigin, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.DocOrigin
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *docOriginRepo) UpdateContent(ctx context.Context, tx *gorm.DB, id uuid.UUID, content string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.DocOrigin{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content":    content,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("doc origin %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

type DocVersionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, version *types.DocVersion) (*types.DocVersion, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.DocVersion, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.DocVersion, error)
	ListByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) ([]*types.DocVersion, error)
	// LatestByChat returns the newest version of the chat.
	LatestByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) (*types.DocVersion, error)
	// UpdateContent is the manual save path; it overwrites content regardless
	// of job status and returns the updated row.
	UpdateContent(ctx context.Context, tx *gorm.DB, id uuid.UUID, content string) (*types.DocVersion, error)
	// FinalizeContent is the generation-job path: it writes content and flips
	// status pending -> done in one conditional update, reporting false when
	// the row was not pending anymore (another writer got there first).
	FinalizeContent(ctx context.Context, tx *gorm.DB, id uuid.UUID, content string) (bool, error)
	MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause string) error
}

type docVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocVersionRepo(db *gorm.DB, baseLog *logger.Logger) DocVersionRepo {
	return &docVersionRepo{db: db, log: baseLog.With("repo", "DocVersionRepo")}
}

func (r *docVersionRepo) Create(ctx context.Context, tx *gorm.DB, version *types.DocVersion) (*types.DocVersion, error) {
	if version == nil {
		return nil, fmt.Errorf("missing version: %w", apperrors.ErrInvalidArgument)
	}
	if version.ChatID == uuid.Nil || version.DocOriginID == uuid.Nil {
		return nil, fmt.Errorf("missing chat_id or doc_origin_id: %w", apperrors.ErrInvalidArgument)
	}
	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}
	if version.Status == "" {
		version.Status = types.DocVersionStatusPending
	}
	if len(version.Metadata) == 0 {
		version.Metadata = []byte(`{}`)
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(version).Error; err != nil {
		return nil, err
	}
	return version, nil
}

func (r *docVersionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.DocVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var version types.DocVersion
	if err := transaction.WithContext(ctx).First(&version, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("doc version %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &version, nil
}

func (r *docVersionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.DocVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.DocVersion
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *docVersionRepo) ListByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) ([]*types.DocVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var versions []*types.DocVersion
	if err := transaction.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

func (r *docVersionRepo) LatestByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) (*types.DocVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var version types.DocVersion
	err := transaction.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		First(&version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no doc version for chat %s: %w", chatID, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &version, nil
}

func (r *docVersionRepo) UpdateContent(ctx context.Context, tx *gorm.DB, id uuid.UUID, content string) (*types.DocVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.DocVersion{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content":    content,
			"status":     types.DocVersionStatusDone,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("doc version %s: %w", id, apperrors.ErrNotFound)
	}
	return r.GetByID(ctx, transaction, id)
}

func (r *docVersionRepo) FinalizeContent(ctx context.Context, tx *gorm.DB, id uuid.UUID, content string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.DocVersion{}).
		Where("id = ? AND status = ?", id, types.DocVersionStatusPending).
		Updates(map[string]interface{}{
			"content":    content,
			"status":     types.DocVersionStatusDone,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *docVersionRepo) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	meta := fmt.Sprintf(`{"error":%q}`, cause)
	return transaction.WithContext(ctx).
		Model(&types.DocVersion{}).
		Where("id = ? AND status = ?", id, types.DocVersionStatusPending).
		Updates(map[string]interface{}{
			"status":     types.DocVersionStatusFailed,
			"metadata":   meta,
			"updated_at": time.Now().UTC(),
		}).Error
}
