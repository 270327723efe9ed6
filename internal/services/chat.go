package services

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docscan-backend/internal/clients/gcp"
	apperrors "github.com/yungbote/docscan-backend/internal/pkg/errors"
	"github.com/yungbote/docscan-backend/internal/pkg/logger"
	"github.com/yungbote/docscan-backend/internal/repos"
	"github.com/yungbote/docscan-backend/internal/types"
)

type NewChatResult struct {
	ChatID       uuid.UUID `json:"chat_id"`
	DocVersionID uuid.UUID `json:"doc_version_id"`
}

// ChatDetail is the fully populated chat view: ordered messages, ordered doc
// versions, and a short-lived link to the uploaded image.
type ChatDetail struct {
	ID          uuid.UUID           `json:"id"`
	Title       *string             `json:"title"`
	CreatedAt   time.Time           `json:"created_at"`
	ImageURL    string              `json:"image_url,omitempty"`
	Messages    []*types.Message    `json:"messages"`
	DocVersions []*types.DocVersion `json:"doc_versions"`
}

type ChatService interface {
	// NewChat creates the chat, its origin and its first pending version in one
	// transaction, stores the uploaded image, and schedules the OCR job.
	NewChat(ctx context.Context, userID uuid.UUID, filename string, file io.Reader) (*NewChatResult, error)
	GetChat(ctx context.Context, userID, chatID uuid.UUID) (*ChatDetail, error)
	ListChats(ctx context.Context, userID uuid.UUID) ([]*types.Chat, error)
	// ChatFromSearch starts a new chat over an already recognized origin. The
	// new version gets a copy of the origin's content as of now; no job runs.
	ChatFromSearch(ctx context.Context, userID, originID uuid.UUID) (*ChatDetail, error)
}

type chatService struct {
	log      *logger.Logger
	db       *gorm.DB
	chats    repos.ChatRepo
	versions repos.DocVersionRepo
	origins  repos.DocOriginRepo
	bucket   gcp.BucketClient
	gen      GenerationService
}

func NewChatService(
	log *logger.Logger,
	db *gorm.DB,
	chats repos.ChatRepo,
	versions repos.DocVersionRepo,
	origins repos.DocOriginRepo,
	bucket gcp.BucketClient,
	gen GenerationService,
) (ChatService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if chats == nil || versions == nil || origins == nil {
		return nil, fmt.Errorf("repos required")
	}
	if bucket == nil {
		return nil, fmt.Errorf("bucket client required")
	}
	if gen == nil {
		return nil, fmt.Errorf("generation service required")
	}
	return &chatService{
		log:      log.With("service", "ChatService"),
		db:       db,
		chats:    chats,
		versions: versions,
		origins:  origins,
		bucket:   bucket,
		gen:      gen,
	}, nil
}

var allowedImageExts = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"webp": true,
	"gif":  true,
}

func objectKey(chatID uuid.UUID, ext string) string {
	return chatID.String() + "." + ext
}

func (s *chatService) NewChat(ctx context.Context, userID uuid.UUID, filename string, file io.Reader) (*NewChatResult, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !allowedImageExts[ext] {
		return nil, fmt.Errorf("unsupported file type %q: %w", ext, apperrors.ErrInvalidArgument)
	}
	if file == nil {
		return nil, fmt.Errorf("missing file: %w", apperrors.ErrInvalidArgument)
	}

	var (
		chat    *types.Chat
		version *types.DocVersion
		origin  *types.DocOrigin
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		chat, err = s.chats.Create(ctx, tx, &types.Chat{UserID: userID, Ext: ext})
		if err != nil {
			return err
		}
		origin, err = s.origins.Create(ctx, tx, &types.DocOrigin{Ext: ext})
		if err != nil {
			return err
		}
		version, err = s.versions.Create(ctx, tx, &types.DocVersion{
			ChatID:      chat.ID,
			DocOriginID: origin.ID,
		})
		if err != nil {
			return err
		}
		// Upload inside the transaction so a storage failure rolls everything
		// back instead of leaving a chat with no image.
		return s.bucket.UploadFile(ctx, objectKey(chat.ID, ext), file, "")
	})
	if err != nil {
		return nil, err
	}

	s.gen.StartOCR(version.ID, origin.ID, chat.ID, objectKey(chat.ID, ext))
	s.log.Info("Created chat", "chat_id", chat.ID.String(), "doc_version_id", version.ID.String())

	return &NewChatResult{ChatID: chat.ID, DocVersionID: version.ID}, nil
}

func (s *chatService) GetChat(ctx context.Context, userID, chatID uuid.UUID) (*ChatDetail, error) {
	chat, err := s.chats.GetDetail(ctx, nil, chatID)
	if err != nil {
		return nil, err
	}
	if chat.UserID != userID {
		return nil, fmt.Errorf("chat %s: %w", chatID, apperrors.ErrUnauthorized)
	}
	return s.detail(ctx, chat), nil
}

func (s *chatService) detail(ctx context.Context, chat *types.Chat) *ChatDetail {
	d := &ChatDetail{
		ID:          chat.ID,
		Title:       chat.Title,
		CreatedAt:   chat.CreatedAt,
		Messages:    chat.Messages,
		DocVersions: chat.DocVersions,
	}
	if d.Messages == nil {
		d.Messages = []*types.Message{}
	}
	if d.DocVersions == nil {
		d.DocVersions = []*types.DocVersion{}
	}
	url, err := s.bucket.SignedURL(ctx, objectKey(chat.ID, chat.Ext))
	if err != nil {
		s.log.Warn("Failed to sign image url", "chat_id", chat.ID.String(), "error", err.Error())
	} else {
		d.ImageURL = url
	}
	return d
}

func (s *chatService) ListChats(ctx context.Context, userID uuid.UUID) ([]*types.Chat, error) {
	chats, err := s.chats.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if chats == nil {
		chats = []*types.Chat{}
	}
	return chats, nil
}

func (s *chatService) ChatFromSearch(ctx context.Context, userID, originID uuid.UUID) (*ChatDetail, error) {
	origin, err := s.origins.GetByID(ctx, nil, originID)
	if err != nil {
		return nil, err
	}
	if origin.Content == nil {
		return nil, fmt.Errorf("doc origin %s has no recognized content: %w", originID, apperrors.ErrInvalidArgument)
	}
	// Snapshot now; later edits to the origin must not leak into this chat.
	content := *origin.Content

	var chat *types.Chat
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		chat, err = s.chats.Create(ctx, tx, &types.Chat{UserID: userID, Ext: origin.Ext})
		if err != nil {
			return err
		}
		_, err = s.versions.Create(ctx, tx, &types.DocVersion{
			ChatID:      chat.ID,
			DocOriginID: origin.ID,
			Content:     &content,
			Status:      types.DocVersionStatusDone,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Created chat from search", "chat_id", chat.ID.String(), "doc_origin_id", originID.String())
	return s.GetChat(ctx, userID, chat.ID)
}
