package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/docscan-backend/internal/clients/openai"
	"github.com/yungbote/docscan-backend/internal/clients/pinecone"
	apperrors "github.com/yungbote/docscan-backend/internal/pkg/errors"
	"github.com/yungbote/docscan-backend/internal/pkg/logger"
	"github.com/yungbote/docscan-backend/internal/repos"
	"github.com/yungbote/docscan-backend/internal/types"
)

const searchTopK = 10

type DocService interface {
	// Save is the manual edit path. It overwrites the version's content
	// directly, regardless of any generation status.
	Save(ctx context.Context, userID, versionID uuid.UUID, content string) (*types.DocVersion, error)
	GetOrigin(ctx context.Context, originID uuid.UUID) (*types.DocOrigin, error)
	// Search finds recognized documents semantically close to text.
	Search(ctx context.Context, text string) ([]*types.DocOrigin, error)
}

type docService struct {
	log      *logger.Logger
	versions repos.DocVersionRepo
	origins  repos.DocOriginRepo
	chats    repos.ChatRepo
	ai       openai.Client
	store    pinecone.VectorStore
	indexer  Indexer
}

func NewDocService(
	log *logger.Logger,
	versions repos.DocVersionRepo,
	origins repos.DocOriginRepo,
	chats repos.ChatRepo,
	ai openai.Client,
	store pinecone.VectorStore,
	indexer Indexer,
) (DocService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if versions == nil || origins == nil || chats == nil {
		return nil, fmt.Errorf("repos required")
	}
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	return &docService{
		log:      log.With("service", "DocService"),
		versions: versions,
		origins:  origins,
		chats:    chats,
		ai:       ai,
		store:    store,
		indexer:  indexer,
	}, nil
}

func (s *docService) Save(ctx context.Context, userID, versionID uuid.UUID, content string) (*types.DocVersion, error) {
	version, err := s.versions.GetByID(ctx, nil, versionID)
	if err != nil {
		return nil, err
	}
	chat, err := s.chats.GetByID(ctx, nil, version.ChatID)
	if err != nil {
		return nil, err
	}
	if chat.UserID != userID {
		return nil, fmt.Errorf("doc version %s: %w", versionID, apperrors.ErrUnauthorized)
	}

	updated, err := s.versions.UpdateContent(ctx, nil, versionID, content)
	if err != nil {
		return nil, err
	}

	if s.indexer != nil {
		go func() {
			idxCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := s.indexer.IndexVersion(idxCtx, versionID, version.DocOriginID, version.ChatID, content); err != nil {
				s.log.Error("Search re-indexing failed", "doc_version_id", versionID.String(), "error", err.Error())
			}
		}()
	}

	return updated, nil
}

func (s *docService) GetOrigin(ctx context.Context, originID uuid.UUID) (*types.DocOrigin, error) {
	return s.origins.GetByID(ctx, nil, originID)
}

func (s *docService) Search(ctx context.Context, text string) ([]*types.DocOrigin, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("search text required: %w", apperrors.ErrInvalidArgument)
	}
	if s.store == nil {
		return nil, fmt.Errorf("search unavailable")
	}

	vectors, err := s.ai.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vectors))
	}

	ids, err := s.store.QueryIDs(ctx, vectors[0], searchTopK, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	versionIDs := make([]uuid.UUID, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.log.Warn("Ignoring non-uuid vector id", "id", raw)
			continue
		}
		versionIDs = append(versionIDs, id)
	}
	if len(versionIDs) == 0 {
		return []*types.DocOrigin{}, nil
	}

	versions, err := s.versions.GetByIDs(ctx, nil, versionIDs)
	if err != nil {
		return nil, err
	}
	versionByID := make(map[uuid.UUID]*types.DocVersion, len(versions))
	for _, v := range versions {
		versionByID[v.ID] = v
	}

	// Origins are returned in match order, deduplicated.
	orderedOriginIDs := make([]uuid.UUID, 0, len(versionIDs))
	seen := make(map[uuid.UUID]bool, len(versionIDs))
	for _, vid := range versionIDs {
		v, ok := versionByID[vid]
		if !ok || seen[v.DocOriginID] {
			continue
		}
		seen[v.DocOriginID] = true
		orderedOriginIDs = append(orderedOriginIDs, v.DocOriginID)
	}

	origins, err := s.origins.GetByIDs(ctx, nil, orderedOriginIDs)
	if err != nil {
		return nil, err
	}
	originByID := make(map[uuid.UUID]*types.DocOrigin, len(origins))
	for _, o := range origins {
		originByID[o.ID] = o
	}

	out := make([]*types.DocOrigin, 0, len(orderedOriginIDs))
	for _, oid := range orderedOriginIDs {
		if o, ok := originByID[oid]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}
