package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/docscan-backend/internal/clients/openai"
	"github.com/yungbote/docscan-backend/internal/clients/pinecone"
	"github.com/yungbote/docscan-backend/internal/pkg/logger"
)

// Indexer pushes finished document versions into the vector index so they can
// be found by semantic search. Vector IDs are doc version IDs.
type Indexer interface {
	IndexVersion(ctx context.Context, versionID, originID, chatID uuid.UUID, content string) error
}

type indexer struct {
	log   *logger.Logger
	ai    openai.Client
	store pinecone.VectorStore
}

func NewIndexer(log *logger.Logger, ai openai.Client, store pinecone.VectorStore) (Indexer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store required")
	}
	return &indexer{log: log.With("service", "Indexer"), ai: ai, store: store}, nil
}

func (s *indexer) IndexVersion(ctx context.Context, versionID, originID, chatID uuid.UUID, content string) error {
	if content == "" {
		return nil
	}

	vectors, err := s.ai.Embed(ctx, []string{content})
	if err != nil {
		return fmt.Errorf("embed document: %w", err)
	}
	if len(vectors) != 1 {
		return fmt.Errorf("embed document: expected 1 vector, got %d", len(vectors))
	}

	err = s.store.Upsert(ctx, []pinecone.Vector{{
		ID:     versionID.String(),
		Values: vectors[0],
		Metadata: map[string]any{
			"doc_origin_id": originID.String(),
			"chat_id":       chatID.String(),
		},
	}})
	if err != nil {
		return fmt.Errorf("upsert vector: %w", err)
	}

	s.log.Info("Indexed document version", "doc_version_id", versionID.String())
	return nil
}
