package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	rds "github.com/yungbote/docscan-backend/internal/clients/redis"
	apperrors "github.com/yungbote/docscan-backend/internal/pkg/errors"
	"github.com/yungbote/docscan-backend/internal/pkg/logger"
	"github.com/yungbote/docscan-backend/internal/repos"
)

const (
	streamBatchSize = 64
	streamWait      = 1 * time.Second
)

// StreamEvent is one server-push event for a stream reader.
type StreamEvent struct {
	Name string
	Data string
}

const (
	StreamEventChunk = "chunk"
	StreamEventClose = "close"
)

// StreamService feeds a connected reader the relayed chunks of one generation
// job. Termination: a close entry from the relay, or an empty relay while the
// registry shows the job inactive. The reader going away never touches the
// job itself.
type StreamService interface {
	Stream(ctx context.Context, userID, versionID uuid.UUID, emit func(StreamEvent) error) error
}

type streamService struct {
	log      *logger.Logger
	versions repos.DocVersionRepo
	chats    repos.ChatRepo
	relay    rds.StreamRelay
	registry rds.JobRegistry
}

func NewStreamService(
	log *logger.Logger,
	versions repos.DocVersionRepo,
	chats repos.ChatRepo,
	relay rds.StreamRelay,
	registry rds.JobRegistry,
) (StreamService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if versions == nil || chats == nil {
		return nil, fmt.Errorf("repos required")
	}
	if relay == nil || registry == nil {
		return nil, fmt.Errorf("relay and registry required")
	}
	return &streamService{
		log:      log.With("service", "StreamService"),
		versions: versions,
		chats:    chats,
		relay:    relay,
		registry: registry,
	}, nil
}

func (s *streamService) Stream(ctx context.Context, userID, versionID uuid.UUID, emit func(StreamEvent) error) error {
	version, err := s.versions.GetByID(ctx, nil, versionID)
	if err != nil {
		return err
	}
	chat, err := s.chats.GetByID(ctx, nil, version.ChatID)
	if err != nil {
		return err
	}
	if chat.UserID != userID {
		return fmt.Errorf("doc version %s: %w", versionID, apperrors.ErrUnauthorized)
	}

	jobKey := versionID.String()
	for {
		if err := ctx.Err(); err != nil {
			// Client gone; the job keeps running.
			return err
		}

		chunks, err := s.relay.DrainWait(ctx, jobKey, streamBatchSize, streamWait)
		if err != nil {
			return err
		}
		done, err := s.emitChunks(chunks, emit)
		if done || err != nil {
			return err
		}

		if len(chunks) > 0 {
			continue
		}

		active, err := s.registry.IsActive(ctx, jobKey)
		if err != nil {
			return err
		}
		if active {
			continue
		}

		// Inactive: one last sweep for entries that landed between the empty
		// drain and the registry check, then close out.
		rest, err := s.relay.Drain(ctx, jobKey, streamBatchSize)
		if err != nil {
			return err
		}
		done, err = s.emitChunks(rest, emit)
		if done || err != nil {
			return err
		}
		return emit(StreamEvent{Name: StreamEventClose})
	}
}

// emitChunks forwards chunks in order; done reports that a close entry was
// seen and emitted.
func (s *streamService) emitChunks(chunks []rds.Chunk, emit func(StreamEvent) error) (done bool, err error) {
	for _, c := range chunks {
		if c.IsClose() {
			return true, emit(StreamEvent{Name: StreamEventClose})
		}
		if err := emit(StreamEvent{Name: StreamEventChunk, Data: c.Text}); err != nil {
			return false, err
		}
	}
	return false, nil
}
