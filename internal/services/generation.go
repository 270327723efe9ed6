package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docscan-backend/internal/clients/gcp"
	"github.com/yungbote/docscan-backend/internal/clients/openai"
	"github.com/yungbote/docscan-backend/internal/clients/redis"
	"github.com/yungbote/docscan-backend/internal/pkg/envutil"
	"github.com/yungbote/docscan-backend/internal/pkg/logger"
	"github.com/yungbote/docscan-backend/internal/repos"
)

// GenerationService owns the async text-generation jobs. Each job streams
// deltas into the relay while running and lands its result in Postgres when
// done. Start methods return immediately; the job runs on its own goroutine
// with its own context, so a client disconnect never cancels generation.
type GenerationService interface {
	StartOCR(versionID, originID, chatID uuid.UUID, imageKey string)
	StartRewrite(versionID, originID, chatID uuid.UUID, baseContent string, instruction string)
}

type generationService struct {
	log      *logger.Logger
	db       *gorm.DB
	versions repos.DocVersionRepo
	origins  repos.DocOriginRepo
	chats    repos.ChatRepo
	relay    redis.StreamRelay
	registry redis.JobRegistry
	ai       openai.Client
	bucket   gcp.BucketClient
	indexer  Indexer

	jobTimeout time.Duration
}

func NewGenerationService(
	log *logger.Logger,
	db *gorm.DB,
	versions repos.DocVersionRepo,
	origins repos.DocOriginRepo,
	chats repos.ChatRepo,
	relay redis.StreamRelay,
	registry redis.JobRegistry,
	ai openai.Client,
	bucket gcp.BucketClient,
	indexer Indexer,
) (GenerationService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if versions == nil || origins == nil || chats == nil {
		return nil, fmt.Errorf("repos required")
	}
	if relay == nil || registry == nil {
		return nil, fmt.Errorf("relay and registry required")
	}
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	jobTimeoutSec := envutil.GetEnvAsInt("GENERATION_TIMEOUT_SECONDS", 600, log)
	return &generationService{
		log:        log.With("service", "GenerationService"),
		db:         db,
		versions:   versions,
		origins:    origins,
		chats:      chats,
		relay:      relay,
		registry:   registry,
		ai:         ai,
		bucket:     bucket,
		indexer:    indexer,
		jobTimeout: time.Duration(jobTimeoutSec) * time.Second,
	}, nil
}

func (s *generationService) StartOCR(versionID, originID, chatID uuid.UUID, imageKey string) {
	go s.run(versionID, originID, chatID, func(ctx context.Context, onDelta func(string)) (string, error) {
		if s.bucket == nil {
			return "", fmt.Errorf("bucket client unavailable")
		}
		url, err := s.bucket.SignedURL(ctx, imageKey)
		if err != nil {
			return "", fmt.Errorf("sign image url: %w", err)
		}
		return s.ai.StreamDocumentText(ctx, url, onDelta)
	})
}

func (s *generationService) StartRewrite(versionID, originID, chatID uuid.UUID, baseContent string, instruction string) {
	go s.run(versionID, originID, chatID, func(ctx context.Context, onDelta func(string)) (string, error) {
		return s.ai.StreamRewrite(ctx, baseContent, instruction, onDelta)
	})
}

// run drives one generation job end to end. The close entry and the registry
// removal happen in a deferred finish so readers always terminate, success or
// failure alike.
func (s *generationService) run(versionID, originID, chatID uuid.UUID, produce func(ctx context.Context, onDelta func(string)) (string, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	jobKey := versionID.String()
	log := s.log.With("job_key", jobKey, "chat_id", chatID.String())

	first, err := s.registry.Register(ctx, jobKey)
	if err != nil {
		log.Error("Job registry unavailable, aborting job", "error", err.Error())
		return
	}
	if !first {
		log.Warn("Job already active, skipping duplicate start")
		return
	}

	defer func() {
		// Readers drain buffered entries before they consult the registry, so
		// unregistering first never loses data. The close entry then ends any
		// reader that is already blocked on the relay.
		finishCtx, finishCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer finishCancel()
		if err := s.registry.Unregister(finishCtx, jobKey); err != nil {
			log.Error("Failed to unregister job", "error", err.Error())
		}
		if err := s.relay.PublishClose(finishCtx, jobKey); err != nil {
			log.Error("Failed to publish close entry", "error", err.Error())
		}
	}()

	started := time.Now()
	content, err := produce(ctx, func(delta string) {
		if pubErr := s.relay.Publish(ctx, jobKey, delta); pubErr != nil {
			log.Warn("Failed to publish chunk", "error", pubErr.Error())
		}
	})
	if err != nil {
		log.Error("Generation failed", "error", err.Error(), "elapsed", time.Since(started).String())
		s.markFailed(log, versionID, err.Error())
		return
	}

	title := s.maybeTitle(ctx, chatID, content)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.versions.FinalizeContent(ctx, tx, versionID, content)
		if err != nil {
			return err
		}
		if !won {
			log.Warn("Version no longer pending, discarding generated content")
			return nil
		}
		if err := s.origins.UpdateContent(ctx, tx, originID, content); err != nil {
			return err
		}
		if title != "" {
			if _, err := s.chats.SetTitleIfUnset(ctx, tx, chatID, title); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error("Failed to finalize generation", "error", err.Error())
		s.markFailed(log, versionID, err.Error())
		return
	}

	log.Info("Generation finished", "elapsed", time.Since(started).String(), "content_len", len(content))

	if s.indexer != nil {
		go func() {
			idxCtx, idxCancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer idxCancel()
			if err := s.indexer.IndexVersion(idxCtx, versionID, originID, chatID, content); err != nil {
				log.Error("Search indexing failed", "error", err.Error())
			}
		}()
	}
}

// markFailed records the failure cause on the version. The job context is
// often already dead here (timeouts are a failure cause), so the status write
// gets its own deadline like the deferred finish does.
func (s *generationService) markFailed(log *logger.Logger, versionID uuid.UUID, cause string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.versions.MarkFailed(ctx, nil, versionID, cause); err != nil {
		log.Error("Failed to mark version failed", "error", err.Error())
	}
}

// maybeTitle generates a chat title from the recognized content when the chat
// does not have one yet. Failures only cost the title.
func (s *generationService) maybeTitle(ctx context.Context, chatID uuid.UUID, content string) string {
	chat, err := s.chats.GetByID(ctx, nil, chatID)
	if err != nil {
		s.log.Warn("Failed to load chat for titling", "chat_id", chatID.String(), "error", err.Error())
		return ""
	}
	if chat.Title != nil {
		return ""
	}

	sample := content
	if len(sample) > 4000 {
		sample = sample[:4000]
	}
	title, err := s.ai.GenerateTitle(ctx, sample)
	if err != nil {
		s.log.Warn("Title generation failed", "chat_id", chatID.String(), "error", err.Error())
		return ""
	}
	return title
}
