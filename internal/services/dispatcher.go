package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/docscan-backend/internal/clients/openai"
	apperrors "github.com/yungbote/docscan-backend/internal/pkg/errors"
	"github.com/yungbote/docscan-backend/internal/pkg/logger"
	"github.com/yungbote/docscan-backend/internal/repos"
	"github.com/yungbote/docscan-backend/internal/types"
)

const rewriteToolName = "request_rewrite"

const dispatcherSystemPrompt = `You are an assistant attached to a scanned document. ` +
	`The document's current text is provided as assistant context. ` +
	`You can do two things: answer the user's question about the document, ` +
	`or invoke the "` + rewriteToolName + `" tool when the user asks you to change, fix, ` +
	`rewrite or otherwise edit the document itself. ` +
	`Invoke the tool only for edit requests; answer everything else directly.`

// placeholderReply stands in for an empty model reply on a rewrite turn.
// Assistant messages are never persisted empty.
const placeholderReply = "Working on it…"

// DispatchResult is one resolved conversational turn.
type DispatchResult struct {
	Content         string
	NewDocVersionID *uuid.UUID
}

// DispatcherService classifies each user message as an answer turn or a
// rewrite turn and drives the matching side effects.
type DispatcherService interface {
	HandleMessage(ctx context.Context, userID, chatID uuid.UUID, content string) (*DispatchResult, error)
}

type dispatcherService struct {
	log      *logger.Logger
	chats    repos.ChatRepo
	messages repos.MessageRepo
	versions repos.DocVersionRepo
	origins  repos.DocOriginRepo
	ai       openai.Client
	gen      GenerationService
}

func NewDispatcherService(
	log *logger.Logger,
	chats repos.ChatRepo,
	messages repos.MessageRepo,
	versions repos.DocVersionRepo,
	origins repos.DocOriginRepo,
	ai openai.Client,
	gen GenerationService,
) (DispatcherService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if chats == nil || messages == nil || versions == nil || origins == nil {
		return nil, fmt.Errorf("repos required")
	}
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	if gen == nil {
		return nil, fmt.Errorf("generation service required")
	}
	return &dispatcherService{
		log:      log.With("service", "DispatcherService"),
		chats:    chats,
		messages: messages,
		versions: versions,
		origins:  origins,
		ai:       ai,
		gen:      gen,
	}, nil
}

func (s *dispatcherService) HandleMessage(ctx context.Context, userID, chatID uuid.UUID, content string) (*DispatchResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("message content required: %w", apperrors.ErrInvalidArgument)
	}

	chat, err := s.chats.GetByID(ctx, nil, chatID)
	if err != nil {
		return nil, err
	}
	if chat.UserID != userID {
		return nil, fmt.Errorf("chat %s: %w", chatID, apperrors.ErrUnauthorized)
	}

	latest, err := s.versions.LatestByChat(ctx, nil, chatID)
	if err != nil {
		return nil, err
	}
	origin, err := s.origins.GetByID(ctx, nil, latest.DocOriginID)
	if err != nil {
		return nil, err
	}
	document := ""
	if origin.Content != nil {
		document = *origin.Content
	}

	history, err := s.messages.ListByChat(ctx, nil, chatID)
	if err != nil {
		return nil, err
	}

	// The user turn is persisted before the completion call; a failed call
	// loses the reply, not the turn.
	if _, err := s.messages.Create(ctx, nil, &types.Message{
		ChatID:  chatID,
		IsUser:  true,
		Content: content,
	}); err != nil {
		return nil, err
	}

	prompt := []openai.ChatMessage{
		{Role: "system", Content: dispatcherSystemPrompt},
		{Role: "assistant", Content: document},
	}
	for _, m := range history {
		role := "assistant"
		if m.IsUser {
			role = "user"
		}
		prompt = append(prompt, openai.ChatMessage{Role: role, Content: m.Content})
	}
	prompt = append(prompt, openai.ChatMessage{Role: "user", Content: content})

	res, err := s.ai.ChatComplete(ctx, prompt, []openai.Tool{{
		Name:        rewriteToolName,
		Description: "Rewrite the document according to the user's instruction.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	reply := res.Text
	if res.ToolInvoked && reply == "" {
		reply = placeholderReply
	}

	if _, err := s.messages.Create(ctx, nil, &types.Message{
		ChatID:  chatID,
		IsUser:  false,
		Content: reply,
	}); err != nil {
		return nil, err
	}

	// The version row comes last so a persistence failure above never leaves a
	// pending version with no job scheduled for it.
	var newVersionID *uuid.UUID
	if res.ToolInvoked {
		created, err := s.versions.Create(ctx, nil, &types.DocVersion{
			ChatID:      chatID,
			DocOriginID: latest.DocOriginID,
		})
		if err != nil {
			return nil, err
		}
		newVersionID = &created.ID
		s.gen.StartRewrite(created.ID, latest.DocOriginID, chatID, document, content)
		s.log.Info("Scheduled rewrite", "chat_id", chatID.String(), "doc_version_id", created.ID.String())
	}

	return &DispatchResult{Content: reply, NewDocVersionID: newVersionID}, nil
}
