package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/yungbote/docscan-backend/internal/pkg/errors"
	"github.com/yungbote/docscan-backend/internal/pkg/logger"
	"github.com/yungbote/docscan-backend/internal/requestdata"
	"github.com/yungbote/docscan-backend/internal/services"
)

type ChatHandler struct {
	log        *logger.Logger
	chats      services.ChatService
	dispatcher services.DispatcherService
	stream     services.StreamService
}

func NewChatHandler(log *logger.Logger, chats services.ChatService, dispatcher services.DispatcherService, stream services.StreamService) *ChatHandler {
	return &ChatHandler{
		log:        log.With("handler", "ChatHandler"),
		chats:      chats,
		dispatcher: dispatcher,
		stream:     stream,
	}
}

// New accepts a multipart image upload and returns the new chat id plus the
// doc version id the client should open a stream against.
func (h *ChatHandler) New(c *gin.Context) {
	userID := requestdata.GetUserID(c.Request.Context())

	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondServiceError(c, fmt.Errorf("missing file upload: %w", apperrors.ErrInvalidArgument))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	defer file.Close()

	result, err := h.chats.NewChat(c.Request.Context(), userID, fileHeader.Filename, file)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

// Streaming pushes the generation job's chunks over SSE until close.
func (h *ChatHandler) Streaming(c *gin.Context) {
	userID := requestdata.GetUserID(c.Request.Context())

	versionID, err := uuid.Parse(c.Param("doc_version_id"))
	if err != nil {
		RespondServiceError(c, fmt.Errorf("bad doc_version_id: %w", apperrors.ErrInvalidArgument))
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		RespondError(c, http.StatusInternalServerError, "internal", fmt.Errorf("streaming unsupported"))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	started := false
	err = h.stream.Stream(c.Request.Context(), userID, versionID, func(ev services.StreamEvent) error {
		started = true
		c.SSEvent(ev.Name, ev.Data)
		flusher.Flush()
		return nil
	})
	if err != nil {
		if !started {
			RespondServiceError(c, err)
			return
		}
		// Headers are gone; nothing useful to send but a log line.
		h.log.Warn("Stream ended with error", "doc_version_id", versionID.String(), "error", err.Error())
	}
}

type messageRequest struct {
	ChatID  uuid.UUID `json:"chat_id" binding:"required"`
	Content string    `json:"content" binding:"required"`
}

type messageResponse struct {
	Content         string     `json:"content"`
	NewDocVersionID *uuid.UUID `json:"new_doc_version_id,omitempty"`
}

func (h *ChatHandler) Message(c *gin.Context) {
	userID := requestdata.GetUserID(c.Request.Context())

	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondServiceError(c, fmt.Errorf("bad request body: %w", apperrors.ErrInvalidArgument))
		return
	}

	result, err := h.dispatcher.HandleMessage(c.Request.Context(), userID, req.ChatID, req.Content)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, messageResponse{
		Content:         result.Content,
		NewDocVersionID: result.NewDocVersionID,
	})
}

func (h *ChatHandler) List(c *gin.Context) {
	userID := requestdata.GetUserID(c.Request.Context())

	chats, err := h.chats.ListChats(c.Request.Context(), userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"chats": chats})
}

func (h *ChatHandler) Get(c *gin.Context) {
	userID := requestdata.GetUserID(c.Request.Context())

	chatID, err := uuid.Parse(c.Param("chat_id"))
	if err != nil {
		RespondServiceError(c, fmt.Errorf("bad chat_id: %w", apperrors.ErrInvalidArgument))
		return
	}

	detail, err := h.chats.GetChat(c.Request.Context(), userID, chatID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, detail)
}
