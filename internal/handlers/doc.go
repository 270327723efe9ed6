package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/yungbote/docscan-backend/internal/pkg/errors"
	"github.com/yungbote/docscan-backend/internal/pkg/logger"
	"github.com/yungbote/docscan-backend/internal/requestdata"
	"github.com/yungbote/docscan-backend/internal/services"
)

type DocHandler struct {
	log   *logger.Logger
	docs  services.DocService
	chats services.ChatService
}

func NewDocHandler(log *logger.Logger, docs services.DocService, chats services.ChatService) *DocHandler {
	return &DocHandler{
		log:   log.With("handler", "DocHandler"),
		docs:  docs,
		chats: chats,
	}
}

type searchRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *DocHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondServiceError(c, fmt.Errorf("bad request body: %w", apperrors.ErrInvalidArgument))
		return
	}

	origins, err := h.docs.Search(c.Request.Context(), req.Text)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"doc_origins": origins})
}

type saveRequest struct {
	DocVersionID uuid.UUID `json:"doc_version_id" binding:"required"`
	Content      string    `json:"content"`
}

func (h *DocHandler) Save(c *gin.Context) {
	userID := requestdata.GetUserID(c.Request.Context())

	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondServiceError(c, fmt.Errorf("bad request body: %w", apperrors.ErrInvalidArgument))
		return
	}

	version, err := h.docs.Save(c.Request.Context(), userID, req.DocVersionID, req.Content)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, version)
}

type chatFromSearchRequest struct {
	DocOriginID uuid.UUID `json:"doc_origin_id" binding:"required"`
}

func (h *DocHandler) ChatFromSearch(c *gin.Context) {
	userID := requestdata.GetUserID(c.Request.Context())

	var req chatFromSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondServiceError(c, fmt.Errorf("bad request body: %w", apperrors.ErrInvalidArgument))
		return
	}

	detail, err := h.chats.ChatFromSearch(c.Request.Context(), userID, req.DocOriginID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, detail)
}

func (h *DocHandler) GetOrigin(c *gin.Context) {
	originID, err := uuid.Parse(c.Param("doc_id"))
	if err != nil {
		RespondServiceError(c, fmt.Errorf("bad doc_id: %w", apperrors.ErrInvalidArgument))
		return
	}

	origin, err := h.docs.GetOrigin(c.Request.Context(), originID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, origin)
}
