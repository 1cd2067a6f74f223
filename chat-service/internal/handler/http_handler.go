package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-community/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-community/chat-service/internal/service"
	"github.com/weiawesome/wes-io-community/pkg/log"
	"github.com/weiawesome/wes-io-community/pkg/middleware"
	"github.com/weiawesome/wes-io-community/pkg/response"
)

// Handler serves the stateless REST equivalents of the chat operations.
type Handler struct {
	messages       *service.MessageService
	authMiddleware *middleware.AuthMiddleware
	maxUploadSize  int64
}

// NewHandler creates a new HTTP handler.
func NewHandler(messages *service.MessageService, authMiddleware *middleware.AuthMiddleware, maxUploadSize int64) *Handler {
	return &Handler{
		messages:       messages,
		authMiddleware: authMiddleware,
		maxUploadSize:  maxUploadSize,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.authMiddleware.RequireAuth())
	{
		communities := api.Group("/communities/:communityId")
		{
			communities.GET("/messages", h.ListMessages)
			communities.GET("/messages/latest", h.LatestMessages)
			communities.POST("/messages", h.SendMessage)
			communities.GET("/online", h.OnlineUsers)
			communities.POST("/attachments", h.UploadAttachment)
		}

		messages := api.Group("/messages/:messageId")
		{
			messages.PUT("", h.EditMessage)
			messages.DELETE("", h.DeleteMessage)
			messages.POST("/reactions", h.AddReaction)
			messages.DELETE("/reactions/:emoji", h.RemoveReaction)
		}
	}
}

// writeError maps service errors onto the response envelope.
func writeError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, service.ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrNotOwner):
		response.Error(c, http.StatusForbidden, domain.ErrCodeNotOwner, err.Error())
	case errors.Is(err, service.ErrEmptyContent):
		response.Error(c, http.StatusBadRequest, domain.ErrCodeEmptyContent, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrTooLarge):
		response.RequestEntityTooLarge(c, err.Error())
	case errors.Is(err, service.ErrStorageDisabled), errors.Is(err, service.ErrTransientStore):
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Msg("failed to " + action)
		response.ServiceUnavailable(c, "temporarily unavailable")
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("failed to " + action)
		response.InternalError(c, "failed to "+action)
	}
}

// ListMessages returns one page of the community history.
func (h *Handler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.ListMessagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	page, err := h.messages.ListPage(ctx, middleware.GetUserID(c), c.Param("communityId"), req.Page, req.Limit)
	if err != nil {
		writeError(c, err, "list messages")
		return
	}

	response.Paged(c, page.Messages, response.Pagination{
		Page:       page.Page,
		Limit:      page.Limit,
		Total:      page.Total,
		TotalPages: page.TotalPages(),
	})
}

// LatestMessages returns the newest messages in chronological order.
func (h *Handler) LatestMessages(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.LatestMessagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	views, err := h.messages.ListLatest(ctx, middleware.GetUserID(c), c.Param("communityId"), req.Limit)
	if err != nil {
		writeError(c, err, "list latest messages")
		return
	}
	response.Success(c, views)
}

// SendMessage posts a message to the community.
func (h *Handler) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind send message request")
		response.BadRequest(c, err.Error())
		return
	}

	view, err := h.messages.Send(ctx, middleware.GetUserID(c), domain.SendMessageInput{
		CommunityID: c.Param("communityId"),
		Content:     req.Content,
		Kind:        domain.MessageKind(req.MessageType),
		FileRef:     req.FileURL,
		ReplyTo:     req.ReplyTo,
	})
	if err != nil {
		writeError(c, err, "send message")
		return
	}
	response.Created(c, view)
}

// EditMessage rewrites the caller's own message.
func (h *Handler) EditMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	view, err := h.messages.Edit(ctx, middleware.GetUserID(c), c.Param("messageId"), req.Content)
	if err != nil {
		writeError(c, err, "edit message")
		return
	}
	response.Success(c, view)
}

// DeleteMessage removes the caller's own message.
func (h *Handler) DeleteMessage(c *gin.Context) {
	ctx := c.Request.Context()

	messageID := c.Param("messageId")
	if err := h.messages.Delete(ctx, middleware.GetUserID(c), messageID); err != nil {
		writeError(c, err, "delete message")
		return
	}
	response.Success(c, gin.H{"messageId": messageID})
}

// AddReaction reacts to a message and returns its reaction list.
func (h *Handler) AddReaction(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.AddReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	reactions, err := h.messages.AddReaction(ctx, middleware.GetUserID(c), c.Param("messageId"), req.Emoji)
	if err != nil {
		writeError(c, err, "add reaction")
		return
	}
	response.Created(c, reactions)
}

// RemoveReaction removes the caller's reaction and returns the remaining list.
func (h *Handler) RemoveReaction(c *gin.Context) {
	ctx := c.Request.Context()

	reactions, err := h.messages.RemoveReaction(ctx, middleware.GetUserID(c), c.Param("messageId"), c.Param("emoji"))
	if err != nil {
		writeError(c, err, "remove reaction")
		return
	}
	response.Success(c, reactions)
}

// OnlineUsers lists who is present in the community.
func (h *Handler) OnlineUsers(c *gin.Context) {
	ctx := c.Request.Context()

	users, err := h.messages.OnlineUsers(ctx, middleware.GetUserID(c), c.Param("communityId"))
	if err != nil {
		writeError(c, err, "list online users")
		return
	}
	response.Success(c, users)
}

// UploadAttachment stores a multipart "file" for later file messages.
func (h *Handler) UploadAttachment(c *gin.Context) {
	ctx := c.Request.Context()

	if h.maxUploadSize > 0 {
		// Leave room for multipart framing.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize+1<<20)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RequestEntityTooLarge(c, service.ErrTooLarge.Error())
			return
		}
		response.BadRequest(c, "file is required")
		return
	}

	file, err := header.Open()
	if err != nil {
		response.BadRequest(c, "unreadable file")
		return
	}
	defer file.Close()

	att, err := h.messages.UploadAttachment(ctx, middleware.GetUserID(c), c.Param("communityId"), service.AttachmentUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeError(c, err, "upload attachment")
		return
	}
	response.Created(c, att)
}
