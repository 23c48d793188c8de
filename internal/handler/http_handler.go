package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gabrielkumagai/beezy-api/internal/directory"
	"github.com/gabrielkumagai/beezy-api/internal/domain"
	"github.com/gabrielkumagai/beezy-api/internal/repository"
	"github.com/gabrielkumagai/beezy-api/internal/service"
	"github.com/gabrielkumagai/beezy-api/pkg/middleware"
	"github.com/gabrielkumagai/beezy-api/pkg/response"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// HTTPHandler exposes the chat control plane: start a chat, send a
// message, list history.
type HTTPHandler struct {
	service service.ChatService
	auth    *middleware.AuthMiddleware
}

// NewHTTPHandler creates the control-plane handler.
func NewHTTPHandler(svc service.ChatService, auth *middleware.AuthMiddleware) *HTTPHandler {
	return &HTTPHandler{
		service: svc,
		auth:    auth,
	}
}

// RegisterRoutes mounts the authenticated chat API.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.auth.RequireAuth())
	{
		// gin requires the same wildcard name at a given path segment,
		// so :id doubles as the peer id for StartChat and the chat id
		// for the message routes.
		api.POST("/chats/:id", h.StartChat)
		api.GET("/chats/:id/messages", h.ListMessages)
		api.POST("/chats/:id/messages", h.SendMessage)
	}
}

// StartChat resolves or creates the pairwise chat with the peer. Returns
// 201 when the chat was created by this call, 200 when it already existed.
func (h *HTTPHandler) StartChat(c *gin.Context) {
	userID := middleware.GetUserID(c)
	peerID := c.Param("id")

	chat, created, err := h.service.StartChat(c.Request.Context(), userID, peerID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if created {
		response.Created(c, chat.ToResponse())
		return
	}
	response.Success(c, chat.ToResponse())
}

// SendMessage persists a message to the chat. A 201 means the message is
// durable; live delivery to connected participants is best-effort on top.
func (h *HTTPHandler) SendMessage(c *gin.Context) {
	userID := middleware.GetUserID(c)
	chatID := c.Param("id")

	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "content is required")
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), chatID, userID, req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Created(c, domain.SendMessageResponse{
		MessageID: msg.ID,
		ChatID:    msg.ChatID,
		Timestamp: msg.CreatedAt,
	})
}

// ListMessages returns the chat history, oldest first.
func (h *HTTPHandler) ListMessages(c *gin.Context) {
	userID := middleware.GetUserID(c)
	chatID := c.Param("id")

	limit := defaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
		if limit > maxLimit {
			limit = maxLimit
		}
	}

	messages, err := h.service.ListMessages(c.Request.Context(), chatID, userID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]domain.MessageResponse, len(messages))
	for i := range messages {
		out[i] = messages[i].ToResponse()
	}
	response.Success(c, out)
}

// writeError maps domain errors onto the stable client-visible codes.
func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSelfChat):
		response.BadRequest(c, "cannot start a chat with yourself")
	case errors.Is(err, repository.ErrEmptyContent):
		response.BadRequest(c, "message content is required")
	case errors.Is(err, repository.ErrChatNotFound):
		response.NotFound(c, "chat not found")
	case errors.Is(err, directory.ErrUserNotFound):
		response.NotFound(c, "user not found")
	case errors.Is(err, service.ErrNotParticipant):
		response.Forbidden(c, "you are not a participant of this chat")
	default:
		response.InternalError(c, "internal error")
	}
}
