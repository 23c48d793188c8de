package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gabrielkumagai/beezy-api/internal/audit"
	"github.com/gabrielkumagai/beezy-api/internal/config"
	"github.com/gabrielkumagai/beezy-api/internal/domain"
	"github.com/gabrielkumagai/beezy-api/internal/hub"
	"github.com/gabrielkumagai/beezy-api/internal/repository"
	"github.com/gabrielkumagai/beezy-api/internal/service"
	"github.com/gabrielkumagai/beezy-api/pkg/log"
	"github.com/gabrielkumagai/beezy-api/pkg/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades connections and speaks the presence protocol: a join
// frame in, message pushes out.
type WSHandler struct {
	hub     *hub.Hub
	service service.ChatService
	auth    *middleware.AuthMiddleware
	wsCfg   config.WebSocketConfig
}

// NewWSHandler creates a websocket handler.
func NewWSHandler(h *hub.Hub, svc service.ChatService, auth *middleware.AuthMiddleware, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		auth:    auth,
		wsCfg:   wsCfg,
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket authenticates via the token query parameter, upgrades,
// and runs the connection's pumps until it closes.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), claims.UserID, claims.Username, h.hub, conn, h.wsCfg)
	h.hub.Register(client)

	go client.WritePump()
	go func() {
		client.ReadPump(h.handleFrame)
		audit.Log(context.Background(), audit.ActionDisconnect, client.UserID, "client disconnected")
	}()
}

// handleFrame dispatches one inbound frame. Malformed or unknown frames
// are answered with an error frame and otherwise ignored; they never close
// the connection or disturb registry state.
func (h *WSHandler) handleFrame(client *hub.Client, raw []byte) {
	l := log.L()

	var base domain.BaseFrame
	if err := json.Unmarshal(raw, &base); err != nil {
		l.Debug().Str(log.FieldConnectionID, client.ID).Msg("discarding malformed frame")
		client.Send(domain.NewErrorFrame(domain.ErrCodeBadRequest, "invalid frame"))
		return
	}

	switch base.Type {
	case domain.FrameTypeJoin:
		var frame domain.JoinFrame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.ChatID == "" {
			client.Send(domain.NewErrorFrame(domain.ErrCodeBadRequest, "invalid join frame"))
			return
		}
		h.handleJoin(client, frame.ChatID)

	case domain.FrameTypePing:
		client.Send(map[string]string{"type": domain.FrameTypePong})

	default:
		l.Debug().Str(log.FieldConnectionID, client.ID).Str("frame_type", base.Type).Msg("discarding unknown frame")
		client.Send(domain.NewErrorFrame(domain.ErrCodeBadRequest, "unknown frame type"))
	}
}

func (h *WSHandler) handleJoin(client *hub.Client, chatID string) {
	ctx := context.Background()

	if err := h.service.Authorize(ctx, chatID, client.UserID); err != nil {
		switch {
		case errors.Is(err, repository.ErrChatNotFound):
			client.Send(domain.NewErrorFrame(domain.ErrCodeBadRequest, "chat not found"))
		case errors.Is(err, service.ErrNotParticipant):
			client.Send(domain.NewErrorFrame(domain.ErrCodeForbidden, "not a participant of this chat"))
		default:
			l := log.L()
			l.Error().Err(err).Str(log.FieldChatID, chatID).Msg("join authorization failed")
			client.Send(domain.NewErrorFrame(domain.ErrCodeBadRequest, "unable to join"))
		}
		return
	}

	h.hub.Join(client, chatID)
	audit.LogWithTarget(ctx, audit.ActionJoinRoom, client.UserID, chatID, "client joined room")

	client.Send(&domain.JoinedFrame{Type: domain.FrameTypeJoined, ChatID: chatID})
}
