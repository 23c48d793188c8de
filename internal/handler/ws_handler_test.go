package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/gabrielkumagai/beezy-api/internal/config"
	"github.com/gabrielkumagai/beezy-api/internal/domain"
	"github.com/gabrielkumagai/beezy-api/internal/hub"
	"github.com/gabrielkumagai/beezy-api/internal/repository"
	"github.com/gabrielkumagai/beezy-api/internal/service"
	"github.com/gabrielkumagai/beezy-api/pkg/jwt"
)

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      5 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     16,
	}
}

// wsFixture hosts the websocket endpoint over httptest with a scripted
// authorization function and a real hub.
type wsFixture struct {
	server *httptest.Server
	hub    *hub.Hub
}

func newWSFixture(t *testing.T, authorize func(chatID, userID string) error) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := hub.NewHub(testWSConfig())
	svc := &stubService{
		authorize: func(_ context.Context, chatID, userID string) error {
			return authorize(chatID, userID)
		},
	}

	r := gin.New()
	NewWSHandler(h, svc, newTestAuth(), testWSConfig()).RegisterRoutes(r)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return &wsFixture{server: server, hub: h}
}

func (f *wsFixture) dial(t *testing.T, userID, username string) *websocket.Conn {
	t.Helper()

	token, _, err := jwt.NewManager("test-secret", time.Hour, "test").Generate(userID, userID+"@example.com", username)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, out interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func requireNoFrame(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	netErr, ok := err.(interface{ Timeout() bool })
	require.True(t, ok && netErr.Timeout(), "expected read timeout, got %v", err)
}

func sendJoin(t *testing.T, conn *websocket.Conn, chatID string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(domain.JoinFrame{Type: domain.FrameTypeJoin, ChatID: chatID}))
}

func TestWebSocket_RejectsBadToken(t *testing.T) {
	req := require.New(t)
	f := newWSFixture(t, func(string, string) error { return nil })

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=not-a-token"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_JoinThenReceivePush(t *testing.T) {
	req := require.New(t)
	f := newWSFixture(t, func(chatID, userID string) error { return nil })

	conn := f.dial(t, "alice", "Alice")
	sendJoin(t, conn, "chat-1")

	var joined domain.JoinedFrame
	readFrame(t, conn, &joined)
	req.Equal(domain.FrameTypeJoined, joined.Type)
	req.Equal("chat-1", joined.ChatID)

	f.hub.Publish("chat-1", domain.NewMessageFrame(&domain.Message{
		ID:         "m1",
		ChatID:     "chat-1",
		SenderID:   "bob",
		SenderName: "Bob B.",
		Content:    "hello",
		CreatedAt:  time.Now(),
	}))

	var frame domain.MessageFrame
	readFrame(t, conn, &frame)
	req.Equal(domain.FrameTypeMessage, frame.Type)
	req.Equal("chat-1", frame.ChatID)
	req.Equal("bob", frame.SenderID)
	req.Equal("Bob B.", frame.Sender)
	req.Equal("hello", frame.Content)
	req.Equal("m1", frame.MessageID)
}

func TestWebSocket_PushReachesJoinedMembersOnly(t *testing.T) {
	req := require.New(t)
	f := newWSFixture(t, func(string, string) error { return nil })

	alice := f.dial(t, "alice", "Alice")
	bob := f.dial(t, "bob", "Bob")
	carol := f.dial(t, "carol", "Carol")

	sendJoin(t, alice, "chat-1")
	sendJoin(t, bob, "chat-1")
	sendJoin(t, carol, "chat-2")
	for _, conn := range []*websocket.Conn{alice, bob, carol} {
		var joined domain.JoinedFrame
		readFrame(t, conn, &joined)
	}

	f.hub.Publish("chat-1", domain.NewMessageFrame(&domain.Message{ID: "m1", ChatID: "chat-1", Content: "hi"}))

	for _, conn := range []*websocket.Conn{alice, bob} {
		var frame domain.MessageFrame
		readFrame(t, conn, &frame)
		req.Equal("m1", frame.MessageID)
	}
	requireNoFrame(t, carol)
}

func TestWebSocket_RejoinSwitchesRoom(t *testing.T) {
	req := require.New(t)
	f := newWSFixture(t, func(string, string) error { return nil })

	conn := f.dial(t, "alice", "Alice")

	sendJoin(t, conn, "chat-1")
	var joined domain.JoinedFrame
	readFrame(t, conn, &joined)

	sendJoin(t, conn, "chat-2")
	readFrame(t, conn, &joined)
	req.Equal("chat-2", joined.ChatID)

	f.hub.Publish("chat-1", domain.NewMessageFrame(&domain.Message{ID: "old", ChatID: "chat-1"}))
	f.hub.Publish("chat-2", domain.NewMessageFrame(&domain.Message{ID: "new", ChatID: "chat-2"}))

	var frame domain.MessageFrame
	readFrame(t, conn, &frame)
	req.Equal("new", frame.MessageID)
}

func TestWebSocket_JoinDeniedForNonParticipant(t *testing.T) {
	req := require.New(t)
	f := newWSFixture(t, func(chatID, userID string) error {
		if userID != "alice" {
			return service.ErrNotParticipant
		}
		return nil
	})

	conn := f.dial(t, "carol", "Carol")
	sendJoin(t, conn, "chat-1")

	var errFrame domain.ErrorFrame
	readFrame(t, conn, &errFrame)
	req.Equal(domain.FrameTypeError, errFrame.Type)
	req.Equal(domain.ErrCodeForbidden, errFrame.Code)

	// The denied user is not in the room, so a push passes them by.
	f.hub.Publish("chat-1", domain.NewMessageFrame(&domain.Message{ID: "m1", ChatID: "chat-1"}))
	requireNoFrame(t, conn)
}

func TestWebSocket_JoinUnknownChat(t *testing.T) {
	req := require.New(t)
	f := newWSFixture(t, func(string, string) error { return repository.ErrChatNotFound })

	conn := f.dial(t, "alice", "Alice")
	sendJoin(t, conn, "no-such-chat")

	var errFrame domain.ErrorFrame
	readFrame(t, conn, &errFrame)
	req.Equal(domain.ErrCodeBadRequest, errFrame.Code)
}

func TestWebSocket_MalformedFrameKeepsConnection(t *testing.T) {
	req := require.New(t)
	f := newWSFixture(t, func(string, string) error { return nil })

	conn := f.dial(t, "alice", "Alice")

	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var errFrame domain.ErrorFrame
	readFrame(t, conn, &errFrame)
	req.Equal(domain.ErrCodeBadRequest, errFrame.Code)

	req.NoError(conn.WriteJSON(domain.JoinFrame{Type: domain.FrameTypeJoin}))
	readFrame(t, conn, &errFrame)
	req.Equal(domain.ErrCodeBadRequest, errFrame.Code)

	req.NoError(conn.WriteJSON(domain.BaseFrame{Type: "shout"}))
	readFrame(t, conn, &errFrame)
	req.Equal(domain.ErrCodeBadRequest, errFrame.Code)

	// The connection survived all of it.
	req.NoError(conn.WriteJSON(domain.BaseFrame{Type: domain.FrameTypePing}))
	var pong domain.BaseFrame
	readFrame(t, conn, &pong)
	req.Equal(domain.FrameTypePong, pong.Type)
}

func TestWebSocket_DisconnectLeavesRoom(t *testing.T) {
	req := require.New(t)
	f := newWSFixture(t, func(string, string) error { return nil })

	conn := f.dial(t, "alice", "Alice")
	sendJoin(t, conn, "chat-1")
	var joined domain.JoinedFrame
	readFrame(t, conn, &joined)

	req.Eventually(func() bool { return f.hub.RoomSize("chat-1") == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()

	// The read pump notices the close and removes registry state.
	req.Eventually(func() bool { return f.hub.RoomSize("chat-1") == 0 }, 2*time.Second, 10*time.Millisecond)
}
