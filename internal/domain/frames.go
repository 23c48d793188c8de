package domain

import "time"

// WebSocket frame types from client.
const (
	FrameTypeJoin = "join"
	FrameTypePing = "ping"
)

// WebSocket frame types to client.
const (
	FrameTypeMessage = "message"
	FrameTypeJoined  = "joined"
	FrameTypeError   = "error"
	FrameTypePong    = "pong"
)

// Error codes carried in error frames.
const (
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
)

// BaseFrame is the type discriminator shared by all frames.
type BaseFrame struct {
	Type string `json:"type"`
}

// JoinFrame declares interest in a chat room. A later join replaces the
// connection's previous room.
type JoinFrame struct {
	Type   string `json:"type"`
	ChatID string `json:"chatId"`
}

// JoinedFrame acknowledges a join. Not required by clients; emitted for
// testability.
type JoinedFrame struct {
	Type   string `json:"type"`
	ChatID string `json:"chatId"`
}

// MessageFrame is the server→client push for a persisted message. Clients
// never originate this frame.
type MessageFrame struct {
	Type      string    `json:"type"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	MessageID string    `json:"messageId"`
}

// ErrorFrame reports a discarded or rejected frame. Receiving one does not
// close the connection.
type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorFrame builds an error frame.
func NewErrorFrame(code, message string) *ErrorFrame {
	return &ErrorFrame{
		Type:    FrameTypeError,
		Code:    code,
		Message: message,
	}
}

// NewMessageFrame builds the push frame for a persisted message.
func NewMessageFrame(m *Message) *MessageFrame {
	return &MessageFrame{
		Type:      FrameTypeMessage,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Sender:    m.SenderName,
		Content:   m.Content,
		Timestamp: m.CreatedAt,
		MessageID: m.ID,
	}
}
