package domain

import (
	"time"
)

// Chat is a pairwise conversation between exactly two users. At most one
// chat exists per unordered pair of participants.
type Chat struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message is one immutable entry in a chat's log. The timestamp is
// assigned at persistence time and is the total order within a chat.
type Message struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Participant is the resolved identity of a chat member, as returned by
// the user directory.
type Participant struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// SendMessageRequest is the body of the send-message endpoint.
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// ChatResponse represents a chat in API responses.
type ChatResponse struct {
	ChatID       string    `json:"chat_id"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

// SendMessageResponse acknowledges a persisted message. Live delivery is
// best-effort and carries no acknowledgment of its own.
type SendMessageResponse struct {
	MessageID string    `json:"message_id"`
	ChatID    string    `json:"chat_id"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageResponse represents one message in the history listing.
type MessageResponse struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ToResponse converts a Chat to its API shape.
func (c *Chat) ToResponse() ChatResponse {
	return ChatResponse{
		ChatID:       c.ID,
		Participants: c.Participants,
		CreatedAt:    c.CreatedAt,
	}
}

// ToResponse converts a Message to its API shape.
func (m *Message) ToResponse() MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Sender:    m.SenderName,
		Content:   m.Content,
		Timestamp: m.CreatedAt,
	}
}
