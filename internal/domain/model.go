package domain

import (
	"sort"
	"strings"
	"time"
)

// ChatModel is the GORM model for the chats table. PairKey is the sorted
// "a:b" participant pair; its unique index is what makes concurrent
// start-chat calls for the same pair collapse onto one row.
type ChatModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	PairKey   string    `gorm:"type:varchar(73);uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for ChatModel.
func (ChatModel) TableName() string {
	return "chats"
}

// ChatParticipantModel is the GORM model for the chat_participants table.
type ChatParticipantModel struct {
	ChatID string `gorm:"type:varchar(36);primaryKey"`
	UserID string `gorm:"type:varchar(36);primaryKey;index"`
}

// TableName specifies the table name for ChatParticipantModel.
func (ChatParticipantModel) TableName() string {
	return "chat_participants"
}

// MessageModel is the GORM model for the messages table.
type MessageModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	ChatID    string    `gorm:"type:varchar(36);index:idx_messages_chat_created,priority:1;not null"`
	SenderID  string    `gorm:"type:varchar(36);not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_messages_chat_created,priority:2"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "messages"
}

// PairKey builds the canonical key for an unordered participant pair.
func PairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// ToDomain converts a ChatModel plus its participant ids to a domain Chat.
func (m *ChatModel) ToDomain(participants []string) *Chat {
	return &Chat{
		ID:           m.ID,
		Participants: participants,
		CreatedAt:    m.CreatedAt,
	}
}

// ToDomain converts a MessageModel to a domain Message. The sender display
// name is not stored with the message; callers resolve it separately.
func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
