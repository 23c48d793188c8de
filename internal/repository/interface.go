package repository

import (
	"context"
	"errors"

	"github.com/gabrielkumagai/beezy-api/internal/domain"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrEmptyContent = errors.New("message content is empty")
)

// ChatRepository is the durable record of chats, participants, and
// messages. It is the source of truth: once AppendMessage returns, the
// message cannot be lost regardless of what the live path does.
type ChatRepository interface {
	// GetChat returns a chat by id, or ErrChatNotFound.
	GetChat(ctx context.Context, chatID string) (*domain.Chat, error)

	// FindChatBetween returns the chat for an unordered pair, or
	// ErrChatNotFound.
	FindChatBetween(ctx context.Context, userA, userB string) (*domain.Chat, error)

	// CreateChat creates the chat for an unordered pair. If a concurrent
	// call already created it, the existing chat is fetched and returned;
	// creation is idempotent per pair.
	CreateChat(ctx context.Context, userA, userB string) (*domain.Chat, error)

	// AppendMessage persists a message. Fails with ErrEmptyContent on empty
	// content and ErrChatNotFound on an unknown chat. The sender id is
	// stored as given: callers resolve it against the user directory
	// before appending, so an unknown sender is rejected upstream.
	AppendMessage(ctx context.Context, chatID, senderID, content string) (*domain.Message, error)

	// ListMessages returns up to limit messages of a chat ordered by
	// creation timestamp ascending. limit <= 0 means no limit.
	ListMessages(ctx context.Context, chatID string, limit int) ([]domain.Message, error)

	// IsParticipant reports whether userID belongs to the chat.
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
}
