package service

import (
	"context"
	"errors"

	"github.com/gabrielkumagai/beezy-api/internal/domain"
)

var (
	ErrSelfChat       = errors.New("cannot start a chat with yourself")
	ErrNotParticipant = errors.New("user is not a participant of this chat")
)

// Broadcaster pushes a payload to the live members of a chat room. It
// cannot fail observably: delivery is at-most-once and best-effort, and
// the durable write that precedes it is the caller-visible contract.
type Broadcaster interface {
	Publish(chatID string, payload interface{})
}

// ChatService is the write and read path of the chat core: membership
// checks, synchronous persistence, and the best-effort live notification
// that follows a successful persist.
type ChatService interface {
	// StartChat resolves or lazily creates the pairwise chat between the
	// caller and peer. The returned flag reports whether the chat was
	// created by this call.
	StartChat(ctx context.Context, userID, peerID string) (*domain.Chat, bool, error)

	// SendMessage validates membership and content, persists the message,
	// and then notifies live members asynchronously. By the time it
	// returns, the message is durable; live delivery may still be in
	// flight or may silently not happen.
	SendMessage(ctx context.Context, chatID, senderID, content string) (*domain.Message, error)

	// ListMessages returns a chat's history ordered by timestamp
	// ascending, with sender display names resolved.
	ListMessages(ctx context.Context, chatID, userID string, limit int) ([]domain.Message, error)

	// Authorize reports whether userID may observe chatID's live room.
	// Returns nil, ErrNotParticipant, or repository.ErrChatNotFound.
	Authorize(ctx context.Context, chatID, userID string) error

	// Close releases the service's background resources.
	Close() error
}
