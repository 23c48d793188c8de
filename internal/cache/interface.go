package cache

import (
	"context"
	"errors"
	"time"

	"github.com/gabrielkumagai/beezy-api/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// MessageCache holds recently listed message pages per chat. It is a read
// accelerator only; the repository stays the source of truth and entries
// are invalidated whenever a message is appended.
type MessageCache interface {
	Get(ctx context.Context, chatID string, limit int) ([]domain.Message, error)
	Set(ctx context.Context, chatID string, limit int, messages []domain.Message, ttl time.Duration) error
	Invalidate(ctx context.Context, chatID string) error
	Close() error
}
