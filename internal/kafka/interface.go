package kafka

import (
	"context"

	"github.com/gabrielkumagai/beezy-api/internal/domain"
)

// MessageProducer emits persisted-message events for downstream consumers
// (notification fan-out, archival). Producing is best-effort: a failure
// here never affects the durable write it follows.
type MessageProducer interface {
	ProduceMessage(ctx context.Context, msg *domain.Message) error
	Close() error
}
