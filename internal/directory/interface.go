package directory

import (
	"context"
	"errors"

	"github.com/gabrielkumagai/beezy-api/internal/domain"
)

var ErrUserNotFound = errors.New("user not found")

// UserDirectory resolves an identity to a participant id and display
// attributes. The rest of the platform (profiles, social graph) sits
// behind this interface.
type UserDirectory interface {
	Resolve(ctx context.Context, userID string) (*domain.Participant, error)
}
