package directory

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/gabrielkumagai/beezy-api/internal/domain"
)

// GormUserDirectory implements UserDirectory over the platform's users table.
type GormUserDirectory struct {
	db *gorm.DB
}

// NewGormUserDirectory creates a new GORM-based user directory.
func NewGormUserDirectory(db *gorm.DB) *GormUserDirectory {
	return &GormUserDirectory{db: db}
}

// Resolve looks up a user id and returns its participant attributes.
func (d *GormUserDirectory) Resolve(ctx context.Context, userID string) (*domain.Participant, error) {
	var model domain.UserModel
	result := d.db.WithContext(ctx).First(&model, "id = ?", userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return model.ToParticipant(), nil
}
