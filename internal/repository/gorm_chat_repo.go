package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gabrielkumagai/beezy-api/internal/domain"
	"github.com/gabrielkumagai/beezy-api/pkg/log"
)

// GormChatRepository implements ChatRepository using GORM.
type GormChatRepository struct {
	db *gorm.DB
}

// NewGormChatRepository creates a new GORM-based chat repository.
func NewGormChatRepository(db *gorm.DB) *GormChatRepository {
	return &GormChatRepository{db: db}
}

// GetChat returns a chat by id.
func (r *GormChatRepository) GetChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	var model domain.ChatModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", chatID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, result.Error
	}

	participants, err := r.participantIDs(ctx, model.ID)
	if err != nil {
		return nil, err
	}
	return model.ToDomain(participants), nil
}

// FindChatBetween returns the chat for an unordered participant pair.
func (r *GormChatRepository) FindChatBetween(ctx context.Context, userA, userB string) (*domain.Chat, error) {
	var model domain.ChatModel
	result := r.db.WithContext(ctx).First(&model, "pair_key = ?", domain.PairKey(userA, userB))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, result.Error
	}

	participants, err := r.participantIDs(ctx, model.ID)
	if err != nil {
		return nil, err
	}
	return model.ToDomain(participants), nil
}

// CreateChat creates the pairwise chat, or returns the existing one when a
// concurrent call won the unique-pair race.
func (r *GormChatRepository) CreateChat(ctx context.Context, userA, userB string) (*domain.Chat, error) {
	l := log.Ctx(ctx)

	model := &domain.ChatModel{
		ID:      uuid.New().String(),
		PairKey: domain.PairKey(userA, userB),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		parts := []domain.ChatParticipantModel{
			{ChatID: model.ID, UserID: userA},
			{ChatID: model.ID, UserID: userB},
		}
		return tx.Create(&parts).Error
	})
	if err != nil {
		if isDuplicateKey(err) {
			// Lost the race: the pair already has a chat. Fetch and return it.
			l.Debug().Str("pair_key", model.PairKey).Msg("chat already exists, returning existing")
			return r.FindChatBetween(ctx, userA, userB)
		}
		l.Error().Err(err).Msg("failed to create chat in db")
		return nil, err
	}

	l.Debug().Str(log.FieldChatID, model.ID).Msg("chat created in db")
	return model.ToDomain([]string{userA, userB}), nil
}

// AppendMessage persists one message for an existing chat. The sender is
// not checked against the users table; the service resolves it first.
func (r *GormChatRepository) AppendMessage(ctx context.Context, chatID, senderID, content string) (*domain.Message, error) {
	l := log.Ctx(ctx)

	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	model := &domain.MessageModel{
		ID:       uuid.New().String(),
		ChatID:   chatID,
		SenderID: senderID,
		Content:  content,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.ChatModel{}).Where("id = ?", chatID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrChatNotFound
		}
		return tx.Create(model).Error
	})
	if err != nil {
		if !errors.Is(err, ErrChatNotFound) {
			l.Error().Err(err).Str(log.FieldChatID, chatID).Msg("failed to append message in db")
		}
		return nil, err
	}

	return model.ToDomain(), nil
}

// ListMessages returns a chat's messages ordered by creation time ascending.
func (r *GormChatRepository) ListMessages(ctx context.Context, chatID string, limit int) ([]domain.Message, error) {
	var models []domain.MessageModel
	query := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	messages := make([]domain.Message, len(models))
	for i, model := range models {
		messages[i] = *model.ToDomain()
	}
	return messages, nil
}

// IsParticipant reports whether userID is a member of chatID.
func (r *GormChatRepository) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&domain.ChatParticipantModel{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

func (r *GormChatRepository) participantIDs(ctx context.Context, chatID string) ([]string, error) {
	var parts []domain.ChatParticipantModel
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("user_id ASC").
		Find(&parts).Error; err != nil {
		return nil, err
	}
	ids := make([]string, len(parts))
	for i, p := range parts {
		ids[i] = p.UserID
	}
	return ids, nil
}

// isDuplicateKey detects unique constraint violations across the supported
// drivers (postgres, mysql, sqlite).
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") ||
		strings.Contains(errStr, "Duplicate entry") ||
		strings.Contains(errStr, "UNIQUE constraint")
}
