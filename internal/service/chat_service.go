package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gabrielkumagai/beezy-api/internal/audit"
	"github.com/gabrielkumagai/beezy-api/internal/cache"
	"github.com/gabrielkumagai/beezy-api/internal/directory"
	"github.com/gabrielkumagai/beezy-api/internal/domain"
	"github.com/gabrielkumagai/beezy-api/internal/kafka"
	"github.com/gabrielkumagai/beezy-api/internal/repository"
	"github.com/gabrielkumagai/beezy-api/pkg/log"
)

type chatService struct {
	repo           repository.ChatRepository
	users          directory.UserDirectory
	broadcaster    Broadcaster
	producer       kafka.MessageProducer // optional
	msgCache       cache.MessageCache    // optional
	cacheTTL       time.Duration
	publishTimeout time.Duration
	sf             singleflight.Group
}

// Options carries the service's optional collaborators and tunables.
type Options struct {
	Producer       kafka.MessageProducer
	Cache          cache.MessageCache
	CacheTTL       time.Duration
	PublishTimeout time.Duration
}

// NewChatService wires the chat core together.
func NewChatService(
	repo repository.ChatRepository,
	users directory.UserDirectory,
	broadcaster Broadcaster,
	opts Options,
) ChatService {
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	return &chatService{
		repo:           repo,
		users:          users,
		broadcaster:    broadcaster,
		producer:       opts.Producer,
		msgCache:       opts.Cache,
		cacheTTL:       opts.CacheTTL,
		publishTimeout: opts.PublishTimeout,
	}
}

func (s *chatService) StartChat(ctx context.Context, userID, peerID string) (*domain.Chat, bool, error) {
	if userID == peerID {
		return nil, false, ErrSelfChat
	}

	// The peer must exist before a chat can reference it.
	if _, err := s.users.Resolve(ctx, peerID); err != nil {
		return nil, false, err
	}

	chat, err := s.repo.FindChatBetween(ctx, userID, peerID)
	if err == nil {
		return chat, false, nil
	}
	if !errors.Is(err, repository.ErrChatNotFound) {
		return nil, false, fmt.Errorf("failed to look up chat: %w", err)
	}

	chat, err = s.repo.CreateChat(ctx, userID, peerID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create chat: %w", err)
	}

	audit.LogWithTarget(ctx, audit.ActionStartChat, userID, chat.ID, "chat started")
	return chat, true, nil
}

func (s *chatService) SendMessage(ctx context.Context, chatID, senderID, content string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, repository.ErrEmptyContent
	}

	if _, err := s.repo.GetChat(ctx, chatID); err != nil {
		return nil, err
	}

	member, err := s.repo.IsParticipant(ctx, chatID, senderID)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if !member {
		audit.LogWithTarget(ctx, audit.ActionForbidden, senderID, chatID, "send rejected, not a participant")
		return nil, ErrNotParticipant
	}

	sender, err := s.users.Resolve(ctx, senderID)
	if err != nil {
		return nil, err
	}

	// Durability boundary: after this returns, the message cannot be lost.
	msg, err := s.repo.AppendMessage(ctx, chatID, senderID, content)
	if err != nil {
		return nil, err
	}
	msg.SenderName = sender.DisplayName

	audit.LogWithTarget(ctx, audit.ActionSendMessage, senderID, chatID, "message persisted")

	// Live notification runs on its own execution path with its own
	// deadline. It may race the caller's next history read and is allowed
	// to silently not happen; the persist above is the contract.
	notification := *msg
	go s.notify(&notification)

	return msg, nil
}

func (s *chatService) notify(msg *domain.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
	defer cancel()

	// The hub's Publish is non-blocking; the timeout guards against a
	// Broadcaster implementation that stalls. On timeout the attempt is
	// abandoned (the goroutine finishes whenever the broadcaster returns)
	// and notify moves on to the cache and producer steps.
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.broadcaster.Publish(msg.ChatID, domain.NewMessageFrame(msg))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		l := log.L()
		l.Warn().Str(log.FieldChatID, msg.ChatID).Str(log.FieldMessageID, msg.ID).Msg("live broadcast timed out")
	}

	if s.msgCache != nil {
		if err := s.msgCache.Invalidate(ctx, msg.ChatID); err != nil {
			l := log.L()
			l.Warn().Err(err).Str(log.FieldChatID, msg.ChatID).Msg("failed to invalidate history cache")
		}
	}

	if s.producer != nil {
		if err := s.producer.ProduceMessage(ctx, msg); err != nil {
			l := log.L()
			l.Warn().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to produce message event")
		}
	}
}

func (s *chatService) ListMessages(ctx context.Context, chatID, userID string, limit int) ([]domain.Message, error) {
	if _, err := s.repo.GetChat(ctx, chatID); err != nil {
		return nil, err
	}

	member, err := s.repo.IsParticipant(ctx, chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if !member {
		audit.LogWithTarget(ctx, audit.ActionForbidden, userID, chatID, "history read rejected, not a participant")
		return nil, ErrNotParticipant
	}

	messages, err := s.fetchMessages(ctx, chatID, limit)
	if err != nil {
		return nil, err
	}

	if err := s.resolveSenders(ctx, messages); err != nil {
		return nil, err
	}

	audit.LogWithTarget(ctx, audit.ActionListHistory, userID, chatID, "history read")
	return messages, nil
}

// fetchMessages reads a history page through the cache when one is
// configured, collapsing concurrent identical reads.
func (s *chatService) fetchMessages(ctx context.Context, chatID string, limit int) ([]domain.Message, error) {
	if s.msgCache == nil {
		return s.repo.ListMessages(ctx, chatID, limit)
	}

	key := fmt.Sprintf("%s:%d", chatID, limit)
	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		cached, err := s.msgCache.Get(ctx, chatID, limit)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldChatID, chatID).Msg("history cache get error")
		}

		messages, err := s.repo.ListMessages(ctx, chatID, limit)
		if err != nil {
			return nil, err
		}

		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.msgCache.Set(cacheCtx, chatID, limit, messages, s.cacheTTL); err != nil {
				l := log.L()
				l.Warn().Err(err).Str(log.FieldChatID, chatID).Msg("history cache set error")
			}
		}()

		return messages, nil
	})
	if err != nil {
		return nil, err
	}

	messages, ok := result.([]domain.Message)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return messages, nil
}

// resolveSenders fills in display names, one directory lookup per sender.
func (s *chatService) resolveSenders(ctx context.Context, messages []domain.Message) error {
	names := make(map[string]string)
	for i := range messages {
		if messages[i].SenderName != "" {
			continue
		}
		name, ok := names[messages[i].SenderID]
		if !ok {
			p, err := s.users.Resolve(ctx, messages[i].SenderID)
			if err != nil {
				if errors.Is(err, directory.ErrUserNotFound) {
					// Sender account removed since; keep the message.
					names[messages[i].SenderID] = ""
					continue
				}
				return err
			}
			name = p.DisplayName
			names[messages[i].SenderID] = name
		}
		messages[i].SenderName = name
	}
	return nil
}

func (s *chatService) Authorize(ctx context.Context, chatID, userID string) error {
	if _, err := s.repo.GetChat(ctx, chatID); err != nil {
		return err
	}
	member, err := s.repo.IsParticipant(ctx, chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !member {
		return ErrNotParticipant
	}
	return nil
}

func (s *chatService) Close() error {
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("failed to close kafka producer")
		}
	}
	if s.msgCache != nil {
		return s.msgCache.Close()
	}
	return nil
}
