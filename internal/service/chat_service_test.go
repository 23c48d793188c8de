package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gabrielkumagai/beezy-api/internal/cache"
	"github.com/gabrielkumagai/beezy-api/internal/directory"
	"github.com/gabrielkumagai/beezy-api/internal/domain"
	"github.com/gabrielkumagai/beezy-api/internal/repository"
)

// fakeRepo is an in-memory ChatRepository preserving insertion order.
type fakeRepo struct {
	mu       sync.Mutex
	chats    map[string]*domain.Chat
	messages map[string][]domain.Message
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		chats:    make(map[string]*domain.Chat),
		messages: make(map[string][]domain.Message),
	}
}

func (r *fakeRepo) GetChat(_ context.Context, chatID string) (*domain.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatID]
	if !ok {
		return nil, repository.ErrChatNotFound
	}
	copied := *chat
	return &copied, nil
}

func (r *fakeRepo) FindChatBetween(_ context.Context, userA, userB string) (*domain.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := domain.PairKey(userA, userB)
	for _, chat := range r.chats {
		if domain.PairKey(chat.Participants[0], chat.Participants[1]) == key {
			copied := *chat
			return &copied, nil
		}
	}
	return nil, repository.ErrChatNotFound
}

func (r *fakeRepo) CreateChat(ctx context.Context, userA, userB string) (*domain.Chat, error) {
	if existing, err := r.FindChatBetween(ctx, userA, userB); err == nil {
		return existing, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	chat := &domain.Chat{
		ID:           uuid.New().String(),
		Participants: []string{userA, userB},
		CreatedAt:    time.Now(),
	}
	r.chats[chat.ID] = chat
	copied := *chat
	return &copied, nil
}

func (r *fakeRepo) AppendMessage(_ context.Context, chatID, senderID, content string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chats[chatID]; !ok {
		return nil, repository.ErrChatNotFound
	}
	msg := domain.Message{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	r.messages[chatID] = append(r.messages[chatID], msg)
	copied := msg
	return &copied, nil
}

func (r *fakeRepo) ListMessages(_ context.Context, chatID string, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[chatID]
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (r *fakeRepo) IsParticipant(_ context.Context, chatID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatID]
	if !ok {
		return false, nil
	}
	for _, p := range chat.Participants {
		if p == userID {
			return true, nil
		}
	}
	return false, nil
}

// fakeDirectory resolves a fixed set of users.
type fakeDirectory struct {
	users map[string]string // user id -> display name
}

func (d *fakeDirectory) Resolve(_ context.Context, userID string) (*domain.Participant, error) {
	name, ok := d.users[userID]
	if !ok {
		return nil, directory.ErrUserNotFound
	}
	return &domain.Participant{UserID: userID, DisplayName: name}, nil
}

type publishedFrame struct {
	chatID  string
	payload interface{}
}

// recordingBroadcaster captures publishes on a channel so tests can wait
// for the asynchronous notification path.
type recordingBroadcaster struct {
	frames chan publishedFrame
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{frames: make(chan publishedFrame, 16)}
}

func (b *recordingBroadcaster) Publish(chatID string, payload interface{}) {
	b.frames <- publishedFrame{chatID: chatID, payload: payload}
}

func (b *recordingBroadcaster) wait(t *testing.T) publishedFrame {
	t.Helper()
	select {
	case f := <-b.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
		return publishedFrame{}
	}
}

// stuckBroadcaster never returns from Publish.
type stuckBroadcaster struct{}

func (stuckBroadcaster) Publish(string, interface{}) {
	select {}
}

// failingProducer errors on every produce.
type failingProducer struct {
	mu    sync.Mutex
	calls int
}

func (p *failingProducer) ProduceMessage(context.Context, *domain.Message) error {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return errors.New("broker unreachable")
}

func (p *failingProducer) Close() error { return nil }

// failingCache errors on every operation.
type failingCache struct{}

func (failingCache) Get(context.Context, string, int) ([]domain.Message, error) {
	return nil, cache.ErrCacheMiss
}
func (failingCache) Set(context.Context, string, int, []domain.Message, time.Duration) error {
	return errors.New("cache unavailable")
}
func (failingCache) Invalidate(context.Context, string) error {
	return errors.New("cache unavailable")
}
func (failingCache) Close() error { return nil }

func newTestService(repo *fakeRepo, b Broadcaster, opts Options) ChatService {
	users := &fakeDirectory{users: map[string]string{
		"alice": "Alice A.",
		"bob":   "Bob B.",
		"carol": "Carol C.",
	}}
	return NewChatService(repo, users, b, opts)
}

func TestStartChat(t *testing.T) {
	req := require.New(t)
	svc := newTestService(newFakeRepo(), newRecordingBroadcaster(), Options{})
	ctx := context.Background()

	// Given no chat between alice and bob, the first call creates one
	chat, created, err := svc.StartChat(ctx, "alice", "bob")
	req.NoError(err)
	req.True(created)
	req.ElementsMatch([]string{"alice", "bob"}, chat.Participants)

	// A repeat call, from either side, returns the same chat
	again, created, err := svc.StartChat(ctx, "bob", "alice")
	req.NoError(err)
	req.False(created)
	req.Equal(chat.ID, again.ID)
}

func TestStartChat_SelfChat(t *testing.T) {
	req := require.New(t)
	svc := newTestService(newFakeRepo(), newRecordingBroadcaster(), Options{})

	_, _, err := svc.StartChat(context.Background(), "alice", "alice")
	req.ErrorIs(err, ErrSelfChat)
}

func TestStartChat_UnknownPeer(t *testing.T) {
	req := require.New(t)
	svc := newTestService(newFakeRepo(), newRecordingBroadcaster(), Options{})

	_, _, err := svc.StartChat(context.Background(), "alice", "nobody")
	req.ErrorIs(err, directory.ErrUserNotFound)
}

func TestSendMessage_PersistsAndBroadcasts(t *testing.T) {
	req := require.New(t)
	repo := newFakeRepo()
	b := newRecordingBroadcaster()
	svc := newTestService(repo, b, Options{})
	ctx := context.Background()

	chat, _, err := svc.StartChat(ctx, "alice", "bob")
	req.NoError(err)

	msg, err := svc.SendMessage(ctx, chat.ID, "alice", "hi bob")
	req.NoError(err)
	req.Equal("hi bob", msg.Content)
	req.Equal("Alice A.", msg.SenderName)

	// Persisted before the call returned
	stored, err := repo.ListMessages(ctx, chat.ID, 0)
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal(msg.ID, stored[0].ID)

	// The live frame follows, addressed to the chat's room
	frame := b.wait(t)
	req.Equal(chat.ID, frame.chatID)
	mf, ok := frame.payload.(*domain.MessageFrame)
	req.True(ok)
	req.Equal(domain.FrameTypeMessage, mf.Type)
	req.Equal(msg.ID, mf.MessageID)
	req.Equal("alice", mf.SenderID)
	req.Equal("Alice A.", mf.Sender)
	req.Equal("hi bob", mf.Content)
}

func TestSendMessage_NotParticipant(t *testing.T) {
	req := require.New(t)
	repo := newFakeRepo()
	svc := newTestService(repo, newRecordingBroadcaster(), Options{})
	ctx := context.Background()

	chat, _, err := svc.StartChat(ctx, "alice", "bob")
	req.NoError(err)

	_, err = svc.SendMessage(ctx, chat.ID, "carol", "let me in")
	req.ErrorIs(err, ErrNotParticipant)

	// Nothing was persisted
	stored, err := repo.ListMessages(ctx, chat.ID, 0)
	req.NoError(err)
	req.Empty(stored)
}

func TestSendMessage_UnknownChat(t *testing.T) {
	req := require.New(t)
	svc := newTestService(newFakeRepo(), newRecordingBroadcaster(), Options{})

	_, err := svc.SendMessage(context.Background(), "no-such-chat", "alice", "hello")
	req.ErrorIs(err, repository.ErrChatNotFound)
}

func TestSendMessage_UnknownSender(t *testing.T) {
	req := require.New(t)
	repo := newFakeRepo()
	svc := newTestService(repo, newRecordingBroadcaster(), Options{})
	ctx := context.Background()

	// A participant whose account no longer resolves cannot send.
	chat, err := repo.CreateChat(ctx, "alice", "ghost")
	req.NoError(err)

	_, err = svc.SendMessage(ctx, chat.ID, "ghost", "boo")
	req.ErrorIs(err, directory.ErrUserNotFound)

	stored, err := repo.ListMessages(ctx, chat.ID, 0)
	req.NoError(err)
	req.Empty(stored)
}

func TestSendMessage_EmptyContent(t *testing.T) {
	req := require.New(t)
	svc := newTestService(newFakeRepo(), newRecordingBroadcaster(), Options{})
	ctx := context.Background()

	chat, _, err := svc.StartChat(ctx, "alice", "bob")
	req.NoError(err)

	_, err = svc.SendMessage(ctx, chat.ID, "alice", "   ")
	req.ErrorIs(err, repository.ErrEmptyContent)
}

func TestSendMessage_SurvivesStuckBroadcaster(t *testing.T) {
	req := require.New(t)
	repo := newFakeRepo()
	svc := newTestService(repo, stuckBroadcaster{}, Options{PublishTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	chat, _, err := svc.StartChat(ctx, "alice", "bob")
	req.NoError(err)

	// A broadcaster that never completes must not fail or delay the send.
	start := time.Now()
	msg, err := svc.SendMessage(ctx, chat.ID, "alice", "still here")
	req.NoError(err)
	req.Less(time.Since(start), time.Second)

	stored, err := repo.ListMessages(ctx, chat.ID, 0)
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal(msg.ID, stored[0].ID)
}

func TestSendMessage_SurvivesFailingProducerAndCache(t *testing.T) {
	req := require.New(t)
	repo := newFakeRepo()
	b := newRecordingBroadcaster()
	producer := &failingProducer{}
	svc := newTestService(repo, b, Options{
		Producer: producer,
		Cache:    failingCache{},
	})
	ctx := context.Background()

	chat, _, err := svc.StartChat(ctx, "alice", "bob")
	req.NoError(err)

	_, err = svc.SendMessage(ctx, chat.ID, "alice", "hello")
	req.NoError(err)

	// The broadcast still happens even though cache and broker are down.
	frame := b.wait(t)
	req.Equal(chat.ID, frame.chatID)
}

func TestListMessages(t *testing.T) {
	req := require.New(t)
	repo := newFakeRepo()
	b := newRecordingBroadcaster()
	svc := newTestService(repo, b, Options{})
	ctx := context.Background()

	chat, _, err := svc.StartChat(ctx, "alice", "bob")
	req.NoError(err)

	for _, send := range []struct{ sender, content string }{
		{"alice", "hi"},
		{"bob", "hello"},
		{"alice", "how are you"},
	} {
		_, err := svc.SendMessage(ctx, chat.ID, send.sender, send.content)
		req.NoError(err)
		b.wait(t)
	}

	messages, err := svc.ListMessages(ctx, chat.ID, "bob", 0)
	req.NoError(err)
	req.Len(messages, 3)

	// Ascending order with display names resolved
	req.Equal("hi", messages[0].Content)
	req.Equal("Alice A.", messages[0].SenderName)
	req.Equal("hello", messages[1].Content)
	req.Equal("Bob B.", messages[1].SenderName)
	req.Equal("how are you", messages[2].Content)
}

func TestListMessages_NotParticipant(t *testing.T) {
	req := require.New(t)
	svc := newTestService(newFakeRepo(), newRecordingBroadcaster(), Options{})
	ctx := context.Background()

	chat, _, err := svc.StartChat(ctx, "alice", "bob")
	req.NoError(err)

	_, err = svc.ListMessages(ctx, chat.ID, "carol", 0)
	req.ErrorIs(err, ErrNotParticipant)
}

func TestListMessages_UnknownChat(t *testing.T) {
	req := require.New(t)
	svc := newTestService(newFakeRepo(), newRecordingBroadcaster(), Options{})

	_, err := svc.ListMessages(context.Background(), "no-such-chat", "alice", 0)
	req.ErrorIs(err, repository.ErrChatNotFound)
}

func TestListMessages_RemovedSenderKeepsMessage(t *testing.T) {
	req := require.New(t)
	repo := newFakeRepo()
	b := newRecordingBroadcaster()
	users := &fakeDirectory{users: map[string]string{
		"alice": "Alice A.",
		"bob":   "Bob B.",
	}}
	svc := NewChatService(repo, users, b, Options{})
	ctx := context.Background()

	chat, _, err := svc.StartChat(ctx, "alice", "bob")
	req.NoError(err)
	_, err = svc.SendMessage(ctx, chat.ID, "bob", "before leaving")
	req.NoError(err)
	b.wait(t)

	// Sender account removed after the message was written.
	delete(users.users, "bob")

	messages, err := svc.ListMessages(ctx, chat.ID, "alice", 0)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("before leaving", messages[0].Content)
	req.Empty(messages[0].SenderName)
}

func TestAuthorize(t *testing.T) {
	req := require.New(t)
	svc := newTestService(newFakeRepo(), newRecordingBroadcaster(), Options{})
	ctx := context.Background()

	chat, _, err := svc.StartChat(ctx, "alice", "bob")
	req.NoError(err)

	req.NoError(svc.Authorize(ctx, chat.ID, "alice"))
	req.NoError(svc.Authorize(ctx, chat.ID, "bob"))
	req.ErrorIs(svc.Authorize(ctx, chat.ID, "carol"), ErrNotParticipant)
	req.ErrorIs(svc.Authorize(ctx, "no-such-chat", "alice"), repository.ErrChatNotFound)
}
