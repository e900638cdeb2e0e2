package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore keeps conversations in process memory.
type MemStore struct {
	mu            sync.RWMutex
	conversations map[string]*memConversation
	now           func() time.Time
}

type memConversation struct {
	header   Conversation
	messages []Message
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		conversations: make(map[string]*memConversation),
		now:           time.Now,
	}
}

// Create implements Store.
func (s *MemStore) Create(ctx context.Context) (*Conversation, error) {
	now := s.now()
	conv := &memConversation{header: Conversation{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		LastActivity: now,
	}}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.header.ID] = conv
	h := conv.header
	return &h, nil
}

// Append implements Store.
func (s *MemStore) Append(ctx context.Context, conversationID string, msg Message) error {
	now := s.now()
	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		conv = &memConversation{header: Conversation{ID: conversationID, CreatedAt: now}}
		s.conversations[conversationID] = conv
	}
	conv.messages = append(conv.messages, msg)
	conv.header.LastActivity = now
	conv.header.MessageCount = len(conv.messages)
	return nil
}

// Exists implements Store.
func (s *MemStore) Exists(ctx context.Context, conversationID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.conversations[conversationID]
	return ok, nil
}

// Messages implements Store. Unknown ids yield an empty slice.
func (s *MemStore) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return []Message{}, nil
	}
	return slices.Clone(conv.messages), nil
}

// Get implements Store.
func (s *MemStore) Get(ctx context.Context, conversationID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	h := conv.header
	return &h, nil
}

// Delete implements Store.
func (s *MemStore) Delete(ctx context.Context, conversationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return false, nil
	}
	delete(s.conversations, conversationID)
	return true, nil
}

// List implements Store.
func (s *MemStore) List(ctx context.Context) ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c.header)
	}
	sortByActivity(out)
	return out, nil
}

// Close implements Store.
func (s *MemStore) Close() error { return nil }

func sortByActivity(convs []Conversation) {
	slices.SortFunc(convs, func(a, b Conversation) int {
		if c := b.LastActivity.Compare(a.LastActivity); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
