package conversation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory conversation store for testing and demo mode.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	byPair        map[[2]string]string
	messages      map[string]*Message
	threads       map[string][]string // conversation id -> message ids in order
}

// NewMemoryStore creates a new in-memory conversation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		byPair:        make(map[[2]string]string),
		messages:      make(map[string]*Message),
		threads:       make(map[string][]string),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) GetOrCreate(ctx context.Context, id, a, b string, now time.Time) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := [2]string{a, b}
	if existing, ok := m.byPair[key]; ok {
		cp := *m.conversations[existing]
		return &cp, nil
	}
	c := &Conversation{ID: id, ParticipantA: a, ParticipantB: b, CreatedAt: now, UpdatedAt: now}
	m.conversations[id] = c
	m.byPair[key] = id
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) Append(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[msg.ConversationID]
	if !ok {
		return ErrConversationNotFound
	}
	cp := *msg
	m.messages[msg.ID] = &cp
	m.threads[c.ID] = append(m.threads[c.ID], msg.ID)
	c.LastMessageID = msg.ID
	c.UpdatedAt = msg.CreatedAt
	return nil
}

func (m *MemoryStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *MemoryStore) ListConversations(ctx context.Context, userID string, limit int) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Conversation
	for _, c := range m.conversations {
		if c.Has(userID) {
			cp := *c
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].LastMessageID > result[j].LastMessageID
		}
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.threads[conversationID]
	if len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	result := make([]*Message, 0, len(ids))
	for _, id := range ids {
		cp := *m.messages[id]
		result = append(result, &cp)
	}
	return result, nil
}
