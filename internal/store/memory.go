// ABOUTME: In-memory Store implementation with per-conversation locking
// ABOUTME: Conversations live for the process lifetime; entries are added, never removed

package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// entry pairs a conversation with its own mutex so mutations to one
// conversation serialize without contending with other conversations.
type entry struct {
	mu   sync.Mutex
	conv Conversation
}

// MemoryStore is a process-wide, concurrency-safe conversation store.
// The outer lock guards the map and creation order; each entry's lock
// guards that conversation's messages and automation flag.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
	}
}

func (s *MemoryStore) CreateConversation(ctx context.Context, name string) (*Conversation, error) {
	id := uuid.New().String()
	if name == "" {
		name = id
	}

	e := &entry{
		conv: Conversation{
			ID:                id,
			Name:              name,
			CreatedAt:         time.Now(),
			AutomationEnabled: true,
		},
	}

	// Snapshot before the entry is published: once it is in the map a
	// concurrent caller can append to it, and this read holds no lock.
	snapshot := snapshotConversation(&e.conv)

	s.mu.Lock()
	s.entries[id] = e
	s.order = append(s.order, id)
	s.mu.Unlock()

	return snapshot, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshotConversation(&e.conv), nil
}

func (s *MemoryStore) ListConversations(ctx context.Context) ([]*Conversation, error) {
	s.mu.RLock()
	order := make([]string, len(s.order))
	copy(order, s.order)
	s.mu.RUnlock()

	conversations := make([]*Conversation, 0, len(order))
	for _, id := range order {
		conv, err := s.GetConversation(ctx, id)
		if err != nil {
			// Entries are never removed, so a listed id always resolves.
			continue
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, id string, msg Message) (*Message, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	msg.Time = time.Now().Format(TimeFormat)

	e.mu.Lock()
	e.conv.Messages = append(e.conv.Messages, msg)
	e.mu.Unlock()

	return &msg, nil
}

func (s *MemoryStore) Transcript(ctx context.Context, id string) ([]Message, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshotMessages(e.conv.Messages), nil
}

func (s *MemoryStore) AutomationEnabled(ctx context.Context, id string) (bool, error) {
	e, err := s.lookup(id)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv.AutomationEnabled, nil
}

func (s *MemoryStore) SetAutomation(ctx context.Context, id string, enabled bool) (bool, error) {
	e, err := s.lookup(id)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.conv.AutomationEnabled = enabled
	return e.conv.AutomationEnabled, nil
}

func (s *MemoryStore) DisableAutomation(ctx context.Context, id string) (bool, error) {
	e, err := s.lookup(id)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.conv.AutomationEnabled {
		return false, nil
	}
	e.conv.AutomationEnabled = false
	return true, nil
}

// lookup resolves an entry by id under the outer read lock.
func (s *MemoryStore) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// snapshotConversation copies a conversation, including its messages.
// Must be called with the entry lock held.
func snapshotConversation(c *Conversation) *Conversation {
	snapshot := *c
	snapshot.Messages = snapshotMessages(c.Messages)
	return &snapshot
}

func snapshotMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
