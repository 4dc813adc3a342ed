// Package store provides chat.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rubiojr/lunarvox/internal/chat"
)

// Memory keeps messages in process memory.
type Memory struct {
	mu   sync.RWMutex
	msgs map[string]*chat.Message
}

var _ chat.Store = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{msgs: make(map[string]*chat.Message)}
}

// Save inserts or replaces m.
func (s *Memory) Save(_ context.Context, m *chat.Message) error {
	if m.ID == "" {
		return fmt.Errorf("save message: empty id")
	}
	cp := *m
	s.mu.Lock()
	s.msgs[m.ID] = &cp
	s.mu.Unlock()
	return nil
}

// Get returns the message with id.
func (s *Memory) Get(_ context.Context, id string) (*chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, chat.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// List returns the newest limit messages of thread, oldest first.
func (s *Memory) List(_ context.Context, thread string, limit int) ([]*chat.Message, error) {
	s.mu.RLock()
	var out []*chat.Message
	for _, m := range s.msgs {
		if m.Thread == thread {
			cp := *m
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SentAt.Before(out[j].SentAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Close implements chat.Store.
func (s *Memory) Close() error { return nil }
