// Package history implements the conversation store behind the history tool
// server: a MongoDB-backed store for deployments and an in-memory store used
// when no database is configured (and by tests).
//
// Both implementations enforce the same contract (conversation.Store):
// chronological order, lazy conversation creation, and FIFO head-truncation
// at the configured cap on every append.
package history

import (
	"context"
	"sort"
	"sync"

	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/conversation"
)

// MemoryStore keeps conversations in process memory. It is the fallback when
// MONGODB_URI is unset; turns do not survive a restart.
//
// Conversations are independent arenas: each holds its own lock so traffic on
// one conversation never blocks another. The outer map lock is held only for
// entry lookup/creation.
type MemoryStore struct {
	max int

	mu    sync.Mutex
	conns map[string]*memoryConversation
}

type memoryConversation struct {
	mu    sync.Mutex
	turns []conversation.Turn
}

// NewMemoryStore creates an in-memory store with the given per-conversation
// turn cap.
func NewMemoryStore(maxHistoryLength int) *MemoryStore {
	return &MemoryStore{
		max:   maxHistoryLength,
		conns: make(map[string]*memoryConversation),
	}
}

func (s *MemoryStore) conversationFor(id string, create bool) *memoryConversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	if !ok && create {
		c = &memoryConversation{}
		s.conns[id] = c
	}
	return c
}

// History returns the stored turns in chronological order. Unknown ids yield
// an empty slice.
func (s *MemoryStore) History(_ context.Context, conversationID string) ([]conversation.Turn, error) {
	c := s.conversationFor(conversationID, false)
	if c == nil {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]conversation.Turn, len(c.turns))
	copy(out, c.turns)
	return out, nil
}

// Append adds turns and trims to the cap.
func (s *MemoryStore) Append(_ context.Context, conversationID string, turns ...conversation.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	c := s.conversationFor(conversationID, true)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = conversation.Trim(append(c.turns, turns...), s.max)
	return nil
}

// Clear removes all turns for a conversation.
func (s *MemoryStore) Clear(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conversationID)
	return nil
}

// Recent lists conversations ordered by the timestamp of their latest turn,
// newest first.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]conversation.Summary, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var out []conversation.Summary
	for _, id := range ids {
		c := s.conversationFor(id, false)
		if c == nil {
			continue
		}
		c.mu.Lock()
		if n := len(c.turns); n > 0 {
			out = append(out, conversation.Summary{
				ConversationID: id,
				LatestTurn:     c.turns[n-1],
				TurnCount:      int64(n),
			})
		}
		c.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LatestTurn.Timestamp.After(out[j].LatestTurn.Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
