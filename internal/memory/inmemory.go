package memory

import (
	"context"
	"sync"
	"time"

	"github.com/54b3r/ragbot-go/internal/apperr"
)

// InMemoryStore is a process-lifetime Store backed by a mutex-guarded map.
type InMemoryStore struct {
	mu       sync.Mutex
	cap      int
	sessions map[string][]Message
}

// NewInMemoryStore returns an empty store keeping the last capacity messages
// per session. A non-positive capacity uses DefaultCap.
func NewInMemoryStore(capacity int) *InMemoryStore {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &InMemoryStore{cap: capacity, sessions: make(map[string][]Message)}
}

// History returns a copy of the session's messages, oldest first.
func (s *InMemoryStore) History(_ context.Context, sessionID string) ([]Message, error) {
	if sessionID == "" {
		return nil, apperr.Validation("memory: session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sessions[sessionID]...), nil
}

// Append adds msgs and evicts the oldest messages beyond the cap.
func (s *InMemoryStore) Append(_ context.Context, sessionID string, msgs ...Message) error {
	if sessionID == "" {
		return apperr.Validation("memory: session id is required")
	}
	if len(msgs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h := append(s.sessions[sessionID], stamp(msgs, time.Now())...)
	if over := len(h) - s.cap; over > 0 {
		h = append([]Message(nil), h[over:]...)
	}
	s.sessions[sessionID] = h
	return nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }
