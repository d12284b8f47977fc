// Package memory keeps the bounded per-session conversation history that is
// fed back into generation. Each session holds at most a fixed number of
// messages; appending past the cap evicts the oldest first.
package memory

import (
	"context"
	"time"
)

// DefaultCap is the number of messages kept per session when none is configured.
const DefaultCap = 10

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a message sent by the end user.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the generator.
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	// Role is the author of the message.
	Role Role
	// Content is the text of the message.
	Content string
	// CreatedAt is when the message was appended.
	CreatedAt time.Time
}

// Store persists conversation history keyed by session id.
// Implementations must be safe for concurrent use.
type Store interface {
	// History returns the session's messages oldest-first. An unknown
	// session yields an empty slice, not an error.
	History(ctx context.Context, sessionID string) ([]Message, error)
	// Append adds msgs to the session and trims it to the cap in one atomic
	// step, so concurrent readers never observe an over-cap history.
	Append(ctx context.Context, sessionID string, msgs ...Message) error
	// Close releases any resources held by the store.
	Close() error
}

// stamp fills a zero CreatedAt with now.
func stamp(msgs []Message, now time.Time) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		out[i] = m
	}
	return out
}
