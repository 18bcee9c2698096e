package session

import (
	"context"
	"time"

	"github.com/creastat/chatguard"
)

// Store defines the durable persistence layer for sessions and their
// messages. Implementations must cascade message deletion when a session
// is deleted.
type Store interface {
	// UpsertSession inserts the session if absent, otherwise bumps its
	// LastActivity. Subject and CreatedAt of an existing session are kept.
	UpsertSession(ctx context.Context, id, subject string) (*Record, error)

	// GetSession retrieves a session with its message count.
	// Returns nil if the session is not found (not an error).
	GetSession(ctx context.Context, id string) (*Record, error)

	// ListSessions returns up to limit sessions, most recently active first.
	// A limit <= 0 returns all sessions.
	ListSessions(ctx context.Context, limit int) ([]Record, error)

	// DeleteSession deletes a session and its messages.
	// Reports whether the session existed.
	DeleteSession(ctx context.Context, id string) (bool, error)

	// CountSessions returns the number of stored sessions.
	CountSessions(ctx context.Context) (int, error)

	// AddMessage appends a message to a session and bumps its LastActivity.
	// A zero CreatedAt is stamped with the store's clock.
	// Returns ErrNotFound if the session does not exist.
	AddMessage(ctx context.Context, id string, msg chatguard.Message) error

	// ListMessages returns the most recent limit messages, oldest first.
	// A limit <= 0 returns every message.
	ListMessages(ctx context.Context, id string, limit int) ([]chatguard.Message, error)

	// CountMessages returns the number of messages stored for a session.
	CountMessages(ctx context.Context, id string) (int, error)

	// TrimMessages deletes the oldest messages until at most keep remain.
	// A leading system message is never deleted.
	// Returns the number of deleted messages.
	TrimMessages(ctx context.Context, id string, keep int) (int, error)

	// DeleteInactiveSessions deletes sessions whose LastActivity is before
	// the given instant, with their messages.
	DeleteInactiveSessions(ctx context.Context, before time.Time) (int, error)

	// DeleteMessagesBefore deletes messages created before the given
	// instant, in every session.
	DeleteMessagesBefore(ctx context.Context, before time.Time) (int, error)

	// Close closes the store and releases any resources.
	Close() error
}
