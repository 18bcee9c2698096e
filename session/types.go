package session

import (
	"time"

	"github.com/google/uuid"
)

// Record is the durable view of a session.
type Record struct {
	ID           string    `json:"session_id"`
	Subject      string    `json:"subject"` // Comma separated subject label
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

// laterOf keeps LastActivity monotonically non-decreasing.
func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
