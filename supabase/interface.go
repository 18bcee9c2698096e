package supabase

import (
	"time"

	"github.com/creastat/chatguard"
	"github.com/creastat/chatguard/session"
)

const (
	sessionsTable = "ai_sessions"
	messagesTable = "ai_server_messages"
)

// sessionRow represents a session from the database
type sessionRow struct {
	SessionID    string    `json:"session_id"`
	Subject      string    `json:"subject"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	// Embedded aggregate, e.g. "ai_server_messages":[{"count":3}]
	Messages []struct {
		Count int `json:"count"`
	} `json:"ai_server_messages,omitempty"`
}

func (r sessionRow) record() session.Record {
	rec := session.Record{
		ID:           r.SessionID,
		Subject:      r.Subject,
		CreatedAt:    r.CreatedAt,
		LastActivity: r.LastActivity,
	}
	if len(r.Messages) > 0 {
		rec.MessageCount = r.Messages[0].Count
	}
	return rec
}

// messageRow represents a message from the database
type messageRow struct {
	ID         int64              `json:"id,omitempty"`
	SessionID  string             `json:"session_id"`
	Role       string             `json:"role"`
	Content    string             `json:"content"`
	Metadata   chatguard.Metadata `json:"metadata,omitempty"`
	TokenCount int                `json:"token_count"`
	CreatedAt  time.Time          `json:"created_at"`
}

func (r messageRow) message() chatguard.Message {
	return chatguard.Message{
		Role:       chatguard.Role(r.Role),
		Content:    r.Content,
		Metadata:   r.Metadata,
		TokenCount: r.TokenCount,
		CreatedAt:  r.CreatedAt,
	}
}

// Compile-time check that Client implements session.Store
var _ session.Store = (*Client)(nil)
