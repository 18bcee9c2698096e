package chatguard

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Metadata carries optional per-message data such as provider citations.
type Metadata map[string]any

// Message is a single conversation turn.
type Message struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Metadata   Metadata  `json:"metadata,omitempty"`
	TokenCount int       `json:"token_count"` // Estimated tokens
	CreatedAt  time.Time `json:"created_at"`
}

// NewMessage builds a message stamped with createdAt and an estimated token count.
func NewMessage(role Role, content string, metadata Metadata, createdAt time.Time) Message {
	return Message{
		Role:       role,
		Content:    content,
		Metadata:   metadata,
		TokenCount: EstimateTokens(content),
		CreatedAt:  createdAt,
	}
}
