package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message represents a persisted conversation message. Assistant-only
// fields are nil for user and system messages.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`

	Role    Role   `json:"role"`
	Content string `json:"content"`

	TokenCount   *int           `json:"token_count,omitempty"`
	Model        *string        `json:"model,omitempty"`
	FinishReason *string        `json:"finish_reason,omitempty"`
	LatencyMs    *int64         `json:"latency_ms,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	Content  string `json:"content"`
	Model    string `json:"model,omitempty"`
	Thinking bool   `json:"thinking,omitempty"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Status  string    `json:"status"`
	Data    []Message `json:"data"`
	Page    int       `json:"page"`
	PerPage int       `json:"per_page"`
	Total   int       `json:"total"`
}
