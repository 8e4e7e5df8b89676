// Package store provides conversation and message persistence.
package store

import (
	"context"
	"errors"

	"github.com/threadline-ai/conversation-api/internal/model"
)

// ErrNotFound is returned when a conversation does not exist or has been
// deleted.
var ErrNotFound = errors.New("conversation not found")

// Store persists conversations and their messages. Messages are ordered
// by creation time within a conversation and immutable once saved.
type Store interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID string, page, perPage int) ([]model.Conversation, int, error)
	UpdateConversation(ctx context.Context, id string, req *model.UpdateConversationRequest) (*model.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	// UpdateTitle overwrites the conversation title. Used by background
	// title generation.
	UpdateTitle(ctx context.Context, id, title string) error

	SaveMessage(ctx context.Context, msg *model.Message) error

	// History returns every message of a conversation in chronological
	// order.
	History(ctx context.Context, conversationID string) ([]model.Message, error)

	ListMessages(ctx context.Context, conversationID string, page, perPage int) ([]model.Message, int, error)
	CountMessages(ctx context.Context, conversationID string) (int, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
