// Package service provides business logic for the conversation API.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/threadline-ai/conversation-api/internal/model"
	"github.com/threadline-ai/conversation-api/internal/store"
	"github.com/threadline-ai/conversation-api/pkg/logger"
)

var (
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("conversation not found")
	// ErrForbidden is returned when a conversation belongs to another user.
	ErrForbidden = errors.New("you do not have access to this conversation")
)

// ConversationService handles conversation CRUD with ownership checks.
type ConversationService struct {
	store  store.Store
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(st store.Store, log *logger.Logger) *ConversationService {
	return &ConversationService{store: st, logger: log}
}

// Create creates a new conversation owned by userID.
func (s *ConversationService) Create(ctx context.Context, userID string, req *model.CreateConversationRequest) (*model.Conversation, error) {
	now := time.Now()
	conv := &model.Conversation{
		ID:           uuid.Must(uuid.NewV7()).String(),
		UserID:       userID,
		Title:        req.Title,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// Get retrieves a conversation, verifying ownership.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrForbidden
	}
	return conv, nil
}

// List retrieves one page of a user's conversations.
func (s *ConversationService) List(ctx context.Context, userID string, page, perPage int) ([]model.Conversation, int, error) {
	return s.store.ListConversations(ctx, userID, page, perPage)
}

// Update applies the non-nil fields of req, verifying ownership first.
func (s *ConversationService) Update(ctx context.Context, userID, conversationID string, req *model.UpdateConversationRequest) (*model.Conversation, error) {
	if _, err := s.Get(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	conv, err := s.store.UpdateConversation(ctx, conversationID, req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return conv, nil
}

// Messages retrieves one page of a conversation's messages. Ownership
// must already have been verified.
func (s *ConversationService) Messages(ctx context.Context, conversationID string, page, perPage int) ([]model.Message, int, error) {
	return s.store.ListMessages(ctx, conversationID, page, perPage)
}

// Delete soft deletes a conversation, verifying ownership first.
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID string) error {
	if _, err := s.Get(ctx, userID, conversationID); err != nil {
		return err
	}

	if err := s.store.DeleteConversation(ctx, conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
