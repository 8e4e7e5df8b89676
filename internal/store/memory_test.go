package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline-ai/conversation-api/internal/model"
)

func seedConversation(t *testing.T, s *MemoryStore, id, userID string) {
	t.Helper()
	require.NoError(t, s.CreateConversation(context.Background(), &model.Conversation{
		ID:        id,
		UserID:    userID,
		Title:     "New Conversation",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}))
}

func TestMemoryStore_Conversations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		s := NewMemoryStore()
		seedConversation(t, s, "c1", "alice")

		conv, err := s.GetConversation(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "alice", conv.UserID)
	})

	t.Run("missing conversation", func(t *testing.T) {
		t.Parallel()
		s := NewMemoryStore()
		_, err := s.GetConversation(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("soft delete hides from get and list", func(t *testing.T) {
		t.Parallel()
		s := NewMemoryStore()
		seedConversation(t, s, "c1", "alice")

		require.NoError(t, s.DeleteConversation(ctx, "c1"))
		_, err := s.GetConversation(ctx, "c1")
		assert.ErrorIs(t, err, ErrNotFound)

		convs, total, err := s.ListConversations(ctx, "alice", 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 0, total)
		assert.Empty(t, convs)
	})

	t.Run("list orders by most recently updated", func(t *testing.T) {
		t.Parallel()
		s := NewMemoryStore()
		for i := 0; i < 3; i++ {
			require.NoError(t, s.CreateConversation(ctx, &model.Conversation{
				ID:        fmt.Sprintf("c%d", i),
				UserID:    "alice",
				UpdatedAt: time.Now().Add(time.Duration(i) * time.Minute),
			}))
		}

		convs, total, err := s.ListConversations(ctx, "alice", 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, convs, 3)
		assert.Equal(t, "c2", convs[0].ID)
		assert.Equal(t, "c0", convs[2].ID)
	})

	t.Run("update title bumps updated at", func(t *testing.T) {
		t.Parallel()
		s := NewMemoryStore()
		seedConversation(t, s, "c1", "alice")

		before, err := s.GetConversation(ctx, "c1")
		require.NoError(t, err)

		require.NoError(t, s.UpdateTitle(ctx, "c1", "Renamed"))
		after, err := s.GetConversation(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", after.Title)
		assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))
	})
}

func TestMemoryStore_Messages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newMessage := func(convID, content string, role model.Role) *model.Message {
		return &model.Message{
			ID:             content,
			ConversationID: convID,
			Role:           role,
			Content:        content,
			CreatedAt:      time.Now(),
		}
	}

	t.Run("history preserves insertion order", func(t *testing.T) {
		t.Parallel()
		s := NewMemoryStore()
		seedConversation(t, s, "c1", "alice")

		require.NoError(t, s.SaveMessage(ctx, newMessage("c1", "first", model.RoleUser)))
		require.NoError(t, s.SaveMessage(ctx, newMessage("c1", "second", model.RoleAssistant)))

		history, err := s.History(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "first", history[0].Content)
		assert.Equal(t, "second", history[1].Content)
	})

	t.Run("count", func(t *testing.T) {
		t.Parallel()
		s := NewMemoryStore()
		seedConversation(t, s, "c1", "alice")

		count, err := s.CountMessages(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		require.NoError(t, s.SaveMessage(ctx, newMessage("c1", "first", model.RoleUser)))
		count, err = s.CountMessages(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("list pages", func(t *testing.T) {
		t.Parallel()
		s := NewMemoryStore()
		seedConversation(t, s, "c1", "alice")
		for i := 0; i < 5; i++ {
			require.NoError(t, s.SaveMessage(ctx, newMessage("c1", fmt.Sprintf("m%d", i), model.RoleUser)))
		}

		msgs, total, err := s.ListMessages(ctx, "c1", 2, 2)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, msgs, 2)
		assert.Equal(t, "m2", msgs[0].Content)

		msgs, _, err = s.ListMessages(ctx, "c1", 4, 2)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("saving a message touches the conversation", func(t *testing.T) {
		t.Parallel()
		s := NewMemoryStore()
		seedConversation(t, s, "c1", "alice")

		before, err := s.GetConversation(ctx, "c1")
		require.NoError(t, err)

		require.NoError(t, s.SaveMessage(ctx, newMessage("c1", "hello", model.RoleUser)))
		after, err := s.GetConversation(ctx, "c1")
		require.NoError(t, err)
		assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))
	})
}
