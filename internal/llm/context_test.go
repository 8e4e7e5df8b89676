package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildContext(t *testing.T) {
	t.Parallel()

	// Every history message below costs 5 tokens: 1 for four runes of
	// content plus the per-message overhead.
	history := []ChatMessage{
		{Role: "user", Content: "aaaa"},
		{Role: "assistant", Content: "bbbb"},
		{Role: "user", Content: "cccc"},
		{Role: "assistant", Content: "dddd"},
	}

	t.Run("empty history returns only the system prompt", func(t *testing.T) {
		t.Parallel()
		got := BuildContext(nil, "Be brief.", 6000)
		require.Len(t, got, 1)
		assert.Equal(t, ChatMessage{Role: "system", Content: "Be brief."}, got[0])
	})

	t.Run("everything fits within a large budget", func(t *testing.T) {
		t.Parallel()
		got := BuildContext(history, "sys", 6000)
		require.Len(t, got, 5)
		assert.Equal(t, "system", got[0].Role)
		assert.Equal(t, history, got[1:])
	})

	t.Run("middle messages are dropped first", func(t *testing.T) {
		t.Parallel()
		// System costs 5, leaving 15: first (5) plus the two most
		// recent (10) fit, the second message does not.
		got := BuildContext(history, "sys", 20)
		require.Len(t, got, 4)
		assert.Equal(t, "aaaa", got[1].Content)
		assert.Equal(t, "cccc", got[2].Content)
		assert.Equal(t, "dddd", got[3].Content)
	})

	t.Run("first message is anchored under a tight budget", func(t *testing.T) {
		t.Parallel()
		// Remaining budget of 11 holds the anchor plus one recent.
		got := BuildContext(history, "sys", 16)
		require.Len(t, got, 3)
		assert.Equal(t, "aaaa", got[1].Content)
		assert.Equal(t, "dddd", got[2].Content)
	})

	t.Run("oversized first message is dropped whole", func(t *testing.T) {
		t.Parallel()
		big := append([]ChatMessage{
			{Role: "user", Content: strings.Repeat("x", 80)},
		}, history[1:]...)
		got := BuildContext(big, "sys", 20)
		require.Len(t, got, 1)
		assert.Equal(t, "system", got[0].Role)
	})

	t.Run("messages are never truncated", func(t *testing.T) {
		t.Parallel()
		got := BuildContext(history, "sys", 6000)
		for _, msg := range got[1:] {
			assert.Len(t, msg.Content, 4)
		}
	})
}
