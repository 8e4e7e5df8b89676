package llm

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline-ai/conversation-api/pkg/logger"
)

// fakeClient scripts provider behavior for failover tests.
type fakeClient struct {
	name      string
	generate  func(ctx context.Context, messages []ChatMessage, model string) (*Result, error)
	stream    func(ctx context.Context, messages []ChatMessage, model string) (Stream, error)
	lastModel string
}

func (c *fakeClient) Generate(ctx context.Context, messages []ChatMessage, model string) (*Result, error) {
	c.lastModel = model
	return c.generate(ctx, messages, model)
}

func (c *fakeClient) GenerateStream(ctx context.Context, messages []ChatMessage, model string) (Stream, error) {
	c.lastModel = model
	return c.stream(ctx, messages, model)
}

func (c *fakeClient) Name() string { return c.name }

// fakeStream replays a fixed chunk script through Recv.
type fakeStream struct {
	chunks []StreamChunk
	errAt  int
	err    error
	pos    int
	closed bool
}

func (s *fakeStream) Recv() (StreamChunk, error) {
	if s.err != nil && s.pos == s.errAt {
		return StreamChunk{}, s.err
	}
	if s.pos >= len(s.chunks) {
		return StreamChunk{}, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func succeeding(name, content string) *fakeClient {
	return &fakeClient{
		name: name,
		generate: func(_ context.Context, _ []ChatMessage, model string) (*Result, error) {
			return &Result{Content: content, FinishReason: "stop", Model: model, Provider: name}, nil
		},
		stream: func(_ context.Context, _ []ChatMessage, _ string) (Stream, error) {
			return &fakeStream{chunks: []StreamChunk{
				{Type: ChunkDelta, Content: content},
				{Type: ChunkFinish, FinishReason: "stop"},
			}}, nil
		},
	}
}

func failing(name string, err error) *fakeClient {
	return &fakeClient{
		name: name,
		generate: func(_ context.Context, _ []ChatMessage, _ string) (*Result, error) {
			return nil, err
		},
		stream: func(_ context.Context, _ []ChatMessage, _ string) (Stream, error) {
			return nil, err
		},
	}
}

func TestFailover_Generate(t *testing.T) {
	t.Parallel()

	t.Run("primary success skips secondary", func(t *testing.T) {
		t.Parallel()
		primary := succeeding("groq", "from primary")
		secondary := succeeding("anthropic", "from secondary")
		f := NewFailover(primary, secondary, "fallback-model", logger.NewNop())

		result, err := f.Generate(context.Background(), nil, "requested-model")
		require.NoError(t, err)
		assert.Equal(t, "from primary", result.Content)
		assert.Equal(t, "requested-model", primary.lastModel)
		assert.Empty(t, secondary.lastModel)
	})

	t.Run("primary error falls back with the fallback model", func(t *testing.T) {
		t.Parallel()
		primary := failing("groq", errors.New("rate limited"))
		secondary := succeeding("anthropic", "from secondary")
		f := NewFailover(primary, secondary, "fallback-model", logger.NewNop())

		result, err := f.Generate(context.Background(), nil, "requested-model")
		require.NoError(t, err)
		assert.Equal(t, "from secondary", result.Content)
		assert.Equal(t, "fallback-model", secondary.lastModel)
	})

	t.Run("both failing surfaces the secondary error", func(t *testing.T) {
		t.Parallel()
		secondaryErr := errors.New("secondary down")
		f := NewFailover(
			failing("groq", errors.New("primary down")),
			failing("anthropic", secondaryErr),
			"fallback-model", logger.NewNop(),
		)

		_, err := f.Generate(context.Background(), nil, "requested-model")
		assert.ErrorIs(t, err, secondaryErr)
	})
}

func TestFailover_GenerateStream(t *testing.T) {
	t.Parallel()

	t.Run("primary stream reports the requested model", func(t *testing.T) {
		t.Parallel()
		f := NewFailover(
			succeeding("groq", "hello"),
			succeeding("anthropic", "bye"),
			"fallback-model", logger.NewNop(),
		)

		stream, activeModel, err := f.GenerateStream(context.Background(), nil, "requested-model")
		require.NoError(t, err)
		defer stream.Close()
		assert.Equal(t, "requested-model", activeModel)
	})

	t.Run("establishment failure falls back", func(t *testing.T) {
		t.Parallel()
		secondary := succeeding("anthropic", "bye")
		f := NewFailover(
			failing("groq", errors.New("connect refused")),
			secondary,
			"fallback-model", logger.NewNop(),
		)

		stream, activeModel, err := f.GenerateStream(context.Background(), nil, "requested-model")
		require.NoError(t, err)
		defer stream.Close()
		assert.Equal(t, "fallback-model", activeModel)
		assert.Equal(t, "fallback-model", secondary.lastModel)

		chunk, err := stream.Recv()
		require.NoError(t, err)
		assert.Equal(t, "bye", chunk.Content)
	})

	t.Run("mid-stream error is not recovered", func(t *testing.T) {
		t.Parallel()
		streamErr := errors.New("connection reset")
		primary := &fakeClient{
			name: "groq",
			stream: func(_ context.Context, _ []ChatMessage, _ string) (Stream, error) {
				return &fakeStream{
					chunks: []StreamChunk{{Type: ChunkDelta, Content: "partial"}},
					errAt:  1,
					err:    streamErr,
				}, nil
			},
		}
		secondary := succeeding("anthropic", "bye")
		f := NewFailover(primary, secondary, "fallback-model", logger.NewNop())

		stream, _, err := f.GenerateStream(context.Background(), nil, "requested-model")
		require.NoError(t, err)
		defer stream.Close()

		chunk, err := stream.Recv()
		require.NoError(t, err)
		assert.Equal(t, "partial", chunk.Content)

		_, err = stream.Recv()
		assert.ErrorIs(t, err, streamErr)
		assert.Empty(t, secondary.lastModel)
	})
}
