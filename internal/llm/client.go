// Package llm provides LLM provider clients, context building, and
// provider failover.
package llm

import (
	"context"
)

// ChatMessage represents a chat message in the canonical provider format.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result represents a normalized completion result.
type Result struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
	Provider     string
}

// ChunkType tags a streamed chunk.
type ChunkType string

const (
	// ChunkDelta carries a text fragment.
	ChunkDelta ChunkType = "delta"
	// ChunkFinish carries the finish reason and usage; it is the last
	// chunk of a successful stream.
	ChunkFinish ChunkType = "finish"
)

// StreamChunk is one unit of streamed provider output.
type StreamChunk struct {
	Type         ChunkType
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
}

// Stream is a pull-based sequence of chunks. Recv returns io.EOF after the
// finish chunk has been delivered. A Stream is not restartable.
type Stream interface {
	Recv() (StreamChunk, error)
	Close() error
}

// Client is the interface implemented by LLM providers.
type Client interface {
	// Generate sends a completion request and returns the normalized result.
	Generate(ctx context.Context, messages []ChatMessage, model string) (*Result, error)

	// GenerateStream opens a streaming completion request. An error here
	// means the stream could not be established; errors after that
	// surface through Recv.
	GenerateStream(ctx context.Context, messages []ChatMessage, model string) (Stream, error)

	// Name returns the provider name.
	Name() string
}
