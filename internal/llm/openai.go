package llm

import (
	"context"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"
)

// GroqClient is the primary provider. Groq exposes an OpenAI-compatible
// API, so the client speaks the OpenAI chat-completion protocol against
// the Groq base URL.
type GroqClient struct {
	client *openai.Client
}

// NewGroqClient creates a new Groq client.
func NewGroqClient(apiKey, baseURL string) (*GroqClient, error) {
	if apiKey == "" {
		return nil, errors.New("Groq API key is required")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &GroqClient{client: openai.NewClientWithConfig(cfg)}, nil
}

// Name returns the provider name.
func (c *GroqClient) Name() string {
	return "groq"
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return out
}

// Generate sends a completion request and normalizes the response.
func (c *GroqClient) Generate(ctx context.Context, messages []ChatMessage, model string) (*Result, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	})
	if err != nil {
		return nil, err
	}

	var content string
	finishReason := "stop"
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		if resp.Choices[0].FinishReason != "" {
			finishReason = string(resp.Choices[0].FinishReason)
		}
	}

	return &Result{
		Content:      content,
		FinishReason: finishReason,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        model,
		Provider:     c.Name(),
	}, nil
}

// GenerateStream opens a streaming completion request.
func (c *GroqClient) GenerateStream(ctx context.Context, messages []ChatMessage, model string) (Stream, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}
	return &groqStream{inner: stream}, nil
}

// groqStream adapts the vendor stream to the canonical chunk sequence. The
// finish chunk is synthesized at EOF since the vendor stream carries no
// usage data.
type groqStream struct {
	inner        *openai.ChatCompletionStream
	finishReason string
	done         bool
}

func (s *groqStream) Recv() (StreamChunk, error) {
	if s.done {
		return StreamChunk{}, io.EOF
	}

	for {
		resp, err := s.inner.Recv()
		if errors.Is(err, io.EOF) {
			s.done = true
			finishReason := s.finishReason
			if finishReason == "" {
				finishReason = "stop"
			}
			return StreamChunk{Type: ChunkFinish, FinishReason: finishReason}, nil
		}
		if err != nil {
			return StreamChunk{}, err
		}

		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.FinishReason != "" {
			s.finishReason = string(choice.FinishReason)
		}
		if choice.Delta.Content != "" {
			return StreamChunk{Type: ChunkDelta, Content: choice.Delta.Content}, nil
		}
	}
}

func (s *groqStream) Close() error {
	s.inner.Close()
	return nil
}
