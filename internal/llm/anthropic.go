package llm

import (
	"context"
	"errors"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicMaxTokens is the max_tokens value sent to the Anthropic API,
// which requires one on every request.
const anthropicMaxTokens = 4096

// AnthropicClient is the secondary provider.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return "anthropic"
}

// newParams translates canonical messages into the Anthropic call
// convention. System messages become the top-level system parameter.
func (c *AnthropicClient) newParams(messages []ChatMessage, model string) anthropic.MessageNewParams {
	var system []anthropic.TextBlockParam
	converted := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		if msg.Role == "system" {
			system = append(system, anthropic.TextBlockParam{
				Type: anthropic.F(anthropic.TextBlockParamTypeText),
				Text: anthropic.F(msg.Content),
			})
			continue
		}
		converted = append(converted, anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(msg.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(msg.Content),
				},
			}),
		})
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.F(model),
		MaxTokens: anthropic.F(int64(anthropicMaxTokens)),
		Messages:  anthropic.F(converted),
	}
	if len(system) > 0 {
		params.System = anthropic.F(system)
	}
	return params
}

// Generate sends a completion request and normalizes the response.
func (c *AnthropicClient) Generate(ctx context.Context, messages []ChatMessage, model string) (*Result, error) {
	resp, err := c.client.Messages.New(ctx, c.newParams(messages, model))
	if err != nil {
		return nil, err
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}

	finishReason := string(resp.StopReason)
	if finishReason == "" {
		finishReason = "stop"
	}

	return &Result{
		Content:      content,
		FinishReason: finishReason,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		Model:        model,
		Provider:     c.Name(),
	}, nil
}

// GenerateStream opens a streaming completion request.
func (c *AnthropicClient) GenerateStream(ctx context.Context, messages []ChatMessage, model string) (Stream, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.newParams(messages, model))
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return &anthropicStream{inner: stream}, nil
}

type anthropicStream struct {
	inner interface {
		Next() bool
		Current() anthropic.MessageStreamEvent
		Err() error
	}
	finishReason string
	outputTokens int
	inputTokens  int
	done         bool
}

func (s *anthropicStream) Recv() (StreamChunk, error) {
	if s.done {
		return StreamChunk{}, io.EOF
	}

	for s.inner.Next() {
		event := s.inner.Current()

		switch event.Type {
		case anthropic.MessageStreamEventTypeMessageStart:
			s.inputTokens = int(event.Message.Usage.InputTokens)
		case anthropic.MessageStreamEventTypeContentBlockDelta:
			if delta, ok := event.Delta.(anthropic.ContentBlockDeltaEventDelta); ok && delta.Type == "text_delta" && delta.Text != "" {
				return StreamChunk{Type: ChunkDelta, Content: delta.Text}, nil
			}
		case anthropic.MessageStreamEventTypeMessageDelta:
			if delta, ok := event.Delta.(anthropic.MessageDeltaEventDelta); ok {
				s.finishReason = string(delta.StopReason)
			}
			s.outputTokens = int(event.Usage.OutputTokens)
		}
	}

	if err := s.inner.Err(); err != nil {
		return StreamChunk{}, err
	}

	s.done = true
	finishReason := s.finishReason
	if finishReason == "" {
		finishReason = "stop"
	}
	return StreamChunk{
		Type:         ChunkFinish,
		FinishReason: finishReason,
		InputTokens:  s.inputTokens,
		OutputTokens: s.outputTokens,
	}, nil
}

func (s *anthropicStream) Close() error {
	return nil
}
