package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/threadline-ai/conversation-api/internal/llm"
	"github.com/threadline-ai/conversation-api/internal/model"
	"github.com/threadline-ai/conversation-api/internal/store"
	"github.com/threadline-ai/conversation-api/pkg/logger"
	"github.com/threadline-ai/conversation-api/pkg/metrics"
)

// StreamWriter receives the ordered generation lifecycle events of one
// streaming request. The sse package provides the wire implementation.
type StreamWriter interface {
	MessageStart(messageID, model string) error
	ContentBlockStart() error
	ContentBlockDelta(text string) error
	ContentBlockStop() error
	MessageDelta(stopReason string, outputTokens int) error
	MessageStop() error
	Error(errorType, message string) error
}

// GenerationService coordinates a generation request end to end: persist
// the user message, trigger auto-titling, build the context window, call
// the providers through failover, and persist the assistant message.
type GenerationService struct {
	store        store.Store
	failover     *llm.Failover
	titles       *TitleGenerator
	defaultModel string
	tokenBudget  int
	logger       *logger.Logger
}

// NewGenerationService creates a new generation service.
func NewGenerationService(
	st store.Store,
	failover *llm.Failover,
	titles *TitleGenerator,
	defaultModel string,
	tokenBudget int,
	log *logger.Logger,
) *GenerationService {
	return &GenerationService{
		store:        st,
		failover:     failover,
		titles:       titles,
		defaultModel: defaultModel,
		tokenBudget:  tokenBudget,
		logger:       log,
	}
}

func (s *GenerationService) resolveModel(conv *model.Conversation, req *model.SendMessageRequest) string {
	if req.Model != "" {
		return req.Model
	}
	if conv.Model != "" {
		return conv.Model
	}
	return s.defaultModel
}

func (s *GenerationService) saveUserMessage(ctx context.Context, conversationID, content string) (*model.Message, error) {
	tokenCount := llm.CountTokens(content)
	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Role:           model.RoleUser,
		Content:        content,
		TokenCount:     &tokenCount,
		CreatedAt:      time.Now(),
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()
	return msg, nil
}

// maybeGenerateTitle fires auto-titling iff the just-inserted user message
// is the conversation's very first message.
func (s *GenerationService) maybeGenerateTitle(ctx context.Context, conversationID, content string) {
	count, err := s.store.CountMessages(ctx, conversationID)
	if err != nil {
		s.logger.Warn("failed to count messages for auto-title",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return
	}
	if count == 1 {
		s.titles.GenerateAsync(conversationID, content)
	}
}

func (s *GenerationService) buildContext(ctx context.Context, conv *model.Conversation, thinking bool) ([]llm.ChatMessage, error) {
	history, err := s.store.History(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	chat := make([]llm.ChatMessage, len(history))
	for i, msg := range history {
		chat[i] = llm.ChatMessage{Role: string(msg.Role), Content: msg.Content}
	}

	systemPrompt := llm.BuildSystemPrompt(conv.SystemPrompt, thinking)
	return llm.BuildContext(chat, systemPrompt, s.tokenBudget), nil
}

// Send handles the non-streaming generation path and returns the persisted
// assistant message.
func (s *GenerationService) Send(ctx context.Context, conv *model.Conversation, req *model.SendMessageRequest) (*model.Message, error) {
	modelName := s.resolveModel(conv, req)

	if _, err := s.saveUserMessage(ctx, conv.ID, req.Content); err != nil {
		return nil, err
	}
	s.maybeGenerateTitle(ctx, conv.ID, req.Content)

	window, err := s.buildContext(ctx, conv, req.Thinking)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.failover.Generate(ctx, window, modelName)
	if err != nil {
		metrics.RecordGeneration("none", modelName, "error", time.Since(start).Seconds(), 0, 0)
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	latencyMs := time.Since(start).Milliseconds()

	assistant, err := s.saveAssistantMessage(ctx, conv.ID, result.Content, assistantMeta{
		Model:        result.Model,
		FinishReason: result.FinishReason,
		LatencyMs:    latencyMs,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordGeneration(result.Provider, result.Model, "success", time.Since(start).Seconds(), result.InputTokens, result.OutputTokens)
	return assistant, nil
}

type assistantMeta struct {
	Model        string
	FinishReason string
	LatencyMs    int64
	InputTokens  int
	OutputTokens int
}

func (s *GenerationService) saveAssistantMessage(ctx context.Context, conversationID, content string, meta assistantMeta) (*model.Message, error) {
	tokenCount := meta.OutputTokens
	if tokenCount == 0 {
		tokenCount = llm.CountTokens(content)
	}
	cost := llm.EstimateCost(meta.InputTokens, meta.OutputTokens, meta.Model)

	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
		Content:        content,
		TokenCount:     &tokenCount,
		Model:          &meta.Model,
		FinishReason:   &meta.FinishReason,
		LatencyMs:      &meta.LatencyMs,
		Metadata: map[string]any{
			"input_tokens":       meta.InputTokens,
			"estimated_cost_usd": cost,
		},
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}

	metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()
	metrics.EstimatedCostUSD.WithLabelValues(meta.Model).Add(cost)
	return msg, nil
}

// Stream handles the streaming generation path, writing the ordered event
// sequence to w.
//
// Caller disconnection is polled before each forwarded delta: once the
// caller is gone, no further provider output is forwarded, but the closing
// events are still synthesized and the content accumulated so far is
// persisted. A provider error mid-stream terminates the sequence with a
// single error event and persists nothing.
func (s *GenerationService) Stream(ctx context.Context, conv *model.Conversation, req *model.SendMessageRequest, w StreamWriter) {
	modelName := s.resolveModel(conv, req)

	if _, err := s.saveUserMessage(ctx, conv.ID, req.Content); err != nil {
		s.logger.Error("failed to save user message", zap.Error(err))
		_ = w.Error("internal_error", "failed to save message")
		return
	}
	s.maybeGenerateTitle(ctx, conv.ID, req.Content)

	window, err := s.buildContext(ctx, conv, req.Thinking)
	if err != nil {
		s.logger.Error("failed to build context", zap.Error(err))
		_ = w.Error("internal_error", "failed to build context")
		return
	}

	messageID := uuid.Must(uuid.NewV7()).String()
	start := time.Now()

	_ = w.MessageStart(messageID, modelName)
	_ = w.ContentBlockStart()

	stream, activeModel, err := s.failover.GenerateStream(ctx, window, modelName)
	if err != nil {
		s.logger.Error("stream could not be established", zap.Error(err))
		_ = w.Error("stream_error", err.Error())
		return
	}
	defer stream.Close()

	var content string
	outputTokens := 0
	inputTokens := 0
	finishReason := "stop"
	disconnected := false

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.logger.Error("error during streaming", zap.Error(err))
			_ = w.Error("stream_error", err.Error())
			return
		}

		switch chunk.Type {
		case llm.ChunkDelta:
			select {
			case <-ctx.Done():
				s.logger.Info("client disconnected during stream",
					zap.String("conversation_id", conv.ID))
				disconnected = true
			default:
			}
			if disconnected {
				break
			}
			content += chunk.Content
			if w.ContentBlockDelta(chunk.Content) != nil {
				disconnected = true
			}
		case llm.ChunkFinish:
			finishReason = chunk.FinishReason
			outputTokens = chunk.OutputTokens
			inputTokens = chunk.InputTokens
		}

		if disconnected {
			break
		}
	}

	_ = w.ContentBlockStop()
	_ = w.MessageDelta(finishReason, outputTokens)
	_ = w.MessageStop()

	latencyMs := time.Since(start).Milliseconds()
	if content == "" {
		return
	}

	if _, err := s.saveAssistantMessage(context.WithoutCancel(ctx), conv.ID, content, assistantMeta{
		Model:        activeModel,
		FinishReason: finishReason,
		LatencyMs:    latencyMs,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}); err != nil {
		s.logger.Error("failed to save assistant message", zap.Error(err))
		return
	}

	metrics.RecordGeneration(s.failover.Primary().Name(), activeModel, "success", time.Since(start).Seconds(), inputTokens, outputTokens)
}
