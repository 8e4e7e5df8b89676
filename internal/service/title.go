package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/threadline-ai/conversation-api/internal/llm"
	"github.com/threadline-ai/conversation-api/internal/store"
	"github.com/threadline-ai/conversation-api/pkg/logger"
	"github.com/threadline-ai/conversation-api/pkg/metrics"
)

const (
	titleInputLimit  = 500
	titleLengthLimit = 500
	titleTimeout     = 30 * time.Second
)

// TitleGenerator derives a short conversation title from the first user
// message. It runs detached from the originating request: its completion,
// success, or failure is never observed by the caller. Failures are logged
// and swallowed.
type TitleGenerator struct {
	client llm.Client
	model  string
	store  store.Store
	logger *logger.Logger
}

// NewTitleGenerator creates a title generator using the given provider.
func NewTitleGenerator(client llm.Client, model string, st store.Store, log *logger.Logger) *TitleGenerator {
	return &TitleGenerator{
		client: client,
		model:  model,
		store:  st,
		logger: log,
	}
}

// GenerateAsync spawns title generation in the background and returns
// immediately.
func (g *TitleGenerator) GenerateAsync(conversationID, firstMessage string) {
	go g.generate(conversationID, firstMessage)
}

func (g *TitleGenerator) generate(conversationID, firstMessage string) {
	ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
	defer cancel()

	if len(firstMessage) > titleInputLimit {
		firstMessage = firstMessage[:titleInputLimit]
	}

	result, err := g.client.Generate(ctx, []llm.ChatMessage{
		{Role: "system", Content: llm.TitlePrompt},
		{Role: "user", Content: firstMessage},
	}, g.model)
	if err != nil {
		g.logger.Warn("title generation failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		metrics.TitleGenerationsTotal.WithLabelValues("error").Inc()
		return
	}

	title := strings.Trim(strings.TrimSpace(result.Content), `"`)
	if len(title) > titleLengthLimit {
		title = title[:titleLengthLimit]
	}
	if title == "" {
		metrics.TitleGenerationsTotal.WithLabelValues("empty").Inc()
		return
	}

	if err := g.store.UpdateTitle(ctx, conversationID, title); err != nil {
		g.logger.Warn("failed to store generated title",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		metrics.TitleGenerationsTotal.WithLabelValues("error").Inc()
		return
	}

	metrics.TitleGenerationsTotal.WithLabelValues("success").Inc()
}
