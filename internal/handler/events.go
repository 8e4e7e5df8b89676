package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/threadline-ai/conversation-api/internal/middleware"
	"github.com/threadline-ai/conversation-api/internal/service"
	"github.com/threadline-ai/conversation-api/internal/sse"
	"github.com/threadline-ai/conversation-api/pkg/logger"
	"github.com/threadline-ai/conversation-api/pkg/metrics"
)

const eventsPollInterval = time.Second

// EventsHandler serves the notification stream for externally created
// messages. It is independent of generation: new messages are detected by
// polling the store count.
type EventsHandler struct {
	conversations *service.ConversationService
	logger        *logger.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(convSvc *service.ConversationService, log *logger.Logger) *EventsHandler {
	return &EventsHandler{conversations: convSvc, logger: log}
}

// Events handles GET /api/v1/conversations/:id/events
func (h *EventsHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	if _, err := h.conversations.Get(ctx, userID, conversationID); err != nil {
		writeServiceError(w, err)
		return
	}

	enc, err := sse.NewEncoder(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	_, lastCount, err := h.conversations.Messages(ctx, conversationID, 1, 1)
	if err != nil {
		h.logger.Error("failed to read message count", zap.Error(err))
		return
	}

	ticker := time.NewTicker(eventsPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		msgs, total, err := h.conversations.Messages(ctx, conversationID, 1, lastCount+200)
		if err != nil {
			h.logger.Warn("event poll failed", zap.Error(err))
			continue
		}
		if total <= lastCount {
			continue
		}

		for _, msg := range msgs[lastCount:] {
			if err := enc.Event("new_message", msg); err != nil {
				return
			}
		}
		lastCount = total
	}
}
