package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/threadline-ai/conversation-api/internal/middleware"
	"github.com/threadline-ai/conversation-api/internal/model"
	"github.com/threadline-ai/conversation-api/internal/service"
	"github.com/threadline-ai/conversation-api/internal/sse"
	"github.com/threadline-ai/conversation-api/pkg/logger"
	"github.com/threadline-ai/conversation-api/pkg/metrics"
)

// StreamHandler handles the streaming generation endpoint.
type StreamHandler struct {
	generation    *service.GenerationService
	conversations *service.ConversationService
	logger        *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(
	gen *service.GenerationService,
	convSvc *service.ConversationService,
	log *logger.Logger,
) *StreamHandler {
	return &StreamHandler{
		generation:    gen,
		conversations: convSvc,
		logger:        log,
	}
}

// Stream handles POST /api/v1/conversations/:id/messages/stream. It
// accepts a message and streams the generation as the event protocol.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	conv, err := h.conversations.Get(ctx, userID, conversationID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	enc, err := sse.NewEncoder(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	h.generation.Stream(ctx, conv, &req, enc)
}
