package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/threadline-ai/conversation-api/internal/middleware"
	"github.com/threadline-ai/conversation-api/internal/model"
	"github.com/threadline-ai/conversation-api/internal/service"
	"github.com/threadline-ai/conversation-api/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	generation    *service.GenerationService
	conversations *service.ConversationService
	logger        *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(
	gen *service.GenerationService,
	convSvc *service.ConversationService,
	log *logger.Logger,
) *MessageHandler {
	return &MessageHandler{
		generation:    gen,
		conversations: convSvc,
		logger:        log,
	}
}

// List handles GET /api/v1/conversations/:id/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
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

	page, perPage := pagination(r, 50)

	msgs, total, err := h.conversations.Messages(ctx, conversationID, page, perPage)
	if err != nil {
		h.logger.Error("failed to list messages")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list messages")
		return
	}

	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, model.ListMessagesResponse{
		Status:  "success",
		Data:    msgs,
		Page:    page,
		PerPage: perPage,
		Total:   total,
	})
}

// Send handles POST /api/v1/conversations/:id/messages — the synchronous
// generation path.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
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

	assistantMsg, err := h.generation.Send(ctx, conv, &req)
	if err != nil {
		h.logger.Error("generation failed")
		writeError(w, http.StatusBadGateway, "internal_error", "generation failed")
		return
	}

	writeSuccess(w, http.StatusOK, assistantMsg)
}
