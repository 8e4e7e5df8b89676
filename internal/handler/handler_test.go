package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/threadline-ai/conversation-api/internal/llm"
	"github.com/threadline-ai/conversation-api/internal/middleware"
	"github.com/threadline-ai/conversation-api/internal/service"
	"github.com/threadline-ai/conversation-api/internal/store"
	"github.com/threadline-ai/conversation-api/pkg/logger"
)

// stubClient answers every call with a canned reply.
type stubClient struct {
	name  string
	reply string
	err   error
}

func (c *stubClient) Generate(_ context.Context, _ []llm.ChatMessage, model string) (*llm.Result, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Result{
		Content:      c.reply,
		FinishReason: "stop",
		InputTokens:  5,
		OutputTokens: 3,
		Model:        model,
		Provider:     c.name,
	}, nil
}

func (c *stubClient) GenerateStream(_ context.Context, _ []llm.ChatMessage, _ string) (llm.Stream, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &stubStream{chunks: []llm.StreamChunk{
		{Type: llm.ChunkDelta, Content: c.reply},
		{Type: llm.ChunkFinish, FinishReason: "stop", OutputTokens: 3},
	}}, nil
}

func (c *stubClient) Name() string { return c.name }

type stubStream struct {
	chunks []llm.StreamChunk
	pos    int
}

func (s *stubStream) Recv() (llm.StreamChunk, error) {
	if s.pos >= len(s.chunks) {
		return llm.StreamChunk{}, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *stubStream) Close() error { return nil }

type testServer struct {
	router *chi.Mux
	store  *store.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st := store.NewMemoryStore()
	log := logger.NewNop()
	primary := &stubClient{name: "groq", reply: "assistant reply"}
	secondary := &stubClient{name: "anthropic", reply: "fallback reply"}
	failover := llm.NewFailover(primary, secondary, "claude-3-5-haiku-20241022", log)

	convSvc := service.NewConversationService(st, log)
	titles := service.NewTitleGenerator(primary, "llama-3.1-8b-instant", st, log)
	genSvc := service.NewGenerationService(st, failover, titles, "llama-3.1-8b-instant", 6000, log)

	convHandler := NewConversationHandler(convSvc, log)
	msgHandler := NewMessageHandler(genSvc, convSvc, log)
	streamHandler := NewStreamHandler(genSvc, convSvc, log)

	r := chi.NewRouter()
	r.Route("/api/v1/conversations", func(r chi.Router) {
		r.Post("/", convHandler.Create)
		r.Get("/", convHandler.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", convHandler.Get)
			r.Put("/", convHandler.Update)
			r.Delete("/", convHandler.Delete)
			r.Get("/messages", msgHandler.List)
			r.Post("/messages", msgHandler.Send)
			r.Post("/messages/stream", streamHandler.Stream)
		})
	})

	return &testServer{router: r, store: st}
}

func (s *testServer) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createConversation(t *testing.T, userID, body string) string {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/v1/conversations", userID, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, decodeBody(rec, &resp))
	require.NotEmpty(t, resp.Data.ID)
	return resp.Data.ID
}

func decodeBody(rec *httptest.ResponseRecorder, v any) error {
	return json.Unmarshal(rec.Body.Bytes(), v)
}
