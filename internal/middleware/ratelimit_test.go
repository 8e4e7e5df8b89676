package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline-ai/conversation-api/internal/ratelimit"
)

func doRequest(t *testing.T, handler http.Handler, method, path, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if userID != "" {
		req = req.WithContext(context.WithValue(req.Context(), UserIDKey, userID))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	const messagesPath = "/api/v1/conversations/0191e4a0-0000-7000-8000-000000000001/messages"

	t.Run("generation limit rejects the request over the cap", func(t *testing.T) {
		t.Parallel()
		limiter := ratelimit.New(100, 10)
		handler := RateLimit(limiter)(okHandler())

		for i := 0; i < 10; i++ {
			rec := doRequest(t, handler, http.MethodPost, messagesPath, "alice")
			require.Equal(t, http.StatusOK, rec.Code)
		}

		rec := doRequest(t, handler, http.MethodPost, messagesPath, "alice")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.JSONEq(t,
			`{"status":"error","error":{"type":"rate_limit","message":"AI generation rate limit exceeded"}}`,
			rec.Body.String())
	})

	t.Run("stream endpoint counts against the generation limit", func(t *testing.T) {
		t.Parallel()
		limiter := ratelimit.New(100, 1)
		handler := RateLimit(limiter)(okHandler())

		rec := doRequest(t, handler, http.MethodPost, messagesPath+"/stream", "alice")
		require.Equal(t, http.StatusOK, rec.Code)
		rec = doRequest(t, handler, http.MethodPost, messagesPath, "alice")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("reads do not consume the generation limit", func(t *testing.T) {
		t.Parallel()
		limiter := ratelimit.New(100, 1)
		handler := RateLimit(limiter)(okHandler())

		for i := 0; i < 5; i++ {
			rec := doRequest(t, handler, http.MethodGet, messagesPath, "alice")
			require.Equal(t, http.StatusOK, rec.Code)
		}
		rec := doRequest(t, handler, http.MethodPost, messagesPath, "alice")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("standard limit covers every authenticated request", func(t *testing.T) {
		t.Parallel()
		limiter := ratelimit.New(3, 10)
		handler := RateLimit(limiter)(okHandler())

		for i := 0; i < 3; i++ {
			rec := doRequest(t, handler, http.MethodGet, "/api/v1/conversations", "alice")
			require.Equal(t, http.StatusOK, rec.Code)
		}
		rec := doRequest(t, handler, http.MethodGet, "/api/v1/conversations", "alice")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.JSONEq(t,
			`{"status":"error","error":{"type":"rate_limit","message":"Rate limit exceeded"}}`,
			rec.Body.String())
	})

	t.Run("users do not share windows", func(t *testing.T) {
		t.Parallel()
		limiter := ratelimit.New(1, 1)
		handler := RateLimit(limiter)(okHandler())

		rec := doRequest(t, handler, http.MethodGet, "/api/v1/conversations", "alice")
		require.Equal(t, http.StatusOK, rec.Code)
		rec = doRequest(t, handler, http.MethodGet, "/api/v1/conversations", "bob")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unauthenticated requests pass through", func(t *testing.T) {
		t.Parallel()
		limiter := ratelimit.New(0, 0)
		handler := RateLimit(limiter)(okHandler())

		rec := doRequest(t, handler, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestIsGenerationRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		path   string
		want   bool
	}{
		{"send message", http.MethodPost, "/api/v1/conversations/abc/messages", true},
		{"stream message", http.MethodPost, "/api/v1/conversations/abc/messages/stream", true},
		{"trailing slash", http.MethodPost, "/api/v1/conversations/abc/messages/", true},
		{"list messages", http.MethodGet, "/api/v1/conversations/abc/messages", false},
		{"create conversation", http.MethodPost, "/api/v1/conversations", false},
		{"events feed", http.MethodGet, "/api/v1/conversations/abc/events", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(tt.method, tt.path, nil)
			assert.Equal(t, tt.want, isGenerationRequest(req))
		})
	}
}
