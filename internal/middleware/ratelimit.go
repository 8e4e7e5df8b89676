package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"github.com/threadline-ai/conversation-api/internal/ratelimit"
	"github.com/threadline-ai/conversation-api/pkg/metrics"
)

// RateLimit creates per-user sliding-window rate limiting middleware. The
// stricter generation-class limit applies only to the message-sending
// endpoints and is checked before the standard limit; unauthenticated
// requests bypass both (authentication has already rejected them or the
// route is public).
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := GetUserID(r.Context())
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			if isGenerationRequest(r) {
				if allowed, retryAfter := limiter.Allow(userID, ratelimit.ClassGeneration); !allowed {
					metrics.RateLimitRejections.WithLabelValues(string(ratelimit.ClassGeneration)).Inc()
					rejectRateLimited(w, retryAfter, "AI generation rate limit exceeded")
					return
				}
			}

			if allowed, retryAfter := limiter.Allow(userID, ratelimit.ClassStandard); !allowed {
				metrics.RateLimitRejections.WithLabelValues(string(ratelimit.ClassStandard)).Inc()
				rejectRateLimited(w, retryAfter, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isGenerationRequest matches POST /api/v1/conversations/{id}/messages and
// POST /api/v1/conversations/{id}/messages/stream.
func isGenerationRequest(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	parts := strings.Split(strings.TrimSuffix(r.URL.Path, "/"), "/")
	return len(parts) >= 6 && parts[1] == "api" && parts[2] == "v1" &&
		parts[3] == "conversations" && parts[5] == "messages"
}

func rejectRateLimited(w http.ResponseWriter, retryAfter int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	fmt.Fprintf(w, `{"status":"error","error":{"type":"rate_limit","message":%q}}`, message)
}

// EdgeRateLimit is a coarse per-IP guard in front of the API group. Its
// threshold sits far above the per-user limits so it only catches abusive
// clients, never ordinary traffic.
func EdgeRateLimit(requestLimit int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			rejectRateLimited(w, 60, "Rate limit exceeded")
		}),
	)
}
