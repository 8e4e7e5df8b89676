// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/threadline-ai/conversation-api/internal/config"
	"github.com/threadline-ai/conversation-api/internal/handler"
	"github.com/threadline-ai/conversation-api/internal/llm"
	"github.com/threadline-ai/conversation-api/internal/middleware"
	"github.com/threadline-ai/conversation-api/internal/ratelimit"
	"github.com/threadline-ai/conversation-api/internal/service"
	"github.com/threadline-ai/conversation-api/internal/store"
	"github.com/threadline-ai/conversation-api/pkg/logger"
	"github.com/threadline-ai/conversation-api/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "conversation-api", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect the message store
	natsStore, err := store.ConnectNATS(ctx, store.NATSConfig{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsStore.Close()

	// Construct both provider clients once and inject them; there is no
	// hidden provider registry.
	primary, err := llm.NewGroqClient(cfg.GroqAPIKey, cfg.GroqBaseURL)
	if err != nil {
		log.Error("failed to create Groq client", zap.Error(err))
		os.Exit(1)
	}
	secondary, err := llm.NewAnthropicClient(cfg.AnthropicAPIKey)
	if err != nil {
		log.Error("failed to create Anthropic client", zap.Error(err))
		os.Exit(1)
	}
	failover := llm.NewFailover(primary, secondary, cfg.FallbackModel, log)

	// Initialize services
	conversationSvc := service.NewConversationService(natsStore, log)
	titles := service.NewTitleGenerator(primary, cfg.DefaultModel, natsStore, log)
	generationSvc := service.NewGenerationService(natsStore, failover, titles, cfg.DefaultModel, cfg.TokenBudget, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsStore)
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	messageHandler := handler.NewMessageHandler(generationSvc, conversationSvc, log)
	streamHandler := handler.NewStreamHandler(generationSvc, conversationSvc, log)
	eventsHandler := handler.NewEventsHandler(conversationSvc, log)

	// The admission-control gate, owned here and passed by reference.
	// State is per process: multi-instance deployments would need an
	// externally shared counting store.
	limiter := ratelimit.New(cfg.RateLimitStandard, cfg.RateLimitAI)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth, no rate limiting)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication and admission control
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.EdgeRateLimit(cfg.EdgeRateLimit))
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(limiter))

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Put("/", conversationHandler.Update)
				r.Delete("/", conversationHandler.Delete)

				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)
				r.Post("/messages/stream", streamHandler.Stream)

				r.Get("/events", eventsHandler.Events)
			})
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
