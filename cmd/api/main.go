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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/astroguide/tutoring-platform/internal/config"
	"github.com/astroguide/tutoring-platform/internal/directive"
	"github.com/astroguide/tutoring-platform/internal/handler"
	"github.com/astroguide/tutoring-platform/internal/llm"
	"github.com/astroguide/tutoring-platform/internal/memory"
	"github.com/astroguide/tutoring-platform/internal/middleware"
	"github.com/astroguide/tutoring-platform/internal/orchestrator"
	"github.com/astroguide/tutoring-platform/internal/policy"
	"github.com/astroguide/tutoring-platform/internal/rag"
	"github.com/astroguide/tutoring-platform/internal/service"
	"github.com/astroguide/tutoring-platform/internal/store"
	"github.com/astroguide/tutoring-platform/internal/usage"
	"github.com/astroguide/tutoring-platform/pkg/logger"
	"github.com/astroguide/tutoring-platform/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "tutoring-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Durable store over NATS JetStream KV
	st, err := store.ConnectNATS(ctx, store.NATSConfig{
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
	defer st.Close()

	// LLM client: Anthropic when configured, otherwise an OpenAI-compatible
	// endpoint (DeepSeek by default).
	var llmClient llm.Client
	if cfg.AnthropicAPIKey != "" {
		llmClient, err = llm.NewClient(llm.ProviderAnthropic, cfg.AnthropicAPIKey, "")
	} else {
		llmClient, err = llm.NewClient(llm.ProviderOpenAI, cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	}
	if err != nil {
		log.Error("failed to create LLM client", zap.Error(err))
		os.Exit(1)
	}

	// Retrieval collaborators
	wikipedia := rag.NewWikipediaClient(cfg.WikipediaMaxResults, cfg.WikipediaMaxCharsPerResult, log)
	var kb rag.KnowledgeBaseSearcher
	if cfg.RAGEnabled {
		weaviateKB, err := rag.NewWeaviateKB(cfg.WeaviateHost, cfg.WeaviateScheme, cfg.WeaviateClass, log)
		if err != nil {
			log.Warn("failed to create knowledge base client, retrieval disabled", zap.Error(err))
		} else {
			kb = weaviateKB
		}
	}
	cards := rag.NewCardService(st, llmClient, cfg.DefaultModel, cfg.CardGenerateOnMiss, log)

	// Answer pipeline
	gate := policy.NewRateGate(cfg.RateGateWindow, cfg.RateGateLimit)
	chatMemory := memory.NewChatMemory()
	primer := memory.NewPrimer(st, chatMemory, memory.NewPrimeTracker(), log)
	resolver := directive.NewResolver(wikipedia, kb, cards, log)
	estimator := usage.NewEstimator(cfg.CostPerMillionInput, cfg.CostPerMillionOutput)
	recorder := usage.NewRecorder(st, log)

	orch := orchestrator.New(st, llmClient, gate, chatMemory, primer, resolver, kb, estimator, recorder, orchestrator.Config{
		Model:      cfg.DefaultModel,
		RAGEnabled: cfg.RAGEnabled,
		RAGTopK:    cfg.RAGTopK,
	}, log)

	// Services
	conversationSvc := service.NewConversationService(st, log)
	messageSvc := service.NewMessageService(st, conversationSvc, log)

	// Handlers
	healthHandler := handler.NewHealthHandler(st)
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	messageHandler := handler.NewMessageHandler(messageSvc, log)
	streamHandler := handler.NewStreamHandler(orch, log)
	cardHandler := handler.NewCardHandler(cards, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ClientIdentity(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)

				r.Post("/messages", messageHandler.Submit)
				r.Get("/messages/{messageID}/stream", streamHandler.Stream)
			})
		})

		r.Get("/concept-cards", cardHandler.Get)
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
