package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/explainrag/server/internal/api/handlers"
	"github.com/explainrag/server/internal/api/middleware"
	"github.com/explainrag/server/internal/atlas"
	"github.com/explainrag/server/internal/config"
	"github.com/explainrag/server/internal/embedding"
	"github.com/explainrag/server/internal/index"
	"github.com/explainrag/server/internal/llm"
	"github.com/explainrag/server/internal/observability"
	"github.com/explainrag/server/internal/reranker"
	"github.com/explainrag/server/internal/repository"
	"github.com/explainrag/server/internal/service"
	"github.com/explainrag/server/pkg/database"
)

const (
	queryEmbeddingCacheSize = 512
	maxRequestBodyBytes     = 4 << 20
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel)

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, database.WithVectorTypes())
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.OpenAIAPIKey == "" {
		slog.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}

	embeddingClient := embedding.NewOpenAIClient(cfg.OpenAIAPIKey,
		embedding.WithModel(cfg.EmbeddingModel),
		embedding.WithDimensions(cfg.EmbeddingDimensions),
		embedding.WithMaxRetries(cfg.LLMMaxRetries),
	)

	chatClient := llm.NewOpenAIChat(cfg.OpenAIAPIKey,
		llm.WithChatModel(cfg.GenerationModel),
		llm.WithMaxRetries(cfg.LLMMaxRetries),
		llm.WithTimeout(time.Duration(cfg.LLMTimeoutSec)*time.Second),
	)

	var rerankerClient reranker.Client
	if cfg.RerankerURL != "" {
		rerankerClient = reranker.NewHTTPClient(cfg.RerankerURL)
		slog.Info("Reranking enabled", "url", cfg.RerankerURL)
	} else {
		slog.Info("Reranking disabled (RERANKER_URL not set)")
	}

	papersRepo := repository.NewPapersRepository(db)
	queriesRepo := repository.NewQueriesRepository(db)
	atlasRepo := repository.NewAtlasRepository(db)

	queryCache, err := lru.New[string, []float32](queryEmbeddingCacheSize)
	if err != nil {
		slog.Error("Failed to create query embedding cache", "error", err)
		os.Exit(1)
	}

	embedLimiter := rate.NewLimiter(rate.Limit(cfg.EmbedRateLimit), 1)
	verifier := llm.NewVerifier(chatClient)

	queryService := service.NewQueryService(service.QueryServiceParams{
		EmbeddingClient: embeddingClient,
		Searcher:        index.NewPgVector(db),
		Reranker:        rerankerClient,
		Generator:       llm.NewGenerator(chatClient, cfg.ContextCharBudget),
		Verifier:        verifier,
		QueriesRepo:     queriesRepo,
		PapersRepo:      papersRepo,
		DefaultTopK:     cfg.DefaultTopK,
		QueryCache:      queryCache,
		EmbedLimiter:    embedLimiter,
	})

	ingestionService := service.NewIngestionService(service.IngestionServiceParams{
		PapersRepo:      papersRepo,
		EmbeddingClient: embeddingClient,
		EmbedLimiter:    embedLimiter,
		EmbeddingDims:   cfg.EmbeddingDimensions,
	})

	atlasService := service.NewAtlasService(service.AtlasServiceParams{
		PapersRepo: papersRepo,
		AtlasRepo:  atlasRepo,
		Projector:  atlas.NewProjector(cfg.AtlasSeed, cfg.AtlasIterations),
		Clusterer:  atlas.NewClusterer(cfg.AtlasEps, cfg.AtlasMinPoints),
	})

	evaluationService := service.NewEvaluationService(service.EvaluationServiceParams{
		QueriesRepo: queriesRepo,
		Judge:       llm.NewEvaluator(chatClient, embeddingClient),
		Verifier:    verifier,
	})

	queryHandler := handlers.NewQueryHandler(queryService)
	papersHandler := handlers.NewPapersHandler(ingestionService)
	atlasHandler := handlers.NewAtlasHandler(atlasService)
	evaluationHandler := handlers.NewEvaluationHandler(evaluationService)
	healthHandler := handlers.NewHealthHandler(db)

	publicMux := http.NewServeMux()
	publicMux.HandleFunc("GET /health", healthHandler.Health)

	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("POST /v1/query", queryHandler.Query)
	protectedMux.HandleFunc("GET /v1/queries", queryHandler.List)
	protectedMux.HandleFunc("GET /v1/queries/{id}", queryHandler.Get)
	protectedMux.HandleFunc("DELETE /v1/queries/{id}", queryHandler.Delete)
	protectedMux.HandleFunc("POST /v1/queries/{id}/evaluate", evaluationHandler.Evaluate)
	protectedMux.HandleFunc("GET /v1/queries/{id}/evaluation", evaluationHandler.Get)

	protectedMux.HandleFunc("POST /v1/papers", papersHandler.Ingest)
	protectedMux.HandleFunc("GET /v1/papers", papersHandler.List)
	protectedMux.HandleFunc("GET /v1/papers/{id}", papersHandler.Get)
	protectedMux.HandleFunc("DELETE /v1/papers/{id}", papersHandler.Delete)
	protectedMux.HandleFunc("GET /v1/stats", papersHandler.Stats)

	protectedMux.HandleFunc("POST /v1/atlas/recompute", atlasHandler.Recompute)
	protectedMux.HandleFunc("GET /v1/atlas", atlasHandler.Get)
	protectedMux.HandleFunc("GET /v1/atlas/points", atlasHandler.Points)
	protectedMux.HandleFunc("GET /v1/atlas/clusters", atlasHandler.Clusters)

	var protectedHandler http.Handler = protectedMux
	protectedHandler = middleware.MaxBody(maxRequestBodyBytes)(protectedHandler)
	protectedHandler = middleware.Auth(cfg.APIKey)(protectedHandler)

	mainMux := http.NewServeMux()
	mainMux.Handle("/v1/", protectedHandler)
	mainMux.Handle("/", publicMux)

	handler := middleware.RequestID(middleware.Logging(mainMux))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // pipeline calls block on remote models
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.Port)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}

// setupLogging configures slog with the specified log level and the
// request-id context handler.
func setupLogging(level string) {
	var logLevel slog.Level

	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	base := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(observability.NewRequestContextHandler(base)))
}
