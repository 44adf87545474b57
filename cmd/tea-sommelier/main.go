package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/temasamo/tea-diagnosis/internal/api"
	"github.com/temasamo/tea-diagnosis/internal/api/handlers"
	"github.com/temasamo/tea-diagnosis/internal/ingest"
	"github.com/temasamo/tea-diagnosis/internal/llm"
	"github.com/temasamo/tea-diagnosis/internal/repository"
	"github.com/temasamo/tea-diagnosis/internal/service"
	"github.com/temasamo/tea-diagnosis/pkg/config"
	"github.com/temasamo/tea-diagnosis/pkg/logger"
	"github.com/temasamo/tea-diagnosis/pkg/postgres"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting tea sommelier service")

	// Initialize database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	articleRepo := repository.NewArticleRepository(db, appLogger)
	runRepo := repository.NewEmbeddingRunRepository(db, appLogger)

	// Initialize provider client and services
	llmClient := llm.NewClient(&cfg.OpenAI, appLogger)

	embeddingService := service.NewEmbeddingService(llmClient, &cfg.RAG, appLogger)
	searchService := service.NewSearchService(articleRepo, &cfg.RAG, appLogger)
	recommendationService := service.NewRecommendationService(llmClient, &cfg.OpenAI, appLogger)
	diagnosisService := service.NewDiagnosisService(llmClient, embeddingService, searchService, recommendationService, &cfg.OpenAI, appLogger)
	syncService := service.NewSyncService(articleRepo, runRepo, embeddingService, &cfg.Sync, appLogger)

	fetcher := ingest.NewFetcher(os.Getenv("HEALTEA_BASE_URL"), appLogger)
	learnService := service.NewLearnService(fetcher, articleRepo, syncService, appLogger)

	// Initialize handlers
	diagnosisHandler := handlers.NewDiagnosisHandler(diagnosisService, appLogger)
	articleHandler := handlers.NewArticleHandler(articleRepo, runRepo, appLogger)
	syncHandler := handlers.NewSyncHandler(learnService, runRepo, appLogger)

	// Setup router
	app := api.SetupRouter(diagnosisHandler, articleHandler, syncHandler, appLogger)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
