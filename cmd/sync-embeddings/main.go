package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/temasamo/tea-diagnosis/internal/llm"
	"github.com/temasamo/tea-diagnosis/internal/models"
	"github.com/temasamo/tea-diagnosis/internal/repository"
	"github.com/temasamo/tea-diagnosis/internal/service"
	"github.com/temasamo/tea-diagnosis/pkg/config"
	"github.com/temasamo/tea-diagnosis/pkg/logger"
	"github.com/temasamo/tea-diagnosis/pkg/postgres"

	"go.uber.org/zap"
)

// Batch entrypoint for the embedding refresh job. Run it from cron or CI;
// the job runs to completion and exits, it is not a daemon.
func main() {
	force := flag.Bool("force", false, "run even if the corpus was refreshed recently")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	// SIGINT/SIGTERM cancel between documents; partial stats still land.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	articleRepo := repository.NewArticleRepository(db, appLogger)
	runRepo := repository.NewEmbeddingRunRepository(db, appLogger)

	llmClient := llm.NewClient(&cfg.OpenAI, appLogger)
	embeddingService := service.NewEmbeddingService(llmClient, &cfg.RAG, appLogger)
	syncService := service.NewSyncService(articleRepo, runRepo, embeddingService, &cfg.Sync, appLogger)

	kind := models.ExecutionKindManual
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		kind = models.ExecutionKindScheduled
	}

	run, err := syncService.Run(ctx, kind, *force)
	switch {
	case errors.Is(err, service.ErrRecentlySynced):
		appLogger.Info("Corpus refreshed recently, nothing to do")
	case err != nil:
		appLogger.Error("Sync run failed", zap.Error(err))
		os.Exit(1)
	default:
		appLogger.Info("Sync run completed",
			zap.String("run_id", run.ID.String()),
			zap.Int("total", run.TotalCandidates),
			zap.Int("success", run.SuccessCount),
			zap.Int("errors", run.ErrorCount),
		)
	}
}
