package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/temasamo/tea-diagnosis/internal/llm"
	"github.com/temasamo/tea-diagnosis/internal/models"
	"github.com/temasamo/tea-diagnosis/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrRunActive means another sync run holds the run mutex. Embedding
	// calls cost real money, so overlapping runs are refused outright.
	ErrRunActive = errors.New("sync: a run is already active")
	// ErrRecentlySynced means the corpus was refreshed inside the freshness
	// window and the caller did not force an update.
	ErrRecentlySynced = errors.New("sync: recently refreshed")
)

// danglingRunAge is how old an unfinished run must be before a later run
// closes it out as failed.
const danglingRunAge = time.Hour

// SyncArticleStore is the content-store surface the sync job mutates.
type SyncArticleStore interface {
	GetUpdatedWithin(ctx context.Context, window time.Duration, maxRetries int) ([]*models.Article, error)
	SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float32, contentHash string) error
	IncrementRetry(ctx context.Context, id uuid.UUID) error
	CountAtRetryCap(ctx context.Context, maxRetries int) (int, error)
}

// SyncRunStore is the append-only run log.
type SyncRunStore interface {
	Create(ctx context.Context, kind models.ExecutionKind) (*models.EmbeddingRun, error)
	Complete(ctx context.Context, run *models.EmbeddingRun) error
	CloseDangling(ctx context.Context, olderThan time.Duration) (int, error)
	LatestCompleted(ctx context.Context) (*models.EmbeddingRun, error)
}

// ArticleEmbedder produces the vector and content hash for one article.
type ArticleEmbedder interface {
	EmbedArticle(ctx context.Context, article *models.Article) ([]float32, string, error)
	HashContent(content string) string
}

// SyncService runs the batch re-embedding job: collect candidates, skip
// unchanged content by hash, embed the rest one at a time, record the run.
type SyncService struct {
	articles SyncArticleStore
	runs     SyncRunStore
	embedder ArticleEmbedder
	limiter  *rate.Limiter
	cfg      *config.SyncConfig
	logger   *zap.Logger

	// mu serialises runs in this process; TryLock keeps a second trigger
	// from spending embedding budget on the same documents.
	mu sync.Mutex
}

func NewSyncService(articles SyncArticleStore, runs SyncRunStore, embedder ArticleEmbedder, cfg *config.SyncConfig, logger *zap.Logger) *SyncService {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	return &SyncService{
		articles: articles,
		runs:     runs,
		embedder: embedder,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		cfg:      cfg,
		logger:   logger,
	}
}

// RecentlySynced reports whether a run completed inside the freshness
// window, returning that run when it did.
func (s *SyncService) RecentlySynced(ctx context.Context) (*models.EmbeddingRun, bool) {
	latest, err := s.runs.LatestCompleted(ctx)
	if err != nil || latest.CompletedAt == nil {
		return nil, false
	}
	if time.Since(*latest.CompletedAt) < s.cfg.FreshnessWindow {
		return latest, true
	}
	return nil, false
}

// Run executes one sync pass and returns the completed run record. Unless
// force is set, a run that completed inside the freshness window short-
// circuits with ErrRecentlySynced.
func (s *SyncService) Run(ctx context.Context, kind models.ExecutionKind, force bool) (*models.EmbeddingRun, error) {
	if !s.mu.TryLock() {
		return nil, ErrRunActive
	}
	defer s.mu.Unlock()

	if !force {
		if latest, recent := s.RecentlySynced(ctx); recent {
			return latest, ErrRecentlySynced
		}
	}

	// A crashed run must not stay open forever.
	if _, err := s.runs.CloseDangling(ctx, danglingRunAge); err != nil {
		s.logger.Warn("Failed to close dangling runs", zap.Error(err))
	}

	candidates, err := s.articles.GetUpdatedWithin(ctx, s.cfg.FreshnessWindow, s.cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("collect candidates: %w", err)
	}

	// Documents parked at the retry cap never show up as candidates; make
	// that visible to operators instead of filtering them silently.
	if atCap, err := s.articles.CountAtRetryCap(ctx, s.cfg.MaxRetries); err == nil && atCap > 0 {
		s.logger.Warn("Documents at the retry cap excluded from this run",
			zap.Int("count", atCap))
	}

	run, err := s.runs.Create(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("create run record: %w", err)
	}

	// Re-embed only on genuine content drift or a missing vector; metadata
	// touches inside the window do not cost an embedding call.
	var pending []*models.Article
	for _, article := range candidates {
		if article.Embedding == nil || article.ContentHash != s.embedder.HashContent(article.Content) {
			pending = append(pending, article)
		}
	}

	run.TotalCandidates = len(pending)
	run.FailedArticleIDs = []uuid.UUID{}
	s.logger.Info("Sync run started",
		zap.String("run_id", run.ID.String()),
		zap.String("kind", string(kind)),
		zap.Int("window_candidates", len(candidates)),
		zap.Int("pending", len(pending)),
	)

	var firstErr string
	cancelled := false

	for _, article := range pending {
		// Cooperative cancellation between documents, never mid-call.
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		if err := s.limiter.Wait(ctx); err != nil {
			cancelled = true
			break
		}

		if err := s.embedOne(ctx, article); err != nil {
			run.ErrorCount++
			run.FailedArticleIDs = append(run.FailedArticleIDs, article.ID)
			if firstErr == "" {
				firstErr = err.Error()
			}

			// A 429 says the provider is busy, not that the document is bad;
			// only genuine failures consume retry budget.
			if errors.Is(err, llm.ErrRateLimited) {
				s.logger.Warn("Rate limited, document left for the next run",
					zap.String("article_id", article.ID.String()))
				continue
			}

			s.logger.Error("Embedding failed",
				zap.String("article_id", article.ID.String()),
				zap.Error(err))
			if retryErr := s.articles.IncrementRetry(ctx, article.ID); retryErr != nil {
				s.logger.Warn("Failed to bump retry counter", zap.Error(retryErr))
			}
			continue
		}

		run.SuccessCount++
	}

	if run.ErrorCount > 0 {
		summary := fmt.Sprintf("%d件の記事でエラーが発生しました。主なエラー: %s", run.ErrorCount, truncate(firstErr, 100))
		run.ErrorSummary = &summary
	}
	if cancelled {
		summary := "run cancelled; partial statistics recorded"
		if run.ErrorSummary != nil {
			summary = *run.ErrorSummary + "; " + summary
		}
		run.ErrorSummary = &summary
	}

	// Persist final (or partial, on cancellation) statistics. Use a fresh
	// context so a cancelled ctx does not lose the bookkeeping.
	completeCtx := ctx
	if cancelled {
		var cancel context.CancelFunc
		completeCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	if err := s.runs.Complete(completeCtx, run); err != nil {
		s.logger.Error("Failed to record run completion", zap.Error(err))
	}

	s.logger.Info("Sync run finished",
		zap.String("run_id", run.ID.String()),
		zap.Int("total", run.TotalCandidates),
		zap.Int("success", run.SuccessCount),
		zap.Int("errors", run.ErrorCount),
		zap.Bool("cancelled", cancelled),
	)

	if cancelled {
		return run, ctx.Err()
	}
	return run, nil
}

func (s *SyncService) embedOne(ctx context.Context, article *models.Article) error {
	vector, hash, err := s.embedder.EmbedArticle(ctx, article)
	if err != nil {
		return err
	}

	if err := s.articles.SetEmbedding(ctx, article.ID, vector, hash); err != nil {
		return fmt.Errorf("store embedding for %s: %w", article.ID, err)
	}
	return nil
}
