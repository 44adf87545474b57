package service

import (
	"context"
	"fmt"

	"github.com/temasamo/tea-diagnosis/internal/models"

	"go.uber.org/zap"
)

// ArticleFetcher brings fresh articles in from an external source.
type ArticleFetcher interface {
	FetchArticles(ctx context.Context) ([]*models.Article, error)
}

// ArticleUpserter is the write side of the content store used by ingestion.
type ArticleUpserter interface {
	Upsert(ctx context.Context, article *models.Article) error
}

// LearnService wires ingestion to the sync job: fetch articles, upsert them,
// then run the embedding pass over whatever actually changed.
type LearnService struct {
	fetcher ArticleFetcher
	store   ArticleUpserter
	sync    *SyncService
	logger  *zap.Logger
}

func NewLearnService(fetcher ArticleFetcher, store ArticleUpserter, sync *SyncService, logger *zap.Logger) *LearnService {
	return &LearnService{
		fetcher: fetcher,
		store:   store,
		sync:    sync,
		logger:  logger,
	}
}

// Learn ingests the external articles and triggers a manual sync run.
// ErrRecentlySynced and ErrRunActive pass through for the handler to map.
func (s *LearnService) Learn(ctx context.Context, force bool) (*models.EmbeddingRun, error) {
	// Skip the whole fetch when the corpus was refreshed recently; crawling
	// and embedding both cost, and nothing meaningful changes inside a day.
	if !force {
		if latest, recent := s.sync.RecentlySynced(ctx); recent {
			return latest, ErrRecentlySynced
		}
	}

	articles, err := s.fetcher.FetchArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch articles: %w", err)
	}

	stored := 0
	for _, article := range articles {
		if err := s.store.Upsert(ctx, article); err != nil {
			s.logger.Warn("Failed to upsert article",
				zap.String("source_path", article.SourcePath),
				zap.Error(err))
			continue
		}
		stored++
	}
	s.logger.Info("Articles ingested", zap.Int("fetched", len(articles)), zap.Int("stored", stored))

	return s.sync.Run(ctx, models.ExecutionKindManual, force)
}
