package service

import (
	"context"

	"github.com/temasamo/tea-diagnosis/internal/models"
	"github.com/temasamo/tea-diagnosis/pkg/config"

	"go.uber.org/zap"
)

// ArticleSearcher is the read side of the content store used at query time.
type ArticleSearcher interface {
	SearchSimilar(ctx context.Context, embedding []float32, threshold float64, topK int) ([]models.ScoredArticle, error)
	Recent(ctx context.Context, n int) ([]*models.Article, error)
}

type SearchService struct {
	store  ArticleSearcher
	cfg    *config.RAGConfig
	logger *zap.Logger
}

func NewSearchService(store ArticleSearcher, cfg *config.RAGConfig, logger *zap.Logger) *SearchService {
	return &SearchService{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// Search walks the threshold ladder until some matches appear. Similarity
// scores are not calibrated to a universal cutoff, so a strict threshold that
// yields nothing is retried at looser ones before giving up. An empty result
// after the whole ladder is a valid outcome, not an error.
func (s *SearchService) Search(ctx context.Context, embedding []float32) ([]models.ScoredArticle, error) {
	for _, threshold := range s.cfg.Thresholds {
		results, err := s.store.SearchSimilar(ctx, embedding, threshold, s.cfg.TopK)
		if err != nil {
			s.logger.Warn("Vector search failed, falling back to recent articles", zap.Error(err))
			return s.recentFallback(ctx)
		}
		if len(results) > 0 {
			s.logger.Info("Similarity search matched",
				zap.Float64("threshold", threshold),
				zap.Int("matches", len(results)),
			)
			return results, nil
		}
	}

	s.logger.Info("No articles cleared any threshold")
	return nil, nil
}

// recentFallback keeps the pipeline available when the vector operator
// itself is erroring: an unranked sample of the newest articles.
func (s *SearchService) recentFallback(ctx context.Context) ([]models.ScoredArticle, error) {
	articles, err := s.store.Recent(ctx, s.cfg.TopK)
	if err != nil {
		return nil, err
	}

	results := make([]models.ScoredArticle, 0, len(articles))
	for _, a := range articles {
		results = append(results, models.ScoredArticle{Article: a})
	}
	return results, nil
}
