package service

import (
	"context"
	"errors"
	"testing"

	"github.com/temasamo/tea-diagnosis/internal/models"
	"github.com/temasamo/tea-diagnosis/pkg/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubSearcher replays canned results per threshold and records the ladder
// walk.
type stubSearcher struct {
	results    map[float64][]models.ScoredArticle
	searchErr  error
	recent     []*models.Article
	recentErr  error
	thresholds []float64
}

func (s *stubSearcher) SearchSimilar(_ context.Context, _ []float32, threshold float64, _ int) ([]models.ScoredArticle, error) {
	s.thresholds = append(s.thresholds, threshold)
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.results[threshold], nil
}

func (s *stubSearcher) Recent(_ context.Context, n int) ([]*models.Article, error) {
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	if len(s.recent) > n {
		return s.recent[:n], nil
	}
	return s.recent, nil
}

func scored(title string, similarity float64) models.ScoredArticle {
	return models.ScoredArticle{
		Article:    &models.Article{ID: uuid.New(), Title: title},
		Similarity: similarity,
	}
}

func newTestSearchService(store ArticleSearcher) *SearchService {
	return NewSearchService(store, &config.RAGConfig{
		TopK:       5,
		Thresholds: []float64{0.75, 0.6, 0.5, 0.4},
	}, zap.NewNop())
}

func TestSearchStopsAtFirstMatchingThreshold(t *testing.T) {
	store := &stubSearcher{
		results: map[float64][]models.ScoredArticle{
			0.75: {scored("快眠特集", 0.81)},
		},
	}
	svc := newTestSearchService(store)

	results, err := svc.Search(context.Background(), []float32{0.1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []float64{0.75}, store.thresholds)
}

func TestSearchWalksLadderUntilMatch(t *testing.T) {
	store := &stubSearcher{
		results: map[float64][]models.ScoredArticle{
			0.5: {scored("ほうじ茶入門", 0.55), scored("緑茶の淹れ方", 0.52)},
		},
	}
	svc := newTestSearchService(store)

	results, err := svc.Search(context.Background(), []float32{0.1})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []float64{0.75, 0.6, 0.5}, store.thresholds)
}

func TestSearchEmptyAfterWholeLadderIsNotAnError(t *testing.T) {
	store := &stubSearcher{results: map[float64][]models.ScoredArticle{}}
	svc := newTestSearchService(store)

	results, err := svc.Search(context.Background(), []float32{0.1})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, []float64{0.75, 0.6, 0.5, 0.4}, store.thresholds)
}

func TestSearchFallsBackToRecentOnStoreError(t *testing.T) {
	store := &stubSearcher{
		searchErr: errors.New("operator does not exist"),
		recent: []*models.Article{
			{ID: uuid.New(), Title: "新着: 黒豆茶"},
			{ID: uuid.New(), Title: "新着: カモミール"},
		},
	}
	svc := newTestSearchService(store)

	results, err := svc.Search(context.Background(), []float32{0.1})
	require.NoError(t, err)
	require.Len(t, results, 2)
	// Fallback results carry no similarity score.
	assert.Zero(t, results[0].Similarity)
}

func TestSearchReturnsErrorWhenFallbackAlsoFails(t *testing.T) {
	store := &stubSearcher{
		searchErr: errors.New("connection refused"),
		recentErr: errors.New("connection refused"),
	}
	svc := newTestSearchService(store)

	_, err := svc.Search(context.Background(), []float32{0.1})
	require.Error(t, err)
}
