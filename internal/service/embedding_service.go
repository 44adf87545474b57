package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/temasamo/tea-diagnosis/internal/models"
	"github.com/temasamo/tea-diagnosis/pkg/config"

	"go.uber.org/zap"
)

// EmbeddingProvider is the provider boundary for vector generation.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type EmbeddingService struct {
	provider EmbeddingProvider
	cfg      *config.RAGConfig
	logger   *zap.Logger
}

func NewEmbeddingService(provider EmbeddingProvider, cfg *config.RAGConfig, logger *zap.Logger) *EmbeddingService {
	return &EmbeddingService{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
	}
}

// HashContent returns the SHA-256 hex digest used for change detection.
func (s *EmbeddingService) HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// EmbedText embeds free text, truncating over-long input instead of failing.
func (s *EmbeddingService) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("embed: empty input")
	}

	runes := []rune(text)
	if len(runes) > s.cfg.MaxInputChars {
		s.logger.Warn("Embedding input truncated",
			zap.Int("length", len(runes)),
			zap.Int("limit", s.cfg.MaxInputChars),
		)
		text = string(runes[:s.cfg.MaxInputChars])
	}

	return s.provider.Embed(ctx, text)
}

// EmbedArticle embeds title plus body and returns the vector together with
// the hash of the body it was computed from, so the caller can persist both
// atomically.
func (s *EmbeddingService) EmbedArticle(ctx context.Context, article *models.Article) ([]float32, string, error) {
	hash := s.HashContent(article.Content)

	input := article.Title + "\n\n" + article.Content
	vector, err := s.EmbedText(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("embed article %s: %w", article.ID, err)
	}

	return vector, hash, nil
}
