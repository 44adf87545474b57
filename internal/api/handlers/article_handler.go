package handlers

import (
	"errors"

	"github.com/temasamo/tea-diagnosis/internal/dto"
	"github.com/temasamo/tea-diagnosis/internal/models"
	"github.com/temasamo/tea-diagnosis/internal/repository"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ArticleHandler struct {
	articles *repository.ArticleRepository
	runs     *repository.EmbeddingRunRepository
	logger   *zap.Logger
}

func NewArticleHandler(articles *repository.ArticleRepository, runs *repository.EmbeddingRunRepository, logger *zap.Logger) *ArticleHandler {
	return &ArticleHandler{
		articles: articles,
		runs:     runs,
		logger:   logger,
	}
}

func (h *ArticleHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	articles, err := h.articles.List(c.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list articles", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list articles",
		})
	}

	resp := make([]dto.ArticleResponse, 0, len(articles))
	for _, article := range articles {
		resp = append(resp, toArticleResponse(article))
	}
	return c.JSON(resp)
}

func (h *ArticleHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid article ID",
		})
	}

	article, err := h.articles.GetByID(c.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Article not found",
			})
		}
		h.logger.Error("Failed to get article", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get article",
		})
	}

	return c.JSON(dto.ArticleDetailResponse{
		ArticleResponse: toArticleResponse(article),
		Content:         article.Content,
	})
}

func (h *ArticleHandler) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid article ID",
		})
	}

	if err := h.articles.Delete(c.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Article not found",
			})
		}
		h.logger.Error("Failed to delete article", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete article",
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ArticleHandler) Stats(c *fiber.Ctx) error {
	total, embedded, err := h.articles.Stats(c.Context())
	if err != nil {
		h.logger.Error("Failed to load stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load stats",
		})
	}

	resp := dto.StatsResponse{
		ArticlesCount: total,
		EmbeddedCount: embedded,
	}
	if latest, err := h.runs.LatestCompleted(c.Context()); err == nil && latest.CompletedAt != nil {
		completed := latest.CompletedAt.Format("2006-01-02T15:04:05Z07:00")
		resp.LastSyncedAt = &completed
		resp.LastSyncErrors = latest.ErrorCount
	}

	return c.JSON(resp)
}

func toArticleResponse(article *models.Article) dto.ArticleResponse {
	return dto.ArticleResponse{
		ID:          article.ID.String(),
		Title:       article.Title,
		Category:    article.Category,
		Tags:        article.Tags,
		PublishDate: article.PublishDate,
		SourceTag:   article.SourceTag,
		Embedded:    article.Embedding != nil,
		UpdatedAt:   article.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
