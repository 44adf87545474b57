package handlers

import (
	"errors"

	"github.com/temasamo/tea-diagnosis/internal/dto"
	"github.com/temasamo/tea-diagnosis/internal/models"
	"github.com/temasamo/tea-diagnosis/internal/repository"
	"github.com/temasamo/tea-diagnosis/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type SyncHandler struct {
	learn  *service.LearnService
	runs   *repository.EmbeddingRunRepository
	logger *zap.Logger
}

func NewSyncHandler(learn *service.LearnService, runs *repository.EmbeddingRunRepository, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		learn:  learn,
		runs:   runs,
		logger: logger,
	}
}

// Learn triggers article ingestion plus a manual embedding run.
func (h *SyncHandler) Learn(c *fiber.Ctx) error {
	var req dto.LearnRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	run, err := h.learn.Learn(c.Context(), req.ForceUpdate)
	switch {
	case errors.Is(err, service.ErrRecentlySynced):
		return c.JSON(dto.LearnResponse{
			Message:        "最近更新済みです",
			ProcessedCount: runTotal(run),
			SuccessCount:   runSuccess(run),
			ErrorCount:     runErrors(run),
		})
	case errors.Is(err, service.ErrRunActive):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "別の学習処理が実行中です",
		})
	case err != nil:
		h.logger.Error("Learn failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "記事の学習中にエラーが発生しました",
		})
	}

	resp := dto.LearnResponse{
		Message:        "記事の学習が完了しました",
		ProcessedCount: run.TotalCandidates,
		SuccessCount:   run.SuccessCount,
		ErrorCount:     run.ErrorCount,
	}
	for _, id := range run.FailedArticleIDs {
		resp.FailedArticleIDs = append(resp.FailedArticleIDs, id.String())
	}
	return c.JSON(resp)
}

// Runs lists recent embedding runs for the operator history view.
func (h *SyncHandler) Runs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)

	runs, err := h.runs.ListRecent(c.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list runs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list runs",
		})
	}

	resp := make([]dto.EmbeddingRunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toRunResponse(run))
	}
	return c.JSON(resp)
}

func toRunResponse(run *models.EmbeddingRun) dto.EmbeddingRunResponse {
	r := dto.EmbeddingRunResponse{
		ID:              run.ID.String(),
		ExecutionKind:   string(run.ExecutionKind),
		StartedAt:       run.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		TotalCandidates: run.TotalCandidates,
		SuccessCount:    run.SuccessCount,
		ErrorCount:      run.ErrorCount,
		ErrorSummary:    run.ErrorSummary,
	}
	if run.CompletedAt != nil {
		completed := run.CompletedAt.Format("2006-01-02T15:04:05Z07:00")
		r.CompletedAt = &completed
	}
	for _, id := range run.FailedArticleIDs {
		r.FailedArticleIDs = append(r.FailedArticleIDs, id.String())
	}
	return r
}

func runTotal(run *models.EmbeddingRun) int {
	if run == nil {
		return 0
	}
	return run.TotalCandidates
}

func runSuccess(run *models.EmbeddingRun) int {
	if run == nil {
		return 0
	}
	return run.SuccessCount
}

func runErrors(run *models.EmbeddingRun) int {
	if run == nil {
		return 0
	}
	return run.ErrorCount
}
