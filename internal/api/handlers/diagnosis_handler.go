package handlers

import (
	"errors"
	"time"

	"github.com/temasamo/tea-diagnosis/internal/dto"
	"github.com/temasamo/tea-diagnosis/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type DiagnosisHandler struct {
	diagnosis *service.DiagnosisService
	logger    *zap.Logger
}

func NewDiagnosisHandler(diagnosis *service.DiagnosisService, logger *zap.Logger) *DiagnosisHandler {
	return &DiagnosisHandler{
		diagnosis: diagnosis,
		logger:    logger,
	}
}

// Greeting returns the seasonal opener for a fresh guided session.
func (h *DiagnosisHandler) Greeting(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"greeting": service.SeasonalGreeting(time.Now()),
	})
}

// Diagnose handles one guided-conversation turn.
func (h *DiagnosisHandler) Diagnose(c *fiber.Ctx) error {
	var req dto.DiagnoseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	resp, err := h.diagnosis.Diagnose(c.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrEmptyInput) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "お悩みを1〜2行で教えてください。例：最近眠れないのでリラックスできるお茶が欲しい",
			})
		}
		h.logger.Error("Diagnose failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "診断中にエラーが発生しました",
		})
	}

	return c.JSON(resp)
}

// QuickDiagnose handles the answer-map flow.
func (h *DiagnosisHandler) QuickDiagnose(c *fiber.Ctx) error {
	var req dto.QuickDiagnosisRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	resp, err := h.diagnosis.QuickDiagnose(c.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrEmptyInput) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "回答が空です。質問に答えてから診断してください",
			})
		}
		h.logger.Error("Quick diagnosis failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "診断中にエラーが発生しました",
		})
	}

	return c.JSON(resp)
}
