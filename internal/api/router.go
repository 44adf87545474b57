package api

import (
	"github.com/temasamo/tea-diagnosis/internal/api/handlers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

func SetupRouter(
	diagnosisHandler *handlers.DiagnosisHandler,
	articleHandler *handlers.ArticleHandler,
	syncHandler *handlers.SyncHandler,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))
	app.Use(logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Diagnosis flows consumed by the chat UI
	api.Get("/greeting", diagnosisHandler.Greeting)
	api.Post("/diagnose", diagnosisHandler.Diagnose)
	api.Post("/quick-diagnosis", diagnosisHandler.QuickDiagnose)

	// Admin/operator surface
	api.Post("/learn", syncHandler.Learn)
	api.Get("/embedding-runs", syncHandler.Runs)
	api.Get("/articles", articleHandler.List)
	api.Get("/articles/:id", articleHandler.Get)
	api.Delete("/articles/:id", articleHandler.Delete)
	api.Get("/stats", articleHandler.Stats)

	return app
}
