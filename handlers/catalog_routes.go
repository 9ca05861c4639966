package handlers

import (
	"gamification-system/middleware"
	"gamification-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupCatalogRoutes(app *fiber.App, catalog *services.CatalogService) {
	// Read-only catalog listing for any authenticated user.
	catalogGroup := app.Group("/s/catalog", middleware.UserContextMiddleware())
	catalogGroup.Get("/badges", catalog.ListBadges)
	catalogGroup.Get("/achievements", catalog.ListAchievements)
	catalogGroup.Get("/levels", catalog.ListLevels)
	catalogGroup.Get("/activities", catalog.ListActivities)

	// Admin-managed catalog configuration.
	adminGroup := app.Group("/s/admin/catalog", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	adminGroup.Post("/badges", catalog.CreateBadge)
	adminGroup.Patch("/badges/:id", catalog.UpdateBadge)
	adminGroup.Post("/badges/:id/icon", catalog.UploadBadgeIcon)

	adminGroup.Post("/achievements", catalog.CreateAchievement)
	adminGroup.Patch("/achievements/:id", catalog.UpdateAchievement)

	adminGroup.Put("/levels", catalog.UpsertLevel)

	adminGroup.Post("/activities", catalog.CreateActivity)
	adminGroup.Patch("/activities/:id", catalog.UpdateActivity)
}
