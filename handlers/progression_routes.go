package handlers

import (
	"errors"
	"strconv"

	"gamification-system/middleware"
	"gamification-system/models"
	"gamification-system/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// errorResponse maps the service error taxonomy onto HTTP statuses.
func errorResponse(c *fiber.Ctx, err error) error {
	var nf *services.NotFoundError
	if errors.As(err, &nf) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": nf.Error()})
	}
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ve.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

func SetupProgressionRoutes(app *fiber.App, progression *services.ProgressionService) {
	// Registration has no user context yet — the auth service calls it with
	// the gateway token only.
	app.Post("/users", func(c *fiber.Ctx) error {
		var req struct {
			Username string `json:"username"`
			Email    string `json:"email"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
		user, outcome, err := progression.RegisterUser(req.Username, req.Email)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"user":    user,
			"outcome": outcome,
		})
	})

	// 🔐 Secured routes — require the user context forwarded by the Gateway.
	securedGroup := app.Group("/s/user", middleware.UserContextMiddleware())

	// Generic trigger endpoint: the gateway fans auth/profile events into it.
	securedGroup.Post("/triggers", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			ActivityType string  `json:"activity_type"`
			ActivityID   *string `json:"activity_id"`
			XP           int64   `json:"xp"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
		outcome, err := progression.ApplyTrigger(userID, req.ActivityType, req.ActivityID, req.XP)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(outcome)
	})

	securedGroup.Post("/login", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		outcome, err := progression.ApplyTrigger(userID, models.ActivityLogin, nil, progression.XP.LoginXP)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(outcome)
	})

	securedGroup.Post("/profile/complete", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		outcome, err := progression.CompleteProfile(userID)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(outcome)
	})

	securedGroup.Post("/activities/:id/complete", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		outcome, err := progression.CompleteActivity(userID, c.Params("id"))
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(outcome)
	})

	securedGroup.Get("/progress", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var user models.User
		if err := progression.DB.Where("id = ?", userID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error fetching progress"})
		}

		nextThreshold := services.LevelThreshold(user.CurrentLevel + 1)
		return c.JSON(fiber.Map{
			"id":                 user.ID,
			"username":           user.Username,
			"xp":                 user.ExperiencePoints,
			"level":              user.CurrentLevel,
			"next_level_xp":      nextThreshold,
			"xp_to_next_level":   nextThreshold - user.ExperiencePoints,
			"total_badges":       user.TotalBadges,
			"total_achievements": user.TotalAchievements,
			"total_activities":   user.TotalActivities,
			"profile_completed":  user.ProfileCompleted,
			"last_level_up_at":   user.LastLevelUpAt,
		})
	})

	securedGroup.Get("/badges", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var owned []models.UserBadge
		err := progression.DB.
			Where("user_id = ?", userID).
			Order("awarded_at DESC").
			Find(&owned).Error
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to get badges"})
		}

		badgeIDs := make([]string, 0, len(owned))
		for _, ub := range owned {
			badgeIDs = append(badgeIDs, ub.BadgeID)
		}
		badgesByID := map[string]models.Badge{}
		if len(badgeIDs) > 0 {
			var badges []models.Badge
			if err := progression.DB.Where("id IN ?", badgeIDs).Find(&badges).Error; err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to get badges"})
			}
			for _, b := range badges {
				badgesByID[b.ID] = b
			}
		}

		response := []fiber.Map{}
		for _, ub := range owned {
			badge := badgesByID[ub.BadgeID]
			response = append(response, fiber.Map{
				"badge_id":    badge.ID,
				"code":        badge.Code,
				"name":        badge.Name,
				"description": badge.Description,
				"icon_url":    badge.IconURL,
				"rarity":      badge.Rarity,
				"awarded_at":  ub.AwardedAt,
				"awarded_by":  ub.AwardedBy,
			})
		}
		return c.JSON(response)
	})

	securedGroup.Get("/achievements", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var unlocked []models.UserAchievement
		err := progression.DB.
			Where("user_id = ?", userID).
			Order("unlocked_at DESC").
			Find(&unlocked).Error
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to get achievements"})
		}

		achIDs := make([]string, 0, len(unlocked))
		for _, ua := range unlocked {
			achIDs = append(achIDs, ua.AchievementID)
		}
		achByID := map[string]models.Achievement{}
		if len(achIDs) > 0 {
			var achievements []models.Achievement
			if err := progression.DB.Where("id IN ?", achIDs).Find(&achievements).Error; err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to get achievements"})
			}
			for _, a := range achievements {
				achByID[a.ID] = a
			}
		}

		response := []fiber.Map{}
		for _, ua := range unlocked {
			ach := achByID[ua.AchievementID]
			response = append(response, fiber.Map{
				"achievement_id": ach.ID,
				"code":           ach.Code,
				"name":           ach.Name,
				"description":    ach.Description,
				"icon_url":       ach.IconURL,
				"unlocked_at":    ua.UnlockedAt,
			})
		}
		return c.JSON(response)
	})

	securedGroup.Get("/experience/history", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		page, _ := strconv.Atoi(c.Query("page", "1"))
		size, _ := strconv.Atoi(c.Query("size", "20"))
		entries, total, err := progression.ExperienceHistory(userID, page, size)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(fiber.Map{
			"entries": entries,
			"total":   total,
			"page":    page,
			"size":    size,
		})
	})

	securedGroup.Get("/rewards/stream", progression.StreamUserEventsSSE)

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	adminGroup.Post("/badges/:badgeID/award", func(c *fiber.Ctx) error {
		var req struct {
			UserID string `json:"user_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
		awardedBy, _ := c.Locals("user_id").(string)
		outcome, err := progression.AwardBadge(req.UserID, c.Params("badgeID"), awardedBy)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(outcome)
	})
}
