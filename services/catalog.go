package services

import (
	"errors"
	"fmt"

	"gamification-system/models"
	"gamification-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CatalogService owns the admin CRUD surface for the reward catalogs: badges,
// achievements, levels and activities. The engine only ever reads these
// tables.
type CatalogService struct {
	DB  *gorm.DB
	Log *zap.SugaredLogger
}

func NewCatalogService(db *gorm.DB, log *zap.SugaredLogger) *CatalogService {
	return &CatalogService{DB: db, Log: log}
}

var validCriteriaTypes = map[string]bool{
	models.CriteriaExperience:   true,
	models.CriteriaBadges:       true,
	models.CriteriaActivities:   true,
	models.CriteriaAchievements: true,
	models.CriteriaRegistration: true,
	models.CriteriaCustom:       true,
}

var validRarities = map[string]bool{
	"common":    true,
	"rare":      true,
	"epic":      true,
	"legendary": true,
}

// --- Badges ---

func (s *CatalogService) CreateBadge(c *fiber.Ctx) error {
	var req struct {
		Name             string `json:"name"`
		Description      string `json:"description"`
		IconURL          string `json:"icon_url"`
		Rarity           string `json:"rarity"`
		CriteriaType     string `json:"criteria_type"`
		CriteriaValue    int64  `json:"criteria_value"`
		ExperienceReward int64  `json:"experience_reward"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Name is required"})
	}
	if !validCriteriaTypes[req.CriteriaType] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid criteria type"})
	}
	if req.Rarity == "" {
		req.Rarity = "common"
	}
	if !validRarities[req.Rarity] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid rarity"})
	}
	if req.CriteriaValue < 0 || req.ExperienceReward < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Values must not be negative"})
	}

	badge := &models.Badge{
		ID:               uuid.NewString(),
		Code:             slug.Make(req.Name),
		Name:             req.Name,
		Description:      req.Description,
		IconURL:          req.IconURL,
		Rarity:           req.Rarity,
		CriteriaType:     req.CriteriaType,
		CriteriaValue:    req.CriteriaValue,
		ExperienceReward: req.ExperienceReward,
		IsActive:         true,
	}
	if err := s.DB.Create(badge).Error; err != nil {
		s.Log.Errorw("badge create failed", "code", badge.Code, "error", err)
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Badge with this name already exists"})
	}
	return c.Status(fiber.StatusCreated).JSON(badge)
}

func (s *CatalogService) UpdateBadge(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid badge ID"})
	}

	var badge models.Badge
	if err := s.DB.First(&badge, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Badge not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var req struct {
		Name             *string `json:"name"`
		Description      *string `json:"description"`
		IconURL          *string `json:"icon_url"`
		Rarity           *string `json:"rarity"`
		CriteriaType     *string `json:"criteria_type"`
		CriteriaValue    *int64  `json:"criteria_value"`
		ExperienceReward *int64  `json:"experience_reward"`
		IsActive         *bool   `json:"is_active"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Name != nil {
		badge.Name = *req.Name
	}
	if req.Description != nil {
		badge.Description = *req.Description
	}
	if req.IconURL != nil {
		badge.IconURL = *req.IconURL
	}
	if req.Rarity != nil {
		if !validRarities[*req.Rarity] {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid rarity"})
		}
		badge.Rarity = *req.Rarity
	}
	if req.CriteriaType != nil {
		if !validCriteriaTypes[*req.CriteriaType] {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid criteria type"})
		}
		badge.CriteriaType = *req.CriteriaType
	}
	if req.CriteriaValue != nil {
		badge.CriteriaValue = *req.CriteriaValue
	}
	if req.ExperienceReward != nil {
		badge.ExperienceReward = *req.ExperienceReward
	}
	if req.IsActive != nil {
		badge.IsActive = *req.IsActive
	}

	if err := s.DB.Save(&badge).Error; err != nil {
		s.Log.Errorw("badge update failed", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update badge"})
	}
	return c.JSON(badge)
}

func (s *CatalogService) ListBadges(c *fiber.Ctx) error {
	var badges []models.Badge
	query := s.DB.Order("criteria_value ASC")
	if c.Query("active") == "true" {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&badges).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch badges"})
	}
	return c.JSON(badges)
}

// UploadBadgeIcon accepts a multipart image, stores it in R2 and writes the
// CDN URL back onto the badge.
func (s *CatalogService) UploadBadgeIcon(c *fiber.Ctx) error {
	id := c.Params("id")
	var badge models.Badge
	if err := s.DB.First(&badge, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Badge not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	fileHeader, err := c.FormFile("icon")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Icon file is required"})
	}

	key := fmt.Sprintf("badges/%s-%s", badge.Code, fileHeader.Filename)
	url, err := utils.UploadFileToR2(fileHeader, key)
	if err != nil {
		s.Log.Errorw("icon upload failed", "badge", badge.Code, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to upload icon"})
	}

	badge.IconURL = url
	if err := s.DB.Save(&badge).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save icon URL"})
	}
	return c.JSON(fiber.Map{"message": "Icon uploaded", "icon_url": url})
}

// --- Achievements ---

func (s *CatalogService) CreateAchievement(c *fiber.Ctx) error {
	var req struct {
		Name             string  `json:"name"`
		Description      string  `json:"description"`
		IconURL          string  `json:"icon_url"`
		CriteriaType     string  `json:"criteria_type"`
		CriteriaValue    int64   `json:"criteria_value"`
		ExperienceReward int64   `json:"experience_reward"`
		BadgeRewardID    *string `json:"badge_reward_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Name is required"})
	}
	if !validCriteriaTypes[req.CriteriaType] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid criteria type"})
	}
	if req.CriteriaValue < 0 || req.ExperienceReward < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Values must not be negative"})
	}
	if req.BadgeRewardID != nil {
		var count int64
		s.DB.Model(&models.Badge{}).Where("id = ?", *req.BadgeRewardID).Count(&count)
		if count == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Bound badge does not exist"})
		}
	}

	ach := &models.Achievement{
		ID:               uuid.NewString(),
		Code:             slug.Make(req.Name),
		Name:             req.Name,
		Description:      req.Description,
		IconURL:          req.IconURL,
		CriteriaType:     req.CriteriaType,
		CriteriaValue:    req.CriteriaValue,
		ExperienceReward: req.ExperienceReward,
		BadgeRewardID:    req.BadgeRewardID,
		IsActive:         true,
	}
	if err := s.DB.Create(ach).Error; err != nil {
		s.Log.Errorw("achievement create failed", "code", ach.Code, "error", err)
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Achievement with this name already exists"})
	}
	return c.Status(fiber.StatusCreated).JSON(ach)
}

func (s *CatalogService) UpdateAchievement(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid achievement ID"})
	}

	var ach models.Achievement
	if err := s.DB.First(&ach, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Achievement not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var req struct {
		Name             *string `json:"name"`
		Description      *string `json:"description"`
		IconURL          *string `json:"icon_url"`
		CriteriaType     *string `json:"criteria_type"`
		CriteriaValue    *int64  `json:"criteria_value"`
		ExperienceReward *int64  `json:"experience_reward"`
		BadgeRewardID    *string `json:"badge_reward_id"`
		IsActive         *bool   `json:"is_active"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Name != nil {
		ach.Name = *req.Name
	}
	if req.Description != nil {
		ach.Description = *req.Description
	}
	if req.IconURL != nil {
		ach.IconURL = *req.IconURL
	}
	if req.CriteriaType != nil {
		if !validCriteriaTypes[*req.CriteriaType] {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid criteria type"})
		}
		ach.CriteriaType = *req.CriteriaType
	}
	if req.CriteriaValue != nil {
		ach.CriteriaValue = *req.CriteriaValue
	}
	if req.ExperienceReward != nil {
		ach.ExperienceReward = *req.ExperienceReward
	}
	if req.BadgeRewardID != nil {
		ach.BadgeRewardID = req.BadgeRewardID
	}
	if req.IsActive != nil {
		ach.IsActive = *req.IsActive
	}

	if err := s.DB.Save(&ach).Error; err != nil {
		s.Log.Errorw("achievement update failed", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update achievement"})
	}
	return c.JSON(ach)
}

func (s *CatalogService) ListAchievements(c *fiber.Ctx) error {
	var achievements []models.Achievement
	query := s.DB.Order("criteria_value ASC")
	if c.Query("active") == "true" {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&achievements).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch achievements"})
	}
	return c.JSON(achievements)
}

// --- Levels ---

// UpsertLevel configures the badge binding for a level number. The XP
// threshold itself comes from the engine's canonical table; the stored value
// is derived, kept for display.
func (s *CatalogService) UpsertLevel(c *fiber.Ctx) error {
	var req struct {
		LevelNumber   int     `json:"level_number"`
		BadgeRewardID *string `json:"badge_reward_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.LevelNumber < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Level number must be positive"})
	}
	if req.BadgeRewardID != nil {
		var count int64
		s.DB.Model(&models.Badge{}).Where("id = ?", *req.BadgeRewardID).Count(&count)
		if count == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Bound badge does not exist"})
		}
	}

	var level models.Level
	err := s.DB.Where("level_number = ?", req.LevelNumber).First(&level).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		level = models.Level{
			ID:                 uuid.NewString(),
			LevelNumber:        req.LevelNumber,
			ExperienceRequired: LevelThreshold(req.LevelNumber),
			BadgeRewardID:      req.BadgeRewardID,
		}
		if err := s.DB.Create(&level).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create level"})
		}
		return c.Status(fiber.StatusCreated).JSON(level)
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	level.BadgeRewardID = req.BadgeRewardID
	if err := s.DB.Save(&level).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update level"})
	}
	return c.JSON(level)
}

func (s *CatalogService) ListLevels(c *fiber.Ctx) error {
	var levels []models.Level
	if err := s.DB.Order("level_number ASC").Find(&levels).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch levels"})
	}
	return c.JSON(levels)
}

// --- Activities ---

func (s *CatalogService) CreateActivity(c *fiber.Ctx) error {
	var req struct {
		Name             string `json:"name"`
		Description      string `json:"description"`
		ExperienceReward int64  `json:"experience_reward"`
		IsRepeatable     bool   `json:"is_repeatable"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Name is required"})
	}
	if req.ExperienceReward < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "XP reward must not be negative"})
	}

	activity := &models.Activity{
		ID:               uuid.NewString(),
		Name:             req.Name,
		Description:      req.Description,
		ExperienceReward: req.ExperienceReward,
		IsRepeatable:     req.IsRepeatable,
		IsActive:         true,
	}
	if err := s.DB.Create(activity).Error; err != nil {
		s.Log.Errorw("activity create failed", "name", req.Name, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create activity"})
	}
	return c.Status(fiber.StatusCreated).JSON(activity)
}

func (s *CatalogService) UpdateActivity(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid activity ID"})
	}

	var activity models.Activity
	if err := s.DB.First(&activity, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Activity not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var req struct {
		Name             *string `json:"name"`
		Description      *string `json:"description"`
		ExperienceReward *int64  `json:"experience_reward"`
		IsRepeatable     *bool   `json:"is_repeatable"`
		IsActive         *bool   `json:"is_active"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Name != nil {
		activity.Name = *req.Name
	}
	if req.Description != nil {
		activity.Description = *req.Description
	}
	if req.ExperienceReward != nil {
		activity.ExperienceReward = *req.ExperienceReward
	}
	if req.IsRepeatable != nil {
		activity.IsRepeatable = *req.IsRepeatable
	}
	if req.IsActive != nil {
		activity.IsActive = *req.IsActive
	}

	if err := s.DB.Save(&activity).Error; err != nil {
		s.Log.Errorw("activity update failed", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update activity"})
	}
	return c.JSON(activity)
}

func (s *CatalogService) ListActivities(c *fiber.Ctx) error {
	var activities []models.Activity
	query := s.DB.Order("created_at ASC")
	if c.Query("active") == "true" {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&activities).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch activities"})
	}
	return c.JSON(activities)
}
