package services

import (
	"gamification-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// recordExperience appends one immutable ledger row and applies the XP delta
// to the user's aggregate in the same transaction. The delta is applied as an
// atomic SQL increment so concurrent cascades never lose an update; the
// in-memory user is kept in sync for the rest of the cascade.
func recordExperience(tx *gorm.DB, user *models.User, activityType string, activityID *string, delta int64, prevLevel, newLevel int) error {
	entry := models.ExperienceLog{
		ID:               uuid.NewString(),
		UserID:           user.ID,
		ActivityType:     activityType,
		ActivityID:       activityID,
		ExperienceChange: delta,
		PreviousLevel:    prevLevel,
		NewLevel:         newLevel,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return &StorageError{Op: "ledger append", Err: err}
	}
	if delta != 0 {
		err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			UpdateColumn("experience_points", gorm.Expr("experience_points + ?", delta)).Error
		if err != nil {
			return &StorageError{Op: "xp update", Err: err}
		}
		user.ExperiencePoints += delta
	}
	return nil
}

// ExperienceHistory returns a page of a user's ledger, newest first.
func (s *ProgressionService) ExperienceHistory(userID string, page, size int) ([]models.ExperienceLog, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	var total int64
	if err := s.DB.Model(&models.ExperienceLog{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, &StorageError{Op: "history count", Err: err}
	}

	var entries []models.ExperienceLog
	err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&entries).Error
	if err != nil {
		return nil, 0, &StorageError{Op: "history read", Err: err}
	}
	return entries, total, nil
}
