package services

import (
	"errors"

	"gamification-system/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AchievementService struct {
	DB  *gorm.DB
	Log *zap.SugaredLogger
}

func NewAchievementService(db *gorm.DB, log *zap.SugaredLogger) *AchievementService {
	return &AchievementService{DB: db, Log: log}
}

// AchievementUnlock is one newly unlocked achievement plus the badge its
// reward binding granted, if any.
type AchievementUnlock struct {
	Achievement     models.Achievement     `json:"achievement"`
	UserAchievement models.UserAchievement `json:"user_achievement"`
	BadgeGrant      *BadgeGrant            `json:"badge_grant,omitempty"`
}

// EvaluateAndUnlock checks every active achievement against the user's
// current aggregates and unlocks the satisfied, not-yet-unlocked ones. The
// (user_id, achievement_id) unique index resolves concurrent unlocks the same
// way badge grants do.
func (s *AchievementService) EvaluateAndUnlock(tx *gorm.DB, user *models.User) ([]AchievementUnlock, error) {
	var achievements []models.Achievement
	if err := tx.Where("is_active = ?", true).Order("criteria_value ASC").Find(&achievements).Error; err != nil {
		return nil, &StorageError{Op: "achievement catalog read", Err: err}
	}

	var unlocks []AchievementUnlock
	for i := range achievements {
		ach := &achievements[i]
		if !achievementCriteriaMet(user, ach) {
			continue
		}

		ua := models.UserAchievement{
			ID:            uuid.NewString(),
			UserID:        user.ID,
			AchievementID: ach.ID,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ua)
		if res.Error != nil {
			return nil, &StorageError{Op: "achievement unlock", Err: res.Error}
		}
		if res.RowsAffected == 0 {
			continue // already unlocked
		}

		err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			UpdateColumn("total_achievements", gorm.Expr("total_achievements + 1")).Error
		if err != nil {
			return nil, &StorageError{Op: "achievement counter", Err: err}
		}
		user.TotalAchievements++

		if err := recordExperience(tx, user, models.ActivityAchievementUnlock, &ach.ID, ach.ExperienceReward, user.CurrentLevel, user.CurrentLevel); err != nil {
			return nil, err
		}

		unlock := AchievementUnlock{Achievement: *ach, UserAchievement: ua}

		// Bound badge reward: a narrower grant path than the badge evaluator,
		// with its own already-owned check on the same unique index.
		if ach.BadgeRewardID != nil {
			var badge models.Badge
			if err := tx.Where("id = ?", *ach.BadgeRewardID).First(&badge).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, &NotFoundError{Resource: "badge", ID: *ach.BadgeRewardID}
				}
				return nil, &StorageError{Op: "badge reward lookup", Err: err}
			}
			granted, ub, err := grantBadge(tx, user, &badge, nil, models.ActivityBadgeAward, &ach.ID)
			if err != nil {
				return nil, err
			}
			if granted {
				unlock.BadgeGrant = &BadgeGrant{Badge: badge, UserBadge: *ub}
			}
		}

		s.Log.Infow("achievement unlocked", "user_id", user.ID, "achievement", ach.Code)
		unlocks = append(unlocks, unlock)
	}
	return unlocks, nil
}

func achievementCriteriaMet(user *models.User, ach *models.Achievement) bool {
	switch ach.CriteriaType {
	case models.CriteriaExperience:
		return user.ExperiencePoints >= ach.CriteriaValue
	case models.CriteriaBadges:
		return user.TotalBadges >= ach.CriteriaValue
	case models.CriteriaActivities:
		return user.TotalActivities >= ach.CriteriaValue
	case models.CriteriaRegistration:
		return true // onboarding achievements unlock on the first trigger
	default:
		return false
	}
}
