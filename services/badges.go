package services

import (
	"gamification-system/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BadgeService struct {
	DB  *gorm.DB
	Log *zap.SugaredLogger
}

func NewBadgeService(db *gorm.DB, log *zap.SugaredLogger) *BadgeService {
	return &BadgeService{DB: db, Log: log}
}

// BadgeGrant is one newly awarded badge, returned for event emission.
type BadgeGrant struct {
	Badge     models.Badge     `json:"badge"`
	UserBadge models.UserBadge `json:"user_badge"`
}

// EvaluateAndAward checks every active badge against the user's current
// aggregates and grants the satisfied, not-yet-owned ones. Earlier grants in
// the same pass keep the in-flight aggregates current, so a badge gated on
// total_badges can be satisfied by a badge granted moments before.
func (s *BadgeService) EvaluateAndAward(tx *gorm.DB, user *models.User) ([]BadgeGrant, error) {
	var badges []models.Badge
	if err := tx.Where("is_active = ?", true).Order("criteria_value ASC").Find(&badges).Error; err != nil {
		return nil, &StorageError{Op: "badge catalog read", Err: err}
	}

	var grants []BadgeGrant
	for i := range badges {
		badge := &badges[i]
		if !badgeCriteriaMet(user, badge) {
			continue
		}
		granted, ub, err := grantBadge(tx, user, badge, nil, models.ActivityBadgeAward, nil)
		if err != nil {
			return nil, err
		}
		if granted {
			s.Log.Infow("badge awarded", "user_id", user.ID, "badge", badge.Code)
			grants = append(grants, BadgeGrant{Badge: *badge, UserBadge: *ub})
		}
	}
	return grants, nil
}

func badgeCriteriaMet(user *models.User, badge *models.Badge) bool {
	switch badge.CriteriaType {
	case models.CriteriaExperience:
		return user.ExperiencePoints >= badge.CriteriaValue
	case models.CriteriaBadges:
		return user.TotalBadges >= badge.CriteriaValue
	case models.CriteriaActivities:
		return user.TotalActivities >= badge.CriteriaValue
	default:
		// "achievements" and "custom" have no generic evaluation rule
		return false
	}
}

// grantBadge inserts the grant row, relying on the (user_id, badge_id) unique
// index for idempotency: a conflict means the badge is already owned
// (possibly granted by a concurrent trigger) and the grant is skipped without
// error. On success it bumps total_badges and pays the badge's XP reward
// through the ledger, keeping the in-memory aggregates current. refID, when
// set, overrides the ledger reference (e.g. the achievement or level that
// carried the badge).
func grantBadge(tx *gorm.DB, user *models.User, badge *models.Badge, awardedBy *string, logType string, refID *string) (bool, *models.UserBadge, error) {
	ub := models.UserBadge{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		BadgeID:   badge.ID,
		AwardedBy: awardedBy,
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ub)
	if res.Error != nil {
		return false, nil, &StorageError{Op: "badge grant", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return false, nil, nil // already owned
	}

	err := tx.Model(&models.User{}).Where("id = ?", user.ID).
		UpdateColumn("total_badges", gorm.Expr("total_badges + 1")).Error
	if err != nil {
		return false, nil, &StorageError{Op: "badge counter", Err: err}
	}
	user.TotalBadges++

	if refID == nil {
		refID = &badge.ID
	}
	if err := recordExperience(tx, user, logType, refID, badge.ExperienceReward, user.CurrentLevel, user.CurrentLevel); err != nil {
		return false, nil, err
	}
	return true, &ub, nil
}
