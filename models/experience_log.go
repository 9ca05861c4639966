package models

import "time"

// Activity types recorded in the experience ledger.
const (
	ActivityRegistration      = "registration"
	ActivityLogin             = "login"
	ActivityCompletion        = "activity_completion"
	ActivityBadgeAward        = "badge_award"
	ActivityAchievementUnlock = "achievement_unlock"
	ActivityLevelUp           = "level_up"
	ActivityLevelBadgeAward   = "level_badge_award"
	ActivityProfileCompletion = "profile_completion"
)

// ExperienceLog is append-only: rows are never updated or deleted by the
// engine once written. A user's experience_points is the sum of their
// experience_change values by construction.
type ExperienceLog struct {
	ID               string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID           string    `gorm:"type:uuid;index;not null" json:"user_id"`
	ActivityType     string    `gorm:"type:varchar(32);not null" json:"activity_type"`
	ActivityID       *string   `gorm:"type:uuid" json:"activity_id,omitempty"` // badge/achievement/activity/level reference
	ExperienceChange int64     `json:"experience_change"`
	PreviousLevel    int       `json:"previous_level"`
	NewLevel         int       `json:"new_level"`
	CreatedAt        time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
