package models

import "time"

// Criteria types shared by the badge and achievement catalogs.
const (
	CriteriaExperience   = "experience"
	CriteriaBadges       = "badges"
	CriteriaActivities   = "activities"
	CriteriaAchievements = "achievements"
	CriteriaRegistration = "registration"
	CriteriaCustom       = "custom"
)

// Badge: static catalog config (admin-managed, read-only to the engine)
type Badge struct {
	ID               string    `gorm:"primaryKey;type:uuid" json:"id"`
	Code             string    `gorm:"uniqueIndex;not null" json:"code"` // e.g. "first-steps", "night-owl"
	Name             string    `gorm:"not null" json:"name"`
	Description      string    `json:"description"`
	IconURL          string    `gorm:"type:text" json:"icon_url"`
	Rarity           string    `gorm:"type:varchar(16);default:'common'" json:"rarity"` // common, rare, epic, legendary
	CriteriaType     string    `gorm:"type:varchar(32);not null" json:"criteria_type"`
	CriteriaValue    int64     `gorm:"default:0" json:"criteria_value"`
	ExperienceReward int64     `gorm:"default:0" json:"experience_reward"`
	// no default tag: gorm omits zero-value fields that carry one, which
	// would silently persist IsActive:false rows as active
	IsActive bool `json:"is_active"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UserBadge: awarded instance. The (user_id, badge_id) unique index is the
// sole source of truth for "already has badge" — concurrent grants are
// resolved on the index, never by a read-then-write check.
type UserBadge struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:ux_user_badge,priority:1" json:"user_id"`
	BadgeID   string    `gorm:"type:uuid;not null;uniqueIndex:ux_user_badge,priority:2" json:"badge_id"`
	AwardedAt time.Time `gorm:"autoCreateTime" json:"awarded_at"`
	AwardedBy *string   `gorm:"type:uuid" json:"awarded_by,omitempty"` // nil = system-granted
}
