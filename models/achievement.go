package models

import "time"

// Achievement: static catalog config. An achievement may additionally bind a
// badge that is granted together with the unlock.
type Achievement struct {
	ID               string    `gorm:"primaryKey;type:uuid" json:"id"`
	Code             string    `gorm:"uniqueIndex;not null" json:"code"`
	Name             string    `gorm:"not null" json:"name"`
	Description      string    `json:"description"`
	IconURL          string    `gorm:"type:text" json:"icon_url"`
	CriteriaType     string    `gorm:"type:varchar(32);not null" json:"criteria_type"`
	CriteriaValue    int64     `gorm:"default:0" json:"criteria_value"`
	ExperienceReward int64     `gorm:"default:0" json:"experience_reward"`
	BadgeRewardID    *string   `gorm:"type:uuid" json:"badge_reward_id,omitempty"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UserAchievement: unlock record, one per (user, achievement).
type UserAchievement struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string    `gorm:"type:uuid;not null;uniqueIndex:ux_user_achievement,priority:1" json:"user_id"`
	AchievementID string    `gorm:"type:uuid;not null;uniqueIndex:ux_user_achievement,priority:2" json:"achievement_id"`
	UnlockedAt    time.Time `gorm:"autoCreateTime" json:"unlocked_at"`
}
