package models

import "time"

// Activity is the catalog row owned by the Activities subsystem. The engine
// reads it for the XP amount and the repeatability rule.
type Activity struct {
	ID               string    `gorm:"primaryKey;type:uuid" json:"id"`
	Name             string    `gorm:"not null" json:"name"`
	Description      string    `json:"description"`
	ExperienceReward int64     `gorm:"default:0" json:"experience_reward"`
	IsRepeatable     bool      `json:"is_repeatable"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UserActivity records completions. The (user_id, activity_id) unique index
// makes non-repeatable completions race-safe; repeatable activities bump
// Completions on the existing row instead.
type UserActivity struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string    `gorm:"type:uuid;not null;uniqueIndex:ux_user_activity,priority:1" json:"user_id"`
	ActivityID  string    `gorm:"type:uuid;not null;uniqueIndex:ux_user_activity,priority:2" json:"activity_id"`
	Completions int64     `gorm:"default:1" json:"completions"`
	CompletedAt time.Time `gorm:"autoCreateTime" json:"completed_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
