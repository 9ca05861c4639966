package models

import (
	"time"

	"gorm.io/gorm"
)

// User owns one account's progression state (denormalized for performance).
// Profile fields beyond the progression columns are managed by the profile
// CRUD layer; the engine only ever mutates XP, level and the grant counters.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`

	ProfileCompleted bool `json:"profile_completed" gorm:"default:false"`

	// Core progression
	ExperiencePoints int64 `json:"experience_points" gorm:"default:0"`
	CurrentLevel     int   `json:"current_level" gorm:"default:1"`

	// Grant counters — kept equal to the grant-row counts in the same
	// transaction that writes the grant
	TotalBadges       int64 `json:"total_badges" gorm:"default:0"`
	TotalAchievements int64 `json:"total_achievements" gorm:"default:0"`
	TotalActivities   int64 `json:"total_activities" gorm:"default:0"`

	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
