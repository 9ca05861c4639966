package models

import "time"

// Level: admin-managed catalog row, read-only to the engine. A level may bind
// a badge that is granted the first time a user reaches it.
type Level struct {
	ID                 string    `gorm:"primaryKey;type:uuid" json:"id"`
	LevelNumber        int       `gorm:"uniqueIndex;not null" json:"level_number"`
	ExperienceRequired int64     `gorm:"not null;default:0" json:"experience_required"`
	BadgeRewardID      *string   `gorm:"type:uuid" json:"badge_reward_id,omitempty"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
