package models

import "time"

// Reward event types handed to the notification dispatcher.
const (
	EventXPGained            = "xp_gained"
	EventLevelUp             = "level_up"
	EventBadgeAwarded        = "badge_awarded"
	EventAchievementUnlocked = "achievement_unlocked"
)

// RewardEvent is the durable outbox row for one user-facing reward event,
// written in the same transaction as the cascade that produced it, so an
// event exists iff its grant committed. The notification worker owns delivery
// and stamps DispatchedAt.
type RewardEvent struct {
	ID           string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID       string     `gorm:"type:uuid;index;not null" json:"user_id"`
	EventType    string     `gorm:"type:varchar(32);not null" json:"event_type"`
	Payload      string     `gorm:"type:jsonb" json:"payload"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	DispatchedAt *time.Time `gorm:"index" json:"dispatched_at,omitempty"`
}
