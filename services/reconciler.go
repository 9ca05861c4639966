package services

import (
	"time"

	"github.com/go-co-op/gocron/v2"
)

// counterDrift is one user whose denormalized aggregates disagree with the
// underlying ledger and grant tables.
type counterDrift struct {
	UserID            string `gorm:"column:user_id"`
	ExperiencePoints  int64
	CurrentLevel      int
	TotalBadges       int64
	TotalAchievements int64
	TotalActivities   int64
	LedgerXP          int64 `gorm:"column:ledger_xp"`
	BadgeCount        int64 `gorm:"column:badge_count"`
	AchievementCount  int64 `gorm:"column:achievement_count"`
	CompletionCount   int64 `gorm:"column:completion_count"`
}

// StartReconciler schedules the periodic invariant check. Every aggregate on
// the user row must be recomputable from the ledger and grant tables; any
// mismatch means a bug (or out-of-band write) and is logged loudly. The job
// only observes, it never repairs.
func (s *ProgressionService) StartReconciler(interval time.Duration) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.reconcileCounters),
	)
}

func (s *ProgressionService) reconcileCounters() {
	var drifts []counterDrift
	err := s.DB.Raw(`
		SELECT u.id AS user_id,
		       u.experience_points,
		       u.current_level,
		       u.total_badges,
		       u.total_achievements,
		       u.total_activities,
		       COALESCE((SELECT SUM(l.experience_change) FROM experience_logs l WHERE l.user_id = u.id), 0) AS ledger_xp,
		       COALESCE((SELECT COUNT(*) FROM user_badges b WHERE b.user_id = u.id), 0) AS badge_count,
		       COALESCE((SELECT COUNT(*) FROM user_achievements a WHERE a.user_id = u.id), 0) AS achievement_count,
		       COALESCE((SELECT SUM(ua.completions) FROM user_activities ua WHERE ua.user_id = u.id), 0) AS completion_count
		FROM users u
		WHERE u.deleted_at IS NULL
	`).Scan(&drifts).Error
	if err != nil {
		s.Log.Errorw("reconciler query failed", "error", err)
		return
	}

	clean := 0
	for _, d := range drifts {
		switch {
		case d.ExperiencePoints != d.LedgerXP:
			s.Log.Warnw("xp counter drift", "user_id", d.UserID, "counter", d.ExperiencePoints, "ledger", d.LedgerXP)
		case d.TotalBadges != d.BadgeCount:
			s.Log.Warnw("badge counter drift", "user_id", d.UserID, "counter", d.TotalBadges, "actual", d.BadgeCount)
		case d.TotalAchievements != d.AchievementCount:
			s.Log.Warnw("achievement counter drift", "user_id", d.UserID, "counter", d.TotalAchievements, "actual", d.AchievementCount)
		case d.TotalActivities != d.CompletionCount:
			s.Log.Warnw("activity counter drift", "user_id", d.UserID, "counter", d.TotalActivities, "actual", d.CompletionCount)
		case d.CurrentLevel != ResolveLevel(d.ExperiencePoints) && d.CurrentLevel < ResolveLevel(d.ExperiencePoints):
			// a level above the resolved one is fine (monotonic guarantee);
			// a level below it means a lost level-up
			s.Log.Warnw("level drift", "user_id", d.UserID, "level", d.CurrentLevel, "resolved", ResolveLevel(d.ExperiencePoints))
		default:
			clean++
		}
	}
	s.Log.Infow("counter reconciliation done", "users", len(drifts), "clean", clean)
}
