package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gamification-system/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TriggerXP defines the flat XP paid for each engine trigger (tunable via
// config/env later). Activity completions pay the catalog's reward instead.
type TriggerXP struct {
	RegistrationXP      int64
	LoginXP             int64
	ProfileCompletionXP int64
}

var DefaultTriggerXP = TriggerXP{
	RegistrationXP:      50,
	LoginXP:             5,
	ProfileCompletionXP: 25,
}

// Activity types accepted as external triggers. The remaining ledger types
// (badge_award, achievement_unlock, level_up, level_badge_award) are only
// ever written by the cascade itself.
var triggerTypes = map[string]bool{
	models.ActivityRegistration:      true,
	models.ActivityLogin:             true,
	models.ActivityCompletion:        true,
	models.ActivityProfileCompletion: true,
}

// ProgressionService is the reward cascade orchestrator: the single entry
// point routes call after registration, login, activity completion, manual
// badge award or profile completion. Each trigger runs in one database
// transaction; unique constraints on the grant tables are the only
// concurrency control, so triggers for different users never block each
// other.
type ProgressionService struct {
	DB           *gorm.DB
	Badges       *BadgeService
	Achievements *AchievementService
	Log          *zap.SugaredLogger
	XP           TriggerXP
}

func NewProgressionService(db *gorm.DB, badges *BadgeService, achievements *AchievementService, log *zap.SugaredLogger) *ProgressionService {
	return &ProgressionService{
		DB:           db,
		Badges:       badges,
		Achievements: achievements,
		Log:          log,
		XP:           DefaultTriggerXP,
	}
}

// RewardOutcome is the full result of one trigger: the final user snapshot
// plus everything the cascade granted, for the notification dispatcher.
type RewardOutcome struct {
	UserID               string               `json:"user_id"`
	NewXP                int64                `json:"new_xp"`
	NewLevel             int                  `json:"new_level"`
	LeveledUp            bool                 `json:"leveled_up"`
	AlreadyCompleted     bool                 `json:"already_completed"`
	GrantedBadges        []BadgeGrant         `json:"granted_badges"`
	UnlockedAchievements []AchievementUnlock  `json:"unlocked_achievements"`
	Events               []models.RewardEvent `json:"events"`
}

// ApplyTrigger runs the reward cascade for one external trigger. Activity
// completions and profile completions route through their dedicated dedup
// paths; for those, xpDelta is taken from the catalog/config, not the caller.
func (s *ProgressionService) ApplyTrigger(userID, activityType string, activityID *string, xpDelta int64) (*RewardOutcome, error) {
	if !triggerTypes[activityType] {
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown activity type %q", activityType)}
	}
	if xpDelta < 0 {
		return nil, &ValidationError{Reason: "xp delta must not be negative"}
	}

	switch activityType {
	case models.ActivityCompletion:
		if activityID == nil {
			return nil, &ValidationError{Reason: "activity id required for activity_completion"}
		}
		return s.CompleteActivity(userID, *activityID)
	case models.ActivityProfileCompletion:
		return s.CompleteProfile(userID)
	}

	var outcome *RewardOutcome
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := loadUser(tx, userID)
		if err != nil {
			return err
		}
		out, err := s.runCascade(tx, user, activityType, activityID, xpDelta)
		if err != nil {
			return err
		}
		outcome = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// RegisterUser creates the progression row for a new account and runs the
// registration trigger, all in one transaction.
func (s *ProgressionService) RegisterUser(username, email string) (*models.User, *RewardOutcome, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" {
		return nil, nil, &ValidationError{Reason: "username and email are required"}
	}

	var user *models.User
	var outcome *RewardOutcome
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		u := models.User{
			ID:           uuid.NewString(),
			Username:     username,
			Email:        email,
			CurrentLevel: 1,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&u)
		if res.Error != nil {
			return &StorageError{Op: "user create", Err: res.Error}
		}
		if res.RowsAffected == 0 {
			return &ValidationError{Reason: "username or email already registered"}
		}

		out, err := s.runCascade(tx, &u, models.ActivityRegistration, nil, s.XP.RegistrationXP)
		if err != nil {
			return err
		}
		user = &u
		outcome = out
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return user, outcome, nil
}

// CompleteActivity is the activity-completion trigger. Non-repeatable
// activities dedupe on the (user_id, activity_id) unique index: the second of
// two concurrent completions observes the existing row and gets the
// already-completed outcome instead of an error.
func (s *ProgressionService) CompleteActivity(userID, activityID string) (*RewardOutcome, error) {
	var outcome *RewardOutcome
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := loadUser(tx, userID)
		if err != nil {
			return err
		}

		var activity models.Activity
		if err := tx.Where("id = ? AND is_active = ?", activityID, true).First(&activity).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "activity", ID: activityID}
			}
			return &StorageError{Op: "activity read", Err: err}
		}

		completion := models.UserActivity{
			ID:         uuid.NewString(),
			UserID:     userID,
			ActivityID: activityID,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&completion)
		if res.Error != nil {
			return &StorageError{Op: "activity completion", Err: res.Error}
		}
		if res.RowsAffected == 0 {
			if !activity.IsRepeatable {
				outcome = alreadyCompletedOutcome(user)
				return nil
			}
			err := tx.Model(&models.UserActivity{}).
				Where("user_id = ? AND activity_id = ?", userID, activityID).
				UpdateColumn("completions", gorm.Expr("completions + 1")).Error
			if err != nil {
				return &StorageError{Op: "activity recount", Err: err}
			}
		}

		err = tx.Model(&models.User{}).Where("id = ?", userID).
			UpdateColumn("total_activities", gorm.Expr("total_activities + 1")).Error
		if err != nil {
			return &StorageError{Op: "activity counter", Err: err}
		}
		user.TotalActivities++

		out, err := s.runCascade(tx, user, models.ActivityCompletion, &activity.ID, activity.ExperienceReward)
		if err != nil {
			return err
		}
		outcome = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// CompleteProfile pays the one-time profile-completion XP. The guarded flag
// update makes a repeated call a no-op outcome, not an error.
func (s *ProgressionService) CompleteProfile(userID string) (*RewardOutcome, error) {
	var outcome *RewardOutcome
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := loadUser(tx, userID)
		if err != nil {
			return err
		}

		res := tx.Model(&models.User{}).
			Where("id = ? AND profile_completed = ?", userID, false).
			UpdateColumn("profile_completed", true)
		if res.Error != nil {
			return &StorageError{Op: "profile flag", Err: res.Error}
		}
		if res.RowsAffected == 0 {
			outcome = alreadyCompletedOutcome(user)
			return nil
		}
		user.ProfileCompleted = true

		out, err := s.runCascade(tx, user, models.ActivityProfileCompletion, nil, s.XP.ProfileCompletionXP)
		if err != nil {
			return err
		}
		outcome = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// AwardBadge is the manual badge-award trigger. Awarding a badge the user
// already owns is not an error: the outcome reports the unchanged snapshot.
func (s *ProgressionService) AwardBadge(userID, badgeID, awardedBy string) (*RewardOutcome, error) {
	var outcome *RewardOutcome
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := loadUser(tx, userID)
		if err != nil {
			return err
		}

		var badge models.Badge
		if err := tx.Where("id = ?", badgeID).First(&badge).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "badge", ID: badgeID}
			}
			return &StorageError{Op: "badge read", Err: err}
		}

		var by *string
		if awardedBy != "" {
			by = &awardedBy
		}
		prevLevel := user.CurrentLevel
		granted, ub, err := grantBadge(tx, user, &badge, by, models.ActivityBadgeAward, nil)
		if err != nil {
			return err
		}
		if !granted {
			outcome = alreadyCompletedOutcome(user)
			return nil
		}

		out := &RewardOutcome{
			UserID:        user.ID,
			GrantedBadges: []BadgeGrant{{Badge: badge, UserBadge: *ub}},
		}
		if err := s.settle(tx, user, out); err != nil {
			return err
		}
		out.NewXP = user.ExperiencePoints
		out.NewLevel = user.CurrentLevel
		if err := s.emitEvents(tx, user, out, models.ActivityBadgeAward, 0, prevLevel); err != nil {
			return err
		}
		outcome = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// runCascade applies the primary XP delta, settles the cascade to a fixed
// point and emits the outbox events, all on the caller's transaction.
func (s *ProgressionService) runCascade(tx *gorm.DB, user *models.User, activityType string, activityID *string, xpDelta int64) (*RewardOutcome, error) {
	outcome := &RewardOutcome{UserID: user.ID}
	prevLevel := user.CurrentLevel

	resolved := ResolveLevel(user.ExperiencePoints + xpDelta)
	if resolved < prevLevel {
		resolved = prevLevel // levels never regress
	}
	if err := recordExperience(tx, user, activityType, activityID, xpDelta, prevLevel, resolved); err != nil {
		return nil, err
	}

	if err := s.settle(tx, user, outcome); err != nil {
		return nil, err
	}

	outcome.NewXP = user.ExperiencePoints
	outcome.NewLevel = user.CurrentLevel
	if err := s.emitEvents(tx, user, outcome, activityType, xpDelta, prevLevel); err != nil {
		return nil, err
	}
	return outcome, nil
}

// Cap on cascade rounds. Reward XP grows far slower than the level
// thresholds, so the loop settles after one or two rounds on any sane
// catalog; the cap only guards a pathological one.
const maxCascadeRounds = 10

// settle iterates level resolution, badge evaluation and achievement
// evaluation until a round produces nothing new. XP paid out by level
// bonuses, badge rewards and achievement rewards can itself cross the next
// threshold or satisfy another criterion, so a single pass is not enough.
func (s *ProgressionService) settle(tx *gorm.DB, user *models.User, outcome *RewardOutcome) error {
	for round := 0; round < maxCascadeRounds; round++ {
		progressed := false

		leveled, err := s.applyLevelUp(tx, user, outcome)
		if err != nil {
			return err
		}
		progressed = progressed || leveled

		grants, err := s.Badges.EvaluateAndAward(tx, user)
		if err != nil {
			return err
		}
		if len(grants) > 0 {
			outcome.GrantedBadges = append(outcome.GrantedBadges, grants...)
			progressed = true
		}

		unlocks, err := s.Achievements.EvaluateAndUnlock(tx, user)
		if err != nil {
			return err
		}
		if len(unlocks) > 0 {
			for _, u := range unlocks {
				if u.BadgeGrant != nil {
					outcome.GrantedBadges = append(outcome.GrantedBadges, *u.BadgeGrant)
				}
			}
			outcome.UnlockedAchievements = append(outcome.UnlockedAchievements, unlocks...)
			progressed = true
		}

		if !progressed {
			return nil
		}
	}
	s.Log.Warnw("reward cascade hit round cap", "user_id", user.ID, "rounds", maxCascadeRounds)
	return nil
}

// applyLevelUp promotes the user if their XP has crossed a threshold, grants
// the reached level's bound badge if one is configured and not yet owned, and
// pays the flat level-up bonus through the ledger.
func (s *ProgressionService) applyLevelUp(tx *gorm.DB, user *models.User, outcome *RewardOutcome) (bool, error) {
	newLevel := ResolveLevel(user.ExperiencePoints)
	if newLevel <= user.CurrentLevel {
		return false, nil
	}
	prev := user.CurrentLevel
	now := time.Now()

	// Guarded update keeps the level monotonic even if a concurrent cascade
	// for the same user promoted it first. Zero rows affected means this
	// cascade lost the race: the winner already granted the level's badge and
	// bonus, so neither may be paid again.
	res := tx.Model(&models.User{}).
		Where("id = ? AND current_level < ?", user.ID, newLevel).
		Updates(map[string]interface{}{"current_level": newLevel, "last_level_up_at": now})
	if res.Error != nil {
		return false, &StorageError{Op: "level update", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		user.CurrentLevel = newLevel
		return false, nil
	}
	user.CurrentLevel = newLevel
	user.LastLevelUpAt = &now
	outcome.LeveledUp = true

	// Levels past the configured catalog simply have no bound badge.
	var level models.Level
	err := tx.Where("level_number = ?", newLevel).First(&level).Error
	switch {
	case err == nil && level.BadgeRewardID != nil:
		var badge models.Badge
		if err := tx.Where("id = ?", *level.BadgeRewardID).First(&badge).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return false, &NotFoundError{Resource: "badge", ID: *level.BadgeRewardID}
			}
			return false, &StorageError{Op: "level badge lookup", Err: err}
		}
		granted, ub, gerr := grantBadge(tx, user, &badge, nil, models.ActivityLevelBadgeAward, &level.ID)
		if gerr != nil {
			return false, gerr
		}
		if granted {
			outcome.GrantedBadges = append(outcome.GrantedBadges, BadgeGrant{Badge: badge, UserBadge: *ub})
		}
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return false, &StorageError{Op: "level lookup", Err: err}
	}

	if err := recordExperience(tx, user, models.ActivityLevelUp, nil, LevelUpBonus(newLevel), prev, newLevel); err != nil {
		return false, err
	}
	s.Log.Infow("level up", "user_id", user.ID, "level", newLevel, "previous", prev)
	return true, nil
}

// emitEvents persists one outbox row per user-facing reward event in the same
// transaction as the cascade, so an event exists iff its grant committed.
func (s *ProgressionService) emitEvents(tx *gorm.DB, user *models.User, outcome *RewardOutcome, trigger string, xpDelta int64, prevLevel int) error {
	var events []models.RewardEvent
	add := func(eventType string, body map[string]interface{}) {
		raw, _ := json.Marshal(body)
		events = append(events, models.RewardEvent{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			EventType: eventType,
			Payload:   string(raw),
		})
	}

	if xpDelta > 0 {
		add(models.EventXPGained, map[string]interface{}{
			"trigger":  trigger,
			"xp":       xpDelta,
			"total_xp": outcome.NewXP,
		})
	}
	if outcome.LeveledUp {
		add(models.EventLevelUp, map[string]interface{}{
			"level":          outcome.NewLevel,
			"previous_level": prevLevel,
			"bonus_xp":       LevelUpBonus(outcome.NewLevel),
		})
	}
	for _, g := range outcome.GrantedBadges {
		add(models.EventBadgeAwarded, map[string]interface{}{
			"badge_id":  g.Badge.ID,
			"code":      g.Badge.Code,
			"name":      g.Badge.Name,
			"rarity":    g.Badge.Rarity,
			"xp_reward": g.Badge.ExperienceReward,
		})
	}
	for _, u := range outcome.UnlockedAchievements {
		add(models.EventAchievementUnlocked, map[string]interface{}{
			"achievement_id": u.Achievement.ID,
			"code":           u.Achievement.Code,
			"name":           u.Achievement.Name,
			"xp_reward":      u.Achievement.ExperienceReward,
		})
	}
	if len(events) == 0 {
		return nil
	}
	if err := tx.Create(&events).Error; err != nil {
		return &StorageError{Op: "event outbox", Err: err}
	}
	outcome.Events = events
	return nil
}

func loadUser(tx *gorm.DB, userID string) (*models.User, error) {
	var user models.User
	if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "user", ID: userID}
		}
		return nil, &StorageError{Op: "user read", Err: err}
	}
	return &user, nil
}

func alreadyCompletedOutcome(user *models.User) *RewardOutcome {
	return &RewardOutcome{
		UserID:           user.ID,
		NewXP:            user.ExperiencePoints,
		NewLevel:         user.CurrentLevel,
		AlreadyCompleted: true,
	}
}
