package services

import (
	"testing"

	"gamification-system/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one shared :memory: connection
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.User{},
		&models.Level{},
		&models.Badge{},
		&models.UserBadge{},
		&models.Achievement{},
		&models.UserAchievement{},
		&models.Activity{},
		&models.UserActivity{},
		&models.ExperienceLog{},
		&models.RewardEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestEngine(t *testing.T) (*ProgressionService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	log := zap.NewNop().Sugar()
	badges := NewBadgeService(db, log)
	achievements := NewAchievementService(db, log)
	return NewProgressionService(db, badges, achievements, log), db
}

func seedUser(t *testing.T, db *gorm.DB, xp int64) *models.User {
	t.Helper()
	user := &models.User{
		ID:               uuid.NewString(),
		Username:         "player-" + uuid.NewString()[:8],
		Email:            uuid.NewString()[:8] + "@example.com",
		ExperiencePoints: xp,
		CurrentLevel:     ResolveLevel(xp),
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	// baseline XP enters through the ledger, like any real XP would
	if xp != 0 {
		entry := models.ExperienceLog{
			ID:               uuid.NewString(),
			UserID:           user.ID,
			ActivityType:     models.ActivityLogin,
			ExperienceChange: xp,
			PreviousLevel:    1,
			NewLevel:         user.CurrentLevel,
		}
		if err := db.Create(&entry).Error; err != nil {
			t.Fatalf("seed ledger: %v", err)
		}
	}
	return user
}

func seedActivity(t *testing.T, db *gorm.DB, xp int64, repeatable bool) *models.Activity {
	t.Helper()
	activity := &models.Activity{
		ID:               uuid.NewString(),
		Name:             "Daily Quiz",
		ExperienceReward: xp,
		IsRepeatable:     repeatable,
		IsActive:         true,
	}
	if err := db.Create(activity).Error; err != nil {
		t.Fatalf("seed activity: %v", err)
	}
	return activity
}

// assertConsistent verifies the ledger-sum and counter invariants the
// reconciler watches in production.
func assertConsistent(t *testing.T, db *gorm.DB, userID string) {
	t.Helper()
	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}

	var ledgerSum int64
	db.Model(&models.ExperienceLog{}).Where("user_id = ?", userID).
		Select("COALESCE(SUM(experience_change), 0)").Scan(&ledgerSum)
	if ledgerSum != user.ExperiencePoints {
		t.Errorf("ledger sum %d != experience_points %d", ledgerSum, user.ExperiencePoints)
	}

	var badgeCount int64
	db.Model(&models.UserBadge{}).Where("user_id = ?", userID).Count(&badgeCount)
	if badgeCount != user.TotalBadges {
		t.Errorf("badge rows %d != total_badges %d", badgeCount, user.TotalBadges)
	}

	var achievementCount int64
	db.Model(&models.UserAchievement{}).Where("user_id = ?", userID).Count(&achievementCount)
	if achievementCount != user.TotalAchievements {
		t.Errorf("achievement rows %d != total_achievements %d", achievementCount, user.TotalAchievements)
	}

	if resolved := ResolveLevel(user.ExperiencePoints); user.CurrentLevel < resolved {
		t.Errorf("current_level %d below resolved level %d", user.CurrentLevel, resolved)
	}
}

func TestRegisterUserRunsRegistrationCascade(t *testing.T) {
	engine, db := newTestEngine(t)

	onboarding := &models.Achievement{
		ID:               uuid.NewString(),
		Code:             "welcome-aboard",
		Name:             "Welcome Aboard",
		CriteriaType:     models.CriteriaRegistration,
		ExperienceReward: 25,
		IsActive:         true,
	}
	if err := db.Create(onboarding).Error; err != nil {
		t.Fatalf("seed achievement: %v", err)
	}

	user, outcome, err := engine.RegisterUser("newplayer", "new@example.com")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}

	if outcome.NewXP != engine.XP.RegistrationXP+25 {
		t.Errorf("NewXP = %d, want %d", outcome.NewXP, engine.XP.RegistrationXP+25)
	}
	if len(outcome.UnlockedAchievements) != 1 {
		t.Fatalf("unlocked %d achievements, want 1", len(outcome.UnlockedAchievements))
	}
	if outcome.UnlockedAchievements[0].Achievement.Code != "welcome-aboard" {
		t.Errorf("unexpected achievement %q", outcome.UnlockedAchievements[0].Achievement.Code)
	}
	assertConsistent(t, db, user.ID)

	// Registration and the achievement reward both hit the ledger.
	var logs []models.ExperienceLog
	db.Where("user_id = ?", user.ID).Order("created_at ASC").Find(&logs)
	if len(logs) != 2 {
		t.Fatalf("ledger rows = %d, want 2", len(logs))
	}
	if logs[0].ActivityType != models.ActivityRegistration {
		t.Errorf("first ledger row type = %q", logs[0].ActivityType)
	}
	if logs[1].ActivityType != models.ActivityAchievementUnlock {
		t.Errorf("second ledger row type = %q", logs[1].ActivityType)
	}
}

func TestRegisterUserDuplicate(t *testing.T) {
	engine, _ := newTestEngine(t)

	if _, _, err := engine.RegisterUser("dupe", "dupe@example.com"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, _, err := engine.RegisterUser("dupe", "dupe@example.com")
	if !IsValidation(err) {
		t.Fatalf("duplicate register error = %v, want ValidationError", err)
	}
}

func TestApplyTriggerRejectsBadInput(t *testing.T) {
	engine, db := newTestEngine(t)
	user := seedUser(t, db, 0)

	if _, err := engine.ApplyTrigger(user.ID, "speedrun", nil, 10); !IsValidation(err) {
		t.Errorf("unknown trigger error = %v, want ValidationError", err)
	}
	if _, err := engine.ApplyTrigger(user.ID, models.ActivityLogin, nil, -1); !IsValidation(err) {
		t.Errorf("negative delta error = %v, want ValidationError", err)
	}
	if _, err := engine.ApplyTrigger(uuid.NewString(), models.ActivityLogin, nil, 5); !IsNotFound(err) {
		t.Errorf("missing user error = %v, want NotFoundError", err)
	}
	if _, err := engine.ApplyTrigger(user.ID, models.ActivityCompletion, nil, 0); !IsValidation(err) {
		t.Errorf("completion without activity id error = %v, want ValidationError", err)
	}
}

func TestLevelUpGrantsLevelBadgeAndBonus(t *testing.T) {
	engine, db := newTestEngine(t)
	user := seedUser(t, db, 90)

	badge := &models.Badge{
		ID:           uuid.NewString(),
		Code:         "level-2",
		Name:         "Level 2",
		CriteriaType: models.CriteriaCustom, // only grantable via the level binding
		IsActive:     true,
	}
	if err := db.Create(badge).Error; err != nil {
		t.Fatalf("seed badge: %v", err)
	}
	level := &models.Level{
		ID:                 uuid.NewString(),
		LevelNumber:        2,
		ExperienceRequired: LevelThreshold(2),
		BadgeRewardID:      &badge.ID,
	}
	if err := db.Create(level).Error; err != nil {
		t.Fatalf("seed level: %v", err)
	}

	outcome, err := engine.ApplyTrigger(user.ID, models.ActivityLogin, nil, 15)
	if err != nil {
		t.Fatalf("ApplyTrigger: %v", err)
	}

	// 90 + 15 crosses the level-2 threshold; the bonus is 2*10.
	if !outcome.LeveledUp {
		t.Fatal("expected level up")
	}
	if outcome.NewLevel != 2 {
		t.Errorf("NewLevel = %d, want 2", outcome.NewLevel)
	}
	if want := int64(90 + 15 + 20); outcome.NewXP != want {
		t.Errorf("NewXP = %d, want %d", outcome.NewXP, want)
	}
	if len(outcome.GrantedBadges) != 1 || outcome.GrantedBadges[0].Badge.Code != "level-2" {
		t.Fatalf("GrantedBadges = %+v, want the level-2 badge", outcome.GrantedBadges)
	}
	assertConsistent(t, db, user.ID)

	var badgeRow models.ExperienceLog
	if err := db.Where("user_id = ? AND activity_type = ?", user.ID, models.ActivityLevelBadgeAward).First(&badgeRow).Error; err != nil {
		t.Errorf("missing level_badge_award ledger row: %v", err)
	}
	var bonusRow models.ExperienceLog
	if err := db.Where("user_id = ? AND activity_type = ?", user.ID, models.ActivityLevelUp).First(&bonusRow).Error; err != nil {
		t.Fatalf("missing level_up ledger row: %v", err)
	}
	if bonusRow.ExperienceChange != 20 {
		t.Errorf("level_up bonus = %d, want 20", bonusRow.ExperienceChange)
	}
}

func TestLostLevelUpRacePaysBonusOnce(t *testing.T) {
	engine, db := newTestEngine(t)
	user := seedUser(t, db, 90)

	// Winning cascade: crosses the level-2 threshold and pays the bonus.
	outcome, err := engine.ApplyTrigger(user.ID, models.ActivityLogin, nil, 15)
	if err != nil {
		t.Fatalf("ApplyTrigger: %v", err)
	}
	if !outcome.LeveledUp {
		t.Fatal("expected level up")
	}

	// Losing cascade: a snapshot read before the winner committed still sees
	// level 1 with the XP already past the threshold. The guarded update
	// affects no rows, so no second bonus and no second badge pass.
	stale := &models.User{
		ID:               user.ID,
		ExperiencePoints: outcome.NewXP,
		CurrentLevel:     1,
	}
	loserOutcome := &RewardOutcome{UserID: user.ID}
	if err := engine.settle(db, stale, loserOutcome); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if loserOutcome.LeveledUp {
		t.Error("losing cascade reported a level up")
	}

	var bonusRows int64
	db.Model(&models.ExperienceLog{}).
		Where("user_id = ? AND activity_type = ?", user.ID, models.ActivityLevelUp).
		Count(&bonusRows)
	if bonusRows != 1 {
		t.Errorf("level_up bonus ledger rows = %d, want 1", bonusRows)
	}
	assertConsistent(t, db, user.ID)
}

func TestCompleteActivityIdempotent(t *testing.T) {
	engine, db := newTestEngine(t)
	user := seedUser(t, db, 0)
	activity := seedActivity(t, db, 30, false)

	first, err := engine.CompleteActivity(user.ID, activity.ID)
	if err != nil {
		t.Fatalf("first completion: %v", err)
	}
	if first.AlreadyCompleted {
		t.Fatal("first completion flagged as duplicate")
	}
	if first.NewXP != 30 {
		t.Errorf("NewXP = %d, want 30", first.NewXP)
	}

	second, err := engine.CompleteActivity(user.ID, activity.ID)
	if err != nil {
		t.Fatalf("second completion: %v", err)
	}
	if !second.AlreadyCompleted {
		t.Fatal("second completion not flagged as duplicate")
	}
	if second.NewXP != 30 {
		t.Errorf("duplicate changed XP to %d", second.NewXP)
	}

	var count int64
	db.Model(&models.ExperienceLog{}).Where("user_id = ?", user.ID).Count(&count)
	if count != 1 {
		t.Errorf("ledger rows = %d, want 1", count)
	}
	assertConsistent(t, db, user.ID)
}

func TestCompleteActivityRepeatable(t *testing.T) {
	engine, db := newTestEngine(t)
	user := seedUser(t, db, 0)
	activity := seedActivity(t, db, 10, true)

	for i := 0; i < 3; i++ {
		if _, err := engine.CompleteActivity(user.ID, activity.ID); err != nil {
			t.Fatalf("completion %d: %v", i+1, err)
		}
	}

	var ua models.UserActivity
	if err := db.Where("user_id = ? AND activity_id = ?", user.ID, activity.ID).First(&ua).Error; err != nil {
		t.Fatalf("load completion row: %v", err)
	}
	if ua.Completions != 3 {
		t.Errorf("completions = %d, want 3", ua.Completions)
	}

	var loaded models.User
	db.First(&loaded, "id = ?", user.ID)
	if loaded.ExperiencePoints != 30 {
		t.Errorf("xp = %d, want 30", loaded.ExperiencePoints)
	}
	if loaded.TotalActivities != 3 {
		t.Errorf("total_activities = %d, want 3", loaded.TotalActivities)
	}
	assertConsistent(t, db, user.ID)
}

func TestCompleteActivityMissing(t *testing.T) {
	engine, db := newTestEngine(t)
	user := seedUser(t, db, 0)

	if _, err := engine.CompleteActivity(user.ID, uuid.NewString()); !IsNotFound(err) {
		t.Errorf("missing activity error = %v, want NotFoundError", err)
	}

	inactive := &models.Activity{ID: uuid.NewString(), Name: "Retired", IsActive: false}
	if err := db.Create(inactive).Error; err != nil {
		t.Fatalf("seed inactive activity: %v", err)
	}
	if _, err := engine.CompleteActivity(user.ID, inactive.ID); !IsNotFound(err) {
		t.Errorf("inactive activity error = %v, want NotFoundError", err)
	}
}

func TestBadgeRewardCascadesIntoLevelUp(t *testing.T) {
	engine, db := newTestEngine(t)
	user := seedUser(t, db, 0)

	badge := &models.Badge{
		ID:               uuid.NewString(),
		Code:             "xp-hoarder",
		Name:             "XP Hoarder",
		CriteriaType:     models.CriteriaExperience,
		CriteriaValue:    50,
		ExperienceReward: 60,
		IsActive:         true,
	}
	if err := db.Create(badge).Error; err != nil {
		t.Fatalf("seed badge: %v", err)
	}

	// 50 login XP satisfies the badge, whose 60 XP reward crosses the
	// level-2 threshold: two cascade rounds.
	outcome, err := engine.ApplyTrigger(user.ID, models.ActivityLogin, nil, 50)
	if err != nil {
		t.Fatalf("ApplyTrigger: %v", err)
	}

	if len(outcome.GrantedBadges) != 1 {
		t.Fatalf("granted %d badges, want 1", len(outcome.GrantedBadges))
	}
	if !outcome.LeveledUp || outcome.NewLevel != 2 {
		t.Fatalf("LeveledUp=%v NewLevel=%d, want level 2", outcome.LeveledUp, outcome.NewLevel)
	}
	if want := int64(50 + 60 + 20); outcome.NewXP != want {
		t.Errorf("NewXP = %d, want %d", outcome.NewXP, want)
	}
	assertConsistent(t, db, user.ID)
}

func TestAchievementUnlockGrantsBoundBadge(t *testing.T) {
	engine, db := newTestEngine(t)
	user := seedUser(t, db, 0)
	activity := seedActivity(t, db, 10, false)

	badge := &models.Badge{
		ID:           uuid.NewString(),
		Code:         "first-steps",
		Name:         "First Steps",
		CriteriaType: models.CriteriaCustom,
		IsActive:     true,
	}
	if err := db.Create(badge).Error; err != nil {
		t.Fatalf("seed badge: %v", err)
	}
	ach := &models.Achievement{
		ID:               uuid.NewString(),
		Code:             "getting-started",
		Name:             "Getting Started",
		CriteriaType:     models.CriteriaActivities,
		CriteriaValue:    1,
		ExperienceReward: 15,
		BadgeRewardID:    &badge.ID,
		IsActive:         true,
	}
	if err := db.Create(ach).Error; err != nil {
		t.Fatalf("seed achievement: %v", err)
	}

	outcome, err := engine.CompleteActivity(user.ID, activity.ID)
	if err != nil {
		t.Fatalf("CompleteActivity: %v", err)
	}

	if len(outcome.UnlockedAchievements) != 1 {
		t.Fatalf("unlocked %d achievements, want 1", len(outcome.UnlockedAchievements))
	}
	unlock := outcome.UnlockedAchievements[0]
	if unlock.BadgeGrant == nil || unlock.BadgeGrant.Badge.Code != "first-steps" {
		t.Fatalf("bound badge not granted: %+v", unlock.BadgeGrant)
	}
	if want := int64(10 + 15); outcome.NewXP != want {
		t.Errorf("NewXP = %d, want %d", outcome.NewXP, want)
	}

	var loaded models.User
	db.First(&loaded, "id = ?", user.ID)
	if loaded.TotalBadges != 1 || loaded.TotalAchievements != 1 {
		t.Errorf("counters = badges %d achievements %d, want 1/1", loaded.TotalBadges, loaded.TotalAchievements)
	}
	assertConsistent(t, db, user.ID)
}

func TestCompleteProfileIdempotent(t *testing.T) {
	engine, db := newTestEngine(t)
	user := seedUser(t, db, 0)

	first, err := engine.CompleteProfile(user.ID)
	if err != nil {
		t.Fatalf("first completion: %v", err)
	}
	if first.AlreadyCompleted || first.NewXP != engine.XP.ProfileCompletionXP {
		t.Errorf("first outcome = %+v", first)
	}

	second, err := engine.CompleteProfile(user.ID)
	if err != nil {
		t.Fatalf("second completion: %v", err)
	}
	if !second.AlreadyCompleted {
		t.Error("second completion not flagged as duplicate")
	}
	assertConsistent(t, db, user.ID)
}

func TestAwardBadgeManual(t *testing.T) {
	engine, db := newTestEngine(t)
	user := seedUser(t, db, 0)
	admin := seedUser(t, db, 0)

	badge := &models.Badge{
		ID:               uuid.NewString(),
		Code:             "community-hero",
		Name:             "Community Hero",
		CriteriaType:     models.CriteriaCustom,
		ExperienceReward: 40,
		IsActive:         true,
	}
	if err := db.Create(badge).Error; err != nil {
		t.Fatalf("seed badge: %v", err)
	}

	outcome, err := engine.AwardBadge(user.ID, badge.ID, admin.ID)
	if err != nil {
		t.Fatalf("AwardBadge: %v", err)
	}
	if len(outcome.GrantedBadges) != 1 {
		t.Fatalf("granted %d badges, want 1", len(outcome.GrantedBadges))
	}
	if outcome.NewXP != 40 {
		t.Errorf("NewXP = %d, want 40", outcome.NewXP)
	}
	if ub := outcome.GrantedBadges[0].UserBadge; ub.AwardedBy == nil || *ub.AwardedBy != admin.ID {
		t.Errorf("AwardedBy = %v, want %s", ub.AwardedBy, admin.ID)
	}

	repeat, err := engine.AwardBadge(user.ID, badge.ID, admin.ID)
	if err != nil {
		t.Fatalf("repeat AwardBadge: %v", err)
	}
	if !repeat.AlreadyCompleted {
		t.Error("repeat award not flagged as duplicate")
	}
	assertConsistent(t, db, user.ID)

	if _, err := engine.AwardBadge(user.ID, uuid.NewString(), admin.ID); !IsNotFound(err) {
		t.Errorf("missing badge error = %v, want NotFoundError", err)
	}
}

func TestOutboxEventsWrittenWithCascade(t *testing.T) {
	engine, db := newTestEngine(t)
	user := seedUser(t, db, 90)

	outcome, err := engine.ApplyTrigger(user.ID, models.ActivityLogin, nil, 15)
	if err != nil {
		t.Fatalf("ApplyTrigger: %v", err)
	}
	if !outcome.LeveledUp {
		t.Fatal("expected level up")
	}

	var events []models.RewardEvent
	db.Where("user_id = ?", user.ID).Order("created_at ASC").Find(&events)

	types := map[string]int{}
	for _, e := range events {
		types[e.EventType]++
		if e.DispatchedAt != nil {
			t.Errorf("event %s already dispatched", e.ID)
		}
		if e.Payload == "" {
			t.Errorf("event %s has empty payload", e.ID)
		}
	}
	if types[models.EventXPGained] != 1 || types[models.EventLevelUp] != 1 {
		t.Errorf("event types = %v, want one xp_gained and one level_up", types)
	}
	if len(outcome.Events) != len(events) {
		t.Errorf("outcome carries %d events, outbox has %d", len(outcome.Events), len(events))
	}
}

func TestExperienceHistoryPagination(t *testing.T) {
	engine, db := newTestEngine(t)
	user := seedUser(t, db, 0)
	activity := seedActivity(t, db, 5, true)

	for i := 0; i < 5; i++ {
		if _, err := engine.CompleteActivity(user.ID, activity.ID); err != nil {
			t.Fatalf("completion %d: %v", i+1, err)
		}
	}

	entries, total, err := engine.ExperienceHistory(user.ID, 1, 2)
	if err != nil {
		t.Fatalf("ExperienceHistory: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(entries) != 2 {
		t.Errorf("page size = %d, want 2", len(entries))
	}
}
