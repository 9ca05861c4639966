package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gamification-system/config"
	"gamification-system/handlers"
	"gamification-system/middleware"
	"gamification-system/models"
	"gamification-system/services"
	"gamification-system/utils"
	"gamification-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg := config.LoadOrPanic()

	var zapLogger *zap.Logger
	var err error
	if cfg.App.Env == "production" {
		zapLogger, err = zap.NewProduction()
	} else {
		zapLogger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // 10MB, icons only
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware(cfg.App.ServiceToken, logger))

	allowedOriginsList := strings.Split(cfg.App.AllowedOrigins, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOriginsList, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	if cfg.R2.Bucket != "" {
		if err := utils.InitR2(cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret, cfg.R2.Bucket, cfg.R2.CDNBaseURL); err != nil {
			logger.Fatalw("failed to initialize R2 client", "error", err)
		}
	} else {
		logger.Warnw("R2 bucket not configured, icon uploads disabled")
	}

	db, err := gorm.Open(postgres.Open(cfg.DB.URL), &gorm.Config{})
	if err != nil {
		logger.Fatalw("failed to connect to database", "error", err)
	}

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
		logger.Fatalw("failed to migrate database", "error", err)
	}

	badgeService := services.NewBadgeService(db, logger)
	achievementService := services.NewAchievementService(db, logger)
	progressionService := services.NewProgressionService(db, badgeService, achievementService, logger)
	catalogService := services.NewCatalogService(db, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Notify.WebhookURL != "" {
		notifier := workers.NewRewardNotificationWorker(
			db, logger,
			cfg.Notify.WebhookURL, cfg.App.ServiceToken,
			time.Duration(cfg.Notify.PollSeconds)*time.Second,
		)
		notifier.Start(ctx)
	} else {
		logger.Warnw("notification webhook not configured, outbox dispatch disabled")
	}

	progressionService.StartReconciler(10 * time.Minute)

	handlers.SetupProgressionRoutes(app, progressionService)
	handlers.SetupCatalogRoutes(app, catalogService)

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.App.Port)); err != nil {
			logger.Errorw("server error", "error", err)
		}
	}()

	logger.Infow("✅ gamification engine running", "port", cfg.App.Port, "env", cfg.App.Env)

	<-ctx.Done()
	logger.Infow("shutting down server")
	if err := app.Shutdown(); err != nil {
		logger.Errorw("shutdown error", "error", err)
	}
}
