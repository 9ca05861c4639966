package config

import (
	"github.com/jinzhu/configor"
)

type Config struct {
	App    AppConfig
	DB     DBConfig
	R2     R2Config
	Notify NotifyConfig
}

type AppConfig struct {
	Port           int    `default:"5300" env:"APP_PORT"`
	Env            string `default:"dev" env:"APP_ENV"`
	AllowedOrigins string `default:"http://localhost:3000" env:"ALLOWED_ORIGINS"`
	ServiceToken   string `required:"true" env:"GAMIFICATION_SERVICE_TOKEN"`
}

type DBConfig struct {
	URL string `required:"true" env:"DATABASE_URL"`
}

// R2Config holds the Cloudflare R2 credentials for icon storage. Leaving the
// bucket empty disables uploads.
type R2Config struct {
	AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	Bucket          string `env:"R2_BUCKET_NAME"`
	CDNBaseURL      string `env:"CDN_BASE_URL"`
}

type NotifyConfig struct {
	WebhookURL  string `env:"NOTIFY_WEBHOOK_URL"`
	PollSeconds int    `default:"5" env:"NOTIFY_POLL_SECONDS"`
}

func LoadOrPanic() Config {
	var cfg Config
	if err := configor.Load(&cfg); err != nil {
		panic(err)
	}
	return cfg
}
