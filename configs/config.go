package config

import (
	"os"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type Config struct {
	InstagramClientID     string
	InstagramClientSecret string
	InstagramRedirectURI  string
	TwitterClientID       string
	TwitterClientSecret   string
	TwitterRedirectURI    string
	LinkedinClientID      string
	LinkedinClientSecret  string
	LinkedinRedirectURI   string
	PostgresURI           string
	RedisURI              string
	FrontendURL           string
	R2                    R2
	SecretKey             string
	CookieName            string
	SchedulerInterval     time.Duration
	PublishingTimeout     time.Duration
	WebhookTimeout        time.Duration
}

func LoadConfig() *Config {
	return &Config{
		InstagramClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
		InstagramClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
		InstagramRedirectURI:  getEnv("INSTAGRAM_REDIRECT_URI", ""),
		TwitterClientID:       getEnv("TWITTER_CLIENT_ID", ""),
		TwitterClientSecret:   getEnv("TWITTER_CLIENT_SECRET", ""),
		TwitterRedirectURI:    getEnv("TWITTER_REDIRECT_URI", ""),
		LinkedinClientID:      getEnv("LINKEDIN_CLIENT_ID", ""),
		LinkedinClientSecret:  getEnv("LINKEDIN_CLIENT_SECRET", ""),
		LinkedinRedirectURI:   getEnv("LINKEDIN_REDIRECT_URI", ""),
		PostgresURI:           getEnv("POSTGRES_URI", ""),
		RedisURI:              getEnv("REDIS_URI", ""),
		FrontendURL:           getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		SecretKey:         getEnv("SECRET_KEY", ""),
		CookieName:        getEnv("COOKIE_NAME", "relay_session"),
		SchedulerInterval: getEnvDuration("SCHEDULER_INTERVAL", 30*time.Second),
		PublishingTimeout: getEnvDuration("PUBLISHING_TIMEOUT", 15*time.Minute),
		WebhookTimeout:    getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
