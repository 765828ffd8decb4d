package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"anoa.com/notifhub/internal/service"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string

	DatabaseURL string
	RedisURL    string

	OracleURL     string
	WebhookSecret string

	ScheduledSweepCron string
	BatchSweepCron     string
	RetryCron          string
	CleanupCron        string

	Pipeline service.Config
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		OracleURL:     os.Getenv("TIMING_ORACLE_URL"),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),

		ScheduledSweepCron: getEnv("SCHEDULED_SWEEP_CRON", "* * * * *"),
		BatchSweepCron:     getEnv("BATCH_SWEEP_CRON", "* * * * *"),
		RetryCron:          getEnv("RETRY_CRON", "*/10 * * * *"),
		CleanupCron:        getEnv("CLEANUP_CRON", "0 3 * * *"),

		Pipeline: service.DefaultConfig(),
	}

	var err error
	p := &cfg.Pipeline
	if p.BatchWindow, err = parseDuration("BATCH_WINDOW", p.BatchWindow); err != nil {
		return nil, err
	}
	if p.DigestWindow, err = parseDuration("DIGEST_WINDOW", p.DigestWindow); err != nil {
		return nil, err
	}
	if p.StaleBatchAge, err = parseDuration("STALE_BATCH_AGE", p.StaleBatchAge); err != nil {
		return nil, err
	}
	if p.RetryLookback, err = parseDuration("RETRY_LOOKBACK", p.RetryLookback); err != nil {
		return nil, err
	}
	if p.DedupeWindow, err = parseDuration("DEDUPE_WINDOW", p.DedupeWindow); err != nil {
		return nil, err
	}
	if p.MaxBatchSize, err = parseInt("MAX_BATCH_SIZE", p.MaxBatchSize); err != nil {
		return nil, err
	}
	if p.MaxDigestSize, err = parseInt("MAX_DIGEST_SIZE", p.MaxDigestSize); err != nil {
		return nil, err
	}
	if p.MinBatchSize, err = parseInt("MIN_BATCH_SIZE", p.MinBatchSize); err != nil {
		return nil, err
	}
	if p.MaxEmailRetries, err = parseInt("MAX_EMAIL_RETRIES", p.MaxEmailRetries); err != nil {
		return nil, err
	}

	if days, err := parseInt("NOTIFICATION_RETENTION_DAYS", 0); err != nil {
		return nil, err
	} else if days > 0 {
		p.NotificationRetention = time.Duration(days) * 24 * time.Hour
	}
	if days, err := parseInt("BATCH_RETENTION_DAYS", 0); err != nil {
		return nil, err
	} else if days > 0 {
		p.BatchRetention = time.Duration(days) * 24 * time.Hour
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
