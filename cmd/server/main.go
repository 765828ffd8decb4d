package main

import (
	"context"
	"log"
	"os"

	"anoa.com/notifhub/internal/config"
	"anoa.com/notifhub/internal/model"
	"anoa.com/notifhub/internal/server"
	"anoa.com/notifhub/pkg/database"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ invalid configuration: %v", err)
	}

	db := database.Connect()

	if err := db.AutoMigrate(
		&model.User{},
		&model.Notification{},
		&model.NotificationBatch{},
		&model.NotificationSettings{},
	); err != nil {
		log.Fatalf("❌ migration failed: %v", err)
	}
	log.Println("✅ database migrated")

	redisClient := connectRedis(cfg)

	srv := server.New(cfg, db, redisClient)

	log.Printf("🚀 notifhub listening on :%s", cfg.Port)
	if err := srv.Run(); err != nil {
		log.Fatalf("❌ server stopped: %v", err)
	}
}

func connectRedis(cfg *config.Config) *redis.Client {
	url := cfg.RedisURL
	if url == "" {
		url = os.Getenv("REDIS_ADDR")
	}
	if url == "" {
		url = "redis://localhost:6379"
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("❌ invalid REDIS_URL: %v", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		// Realtime fan-out and analytics degrade gracefully without redis.
		log.Printf("⚠️ redis unreachable, realtime delivery disabled: %v", err)
	}
	return client
}
