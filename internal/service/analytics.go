package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"anoa.com/notifhub/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const analyticsQueueKey = "notification_analytics"

// AnalyticsEvent is one delivery-lifecycle datapoint pushed to the analytics
// queue for downstream consumers.
type AnalyticsEvent struct {
	Event          string        `json:"event"` // sent, delivered, opened, failed
	NotificationID uuid.UUID     `json:"notification_id"`
	UserID         uuid.UUID     `json:"user_id"`
	Type           string        `json:"type"`
	Channel        model.Channel `json:"channel"`
	At             time.Time     `json:"at"`
}

type AnalyticsRecorder interface {
	Record(ctx context.Context, event AnalyticsEvent)
}

type redisAnalytics struct {
	client *redis.Client
}

// NewAnalyticsRecorder pushes events onto a redis list. A nil client turns
// recording into a no-op, which keeps tests and redis-less deployments clean.
func NewAnalyticsRecorder(client *redis.Client) AnalyticsRecorder {
	return &redisAnalytics{client: client}
}

func (a *redisAnalytics) Record(ctx context.Context, event AnalyticsEvent) {
	if a.client == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := a.client.RPush(ctx, analyticsQueueKey, payload).Err(); err != nil {
		log.Printf("analytics push failed: %v", err)
	}
}
