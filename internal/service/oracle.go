package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"context"

	"anoa.com/notifhub/internal/model"
	"github.com/google/uuid"
)

// TimingOracle is the external intelligent-timing service. The pipeline
// consumes the returned instant opaquely: at or before now means dispatch
// immediately, later means persist scheduled_for and let the sweeper deliver.
type TimingOracle interface {
	OptimalDeliveryTime(ctx context.Context, userID uuid.UUID, priority model.Priority, pref model.BatchingMode) (time.Time, error)
}

type immediateOracle struct{}

// NewImmediateOracle always answers "now". Used when no oracle endpoint is
// configured.
func NewImmediateOracle() TimingOracle {
	return immediateOracle{}
}

func (immediateOracle) OptimalDeliveryTime(context.Context, uuid.UUID, model.Priority, model.BatchingMode) (time.Time, error) {
	return time.Now(), nil
}

type httpOracle struct {
	url    string
	client *http.Client
}

// NewHTTPOracle calls an external endpoint that answers with an epoch-ms
// delivery instant. Oracle failures degrade to immediate delivery rather than
// blocking the event producer.
func NewHTTPOracle(url string) TimingOracle {
	return &httpOracle{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (o *httpOracle) OptimalDeliveryTime(ctx context.Context, userID uuid.UUID, priority model.Priority, pref model.BatchingMode) (time.Time, error) {
	payload, err := json.Marshal(map[string]string{
		"user_id":             userID.String(),
		"priority":            string(priority),
		"batching_preference": string(pref),
	})
	if err != nil {
		return time.Now(), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(payload))
	if err != nil {
		return time.Now(), nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		log.Printf("⚠️ timing oracle unreachable, delivering now: %v", err)
		return time.Now(), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("⚠️ timing oracle returned %d, delivering now", resp.StatusCode)
		return time.Now(), nil
	}

	var body struct {
		DeliveryTime int64 `json:"delivery_time"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return time.Now(), fmt.Errorf("timing oracle: bad response: %w", err)
	}
	return time.UnixMilli(body.DeliveryTime), nil
}
