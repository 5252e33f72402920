package counter

import (
	"context"

	"github.com/coinchartfun/coinchart-backend/internal/pkg/cache"
)

const (
	webhookReceivedKey  = "webhook:counters:received"
	webhookProcessedKey = "webhook:counters:processed"
	webhookFailedKey    = "webhook:counters:failed"
	webhookReplayedKey  = "webhook:counters:replayed"
)

// AddWebhookReceived increments the received counter for a provider in Redis
func AddWebhookReceived(provider string) error {
	return cache.GetClient().HIncrBy(context.Background(), webhookReceivedKey, provider, 1).Err()
}

// AddWebhookProcessed increments the processed counter for a provider in Redis
func AddWebhookProcessed(provider string) error {
	return cache.GetClient().HIncrBy(context.Background(), webhookProcessedKey, provider, 1).Err()
}

// AddWebhookFailed increments the failed counter for a provider in Redis
func AddWebhookFailed(provider string) error {
	return cache.GetClient().HIncrBy(context.Background(), webhookFailedKey, provider, 1).Err()
}

// AddWebhookReplayed increments the replay counter for a provider in Redis
func AddWebhookReplayed(provider string) error {
	return cache.GetClient().HIncrBy(context.Background(), webhookReplayedKey, provider, 1).Err()
}

// Snapshot returns all webhook counters keyed by provider, per outcome.
type Snapshot struct {
	Received  map[string]string `json:"received"`
	Processed map[string]string `json:"processed"`
	Failed    map[string]string `json:"failed"`
	Replayed  map[string]string `json:"replayed"`
}

// GetSnapshot reads the current webhook counters from Redis.
func GetSnapshot() (Snapshot, error) {
	ctx := context.Background()
	rdb := cache.GetClient()

	var snap Snapshot
	var err error
	if snap.Received, err = rdb.HGetAll(ctx, webhookReceivedKey).Result(); err != nil {
		return snap, err
	}
	if snap.Processed, err = rdb.HGetAll(ctx, webhookProcessedKey).Result(); err != nil {
		return snap, err
	}
	if snap.Failed, err = rdb.HGetAll(ctx, webhookFailedKey).Result(); err != nil {
		return snap, err
	}
	if snap.Replayed, err = rdb.HGetAll(ctx, webhookReplayedKey).Result(); err != nil {
		return snap, err
	}
	return snap, nil
}
