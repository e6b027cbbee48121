package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduplicator remembers webhook event ids for a TTL.
type Deduplicator struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewDeduplicator(client redis.UniversalClient, ttl time.Duration) *Deduplicator {
	return &Deduplicator{client: client, ttl: ttl}
}

// Seen records the event and reports whether it had been recorded before.
func (d *Deduplicator) Seen(ctx context.Context, source, eventID string) (bool, error) {
	key := fmt.Sprintf("webhook:%s:%s", source, eventID)
	ok, err := d.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		slog.Error("failed to record webhook event", "source", source, "event_id", eventID, "error", err)
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	return !ok, nil
}

// Forget drops the record so a failed event can be delivered again.
func (d *Deduplicator) Forget(ctx context.Context, source, eventID string) error {
	key := fmt.Sprintf("webhook:%s:%s", source, eventID)
	if err := d.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to forget webhook event: %w", err)
	}
	return nil
}
