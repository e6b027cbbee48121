package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/honeynil/marketplace-tx/internal/jobs"
	"github.com/redis/go-redis/v9"
)

const delayedJobsKey = "jobs:delayed"

// DelayedQueue keeps jobs in a sorted set scored by RunAt (unix millis).
type DelayedQueue struct {
	client redis.UniversalClient
	key    string
}

func NewDelayedQueue(client redis.UniversalClient) *DelayedQueue {
	return &DelayedQueue{client: client, key: delayedJobsKey}
}

func (q *DelayedQueue) Add(ctx context.Context, job jobs.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	err = q.client.ZAdd(ctx, q.key, redis.Z{Score: float64(job.RunAt.UnixMilli()), Member: string(data)}).Err()
	if err != nil {
		slog.Error("failed to add delayed job", "job_id", job.ID, "kind", job.Kind, "error", err)
		return fmt.Errorf("failed to add delayed job: %w", err)
	}
	return nil
}

// Due claims jobs with ZREM, so concurrent schedulers never hand out the same job.
func (q *DelayedQueue) Due(ctx context.Context, now time.Time, limit int) ([]jobs.Job, error) {
	members, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read delayed jobs: %w", err)
	}

	due := make([]jobs.Job, 0, len(members))
	for _, m := range members {
		removed, err := q.client.ZRem(ctx, q.key, m).Result()
		if err != nil {
			return due, fmt.Errorf("failed to claim delayed job: %w", err)
		}
		if removed == 0 {
			continue
		}
		var job jobs.Job
		if err := json.Unmarshal([]byte(m), &job); err != nil {
			slog.Error("dropping malformed delayed job", "member", m, "error", err)
			continue
		}
		due = append(due, job)
	}
	return due, nil
}
