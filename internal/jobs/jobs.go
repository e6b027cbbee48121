// Package jobs schedules deferred work: seller payouts and automatic completion
// of confirmed transactions. Due jobs are handed to a Publisher; jobs with a
// future RunAt wait in a DelayedStore until the Scheduler moves them.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindPayout       Kind = "payout"
	KindAutoComplete Kind = "auto_complete"
)

type Job struct {
	ID              uuid.UUID `json:"id"`
	Kind            Kind      `json:"kind"`
	TransactionUUID uuid.UUID `json:"transaction_id"`
	CommunityID     int64     `json:"community_id"`
	RunAt           time.Time `json:"run_at"`
	Attempt         int       `json:"attempt"`
}

// Handler processes one job. A returned error makes the job eligible for retry.
type Handler func(ctx context.Context, job Job) error

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// Publisher hands a due job to the workers.
type Publisher interface {
	Publish(ctx context.Context, job Job) error
}

// DelayedStore holds jobs until their RunAt. Due removes and returns at most
// limit jobs whose RunAt is not after now; a job is returned to one caller only.
type DelayedStore interface {
	Add(ctx context.Context, job Job) error
	Due(ctx context.Context, now time.Time, limit int) ([]Job, error)
}

type Scheduler struct {
	publisher Publisher
	delayed   DelayedStore
	batch     int
	now       func() time.Time
}

func NewScheduler(publisher Publisher, delayed DelayedStore) *Scheduler {
	return &Scheduler{publisher: publisher, delayed: delayed, batch: 100, now: time.Now}
}

// Enqueue publishes the job right away when it is due, otherwise parks it.
func (s *Scheduler) Enqueue(ctx context.Context, job Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.RunAt.IsZero() {
		job.RunAt = s.now().UTC()
	}

	if job.RunAt.After(s.now()) {
		if err := s.delayed.Add(ctx, job); err != nil {
			slog.Error("failed to delay job", "job_id", job.ID, "kind", job.Kind, "transaction_id", job.TransactionUUID, "error", err)
			return fmt.Errorf("failed to delay job: %w", err)
		}
		slog.Info("job delayed", "job_id", job.ID, "kind", job.Kind, "transaction_id", job.TransactionUUID, "run_at", job.RunAt)
		return nil
	}

	if err := s.publisher.Publish(ctx, job); err != nil {
		slog.Error("failed to publish job", "job_id", job.ID, "kind", job.Kind, "transaction_id", job.TransactionUUID, "error", err)
		return fmt.Errorf("failed to publish job: %w", err)
	}
	return nil
}

// Tick moves every due job to the publisher and returns how many were moved.
// A job that fails to publish goes back to the delayed store.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	moved := 0
	for {
		due, err := s.delayed.Due(ctx, s.now(), s.batch)
		if err != nil {
			return moved, fmt.Errorf("failed to fetch due jobs: %w", err)
		}
		for _, job := range due {
			if err := s.publisher.Publish(ctx, job); err != nil {
				slog.Error("failed to publish due job", "job_id", job.ID, "kind", job.Kind, "error", err)
				if err := s.delayed.Add(ctx, job); err != nil {
					slog.Error("failed to re-delay job", "job_id", job.ID, "kind", job.Kind, "error", err)
				}
				return moved, fmt.Errorf("failed to publish due job: %w", err)
			}
			moved++
		}
		if len(due) < s.batch {
			return moved, nil
		}
	}
}

// Run calls Tick every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Tick(ctx); err != nil {
				slog.Error("scheduler tick failed", "error", err)
			} else if n > 0 {
				slog.Info("due jobs dispatched", "count", n)
			}
		}
	}
}

// Backoff is the retry delay before the given attempt.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(attempt*attempt) * time.Minute
	if d > time.Hour {
		d = time.Hour
	}
	return d
}
