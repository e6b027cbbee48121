package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/marketplace-tx/internal/infrastructure/observability"
	"github.com/honeynil/marketplace-tx/internal/jobs"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers         []string
	Topic           string
	GroupID         string
	DeadLetterTopic string
	MaxAttempts     int
}

// Consumer runs jobs from the jobs topic. A message is committed only after it
// was handled, rescheduled or dead-lettered, so delivery is at-least-once.
type Consumer struct {
	reader      messageReader
	retry       jobs.Queue
	deadLetter  KafkaProducer
	dlqTopic    string
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
}

const maxSettleBackoff = 30 * time.Second

func NewConsumer(cfg ConsumerConfig, retry jobs.Queue, deadLetter KafkaProducer) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		retry:       retry,
		deadLetter:  deadLetter,
		dlqTopic:    cfg.DeadLetterTopic,
		maxAttempts: cfg.MaxAttempts,
		backoff:     time.Second,
		now:         time.Now,
	}
}

// Run blocks until ctx is canceled or the reader fails for good. Offsets are
// committed in order, so a message is never committed past before it is
// handled, rescheduled or dead-lettered.
func (c *Consumer) Run(ctx context.Context, handle jobs.Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			slog.Error("failed to fetch Kafka message", "error", err)
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		if err := c.process(ctx, msg, handle); err != nil {
			// left uncommitted; the group resumes from it on restart
			slog.Warn("stopped before settling Kafka message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			slog.Error("failed to commit Kafka message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

// settle retries step with exponential backoff until it succeeds or ctx ends.
func (c *Consumer) settle(ctx context.Context, msg kafka.Message, step func() error) error {
	delay := c.backoff
	for {
		err := step()
		if err == nil {
			return nil
		}
		slog.Error("failed to settle Kafka message", "topic", msg.Topic, "offset", msg.Offset, "retry_in", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxSettleBackoff)
	}
}

// process handles the message once and returns only after its outcome is
// recorded. The error is non-nil only when ctx ended first.
func (c *Consumer) process(ctx context.Context, msg kafka.Message, handle jobs.Handler) error {
	var job jobs.Job
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		slog.Error("malformed job message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return c.settle(ctx, msg, func() error {
			return c.deadLetter.Send(ctx, c.dlqTopic, string(msg.Key), msg.Value)
		})
	}

	start := c.now()
	err := handle(ctx, job)
	if err == nil {
		observability.JobsProcessed.WithLabelValues(string(job.Kind), "success").Inc()
		slog.Info("job processed", "job_id", job.ID, "kind", job.Kind, "transaction_id", job.TransactionUUID, "duration", c.now().Sub(start))
		return nil
	}

	job.Attempt++
	if job.Attempt >= c.maxAttempts {
		observability.JobsProcessed.WithLabelValues(string(job.Kind), "dead_letter").Inc()
		slog.Error("job failed permanently", "job_id", job.ID, "kind", job.Kind, "transaction_id", job.TransactionUUID, "attempt", job.Attempt, "error", err)
		data, mErr := json.Marshal(job)
		if mErr != nil {
			data = msg.Value
		}
		return c.settle(ctx, msg, func() error {
			return c.deadLetter.Send(ctx, c.dlqTopic, job.TransactionUUID.String(), data)
		})
	}

	observability.JobsProcessed.WithLabelValues(string(job.Kind), "retry").Inc()
	job.RunAt = c.now().Add(jobs.Backoff(job.Attempt)).UTC()
	slog.Warn("job failed, retrying", "job_id", job.ID, "kind", job.Kind, "transaction_id", job.TransactionUUID, "attempt", job.Attempt, "run_at", job.RunAt, "error", err)
	return c.settle(ctx, msg, func() error {
		return c.retry.Enqueue(ctx, job)
	})
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
