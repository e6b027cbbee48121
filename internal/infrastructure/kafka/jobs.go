package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/honeynil/marketplace-tx/internal/jobs"
)

// JobPublisher puts due jobs on the jobs topic, keyed by transaction.
type JobPublisher struct {
	producer KafkaProducer
	topic    string
}

func NewJobPublisher(producer KafkaProducer, topic string) *JobPublisher {
	return &JobPublisher{producer: producer, topic: topic}
}

func (p *JobPublisher) Publish(ctx context.Context, job jobs.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := p.producer.Send(ctx, p.topic, job.TransactionUUID.String(), data); err != nil {
		return fmt.Errorf("failed to send job: %w", err)
	}
	return nil
}
