package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/jobs"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	msgs      chan kafka.Message
	committed []kafka.Message
	mu        sync.Mutex
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m, ok := <-r.msgs:
		if !ok {
			<-ctx.Done()
			return kafka.Message{}, ctx.Err()
		}
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) Committed() []kafka.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kafka.Message(nil), r.committed...)
}

func TestProducer_Send(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w}

	require.NoError(t, p.Send(context.Background(), "jobs", "tx-1", []byte(`{}`)))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "jobs", w.msgs[0].Topic)
	assert.Equal(t, []byte("tx-1"), w.msgs[0].Key)

	w.err = errors.New("broker down")
	assert.Error(t, p.Send(context.Background(), "jobs", "tx-1", []byte(`{}`)))
}

func TestJobPublisher(t *testing.T) {
	w := &fakeWriter{}
	pub := NewJobPublisher(&Producer{writer: w}, "jobs")
	job := jobs.Job{ID: uuid.New(), Kind: jobs.KindPayout, TransactionUUID: uuid.New()}

	require.NoError(t, pub.Publish(context.Background(), job))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte(job.TransactionUUID.String()), w.msgs[0].Key)

	var got jobs.Job
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, jobs.KindPayout, got.Kind)
}

func jobMessage(t *testing.T, job jobs.Job, offset int64) kafka.Message {
	data, err := json.Marshal(job)
	require.NoError(t, err)
	return kafka.Message{Topic: "jobs", Key: []byte(job.TransactionUUID.String()), Value: data, Offset: offset}
}

func TestConsumer_Run(t *testing.T) {
	now := time.Now().UTC()
	ok := jobs.Job{ID: uuid.New(), Kind: jobs.KindPayout, TransactionUUID: uuid.New()}
	flaky := jobs.Job{ID: uuid.New(), Kind: jobs.KindPayout, TransactionUUID: uuid.New()}
	exhausted := jobs.Job{ID: uuid.New(), Kind: jobs.KindAutoComplete, TransactionUUID: uuid.New(), Attempt: 2}

	reader := &fakeReader{msgs: make(chan kafka.Message, 4)}
	reader.msgs <- jobMessage(t, ok, 1)
	reader.msgs <- jobMessage(t, flaky, 2)
	reader.msgs <- jobMessage(t, exhausted, 3)
	reader.msgs <- kafka.Message{Topic: "jobs", Key: []byte("x"), Value: []byte("not json"), Offset: 4}

	dlq := &fakeWriter{}
	retry := jobs.NewMemoryQueue()
	c := &Consumer{
		reader:      reader,
		retry:       jobs.NewScheduler(retry, retry),
		deadLetter:  &Producer{writer: dlq},
		dlqTopic:    "jobs.dlq",
		maxAttempts: 3,
		now:         func() time.Time { return now },
	}

	var mu sync.Mutex
	var handled []uuid.UUID
	handler := func(_ context.Context, job jobs.Job) error {
		mu.Lock()
		handled = append(handled, job.ID)
		mu.Unlock()
		if job.ID == ok.ID {
			return nil
		}
		return errors.New("gateway unavailable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- c.Run(ctx, handler) }()

	require.Eventually(t, func() bool { return len(reader.Committed()) == 4 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []uuid.UUID{ok.ID, flaky.ID, exhausted.ID}, handled)

	delayed := retry.Delayed()
	require.Len(t, delayed, 1)
	assert.Equal(t, flaky.ID, delayed[0].ID)
	assert.Equal(t, 1, delayed[0].Attempt)
	assert.Equal(t, now.Add(jobs.Backoff(1)), delayed[0].RunAt)

	require.Len(t, dlq.msgs, 2)
	var dead jobs.Job
	require.NoError(t, json.Unmarshal(dlq.msgs[0].Value, &dead))
	assert.Equal(t, exhausted.ID, dead.ID)
	assert.Equal(t, 3, dead.Attempt)
	assert.Equal(t, []byte("not json"), dlq.msgs[1].Value)
}

// flakyQueue rejects the first fails enqueues.
type flakyQueue struct {
	mu     sync.Mutex
	fails  int
	calls  int
	queued []jobs.Job
}

func (q *flakyQueue) Enqueue(_ context.Context, job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.calls <= q.fails {
		return errors.New("redis unavailable")
	}
	q.queued = append(q.queued, job)
	return nil
}

func (q *flakyQueue) Calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

func TestConsumer_RunRetriesSettle(t *testing.T) {
	failing := jobs.Job{ID: uuid.New(), Kind: jobs.KindPayout, TransactionUUID: uuid.New()}
	next := jobs.Job{ID: uuid.New(), Kind: jobs.KindPayout, TransactionUUID: uuid.New()}

	newConsumer := func(reader *fakeReader, retry jobs.Queue) *Consumer {
		return &Consumer{
			reader:      reader,
			retry:       retry,
			deadLetter:  &Producer{writer: &fakeWriter{}},
			dlqTopic:    "jobs.dlq",
			maxAttempts: 5,
			backoff:     time.Millisecond,
			now:         time.Now,
		}
	}

	var mu sync.Mutex
	var handled []uuid.UUID
	handler := func(_ context.Context, job jobs.Job) error {
		mu.Lock()
		handled = append(handled, job.ID)
		mu.Unlock()
		if job.ID == failing.ID {
			return errors.New("gateway unavailable")
		}
		return nil
	}

	t.Run("reschedule failure is retried before moving on", func(t *testing.T) {
		handled = nil
		reader := &fakeReader{msgs: make(chan kafka.Message, 2)}
		reader.msgs <- jobMessage(t, failing, 5)
		reader.msgs <- jobMessage(t, next, 6)
		retry := &flakyQueue{fails: 2}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error)
		go func() { done <- newConsumer(reader, retry).Run(ctx, handler) }()

		require.Eventually(t, func() bool { return len(reader.Committed()) == 2 }, time.Second, 5*time.Millisecond)
		cancel()
		require.NoError(t, <-done)

		committed := reader.Committed()
		assert.Equal(t, int64(5), committed[0].Offset)
		assert.Equal(t, int64(6), committed[1].Offset)
		assert.Equal(t, 3, retry.Calls())
		require.Len(t, retry.queued, 1)
		assert.Equal(t, failing.ID, retry.queued[0].ID)
		assert.Equal(t, []uuid.UUID{failing.ID, next.ID}, handled)
	})

	t.Run("unsettled message is never committed past", func(t *testing.T) {
		handled = nil
		reader := &fakeReader{msgs: make(chan kafka.Message, 2)}
		reader.msgs <- jobMessage(t, failing, 5)
		reader.msgs <- jobMessage(t, next, 6)
		retry := &flakyQueue{fails: 1 << 30}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error)
		go func() { done <- newConsumer(reader, retry).Run(ctx, handler) }()

		require.Eventually(t, func() bool { return retry.Calls() >= 3 }, time.Second, time.Millisecond)
		cancel()
		require.NoError(t, <-done)

		assert.Empty(t, reader.Committed())
		assert.Equal(t, []uuid.UUID{failing.ID}, handled)
	})
}
