package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryQueue records published jobs and keeps delayed ones in process. It
// serves as both Publisher and DelayedStore.
type MemoryQueue struct {
	mu        sync.Mutex
	published []Job
	delayed   []Job
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Publish(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, job)
	return nil
}

func (q *MemoryQueue) Add(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, job)
	sort.SliceStable(q.delayed, func(i, j int) bool { return q.delayed[i].RunAt.Before(q.delayed[j].RunAt) })
	return nil
}

func (q *MemoryQueue) Due(_ context.Context, now time.Time, limit int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for n < len(q.delayed) && n < limit && !q.delayed[n].RunAt.After(now) {
		n++
	}
	due := append([]Job(nil), q.delayed[:n]...)
	q.delayed = q.delayed[n:]
	return due, nil
}

// Published returns every job handed to the workers so far.
func (q *MemoryQueue) Published() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job(nil), q.published...)
}

func (q *MemoryQueue) Delayed() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job(nil), q.delayed...)
}

// Drain removes and returns the published jobs.
func (q *MemoryQueue) Drain() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := q.published
	q.published = nil
	return jobs
}
