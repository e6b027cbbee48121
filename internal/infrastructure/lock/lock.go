// Package lock serializes work on a single transaction or listing.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
)

// Locker acquires a named mutual-exclusion lock, waiting a bounded time.
// It returns pkgerrors.ErrTransactionLocked when the wait runs out.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

func TransactionKey(id uuid.UUID) string {
	return "tx:" + id.String() + ":lock"
}

func ListingKey(id uuid.UUID) string {
	return "listing:" + id.String() + ":lock"
}

// Memory is an in-process Locker for single-instance deployments and tests.
type Memory struct {
	mu   sync.Mutex
	held map[string]chan struct{}
	wait time.Duration
}

func NewMemory(wait time.Duration) *Memory {
	return &Memory{held: make(map[string]chan struct{}), wait: wait}
}

func (m *Memory) Lock(ctx context.Context, key string) (func(), error) {
	timer := time.NewTimer(m.wait)
	defer timer.Stop()

	for {
		m.mu.Lock()
		released, busy := m.held[key]
		if !busy {
			done := make(chan struct{})
			m.held[key] = done
			m.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					m.mu.Lock()
					delete(m.held, key)
					m.mu.Unlock()
					close(done)
				})
			}, nil
		}
		m.mu.Unlock()

		select {
		case <-released:
		case <-timer.C:
			return nil, pkgerrors.ErrTransactionLocked
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
