package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_MutualExclusion(t *testing.T) {
	l := NewMemory(time.Second)
	key := TransactionKey(uuid.New())

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), key)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestMemory_Timeout(t *testing.T) {
	l := NewMemory(20 * time.Millisecond)
	key := ListingKey(uuid.New())

	unlock, err := l.Lock(context.Background(), key)
	require.NoError(t, err)

	_, err = l.Lock(context.Background(), key)
	assert.ErrorIs(t, err, pkgerrors.ErrTransactionLocked)

	unlock()
	unlock()
	unlock2, err := l.Lock(context.Background(), key)
	require.NoError(t, err)
	unlock2()
}

func TestKeys(t *testing.T) {
	id := uuid.MustParse("8d4b7c1a-2f1e-4a57-9f7c-3b1d2e4f5a6b")
	assert.Equal(t, "tx:8d4b7c1a-2f1e-4a57-9f7c-3b1d2e4f5a6b:lock", TransactionKey(id))
	assert.Equal(t, "listing:8d4b7c1a-2f1e-4a57-9f7c-3b1d2e4f5a6b:lock", ListingKey(id))
}
