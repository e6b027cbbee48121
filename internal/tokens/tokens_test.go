package tokens

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(NewMemoryStore(time.Hour))
	txID := uuid.New()

	token, err := tracker.Create(ctx, txID, models.TokenOpFinalize)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, token.Token)

	t.Run("Pending", func(t *testing.T) {
		status, err := tracker.GetStatus(ctx, token.Token)
		require.NoError(t, err)
		assert.False(t, status.Completed)
		assert.Nil(t, status.Result)
	})

	t.Run("First completion wins", func(t *testing.T) {
		first, err := tracker.Complete(ctx, token.Token, models.ProcessResult{Success: true, TransactionUUID: txID})
		require.NoError(t, err)
		assert.True(t, first.Result.Success)

		second, err := tracker.Complete(ctx, token.Token, models.ProcessResult{Success: false, Reason: "connection_issue"})
		require.NoError(t, err)
		assert.True(t, second.Result.Success)
		assert.Empty(t, second.Result.Reason)

		status, err := tracker.GetStatus(ctx, token.Token)
		require.NoError(t, err)
		assert.True(t, status.Completed)
		assert.Equal(t, txID, status.Result.TransactionUUID)
	})

	t.Run("Unknown token", func(t *testing.T) {
		_, err := tracker.GetStatus(ctx, uuid.New())
		assert.True(t, errors.Is(err, pkgerrors.ErrTokenNotFound))

		_, err = tracker.Complete(ctx, uuid.New(), models.ProcessResult{})
		assert.True(t, errors.Is(err, pkgerrors.ErrTokenNotFound))
	})
}

func TestConcurrentCompletion(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(NewMemoryStore(0))
	token, err := tracker.Create(ctx, uuid.New(), models.TokenOpFinalize)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]bool, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stored, err := tracker.Complete(ctx, token.Token, models.ProcessResult{Success: i%2 == 0, Reason: "r"})
			require.NoError(t, err)
			results[i] = stored.Result.Success
		}(i)
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
}

func TestMemoryStoreRetention(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)
	old := &models.ProcessToken{Token: uuid.New(), CreatedAt: time.Now().Add(-2 * time.Hour)}
	require.NoError(t, store.Create(ctx, old))
	require.NoError(t, store.Create(ctx, &models.ProcessToken{Token: uuid.New(), CreatedAt: time.Now()}))

	_, err := store.Get(ctx, old.Token)
	assert.True(t, errors.Is(err, pkgerrors.ErrTokenNotFound))
}
