package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/models"
	"github.com/honeynil/marketplace-tx/internal/repository"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ repository.TransactionRepository   = (*Transactions)(nil)
	_ repository.ListingRepository       = (*Listings)(nil)
	_ repository.CommunityRepository     = (*Communities)(nil)
	_ repository.SellerAccountRepository = (*SellerAccounts)(nil)
	_ repository.ConversationRepository  = (*Conversations)(nil)
	_ repository.BookingRepository       = (*Bookings)(nil)
)

func TestTransactions_UpdateState(t *testing.T) {
	store := NewStore()
	repo := store.Transactions()
	ctx := context.Background()

	tx := &models.Transaction{UUID: uuid.New(), CurrentState: models.StateInitiated}
	require.NoError(t, repo.Create(ctx, tx, &models.Transition{To: models.StateInitiated, Action: string(models.ActionInitiate)}))

	tx.CurrentState = models.StatePaid
	require.NoError(t, repo.UpdateState(ctx, tx, models.StateInitiated, &models.Transition{From: models.StateInitiated, To: models.StatePaid}))

	stale := *tx
	stale.CurrentState = models.StateCanceled
	err := repo.UpdateState(ctx, &stale, models.StateInitiated, &models.Transition{})
	assert.ErrorIs(t, err, pkgerrors.ErrStateConflict)

	got, err := repo.GetByUUID(ctx, tx.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePaid, got.CurrentState)

	trs, err := repo.Transitions(ctx, tx.ID)
	require.NoError(t, err)
	assert.Len(t, trs, 2)
}

func TestConversations_AppendMessage(t *testing.T) {
	store := NewStore()
	repo := store.Conversations()
	ctx := context.Background()
	starter, author := uuid.New(), uuid.New()

	c := models.NewConversation(1, 2, models.StartingPagePayment, starter, author)
	require.NoError(t, repo.Create(ctx, c))
	require.NoError(t, repo.AppendMessage(ctx, &models.Message{ConversationID: c.ID, SenderID: author, Content: "Thanks"}))

	stored, ok := store.Conversation(c.ID)
	require.True(t, ok)
	require.Len(t, stored.Messages, 1)
	assert.False(t, stored.Participants[0].IsRead)
	assert.True(t, stored.Participants[1].IsRead)

	require.NoError(t, repo.MarkRead(ctx, c.ID, starter))
	stored, _ = store.Conversation(c.ID)
	assert.True(t, stored.Participants[0].IsRead)

	assert.ErrorIs(t, repo.Create(ctx, models.NewConversation(1, 2, "inbox", starter, author)), pkgerrors.ErrInvalidInput)
}

func TestBookings(t *testing.T) {
	store := NewStore()
	repo := store.Bookings()
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Hold(ctx, &models.BookingSlot{ListingID: 1, TransactionID: 10, StartOn: day, EndOn: day.AddDate(0, 0, 3)}))

	overlapping, err := repo.Overlapping(ctx, 1, day.AddDate(0, 0, 2), day.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.Len(t, overlapping, 1)

	overlapping, err = repo.Overlapping(ctx, 1, day.AddDate(0, 0, 3), day.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Empty(t, overlapping)

	require.NoError(t, repo.Release(ctx, 10))
	assert.Empty(t, store.Slots(1))
}
