package postgres_test

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/models"
	"github.com/honeynil/marketplace-tx/internal/repository/postgres"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingRepository_GetByUUID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewListingRepository(db)
	ctx := context.Background()
	columns := []string{"id", "uuid", "community_id", "title", "author_id", "price_cents", "currency", "unit_type", "quantity_selector",
		"transaction_process_id", "shipping_enabled", "pickup_enabled", "shipping_price_cents", "shipping_price_additional_cents", "closed", "deleted"}

	t.Run("Success", func(t *testing.T) {
		id, author := uuid.New(), uuid.New()
		mock.ExpectQuery(regexp.QuoteMeta(`FROM listings WHERE uuid = $1`)).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(7, id.String(), 1, "Bike", author.String(), 1500, "EUR", "day", "day", 3, true, false, 500, 100, false, false))

		l, err := repo.GetByUUID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(7), l.ID)
		assert.Equal(t, author, l.AuthorID)
		assert.Equal(t, models.NewMoney(1500, "EUR"), l.Price)
		assert.Equal(t, models.SelectorDay, l.QuantitySelector)
		require.NotNil(t, l.ShippingPriceAdditional)
		assert.Equal(t, int64(100), l.ShippingPriceAdditional.Cents)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(regexp.QuoteMeta(`FROM listings WHERE uuid = $1`)).
			WithArgs(id).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByUUID(ctx, id)
		assert.ErrorIs(t, err, pkgerrors.ErrListingNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCommunityRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewCommunityRepository(db)
	ctx := context.Background()

	t.Run("GetByID", func(t *testing.T) {
		id, admin := uuid.New(), uuid.New()
		mock.ExpectQuery(regexp.QuoteMeta(`FROM communities WHERE id = $1`)).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "uuid", "currency", "active_payment_types", "transaction_agreement_in_use", "stripe_charges_mode", "admin_ids"}).
				AddRow(1, id.String(), "USD", "{stripe,paypal}", true, "separate", "{"+admin.String()+"}"))

		c, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []models.Gateway{models.GatewayStripe, models.GatewayPaypal}, c.ActivePaymentTypes)
		assert.Equal(t, models.ChargesModeSeparate, c.StripeChargesMode)
		assert.Equal(t, []uuid.UUID{admin}, c.AdminIDs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("PaymentSettings", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM payment_settings WHERE community_id = $1 AND active ORDER BY id`)).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "community_id", "payment_gateway", "payment_process", "active", "commission_from_seller", "commission_from_buyer",
				"minimum_transaction_fee_cents", "minimum_buyer_transaction_fee_cents", "minimum_price_cents", "currency",
				"confirmation_after_days", "api_verified", "api_credentials"}).
				AddRow(1, 1, "stripe", "preauthorize", true, 10, nil, 50, 0, 100, "USD", 14, true, nil))

		settings, err := repo.PaymentSettings(ctx, 1)
		require.NoError(t, err)
		require.Len(t, settings, 1)
		s := settings[0]
		assert.Equal(t, models.GatewayStripe, s.Gateway)
		require.NotNil(t, s.CommissionFromSeller)
		assert.Equal(t, 10, *s.CommissionFromSeller)
		assert.Nil(t, s.CommissionFromBuyer)
		assert.Equal(t, models.NewMoney(50, "USD"), s.MinimumTransactionFee)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetProcessNotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM transaction_processes WHERE id = $1`)).
			WithArgs(int64(9)).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetProcess(ctx, 9)
		assert.ErrorIs(t, err, pkgerrors.ErrProcessNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSellerAccountRepository_ListByPerson(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewSellerAccountRepository(db)
	person := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM seller_accounts WHERE person_id = $1`)).
		WithArgs(person).
		WillReturnRows(sqlmock.NewRows([]string{"person_id", "payment_gateway", "payout_id", "bank_id", "verified", "created_at"}).
			AddRow(person.String(), "stripe", "acct_1", "ba_1", true, time.Now()))

	accounts, err := repo.ListByPerson(context.Background(), person)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.True(t, accounts[0].Ready())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewConversationRepository(db)
	ctx := context.Background()
	starter, author := uuid.New(), uuid.New()
	now := time.Now().UTC()

	t.Run("Success", func(t *testing.T) {
		c := models.NewConversation(1, 7, models.StartingPagePayment, starter, author)
		c.Messages = []models.Message{{SenderID: starter, Content: "Hi!", CreatedAt: now}}

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO conversations`)).
			WithArgs(int64(1), int64(7), models.StartingPagePayment, now).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(3, now))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO participations`)).
			WithArgs(int64(3), starter, true, true, nil, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO participations`)).
			WithArgs(int64(3), author, false, false, nil, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO messages`)).
			WithArgs(int64(3), starter, "Hi!", now).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
		mock.ExpectCommit()

		require.NoError(t, repo.Create(ctx, c))
		assert.Equal(t, int64(3), c.ID)
		assert.Equal(t, int64(11), c.Messages[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InvalidStartingPage", func(t *testing.T) {
		c := models.NewConversation(1, 7, models.StartingPage("inbox"), starter, author)
		err := repo.Create(ctx, c)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ParticipantFails", func(t *testing.T) {
		c := models.NewConversation(1, 7, models.StartingPageListing, starter, author)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO conversations`)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(4, now))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO participations`)).
			WillReturnError(fmt.Errorf("database error"))
		mock.ExpectRollback()

		err := repo.Create(ctx, c)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConversationRepository_AppendMessage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewConversationRepository(db)
	sender := uuid.New()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO messages`)).
		WithArgs(int64(3), sender, "Accepted", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE conversations SET last_message_at = $1 WHERE id = $2`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE participations SET is_read = TRUE, last_sent_at = $1`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE participations SET is_read = FALSE, last_received_at = $1`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	m := &models.Message{ConversationID: 3, SenderID: sender, Content: "Accepted", CreatedAt: now}
	require.NoError(t, repo.AppendMessage(context.Background(), m))
	assert.Equal(t, int64(12), m.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewBookingRepository(db)
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("OverlappingSameDay", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM booking_slots`)).
			WithArgs(int64(7), start.AddDate(0, 0, 1), start).
			WillReturnRows(sqlmock.NewRows([]string{"listing_id", "transaction_id", "start_on", "end_on"}).
				AddRow(7, 40, start, start.AddDate(0, 0, 2)))

		slots, err := repo.Overlapping(ctx, 7, start, start)
		require.NoError(t, err)
		require.Len(t, slots, 1)
		assert.Equal(t, int64(40), slots[0].TransactionID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Hold", func(t *testing.T) {
		slot := &models.BookingSlot{ListingID: 7, TransactionID: 41, StartOn: start, EndOn: start.AddDate(0, 0, 3)}
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO booking_slots`)).
			WithArgs(int64(7), int64(41), slot.StartOn, slot.EndOn).
			WillReturnResult(sqlmock.NewResult(1, 1))

		assert.NoError(t, repo.Hold(ctx, slot))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Release", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM booking_slots WHERE transaction_id = $1`)).
			WithArgs(int64(41)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Release(ctx, 41))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
