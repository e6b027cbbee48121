package models

import (
	"errors"
	"testing"
	"time"

	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney(t *testing.T) {
	t.Run("Add same currency", func(t *testing.T) {
		sum, err := NewMoney(1000, "USD").Add(NewMoney(250, "USD"))
		require.NoError(t, err)
		assert.Equal(t, NewMoney(1250, "USD"), sum)
	})

	t.Run("Add zero without currency", func(t *testing.T) {
		sum, err := Money{}.Add(NewMoney(250, "EUR"))
		require.NoError(t, err)
		assert.Equal(t, NewMoney(250, "EUR"), sum)
	})

	t.Run("Currency mismatch", func(t *testing.T) {
		_, err := NewMoney(100, "USD").Sub(NewMoney(50, "EUR"))
		assert.True(t, errors.Is(err, pkgerrors.ErrCurrencyMismatch))
	})

	t.Run("String", func(t *testing.T) {
		assert.Equal(t, "30.05 USD", NewMoney(3005, "USD").String())
		assert.Equal(t, "-0.50 USD", NewMoney(-50, "USD").String())
	})
}

func TestTransactionTotals(t *testing.T) {
	shipping := NewMoney(500, "USD")
	tx := &Transaction{
		UnitPrice:       NewMoney(1000, "USD"),
		Quantity:        3,
		ShippingPrice:   &shipping,
		Commission:      NewMoney(350, "USD"),
		BuyerCommission: NewMoney(100, "USD"),
	}

	assert.Equal(t, NewMoney(3000, "USD"), tx.ItemTotal())
	assert.Equal(t, NewMoney(3500, "USD"), tx.OrderTotal())
	assert.Equal(t, NewMoney(3600, "USD"), tx.Total())
	assert.Equal(t, NewMoney(3150, "USD"), tx.SellerGets())
}

func TestBookingSlotOverlaps(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }
	slot := BookingSlot{StartOn: day(10), EndOn: day(12)}

	tests := []struct {
		name     string
		start    time.Time
		end      time.Time
		overlaps bool
	}{
		{"same range", day(10), day(12), true},
		{"inside", day(11), day(12), true},
		{"ends on start", day(8), day(10), false},
		{"starts on end", day(12), day(14), false},
		{"covers", day(9), day(13), true},
		{"single day inside", day(11), day(11), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.overlaps, slot.Overlaps(tt.start, tt.end))
		})
	}
}

func TestSellerAccountReady(t *testing.T) {
	var missing *SellerAccount
	assert.False(t, missing.Ready())
	assert.False(t, (&SellerAccount{Gateway: GatewayStripe, PayoutID: "acct_1"}).Ready())
	assert.True(t, (&SellerAccount{Gateway: GatewayStripe, PayoutID: "acct_1", BankID: "ba_1"}).Ready())
	assert.True(t, (&SellerAccount{Gateway: GatewayPaypal, PayoutID: "M1", Verified: true}).Ready())
}
