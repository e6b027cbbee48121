package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd(cents int64) models.Money { return models.NewMoney(cents, "USD") }

func pct(n int) *int { return &n }

func TestCalculateQuantity(t *testing.T) {
	day1 := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	day3 := time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC)
	lateDay1 := time.Date(2026, 7, 1, 23, 59, 0, 0, time.UTC)
	earlyDay3 := time.Date(2026, 7, 3, 0, 1, 0, 0, time.UTC)

	assert.Equal(t, 2, CalculateQuantity(true, &day1, &day3, 0))
	assert.Equal(t, 2, CalculateQuantity(true, &lateDay1, &earlyDay3, 0))
	assert.Equal(t, 1, CalculateQuantity(true, &day1, &day1, 0))
	assert.Equal(t, 1, CalculateQuantity(true, nil, &day3, 0))
	assert.Equal(t, 4, CalculateQuantity(false, nil, nil, 4))
	assert.Equal(t, 1, CalculateQuantity(false, nil, nil, 0))
}

func TestCalculateHours(t *testing.T) {
	start := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(150 * time.Minute)

	assert.Equal(t, 3, CalculateHours(&start, &end))
	assert.Equal(t, 1, CalculateHours(&start, &start))
}

func TestShippingPrice(t *testing.T) {
	base, extra := usd(500), usd(200)
	listing := &models.Listing{ShippingPrice: &base, ShippingPriceAdditional: &extra}

	assert.Nil(t, ShippingPrice(listing, models.DeliveryPickup, 3))
	assert.Equal(t, usd(500), *ShippingPrice(listing, models.DeliveryShipping, 1))
	assert.Equal(t, usd(900), *ShippingPrice(listing, models.DeliveryShipping, 3))
}

func TestCalculate(t *testing.T) {
	t.Run("Percentage above minimum", func(t *testing.T) {
		b, err := Calculate(Input{
			Currency:      "USD",
			UnitPrice:     usd(1000),
			Quantity:      3,
			SellerPercent: pct(10),
			SellerMinimum: usd(50),
		})
		require.NoError(t, err)
		assert.Equal(t, usd(3000), b.ItemTotal)
		assert.Equal(t, usd(300), b.Commission)
		assert.Equal(t, usd(3000), b.Total)
		assert.Equal(t, usd(2700), b.SellerGets)
		require.NotNil(t, b.Subtotal)
	})

	t.Run("Minimum fee wins", func(t *testing.T) {
		b, err := Calculate(Input{UnitPrice: usd(300), Quantity: 1, SellerPercent: pct(10), SellerMinimum: usd(50)})
		require.NoError(t, err)
		assert.Equal(t, usd(50), b.Commission)
		assert.Nil(t, b.Subtotal)
	})

	t.Run("Buyer fee added to total", func(t *testing.T) {
		b, err := Calculate(Input{
			Currency:      "USD",
			UnitPrice:     usd(1000),
			Quantity:      3,
			SellerPercent: pct(10),
			BuyerPercent:  pct(5),
		})
		require.NoError(t, err)
		assert.Equal(t, usd(150), b.BuyerCommission)
		assert.Equal(t, usd(3150), b.Total)
		assert.Equal(t, usd(2700), b.SellerGets)
	})

	t.Run("Shipping is part of the commission base", func(t *testing.T) {
		shipping := usd(500)
		b, err := Calculate(Input{UnitPrice: usd(1000), Quantity: 1, Shipping: &shipping, SellerPercent: pct(10)})
		require.NoError(t, err)
		assert.Equal(t, usd(150), b.Commission)
		assert.Equal(t, usd(1500), b.Total)
		require.NotNil(t, b.Subtotal)
		assert.Equal(t, usd(1000), *b.Subtotal)
	})

	t.Run("Rounds half up", func(t *testing.T) {
		b, err := Calculate(Input{UnitPrice: usd(1005), Quantity: 1, SellerPercent: pct(10)})
		require.NoError(t, err)
		assert.Equal(t, usd(101), b.Commission)
	})

	t.Run("Capped at order amount", func(t *testing.T) {
		b, err := Calculate(Input{UnitPrice: usd(30), Quantity: 1, SellerMinimum: usd(50)})
		require.NoError(t, err)
		assert.Equal(t, usd(30), b.Commission)
		assert.Equal(t, usd(0), b.SellerGets)
	})

	t.Run("No commission configured", func(t *testing.T) {
		b, err := Calculate(Input{UnitPrice: usd(1000), Quantity: 2, IsBooking: true})
		require.NoError(t, err)
		assert.Equal(t, usd(0), b.Commission)
		assert.Equal(t, usd(2000), b.SellerGets)
	})

	t.Run("Currency mismatch", func(t *testing.T) {
		_, err := Calculate(Input{Currency: "EUR", UnitPrice: usd(1000), Quantity: 1})
		assert.True(t, errors.Is(err, pkgerrors.ErrCurrencyMismatch))
	})
}
