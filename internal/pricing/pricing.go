// Package pricing computes quantities and the money breakdown of a transaction.
package pricing

import (
	"fmt"
	"math"
	"time"

	"github.com/honeynil/marketplace-tx/internal/models"
	"github.com/honeynil/marketplace-tx/internal/validation"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"github.com/shopspring/decimal"
)

// CalculateQuantity returns the number of whole calendar days between startOn
// and endOn for a booking, and quantity otherwise. The result is at least 1.
func CalculateQuantity(isBooking bool, startOn, endOn *time.Time, quantity int) int {
	if isBooking {
		if startOn == nil || endOn == nil {
			return 1
		}
		return max(Duration(*startOn, *endOn), 1)
	}
	return max(quantity, 1)
}

// Duration is the number of calendar days from start to end, ignoring time of day.
func Duration(start, end time.Time) int {
	return int(validation.Day(end).Sub(validation.Day(start)).Hours() / 24)
}

// CalculateHours returns the started hours between two times, at least 1.
func CalculateHours(startTime, endTime *time.Time) int {
	if startTime == nil || endTime == nil {
		return 1
	}
	return max(int(math.Ceil(endTime.Sub(*startTime).Hours())), 1)
}

// ShippingPrice is the base shipping price plus the additional price for each
// unit after the first. It is nil unless the buyer chose shipping.
func ShippingPrice(listing *models.Listing, delivery models.Delivery, quantity int) *models.Money {
	if delivery != models.DeliveryShipping || listing.ShippingPrice == nil {
		return nil
	}
	price := *listing.ShippingPrice
	if listing.ShippingPriceAdditional != nil && quantity > 1 {
		price.Cents += listing.ShippingPriceAdditional.Cents * int64(quantity-1)
	}
	return &price
}

type Input struct {
	Currency      string
	UnitPrice     models.Money
	Quantity      int
	IsBooking     bool
	Shipping      *models.Money
	SellerPercent *int
	SellerMinimum models.Money
	BuyerPercent  *int
	BuyerMinimum  models.Money
}

type Breakdown struct {
	ItemTotal       models.Money  `json:"item_total"`
	Subtotal        *models.Money `json:"subtotal,omitempty"`
	Shipping        *models.Money `json:"shipping,omitempty"`
	Commission      models.Money  `json:"commission"`
	BuyerCommission models.Money  `json:"buyer_commission"`
	Total           models.Money  `json:"total"`
	SellerGets      models.Money  `json:"seller_gets"`
}

// Calculate builds the breakdown. Commissions are charged on the item total plus
// shipping and never exceed it.
func Calculate(in Input) (Breakdown, error) {
	currency := in.Currency
	if currency == "" {
		currency = in.UnitPrice.Currency
	}
	ref := models.NewMoney(0, currency)
	for _, m := range []models.Money{in.UnitPrice, in.SellerMinimum, in.BuyerMinimum} {
		if !ref.SameCurrency(m) {
			return Breakdown{}, fmt.Errorf("%w: expected %s, got %s", pkgerrors.ErrCurrencyMismatch, currency, m.Currency)
		}
	}

	var b Breakdown
	b.ItemTotal = models.NewMoney(in.UnitPrice.Cents*int64(max(in.Quantity, 1)), currency)

	order := b.ItemTotal
	if in.Shipping != nil {
		if !ref.SameCurrency(*in.Shipping) {
			return Breakdown{}, fmt.Errorf("%w: expected %s, got %s", pkgerrors.ErrCurrencyMismatch, currency, in.Shipping.Currency)
		}
		shipping := models.NewMoney(in.Shipping.Cents, currency)
		b.Shipping = &shipping
		order.Cents += shipping.Cents
	}

	if in.IsBooking || in.Quantity > 1 || in.Shipping != nil {
		subtotal := b.ItemTotal
		b.Subtotal = &subtotal
	}

	b.Commission = Commission(order, in.SellerPercent, in.SellerMinimum)
	b.BuyerCommission = Commission(order, in.BuyerPercent, in.BuyerMinimum)

	b.Total = models.NewMoney(order.Cents+b.BuyerCommission.Cents, currency)
	b.SellerGets = models.NewMoney(b.Total.Cents-b.Commission.Cents-b.BuyerCommission.Cents, currency)
	return b, nil
}

// Commission is max(percent of base, minimum), rounded half up to minor units
// and capped at base.
func Commission(base models.Money, percent *int, minimum models.Money) models.Money {
	pct := 0
	if percent != nil {
		pct = *percent
	}
	if pct <= 0 && minimum.Cents <= 0 {
		return models.NewMoney(0, base.Currency)
	}

	cents := decimal.NewFromInt(base.Cents).
		Mul(decimal.NewFromInt(int64(pct))).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
	if minimum.Cents > cents {
		cents = minimum.Cents
	}
	if cents > base.Cents {
		cents = base.Cents
	}
	if cents < 0 {
		cents = 0
	}
	return models.NewMoney(cents, base.Currency)
}
