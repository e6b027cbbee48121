package models

import (
	"time"

	"github.com/google/uuid"
)

// QuantitySelector is how a listing asks for the quantity: by day, night, hour or number.
type QuantitySelector string

const (
	SelectorNone   QuantitySelector = ""
	SelectorNumber QuantitySelector = "number"
	SelectorDay    QuantitySelector = "day"
	SelectorNight  QuantitySelector = "night"
	SelectorHour   QuantitySelector = "hour"
)

// DateBased reports whether the selector requires a start and end date.
func (s QuantitySelector) DateBased() bool {
	return s == SelectorDay || s == SelectorNight
}

type Listing struct {
	ID                      int64            `json:"-"`
	UUID                    uuid.UUID        `json:"id"`
	CommunityID             int64            `json:"-"`
	Title                   string           `json:"title"`
	AuthorID                uuid.UUID        `json:"author_id"`
	Price                   Money            `json:"price"`
	UnitType                string           `json:"unit_type,omitempty"`
	QuantitySelector        QuantitySelector `json:"quantity_selector,omitempty"`
	TransactionProcessID    int64            `json:"-"`
	ShippingEnabled         bool             `json:"shipping_enabled"`
	PickupEnabled           bool             `json:"pickup_enabled"`
	ShippingPrice           *Money           `json:"shipping_price,omitempty"`
	ShippingPriceAdditional *Money           `json:"shipping_price_additional,omitempty"`
	Closed                  bool             `json:"closed"`
	Deleted                 bool             `json:"deleted"`
}

// SellerAccount holds a seller's payout credentials at one gateway.
// For Stripe PayoutID is the connected account and BankID the external account;
// for PayPal PayoutID is the merchant id or payout email.
type SellerAccount struct {
	PersonID  uuid.UUID `json:"person_id"`
	Gateway   Gateway   `json:"gateway"`
	PayoutID  string    `json:"payout_id"`
	BankID    string    `json:"bank_id,omitempty"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

// Ready reports whether payouts can be sent to the account.
func (a *SellerAccount) Ready() bool {
	if a == nil || a.PayoutID == "" {
		return false
	}
	if a.Gateway == GatewayStripe {
		return a.BankID != ""
	}
	return a.Verified
}

// BookingSlot is a held date range on a listing.
type BookingSlot struct {
	ListingID     int64     `json:"-"`
	TransactionID int64     `json:"-"`
	StartOn       time.Time `json:"start_on"`
	EndOn         time.Time `json:"end_on"`
}

// Overlaps reports whether two half-open date ranges intersect. A zero-length
// range occupies its start day.
func (s BookingSlot) Overlaps(startOn, endOn time.Time) bool {
	aEnd := s.EndOn
	if !aEnd.After(s.StartOn) {
		aEnd = s.StartOn.AddDate(0, 0, 1)
	}
	bEnd := endOn
	if !bEnd.After(startOn) {
		bEnd = startOn.AddDate(0, 0, 1)
	}
	return s.StartOn.Before(bEnd) && startOn.Before(aEnd)
}
