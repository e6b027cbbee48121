package models

import (
	"time"

	"github.com/google/uuid"
)

type Process string

const (
	ProcessNone         Process = "none"
	ProcessPreauthorize Process = "preauthorize"
)

type Gateway string

const (
	GatewayNone   Gateway = "none"
	GatewayPaypal Gateway = "paypal"
	GatewayStripe Gateway = "stripe"
)

type Delivery string

const (
	DeliveryNone     Delivery = ""
	DeliveryShipping Delivery = "shipping"
	DeliveryPickup   Delivery = "pickup"
)

type State string

const (
	StateFree            State = "free"
	StateInitiated       State = "initiated"
	StateRequiresAction  State = "payment_intent_requires_action"
	StateActionExpired   State = "payment_intent_action_expired"
	StatePendingExternal State = "pending_ext"
	StatePaid            State = "paid"
	StateConfirmed       State = "confirmed"
	StateCompleted       State = "completed"
	StateRejected        State = "rejected"
	StateCanceled        State = "canceled"
	StateDisputed        State = "disputed"
	StateRefunded        State = "refunded"
	StateDismissed       State = "dismissed"
)

// Reason explains why a transaction ended up canceled before payment.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonConnectionIssue Reason = "connection_issue"
	ReasonDoubleBooking   Reason = "double_booking"
	ReasonDeclined        Reason = "payment_declined"
	ReasonActionExpired   Reason = "action_expired"
)

// Booking holds the reserved period of a transaction. StartOn/EndOn are calendar dates
// (UTC midnight); StartTime/EndTime are set for per-hour bookings.
type Booking struct {
	StartOn   time.Time  `json:"start_on"`
	EndOn     time.Time  `json:"end_on"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	PerHour   bool       `json:"per_hour"`
}

type Transaction struct {
	ID                    int64      `json:"-"`
	UUID                  uuid.UUID  `json:"id"`
	CommunityID           int64      `json:"-"`
	ListingID             int64      `json:"-"`
	ListingUUID           uuid.UUID  `json:"listing_id"`
	ListingTitle          string     `json:"listing_title"`
	StarterID             uuid.UUID  `json:"starter_id"`
	ListingAuthorID       uuid.UUID  `json:"listing_author_id"`
	UnitType              string     `json:"unit_type,omitempty"`
	UnitPrice             Money      `json:"unit_price"`
	Quantity              int        `json:"quantity"`
	Booking               *Booking   `json:"booking,omitempty"`
	Delivery              Delivery   `json:"delivery,omitempty"`
	ShippingPrice         *Money     `json:"shipping_price,omitempty"`
	PaymentProcess        Process    `json:"payment_process"`
	PaymentGateway        Gateway    `json:"payment_gateway"`
	CurrentState          State      `json:"current_state"`
	CancelReason          Reason     `json:"cancel_reason,omitempty"`
	Commission            Money      `json:"commission"`
	BuyerCommission       Money      `json:"buyer_commission"`
	GatewayChargeID       string     `json:"-"`
	ApprovalURL           string     `json:"approval_url,omitempty"`
	AvailableOn           *time.Time `json:"-"`
	ConversationID        int64      `json:"-"`
	LastTransitionByAdmin bool       `json:"-"`
	LastTransitionAt      time.Time  `json:"last_transition_at"`
	StarterSeenAt         *time.Time `json:"-"`
	AuthorSeenAt          *time.Time `json:"-"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// ItemTotal is unit price times quantity.
func (t *Transaction) ItemTotal() Money {
	return t.UnitPrice.Mul(int64(t.Quantity))
}

// OrderTotal is the item total plus shipping, before the buyer fee.
func (t *Transaction) OrderTotal() Money {
	total := t.ItemTotal()
	if t.ShippingPrice != nil {
		total.Cents += t.ShippingPrice.Cents
	}
	return total
}

// Total is what the buyer pays.
func (t *Transaction) Total() Money {
	total := t.OrderTotal()
	total.Cents += t.BuyerCommission.Cents
	return total
}

// SellerGets is the total minus both commissions.
func (t *Transaction) SellerGets() Money {
	total := t.Total()
	total.Cents -= t.Commission.Cents + t.BuyerCommission.Cents
	return total
}

func (t *Transaction) IsBooking() bool {
	return t.Booking != nil
}

// Participant reports whether person is the buyer or the seller.
func (t *Transaction) Participant(person uuid.UUID) bool {
	return person == t.StarterID || person == t.ListingAuthorID
}

// Transition is one applied state change; the history is append-only.
type Transition struct {
	ID            int64             `json:"-"`
	TransactionID int64             `json:"-"`
	From          State             `json:"from"`
	To            State             `json:"to"`
	Action        string            `json:"action"`
	ActorID       uuid.UUID         `json:"actor_id"`
	ByAdmin       bool              `json:"by_admin"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}
