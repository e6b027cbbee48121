// Package gateway is the boundary to external payment rails. Adapters live in
// subpackages; Registry hands them out wrapped with a call timeout, metrics and
// tracing.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
)

// Gateway is implemented by every payment rail. Charge places a hold that is
// later captured or voided. Failures are reported as *pkgerrors.PaymentError.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Confirm(ctx context.Context, chargeID string) (ChargeResult, error)
	Capture(ctx context.Context, chargeID string) (CaptureResult, error)
	Void(ctx context.Context, chargeID string) error
	Refund(ctx context.Context, chargeID string) error
	Payout(ctx context.Context, req PayoutRequest) (PayoutResult, error)
	ParseWebhook(ctx context.Context, r *http.Request, body []byte) (*Event, error)
}

type ChargeRequest struct {
	TransactionUUID uuid.UUID
	Amount          models.Money
	// Fee is the platform's share: seller plus buyer commission.
	Fee             models.Money
	Seller          *models.SellerAccount
	PaymentMethodID string
	ReturnURL       string
	CancelURL       string
	Description     string
	ChargesMode     models.ChargesMode
}

type ChargeStatus int

const (
	// ChargeAuthorized means funds are held and ready to capture.
	ChargeAuthorized ChargeStatus = iota
	// ChargeRequiresAction means the buyer must authenticate or approve at RedirectURL.
	ChargeRequiresAction
	// ChargePending means the gateway will report the outcome by webhook.
	ChargePending
)

func (s ChargeStatus) String() string {
	switch s {
	case ChargeAuthorized:
		return "authorized"
	case ChargeRequiresAction:
		return "requires_action"
	case ChargePending:
		return "pending"
	}
	return "unknown"
}

type ChargeResult struct {
	ChargeID    string
	Status      ChargeStatus
	RedirectURL string
}

type CaptureStatus int

const (
	CaptureCompleted CaptureStatus = iota
	CapturePending
)

type CaptureResult struct {
	Status CaptureStatus
	// AvailableOn is when captured funds become available for payout, if known.
	AvailableOn *time.Time
}

type PayoutRequest struct {
	TransactionUUID uuid.UUID
	ChargeID        string
	Amount          models.Money
	Seller          *models.SellerAccount
	ChargesMode     models.ChargesMode
}

type PayoutResult struct {
	PayoutID string
}

type EventKind int

const (
	EventIgnored EventKind = iota
	EventPaymentAuthorized
	EventPaymentRequiresAction
	EventPaymentFailed
	EventPaymentActionExpired
	EventBuyerApproved
	EventCaptureCompleted
	EventCapturePending
	EventCaptureFailed
	EventDisputeWon
)

func (k EventKind) String() string {
	switch k {
	case EventPaymentAuthorized:
		return "payment_authorized"
	case EventPaymentRequiresAction:
		return "payment_requires_action"
	case EventPaymentFailed:
		return "payment_failed"
	case EventPaymentActionExpired:
		return "payment_action_expired"
	case EventBuyerApproved:
		return "buyer_approved"
	case EventCaptureCompleted:
		return "capture_completed"
	case EventCapturePending:
		return "capture_pending"
	case EventCaptureFailed:
		return "capture_failed"
	case EventDisputeWon:
		return "dispute_won"
	}
	return "ignored"
}

// Event is a verified webhook notification reduced to what the transaction
// lifecycle needs.
type Event struct {
	ID       string
	Gateway  models.Gateway
	Type     string
	Kind     EventKind
	ChargeID string
	Reason   pkgerrors.Code
}
