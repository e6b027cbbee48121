// Package stripegw charges through Stripe PaymentIntents with manual capture and
// pays sellers out through Connect, in destination or separate charges mode.
package stripegw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/honeynil/marketplace-tx/internal/gateway"
	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	// BaseURL overrides the API endpoint, for stripe-mock and tests.
	BaseURL string
}

type Gateway struct {
	client        *stripe.Client
	webhookSecret string
}

func New(cfg Config) *Gateway {
	var opts []stripe.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, stripe.WithBackends(stripe.NewBackendsWithConfig(&stripe.BackendConfig{
			URL:               stripe.String(cfg.BaseURL),
			MaxNetworkRetries: stripe.Int64(0),
		})))
	}
	return &Gateway{
		client:        stripe.NewClient(cfg.SecretKey, opts...),
		webhookSecret: cfg.WebhookSecret,
	}
}

func (g *Gateway) Charge(ctx context.Context, req gateway.ChargeRequest) (gateway.ChargeResult, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(req.Amount.Cents),
		Currency:      stripe.String(strings.ToLower(req.Amount.Currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:       stripe.Bool(true),
	}
	if req.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethodID)
	}
	if req.ReturnURL != "" {
		params.ReturnURL = stripe.String(req.ReturnURL)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.AddMetadata("transaction_id", req.TransactionUUID.String())
	params.SetIdempotencyKey("charge-" + req.TransactionUUID.String())

	switch req.ChargesMode {
	case models.ChargesModeDestination:
		if req.Seller == nil || req.Seller.PayoutID == "" {
			return gateway.ChargeResult{}, fmt.Errorf("%w: stripe destination charge", pkgerrors.ErrSellerAccountMissing)
		}
		params.TransferData = &stripe.PaymentIntentCreateTransferDataParams{
			Destination: stripe.String(req.Seller.PayoutID),
		}
		params.ApplicationFeeAmount = stripe.Int64(req.Fee.Cents)
	default:
		params.TransferGroup = stripe.String(req.TransactionUUID.String())
	}

	pi, err := g.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		slog.Error("failed to create payment intent", "transaction_id", req.TransactionUUID, "error", err)
		return gateway.ChargeResult{}, paymentError(fmt.Errorf("failed to create payment intent: %w", err))
	}
	return chargeResult(pi)
}

func (g *Gateway) Confirm(ctx context.Context, chargeID string) (gateway.ChargeResult, error) {
	pi, err := g.client.V1PaymentIntents.Retrieve(ctx, chargeID, nil)
	if err != nil {
		return gateway.ChargeResult{ChargeID: chargeID}, paymentError(fmt.Errorf("failed to retrieve payment intent: %w", err))
	}
	return chargeResult(pi)
}

func chargeResult(pi *stripe.PaymentIntent) (gateway.ChargeResult, error) {
	res := gateway.ChargeResult{ChargeID: pi.ID}
	switch pi.Status {
	case stripe.PaymentIntentStatusRequiresCapture, stripe.PaymentIntentStatusSucceeded:
		res.Status = gateway.ChargeAuthorized
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		res.Status = gateway.ChargeRequiresAction
		if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
			res.RedirectURL = pi.NextAction.RedirectToURL.URL
		}
	case stripe.PaymentIntentStatusProcessing:
		res.Status = gateway.ChargePending
	default:
		return res, pkgerrors.NewPaymentError(pkgerrors.CodePaymentDeclined, fmt.Errorf("payment intent %s is %s", pi.ID, pi.Status))
	}
	return res, nil
}

func (g *Gateway) Capture(ctx context.Context, chargeID string) (gateway.CaptureResult, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.AddExpand("latest_charge.balance_transaction")
	params.SetIdempotencyKey("capture-" + chargeID)

	pi, err := g.client.V1PaymentIntents.Capture(ctx, chargeID, params)
	if err != nil {
		slog.Error("failed to capture payment intent", "payment_intent_id", chargeID, "error", err)
		return gateway.CaptureResult{}, paymentError(fmt.Errorf("failed to capture payment intent: %w", err))
	}

	res := gateway.CaptureResult{Status: gateway.CaptureCompleted}
	if pi.Status == stripe.PaymentIntentStatusProcessing {
		res.Status = gateway.CapturePending
	}
	if pi.LatestCharge != nil && pi.LatestCharge.BalanceTransaction != nil && pi.LatestCharge.BalanceTransaction.AvailableOn > 0 {
		availableOn := time.Unix(pi.LatestCharge.BalanceTransaction.AvailableOn, 0).UTC()
		res.AvailableOn = &availableOn
	}
	return res, nil
}

func (g *Gateway) Void(ctx context.Context, chargeID string) error {
	if chargeID == "" {
		return nil
	}
	_, err := g.client.V1PaymentIntents.Cancel(ctx, chargeID, &stripe.PaymentIntentCancelParams{})
	if err == nil {
		return nil
	}
	pi, rerr := g.client.V1PaymentIntents.Retrieve(ctx, chargeID, nil)
	if rerr == nil && pi.Status == stripe.PaymentIntentStatusCanceled {
		return nil
	}
	slog.Error("failed to cancel payment intent", "payment_intent_id", chargeID, "error", err)
	return paymentError(fmt.Errorf("failed to cancel payment intent: %w", err))
}

func (g *Gateway) Refund(ctx context.Context, chargeID string) error {
	pi, err := g.client.V1PaymentIntents.Retrieve(ctx, chargeID, nil)
	if err != nil {
		return paymentError(fmt.Errorf("failed to retrieve payment intent: %w", err))
	}

	params := &stripe.RefundCreateParams{PaymentIntent: stripe.String(chargeID)}
	if pi.TransferData != nil {
		params.ReverseTransfer = stripe.Bool(true)
		params.RefundApplicationFee = stripe.Bool(true)
	}
	params.SetIdempotencyKey("refund-" + chargeID)

	if _, err := g.client.V1Refunds.Create(ctx, params); err != nil {
		slog.Error("failed to refund payment intent", "payment_intent_id", chargeID, "error", err)
		return paymentError(fmt.Errorf("failed to refund payment intent: %w", err))
	}
	return nil
}

// Payout moves the seller's share out. In separate mode the platform transfers it
// to the connected account; in destination mode the funds are already there and
// a payout to the seller's bank is created on the connected account.
func (g *Gateway) Payout(ctx context.Context, req gateway.PayoutRequest) (gateway.PayoutResult, error) {
	if req.Seller == nil || req.Seller.PayoutID == "" {
		return gateway.PayoutResult{}, pkgerrors.ErrSellerAccountMissing
	}
	currency := stripe.String(strings.ToLower(req.Amount.Currency))

	if req.ChargesMode == models.ChargesModeDestination {
		params := &stripe.PayoutCreateParams{
			Amount:   stripe.Int64(req.Amount.Cents),
			Currency: currency,
		}
		if req.Seller.BankID != "" {
			params.Destination = stripe.String(req.Seller.BankID)
		}
		params.AddMetadata("transaction_id", req.TransactionUUID.String())
		params.SetStripeAccount(req.Seller.PayoutID)
		params.SetIdempotencyKey("payout-" + req.TransactionUUID.String())

		po, err := g.client.V1Payouts.Create(ctx, params)
		if err != nil {
			slog.Error("failed to create payout", "transaction_id", req.TransactionUUID, "account", req.Seller.PayoutID, "error", err)
			return gateway.PayoutResult{}, paymentError(fmt.Errorf("failed to create payout: %w", err))
		}
		return gateway.PayoutResult{PayoutID: po.ID}, nil
	}

	params := &stripe.TransferCreateParams{
		Amount:        stripe.Int64(req.Amount.Cents),
		Currency:      currency,
		Destination:   stripe.String(req.Seller.PayoutID),
		TransferGroup: stripe.String(req.TransactionUUID.String()),
	}
	if req.ChargeID != "" {
		if pi, err := g.client.V1PaymentIntents.Retrieve(ctx, req.ChargeID, nil); err == nil && pi.LatestCharge != nil {
			params.SourceTransaction = stripe.String(pi.LatestCharge.ID)
		}
	}
	params.AddMetadata("transaction_id", req.TransactionUUID.String())
	params.SetIdempotencyKey("transfer-" + req.TransactionUUID.String())

	tr, err := g.client.V1Transfers.Create(ctx, params)
	if err != nil {
		slog.Error("failed to create transfer", "transaction_id", req.TransactionUUID, "account", req.Seller.PayoutID, "error", err)
		return gateway.PayoutResult{}, paymentError(fmt.Errorf("failed to create transfer: %w", err))
	}
	return gateway.PayoutResult{PayoutID: tr.ID}, nil
}

func (g *Gateway) ParseWebhook(_ context.Context, r *http.Request, body []byte) (*gateway.Event, error) {
	if g.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook signing secret not configured", pkgerrors.ErrWebhookSignature)
	}
	event, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), g.webhookSecret)
	if err != nil {
		slog.Warn("stripe webhook rejected", "error", err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrWebhookSignature, err)
	}

	ev := &gateway.Event{ID: event.ID, Gateway: models.GatewayStripe, Type: string(event.Type)}
	if ev.Type != "charge.dispute.closed" && !strings.HasPrefix(ev.Type, "payment_intent.") {
		return ev, nil
	}
	if event.Data == nil || event.Data.Raw == nil {
		return nil, fmt.Errorf("stripe event %s has no data", event.ID)
	}
	if ev.Type == "charge.dispute.closed" {
		return parseDispute(ev, event.Data.Raw)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to parse payment intent: %w", err)
	}
	ev.ChargeID = pi.ID

	switch ev.Type {
	case "payment_intent.amount_capturable_updated":
		ev.Kind = gateway.EventPaymentAuthorized
	case "payment_intent.requires_action":
		ev.Kind = gateway.EventPaymentRequiresAction
	case "payment_intent.payment_failed":
		ev.Kind = gateway.EventPaymentFailed
		ev.Reason = pkgerrors.CodePaymentDeclined
	case "payment_intent.canceled":
		switch pi.CancellationReason {
		case stripe.PaymentIntentCancellationReasonAbandoned, stripe.PaymentIntentCancellationReasonAutomatic:
			ev.Kind = gateway.EventPaymentActionExpired
		}
	case "payment_intent.processing":
		ev.Kind = gateway.EventCapturePending
	case "payment_intent.succeeded":
		ev.Kind = gateway.EventCaptureCompleted
	}
	return ev, nil
}

// parseDispute maps a closed dispute to the payment intent it was raised on.
// Only a won dispute changes the transaction; a lost one is left to an admin.
func parseDispute(ev *gateway.Event, raw json.RawMessage) (*gateway.Event, error) {
	var d stripe.Dispute
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to parse dispute: %w", err)
	}
	if d.PaymentIntent != nil {
		ev.ChargeID = d.PaymentIntent.ID
	}
	if d.Status == stripe.DisputeStatusWon && ev.ChargeID != "" {
		ev.Kind = gateway.EventDisputeWon
	}
	return ev, nil
}

// paymentError classifies a Stripe failure: card errors are declines, the rest
// are connection issues.
func paymentError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.Type == stripe.ErrorTypeCard {
		return pkgerrors.NewPaymentError(pkgerrors.CodePaymentDeclined, err)
	}
	return pkgerrors.NewPaymentError(pkgerrors.CodeConnectionIssue, err)
}
