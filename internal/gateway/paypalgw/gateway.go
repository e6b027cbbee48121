// Package paypalgw charges through PayPal Orders v2 with AUTHORIZE intent. The
// buyer approves the order on PayPal; the authorization is then captured on
// accept with the seller as payee and the platform commission as fee.
package paypalgw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/honeynil/marketplace-tx/internal/gateway"
	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"
)

type Config struct {
	ClientID  string
	Secret    string
	Mode      string
	WebhookID string
	// ReturnURL and CancelURL apply when a charge request carries none.
	ReturnURL string
	CancelURL string
	// BaseURL overrides the API base selected by Mode.
	BaseURL string
}

type Gateway struct {
	client    *paypal.Client
	webhookID string
	returnURL string
	cancelURL string
}

func New(cfg Config) (*Gateway, error) {
	base := cfg.BaseURL
	if base == "" {
		base = paypal.APIBaseSandBox
		if cfg.Mode == "live" {
			base = paypal.APIBaseLive
		}
	}
	client, err := paypal.NewClient(cfg.ClientID, cfg.Secret, base)
	if err != nil {
		return nil, fmt.Errorf("failed to create paypal client: %w", err)
	}
	return &Gateway{client: client, webhookID: cfg.WebhookID, returnURL: cfg.ReturnURL, cancelURL: cfg.CancelURL}, nil
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type order struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Links         []paypal.Link  `json:"links"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id"`
	Payments    struct {
		Authorizations []payment `json:"authorizations"`
		Captures       []payment `json:"captures"`
	} `json:"payments"`
}

type payment struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (o *order) link(rel string) string {
	for _, l := range o.Links {
		if l.Rel == rel {
			return l.Href
		}
	}
	return ""
}

func (o *order) authorization() *payment {
	for i := range o.PurchaseUnits {
		if auths := o.PurchaseUnits[i].Payments.Authorizations; len(auths) > 0 {
			return &auths[len(auths)-1]
		}
	}
	return nil
}

func (o *order) capture() *payment {
	for i := range o.PurchaseUnits {
		if caps := o.PurchaseUnits[i].Payments.Captures; len(caps) > 0 {
			return &caps[len(caps)-1]
		}
	}
	return nil
}

func (g *Gateway) send(ctx context.Context, method, path string, payload any, requestID string, out any) error {
	req, err := g.client.NewRequest(ctx, method, g.client.APIBase+path, payload)
	if err != nil {
		return fmt.Errorf("failed to build paypal request: %w", err)
	}
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}
	return g.client.SendWithAuth(req, out)
}

func (g *Gateway) getOrder(ctx context.Context, orderID string) (*order, error) {
	var o order
	if err := g.send(ctx, http.MethodGet, "/v2/checkout/orders/"+orderID, nil, "", &o); err != nil {
		return nil, paymentError(fmt.Errorf("failed to get paypal order: %w", err))
	}
	return &o, nil
}

// Charge creates the order and hands back the buyer approval link.
func (g *Gateway) Charge(ctx context.Context, req gateway.ChargeRequest) (gateway.ChargeResult, error) {
	unit := map[string]any{
		"reference_id": req.TransactionUUID.String(),
		"custom_id":    req.TransactionUUID.String(),
		"amount":       money(req.Amount),
	}
	if req.Description != "" {
		unit["description"] = req.Description
	}
	if req.Seller != nil && req.Seller.PayoutID != "" {
		unit["payee"] = map[string]string{"merchant_id": req.Seller.PayoutID}
		if req.Fee.Cents > 0 {
			unit["payment_instruction"] = map[string]any{
				"platform_fees": []map[string]any{{"amount": money(req.Fee)}},
			}
		}
	}
	returnURL, cancelURL := req.ReturnURL, req.CancelURL
	if returnURL == "" {
		returnURL = g.returnURL
	}
	if cancelURL == "" {
		cancelURL = g.cancelURL
	}
	body := map[string]any{
		"intent":         paypal.OrderIntentAuthorize,
		"purchase_units": []any{unit},
		"application_context": map[string]string{
			"return_url":  returnURL,
			"cancel_url":  cancelURL,
			"user_action": "CONTINUE",
		},
	}

	var o order
	if err := g.send(ctx, http.MethodPost, "/v2/checkout/orders", body, "order-"+req.TransactionUUID.String(), &o); err != nil {
		slog.Error("failed to create paypal order", "transaction_id", req.TransactionUUID, "error", err)
		return gateway.ChargeResult{}, paymentError(fmt.Errorf("failed to create paypal order: %w", err))
	}
	return gateway.ChargeResult{
		ChargeID:    o.ID,
		Status:      gateway.ChargeRequiresAction,
		RedirectURL: o.link("approve"),
	}, nil
}

// Confirm authorizes an approved order. An order the buyer has not approved yet
// still requires action.
func (g *Gateway) Confirm(ctx context.Context, orderID string) (gateway.ChargeResult, error) {
	o, err := g.getOrder(ctx, orderID)
	if err != nil {
		return gateway.ChargeResult{ChargeID: orderID}, err
	}
	res := gateway.ChargeResult{ChargeID: orderID}

	switch o.Status {
	case "CREATED", "PAYER_ACTION_REQUIRED":
		res.Status = gateway.ChargeRequiresAction
		res.RedirectURL = o.link("approve")
		return res, nil
	case "APPROVED":
		var authorized order
		if err := g.send(ctx, http.MethodPost, "/v2/checkout/orders/"+orderID+"/authorize", map[string]any{}, "authorize-"+orderID, &authorized); err != nil {
			slog.Error("failed to authorize paypal order", "order_id", orderID, "error", err)
			return res, paymentError(fmt.Errorf("failed to authorize paypal order: %w", err))
		}
		o = &authorized
	case "COMPLETED":
	default:
		return res, pkgerrors.NewPaymentError(pkgerrors.CodePaymentDeclined, fmt.Errorf("paypal order %s is %s", orderID, o.Status))
	}

	auth := o.authorization()
	if auth == nil {
		return res, pkgerrors.NewPaymentError(pkgerrors.CodeConnectionIssue, fmt.Errorf("paypal order %s has no authorization", orderID))
	}
	switch auth.Status {
	case "CREATED", "CAPTURED", "PARTIALLY_CAPTURED":
		res.Status = gateway.ChargeAuthorized
	case "PENDING":
		res.Status = gateway.ChargePending
	default:
		return res, pkgerrors.NewPaymentError(pkgerrors.CodePaymentDeclined, fmt.Errorf("paypal authorization %s is %s", auth.ID, auth.Status))
	}
	return res, nil
}

func (g *Gateway) Capture(ctx context.Context, orderID string) (gateway.CaptureResult, error) {
	o, err := g.getOrder(ctx, orderID)
	if err != nil {
		return gateway.CaptureResult{}, err
	}
	auth := o.authorization()
	if auth == nil {
		return gateway.CaptureResult{}, pkgerrors.NewPaymentError(pkgerrors.CodeConnectionIssue, fmt.Errorf("paypal order %s has no authorization", orderID))
	}

	var captured payment
	body := map[string]any{"final_capture": true}
	if err := g.send(ctx, http.MethodPost, "/v2/payments/authorizations/"+auth.ID+"/capture", body, "capture-"+auth.ID, &captured); err != nil {
		slog.Error("failed to capture paypal authorization", "order_id", orderID, "authorization_id", auth.ID, "error", err)
		return gateway.CaptureResult{}, paymentError(fmt.Errorf("failed to capture paypal authorization: %w", err))
	}

	switch captured.Status {
	case "COMPLETED":
		return gateway.CaptureResult{Status: gateway.CaptureCompleted}, nil
	case "PENDING":
		return gateway.CaptureResult{Status: gateway.CapturePending}, nil
	}
	return gateway.CaptureResult{}, pkgerrors.NewPaymentError(pkgerrors.CodePaymentDeclined, fmt.Errorf("paypal capture %s is %s", captured.ID, captured.Status))
}

// Void releases the authorization. An order that was never authorized simply expires.
func (g *Gateway) Void(ctx context.Context, orderID string) error {
	if orderID == "" {
		return nil
	}
	o, err := g.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	auth := o.authorization()
	if auth == nil || auth.Status == "VOIDED" {
		return nil
	}
	if err := g.send(ctx, http.MethodPost, "/v2/payments/authorizations/"+auth.ID+"/void", nil, "void-"+auth.ID, nil); err != nil {
		slog.Error("failed to void paypal authorization", "order_id", orderID, "authorization_id", auth.ID, "error", err)
		return paymentError(fmt.Errorf("failed to void paypal authorization: %w", err))
	}
	return nil
}

func (g *Gateway) Refund(ctx context.Context, orderID string) error {
	o, err := g.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	capture := o.capture()
	if capture == nil {
		return pkgerrors.NewPaymentError(pkgerrors.CodeConnectionIssue, fmt.Errorf("paypal order %s has no capture", orderID))
	}
	if err := g.send(ctx, http.MethodPost, "/v2/payments/captures/"+capture.ID+"/refund", map[string]any{}, "refund-"+capture.ID, nil); err != nil {
		slog.Error("failed to refund paypal capture", "order_id", orderID, "capture_id", capture.ID, "error", err)
		return paymentError(fmt.Errorf("failed to refund paypal capture: %w", err))
	}
	return nil
}

// Payout sends money to the seller's PayPal account through the Payouts API.
func (g *Gateway) Payout(ctx context.Context, req gateway.PayoutRequest) (gateway.PayoutResult, error) {
	if req.Seller == nil || req.Seller.PayoutID == "" {
		return gateway.PayoutResult{}, pkgerrors.ErrSellerAccountMissing
	}
	recipientType := "PAYPAL_ID"
	if strings.Contains(req.Seller.PayoutID, "@") {
		recipientType = "EMAIL"
	}
	body := map[string]any{
		"sender_batch_header": map[string]string{
			"sender_batch_id": "payout-" + req.TransactionUUID.String(),
			"email_subject":   "You have a payout",
		},
		"items": []map[string]any{{
			"recipient_type": recipientType,
			"receiver":       req.Seller.PayoutID,
			"amount":         map[string]string{"currency": req.Amount.Currency, "value": value(req.Amount)},
			"sender_item_id": req.TransactionUUID.String(),
		}},
	}

	var resp struct {
		BatchHeader struct {
			PayoutBatchID string `json:"payout_batch_id"`
		} `json:"batch_header"`
	}
	if err := g.send(ctx, http.MethodPost, "/v1/payments/payouts", body, "payout-"+req.TransactionUUID.String(), &resp); err != nil {
		slog.Error("failed to create paypal payout", "transaction_id", req.TransactionUUID, "error", err)
		return gateway.PayoutResult{}, paymentError(fmt.Errorf("failed to create paypal payout: %w", err))
	}
	return gateway.PayoutResult{PayoutID: resp.BatchHeader.PayoutBatchID}, nil
}

type webhookEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

func (g *Gateway) ParseWebhook(ctx context.Context, r *http.Request, body []byte) (*gateway.Event, error) {
	if g.webhookID == "" {
		return nil, fmt.Errorf("%w: webhook id not configured", pkgerrors.ErrWebhookSignature)
	}
	verifyReq := r.Clone(ctx)
	verifyReq.Body = io.NopCloser(bytes.NewReader(body))
	verification, err := g.client.VerifyWebhookSignature(ctx, verifyReq, g.webhookID)
	if err != nil {
		return nil, paymentError(fmt.Errorf("failed to verify paypal webhook: %w", err))
	}
	if verification.VerificationStatus != "SUCCESS" {
		slog.Warn("paypal webhook rejected", "status", verification.VerificationStatus)
		return nil, fmt.Errorf("%w: verification status %s", pkgerrors.ErrWebhookSignature, verification.VerificationStatus)
	}

	var we webhookEvent
	if err := json.Unmarshal(body, &we); err != nil {
		return nil, fmt.Errorf("failed to parse paypal webhook: %w", err)
	}
	ev := &gateway.Event{ID: we.ID, Gateway: models.GatewayPaypal, Type: we.EventType}
	ev.ChargeID = we.Resource.SupplementaryData.RelatedIDs.OrderID

	switch we.EventType {
	case "CHECKOUT.ORDER.APPROVED":
		ev.Kind = gateway.EventBuyerApproved
		ev.ChargeID = we.Resource.ID
	case "PAYMENT.AUTHORIZATION.CREATED":
		ev.Kind = gateway.EventPaymentAuthorized
	case "PAYMENT.CAPTURE.COMPLETED":
		ev.Kind = gateway.EventCaptureCompleted
	case "PAYMENT.CAPTURE.PENDING":
		ev.Kind = gateway.EventCapturePending
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		ev.Kind = gateway.EventCaptureFailed
		ev.Reason = pkgerrors.CodePaymentDeclined
	}
	return ev, nil
}

var zeroDecimal = map[string]bool{"JPY": true, "HUF": true, "TWD": true}

func value(m models.Money) string {
	if zeroDecimal[strings.ToUpper(m.Currency)] {
		return decimal.NewFromInt(m.Cents).StringFixed(0)
	}
	return decimal.New(m.Cents, -2).StringFixed(2)
}

func money(m models.Money) amount {
	return amount{CurrencyCode: strings.ToUpper(m.Currency), Value: value(m)}
}

// paymentError maps PayPal 422 responses (declined instrument, denied
// authorization) to declines and everything else to connection issues.
func paymentError(err error) error {
	var er *paypal.ErrorResponse
	if errors.As(err, &er) && er.Response != nil && er.Response.StatusCode == http.StatusUnprocessableEntity {
		return pkgerrors.NewPaymentError(pkgerrors.CodePaymentDeclined, err)
	}
	return pkgerrors.NewPaymentError(pkgerrors.CodeConnectionIssue, err)
}
