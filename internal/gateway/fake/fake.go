// Package fake is an in-process payment gateway for tests and local runs.
// Results can be scripted per operation and every call is recorded.
package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/honeynil/marketplace-tx/internal/gateway"
	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
)

type Call struct {
	Op       string
	ChargeID string
	Amount   models.Money
}

type Gateway struct {
	mu      sync.Mutex
	name    models.Gateway
	seq     int
	calls   []Call
	errs    map[string]error
	delay   map[string]time.Duration
	charge  gateway.ChargeStatus
	capture gateway.CaptureStatus
	charges map[string]string
	availOn *time.Time
}

func New(name models.Gateway) *Gateway {
	return &Gateway{
		name:    name,
		errs:    make(map[string]error),
		delay:   make(map[string]time.Duration),
		charges: make(map[string]string),
	}
}

// FailOn makes every later call of op return err.
func (g *Gateway) FailOn(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[op] = err
}

// Delay makes op block for d or until its context is done.
func (g *Gateway) Delay(op string, d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delay[op] = d
}

func (g *Gateway) SetChargeStatus(s gateway.ChargeStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charge = s
}

func (g *Gateway) SetCaptureStatus(s gateway.CaptureStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.capture = s
}

func (g *Gateway) SetAvailableOn(t time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.availOn = &t
}

// Calls returns the recorded calls of op, or all calls when op is empty.
func (g *Gateway) Calls(op string) []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Call
	for _, c := range g.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ChargeState returns the last operation applied to a charge.
func (g *Gateway) ChargeState(chargeID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.charges[chargeID]
}

func (g *Gateway) begin(ctx context.Context, op, chargeID string, amount models.Money) error {
	g.mu.Lock()
	g.calls = append(g.calls, Call{Op: op, ChargeID: chargeID, Amount: amount})
	err := g.errs[op]
	d := g.delay[op]
	g.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (g *Gateway) Charge(ctx context.Context, req gateway.ChargeRequest) (gateway.ChargeResult, error) {
	g.mu.Lock()
	g.seq++
	id := fmt.Sprintf("%s_ch_%d", g.name, g.seq)
	status := g.charge
	g.mu.Unlock()

	if err := g.begin(ctx, "charge", id, req.Amount); err != nil {
		return gateway.ChargeResult{ChargeID: id}, err
	}

	g.mu.Lock()
	g.charges[id] = "authorized"
	g.mu.Unlock()

	res := gateway.ChargeResult{ChargeID: id, Status: status}
	if status == gateway.ChargeRequiresAction {
		res.RedirectURL = "https://gateway.test/approve/" + id
	}
	return res, nil
}

func (g *Gateway) Confirm(ctx context.Context, chargeID string) (gateway.ChargeResult, error) {
	if err := g.begin(ctx, "confirm", chargeID, models.Money{}); err != nil {
		return gateway.ChargeResult{ChargeID: chargeID}, err
	}
	return gateway.ChargeResult{ChargeID: chargeID, Status: gateway.ChargeAuthorized}, nil
}

func (g *Gateway) Capture(ctx context.Context, chargeID string) (gateway.CaptureResult, error) {
	if err := g.begin(ctx, "capture", chargeID, models.Money{}); err != nil {
		return gateway.CaptureResult{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges[chargeID] = "captured"
	return gateway.CaptureResult{Status: g.capture, AvailableOn: g.availOn}, nil
}

func (g *Gateway) Void(ctx context.Context, chargeID string) error {
	if err := g.begin(ctx, "void", chargeID, models.Money{}); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges[chargeID] = "voided"
	return nil
}

func (g *Gateway) Refund(ctx context.Context, chargeID string) error {
	if err := g.begin(ctx, "refund", chargeID, models.Money{}); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges[chargeID] = "refunded"
	return nil
}

func (g *Gateway) Payout(ctx context.Context, req gateway.PayoutRequest) (gateway.PayoutResult, error) {
	if err := g.begin(ctx, "payout", req.ChargeID, req.Amount); err != nil {
		return gateway.PayoutResult{}, err
	}
	return gateway.PayoutResult{PayoutID: "po_" + req.TransactionUUID.String()}, nil
}

// WebhookPayload is the body the fake gateway accepts on its webhook endpoint.
type WebhookPayload struct {
	ID       string            `json:"id"`
	Kind     gateway.EventKind `json:"kind"`
	ChargeID string            `json:"charge_id"`
	Reason   pkgerrors.Code    `json:"reason,omitempty"`
}

func (g *Gateway) ParseWebhook(ctx context.Context, _ *http.Request, body []byte) (*gateway.Event, error) {
	if err := g.begin(ctx, "parse_webhook", "", models.Money{}); err != nil {
		return nil, err
	}
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrWebhookSignature, err)
	}
	return &gateway.Event{
		ID:       p.ID,
		Gateway:  g.name,
		Type:     p.Kind.String(),
		Kind:     p.Kind,
		ChargeID: p.ChargeID,
		Reason:   p.Reason,
	}, nil
}
