package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/honeynil/marketplace-tx/internal/infrastructure/observability"
	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Registry struct {
	mu       sync.RWMutex
	gateways map[models.Gateway]Gateway
	timeout  time.Duration
}

func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{gateways: make(map[models.Gateway]Gateway), timeout: timeout}
}

func (r *Registry) Register(name models.Gateway, gw Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[name] = gw
}

// Get returns the adapter for name. Every call on it is bounded by the
// registry timeout; a call that runs out of time fails with connection_issue.
func (r *Registry) Get(name models.Gateway) (Gateway, error) {
	r.mu.RLock()
	gw, ok := r.gateways[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", pkgerrors.ErrUnknownGateway, name)
	}
	return &instrumented{name: name, next: gw, timeout: r.timeout}, nil
}

type instrumented struct {
	name    models.Gateway
	next    Gateway
	timeout time.Duration
}

func (g *instrumented) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	tracer := otel.Tracer("payment-gateway")
	ctx, span := tracer.Start(ctx, "Gateway."+op)
	span.SetAttributes(attribute.String("gateway", string(g.name)))
	defer span.End()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = pkgerrors.NewPaymentError(pkgerrors.CodeConnectionIssue, fmt.Errorf("%s %s timed out: %w", g.name, op, err))
	}

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("gateway call failed", "gateway", g.name, "operation", op, "duration", time.Since(start), "error", err)
	}
	observability.GatewayCalls.WithLabelValues(string(g.name), op, status).Inc()
	observability.GatewayDuration.WithLabelValues(string(g.name), op).Observe(time.Since(start).Seconds())
	return err
}

func (g *instrumented) Charge(ctx context.Context, req ChargeRequest) (res ChargeResult, err error) {
	err = g.call(ctx, "charge", func(ctx context.Context) error {
		res, err = g.next.Charge(ctx, req)
		return err
	})
	return res, err
}

func (g *instrumented) Confirm(ctx context.Context, chargeID string) (res ChargeResult, err error) {
	err = g.call(ctx, "confirm", func(ctx context.Context) error {
		res, err = g.next.Confirm(ctx, chargeID)
		return err
	})
	return res, err
}

func (g *instrumented) Capture(ctx context.Context, chargeID string) (res CaptureResult, err error) {
	err = g.call(ctx, "capture", func(ctx context.Context) error {
		res, err = g.next.Capture(ctx, chargeID)
		return err
	})
	return res, err
}

func (g *instrumented) Void(ctx context.Context, chargeID string) error {
	return g.call(ctx, "void", func(ctx context.Context) error {
		return g.next.Void(ctx, chargeID)
	})
}

func (g *instrumented) Refund(ctx context.Context, chargeID string) error {
	return g.call(ctx, "refund", func(ctx context.Context) error {
		return g.next.Refund(ctx, chargeID)
	})
}

func (g *instrumented) Payout(ctx context.Context, req PayoutRequest) (res PayoutResult, err error) {
	err = g.call(ctx, "payout", func(ctx context.Context) error {
		res, err = g.next.Payout(ctx, req)
		return err
	})
	return res, err
}

func (g *instrumented) ParseWebhook(ctx context.Context, r *http.Request, body []byte) (ev *Event, err error) {
	err = g.call(ctx, "parse_webhook", func(ctx context.Context) error {
		ev, err = g.next.ParseWebhook(ctx, r, body)
		return err
	})
	return ev, err
}
