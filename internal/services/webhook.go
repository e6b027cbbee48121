package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	stderrors "errors"

	"github.com/honeynil/marketplace-tx/internal/gateway"
	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
)

var webhookActions = map[gateway.EventKind]models.Action{
	gateway.EventPaymentRequiresAction: models.ActionPaymentRequiresAction,
	gateway.EventPaymentFailed:         models.ActionPaymentFailed,
	gateway.EventPaymentActionExpired:  models.ActionPaymentActionExpired,
	gateway.EventCaptureCompleted:      models.ActionCaptureCompleted,
	gateway.EventCapturePending:        models.ActionCapturePending,
	gateway.EventCaptureFailed:         models.ActionCaptureFailed,
	gateway.EventDisputeWon:            models.ActionResolve,
}

// HandleWebhook verifies a gateway notification and applies it to its
// transaction. Replays of an already handled event are acknowledged without
// effect; a failed event is forgotten so the gateway's retry is processed.
func (s *transactionService) HandleWebhook(ctx context.Context, gatewayName models.Gateway, r *http.Request, body []byte) error {
	ctx, span := startSpan(ctx, "HandleWebhook")
	defer span.End()

	gw, err := s.gateways.Get(gatewayName)
	if err != nil {
		fail(span, err, "unknown gateway")
		slog.Warn("webhook for unknown gateway", "gateway", gatewayName, "error", err)
		return err
	}
	ev, err := gw.ParseWebhook(ctx, r, body)
	if err != nil {
		fail(span, err, "webhook rejected")
		slog.Warn("failed to verify webhook", "gateway", gatewayName, "error", err)
		return err
	}
	if ev.Kind == gateway.EventIgnored {
		slog.Debug("webhook ignored", "gateway", gatewayName, "event_id", ev.ID, "type", ev.Type)
		return nil
	}

	seen, err := s.dedup.Seen(ctx, string(gatewayName), ev.ID)
	if err != nil {
		fail(span, err, "dedup failed")
		slog.Error("failed to check webhook replay", "gateway", gatewayName, "event_id", ev.ID, "error", err)
		return fmt.Errorf("failed to check webhook replay: %w", err)
	}
	if seen {
		slog.Info("webhook already processed", "gateway", gatewayName, "event_id", ev.ID)
		return nil
	}

	if err := s.applyEvent(ctx, ev); err != nil {
		fail(span, err, "webhook processing failed")
		if ferr := s.dedup.Forget(ctx, string(gatewayName), ev.ID); ferr != nil {
			slog.Error("failed to forget webhook event", "gateway", gatewayName, "event_id", ev.ID, "error", ferr)
		}
		return err
	}
	return nil
}

func (s *transactionService) applyEvent(ctx context.Context, ev *gateway.Event) error {
	found, err := s.repos.Transactions.GetByChargeID(ctx, ev.Gateway, ev.ChargeID)
	if err != nil {
		if stderrors.Is(err, pkgerrors.ErrTransactionNotFound) {
			slog.Warn("webhook for unknown charge", "gateway", ev.Gateway, "event_id", ev.ID, "charge_id", ev.ChargeID)
		}
		return err
	}

	tx, community, unlock, err := s.lockAndLoad(ctx, found.UUID)
	if err != nil {
		return err
	}
	defer unlock()

	slog.Info("applying webhook",
		"gateway", ev.Gateway,
		"event_id", ev.ID,
		"kind", ev.Kind.String(),
		"transaction_id", tx.UUID,
		"state", tx.CurrentState)

	switch ev.Kind {
	case gateway.EventPaymentAuthorized, gateway.EventBuyerApproved:
		res := s.finalizeLocked(ctx, tx, community)
		if !res.Success {
			slog.Warn("webhook finalization did not succeed", "transaction_id", tx.UUID, "reason", res.Reason)
		}
		return nil
	case gateway.EventPaymentFailed:
		code := ev.Reason
		if code == "" {
			code = pkgerrors.CodePaymentDeclined
		}
		return s.applySystem(ctx, tx, community, models.ActionPaymentFailed, reasonOf(code))
	case gateway.EventPaymentActionExpired:
		return s.applySystem(ctx, tx, community, models.ActionPaymentActionExpired, models.ReasonActionExpired)
	case gateway.EventCaptureFailed:
		return s.applySystem(ctx, tx, community, models.ActionCaptureFailed, models.ReasonDeclined)
	}

	action, ok := webhookActions[ev.Kind]
	if !ok {
		slog.Warn("unhandled webhook kind", "kind", ev.Kind.String(), "event_id", ev.ID)
		return nil
	}
	return s.applySystem(ctx, tx, community, action, models.ReasonNone)
}
