package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	stderrors "errors"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/gateway"
	"github.com/honeynil/marketplace-tx/internal/infrastructure/lock"
	"github.com/honeynil/marketplace-tx/internal/infrastructure/observability"
	"github.com/honeynil/marketplace-tx/internal/jobs"
	"github.com/honeynil/marketplace-tx/internal/models"
	"github.com/honeynil/marketplace-tx/internal/notify"
	"github.com/honeynil/marketplace-tx/internal/statemachine"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"go.opentelemetry.io/otel/codes"
)

func (s *transactionService) Transition(ctx context.Context, txUUID uuid.UUID, action models.Action, actor models.Actor) (*models.Transaction, error) {
	ctx, span := startSpan(ctx, "Transition")
	defer span.End()

	if !action.Public() {
		span.SetStatus(codes.Error, "action not public")
		slog.Warn("non-public action requested", "transaction_id", txUUID, "action", action, "actor_id", actor.ID)
		return nil, fmt.Errorf("%w: %s", pkgerrors.ErrNotAuthorized, action)
	}

	tx, community, unlock, err := s.lockAndLoad(ctx, txUUID)
	if err != nil {
		fail(span, err, "transaction load failed")
		return nil, err
	}
	defer unlock()

	role, ok := roleOf(tx, community, actor, action)
	if !ok || !statemachine.Authorized(role, action, tx.CurrentState) {
		span.SetStatus(codes.Error, "not authorized")
		slog.Warn("actor not authorized for action",
			"transaction_id", tx.UUID,
			"action", action,
			"actor_id", actor.ID,
			"role", role)
		return nil, pkgerrors.ErrNotAuthorized
	}

	if statemachine.AlreadyApplied(tx.CurrentState, action) {
		slog.Info("action already applied", "transaction_id", tx.UUID, "action", action, "state", tx.CurrentState)
		return tx, nil
	}

	if _, err := s.transition(ctx, tx, community, action, actor, role, models.ReasonNone); err != nil {
		fail(span, err, "transition failed")
		return nil, err
	}
	return tx, nil
}

// transition moves tx along action and runs the side effects of the move. The
// caller holds the transaction lock. The gateway call happens before the new
// state is persisted; notifications and jobs follow it and never fail the call.
func (s *transactionService) transition(
	ctx context.Context,
	tx *models.Transaction,
	community *models.Community,
	action models.Action,
	actor models.Actor,
	role models.Role,
	reason models.Reason,
) (statemachine.Plan, error) {
	to, err := statemachine.Next(tx.CurrentState, action)
	if err != nil {
		slog.Warn("invalid transition", "transaction_id", tx.UUID, "state", tx.CurrentState, "action", action)
		return statemachine.Plan{}, err
	}
	change := statemachine.Change{From: tx.CurrentState, To: to, Action: action, Gateway: tx.PaymentGateway, By: role}
	plan := statemachine.Effects(change)

	if plan.GatewayOp != statemachine.OpNone && tx.GatewayChargeID != "" {
		change, err = s.runGatewayOp(ctx, tx, community, change, plan.GatewayOp)
		if err != nil {
			return statemachine.Plan{}, err
		}
		if change.Action != action {
			plan = statemachine.Effects(change)
		}
	}

	now := s.now().UTC()
	prev := *tx
	tx.CurrentState = change.To
	if reason != models.ReasonNone {
		tx.CancelReason = reason
	}
	tx.LastTransitionByAdmin = role == models.RoleAdmin
	tx.LastTransitionAt = now

	tr := &models.Transition{
		From:      change.From,
		To:        change.To,
		Action:    string(change.Action),
		ActorID:   actor.ID,
		ByAdmin:   role == models.RoleAdmin,
		CreatedAt: now,
	}
	if reason != models.ReasonNone {
		tr.Metadata = map[string]string{"reason": string(reason)}
	}
	if err := s.repos.Transactions.UpdateState(ctx, tx, change.From, tr); err != nil {
		*tx = prev
		slog.Error("failed to persist transition",
			"transaction_id", tx.UUID,
			"from", change.From,
			"to", change.To,
			"error", err)
		return statemachine.Plan{}, err
	}

	observability.TransactionTransitions.WithLabelValues(string(change.From), string(change.To), string(change.Action)).Inc()
	slog.Info("transaction transitioned",
		"transaction_id", tx.UUID,
		"from", change.From,
		"to", change.To,
		"action", change.Action,
		"by", role)

	s.afterTransition(ctx, tx, community, plan)
	return plan, nil
}

// runGatewayOp performs the gateway side of a transition. It returns the change
// to persist, which differs from the requested one when a capture is still
// pending at the gateway.
func (s *transactionService) runGatewayOp(ctx context.Context, tx *models.Transaction, community *models.Community, change statemachine.Change, op statemachine.GatewayOp) (statemachine.Change, error) {
	gw, err := s.gateways.Get(tx.PaymentGateway)
	if err != nil {
		slog.Error("payment gateway not registered", "gateway", tx.PaymentGateway, "transaction_id", tx.UUID, "error", err)
		return change, err
	}

	switch op {
	case statemachine.OpCapture:
		res, err := gw.Capture(ctx, tx.GatewayChargeID)
		if err != nil {
			if pkgerrors.CodeOf(err) == pkgerrors.CodePaymentDeclined {
				slog.Warn("capture declined, rejecting transaction", "transaction_id", tx.UUID, "error", err)
				if _, terr := s.transition(ctx, tx, community, models.ActionCaptureFailed, models.SystemActor, models.RoleSystem, models.ReasonDeclined); terr != nil {
					slog.Error("failed to reject transaction after declined capture", "transaction_id", tx.UUID, "error", terr)
				}
			}
			return change, err
		}
		if res.AvailableOn != nil {
			tx.AvailableOn = res.AvailableOn
		}
		if res.Status == gateway.CapturePending {
			change.Action = models.ActionCapturePending
			change.To = models.StatePendingExternal
		}

	case statemachine.OpVoid:
		// an unvoided authorization expires at the gateway on its own
		if err := gw.Void(ctx, tx.GatewayChargeID); err != nil {
			slog.Warn("failed to void payment", "transaction_id", tx.UUID, "charge_id", tx.GatewayChargeID, "error", err)
		}

	case statemachine.OpRefund:
		if err := gw.Refund(ctx, tx.GatewayChargeID); err != nil {
			return change, err
		}
	}
	return change, nil
}

func (s *transactionService) afterTransition(ctx context.Context, tx *models.Transaction, community *models.Community, plan statemachine.Plan) {
	if plan.ReleaseBooking && tx.IsBooking() {
		if err := s.repos.Bookings.Release(ctx, tx.ID); err != nil {
			slog.Error("failed to release booking", "transaction_id", tx.UUID, "error", err)
		}
	}

	for _, n := range plan.Notifications {
		s.notifier.Notify(ctx, notify.Event{
			Type:        n.Type,
			Transaction: tx,
			Recipients:  n.Recipients,
			AdminIDs:    community.AdminIDs,
		})
	}

	if plan.ScheduleAutoComplete {
		s.enqueue(ctx, jobs.Job{
			Kind:            jobs.KindAutoComplete,
			TransactionUUID: tx.UUID,
			CommunityID:     tx.CommunityID,
			RunAt:           s.now().UTC().Add(s.autoCompleteAfter(ctx, tx)),
		})
	}
	if plan.SchedulePayout {
		s.enqueue(ctx, jobs.Job{
			Kind:            jobs.KindPayout,
			TransactionUUID: tx.UUID,
			CommunityID:     tx.CommunityID,
			RunAt:           s.payoutRunAt(tx, community),
		})
	}
}

func (s *transactionService) enqueue(ctx context.Context, job jobs.Job) {
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		slog.Error("failed to schedule job",
			"kind", job.Kind,
			"transaction_id", job.TransactionUUID,
			"run_at", job.RunAt,
			"error", err)
		return
	}
	slog.Info("job scheduled", "kind", job.Kind, "transaction_id", job.TransactionUUID, "run_at", job.RunAt)
}

func (s *transactionService) autoCompleteAfter(ctx context.Context, tx *models.Transaction) time.Duration {
	settings, err := s.settingsFor(ctx, tx.CommunityID)
	if err != nil {
		slog.Warn("failed to load payment settings, using default confirmation period", "community_id", tx.CommunityID, "error", err)
		return s.cfg.AutoCompleteAfter
	}
	if ps := settings[tx.PaymentGateway]; ps != nil && ps.ConfirmationAfterDays > 0 {
		return time.Duration(ps.ConfirmationAfterDays) * 24 * time.Hour
	}
	return s.cfg.AutoCompleteAfter
}

// payoutRunAt is when the seller's payout may run. Delayed modes wait for the
// later of available_on and now plus the payout delay, then one more day.
func (s *transactionService) payoutRunAt(tx *models.Transaction, community *models.Community) time.Time {
	now := s.now().UTC()
	if !slices.Contains(s.cfg.DelayedPayoutModes, community.StripeChargesMode) {
		return now
	}
	runAt := now.Add(s.cfg.PayoutDelay)
	if tx.AvailableOn != nil && tx.AvailableOn.After(runAt) {
		runAt = tx.AvailableOn.UTC()
	}
	return runAt.Add(24 * time.Hour)
}

// lockAndLoad takes the transaction lock and reads the transaction with its community.
func (s *transactionService) lockAndLoad(ctx context.Context, txUUID uuid.UUID) (*models.Transaction, *models.Community, func(), error) {
	unlock, err := s.locker.Lock(ctx, lock.TransactionKey(txUUID))
	if err != nil {
		slog.Warn("failed to lock transaction", "transaction_id", txUUID, "error", err)
		return nil, nil, nil, err
	}
	tx, err := s.repos.Transactions.GetByUUID(ctx, txUUID)
	if err != nil {
		unlock()
		slog.Error("failed to get transaction", "transaction_id", txUUID, "error", err)
		return nil, nil, nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	community, err := s.repos.Communities.GetByID(ctx, tx.CommunityID)
	if err != nil {
		unlock()
		slog.Error("failed to get community", "community_id", tx.CommunityID, "error", err)
		return nil, nil, nil, fmt.Errorf("failed to get community: %w", err)
	}
	return tx, community, unlock, nil
}

// applySystem applies a gateway- or job-raised action, treating an action the
// transaction already went through, or one its state no longer admits, as done.
func (s *transactionService) applySystem(ctx context.Context, tx *models.Transaction, community *models.Community, action models.Action, reason models.Reason) error {
	if statemachine.AlreadyApplied(tx.CurrentState, action) {
		slog.Info("action already applied", "transaction_id", tx.UUID, "action", action, "state", tx.CurrentState)
		return nil
	}
	_, err := s.transition(ctx, tx, community, action, models.SystemActor, models.RoleSystem, reason)
	if stderrors.Is(err, pkgerrors.ErrInvalidTransition) {
		slog.Warn("ignoring out of order action", "transaction_id", tx.UUID, "action", action, "state", tx.CurrentState)
		return nil
	}
	return err
}
