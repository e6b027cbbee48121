package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/gateway"
	"github.com/honeynil/marketplace-tx/internal/infrastructure/lock"
	"github.com/honeynil/marketplace-tx/internal/models"
	"github.com/honeynil/marketplace-tx/internal/tokens"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"go.opentelemetry.io/otel/codes"
)

const (
	reasonRequiresAction = "payment_requires_action"
	reasonPending        = "payment_pending"
)

// FinalizeResult carries the process token of a finalization. Completed is
// false while an asynchronous finalization is still running; poll
// GetAsyncStatus with the token.
type FinalizeResult struct {
	Token     uuid.UUID             `json:"process_token"`
	Completed bool                  `json:"completed"`
	Result    *models.ProcessResult `json:"result,omitempty"`
}

// FinalizeTransaction completes a preauthorized payment on behalf of the buyer,
// an admin or the system. PayPal finalizes in the background unless forceSync
// is set; other gateways finalize inline.
func (s *transactionService) FinalizeTransaction(ctx context.Context, txUUID uuid.UUID, actor models.Actor, forceSync bool) (*FinalizeResult, error) {
	ctx, span := startSpan(ctx, "FinalizeTransaction")
	defer span.End()

	tx, err := s.repos.Transactions.GetByUUID(ctx, txUUID)
	if err != nil {
		fail(span, err, "transaction lookup failed")
		slog.Error("failed to get transaction", "transaction_id", txUUID, "error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if !actor.IsSystem() && actor.ID != tx.StarterID {
		community, err := s.repos.Communities.GetByID(ctx, tx.CommunityID)
		if err != nil {
			fail(span, err, "community lookup failed")
			slog.Error("failed to get community", "community_id", tx.CommunityID, "error", err)
			return nil, fmt.Errorf("failed to get community: %w", err)
		}
		if !actor.Admin && !slices.Contains(community.AdminIDs, actor.ID) {
			span.SetStatus(codes.Error, "not authorized")
			slog.Warn("actor not authorized to finalize", "transaction_id", tx.UUID, "actor_id", actor.ID)
			return nil, pkgerrors.ErrNotAuthorized
		}
	}
	if tx.PaymentProcess == models.ProcessNone {
		span.SetStatus(codes.Error, "free transaction")
		return nil, fmt.Errorf("%w: free transactions are not finalized", pkgerrors.ErrInvalidTransition)
	}

	token, err := s.tokens.Create(ctx, tx.UUID, models.TokenOpFinalize)
	if err != nil {
		fail(span, err, "token creation failed")
		return nil, err
	}

	if tx.PaymentGateway == models.GatewayPaypal && !forceSync {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ctx := context.WithoutCancel(ctx)
			if s.cfg.AsyncTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, s.cfg.AsyncTimeout)
				defer cancel()
			}
			if _, err := s.tokens.Complete(ctx, token.Token, s.finalize(ctx, txUUID)); err != nil {
				slog.Error("failed to record finalization result", "token", token.Token, "transaction_id", txUUID, "error", err)
			}
		}()
		return &FinalizeResult{Token: token.Token}, nil
	}

	stored, err := s.tokens.Complete(ctx, token.Token, s.finalize(ctx, txUUID))
	if err != nil {
		fail(span, err, "token completion failed")
		return nil, err
	}
	return &FinalizeResult{Token: stored.Token, Completed: true, Result: stored.Result}, nil
}

func (s *transactionService) GetAsyncStatus(ctx context.Context, token uuid.UUID) (tokens.Status, error) {
	ctx, span := startSpan(ctx, "GetAsyncStatus")
	defer span.End()

	status, err := s.tokens.GetStatus(ctx, token)
	if err != nil {
		fail(span, err, "token lookup failed")
		slog.Warn("failed to get process token", "token", token, "error", err)
		return tokens.Status{}, err
	}
	return status, nil
}

func (s *transactionService) finalize(ctx context.Context, txUUID uuid.UUID) models.ProcessResult {
	tx, community, unlock, err := s.lockAndLoad(ctx, txUUID)
	if err != nil {
		return models.ProcessResult{TransactionUUID: txUUID, Reason: string(failureCode(err))}
	}
	defer unlock()
	return s.finalizeLocked(ctx, tx, community)
}

// finalizeLocked confirms the buyer's payment and, for bookings, holds the
// dates. A booking whose dates were taken meanwhile is voided and canceled.
// The caller holds the transaction lock.
func (s *transactionService) finalizeLocked(ctx context.Context, tx *models.Transaction, community *models.Community) models.ProcessResult {
	result := models.ProcessResult{TransactionUUID: tx.UUID}

	switch tx.CurrentState {
	case models.StatePaid, models.StateConfirmed, models.StatePendingExternal, models.StateCompleted:
		result.Success = true
		return result
	case models.StateInitiated, models.StateRequiresAction:
	default:
		slog.Warn("transaction cannot be finalized", "transaction_id", tx.UUID, "state", tx.CurrentState)
		result.Reason = string(tx.CancelReason)
		if result.Reason == "" {
			result.Reason = string(pkgerrors.CodeSomethingWentWrong)
		}
		return result
	}

	if tx.CurrentState == models.StateRequiresAction {
		gw, err := s.gateways.Get(tx.PaymentGateway)
		if err != nil {
			slog.Error("payment gateway not registered", "gateway", tx.PaymentGateway, "transaction_id", tx.UUID, "error", err)
			result.Reason = string(pkgerrors.CodeSomethingWentWrong)
			return result
		}
		res, err := gw.Confirm(ctx, tx.GatewayChargeID)
		if err != nil {
			return s.failPayment(ctx, tx, community, failureCode(err))
		}
		switch res.Status {
		case gateway.ChargeRequiresAction:
			result.Reason = reasonRequiresAction
			result.RedirectURL = tx.ApprovalURL
			if res.RedirectURL != "" {
				result.RedirectURL = res.RedirectURL
			}
			return result
		case gateway.ChargePending:
			result.Reason = reasonPending
			return result
		}
	}

	if tx.IsBooking() && !tx.Booking.PerHour {
		unlock, err := s.locker.Lock(ctx, lock.ListingKey(tx.ListingUUID))
		if err != nil {
			slog.Warn("failed to lock listing", "listing_id", tx.ListingUUID, "transaction_id", tx.UUID, "error", err)
			return s.failPayment(ctx, tx, community, pkgerrors.CodeConnectionIssue)
		}
		defer unlock()

		free, err := s.datesFree(ctx, tx)
		if err != nil {
			return s.failPayment(ctx, tx, community, pkgerrors.CodeConnectionIssue)
		}
		if !free {
			slog.Warn("booking dates taken, voiding payment",
				"transaction_id", tx.UUID,
				"listing_id", tx.ListingUUID,
				"start_on", tx.Booking.StartOn,
				"end_on", tx.Booking.EndOn)
			return s.failPayment(ctx, tx, community, pkgerrors.CodeDoubleBooking)
		}
		slot := &models.BookingSlot{
			ListingID:     tx.ListingID,
			TransactionID: tx.ID,
			StartOn:       tx.Booking.StartOn,
			EndOn:         tx.Booking.EndOn,
		}
		if err := s.repos.Bookings.Hold(ctx, slot); err != nil {
			slog.Error("failed to hold booking", "transaction_id", tx.UUID, "error", err)
			return s.failPayment(ctx, tx, community, pkgerrors.CodeConnectionIssue)
		}
	}

	if _, err := s.transition(ctx, tx, community, models.ActionPaymentSucceeded, models.SystemActor, models.RoleSystem, models.ReasonNone); err != nil {
		if tx.IsBooking() {
			if rerr := s.repos.Bookings.Release(ctx, tx.ID); rerr != nil {
				slog.Error("failed to release booking", "transaction_id", tx.UUID, "error", rerr)
			}
		}
		result.Reason = string(pkgerrors.CodeSomethingWentWrong)
		return result
	}
	result.Success = true
	return result
}

func (s *transactionService) datesFree(ctx context.Context, tx *models.Transaction) (bool, error) {
	slots, err := s.repos.Bookings.Overlapping(ctx, tx.ListingID, tx.Booking.StartOn, tx.Booking.EndOn)
	if err != nil {
		slog.Error("failed to check booking availability", "transaction_id", tx.UUID, "error", err)
		return false, err
	}
	for _, slot := range slots {
		if slot.TransactionID != tx.ID {
			return false, nil
		}
	}
	return true, nil
}

// failPayment cancels tx with the reason for code; the cancel voids the hold.
// It runs detached from ctx, which may already have timed out.
func (s *transactionService) failPayment(ctx context.Context, tx *models.Transaction, community *models.Community, code pkgerrors.Code) models.ProcessResult {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.transition(ctx, tx, community, models.ActionPaymentFailed, models.SystemActor, models.RoleSystem, reasonOf(code)); err != nil {
		slog.Error("failed to cancel transaction after payment failure", "transaction_id", tx.UUID, "reason", code, "error", err)
	}
	return models.ProcessResult{TransactionUUID: tx.UUID, Reason: string(code)}
}

func failureCode(err error) pkgerrors.Code {
	if code := pkgerrors.CodeOf(err); code != "" {
		return code
	}
	return pkgerrors.CodeConnectionIssue
}
