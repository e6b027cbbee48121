package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/gateway"
	"github.com/honeynil/marketplace-tx/internal/jobs"
	"github.com/honeynil/marketplace-tx/internal/models"
	"github.com/honeynil/marketplace-tx/internal/notify"
	"github.com/honeynil/marketplace-tx/internal/process"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"go.opentelemetry.io/otel/codes"
)

// ProcessJob runs a scheduled job. It is the jobs.Handler of the worker and
// must tolerate redelivery.
func (s *transactionService) ProcessJob(ctx context.Context, job jobs.Job) error {
	ctx, span := startSpan(ctx, "ProcessJob")
	defer span.End()

	var err error
	switch job.Kind {
	case jobs.KindPayout:
		err = s.payout(ctx, job.TransactionUUID)
	case jobs.KindAutoComplete:
		err = s.autoComplete(ctx, job)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}
	if err != nil {
		fail(span, err, "job failed")
		slog.Error("job failed", "job_id", job.ID, "kind", job.Kind, "transaction_id", job.TransactionUUID, "attempt", job.Attempt, "error", err)
	}
	return err
}

// payout sends the seller's share. The gateway deduplicates on the
// transaction id, so a redelivered job does not pay twice.
func (s *transactionService) payout(ctx context.Context, txUUID uuid.UUID) error {
	tx, community, unlock, err := s.lockAndLoad(ctx, txUUID)
	if err != nil {
		return err
	}
	defer unlock()

	if tx.CurrentState != models.StateCompleted && tx.CurrentState != models.StateDismissed {
		slog.Warn("payout skipped, transaction not settled", "transaction_id", tx.UUID, "state", tx.CurrentState)
		return nil
	}

	accounts, err := s.accountsFor(ctx, tx.ListingAuthorID)
	if err != nil {
		return fmt.Errorf("failed to get seller accounts: %w", err)
	}
	seller := accounts[tx.PaymentGateway]
	if !seller.Ready() {
		return fmt.Errorf("%w: gateway %s", pkgerrors.ErrSellerAccountMissing, tx.PaymentGateway)
	}
	gw, err := s.gateways.Get(tx.PaymentGateway)
	if err != nil {
		return err
	}
	res, err := gw.Payout(ctx, gateway.PayoutRequest{
		TransactionUUID: tx.UUID,
		ChargeID:        tx.GatewayChargeID,
		Amount:          tx.SellerGets(),
		Seller:          seller,
		ChargesMode:     community.StripeChargesMode,
	})
	if err != nil {
		return err
	}

	slog.Info("payout sent", "transaction_id", tx.UUID, "payout_id", res.PayoutID, "amount", tx.SellerGets().String())
	s.notifier.Notify(ctx, notify.Event{
		Type:        models.EventPayoutSent,
		Transaction: tx,
		Recipients:  []models.Role{models.RoleSeller},
	})
	return nil
}

// autoComplete marks a transaction the buyer never confirmed as completed. A
// job armed before the transaction last re-entered confirmed is stale.
func (s *transactionService) autoComplete(ctx context.Context, job jobs.Job) error {
	tx, community, unlock, err := s.lockAndLoad(ctx, job.TransactionUUID)
	if err != nil {
		return err
	}
	defer unlock()

	if tx.CurrentState != models.StateConfirmed {
		slog.Info("auto-complete skipped", "transaction_id", tx.UUID, "state", tx.CurrentState)
		return nil
	}
	if !job.RunAt.IsZero() && job.RunAt.Before(tx.LastTransitionAt.Add(s.autoCompleteAfter(ctx, tx))) {
		slog.Info("stale auto-complete skipped", "transaction_id", tx.UUID, "run_at", job.RunAt, "last_transition_at", tx.LastTransitionAt)
		return nil
	}
	return s.applySystem(ctx, tx, community, models.ActionMarkComplete, models.ReasonNone)
}

// MarkSeen records that a participant has looked at the transaction and reads
// its conversation.
func (s *transactionService) MarkSeen(ctx context.Context, txUUID uuid.UUID, personID uuid.UUID) error {
	ctx, span := startSpan(ctx, "MarkSeen")
	defer span.End()

	tx, err := s.repos.Transactions.GetByUUID(ctx, txUUID)
	if err != nil {
		fail(span, err, "transaction lookup failed")
		return fmt.Errorf("failed to get transaction: %w", err)
	}
	if !tx.Participant(personID) {
		span.SetStatus(codes.Error, "not a participant")
		return pkgerrors.ErrNotAuthorized
	}

	if err := s.repos.Transactions.MarkSeen(ctx, tx.ID, personID == tx.StarterID, s.now().UTC()); err != nil {
		fail(span, err, "mark seen failed")
		slog.Error("failed to mark transaction seen", "transaction_id", tx.UUID, "person_id", personID, "error", err)
		return fmt.Errorf("failed to mark transaction seen: %w", err)
	}
	if tx.ConversationID != 0 {
		if err := s.repos.Conversations.MarkRead(ctx, tx.ConversationID, personID); err != nil {
			slog.Warn("failed to mark conversation read", "conversation_id", tx.ConversationID, "person_id", personID, "error", err)
		}
	}
	return nil
}

// PostingStatus tells whether a listing with the given process may be posted.
func (s *transactionService) PostingStatus(ctx context.Context, listingUUID uuid.UUID, actor models.Actor) (process.PostingStatus, error) {
	ctx, span := startSpan(ctx, "PostingStatus")
	defer span.End()

	listing, err := s.repos.Listings.GetByUUID(ctx, listingUUID)
	if err != nil {
		fail(span, err, "listing lookup failed")
		return process.PostingStatus{}, fmt.Errorf("failed to get listing: %w", err)
	}
	community, err := s.repos.Communities.GetByID(ctx, listing.CommunityID)
	if err != nil {
		fail(span, err, "community lookup failed")
		return process.PostingStatus{}, fmt.Errorf("failed to get community: %w", err)
	}
	res, err := s.resolve(ctx, community, listing)
	if err != nil {
		fail(span, err, "process resolution failed")
		slog.Error("failed to resolve payment process", "community_id", community.ID, "listing_id", listing.UUID, "error", err)
		return process.PostingStatus{}, err
	}
	settings, err := s.settingsFor(ctx, community.ID)
	if err != nil {
		fail(span, err, "payment settings lookup failed")
		return process.PostingStatus{}, fmt.Errorf("failed to get payment settings: %w", err)
	}

	admin := actor.Admin || slices.Contains(community.AdminIDs, actor.ID)
	return process.CanPost(res, settings, admin), nil
}
