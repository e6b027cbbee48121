package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

const communityTracer = "community-repository"

type CommunityRepository struct {
	db *sql.DB
}

func NewCommunityRepository(db *sql.DB) *CommunityRepository {
	return &CommunityRepository{db: db}
}

func (r *CommunityRepository) GetByID(ctx context.Context, id int64) (community *models.Community, err error) {
	ctx, done := observe(ctx, communityTracer, "GetCommunityByID", attribute.Int64("community_id", id))
	defer done(&err)

	query := `SELECT id, uuid, currency, active_payment_types, transaction_agreement_in_use, stripe_charges_mode, admin_ids
	FROM communities WHERE id = $1`

	var (
		c        models.Community
		types    []string
		adminIDs []string
	)
	err = r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.UUID, &c.Currency, pq.Array(&types), &c.TransactionAgreementInUse, &c.StripeChargesMode, pq.Array(&adminIDs),
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		slog.Error("community not found", "method", "GetByID", "community_id", id)
		return nil, pkgerrors.ErrCommunityNotFound
	}
	if err != nil {
		slog.Error("failed to get community", "method", "GetByID", "community_id", id, "error", err)
		return nil, fmt.Errorf("failed to get community: %w", err)
	}

	for _, t := range types {
		c.ActivePaymentTypes = append(c.ActivePaymentTypes, models.Gateway(t))
	}
	for _, s := range adminIDs {
		adminID, parseErr := uuid.Parse(s)
		if parseErr != nil {
			slog.Warn("skipping malformed admin id", "community_id", id, "value", s)
			continue
		}
		c.AdminIDs = append(c.AdminIDs, adminID)
	}
	return &c, nil
}

func (r *CommunityRepository) PaymentSettings(ctx context.Context, communityID int64) (settings []models.PaymentSettings, err error) {
	ctx, done := observe(ctx, communityTracer, "GetPaymentSettings", attribute.Int64("community_id", communityID))
	defer done(&err)

	query := `SELECT id, community_id, payment_gateway, payment_process, active, commission_from_seller, commission_from_buyer,
	minimum_transaction_fee_cents, minimum_buyer_transaction_fee_cents, minimum_price_cents, currency,
	confirmation_after_days, api_verified, api_credentials
	FROM payment_settings WHERE community_id = $1 AND active ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, communityID)
	if err != nil {
		slog.Error("failed to get payment settings", "method", "PaymentSettings", "community_id", communityID, "error", err)
		return nil, fmt.Errorf("failed to get payment settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			s                           models.PaymentSettings
			sellerPct, buyerPct         sql.NullInt64
			minFee, minBuyerFee, minPrc int64
			currency                    string
		)
		err = rows.Scan(&s.ID, &s.CommunityID, &s.Gateway, &s.Process, &s.Active, &sellerPct, &buyerPct,
			&minFee, &minBuyerFee, &minPrc, &currency, &s.ConfirmationAfterDays, &s.APIVerified, &s.APICredentials)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment settings: %w", err)
		}
		s.CommissionFromSeller = intPtr(sellerPct)
		s.CommissionFromBuyer = intPtr(buyerPct)
		s.MinimumTransactionFee = models.NewMoney(minFee, currency)
		s.MinimumBuyerTransactionFee = models.NewMoney(minBuyerFee, currency)
		s.MinimumPrice = models.NewMoney(minPrc, currency)
		settings = append(settings, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment settings: %w", err)
	}
	return settings, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func (r *CommunityRepository) GetProcess(ctx context.Context, id int64) (process *models.TransactionProcess, err error) {
	ctx, done := observe(ctx, communityTracer, "GetTransactionProcess", attribute.Int64("process_id", id))
	defer done(&err)

	var p models.TransactionProcess
	query := `SELECT id, community_id, process, author_is_seller FROM transaction_processes WHERE id = $1`
	err = r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.CommunityID, &p.Process, &p.Author)
	if stderrors.Is(err, sql.ErrNoRows) {
		slog.Error("transaction process not found", "method", "GetProcess", "process_id", id)
		return nil, pkgerrors.ErrProcessNotFound
	}
	if err != nil {
		slog.Error("failed to get transaction process", "method", "GetProcess", "process_id", id, "error", err)
		return nil, fmt.Errorf("failed to get transaction process: %w", err)
	}
	return &p, nil
}
