package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const transactionTracer = "transaction-repository"

const transactionColumns = `id, uuid, community_id, listing_id, listing_uuid, listing_title, starter_id, listing_author_id,
	unit_type, unit_price_cents, currency, quantity, booking_start_on, booking_end_on, booking_start_time, booking_end_time,
	booking_per_hour, delivery, shipping_price_cents, payment_process, payment_gateway, current_state, cancel_reason,
	commission_cents, buyer_commission_cents, gateway_charge_id, approval_url, available_on, conversation_id,
	last_transition_by_admin, last_transition_at, starter_seen_at, author_seen_at, created_at, updated_at`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullCents(m *models.Money) sql.NullInt64 {
	if m == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: m.Cents, Valid: true}
}

func moneyPtr(cents sql.NullInt64, currency string) *models.Money {
	if !cents.Valid {
		return nil
	}
	m := models.NewMoney(cents.Int64, currency)
	return &m
}

func nullActor(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func scanTransaction(row scanner) (*models.Transaction, error) {
	var (
		tx                                   models.Transaction
		currency                             string
		unitPrice, commission, buyerFee      int64
		shipping                             sql.NullInt64
		startOn, endOn, startTime, endTime   sql.NullTime
		perHour                              bool
		availableOn, starterSeen, authorSeen sql.NullTime
		conversationID                       sql.NullInt64
	)
	err := row.Scan(
		&tx.ID, &tx.UUID, &tx.CommunityID, &tx.ListingID, &tx.ListingUUID, &tx.ListingTitle, &tx.StarterID, &tx.ListingAuthorID,
		&tx.UnitType, &unitPrice, &currency, &tx.Quantity, &startOn, &endOn, &startTime, &endTime,
		&perHour, &tx.Delivery, &shipping, &tx.PaymentProcess, &tx.PaymentGateway, &tx.CurrentState, &tx.CancelReason,
		&commission, &buyerFee, &tx.GatewayChargeID, &tx.ApprovalURL, &availableOn, &conversationID,
		&tx.LastTransitionByAdmin, &tx.LastTransitionAt, &starterSeen, &authorSeen, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.UnitPrice = models.NewMoney(unitPrice, currency)
	tx.Commission = models.NewMoney(commission, currency)
	tx.BuyerCommission = models.NewMoney(buyerFee, currency)
	tx.ShippingPrice = moneyPtr(shipping, currency)
	tx.AvailableOn = timePtr(availableOn)
	tx.StarterSeenAt = timePtr(starterSeen)
	tx.AuthorSeenAt = timePtr(authorSeen)
	tx.ConversationID = conversationID.Int64
	if startOn.Valid && endOn.Valid {
		tx.Booking = &models.Booking{
			StartOn:   startOn.Time.UTC(),
			EndOn:     endOn.Time.UTC(),
			StartTime: timePtr(startTime),
			EndTime:   timePtr(endTime),
			PerHour:   perHour,
		}
	}
	return &tx, nil
}

func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction, first *models.Transition) (err error) {
	ctx, done := observe(ctx, transactionTracer, "CreateTransaction")
	defer done(&err)

	if tx == nil {
		err = pkgerrors.ErrNilTransaction
		slog.Error("failed to create transaction", "method", "Create", "error", err)
		return err
	}

	var startOn, endOn, startTime, endTime sql.NullTime
	perHour := false
	if b := tx.Booking; b != nil {
		startOn = sql.NullTime{Time: b.StartOn, Valid: true}
		endOn = sql.NullTime{Time: b.EndOn, Valid: true}
		startTime, endTime = nullTime(b.StartTime), nullTime(b.EndTime)
		perHour = b.PerHour
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "Create", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `INSERT INTO transactions (uuid, community_id, listing_id, listing_uuid, listing_title, starter_id, listing_author_id,
	unit_type, unit_price_cents, currency, quantity, booking_start_on, booking_end_on, booking_start_time, booking_end_time,
	booking_per_hour, delivery, shipping_price_cents, payment_process, payment_gateway, current_state, cancel_reason,
	commission_cents, buyer_commission_cents, conversation_id, last_transition_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
	RETURNING id, created_at, updated_at`
	err = dbTx.QueryRowContext(ctx, query,
		tx.UUID, tx.CommunityID, tx.ListingID, tx.ListingUUID, tx.ListingTitle, tx.StarterID, tx.ListingAuthorID,
		tx.UnitType, tx.UnitPrice.Cents, tx.UnitPrice.Currency, tx.Quantity, startOn, endOn, startTime, endTime,
		perHour, tx.Delivery, nullCents(tx.ShippingPrice), tx.PaymentProcess, tx.PaymentGateway, tx.CurrentState, tx.CancelReason,
		tx.Commission.Cents, tx.BuyerCommission.Cents, sql.NullInt64{Int64: tx.ConversationID, Valid: tx.ConversationID != 0}, tx.LastTransitionAt,
	).Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		err = rollback(dbTx, "Create", err)
		slog.Error("failed to create transaction", "method", "Create", "transaction_id", tx.UUID, "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	if first != nil {
		first.TransactionID = tx.ID
		if err = insertTransition(ctx, dbTx, first); err != nil {
			err = rollback(dbTx, "Create", err)
			slog.Error("failed to record first transition", "method", "Create", "transaction_id", tx.UUID, "error", err)
			return err
		}
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "Create", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("transaction created", "method", "Create", "id", tx.ID, "transaction_id", tx.UUID, "state", tx.CurrentState)
	return nil
}

func rollback(dbTx *sql.Tx, method string, err error) error {
	if rbErr := dbTx.Rollback(); rbErr != nil {
		slog.Error("rollback failed", "method", method, "error", rbErr)
		return fmt.Errorf("rollback failed: %v; original error: %w", rbErr, err)
	}
	return err
}

func insertTransition(ctx context.Context, dbTx *sql.Tx, tr *models.Transition) error {
	var metadata []byte
	if len(tr.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(tr.Metadata); err != nil {
			return fmt.Errorf("failed to marshal transition metadata: %w", err)
		}
	}
	query := `INSERT INTO transaction_transitions (transaction_id, from_state, to_state, action, actor_id, by_admin, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	err := dbTx.QueryRowContext(ctx, query,
		tr.TransactionID, tr.From, tr.To, tr.Action, nullActor(tr.ActorID), tr.ByAdmin, metadata, tr.CreatedAt,
	).Scan(&tr.ID)
	if err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}
	return nil
}

func (r *TransactionRepository) get(ctx context.Context, method, where string, args ...any) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + where
	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, args...))
	if stderrors.Is(err, sql.ErrNoRows) {
		slog.Warn("transaction not found", "method", method, "args", args)
		return nil, pkgerrors.ErrTransactionNotFound
	}
	if err != nil {
		slog.Error("failed to get transaction", "method", method, "args", args, "error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

func (r *TransactionRepository) GetByUUID(ctx context.Context, id uuid.UUID) (tx *models.Transaction, err error) {
	ctx, done := observe(ctx, transactionTracer, "GetTransactionByUUID", attribute.String("transaction_id", id.String()))
	defer done(&err)

	return r.get(ctx, "GetByUUID", `uuid = $1`, id)
}

func (r *TransactionRepository) GetByChargeID(ctx context.Context, gateway models.Gateway, chargeID string) (tx *models.Transaction, err error) {
	ctx, done := observe(ctx, transactionTracer, "GetTransactionByChargeID", attribute.String("gateway", string(gateway)))
	defer done(&err)

	if chargeID == "" {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	return r.get(ctx, "GetByChargeID", `payment_gateway = $1 AND gateway_charge_id = $2`, gateway, chargeID)
}

func (r *TransactionRepository) UpdateState(ctx context.Context, tx *models.Transaction, from models.State, tr *models.Transition) (err error) {
	ctx, done := observe(ctx, transactionTracer, "UpdateTransactionState",
		attribute.String("transaction_id", tx.UUID.String()),
		attribute.String("from", string(from)),
		attribute.String("to", string(tx.CurrentState)),
	)
	defer done(&err)

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "UpdateState", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `UPDATE transactions
	SET current_state = $1, cancel_reason = $2, last_transition_by_admin = $3, last_transition_at = $4,
		gateway_charge_id = $5, approval_url = $6, available_on = $7, updated_at = NOW()
	WHERE id = $8 AND current_state = $9
	RETURNING updated_at`
	err = dbTx.QueryRowContext(ctx, query,
		tx.CurrentState, tx.CancelReason, tx.LastTransitionByAdmin, tx.LastTransitionAt,
		tx.GatewayChargeID, tx.ApprovalURL, nullTime(tx.AvailableOn), tx.ID, from,
	).Scan(&tx.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = rollback(dbTx, "UpdateState", pkgerrors.ErrStateConflict)
		slog.Warn("transaction state changed concurrently", "method", "UpdateState", "transaction_id", tx.UUID, "from", from)
		return err
	}
	if err != nil {
		err = rollback(dbTx, "UpdateState", err)
		slog.Error("failed to update transaction state", "method", "UpdateState", "transaction_id", tx.UUID, "error", err)
		return fmt.Errorf("failed to update transaction state: %w", err)
	}

	tr.TransactionID = tx.ID
	if err = insertTransition(ctx, dbTx, tr); err != nil {
		err = rollback(dbTx, "UpdateState", err)
		slog.Error("failed to record transition", "method", "UpdateState", "transaction_id", tx.UUID, "error", err)
		return err
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "UpdateState", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("transaction state updated", "method", "UpdateState", "transaction_id", tx.UUID, "from", from, "to", tx.CurrentState, "action", tr.Action)
	return nil
}

func (r *TransactionRepository) exec(ctx context.Context, method, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Error("failed to update transaction", "method", method, "error", err)
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return pkgerrors.ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepository) SetCharge(ctx context.Context, id int64, chargeID, approvalURL string) (err error) {
	ctx, done := observe(ctx, transactionTracer, "SetTransactionCharge", attribute.Int64("id", id))
	defer done(&err)

	return r.exec(ctx, "SetCharge",
		`UPDATE transactions SET gateway_charge_id = $1, approval_url = $2, updated_at = NOW() WHERE id = $3`,
		chargeID, approvalURL, id)
}

func (r *TransactionRepository) SetAvailableOn(ctx context.Context, id int64, availableOn time.Time) (err error) {
	ctx, done := observe(ctx, transactionTracer, "SetTransactionAvailableOn", attribute.Int64("id", id))
	defer done(&err)

	return r.exec(ctx, "SetAvailableOn",
		`UPDATE transactions SET available_on = $1, updated_at = NOW() WHERE id = $2`,
		availableOn, id)
}

func (r *TransactionRepository) MarkSeen(ctx context.Context, id int64, starter bool, at time.Time) (err error) {
	ctx, done := observe(ctx, transactionTracer, "MarkTransactionSeen", attribute.Int64("id", id))
	defer done(&err)

	column := "author_seen_at"
	if starter {
		column = "starter_seen_at"
	}
	return r.exec(ctx, "MarkSeen", `UPDATE transactions SET `+column+` = $1 WHERE id = $2`, at, id)
}

func (r *TransactionRepository) Transitions(ctx context.Context, id int64) (trs []models.Transition, err error) {
	ctx, done := observe(ctx, transactionTracer, "GetTransactionTransitions", attribute.Int64("id", id))
	defer done(&err)

	query := `SELECT id, transaction_id, from_state, to_state, action, actor_id, by_admin, metadata, created_at
	FROM transaction_transitions WHERE transaction_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		slog.Error("failed to get transitions", "method", "Transitions", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get transitions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tr       models.Transition
			actor    uuid.NullUUID
			metadata []byte
		)
		if err = rows.Scan(&tr.ID, &tr.TransactionID, &tr.From, &tr.To, &tr.Action, &actor, &tr.ByAdmin, &metadata, &tr.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		tr.ActorID = actor.UUID
		if len(metadata) > 0 {
			if err = json.Unmarshal(metadata, &tr.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal transition metadata: %w", err)
			}
		}
		trs = append(trs, tr)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transitions: %w", err)
	}
	return trs, nil
}
