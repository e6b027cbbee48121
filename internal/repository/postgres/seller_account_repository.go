package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/models"
	"go.opentelemetry.io/otel/attribute"
)

type SellerAccountRepository struct {
	db *sql.DB
}

func NewSellerAccountRepository(db *sql.DB) *SellerAccountRepository {
	return &SellerAccountRepository{db: db}
}

func (r *SellerAccountRepository) ListByPerson(ctx context.Context, personID uuid.UUID) (accounts []models.SellerAccount, err error) {
	ctx, done := observe(ctx, "seller-account-repository", "ListSellerAccounts", attribute.String("person_id", personID.String()))
	defer done(&err)

	query := `SELECT person_id, payment_gateway, payout_id, bank_id, verified, created_at
	FROM seller_accounts WHERE person_id = $1`
	rows, err := r.db.QueryContext(ctx, query, personID)
	if err != nil {
		slog.Error("failed to get seller accounts", "method", "ListByPerson", "person_id", personID, "error", err)
		return nil, fmt.Errorf("failed to get seller accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.SellerAccount
		if err = rows.Scan(&a.PersonID, &a.Gateway, &a.PayoutID, &a.BankID, &a.Verified, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan seller account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate seller accounts: %w", err)
	}
	return accounts, nil
}
