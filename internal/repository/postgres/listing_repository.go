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
	"go.opentelemetry.io/otel/attribute"
)

type ListingRepository struct {
	db *sql.DB
}

func NewListingRepository(db *sql.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

func (r *ListingRepository) GetByUUID(ctx context.Context, id uuid.UUID) (listing *models.Listing, err error) {
	ctx, done := observe(ctx, "listing-repository", "GetListingByUUID", attribute.String("listing_id", id.String()))
	defer done(&err)

	query := `SELECT id, uuid, community_id, title, author_id, price_cents, currency, unit_type, quantity_selector,
	transaction_process_id, shipping_enabled, pickup_enabled, shipping_price_cents, shipping_price_additional_cents, closed, deleted
	FROM listings WHERE uuid = $1`

	var (
		l                            models.Listing
		price                        int64
		currency                     string
		shipping, shippingAdditional sql.NullInt64
	)
	err = r.db.QueryRowContext(ctx, query, id).Scan(
		&l.ID, &l.UUID, &l.CommunityID, &l.Title, &l.AuthorID, &price, &currency, &l.UnitType, &l.QuantitySelector,
		&l.TransactionProcessID, &l.ShippingEnabled, &l.PickupEnabled, &shipping, &shippingAdditional, &l.Closed, &l.Deleted,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		slog.Warn("listing not found", "method", "GetByUUID", "listing_id", id)
		return nil, pkgerrors.ErrListingNotFound
	}
	if err != nil {
		slog.Error("failed to get listing", "method", "GetByUUID", "listing_id", id, "error", err)
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	l.Price = models.NewMoney(price, currency)
	l.ShippingPrice = moneyPtr(shipping, currency)
	l.ShippingPriceAdditional = moneyPtr(shippingAdditional, currency)
	return &l, nil
}
