package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/marketplace-tx/internal/models"
	"go.opentelemetry.io/otel/attribute"
)

const bookingTracer = "booking-repository"

type BookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// occupiedEnd widens a zero-length range to its start day.
func occupiedEnd(startOn, endOn time.Time) time.Time {
	if !endOn.After(startOn) {
		return startOn.AddDate(0, 0, 1)
	}
	return endOn
}

func (r *BookingRepository) Overlapping(ctx context.Context, listingID int64, startOn, endOn time.Time) (slots []models.BookingSlot, err error) {
	ctx, done := observe(ctx, bookingTracer, "OverlappingBookings", attribute.Int64("listing_id", listingID))
	defer done(&err)

	query := `SELECT listing_id, transaction_id, start_on, end_on FROM booking_slots
	WHERE listing_id = $1 AND start_on < $2 AND $3 < GREATEST(end_on, start_on + 1)`
	rows, err := r.db.QueryContext(ctx, query, listingID, occupiedEnd(startOn, endOn), startOn)
	if err != nil {
		slog.Error("failed to get overlapping bookings", "method", "Overlapping", "listing_id", listingID, "error", err)
		return nil, fmt.Errorf("failed to get overlapping bookings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.BookingSlot
		if err = rows.Scan(&s.ListingID, &s.TransactionID, &s.StartOn, &s.EndOn); err != nil {
			return nil, fmt.Errorf("failed to scan booking slot: %w", err)
		}
		slots = append(slots, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate booking slots: %w", err)
	}
	return slots, nil
}

// Hold is idempotent per transaction.
func (r *BookingRepository) Hold(ctx context.Context, slot *models.BookingSlot) (err error) {
	ctx, done := observe(ctx, bookingTracer, "HoldBooking", attribute.Int64("listing_id", slot.ListingID))
	defer done(&err)

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO booking_slots (listing_id, transaction_id, start_on, end_on) VALUES ($1, $2, $3, $4) ON CONFLICT (transaction_id) DO NOTHING`,
		slot.ListingID, slot.TransactionID, slot.StartOn, slot.EndOn)
	if err != nil {
		slog.Error("failed to hold booking", "method", "Hold", "listing_id", slot.ListingID, "transaction", slot.TransactionID, "error", err)
		return fmt.Errorf("failed to hold booking: %w", err)
	}
	slog.Info("booking held", "method", "Hold", "listing_id", slot.ListingID, "start_on", slot.StartOn, "end_on", slot.EndOn)
	return nil
}

func (r *BookingRepository) Release(ctx context.Context, transactionID int64) (err error) {
	ctx, done := observe(ctx, bookingTracer, "ReleaseBooking", attribute.Int64("transaction", transactionID))
	defer done(&err)

	if _, err = r.db.ExecContext(ctx, `DELETE FROM booking_slots WHERE transaction_id = $1`, transactionID); err != nil {
		slog.Error("failed to release booking", "method", "Release", "transaction", transactionID, "error", err)
		return fmt.Errorf("failed to release booking: %w", err)
	}
	return nil
}
