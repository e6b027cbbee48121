// Package validation holds the pure checks run on a transaction request before
// anything is persisted. Every check returns a Result; Collect turns a set of
// results into a single error carrying every failed code.
package validation

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
)

type Result struct {
	Success bool
	Code    pkgerrors.Code
}

var ok = Result{Success: true}

func fail(code pkgerrors.Code) Result {
	return Result{Code: code}
}

// Horizons is how far ahead, in days, a booking may start.
type Horizons struct {
	Default int
	Stripe  int
}

var DefaultHorizons = Horizons{Default: 365, Stripe: 86}

func (h Horizons) days(stripeInUse bool) int {
	if stripeInUse {
		return h.Stripe
	}
	return h.Default
}

// ValidateDeliveryMethod passes when delivery is one of the enabled methods.
// A listing with neither shipping nor pickup takes no delivery at all.
func ValidateDeliveryMethod(delivery models.Delivery, shippingEnabled, pickupEnabled bool) Result {
	if !shippingEnabled && !pickupEnabled {
		if delivery == models.DeliveryNone {
			return ok
		}
		return fail(pkgerrors.CodeDeliveryMethodMissing)
	}
	switch {
	case delivery == models.DeliveryShipping && shippingEnabled:
		return ok
	case delivery == models.DeliveryPickup && pickupEnabled:
		return ok
	}
	return fail(pkgerrors.CodeDeliveryMethodMissing)
}

// ValidateBooking checks the date range of a day or night booking. Other
// selectors always pass. Dates are compared as calendar days in UTC.
func ValidateBooking(startOn, endOn *time.Time, selector models.QuantitySelector, stripeInUse bool, now time.Time, horizons Horizons) Result {
	if !selector.DateBased() {
		return ok
	}
	if startOn == nil || endOn == nil || startOn.IsZero() || endOn.IsZero() {
		return fail(pkgerrors.CodeDatesMissing)
	}

	start, end := Day(*startOn), Day(*endOn)
	if end.Before(start) {
		return fail(pkgerrors.CodeEndBeforeStart)
	}
	if selector == models.SelectorNight && start.Equal(end) {
		return fail(pkgerrors.CodeAtLeastOneDayOrNight)
	}

	limit := Day(now).AddDate(0, 0, horizons.days(stripeInUse))
	if !start.Before(limit) {
		return fail(pkgerrors.CodeDateTooLate)
	}
	return ok
}

// ValidatePerHourBooking checks a per-hour booking: both times set, end after start.
func ValidatePerHourBooking(startTime, endTime *time.Time) Result {
	if startTime == nil || endTime == nil || startTime.IsZero() || endTime.IsZero() {
		return fail(pkgerrors.CodeDatesMissing)
	}
	if !endTime.After(*startTime) {
		return fail(pkgerrors.CodeEndBeforeStart)
	}
	return ok
}

func ValidateTransactionAgreement(contractAgreed, agreementInUse bool) Result {
	if !agreementInUse || contractAgreed {
		return ok
	}
	return fail(pkgerrors.CodeAgreementMissing)
}

// ValidateMessage requires a message when no payment is collected, since the
// message is then the whole request.
func ValidateMessage(process models.Process, message string) Result {
	if process == models.ProcessNone && strings.TrimSpace(message) == "" {
		return fail(pkgerrors.CodeMessageMissing)
	}
	return ok
}

func ValidateQuantity(quantity int) Result {
	if quantity < 1 {
		return fail(pkgerrors.CodeQuantityInvalid)
	}
	return ok
}

// ValidateCanStart rejects closed listings and authors buying from themselves.
func ValidateCanStart(listing *models.Listing, starterID uuid.UUID) Result {
	if listing.Closed || listing.Deleted {
		return fail(pkgerrors.CodeListingClosed)
	}
	if listing.AuthorID == starterID {
		return fail(pkgerrors.CodeCannotTransactWithSelf)
	}
	return ok
}

// Collect returns nil when every result passed, otherwise a *ValidationError
// listing each failed code once, in order.
func Collect(results ...Result) error {
	var failed []pkgerrors.Code
	seen := make(map[pkgerrors.Code]bool)
	for _, r := range results {
		if r.Success || seen[r.Code] {
			continue
		}
		seen[r.Code] = true
		failed = append(failed, r.Code)
	}
	if len(failed) == 0 {
		return nil
	}
	return &pkgerrors.ValidationError{Codes: failed}
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
