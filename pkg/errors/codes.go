package errors

// Code is a machine-readable failure reason returned to clients.
type Code string

const (
	CodeDeliveryMethodMissing  Code = "delivery_method_missing"
	CodeDatesMissing           Code = "dates_missing"
	CodeEndBeforeStart         Code = "end_cant_be_before_start"
	CodeAtLeastOneDayOrNight   Code = "at_least_one_day_or_night_required"
	CodeDateTooLate            Code = "date_too_late"
	CodeAgreementMissing       Code = "agreement_missing"
	CodeMessageMissing         Code = "message_missing"
	CodeListingClosed          Code = "listing_closed"
	CodeCannotTransactWithSelf Code = "cannot_transact_with_self"
	CodeQuantityInvalid        Code = "quantity_invalid"

	CodeConnectionIssue     Code = "connection_issue"
	CodeDoubleBooking       Code = "double_booking"
	CodePaymentDeclined     Code = "payment_declined"
	CodeNotReadyForPayments Code = "not_ready_for_payments"
	CodeSomethingWentWrong  Code = "something_went_wrong"
)

var codeMessages = map[Code]string{
	CodeDeliveryMethodMissing:  "Please select a delivery method.",
	CodeDatesMissing:           "Please select the start and end dates.",
	CodeEndBeforeStart:         "The end date cannot be before the start date.",
	CodeAtLeastOneDayOrNight:   "Please select at least one night.",
	CodeDateTooLate:            "The selected dates are too far in the future.",
	CodeAgreementMissing:       "You need to accept the transaction agreement.",
	CodeMessageMissing:         "Message cannot be empty.",
	CodeListingClosed:          "You cannot reply to a closed offer.",
	CodeCannotTransactWithSelf: "You cannot send a message to yourself.",
	CodeQuantityInvalid:        "Quantity must be at least one.",
	CodeConnectionIssue:        "Booking failed, your payment was voided.",
	CodeDoubleBooking:          "The dates are no longer available, your payment was voided.",
	CodePaymentDeclined:        "Your payment was declined.",
	CodeNotReadyForPayments:    "This marketplace is not ready to accept payments.",
	CodeSomethingWentWrong:     "Something went wrong.",
}

// Message returns the human-readable message for the code.
func (c Code) Message() string {
	if m, ok := codeMessages[c]; ok {
		return m
	}
	return codeMessages[CodeSomethingWentWrong]
}
