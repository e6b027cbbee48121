package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrNilTransaction       = errors.New("transaction is nil")
	ErrListingNotFound      = errors.New("listing not found")
	ErrCommunityNotFound    = errors.New("community not found")
	ErrProcessNotFound      = errors.New("transaction process not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSellerAccountMissing = errors.New("seller account not found")
	ErrTokenNotFound        = errors.New("process token not found")
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrStateConflict        = errors.New("transaction state changed concurrently")
	ErrTransactionLocked    = errors.New("transaction is locked")
	ErrUnresolvableProcess  = errors.New("unresolvable payment process configuration")
	ErrCurrencyMismatch     = errors.New("currency mismatch")
	ErrNotAuthorized        = errors.New("actor not authorized for this action")
	ErrUnknownGateway       = errors.New("unknown payment gateway")
	ErrWebhookSignature     = errors.New("invalid webhook signature")
	ErrValidation           = errors.New("validation failed")
	ErrPayment              = errors.New("payment failed")
	ErrInvalidInput         = fmt.Errorf("ErrInvalidInput")
)

// ValidationError carries every code that failed for a single request.
type ValidationError struct {
	Codes []Code
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Codes))
	for i, c := range e.Codes {
		parts[i] = string(c)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Has reports whether code is among the failed codes.
func (e *ValidationError) Has(code Code) bool {
	for _, c := range e.Codes {
		if c == code {
			return true
		}
	}
	return false
}

// PaymentError is a gateway-side failure surfaced to the caller with a reason code.
type PaymentError struct {
	Code Code
	Err  error
}

func (e *PaymentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrPayment, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", ErrPayment, e.Code, e.Err)
}

func (e *PaymentError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPayment}
	}
	return []error{ErrPayment, e.Err}
}

// NewPaymentError wraps err with a payment reason code.
func NewPaymentError(code Code, err error) *PaymentError {
	return &PaymentError{Code: code, Err: err}
}

// CodeOf returns the first machine-readable code carried by err, or "" if none.
func CodeOf(err error) Code {
	var ve *ValidationError
	if errors.As(err, &ve) && len(ve.Codes) > 0 {
		return ve.Codes[0]
	}
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Code
	}
	var ne *NotReadyError
	if errors.As(err, &ne) {
		return CodeNotReadyForPayments
	}
	return ""
}

// NotReadyError blocks posting or transacting when payments are not set up.
// Admin tells whether the message addresses an administrator.
type NotReadyError struct {
	Admin   bool
	Message string
}

func (e *NotReadyError) Error() string { return e.Message }
