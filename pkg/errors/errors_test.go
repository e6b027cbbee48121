package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := fmt.Errorf("failed to create transaction: %w", &ValidationError{Codes: []Code{CodeDatesMissing, CodeMessageMissing}})

	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, CodeDatesMissing, CodeOf(err))
	assert.Equal(t, "validation failed: dates_missing, message_missing", errors.Unwrap(err).Error())

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.True(t, ve.Has(CodeMessageMissing))
	assert.False(t, ve.Has(CodeDateTooLate))
}

func TestPaymentError(t *testing.T) {
	err := NewPaymentError(CodeConnectionIssue, context.DeadlineExceeded)
	assert.True(t, errors.Is(err, ErrPayment))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, CodeConnectionIssue, CodeOf(err))

	bare := NewPaymentError(CodePaymentDeclined, nil)
	assert.True(t, errors.Is(bare, ErrPayment))
	assert.Equal(t, "payment failed: payment_declined", bare.Error())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNotReadyForPayments, CodeOf(&NotReadyError{Message: "not ready"}))
	assert.Equal(t, Code(""), CodeOf(ErrTransactionNotFound))
}

func TestCodeMessage(t *testing.T) {
	assert.Equal(t, "Please select a delivery method.", CodeDeliveryMethodMissing.Message())
	assert.Equal(t, CodeSomethingWentWrong.Message(), Code("unknown").Message())
}
