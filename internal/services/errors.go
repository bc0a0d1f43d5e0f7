package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Business-rule failures detected before any mutation. Handlers map these onto
// HTTP statuses; everything else surfaces as a generic 500.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrWithdrawalBlocked   = errors.New("withdrawals are blocked for this account")
	ErrInvalidStatus       = errors.New("unknown transaction status")
	ErrFeeExceedsAmount    = errors.New("configured fee exceeds transaction amount")
)

// InsufficientBalanceError carries the available and required amounts for the
// client payload.
type InsufficientBalanceError struct {
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, required %s",
		e.Available.StringFixed(2), e.Required.StringFixed(2))
}

// DuplicateTransactionError signals an idempotency violation on transaction_id
// or external_reference.
type DuplicateTransactionError struct {
	TransactionID string
}

func (e *DuplicateTransactionError) Error() string {
	return fmt.Sprintf("transaction %s already exists", e.TransactionID)
}

// InvalidTransitionError signals a status change the state machine does not
// allow.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// ValidationError wraps input validation failures with a stable message for
// the 400 payload.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
