// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNoOrderType       = errors.New("no order type selected")
	ErrInvalidPrice      = errors.New("price must be positive")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrExpiredOrder      = errors.New("order expiry date is in the past")
	ErrCooldownActive    = errors.New("confirmation code resend cooldown active")
	ErrCodeRejected      = errors.New("confirmation code rejected")
	ErrInvalidTransition = errors.New("invalid order state transition")
)

// OrderError represents an error from order submission.
type OrderError struct {
	OrderID string
	ISIN    string
	Stage   string
	Reason  string
	Err     error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%s] %s at %s: %s: %v", e.OrderID, e.ISIN, e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%s] %s at %s: %s", e.OrderID, e.ISIN, e.Stage, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(orderID, isin, stage, reason string, err error) *OrderError {
	return &OrderError{
		OrderID: orderID,
		ISIN:    isin,
		Stage:   stage,
		Reason:  reason,
		Err:     err,
	}
}

// TransferError represents a failure while executing one step of a transfer
// plan. StepIndex is the zero-based position of the failed step; Executed is
// the number of steps that completed before the failure.
type TransferError struct {
	StepIndex int
	Executed  int
	FromID    int64
	ToID      int64
	Currency  string
	Err       error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer error at step %d (%d executed) %d->%d %s: %v",
		e.StepIndex, e.Executed, e.FromID, e.ToID, e.Currency, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// NewTransferError creates a new TransferError.
func NewTransferError(stepIndex, executed int, fromID, toID int64, currency string, err error) *TransferError {
	return &TransferError{
		StepIndex: stepIndex,
		Executed:  executed,
		FromID:    fromID,
		ToID:      toID,
		Currency:  currency,
		Err:       err,
	}
}

// ValidationError represents a local validation error, rejected before any
// network call is made.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// RemoteError represents an error returned by the brokerage API.
type RemoteError struct {
	Operation string
	Status    int
	Message   string
	Err       error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote error [%s] status %d: %s: %v", e.Operation, e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("remote error [%s] status %d: %s", e.Operation, e.Status, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// NewRemoteError creates a new RemoteError.
func NewRemoteError(operation string, status int, message string, err error) *RemoteError {
	return &RemoteError{
		Operation: operation,
		Status:    status,
		Message:   message,
		Err:       err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
