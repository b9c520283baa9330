package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine. Callers match with errors.Is.
var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrConcurrentModification = errors.New("concurrent balance modification")
	ErrAllocationExhausted    = errors.New("transaction ID allocation exhausted")
)

// ValidationError describes the first rejected field of an intent.
// No side effects have occurred when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SagaError reports a store failure during a multi-record operation,
// carrying enough context for manual remediation: which operation,
// the step reached, and the ids involved. Compensation has already
// run (or been escalated) by the time one is returned.
type SagaError struct {
	Op            string // "submit" or "undo"
	Step          string
	TransactionID string
	AccountID     string
	Err           error
}

func (e *SagaError) Error() string {
	msg := fmt.Sprintf("%s failed at %s", e.Op, e.Step)
	if e.TransactionID != "" {
		msg += fmt.Sprintf(" (transaction %s)", e.TransactionID)
	}
	if e.AccountID != "" {
		msg += fmt.Sprintf(" (account %s)", e.AccountID)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *SagaError) Unwrap() error {
	return e.Err
}
