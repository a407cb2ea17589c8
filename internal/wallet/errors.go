package wallet

import (
	"errors"
	"fmt"
)

var (
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrWalletBlocked covers any non-ACTIVE wallet status.
	ErrWalletBlocked = errors.New("wallet is not active")

	ErrInsufficientFunds = errors.New("insufficient funds")

	ErrInvalidStateTransition = errors.New("invalid transaction state transition")

	// ErrConcurrencyConflict is surfaced once the bounded CAS retries are
	// exhausted. Retryable: callers may resubmit with the same
	// idempotency key.
	ErrConcurrencyConflict = errors.New("concurrent modification, retries exhausted")

	// ErrVersionConflict is the single-attempt CAS miss the ledger retries
	// internally; it should not normally escape the Ledger.
	ErrVersionConflict = errors.New("wallet version conflict")

	// ErrDuplicateTransaction is an idempotency hit. It wraps the existing
	// record and is usually treated as success by callers.
	ErrDuplicateTransaction = errors.New("transaction already exists")

	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrGatewayCallbackMismatch means the callback references a gateway
	// transaction the ledger never opened.
	ErrGatewayCallbackMismatch = errors.New("unknown gateway transaction reference")

	ErrValidation = errors.New("validation error")
)

// InsufficientFundsError carries the shortfall details for user-visible
// error responses.
type InsufficientFundsError struct {
	WalletID  string
	Available int64
	Requested int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in wallet %s: available %d, requested %d",
		e.WalletID, e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// StateTransitionError reports the rejected transition for audit logs.
type StateTransitionError struct {
	TransactionID string
	From          TransactionStatus
	To            TransactionStatus
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("transaction %s: cannot transition %s -> %s", e.TransactionID, e.From, e.To)
}

func (e *StateTransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}
