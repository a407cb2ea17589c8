package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marketloop/wallet-service/pkg/id"
	"github.com/marketloop/wallet-service/pkg/logger"
	"github.com/marketloop/wallet-service/pkg/money"
)

const backoffBase = 10 * time.Millisecond

// Ledger drives the transaction lifecycle over a Store. It owns the retry
// loop around the version CAS; the Store owns atomicity of a single attempt.
type Ledger struct {
	store      Store
	maxRetries int
}

func NewLedger(store Store, maxRetries int) *Ledger {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Ledger{store: store, maxRetries: maxRetries}
}

// OpenParams describes a transaction to open. TransactionID and
// GatewayReference both act as idempotency keys when supplied.
type OpenParams struct {
	TransactionID    string
	WalletID         string
	Type             TransactionType
	Amount           int64
	Currency         string
	ReferenceType    ReferenceType
	ReferenceID      string
	InitiatedBy      Actor
	GatewayReference *string
	Description      string
	AdjustedByAdmin  string
}

// Open creates a PENDING transaction without touching the balance. If the
// supplied transaction ID or gateway reference already exists, the existing
// record is returned wrapped in ErrDuplicateTransaction; callers decide
// whether that is an error (webhook replays treat it as success).
func (l *Ledger) Open(ctx context.Context, p OpenParams) (*Transaction, error) {
	if p.TransactionID != "" {
		if existing, err := l.store.GetTransaction(ctx, p.TransactionID); err == nil {
			return existing, ErrDuplicateTransaction
		} else if !errors.Is(err, ErrTransactionNotFound) {
			return nil, err
		}
	}
	if p.GatewayReference != nil {
		if existing, err := l.store.GetTransactionByGatewayRef(ctx, *p.GatewayReference); err == nil {
			return existing, ErrDuplicateTransaction
		} else if !errors.Is(err, ErrTransactionNotFound) {
			return nil, err
		}
	}

	if p.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if !p.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", ErrValidation, p.Type)
	}
	if !p.ReferenceType.Valid() {
		return nil, fmt.Errorf("%w: unknown reference type %q", ErrValidation, p.ReferenceType)
	}

	w, err := l.store.GetWallet(ctx, p.WalletID)
	if err != nil {
		return nil, err
	}
	if w.Status != WalletActive {
		return nil, fmt.Errorf("%w: wallet %s is %s", ErrWalletBlocked, w.ID, w.Status)
	}
	if p.Currency != "" && p.Currency != w.Currency {
		return nil, fmt.Errorf("%w: %s vs %s", money.ErrCurrencyMismatch, p.Currency, w.Currency)
	}

	txnID := p.TransactionID
	if txnID == "" {
		txnID = id.Generate()
	}

	txn := &Transaction{
		ID:               txnID,
		WalletID:         w.ID,
		Type:             p.Type,
		Amount:           p.Amount,
		Currency:         w.Currency,
		Status:           StatusPending,
		ReferenceType:    p.ReferenceType,
		ReferenceID:      p.ReferenceID,
		InitiatedBy:      p.InitiatedBy,
		GatewayReference: p.GatewayReference,
		Description:      p.Description,
		AdjustedByAdmin:  p.AdjustedByAdmin,
		CreatedAt:        time.Now().UTC(),
	}

	if err := l.store.CreateTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// Apply finalizes a PENDING transaction to COMPLETED and mutates the balance.
// Version conflicts are retried with exponential backoff up to the bound;
// anything else fails immediately.
func (l *Ledger) Apply(ctx context.Context, txnID string) (*Wallet, error) {
	var lastErr error
	for attempt := 0; attempt < l.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffBase << (attempt - 1)):
			}
		}

		w, err := l.store.ApplyTransaction(ctx, txnID)
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}

		lastErr = err
		logger.Debug("ledger: version conflict, retrying", logger.Fields{
			logger.TransactionKey: txnID,
			"attempt":             attempt + 1,
		})
	}
	return nil, fmt.Errorf("%w: %v", ErrConcurrencyConflict, lastErr)
}

// Fail marks a PENDING transaction FAILED. No balance mutation: Apply was
// never called on it.
func (l *Ledger) Fail(ctx context.Context, txnID, reason string) (*Transaction, error) {
	return l.store.MarkTransactionFailed(ctx, txnID, reason)
}

// Rollback reverses a COMPLETED transaction by opening and applying a
// compensating entry, then marking the original ROLLED_BACK. The original
// record is never mutated beyond its status; history stays intact.
func (l *Ledger) Rollback(ctx context.Context, txnID string) (*Transaction, error) {
	original, err := l.store.GetTransaction(ctx, txnID)
	if err != nil {
		return nil, err
	}
	if original.Status != StatusCompleted {
		return nil, &StateTransitionError{TransactionID: original.ID, From: original.Status, To: StatusRolledBack}
	}

	compensation, err := l.Open(ctx, OpenParams{
		WalletID:      original.WalletID,
		Type:          original.Type.Inverse(),
		Amount:        original.Amount,
		Currency:      original.Currency,
		ReferenceType: original.ReferenceType,
		ReferenceID:   original.ID,
		InitiatedBy:   ActorSystem,
		Description:   fmt.Sprintf("compensation for transaction %s", original.ID),
	})
	if err != nil {
		return nil, err
	}

	if _, err := l.Apply(ctx, compensation.ID); err != nil {
		// The compensating entry stays PENDING; mark it failed so it
		// never counts against the balance, and leave the original
		// COMPLETED.
		if _, failErr := l.Fail(ctx, compensation.ID, "compensation apply failed"); failErr != nil {
			logger.Error("ledger: could not fail orphaned compensation", logger.Fields{
				logger.TransactionKey: compensation.ID,
				logger.ErrorKey:       failErr.Error(),
			})
		}
		return nil, err
	}

	if err := l.store.MarkTransactionRolledBack(ctx, original.ID); err != nil {
		return nil, err
	}

	return l.store.GetTransaction(ctx, compensation.ID)
}

// Store exposes the underlying store for read paths.
func (l *Ledger) Store() Store {
	return l.store
}
