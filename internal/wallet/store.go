package wallet

import (
	"context"
	"time"
)

// Store is the durable side of the ledger. ApplyTransaction is the only
// balance-mutating primitive and must be atomic: the balance write, the
// version bump and the status transition land in one storage transaction
// or not at all. Everything else is plain reads and appends.
type Store interface {
	CreateWallet(ctx context.Context, w *Wallet) error
	GetWallet(ctx context.Context, walletID string) (*Wallet, error)
	GetWalletByOwner(ctx context.Context, ownerID, currency string) (*Wallet, error)
	UpdateWalletStatus(ctx context.Context, walletID string, status WalletStatus) error
	ListWallets(ctx context.Context, filter WalletFilter) ([]Wallet, int64, error)

	CreateTransaction(ctx context.Context, txn *Transaction) error
	GetTransaction(ctx context.Context, txnID string) (*Transaction, error)
	GetTransactionByGatewayRef(ctx context.Context, ref string) (*Transaction, error)
	ListTransactions(ctx context.Context, walletID string, filter TransactionFilter) ([]Transaction, int64, error)

	// ApplyTransaction completes a PENDING transaction and applies its
	// delta in one atomic unit, compare-and-swapping on Wallet.Version.
	// Returns ErrVersionConflict on a CAS miss (callers retry), an
	// InsufficientFundsError when a debit would overdraw a non-overdraft
	// wallet, and a StateTransitionError when the transaction is not
	// PENDING.
	ApplyTransaction(ctx context.Context, txnID string) (*Wallet, error)

	MarkTransactionFailed(ctx context.Context, txnID, reason string) (*Transaction, error)
	MarkTransactionRolledBack(ctx context.Context, txnID string) error

	// StalePendingTransactions lists PENDING transactions of the given
	// reference type created before the cutoff, for the sweep job.
	StalePendingTransactions(ctx context.Context, refType ReferenceType, cutoff time.Time) ([]Transaction, error)
}
