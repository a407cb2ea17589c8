package wallet

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded Store used by the test suite and for local
// development without postgres. Semantics mirror gormStore, including the
// version CAS in ApplyTransaction.
type MemoryStore struct {
	mu      sync.Mutex
	wallets map[string]Wallet
	txns    map[string]Transaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[string]Wallet),
		txns:    make(map[string]Transaction),
	}
}

func (s *MemoryStore) CreateWallet(ctx context.Context, w *Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now
	s.wallets[w.ID] = *w
	return nil
}

func (s *MemoryStore) GetWallet(ctx context.Context, walletID string) (*Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[walletID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return &w, nil
}

func (s *MemoryStore) GetWalletByOwner(ctx context.Context, ownerID, currency string) (*Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.wallets {
		if w.OwnerID == ownerID && w.Currency == currency {
			found := w
			return &found, nil
		}
	}
	return nil, ErrWalletNotFound
}

func (s *MemoryStore) UpdateWalletStatus(ctx context.Context, walletID string, status WalletStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[walletID]
	if !ok {
		return ErrWalletNotFound
	}
	w.Status = status
	w.UpdatedAt = time.Now().UTC()
	s.wallets[walletID] = w
	return nil
}

func (s *MemoryStore) ListWallets(ctx context.Context, filter WalletFilter) ([]Wallet, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []Wallet
	for _, w := range s.wallets {
		if filter.Status != "" && w.Status != filter.Status {
			continue
		}
		if filter.Currency != "" && w.Currency != filter.Currency {
			continue
		}
		if filter.OwnerID != "" && w.OwnerID != filter.OwnerID {
			continue
		}
		if filter.MinBalance != nil && w.Balance < *filter.MinBalance {
			continue
		}
		if filter.MaxBalance != nil && w.Balance > *filter.MaxBalance {
			continue
		}
		if filter.From != nil && w.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && w.CreatedAt.After(*filter.To) {
			continue
		}
		matched = append(matched, w)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	count := int64(len(matched))
	return paginate(matched, filter.Limit, filter.Offset), count, nil
}

func (s *MemoryStore) CreateTransaction(ctx context.Context, txn *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	s.txns[txn.ID] = *txn
	return nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, txnID string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.txns[txnID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return &txn, nil
}

func (s *MemoryStore) GetTransactionByGatewayRef(ctx context.Context, ref string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, txn := range s.txns {
		if txn.GatewayReference != nil && *txn.GatewayReference == ref {
			found := txn
			return &found, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (s *MemoryStore) ListTransactions(ctx context.Context, walletID string, filter TransactionFilter) ([]Transaction, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []Transaction
	for _, txn := range s.txns {
		if txn.WalletID != walletID {
			continue
		}
		if filter.Type != "" && txn.Type != filter.Type {
			continue
		}
		if filter.Status != "" && txn.Status != filter.Status {
			continue
		}
		if filter.ReferenceType != "" && txn.ReferenceType != filter.ReferenceType {
			continue
		}
		if filter.From != nil && txn.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && txn.CreatedAt.After(*filter.To) {
			continue
		}
		matched = append(matched, txn)
	}

	sortTransactions(matched, filter.SortBy, filter.SortDesc)

	count := int64(len(matched))
	return paginate(matched, filter.Limit, filter.Offset), count, nil
}

func (s *MemoryStore) ApplyTransaction(ctx context.Context, txnID string) (*Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.txns[txnID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	if txn.Status != StatusPending {
		return nil, &StateTransitionError{TransactionID: txn.ID, From: txn.Status, To: StatusCompleted}
	}

	w, ok := s.wallets[txn.WalletID]
	if !ok {
		return nil, ErrWalletNotFound
	}

	newBalance := w.Balance + txn.Delta()
	if newBalance < 0 && !w.AllowOverdraft {
		return nil, &InsufficientFundsError{WalletID: w.ID, Available: w.Balance, Requested: txn.Amount}
	}

	now := time.Now().UTC()
	w.Balance = newBalance
	w.Version++
	w.LastTransactionAt = &now
	w.UpdatedAt = now
	s.wallets[w.ID] = w

	txn.Status = StatusCompleted
	txn.CompletedAt = &now
	s.txns[txn.ID] = txn

	applied := w
	return &applied, nil
}

func (s *MemoryStore) MarkTransactionFailed(ctx context.Context, txnID, reason string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.txns[txnID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	if !txn.Status.CanTransition(StatusFailed) {
		return nil, &StateTransitionError{TransactionID: txn.ID, From: txn.Status, To: StatusFailed}
	}

	txn.Status = StatusFailed
	txn.FailureReason = reason
	s.txns[txn.ID] = txn

	failed := txn
	return &failed, nil
}

func (s *MemoryStore) MarkTransactionRolledBack(ctx context.Context, txnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.txns[txnID]
	if !ok {
		return ErrTransactionNotFound
	}
	if !txn.Status.CanTransition(StatusRolledBack) {
		return &StateTransitionError{TransactionID: txn.ID, From: txn.Status, To: StatusRolledBack}
	}

	txn.Status = StatusRolledBack
	s.txns[txn.ID] = txn
	return nil
}

func (s *MemoryStore) StalePendingTransactions(ctx context.Context, refType ReferenceType, cutoff time.Time) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []Transaction
	for _, txn := range s.txns {
		if txn.Status == StatusPending && txn.ReferenceType == refType && txn.CreatedAt.Before(cutoff) {
			stale = append(stale, txn)
		}
	}
	return stale, nil
}

func sortTransactions(txns []Transaction, by SortField, desc bool) {
	less := func(i, j int) bool {
		switch by {
		case SortAmount:
			return txns[i].Amount < txns[j].Amount
		case SortStatus:
			return strings.Compare(string(txns[i].Status), string(txns[j].Status)) < 0
		case SortType:
			return strings.Compare(string(txns[i].Type), string(txns[j].Type)) < 0
		default:
			return txns[i].CreatedAt.Before(txns[j].CreatedAt)
		}
	}
	if desc {
		sort.Slice(txns, func(i, j int) bool { return less(j, i) })
		return
	}
	sort.Slice(txns, less)
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
