package wallet

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type gormStore struct {
	db *gorm.DB
}

// NewGormStore wraps a gorm handle as the ledger Store and migrates the
// wallet tables.
func NewGormStore(db *gorm.DB) (Store, error) {
	if err := db.AutoMigrate(&Wallet{}, &Transaction{}); err != nil {
		return nil, err
	}
	return &gormStore{db: db}, nil
}

func (s *gormStore) CreateWallet(ctx context.Context, w *Wallet) error {
	return s.db.WithContext(ctx).Create(w).Error
}

func (s *gormStore) GetWallet(ctx context.Context, walletID string) (*Wallet, error) {
	var w Wallet
	if err := s.db.WithContext(ctx).Where("id = ?", walletID).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (s *gormStore) GetWalletByOwner(ctx context.Context, ownerID, currency string) (*Wallet, error) {
	var w Wallet
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND currency = ?", ownerID, currency).
		First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (s *gormStore) UpdateWalletStatus(ctx context.Context, walletID string, status WalletStatus) error {
	res := s.db.WithContext(ctx).Model(&Wallet{}).
		Where("id = ?", walletID).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func (s *gormStore) ListWallets(ctx context.Context, filter WalletFilter) ([]Wallet, int64, error) {
	q := s.db.WithContext(ctx).Model(&Wallet{})

	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Currency != "" {
		q = q.Where("currency = ?", filter.Currency)
	}
	if filter.OwnerID != "" {
		q = q.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.MinBalance != nil {
		q = q.Where("balance >= ?", *filter.MinBalance)
	}
	if filter.MaxBalance != nil {
		q = q.Where("balance <= ?", *filter.MaxBalance)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at <= ?", *filter.To)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	var wallets []Wallet
	err := q.Order("created_at desc").
		Limit(normalizeLimit(filter.Limit)).
		Offset(filter.Offset).
		Find(&wallets).Error
	return wallets, count, err
}

// normalizeLimit maps "no limit" to gorm's cancel value; Limit(0) would
// return zero rows.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func (s *gormStore) CreateTransaction(ctx context.Context, txn *Transaction) error {
	return s.db.WithContext(ctx).Create(txn).Error
}

func (s *gormStore) GetTransaction(ctx context.Context, txnID string) (*Transaction, error) {
	var txn Transaction
	if err := s.db.WithContext(ctx).Where("id = ?", txnID).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &txn, nil
}

func (s *gormStore) GetTransactionByGatewayRef(ctx context.Context, ref string) (*Transaction, error) {
	var txn Transaction
	err := s.db.WithContext(ctx).Where("gateway_reference = ?", ref).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &txn, nil
}

func (s *gormStore) ListTransactions(ctx context.Context, walletID string, filter TransactionFilter) ([]Transaction, int64, error) {
	q := s.db.WithContext(ctx).Model(&Transaction{}).Where("wallet_id = ?", walletID)

	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.ReferenceType != "" {
		q = q.Where("reference_type = ?", filter.ReferenceType)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at <= ?", *filter.To)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	order := filter.SortBy.Column()
	if filter.SortDesc {
		order += " desc"
	}

	var txns []Transaction
	err := q.Order(order).
		Limit(normalizeLimit(filter.Limit)).
		Offset(filter.Offset).
		Find(&txns).Error
	return txns, count, err
}

func (s *gormStore) ApplyTransaction(ctx context.Context, txnID string) (*Wallet, error) {
	var applied Wallet

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txn Transaction
		if err := tx.Where("id = ?", txnID).First(&txn).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}

		if txn.Status != StatusPending {
			return &StateTransitionError{TransactionID: txn.ID, From: txn.Status, To: StatusCompleted}
		}

		var w Wallet
		if err := tx.Where("id = ?", txn.WalletID).First(&w).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrWalletNotFound
			}
			return err
		}

		newBalance := w.Balance + txn.Delta()
		if newBalance < 0 && !w.AllowOverdraft {
			return &InsufficientFundsError{WalletID: w.ID, Available: w.Balance, Requested: txn.Amount}
		}

		now := time.Now().UTC()
		res := tx.Model(&Wallet{}).
			Where("id = ? AND version = ?", w.ID, w.Version).
			Updates(map[string]interface{}{
				"balance":             newBalance,
				"version":             w.Version + 1,
				"last_transaction_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}

		if err := tx.Model(&Transaction{}).
			Where("id = ?", txn.ID).
			Updates(map[string]interface{}{
				"status":       StatusCompleted,
				"completed_at": now,
			}).Error; err != nil {
			return err
		}

		applied = w
		applied.Balance = newBalance
		applied.Version = w.Version + 1
		applied.LastTransactionAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &applied, nil
}

func (s *gormStore) MarkTransactionFailed(ctx context.Context, txnID, reason string) (*Transaction, error) {
	var failed Transaction

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txn Transaction
		if err := tx.Where("id = ?", txnID).First(&txn).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}

		if !txn.Status.CanTransition(StatusFailed) {
			return &StateTransitionError{TransactionID: txn.ID, From: txn.Status, To: StatusFailed}
		}

		if err := tx.Model(&Transaction{}).
			Where("id = ?", txn.ID).
			Updates(map[string]interface{}{
				"status":         StatusFailed,
				"failure_reason": reason,
			}).Error; err != nil {
			return err
		}

		failed = txn
		failed.Status = StatusFailed
		failed.FailureReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &failed, nil
}

func (s *gormStore) MarkTransactionRolledBack(ctx context.Context, txnID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txn Transaction
		if err := tx.Where("id = ?", txnID).First(&txn).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}

		if !txn.Status.CanTransition(StatusRolledBack) {
			return &StateTransitionError{TransactionID: txn.ID, From: txn.Status, To: StatusRolledBack}
		}

		return tx.Model(&Transaction{}).
			Where("id = ?", txn.ID).
			Update("status", StatusRolledBack).Error
	})
}

func (s *gormStore) StalePendingTransactions(ctx context.Context, refType ReferenceType, cutoff time.Time) ([]Transaction, error) {
	var txns []Transaction
	err := s.db.WithContext(ctx).
		Where("status = ? AND reference_type = ? AND created_at < ?", StatusPending, refType, cutoff).
		Find(&txns).Error
	return txns, err
}
