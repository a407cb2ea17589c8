package wallet

import (
	"context"
	"time"

	"github.com/marketloop/wallet-service/pkg/logger"
)

// Sweeper fails PENDING gateway transactions that never received a callback,
// so they stop counting as in-flight. Runs until the context is cancelled.
type Sweeper struct {
	service  *Service
	interval time.Duration
	timeout  time.Duration
}

func NewSweeper(service *Service, interval, timeout time.Duration) *Sweeper {
	return &Sweeper{service: service, interval: interval, timeout: timeout}
}

func (s *Sweeper) Start(ctx context.Context) {
	logger.Info("starting pending-transaction sweeper", logger.Fields{
		"interval": s.interval.String(),
		"timeout":  s.timeout.String(),
	})
	go s.run(ctx)
}

func (s *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				logger.Error("sweep pass failed", logger.WithError(err))
			}
		}
	}
}

// Sweep runs one pass. Individual transaction failures are logged and
// skipped; one bad record never stalls the rest of the pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.timeout)
	stale, err := s.service.ledger.Store().StalePendingTransactions(ctx, RefPaymentGateway, cutoff)
	if err != nil {
		return err
	}

	for _, txn := range stale {
		if _, err := s.service.ledger.Fail(ctx, txn.ID, "timeout"); err != nil {
			logger.Error("sweeper: could not fail stale transaction", logger.Fields{
				logger.TransactionKey: txn.ID,
				logger.ErrorKey:       err.Error(),
			})
			continue
		}
		s.service.finalize(ctx, txn.ID, "transaction.failed")

		logger.Info("swept stale pending transaction", logger.Fields{
			logger.TransactionKey: txn.ID,
			logger.WalletIDKey:    txn.WalletID,
			"age":                 time.Since(txn.CreatedAt).String(),
		})
	}
	return nil
}
