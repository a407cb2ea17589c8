package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marketloop/wallet-service/internal/gateway"
	"github.com/marketloop/wallet-service/pkg/config"
	"github.com/marketloop/wallet-service/pkg/events"
	"github.com/marketloop/wallet-service/pkg/id"
	"github.com/marketloop/wallet-service/pkg/logger"
	"github.com/marketloop/wallet-service/pkg/money"
)

var transactionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wallet_transactions_total",
	Help: "Ledger transactions by reference type and terminal status",
}, []string{"reference_type", "status"})

type PaymentMethod string

const (
	MethodUPI        PaymentMethod = "UPI"
	MethodCreditCard PaymentMethod = "CREDIT_CARD"
	MethodDebitCard  PaymentMethod = "DEBIT_CARD"
	MethodNetBanking PaymentMethod = "NET_BANKING"
	MethodWallet     PaymentMethod = "WALLET"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodUPI, MethodCreditCard, MethodDebitCard, MethodNetBanking, MethodWallet:
		return true
	}
	return false
}

// Gateway callback statuses as delivered by the payment provider.
const (
	CallbackSuccess   = "SUCCESS"
	CallbackCompleted = "COMPLETED"
	CallbackFailed    = "FAILED"
	CallbackCancelled = "CANCELLED"
	CallbackPending   = "PENDING"
)

const (
	minDescriptionLen = 5
	maxDescriptionLen = 250
)

// Service is the boundary the rest of the platform calls into. It validates
// intents, translates external events into ledger operations and publishes
// terminal outcomes onto the event queue.
type Service struct {
	cfg       config.Config
	ledger    *Ledger
	gateway   gateway.Client
	publisher events.Publisher
}

func NewService(cfg config.Config, ledger *Ledger, gw gateway.Client, publisher events.Publisher) *Service {
	return &Service{cfg: cfg, ledger: ledger, gateway: gw, publisher: publisher}
}

// ensureWallet lazily provisions the owner's wallet on first interaction.
func (s *Service) ensureWallet(ctx context.Context, ownerID string) (*Wallet, error) {
	w, err := s.ledger.Store().GetWalletByOwner(ctx, ownerID, s.cfg.DefaultCurrency)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	w = &Wallet{
		ID:             id.Generate(),
		OwnerID:        ownerID,
		Currency:       s.cfg.DefaultCurrency,
		Balance:        0,
		Status:         WalletActive,
		AllowOverdraft: s.cfg.AllowOverdraft,
	}
	if err := s.ledger.Store().CreateWallet(ctx, w); err != nil {
		return nil, err
	}

	logger.Info("wallet provisioned", logger.Fields{
		logger.WalletIDKey: w.ID,
		logger.OwnerIDKey:  ownerID,
	})
	return w, nil
}

func (s *Service) GetBalance(ctx context.Context, ownerID string) (*Wallet, money.Money, error) {
	w, err := s.ledger.Store().GetWalletByOwner(ctx, ownerID, s.cfg.DefaultCurrency)
	if err != nil {
		return nil, money.Money{}, err
	}
	return w, money.New(w.Balance, w.Currency), nil
}

// TopupIntent is handed back to the caller for the gateway redirect.
type TopupIntent struct {
	Transaction      *Transaction
	AuthorizationURL string
	Reference        string
}

// InitiateTopup opens a PENDING CREDIT against the payment gateway and
// returns the redirect URL. The balance moves only when the gateway callback
// confirms payment.
func (s *Service) InitiateTopup(ctx context.Context, ownerID string, amount money.Money, method PaymentMethod) (*TopupIntent, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrValidation, method)
	}
	if err := s.checkCurrency(amount); err != nil {
		return nil, err
	}
	if amount.Amount < s.cfg.TopupMinAmount || amount.Amount > s.cfg.TopupMaxAmount {
		return nil, fmt.Errorf("%w: topup amount must be between %s and %s",
			ErrValidation,
			money.New(s.cfg.TopupMinAmount, s.cfg.DefaultCurrency).Format(),
			money.New(s.cfg.TopupMaxAmount, s.cfg.DefaultCurrency).Format())
	}

	w, err := s.ensureWallet(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if w.Status != WalletActive {
		return nil, fmt.Errorf("%w: wallet %s is %s", ErrWalletBlocked, w.ID, w.Status)
	}

	reference := fmt.Sprintf("top-%s-%d", ownerID, time.Now().UnixNano())
	init, err := s.gateway.InitializePayment(ctx, gateway.InitRequest{
		Reference:     reference,
		Amount:        amount.Amount,
		Currency:      amount.Currency,
		PaymentMethod: string(method),
		CallbackURL:   fmt.Sprintf("%s/api/webhooks/payment-gateway", s.cfg.Host),
	})
	if err != nil {
		return nil, err
	}

	gatewayRef := init.GatewayReference
	txn, err := s.ledger.Open(ctx, OpenParams{
		WalletID:         w.ID,
		Type:             TypeCredit,
		Amount:           amount.Amount,
		Currency:         amount.Currency,
		ReferenceType:    RefPaymentGateway,
		ReferenceID:      reference,
		InitiatedBy:      ActorUser,
		GatewayReference: &gatewayRef,
		Description:      fmt.Sprintf("wallet topup via %s", method),
	})
	if err != nil && !errors.Is(err, ErrDuplicateTransaction) {
		return nil, err
	}

	logger.Info("topup initiated", logger.Fields{
		logger.WalletIDKey:    w.ID,
		logger.TransactionKey: txn.ID,
		logger.GatewayRefKey:  gatewayRef,
	})

	return &TopupIntent{
		Transaction:      txn,
		AuthorizationURL: init.AuthorizationURL,
		Reference:        reference,
	}, nil
}

// HandleGatewayCallback applies or fails the referenced PENDING transaction.
// Replays after the transaction is terminal are a no-op, not an error; the
// gateway delivers at least once.
func (s *Service) HandleGatewayCallback(ctx context.Context, gatewayRef, status, failureReason string) (*Transaction, error) {
	txn, err := s.ledger.Store().GetTransactionByGatewayRef(ctx, gatewayRef)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrGatewayCallbackMismatch, gatewayRef)
		}
		return nil, err
	}

	if txn.Status.Terminal() {
		logger.Info("gateway callback replay ignored", logger.Fields{
			logger.GatewayRefKey:  gatewayRef,
			logger.TransactionKey: txn.ID,
			"status":              txn.Status,
		})
		return txn, nil
	}

	switch strings.ToUpper(status) {
	case CallbackSuccess, CallbackCompleted:
		if _, err := s.ledger.Apply(ctx, txn.ID); err != nil {
			return nil, err
		}
		s.finalize(ctx, txn.ID, "transaction.completed")
	case CallbackFailed, CallbackCancelled:
		reason := failureReason
		if reason == "" {
			reason = "declined by gateway"
		}
		if _, err := s.ledger.Fail(ctx, txn.ID, reason); err != nil {
			return nil, err
		}
		s.finalize(ctx, txn.ID, "transaction.failed")
	case CallbackPending:
		// Gateway is still processing; nothing to reconcile yet.
		return txn, nil
	default:
		return nil, fmt.Errorf("%w: unknown gateway status %q", ErrValidation, status)
	}

	return s.ledger.Store().GetTransaction(ctx, txn.ID)
}

// DebitForOrder debits the wallet as a checkout payment instrument.
func (s *Service) DebitForOrder(ctx context.Context, ownerID string, amount money.Money, orderID string) (*Transaction, error) {
	if err := s.checkCurrency(amount); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	w, err := s.ledger.Store().GetWalletByOwner(ctx, ownerID, s.cfg.DefaultCurrency)
	if err != nil {
		return nil, err
	}

	return s.openAndApply(ctx, OpenParams{
		WalletID:      w.ID,
		Type:          TypeDebit,
		Amount:        amount.Amount,
		Currency:      amount.Currency,
		ReferenceType: RefOrder,
		ReferenceID:   orderID,
		InitiatedBy:   ActorUser,
		Description:   fmt.Sprintf("payment for order %s", orderID),
	})
}

// CreditForRefund credits a refund back. Deliberately a fresh REFUND entry,
// never a rollback of the order debit: the two must stay independently
// visible in the history.
func (s *Service) CreditForRefund(ctx context.Context, ownerID string, amount money.Money, orderID string) (*Transaction, error) {
	if err := s.checkCurrency(amount); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	w, err := s.ensureWallet(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	return s.openAndApply(ctx, OpenParams{
		WalletID:      w.ID,
		Type:          TypeCredit,
		Amount:        amount.Amount,
		Currency:      amount.Currency,
		ReferenceType: RefRefund,
		ReferenceID:   orderID,
		InitiatedBy:   ActorSystem,
		Description:   fmt.Sprintf("refund for order %s", orderID),
	})
}

// AdjustBalance applies an admin adjustment synchronously; there is no
// external confirmation to wait for, so no PENDING window is observable.
func (s *Service) AdjustBalance(ctx context.Context, ownerID string, amount money.Money, txnType TransactionType, description, adminID string) (*Transaction, error) {
	if err := s.checkCurrency(amount); err != nil {
		return nil, err
	}
	if !txnType.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", ErrValidation, txnType)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if amount.Amount > s.cfg.AdjustmentMax {
		return nil, fmt.Errorf("%w: adjustment exceeds ceiling of %s",
			ErrValidation, money.New(s.cfg.AdjustmentMax, s.cfg.DefaultCurrency).Format())
	}
	if n := len(strings.TrimSpace(description)); n < minDescriptionLen || n > maxDescriptionLen {
		return nil, fmt.Errorf("%w: description must be %d-%d characters", ErrValidation, minDescriptionLen, maxDescriptionLen)
	}

	w, err := s.ensureWallet(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	return s.openAndApply(ctx, OpenParams{
		WalletID:        w.ID,
		Type:            txnType,
		Amount:          amount.Amount,
		Currency:        amount.Currency,
		ReferenceType:   RefAdminAdjustment,
		ReferenceID:     adminID,
		InitiatedBy:     ActorAdmin,
		Description:     description,
		AdjustedByAdmin: adminID,
	})
}

// SetStatus blocks, unblocks or retires a wallet. Wallets are never deleted.
func (s *Service) SetStatus(ctx context.Context, ownerID string, status WalletStatus) (*Wallet, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown wallet status %q", ErrValidation, status)
	}

	w, err := s.ledger.Store().GetWalletByOwner(ctx, ownerID, s.cfg.DefaultCurrency)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Store().UpdateWalletStatus(ctx, w.ID, status); err != nil {
		return nil, err
	}
	return s.ledger.Store().GetWallet(ctx, w.ID)
}

// RollbackTransaction is the admin surface over Ledger.Rollback.
func (s *Service) RollbackTransaction(ctx context.Context, txnID string) (*Transaction, error) {
	compensation, err := s.ledger.Rollback(ctx, txnID)
	if err != nil {
		return nil, err
	}
	s.finalize(ctx, txnID, "transaction.rolled_back")
	s.finalize(ctx, compensation.ID, "transaction.completed")
	return compensation, nil
}

func (s *Service) ListTransactions(ctx context.Context, ownerID string, filter TransactionFilter) ([]Transaction, int64, error) {
	w, err := s.ledger.Store().GetWalletByOwner(ctx, ownerID, s.cfg.DefaultCurrency)
	if err != nil {
		return nil, 0, err
	}
	return s.ledger.Store().ListTransactions(ctx, w.ID, filter)
}

func (s *Service) ListWallets(ctx context.Context, filter WalletFilter) ([]Wallet, int64, error) {
	return s.ledger.Store().ListWallets(ctx, filter)
}

// openAndApply runs the synchronous open-then-apply path used by order
// debits, refund credits and admin adjustments. A failed apply marks the
// opened transaction FAILED so no PENDING entry lingers.
func (s *Service) openAndApply(ctx context.Context, p OpenParams) (*Transaction, error) {
	txn, err := s.ledger.Open(ctx, p)
	if err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			return txn, nil
		}
		return nil, err
	}

	if _, err := s.ledger.Apply(ctx, txn.ID); err != nil {
		if _, failErr := s.ledger.Fail(ctx, txn.ID, err.Error()); failErr != nil {
			logger.Error("could not fail unapplied transaction", logger.Fields{
				logger.TransactionKey: txn.ID,
				logger.ErrorKey:       failErr.Error(),
			})
		}
		s.finalize(ctx, txn.ID, "transaction.failed")
		return nil, err
	}

	s.finalize(ctx, txn.ID, "transaction.completed")
	return s.ledger.Store().GetTransaction(ctx, txn.ID)
}

// finalize records metrics and publishes the terminal event. Publishing is
// best effort: the ledger is the source of truth, the queue is a projection.
func (s *Service) finalize(ctx context.Context, txnID, event string) {
	txn, err := s.ledger.Store().GetTransaction(ctx, txnID)
	if err != nil {
		logger.Error("finalize: transaction lookup failed", logger.Fields{
			logger.TransactionKey: txnID,
			logger.ErrorKey:       err.Error(),
		})
		return
	}

	transactionOutcomes.WithLabelValues(string(txn.ReferenceType), string(txn.Status)).Inc()

	w, err := s.ledger.Store().GetWallet(ctx, txn.WalletID)
	if err != nil {
		logger.Error("finalize: wallet lookup failed", logger.Fields{
			logger.WalletIDKey: txn.WalletID,
			logger.ErrorKey:    err.Error(),
		})
		return
	}

	if s.publisher == nil {
		return
	}
	err = s.publisher.PublishEvent(ctx, events.WalletEvent{
		Event:         event,
		TransactionID: txn.ID,
		WalletID:      w.ID,
		OwnerID:       w.OwnerID,
		ReferenceType: string(txn.ReferenceType),
		ReferenceID:   txn.ReferenceID,
		Type:          string(txn.Type),
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		Timestamp:     time.Now().UTC(),
	})
	if err != nil {
		logger.Warn("finalize: event publish failed", logger.Fields{
			logger.TransactionKey: txn.ID,
			logger.ErrorKey:       err.Error(),
		})
	}
}

func (s *Service) checkCurrency(amount money.Money) error {
	if amount.Currency != s.cfg.DefaultCurrency {
		return fmt.Errorf("%w: %s vs %s", money.ErrCurrencyMismatch, amount.Currency, s.cfg.DefaultCurrency)
	}
	return nil
}
