package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketloop/wallet-service/pkg/id"
	"github.com/marketloop/wallet-service/pkg/money"
)

func TestTopupFlow(t *testing.T) {
	svc, store, gw, pub := newTestService(t)
	ctx := context.Background()
	ownerID := id.Generate()

	amount, err := money.Parse("500.00", "INR")
	require.NoError(t, err)

	// Wallet does not exist yet; topup provisions it lazily.
	intent, err := svc.InitiateTopup(ctx, ownerID, amount, MethodUPI)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, intent.Transaction.Status)
	assert.NotEmpty(t, intent.AuthorizationURL)
	require.Len(t, gw.requests, 1)
	assert.Equal(t, int64(50000), gw.requests[0].Amount)

	w, balance, err := svc.GetBalance(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", balance.Format())

	// Gateway confirms payment.
	gatewayRef := *intent.Transaction.GatewayReference
	txn, err := svc.HandleGatewayCallback(ctx, gatewayRef, "SUCCESS", "")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, txn.Status)

	_, balance, err = svc.GetBalance(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, "500.00", balance.Format())

	// Replay of the same callback is a no-op, not a double credit.
	txn, err = svc.HandleGatewayCallback(ctx, gatewayRef, "SUCCESS", "")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, txn.Status)

	_, balance, err = svc.GetBalance(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, "500.00", balance.Format())

	assert.Len(t, pub.byName("transaction.completed"), 1)
	requireInvariant(t, store, w.ID)
}

func TestTopupValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	ownerID := id.Generate()

	mustMoney := func(s string) money.Money {
		m, err := money.Parse(s, "INR")
		require.NoError(t, err)
		return m
	}

	tests := []struct {
		name   string
		amount money.Money
		method PaymentMethod
	}{
		{name: "unknown method", amount: mustMoney("100.00"), method: "CASH"},
		{name: "below minimum", amount: money.New(0, "INR"), method: MethodUPI},
		{name: "above maximum", amount: mustMoney("100000.01"), method: MethodUPI},
		{name: "wrong currency", amount: money.New(100, "USD"), method: MethodUPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.InitiateTopup(ctx, ownerID, tt.amount, tt.method)
			assert.Error(t, err)
		})
	}
}

func TestTopupRejectsBlockedWallet(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	w := newActiveWallet(t, store, 0)
	require.NoError(t, store.UpdateWalletStatus(ctx, w.ID, WalletBlocked))

	amount, _ := money.Parse("100.00", "INR")
	_, err := svc.InitiateTopup(ctx, w.OwnerID, amount, MethodUPI)
	assert.ErrorIs(t, err, ErrWalletBlocked)
}

func TestCallbackFailureMarksTransactionFailed(t *testing.T) {
	svc, store, _, pub := newTestService(t)
	ctx := context.Background()
	ownerID := id.Generate()

	amount, _ := money.Parse("250.00", "INR")
	intent, err := svc.InitiateTopup(ctx, ownerID, amount, MethodCreditCard)
	require.NoError(t, err)

	gatewayRef := *intent.Transaction.GatewayReference
	txn, err := svc.HandleGatewayCallback(ctx, gatewayRef, "FAILED", "card declined")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, txn.Status)
	assert.Equal(t, "card declined", txn.FailureReason)

	_, balance, err := svc.GetBalance(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", balance.Format())

	// Replay of the failure callback is also a no-op.
	_, err = svc.HandleGatewayCallback(ctx, gatewayRef, "FAILED", "card declined")
	require.NoError(t, err)

	assert.Len(t, pub.byName("transaction.failed"), 1)

	w, err := store.GetWalletByOwner(ctx, ownerID, "INR")
	require.NoError(t, err)
	requireInvariant(t, store, w.ID)
}

func TestCallbackPendingIsNoOp(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	ownerID := id.Generate()

	amount, _ := money.Parse("100.00", "INR")
	intent, err := svc.InitiateTopup(ctx, ownerID, amount, MethodNetBanking)
	require.NoError(t, err)

	txn, err := svc.HandleGatewayCallback(ctx, *intent.Transaction.GatewayReference, "PENDING", "")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, txn.Status)
}

func TestCallbackUnknownReference(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.HandleGatewayCallback(context.Background(), "gw-unknown", "SUCCESS", "")
	assert.ErrorIs(t, err, ErrGatewayCallbackMismatch)
}

func TestCallbackUnknownStatus(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	amount, _ := money.Parse("100.00", "INR")
	intent, err := svc.InitiateTopup(ctx, id.Generate(), amount, MethodUPI)
	require.NoError(t, err)

	_, err = svc.HandleGatewayCallback(ctx, *intent.Transaction.GatewayReference, "EXPLODED", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestOrderDebitThenRefundCredit(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	w := newActiveWallet(t, store, 20000) // 200.00

	orderID := id.Generate()
	debitAmount, _ := money.Parse("50.00", "INR")

	debit, err := svc.DebitForOrder(ctx, w.OwnerID, debitAmount, orderID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, debit.Status)
	assert.Equal(t, RefOrder, debit.ReferenceType)

	_, balance, err := svc.GetBalance(ctx, w.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, "150.00", balance.Format())

	credit, err := svc.CreditForRefund(ctx, w.OwnerID, debitAmount, orderID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, credit.Status)
	assert.Equal(t, RefRefund, credit.ReferenceType)

	_, balance, err = svc.GetBalance(ctx, w.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, "200.00", balance.Format())

	// Refund is a distinct entry, not a rollback of the debit.
	assert.NotEqual(t, debit.ID, credit.ID)
	fetchedDebit, err := store.GetTransaction(ctx, debit.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, fetchedDebit.Status)

	requireInvariant(t, store, w.ID)
}

func TestOrderDebitInsufficientFunds(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	w := newActiveWallet(t, store, 1000) // 10.00

	amount, _ := money.Parse("25.00", "INR")
	_, err := svc.DebitForOrder(ctx, w.OwnerID, amount, id.Generate())
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, balance, err := svc.GetBalance(ctx, w.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, "10.00", balance.Format())

	requireInvariant(t, store, w.ID)
}

func TestAdminAdjustment(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	w := newActiveWallet(t, store, 10000) // 100.00
	adminID := id.Generate()

	amount, _ := money.Parse("40.00", "INR")
	txn, err := svc.AdjustBalance(ctx, w.OwnerID, amount, TypeCredit, "goodwill credit", adminID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, txn.Status)
	assert.Equal(t, RefAdminAdjustment, txn.ReferenceType)
	assert.Equal(t, ActorAdmin, txn.InitiatedBy)
	assert.Equal(t, adminID, txn.AdjustedByAdmin)

	_, balance, err := svc.GetBalance(ctx, w.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, "140.00", balance.Format())
}

func TestAdminDebitAdjustmentRejectedOnInsufficientFunds(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	w := newActiveWallet(t, store, 10000) // 100.00

	amount, _ := money.Parse("150.00", "INR")
	_, err := svc.AdjustBalance(ctx, w.OwnerID, amount, TypeDebit, "correction", id.Generate())
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, balance, err := svc.GetBalance(ctx, w.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", balance.Format())
}

func TestAdminAdjustmentValidation(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	w := newActiveWallet(t, store, 0)
	adminID := id.Generate()

	mustMoney := func(s string) money.Money {
		m, err := money.Parse(s, "INR")
		require.NoError(t, err)
		return m
	}

	tests := []struct {
		name        string
		amount      money.Money
		txnType     TransactionType
		description string
	}{
		{name: "description too short", amount: mustMoney("10.00"), txnType: TypeCredit, description: "hey"},
		{name: "description too long", amount: mustMoney("10.00"), txnType: TypeCredit, description: string(make([]byte, 251))},
		{name: "above ceiling", amount: mustMoney("500000.01"), txnType: TypeCredit, description: "large credit"},
		{name: "bad type", amount: mustMoney("10.00"), txnType: "TRANSFER", description: "valid description"},
		{name: "zero amount", amount: money.New(0, "INR"), txnType: TypeCredit, description: "valid description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AdjustBalance(ctx, w.OwnerID, tt.amount, tt.txnType, tt.description, adminID)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSetStatus(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	w := newActiveWallet(t, store, 0)

	updated, err := svc.SetStatus(ctx, w.OwnerID, WalletBlocked)
	require.NoError(t, err)
	assert.Equal(t, WalletBlocked, updated.Status)

	_, err = svc.SetStatus(ctx, w.OwnerID, "FROZEN")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.SetStatus(ctx, id.Generate(), WalletActive)
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestRollbackService(t *testing.T) {
	svc, store, _, pub := newTestService(t)
	ctx := context.Background()
	w := newActiveWallet(t, store, 0)

	amount, _ := money.Parse("75.00", "INR")
	txn, err := svc.CreditForRefund(ctx, w.OwnerID, amount, id.Generate())
	require.NoError(t, err)

	compensation, err := svc.RollbackTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, TypeDebit, compensation.Type)

	_, balance, err := svc.GetBalance(ctx, w.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", balance.Format())

	assert.Len(t, pub.byName("transaction.rolled_back"), 1)
	requireInvariant(t, store, w.ID)
}

func TestListTransactionsFilters(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	w := newActiveWallet(t, store, 50000)

	orderAmount, _ := money.Parse("10.00", "INR")
	for i := 0; i < 3; i++ {
		_, err := svc.DebitForOrder(ctx, w.OwnerID, orderAmount, id.Generate())
		require.NoError(t, err)
	}
	refundAmount, _ := money.Parse("5.00", "INR")
	_, err := svc.CreditForRefund(ctx, w.OwnerID, refundAmount, id.Generate())
	require.NoError(t, err)

	txns, count, err := svc.ListTransactions(ctx, w.OwnerID, TransactionFilter{ReferenceType: RefOrder})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	for _, txn := range txns {
		assert.Equal(t, RefOrder, txn.ReferenceType)
	}

	_, count, err = svc.ListTransactions(ctx, w.OwnerID, TransactionFilter{Type: TypeCredit})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count) // seed + refund

	paged, count, err := svc.ListTransactions(ctx, w.OwnerID, TransactionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
	assert.Len(t, paged, 2)
}

func TestListWalletsAdminQuery(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	active := newActiveWallet(t, store, 10000)
	blocked := newActiveWallet(t, store, 0)
	require.NoError(t, store.UpdateWalletStatus(ctx, blocked.ID, WalletBlocked))

	wallets, count, err := svc.ListWallets(ctx, WalletFilter{Status: WalletBlocked})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	require.Len(t, wallets, 1)
	assert.Equal(t, blocked.ID, wallets[0].ID)

	min := int64(5000)
	wallets, _, err = svc.ListWallets(ctx, WalletFilter{MinBalance: &min})
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, active.ID, wallets[0].ID)
}
