package wallet

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marketloop/wallet-service/internal/gateway"
	"github.com/marketloop/wallet-service/pkg/config"
	"github.com/marketloop/wallet-service/pkg/events"
	"github.com/marketloop/wallet-service/pkg/id"
)

func testConfig() config.Config {
	return config.Config{
		Host:            "http://localhost:8080",
		GatewaySecret:   "test-gateway-secret",
		DefaultCurrency: "INR",
		TopupMinAmount:  1,
		TopupMaxAmount:  10_000_000,
		AdjustmentMax:   50_000_000,
		ApplyMaxRetries: 5,
		PendingTimeout:  30 * time.Minute,
		SweepInterval:   time.Minute,
	}
}

type stubGateway struct {
	mu       sync.Mutex
	requests []gateway.InitRequest
	initErr  error
}

func (g *stubGateway) InitializePayment(ctx context.Context, req gateway.InitRequest) (*gateway.InitResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.initErr != nil {
		return nil, g.initErr
	}
	g.requests = append(g.requests, req)
	return &gateway.InitResponse{
		AuthorizationURL: "https://gateway.test/pay/" + req.Reference,
		GatewayReference: "gw-" + req.Reference,
	}, nil
}

func (g *stubGateway) VerifyPayment(ctx context.Context, gatewayRef string) (string, error) {
	return "success", nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.WalletEvent
}

func (p *recordingPublisher) PublishEvent(ctx context.Context, event events.WalletEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) byName(name string) []events.WalletEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	var matched []events.WalletEvent
	for _, e := range p.events {
		if e.Event == name {
			matched = append(matched, e)
		}
	}
	return matched
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *stubGateway, *recordingPublisher) {
	t.Helper()

	store := NewMemoryStore()
	ledger := NewLedger(store, 5)
	gw := &stubGateway{}
	pub := &recordingPublisher{}
	return NewService(testConfig(), ledger, gw, pub), store, gw, pub
}

func newActiveWallet(t *testing.T, store Store, balance int64) *Wallet {
	t.Helper()

	w := &Wallet{
		ID:       id.Generate(),
		OwnerID:  id.Generate(),
		Currency: "INR",
		Balance:  0,
		Status:   WalletActive,
	}
	require.NoError(t, store.CreateWallet(context.Background(), w))

	if balance > 0 {
		ledger := NewLedger(store, 5)
		txn, err := ledger.Open(context.Background(), OpenParams{
			WalletID:      w.ID,
			Type:          TypeCredit,
			Amount:        balance,
			ReferenceType: RefAdminAdjustment,
			InitiatedBy:   ActorSystem,
			Description:   "test seed balance",
		})
		require.NoError(t, err)
		_, err = ledger.Apply(context.Background(), txn.ID)
		require.NoError(t, err)
	}

	fresh, err := store.GetWallet(context.Background(), w.ID)
	require.NoError(t, err)
	return fresh
}

// requireInvariant asserts that the balance equals the replayed sum of
// applied deltas. ROLLED_BACK entries stay in the sum: their effect landed
// and was later compensated by a separate COMPLETED entry.
func requireInvariant(t *testing.T, store Store, walletID string) {
	t.Helper()

	ctx := context.Background()
	w, err := store.GetWallet(ctx, walletID)
	require.NoError(t, err)

	txns, _, err := store.ListTransactions(ctx, walletID, TransactionFilter{})
	require.NoError(t, err)

	var sum int64
	for _, txn := range txns {
		if txn.Status == StatusCompleted || txn.Status == StatusRolledBack {
			sum += txn.Delta()
		}
	}
	require.Equal(t, sum, w.Balance,
		fmt.Sprintf("ledger invariant violated for wallet %s", walletID))
}
