package services_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/custody-escrow/backend/internal/events"
	"github.com/custody-escrow/backend/internal/models"
	"github.com/custody-escrow/backend/internal/repositories/memstore"
	"github.com/custody-escrow/backend/internal/services"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	alice     = "0:a1"
	bob       = "0:b0"
	carol     = "0:c4"
	mallory   = "0:ee"
	mediator  = "0:m3"
	defMed    = "0:dm"
	feeWallet = "0:fe"
	custody   = "0:c0"

	jetton models.Asset = "EQjetton"
)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memstore.Store
	adapter  *services.CustodyAdapter
	svc      *services.EscrowService
	accounts *services.AccountService
	rec      *recorder
	now      time.Time
}

func newFixture(t *testing.T, platformFeeBPS int) *fixture {
	t.Helper()
	log := zap.NewNop()
	store := memstore.New()
	rec := &recorder{}
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: store,
		rec:   rec,
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	f.adapter = services.NewCustodyAdapter(store.Balances(), custody, log)
	f.svc = services.NewEscrowService(store, store.Escrows(), store.Balances(), store.Config(), store.Audit(), f.adapter, rec, log)
	f.svc.SetNowFunc(func() time.Time { return f.now })
	f.accounts = services.NewAccountService(store, store.Balances(), store.Withdrawals(), store.Audit(), rec, log)

	require.NoError(t, store.Config().SaveSettings(f.ctx, &models.PlatformSettings{
		PlatformFeeBPS:         platformFeeBPS,
		FeeDestination:         feeWallet,
		DefaultMediator:        defMed,
		DefaultMediationFeeBPS: 500,
	}))
	require.NoError(t, store.Config().SetAssetSupported(f.ctx, models.AssetNative, true))
	require.NoError(t, store.Config().SetAssetSupported(f.ctx, jetton, true))
	return f
}

func (f *fixture) fund(account string, asset models.Asset, amount int64) {
	f.t.Helper()
	require.NoError(f.t, f.store.Balances().Credit(f.ctx, account, asset, big.NewInt(amount)))
}

func (f *fixture) balance(account string, asset models.Asset) int64 {
	f.t.Helper()
	b, err := f.store.Balances().Balance(f.ctx, account, asset)
	require.NoError(f.t, err)
	return b.Int64()
}

func (f *fixture) get(id uint64) *models.Escrow {
	f.t.Helper()
	e, err := f.svc.GetEscrow(f.ctx, id)
	require.NoError(f.t, err)
	return e
}

func (f *fixture) count() uint64 {
	f.t.Helper()
	n, err := f.svc.TotalEscrows(f.ctx)
	require.NoError(f.t, err)
	return n
}

func call(caller string, value int64) services.Call {
	return services.Call{Caller: caller, Value: big.NewInt(value)}
}

func ptr(s string) *string { return &s }

// fundedNative creates a native escrow of amount funded by alice for bob, with
// an explicit mediator charging mediationBPS.
func (f *fixture) fundedNative(amount int64, mediationBPS int) *models.Escrow {
	f.t.Helper()
	settings, err := f.store.Config().Settings(f.ctx)
	require.NoError(f.t, err)
	fee := services.ApplyBPS(big.NewInt(amount), settings.PlatformFeeBPS).Int64()

	f.fund(alice, models.AssetNative, amount+fee)
	e, err := f.svc.Create(f.ctx, call(alice, amount+fee), services.CreateEscrowInput{
		Asset:           models.AssetNative,
		Recipient:       bob,
		Depositor:       ptr(alice),
		Mediator:        ptr(mediator),
		Amount:          big.NewInt(amount),
		DepositDeadline: f.now.Add(time.Hour),
		MediationFeeBPS: mediationBPS,
	})
	require.NoError(f.t, err)
	require.Equal(f.t, models.EscrowStatusFunded, e.Status)
	return e
}

// recorder keeps every published event.
type recorder struct {
	mu     sync.Mutex
	Events []events.Event
}

func (r *recorder) Publish(_ context.Context, _ string, event events.Event) error {
	r.mu.Lock()
	r.Events = append(r.Events, event)
	r.mu.Unlock()
	return nil
}

// Types returns the recorded event types in publish order.
func (r *recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) Reset() {
	r.mu.Lock()
	r.Events = nil
	r.mu.Unlock()
}

// testContext mirrors testing.T.Context (Go 1.24+): the context is canceled
// when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
