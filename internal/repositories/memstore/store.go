// Package memstore is an in-process implementation of the service storage ports.
// It backs STORAGE_DRIVER=memory and the service tests. Every RunInTx unit holds
// the store lock and is rolled back to a snapshot when fn fails.
package memstore

import (
	"context"
	"math/big"
	"sync"

	"github.com/custody-escrow/backend/internal/models"
	"github.com/custody-escrow/backend/internal/services"
)

type balanceKey struct {
	account string
	asset   models.Asset
}

type state struct {
	escrows     []*models.Escrow
	balances    map[balanceKey]*big.Int
	allowances  map[balanceKey]*big.Int
	settings    models.PlatformSettings
	assets      map[models.Asset]models.SupportedAsset
	audit       []models.AuditLog
	withdrawals []*models.Withdrawal
	proofs      map[string]*models.TonProofPayload
}

func newState() *state {
	return &state{
		balances:   make(map[balanceKey]*big.Int),
		allowances: make(map[balanceKey]*big.Int),
		assets:     make(map[models.Asset]models.SupportedAsset),
		proofs:     make(map[string]*models.TonProofPayload),
	}
}

func (st *state) clone() *state {
	c := newState()
	c.escrows = make([]*models.Escrow, len(st.escrows))
	for i, e := range st.escrows {
		c.escrows[i] = e.Clone()
	}
	for k, v := range st.balances {
		c.balances[k] = new(big.Int).Set(v)
	}
	for k, v := range st.allowances {
		c.allowances[k] = new(big.Int).Set(v)
	}
	c.settings = st.settings
	for k, v := range st.assets {
		c.assets[k] = v
	}
	c.audit = append([]models.AuditLog(nil), st.audit...)
	c.withdrawals = make([]*models.Withdrawal, len(st.withdrawals))
	for i, w := range st.withdrawals {
		cp := *w
		cp.Amount = new(big.Int).Set(w.Amount)
		c.withdrawals[i] = &cp
	}
	for k, v := range st.proofs {
		cp := *v
		c.proofs[k] = &cp
	}
	return c
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

// RunInTx runs fn as one serialized unit. Nested calls behave like savepoints:
// a failing inner fn rolls back only its own changes.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		snap := s.st.clone()
		if err := fn(ctx); err != nil {
			s.st = snap
			return err
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.st = snap
		return err
	}
	return nil
}

// view runs f against the live state, locking unless ctx already holds the store.
func (s *Store) view(ctx context.Context, f func(st *state) error) error {
	if s.inTx(ctx) {
		return f(s.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return f(s.st)
}

func (s *Store) Escrows() *EscrowLedger        { return &EscrowLedger{s: s} }
func (s *Store) Balances() *BalanceStore       { return &BalanceStore{s: s} }
func (s *Store) Config() *ConfigStore          { return &ConfigStore{s: s} }
func (s *Store) Audit() *AuditStore            { return &AuditStore{s: s} }
func (s *Store) Withdrawals() *WithdrawalStore { return &WithdrawalStore{s: s} }
func (s *Store) Proofs() *ProofStore           { return &ProofStore{s: s} }

// Stores exposes the in-memory backend through the service ports.
func (s *Store) Stores() services.Stores {
	return services.Stores{
		Tx:          s,
		Escrows:     s.Escrows(),
		Balances:    s.Balances(),
		Config:      s.Config(),
		Audit:       s.Audit(),
		Withdrawals: s.Withdrawals(),
		Proofs:      s.Proofs(),
	}
}
