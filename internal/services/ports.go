package services

import (
	"context"
	"math/big"
	"time"

	"github.com/custody-escrow/backend/internal/models"
)

// TxRunner executes fn as one serialized all-or-nothing unit. A fn running inside
// an active unit joins it instead of starting a new one.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EscrowLedger owns escrow records. Only the state machine mutates them.
type EscrowLedger interface {
	Allocate(ctx context.Context) (uint64, error)
	Get(ctx context.Context, id uint64) (*models.Escrow, error)
	Update(ctx context.Context, e *models.Escrow) error
	Count(ctx context.Context) (uint64, error)
	// ListByParty returns ids, newest first, of escrows addr takes part in.
	ListByParty(ctx context.Context, addr string, limit, offset int) ([]uint64, error)
}

// BalanceStore is the custody ledger underneath the asset adapter.
type BalanceStore interface {
	Balance(ctx context.Context, account string, asset models.Asset) (*big.Int, error)
	Balances(ctx context.Context, account string) ([]models.Balance, error)
	Credit(ctx context.Context, account string, asset models.Asset, amount *big.Int) error
	// Debit fails with ErrInsufficientBalance without touching the balance.
	Debit(ctx context.Context, account string, asset models.Asset, amount *big.Int) error
	Allowance(ctx context.Context, owner string, asset models.Asset) (*big.Int, error)
	SetAllowance(ctx context.Context, owner string, asset models.Asset, amount *big.Int) error
	// SpendAllowance fails with ErrInsufficientAllowance without touching the allowance.
	SpendAllowance(ctx context.Context, owner string, asset models.Asset, amount *big.Int) error
}

// ConfigStore holds the admin-owned platform settings and the asset allowlist.
type ConfigStore interface {
	Settings(ctx context.Context) (*models.PlatformSettings, error)
	SaveSettings(ctx context.Context, s *models.PlatformSettings) error
	IsAssetSupported(ctx context.Context, asset models.Asset) (bool, error)
	SetAssetSupported(ctx context.Context, asset models.Asset, supported bool) error
	ListAssets(ctx context.Context) ([]models.SupportedAsset, error)
}

type AuditStore interface {
	Log(ctx context.Context, entry models.AuditLog) error
	GetByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error)
}

type WithdrawalStore interface {
	Create(ctx context.Context, w *models.Withdrawal) error
	ListPending(ctx context.Context, limit int) ([]models.Withdrawal, error)
	ListByAccount(ctx context.Context, account string, limit int) ([]models.Withdrawal, error)
	// MarkSending fails with ErrInvalidState unless w is pending; MarkSent and
	// MarkFailed fail with ErrInvalidState unless w is sending.
	MarkSending(ctx context.Context, w *models.Withdrawal) error
	MarkSent(ctx context.Context, w *models.Withdrawal) error
	MarkFailed(ctx context.Context, w *models.Withdrawal, reason string) error
}

// ProofStore issues single-use ton_proof payloads.
type ProofStore interface {
	CreateProofPayload(ctx context.Context, ttl time.Duration) (*models.TonProofPayload, error)
	ConsumeProofPayload(ctx context.Context, payload string) (*models.TonProofPayload, error)
}

// Stores bundles one storage backend. Every store must share the TxRunner's
// transaction so an operation is all-or-nothing across them.
type Stores struct {
	Tx          TxRunner
	Escrows     EscrowLedger
	Balances    BalanceStore
	Config      ConfigStore
	Audit       AuditStore
	Withdrawals WithdrawalStore
	Proofs      ProofStore
}
