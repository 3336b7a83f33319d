package repositories

import (
	"github.com/custody-escrow/backend/internal/db"
	"github.com/custody-escrow/backend/internal/services"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// NewStores wires the PostgreSQL backend. Repositories pick up the transaction
// the TxManager puts in the context.
func NewStores(pool *pgxpool.Pool, log *zap.Logger) services.Stores {
	return services.Stores{
		Tx:          db.NewTxManager(pool, log),
		Escrows:     NewEscrowRepo(pool),
		Balances:    NewBalanceRepo(pool),
		Config:      NewConfigRepo(pool),
		Audit:       NewAuditRepo(pool),
		Withdrawals: NewWithdrawRepo(pool),
		Proofs:      NewWalletRepo(pool),
	}
}
