package repositories

import (
	"context"
	"fmt"

	"github.com/custody-escrow/backend/internal/db"
	"github.com/custody-escrow/backend/internal/models"
	"github.com/custody-escrow/backend/internal/services"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EscrowRepo is the PostgreSQL escrow ledger. Ids come from a single counter row
// updated in the caller's transaction, so a rolled back create gives its id back.
type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

func (r *EscrowRepo) Allocate(ctx context.Context) (uint64, error) {
	conn := db.Conn(ctx, r.pool)
	var id int64
	err := conn.QueryRow(ctx, `
		UPDATE escrow_counter SET last_id = last_id + 1
		WHERE singleton
		RETURNING last_id
	`).Scan(&id)
	if err != nil {
		return 0, err
	}
	if _, err := conn.Exec(ctx, `INSERT INTO escrows (id) VALUES ($1)`, id); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (r *EscrowRepo) Get(ctx context.Context, id uint64) (*models.Escrow, error) {
	var (
		e      models.Escrow
		rawID  int64
		amount string
		status string
		asset  string
	)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, creator, depositor, recipient, mediator, beneficiary,
		       asset, amount::text, last_deposit_deadline, created_at,
		       mediation_fee_bps, extra_data, reason, status
		FROM escrows WHERE id = $1
	`, int64(id)).Scan(&rawID, &e.Creator, &e.Depositor, &e.Recipient, &e.Mediator, &e.Beneficiary,
		&asset, &amount, &e.LastDepositDeadline, &e.CreatedAt,
		&e.MediationFeeBPS, &e.ExtraData, &e.Reason, &status)
	if err != nil {
		return nil, fmt.Errorf("escrow %d: %w", id, notFound(err))
	}
	e.ID = uint64(rawID)
	e.Asset = models.Asset(asset)
	e.Status = models.EscrowStatus(status)
	if e.Amount, err = parseNumeric(amount); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EscrowRepo) Update(ctx context.Context, e *models.Escrow) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE escrows SET
			creator = $2, depositor = $3, recipient = $4, mediator = $5, beneficiary = $6,
			asset = $7, amount = $8::numeric, last_deposit_deadline = $9, created_at = $10,
			mediation_fee_bps = $11, extra_data = $12, reason = $13, status = $14
		WHERE id = $1
	`, int64(e.ID), e.Creator, e.Depositor, e.Recipient, e.Mediator, e.Beneficiary,
		string(e.Asset), numeric(e.Amount), e.LastDepositDeadline, e.CreatedAt,
		e.MediationFeeBPS, e.ExtraData, e.Reason, string(e.Status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("escrow %d: %w", e.ID, services.ErrNotFound)
	}
	return nil
}

func (r *EscrowRepo) Count(ctx context.Context) (uint64, error) {
	var n int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT last_id FROM escrow_counter WHERE singleton`).Scan(&n)
	return uint64(n), err
}

// ListByParty returns escrows where addr is creator, depositor, recipient or mediator.
func (r *EscrowRepo) ListByParty(ctx context.Context, addr string, limit, offset int) ([]uint64, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id FROM escrows
		WHERE status <> '' AND (creator = $1 OR depositor = $1 OR recipient = $1 OR mediator = $1)
		ORDER BY id DESC LIMIT $2 OFFSET $3
	`, addr, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, uint64(id))
	}
	return ids, rows.Err()
}
