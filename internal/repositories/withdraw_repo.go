package repositories

import (
	"context"
	"fmt"

	"github.com/custody-escrow/backend/internal/db"
	"github.com/custody-escrow/backend/internal/models"
	"github.com/custody-escrow/backend/internal/services"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WithdrawRepo struct {
	pool *pgxpool.Pool
}

func NewWithdrawRepo(pool *pgxpool.Pool) *WithdrawRepo {
	return &WithdrawRepo{pool: pool}
}

func (r *WithdrawRepo) Create(ctx context.Context, w *models.Withdrawal) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO withdrawals (account, destination, amount, status)
		VALUES ($1, $2, $3::numeric, $4)
		RETURNING id, created_at
	`, w.Account, w.Destination, numeric(w.Amount), w.Status).Scan(&w.ID, &w.CreatedAt)
}

func (r *WithdrawRepo) ListPending(ctx context.Context, limit int) ([]models.Withdrawal, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, account, destination, amount::text, status, error, created_at, processed_at
		FROM withdrawals WHERE status = $1
		ORDER BY created_at LIMIT $2
	`, models.WithdrawalStatusPending, limit)
	if err != nil {
		return nil, err
	}
	return scanWithdrawals(rows)
}

func (r *WithdrawRepo) ListByAccount(ctx context.Context, account string, limit int) ([]models.Withdrawal, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, account, destination, amount::text, status, error, created_at, processed_at
		FROM withdrawals WHERE account = $1
		ORDER BY created_at DESC LIMIT $2
	`, account, limit)
	if err != nil {
		return nil, err
	}
	return scanWithdrawals(rows)
}

func (r *WithdrawRepo) MarkSending(ctx context.Context, w *models.Withdrawal) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE withdrawals SET status = $2
		WHERE id = $1 AND status = $3
	`, w.ID, models.WithdrawalStatusSending, models.WithdrawalStatusPending)
	return settled(w, models.WithdrawalStatusPending, tag.RowsAffected(), err)
}

func (r *WithdrawRepo) MarkSent(ctx context.Context, w *models.Withdrawal) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE withdrawals SET status = $2, processed_at = now()
		WHERE id = $1 AND status = $3
	`, w.ID, models.WithdrawalStatusSent, models.WithdrawalStatusSending)
	return settled(w, models.WithdrawalStatusSending, tag.RowsAffected(), err)
}

func (r *WithdrawRepo) MarkFailed(ctx context.Context, w *models.Withdrawal, reason string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE withdrawals SET status = $2, error = $3, processed_at = now()
		WHERE id = $1 AND status = $4
	`, w.ID, models.WithdrawalStatusFailed, reason, models.WithdrawalStatusSending)
	return settled(w, models.WithdrawalStatusSending, tag.RowsAffected(), err)
}

// settled turns an update that matched no row in the expected status into ErrInvalidState.
func settled(w *models.Withdrawal, want string, affected int64, err error) error {
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: withdrawal %s is not %s", services.ErrInvalidState, w.ID, want)
	}
	return nil
}

func scanWithdrawals(rows pgx.Rows) ([]models.Withdrawal, error) {
	defer rows.Close()

	var out []models.Withdrawal
	for rows.Next() {
		var (
			w      models.Withdrawal
			amount string
		)
		if err := rows.Scan(&w.ID, &w.Account, &w.Destination, &amount, &w.Status, &w.Error, &w.CreatedAt, &w.ProcessedAt); err != nil {
			return nil, err
		}
		var err error
		if w.Amount, err = parseNumeric(amount); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
