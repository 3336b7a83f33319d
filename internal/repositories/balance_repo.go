package repositories

import (
	"context"
	"errors"
	"math/big"

	"github.com/custody-escrow/backend/internal/db"
	"github.com/custody-escrow/backend/internal/models"
	"github.com/custody-escrow/backend/internal/services"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BalanceRepo struct {
	pool *pgxpool.Pool
}

func NewBalanceRepo(pool *pgxpool.Pool) *BalanceRepo {
	return &BalanceRepo{pool: pool}
}

func (r *BalanceRepo) Balance(ctx context.Context, account string, asset models.Asset) (*big.Int, error) {
	return r.amount(ctx, `SELECT amount::text FROM custody_balances WHERE account = $1 AND asset = $2`, account, asset)
}

func (r *BalanceRepo) Balances(ctx context.Context, account string) ([]models.Balance, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT asset, amount::text, updated_at
		FROM custody_balances WHERE account = $1
		ORDER BY asset
	`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Balance
	for rows.Next() {
		var (
			b      = models.Balance{Account: account}
			asset  string
			amount string
		)
		if err := rows.Scan(&asset, &amount, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.Asset = models.Asset(asset)
		if b.Amount, err = parseNumeric(amount); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *BalanceRepo) Credit(ctx context.Context, account string, asset models.Asset, amount *big.Int) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO custody_balances (account, asset, amount)
		VALUES ($1, $2, $3::numeric)
		ON CONFLICT (account, asset) DO UPDATE SET
			amount = custody_balances.amount + EXCLUDED.amount,
			updated_at = now()
	`, account, string(asset), numeric(amount))
	return err
}

func (r *BalanceRepo) Debit(ctx context.Context, account string, asset models.Asset, amount *big.Int) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE custody_balances SET amount = amount - $3::numeric, updated_at = now()
		WHERE account = $1 AND asset = $2 AND amount >= $3::numeric
	`, account, string(asset), numeric(amount))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if amount.Sign() == 0 {
			return nil
		}
		return services.ErrInsufficientBalance
	}
	return nil
}

func (r *BalanceRepo) Allowance(ctx context.Context, owner string, asset models.Asset) (*big.Int, error) {
	return r.amount(ctx, `SELECT amount::text FROM custody_allowances WHERE owner = $1 AND asset = $2`, owner, asset)
}

func (r *BalanceRepo) SetAllowance(ctx context.Context, owner string, asset models.Asset, amount *big.Int) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO custody_allowances (owner, asset, amount)
		VALUES ($1, $2, $3::numeric)
		ON CONFLICT (owner, asset) DO UPDATE SET
			amount = EXCLUDED.amount,
			updated_at = now()
	`, owner, string(asset), numeric(amount))
	return err
}

func (r *BalanceRepo) SpendAllowance(ctx context.Context, owner string, asset models.Asset, amount *big.Int) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE custody_allowances SET amount = amount - $3::numeric, updated_at = now()
		WHERE owner = $1 AND asset = $2 AND amount >= $3::numeric
	`, owner, string(asset), numeric(amount))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if amount.Sign() == 0 {
			return nil
		}
		return services.ErrInsufficientAllowance
	}
	return nil
}

func (r *BalanceRepo) amount(ctx context.Context, query, account string, asset models.Asset) (*big.Int, error) {
	var s string
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, account, string(asset)).Scan(&s)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, err
	}
	return parseNumeric(s)
}
