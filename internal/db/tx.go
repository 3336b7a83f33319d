package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// EngineLockKey is the advisory lock every engine operation holds for the
// lifetime of its transaction.
const EngineLockKey int64 = 0x657363726f77

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// Conn returns the transaction carried by ctx, or pool when there is none.
func Conn(ctx context.Context, pool *pgxpool.Pool) DBTX {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

type TxManager struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewTxManager(pool *pgxpool.Pool, log *zap.Logger) *TxManager {
	return &TxManager{pool: pool, log: log}
}

// RunInTx runs fn inside a serialized transaction. When ctx already carries one,
// fn runs in a savepoint of it so a failing inner call only undoes its own work.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if outer, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		sp, err := outer.Begin(ctx)
		if err != nil {
			return fmt.Errorf("savepoint: %w", err)
		}
		return finish(ctx, sp, fn(context.WithValue(ctx, txKey{}, sp)))
	}

	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", EngineLockKey); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("engine lock: %w", err)
	}

	err = finish(ctx, tx, fn(context.WithValue(ctx, txKey{}, tx)))
	if err != nil {
		m.log.Debug("transaction rolled back", zap.Error(err))
	}
	return err
}

func finish(ctx context.Context, tx pgx.Tx, fnErr error) error {
	if fnErr != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", fnErr, rbErr)
		}
		return fnErr
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
