package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/custody-escrow/backend/internal/models"
	"go.uber.org/zap"
)

// AssetAdapter moves value in and out of custody uniformly for native and token assets.
type AssetAdapter interface {
	// Pull moves amount from the caller into custody. value is the native value
	// the caller attached to the operation.
	Pull(ctx context.Context, asset models.Asset, from string, amount, value *big.Int) error
	// Push moves amount out of custody to the given account. All-or-nothing.
	Push(ctx context.Context, asset models.Asset, amount *big.Int, to string) error
	// Route moves amount directly between two parties: attached value for native,
	// an allowance-authorized transfer for tokens.
	Route(ctx context.Context, asset models.Asset, from, to string, amount *big.Int) error
}

// ReceiveHook runs after an account is credited by Push or Route. A non-nil error
// rejects the transfer.
type ReceiveHook func(ctx context.Context, to string, asset models.Asset, amount *big.Int) error

// CustodyAdapter implements AssetAdapter on top of the custody balance ledger.
// Escrowed funds are held by the custody account.
type CustodyAdapter struct {
	balances  BalanceStore
	custody   string
	onReceive ReceiveHook
	log       *zap.Logger
}

func NewCustodyAdapter(balances BalanceStore, custodyAccount string, log *zap.Logger) *CustodyAdapter {
	return &CustodyAdapter{balances: balances, custody: custodyAccount, log: log}
}

// SetReceiveHook installs a hook invoked for every outbound credit.
func (a *CustodyAdapter) SetReceiveHook(h ReceiveHook) { a.onReceive = h }

func (a *CustodyAdapter) CustodyAccount() string { return a.custody }

func (a *CustodyAdapter) Pull(ctx context.Context, asset models.Asset, from string, amount, value *big.Int) error {
	if asset.IsNative() {
		if value == nil || value.Cmp(amount) != 0 {
			return fmt.Errorf("%w: attached %s, expected %s", ErrAmountMismatch, bigString(value), amount)
		}
		if err := a.balances.Debit(ctx, from, asset, amount); err != nil {
			return fmt.Errorf("%w: pull %s %s from %s: %w", ErrInsufficientFunds, amount, asset, from, err)
		}
		if err := a.balances.Credit(ctx, a.custody, asset, amount); err != nil {
			return fmt.Errorf("%w: credit custody: %w", ErrTransferFailed, err)
		}
		return nil
	}

	if err := a.transferFrom(ctx, asset, from, a.custody, amount); err != nil {
		return err
	}
	return nil
}

func (a *CustodyAdapter) Push(ctx context.Context, asset models.Asset, amount *big.Int, to string) error {
	if amount.Sign() == 0 {
		return nil
	}
	if to == "" {
		return fmt.Errorf("%w: empty destination", ErrTransferFailed)
	}
	if err := a.balances.Debit(ctx, a.custody, asset, amount); err != nil {
		a.log.Error("custody shortfall on push",
			zap.String("asset", string(asset)),
			zap.String("amount", amount.String()),
			zap.Error(err),
		)
		return fmt.Errorf("%w: debit custody: %w", ErrTransferFailed, err)
	}
	return a.deliver(ctx, asset, amount, to)
}

func (a *CustodyAdapter) Route(ctx context.Context, asset models.Asset, from, to string, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if to == "" {
		return fmt.Errorf("%w: empty destination", ErrTransferFailed)
	}
	if asset.IsNative() {
		if err := a.balances.Debit(ctx, from, asset, amount); err != nil {
			return fmt.Errorf("%w: route %s %s from %s: %w", ErrInsufficientFunds, amount, asset, from, err)
		}
		return a.deliver(ctx, asset, amount, to)
	}
	return a.transferFrom(ctx, asset, from, to, amount)
}

// transferFrom is the token pull path: spend the allowance, then move the balance.
func (a *CustodyAdapter) transferFrom(ctx context.Context, asset models.Asset, from, to string, amount *big.Int) error {
	if err := a.balances.SpendAllowance(ctx, from, asset, amount); err != nil {
		return fmt.Errorf("%w: %s allowance of %s: %w", ErrTransferFailed, asset, from, err)
	}
	if err := a.balances.Debit(ctx, from, asset, amount); err != nil {
		return fmt.Errorf("%w: %s balance of %s: %w", ErrTransferFailed, asset, from, err)
	}
	if to == a.custody {
		if err := a.balances.Credit(ctx, to, asset, amount); err != nil {
			return fmt.Errorf("%w: credit custody: %w", ErrTransferFailed, err)
		}
		return nil
	}
	return a.deliver(ctx, asset, amount, to)
}

func (a *CustodyAdapter) deliver(ctx context.Context, asset models.Asset, amount *big.Int, to string) error {
	if err := a.balances.Credit(ctx, to, asset, amount); err != nil {
		return fmt.Errorf("%w: credit %s: %w", ErrTransferFailed, to, err)
	}
	if a.onReceive != nil {
		if err := a.onReceive(ctx, to, asset, amount); err != nil {
			if errors.Is(err, ErrTransferFailed) {
				return err
			}
			return fmt.Errorf("%w: rejected by %s: %w", ErrTransferFailed, to, err)
		}
	}
	return nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
