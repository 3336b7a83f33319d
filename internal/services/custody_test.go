package services_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/custody-escrow/backend/internal/models"
	"github.com/custody-escrow/backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustody_NativePullRequiresExactValue(t *testing.T) {
	f := newFixture(t, 0)
	f.fund(alice, models.AssetNative, 100)

	err := f.adapter.Pull(f.ctx, models.AssetNative, alice, big.NewInt(50), big.NewInt(49))
	assert.ErrorIs(t, err, services.ErrAmountMismatch)

	err = f.adapter.Pull(f.ctx, models.AssetNative, alice, big.NewInt(50), nil)
	assert.ErrorIs(t, err, services.ErrAmountMismatch)

	require.NoError(t, f.adapter.Pull(f.ctx, models.AssetNative, alice, big.NewInt(50), big.NewInt(50)))
	assert.Equal(t, int64(50), f.balance(custody, models.AssetNative))

	err = f.adapter.Pull(f.ctx, models.AssetNative, alice, big.NewInt(80), big.NewInt(80))
	assert.ErrorIs(t, err, services.ErrInsufficientFunds)
	assert.ErrorIs(t, err, services.ErrInsufficientBalance)
}

func TestCustody_PushZeroIsNoop(t *testing.T) {
	f := newFixture(t, 0)
	calls := 0
	f.adapter.SetReceiveHook(func(context.Context, string, models.Asset, *big.Int) error {
		calls++
		return nil
	})

	require.NoError(t, f.adapter.Push(f.ctx, models.AssetNative, big.NewInt(0), bob))
	assert.Zero(t, calls)
}

func TestCustody_PushFailures(t *testing.T) {
	f := newFixture(t, 0)

	err := f.adapter.Push(f.ctx, models.AssetNative, big.NewInt(1), "")
	assert.ErrorIs(t, err, services.ErrTransferFailed)

	err = f.adapter.Push(f.ctx, models.AssetNative, big.NewInt(1), bob)
	assert.ErrorIs(t, err, services.ErrTransferFailed)
	assert.ErrorIs(t, err, services.ErrInsufficientBalance)

	f.fund(custody, jetton, 10)
	rejected := errors.New("recipient refuses jettons")
	f.adapter.SetReceiveHook(func(context.Context, string, models.Asset, *big.Int) error {
		return rejected
	})
	err = f.adapter.Push(f.ctx, jetton, big.NewInt(10), bob)
	assert.ErrorIs(t, err, services.ErrTransferFailed)
	assert.ErrorIs(t, err, rejected)
}

func TestCustody_TokenPullSpendsAllowance(t *testing.T) {
	f := newFixture(t, 0)
	f.fund(alice, jetton, 100)
	require.NoError(t, f.store.Balances().SetAllowance(f.ctx, alice, jetton, big.NewInt(200)))

	require.NoError(t, f.adapter.Pull(f.ctx, jetton, alice, big.NewInt(60), nil))
	assert.Equal(t, int64(40), f.balance(alice, jetton))
	assert.Equal(t, int64(60), f.balance(custody, jetton))

	allowance, err := f.store.Balances().Allowance(f.ctx, alice, jetton)
	require.NoError(t, err)
	assert.Equal(t, int64(140), allowance.Int64())

	err = f.adapter.Pull(f.ctx, jetton, alice, big.NewInt(60), nil)
	assert.ErrorIs(t, err, services.ErrTransferFailed)
}

func TestCustody_RouteNative(t *testing.T) {
	f := newFixture(t, 0)
	f.fund(alice, models.AssetNative, 5)

	require.NoError(t, f.adapter.Route(f.ctx, models.AssetNative, alice, feeWallet, big.NewInt(3)))
	assert.Equal(t, int64(3), f.balance(feeWallet, models.AssetNative))

	err := f.adapter.Route(f.ctx, models.AssetNative, alice, feeWallet, big.NewInt(3))
	assert.ErrorIs(t, err, services.ErrInsufficientFunds)

	err = f.adapter.Route(f.ctx, models.AssetNative, alice, "", big.NewInt(1))
	assert.ErrorIs(t, err, services.ErrTransferFailed)
}
