package services

import (
	"context"
	"fmt"
	"math/big"

	"github.com/custody-escrow/backend/internal/models"
)

var bpsDenominator = big.NewInt(models.MaxBPS)

// ValidateBPS rejects rates outside [0, 10000].
func ValidateBPS(bps int) error {
	if bps < 0 || bps > models.MaxBPS {
		return fmt.Errorf("%w: %d bps", ErrInvalidFee, bps)
	}
	return nil
}

// ApplyBPS returns amount*bps/10000 truncated toward zero.
func ApplyBPS(amount *big.Int, bps int) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return fee.Quo(fee, bpsDenominator)
}

// MediationSplit splits amount into the mediator's cut and the remainder.
// The remainder absorbs the truncation, so fee + remainder == amount.
func MediationSplit(amount *big.Int, bps int) (fee, remainder *big.Int) {
	fee = ApplyBPS(amount, bps)
	remainder = new(big.Int).Sub(amount, fee)
	return fee, remainder
}

// FeeEngine computes and routes the platform fee taken at escrow creation.
type FeeEngine struct {
	assets AssetAdapter
}

func NewFeeEngine(assets AssetAdapter) *FeeEngine {
	return &FeeEngine{assets: assets}
}

// TakeFee charges the platform fee on amount and returns the attached value left
// over for funding. Token fees are pulled separately, so their leftover is zero.
func (f *FeeEngine) TakeFee(ctx context.Context, asset models.Asset, caller string, amount, value *big.Int, settings *models.PlatformSettings) (*big.Int, error) {
	if err := ValidateBPS(settings.PlatformFeeBPS); err != nil {
		return nil, err
	}
	fee := ApplyBPS(amount, settings.PlatformFeeBPS)

	if asset.IsNative() {
		if value == nil {
			value = new(big.Int)
		}
		if value.Cmp(fee) < 0 {
			return nil, fmt.Errorf("%w: attached %s, platform fee %s", ErrInsufficientFunds, value, fee)
		}
		if err := f.assets.Route(ctx, asset, caller, settings.FeeDestination, fee); err != nil {
			return nil, fmt.Errorf("platform fee: %w", err)
		}
		return new(big.Int).Sub(value, fee), nil
	}

	if err := f.assets.Route(ctx, asset, caller, settings.FeeDestination, fee); err != nil {
		return nil, fmt.Errorf("platform fee: %w", err)
	}
	return new(big.Int), nil
}
