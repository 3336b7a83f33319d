package memstore

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/custody-escrow/backend/internal/models"
	"github.com/custody-escrow/backend/internal/services"
)

type BalanceStore struct {
	s *Store
}

func (b *BalanceStore) Balance(ctx context.Context, account string, asset models.Asset) (*big.Int, error) {
	out := new(big.Int)
	err := b.s.view(ctx, func(st *state) error {
		if v, ok := st.balances[balanceKey{account, asset}]; ok {
			out.Set(v)
		}
		return nil
	})
	return out, err
}

func (b *BalanceStore) Balances(ctx context.Context, account string) ([]models.Balance, error) {
	var out []models.Balance
	err := b.s.view(ctx, func(st *state) error {
		for k, v := range st.balances {
			if k.account == account {
				out = append(out, models.Balance{Account: account, Asset: k.asset, Amount: new(big.Int).Set(v)})
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, err
}

func (b *BalanceStore) Credit(ctx context.Context, account string, asset models.Asset, amount *big.Int) error {
	return b.s.view(ctx, func(st *state) error {
		k := balanceKey{account, asset}
		cur, ok := st.balances[k]
		if !ok {
			cur = new(big.Int)
			st.balances[k] = cur
		}
		cur.Add(cur, amount)
		return nil
	})
}

func (b *BalanceStore) Debit(ctx context.Context, account string, asset models.Asset, amount *big.Int) error {
	return b.s.view(ctx, func(st *state) error {
		return subtract(st.balances, balanceKey{account, asset}, amount, services.ErrInsufficientBalance)
	})
}

func (b *BalanceStore) Allowance(ctx context.Context, owner string, asset models.Asset) (*big.Int, error) {
	out := new(big.Int)
	err := b.s.view(ctx, func(st *state) error {
		if v, ok := st.allowances[balanceKey{owner, asset}]; ok {
			out.Set(v)
		}
		return nil
	})
	return out, err
}

func (b *BalanceStore) SetAllowance(ctx context.Context, owner string, asset models.Asset, amount *big.Int) error {
	return b.s.view(ctx, func(st *state) error {
		st.allowances[balanceKey{owner, asset}] = new(big.Int).Set(amount)
		return nil
	})
}

func (b *BalanceStore) SpendAllowance(ctx context.Context, owner string, asset models.Asset, amount *big.Int) error {
	return b.s.view(ctx, func(st *state) error {
		return subtract(st.allowances, balanceKey{owner, asset}, amount, services.ErrInsufficientAllowance)
	})
}

func subtract(m map[balanceKey]*big.Int, k balanceKey, amount *big.Int, short error) error {
	if amount.Sign() == 0 {
		return nil
	}
	cur, ok := m[k]
	if !ok || cur.Cmp(amount) < 0 {
		return short
	}
	cur.Sub(cur, amount)
	return nil
}

type ConfigStore struct {
	s *Store
}

func (c *ConfigStore) Settings(ctx context.Context) (*models.PlatformSettings, error) {
	var out models.PlatformSettings
	err := c.s.view(ctx, func(st *state) error {
		out = st.settings
		return nil
	})
	return &out, err
}

func (c *ConfigStore) SaveSettings(ctx context.Context, s *models.PlatformSettings) error {
	return c.s.view(ctx, func(st *state) error {
		st.settings = *s
		st.settings.UpdatedAt = time.Now()
		return nil
	})
}

func (c *ConfigStore) IsAssetSupported(ctx context.Context, asset models.Asset) (bool, error) {
	var ok bool
	err := c.s.view(ctx, func(st *state) error {
		ok = st.assets[asset].Supported
		return nil
	})
	return ok, err
}

func (c *ConfigStore) SetAssetSupported(ctx context.Context, asset models.Asset, supported bool) error {
	return c.s.view(ctx, func(st *state) error {
		st.assets[asset] = models.SupportedAsset{Asset: asset, Supported: supported, UpdatedAt: time.Now()}
		return nil
	})
}

func (c *ConfigStore) ListAssets(ctx context.Context) ([]models.SupportedAsset, error) {
	var out []models.SupportedAsset
	err := c.s.view(ctx, func(st *state) error {
		for _, a := range st.assets {
			out = append(out, a)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, err
}
