package services

import (
	"context"
	"fmt"
	"math/big"

	"github.com/custody-escrow/backend/internal/models"
	"github.com/custody-escrow/backend/internal/rbac"
	"go.uber.org/zap"
)

// RoleResolver returns the admin role bound to an address, or "" for none.
type RoleResolver func(addr string) string

// AdminService owns platform settings and the asset allowlist. Every mutation
// is gated by an rbac capability of the acting address.
type AdminService struct {
	tx       TxRunner
	config   ConfigStore
	audit    AuditStore
	accounts *AccountService
	roleOf   RoleResolver
	log      *zap.Logger
}

func NewAdminService(tx TxRunner, config ConfigStore, audit AuditStore, accounts *AccountService, roleOf RoleResolver, log *zap.Logger) *AdminService {
	return &AdminService{
		tx:       tx,
		config:   config,
		audit:    audit,
		accounts: accounts,
		roleOf:   roleOf,
		log:      log,
	}
}

func (s *AdminService) Role(actor string) string {
	return s.roleOf(actor)
}

func (s *AdminService) require(actor, perm string) error {
	if !rbac.HasPermission(s.roleOf(actor), perm) {
		return fmt.Errorf("%w: %s", ErrForbidden, perm)
	}
	return nil
}

// Bootstrap seeds settings and supported assets when nothing was saved yet.
// An existing configuration is left alone.
func (s *AdminService) Bootstrap(ctx context.Context, defaults models.PlatformSettings, assets []models.Asset) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.config.Settings(ctx)
		if err != nil {
			return err
		}
		if !current.UpdatedAt.IsZero() {
			return nil
		}
		if err := ValidateBPS(defaults.PlatformFeeBPS); err != nil {
			return err
		}
		if err := ValidateBPS(defaults.DefaultMediationFeeBPS); err != nil {
			return err
		}
		if err := s.config.SaveSettings(ctx, &defaults); err != nil {
			return err
		}
		for _, a := range assets {
			if err := s.config.SetAssetSupported(ctx, a, true); err != nil {
				return err
			}
		}
		s.log.Info("platform settings seeded",
			zap.Int("platform_fee_bps", defaults.PlatformFeeBPS),
			zap.Int("assets", len(assets)),
		)
		return nil
	})
}

func (s *AdminService) Settings(ctx context.Context, actor string) (*models.PlatformSettings, error) {
	if err := s.require(actor, rbac.PermViewSettings); err != nil {
		return nil, err
	}
	return s.config.Settings(ctx)
}

func (s *AdminService) UpdateSettings(ctx context.Context, actor string, in models.PlatformSettings) (*models.PlatformSettings, error) {
	if err := s.require(actor, rbac.PermSetFees); err != nil {
		return nil, err
	}
	if err := ValidateBPS(in.PlatformFeeBPS); err != nil {
		return nil, err
	}
	if err := ValidateBPS(in.DefaultMediationFeeBPS); err != nil {
		return nil, err
	}
	if in.DefaultMediator == "" {
		return nil, fmt.Errorf("%w: default mediator is required", ErrInvalidAddress)
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		old, err := s.config.Settings(ctx)
		if err != nil {
			return err
		}
		if err := s.config.SaveSettings(ctx, &in); err != nil {
			return err
		}
		return s.audit.Log(ctx, models.AuditLog{
			ActorAddress: &actor,
			ActorType:    "admin",
			Action:       "settings_updated",
			EntityType:   "platform_settings",
			EntityID:     "platform",
			Meta: map[string]any{
				"old_platform_fee_bps":  old.PlatformFeeBPS,
				"new_platform_fee_bps":  in.PlatformFeeBPS,
				"fee_destination":       in.FeeDestination,
				"default_mediator":      in.DefaultMediator,
				"default_mediation_bps": in.DefaultMediationFeeBPS,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("platform settings updated", zap.String("actor", actor), zap.Int("platform_fee_bps", in.PlatformFeeBPS))
	return &in, nil
}

func (s *AdminService) SetAssetSupported(ctx context.Context, actor string, asset models.Asset, supported bool) error {
	if err := s.require(actor, rbac.PermSetAssets); err != nil {
		return err
	}
	if asset == "" {
		return fmt.Errorf("%w: empty asset", ErrUnsupportedAsset)
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.config.SetAssetSupported(ctx, asset, supported); err != nil {
			return err
		}
		return s.audit.Log(ctx, models.AuditLog{
			ActorAddress: &actor,
			ActorType:    "admin",
			Action:       "asset_support_changed",
			EntityType:   "asset",
			EntityID:     string(asset),
			Meta:         map[string]any{"supported": supported},
		})
	})
}

func (s *AdminService) ListAssets(ctx context.Context) ([]models.SupportedAsset, error) {
	return s.config.ListAssets(ctx)
}

// CreditAccount records an off-ledger deposit, e.g. a jetton transfer to the
// custody wallet that the indexer does not follow.
func (s *AdminService) CreditAccount(ctx context.Context, actor, account string, asset models.Asset, amount *big.Int, note string) error {
	if err := s.require(actor, rbac.PermCreditAccounts); err != nil {
		return err
	}
	return s.accounts.Credit(ctx, actor, account, asset, amount, note)
}
