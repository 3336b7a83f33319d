package repositories

import (
	"context"
	"errors"

	"github.com/custody-escrow/backend/internal/db"
	"github.com/custody-escrow/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConfigRepo struct {
	pool *pgxpool.Pool
}

func NewConfigRepo(pool *pgxpool.Pool) *ConfigRepo {
	return &ConfigRepo{pool: pool}
}

// Settings returns zero settings until an administrator saves some.
func (r *ConfigRepo) Settings(ctx context.Context) (*models.PlatformSettings, error) {
	var s models.PlatformSettings
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT platform_fee_bps, fee_destination, default_mediator, default_mediation_fee_bps, updated_at
		FROM platform_settings WHERE singleton
	`).Scan(&s.PlatformFeeBPS, &s.FeeDestination, &s.DefaultMediator, &s.DefaultMediationFeeBPS, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.PlatformSettings{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ConfigRepo) SaveSettings(ctx context.Context, s *models.PlatformSettings) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO platform_settings (singleton, platform_fee_bps, fee_destination, default_mediator, default_mediation_fee_bps)
		VALUES (true, $1, $2, $3, $4)
		ON CONFLICT (singleton) DO UPDATE SET
			platform_fee_bps = EXCLUDED.platform_fee_bps,
			fee_destination = EXCLUDED.fee_destination,
			default_mediator = EXCLUDED.default_mediator,
			default_mediation_fee_bps = EXCLUDED.default_mediation_fee_bps,
			updated_at = now()
		RETURNING updated_at
	`, s.PlatformFeeBPS, s.FeeDestination, s.DefaultMediator, s.DefaultMediationFeeBPS).Scan(&s.UpdatedAt)
}

func (r *ConfigRepo) IsAssetSupported(ctx context.Context, asset models.Asset) (bool, error) {
	var ok bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM supported_assets WHERE asset = $1 AND supported)
	`, string(asset)).Scan(&ok)
	return ok, err
}

func (r *ConfigRepo) SetAssetSupported(ctx context.Context, asset models.Asset, supported bool) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO supported_assets (asset, supported)
		VALUES ($1, $2)
		ON CONFLICT (asset) DO UPDATE SET supported = EXCLUDED.supported, updated_at = now()
	`, string(asset), supported)
	return err
}

func (r *ConfigRepo) ListAssets(ctx context.Context) ([]models.SupportedAsset, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT asset, supported, updated_at FROM supported_assets ORDER BY asset
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SupportedAsset
	for rows.Next() {
		var (
			a     models.SupportedAsset
			asset string
		)
		if err := rows.Scan(&asset, &a.Supported, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Asset = models.Asset(asset)
		out = append(out, a)
	}
	return out, rows.Err()
}
