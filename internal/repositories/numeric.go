package repositories

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/custody-escrow/backend/internal/services"
	"github.com/jackc/pgx/v5"
)

// NUMERIC columns travel as text so amounts never pass through float64.

func numeric(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return services.ErrNotFound
	}
	return err
}
