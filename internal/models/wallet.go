package models

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Balance is an account's custodial holding of one asset.
type Balance struct {
	Account   string    `json:"account"`
	Asset     Asset     `json:"asset"`
	Amount    *big.Int  `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Allowance is how much of an asset the engine may pull from Owner.
type Allowance struct {
	Owner     string    `json:"owner"`
	Asset     Asset     `json:"asset"`
	Amount    *big.Int  `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TonProofPayload struct {
	ID        uuid.UUID `json:"id"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"-"`
	ExpiresAt time.Time `json:"-"`
	Used      bool      `json:"-"`
}
