package models

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Withdrawal statuses: pending -> sending -> sent | failed. A withdrawal in
// sending has been handed to the wallet and is never picked up again.
const (
	WithdrawalStatusPending = "pending"
	WithdrawalStatusSending = "sending"
	WithdrawalStatusSent    = "sent"
	WithdrawalStatusFailed  = "failed"
)

// Withdrawal moves native balance out of custody to an on-chain address.
type Withdrawal struct {
	ID          uuid.UUID  `json:"id"`
	Account     string     `json:"account"`
	Destination string     `json:"destination"`
	Amount      *big.Int   `json:"amount"`
	Status      string     `json:"status"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
