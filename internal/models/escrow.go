package models

import (
	"math/big"
	"time"
)

// Asset identifies what an escrow holds: the native currency or a jetton master address.
type Asset string

// AssetNative is the native-currency sentinel.
const AssetNative Asset = "TON"

func (a Asset) IsNative() bool {
	return a == AssetNative
}

// MaxBPS is 100% expressed in basis points.
const MaxBPS = 10000

type EscrowStatus string

// Escrow statuses. The zero value is never a valid record status.
const (
	EscrowStatusUnset     EscrowStatus = ""
	EscrowStatusCreated   EscrowStatus = "created"
	EscrowStatusFunded    EscrowStatus = "funded"
	EscrowStatusDisputed  EscrowStatus = "disputed"
	EscrowStatusReleased  EscrowStatus = "released"
	EscrowStatusMediated  EscrowStatus = "mediated"
	EscrowStatusCancelled EscrowStatus = "cancelled"
)

// Valid state transitions: from -> []to
var ValidEscrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowStatusUnset:     {EscrowStatusCreated, EscrowStatusFunded},
	EscrowStatusCreated:   {EscrowStatusFunded, EscrowStatusCancelled},
	EscrowStatusFunded:    {EscrowStatusDisputed, EscrowStatusReleased},
	EscrowStatusDisputed:  {EscrowStatusMediated},
	EscrowStatusReleased:  {},
	EscrowStatusMediated:  {},
	EscrowStatusCancelled: {},
}

func IsValidTransition(from, to EscrowStatus) bool {
	allowed, ok := ValidEscrowTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s EscrowStatus) IsTerminal() bool {
	allowed, ok := ValidEscrowTransitions[s]
	return ok && s != EscrowStatusUnset && len(allowed) == 0
}

type Escrow struct {
	ID                  uint64       `json:"id"`
	Creator             string       `json:"creator"`
	Depositor           *string      `json:"depositor,omitempty"`
	Recipient           string       `json:"recipient"`
	Mediator            string       `json:"mediator"`
	Beneficiary         *string      `json:"beneficiary,omitempty"`
	Asset               Asset        `json:"asset"`
	Amount              *big.Int     `json:"amount"`
	LastDepositDeadline time.Time    `json:"last_deposit_deadline"`
	CreatedAt           time.Time    `json:"created_at"`
	MediationFeeBPS     int          `json:"mediation_fee_bps"`
	ExtraData           []byte       `json:"extra_data,omitempty"`
	Reason              *string      `json:"reason,omitempty"`
	Status              EscrowStatus `json:"status"`
}

// IsDepositor is false while the depositor is unbound.
func (e *Escrow) IsDepositor(addr string) bool {
	return e.Depositor != nil && *e.Depositor == addr
}

func (e *Escrow) IsCounterparty(addr string) bool {
	return e.IsDepositor(addr) || e.Recipient == addr
}

// Clone returns a deep copy so callers never share mutable state with the ledger.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	c := *e
	if e.Depositor != nil {
		d := *e.Depositor
		c.Depositor = &d
	}
	if e.Beneficiary != nil {
		b := *e.Beneficiary
		c.Beneficiary = &b
	}
	if e.Reason != nil {
		r := *e.Reason
		c.Reason = &r
	}
	if e.Amount != nil {
		c.Amount = new(big.Int).Set(e.Amount)
	}
	if e.ExtraData != nil {
		c.ExtraData = append([]byte(nil), e.ExtraData...)
	}
	return &c
}

// PlatformSettings is the administrator-owned configuration read by create and mediate.
type PlatformSettings struct {
	PlatformFeeBPS         int       `json:"platform_fee_bps"`
	FeeDestination         string    `json:"fee_destination"`
	DefaultMediator        string    `json:"default_mediator"`
	DefaultMediationFeeBPS int       `json:"default_mediation_fee_bps"`
	UpdatedAt              time.Time `json:"updated_at"`
}

type SupportedAsset struct {
	Asset     Asset     `json:"asset"`
	Supported bool      `json:"supported"`
	UpdatedAt time.Time `json:"updated_at"`
}
