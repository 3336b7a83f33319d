package dto

import (
	"time"

	"github.com/custody-escrow/backend/internal/ton"
)

// Amounts travel as base-unit decimal strings (nanotons, jetton units).

// CallValue is the native value the caller attaches to an escrow operation.
type CallValue struct {
	Value string `json:"value,omitempty"`
}

type SignInRequest struct {
	Address   string    `json:"address"`
	Network   string    `json:"network"`
	PublicKey string    `json:"public_key"`
	Proof     ton.Proof `json:"proof"`
}

type CreateEscrowRequest struct {
	CallValue
	Asset           string    `json:"asset"` // "TON" или адрес jetton master
	Recipient       string    `json:"recipient"`
	Depositor       *string   `json:"depositor,omitempty"`
	Mediator        *string   `json:"mediator,omitempty"`
	Amount          string    `json:"amount"`
	DepositDeadline time.Time `json:"deposit_deadline"`
	MediationFeeBPS int       `json:"mediation_fee_bps"`
	ExtraData       []byte    `json:"extra_data,omitempty"` // base64
}

type DepositRequest struct {
	CallValue
}

type DisputeRequest struct {
	CallValue
}

type ReleaseRequest struct {
	CallValue
	Beneficiary string `json:"beneficiary"`
}

type MediateRequest struct {
	CallValue
	Beneficiary string `json:"beneficiary"`
	Reason      string `json:"reason"`
}

type ApproveRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type WithdrawRequest struct {
	Destination string `json:"destination,omitempty"`
	Amount      string `json:"amount"`
}

// Admin

type UpdateSettingsRequest struct {
	PlatformFeeBPS         *int    `json:"platform_fee_bps,omitempty"`
	FeeDestination         *string `json:"fee_destination,omitempty"`
	DefaultMediator        *string `json:"default_mediator,omitempty"`
	DefaultMediationFeeBPS *int    `json:"default_mediation_fee_bps,omitempty"`
}

type SetAssetRequest struct {
	Supported bool `json:"supported"`
}

type CreditRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
	Note    string `json:"note,omitempty"`
}
