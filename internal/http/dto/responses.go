package dto

import (
	"time"

	"github.com/custody-escrow/backend/internal/models"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type SignInResponse struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

// EscrowView is models.Escrow with the amount rendered as a decimal string.
type EscrowView struct {
	ID                  uint64    `json:"id"`
	Creator             string    `json:"creator"`
	Depositor           *string   `json:"depositor"`
	Recipient           string    `json:"recipient"`
	Mediator            string    `json:"mediator"`
	Beneficiary         *string   `json:"beneficiary"`
	Asset               string    `json:"asset"`
	Amount              string    `json:"amount"`
	LastDepositDeadline time.Time `json:"last_deposit_deadline"`
	CreatedAt           time.Time `json:"created_at"`
	MediationFeeBPS     int       `json:"mediation_fee_bps"`
	ExtraData           []byte    `json:"extra_data,omitempty"`
	Reason              *string   `json:"reason"`
	Status              string    `json:"status"`
}

func NewEscrowView(e *models.Escrow) EscrowView {
	v := EscrowView{
		ID:                  e.ID,
		Creator:             e.Creator,
		Depositor:           e.Depositor,
		Recipient:           e.Recipient,
		Mediator:            e.Mediator,
		Beneficiary:         e.Beneficiary,
		Asset:               string(e.Asset),
		Amount:              "0",
		LastDepositDeadline: e.LastDepositDeadline,
		CreatedAt:           e.CreatedAt,
		MediationFeeBPS:     e.MediationFeeBPS,
		ExtraData:           e.ExtraData,
		Reason:              e.Reason,
		Status:              string(e.Status),
	}
	if e.Amount != nil {
		v.Amount = e.Amount.String()
	}
	return v
}

func NewEscrowViews(list []*models.Escrow) []EscrowView {
	out := make([]EscrowView, 0, len(list))
	for _, e := range list {
		out = append(out, NewEscrowView(e))
	}
	return out
}

type BalanceView struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

func NewBalanceViews(list []models.Balance) []BalanceView {
	out := make([]BalanceView, 0, len(list))
	for _, b := range list {
		out = append(out, BalanceView{Asset: string(b.Asset), Amount: b.Amount.String()})
	}
	return out
}

type WithdrawalView struct {
	ID          string     `json:"id"`
	Destination string     `json:"destination"`
	Amount      string     `json:"amount"`
	Status      string     `json:"status"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

func NewWithdrawalView(w *models.Withdrawal) WithdrawalView {
	return WithdrawalView{
		ID:          w.ID.String(),
		Destination: w.Destination,
		Amount:      w.Amount.String(),
		Status:      w.Status,
		Error:       w.Error,
		CreatedAt:   w.CreatedAt,
		ProcessedAt: w.ProcessedAt,
	}
}
