package services

import "errors"

// Every error aborts the surrounding transaction; callers classify with errors.Is.
var (
	ErrNotFound           = errors.New("escrow not found")
	ErrUnsupportedAsset   = errors.New("asset not supported")
	ErrInvalidRecipient   = errors.New("invalid recipient")
	ErrInvalidDeadline    = errors.New("deposit deadline must be in the future")
	ErrInvalidState       = errors.New("invalid escrow state")
	ErrUnauthorized       = errors.New("caller not authorized")
	ErrInvalidBeneficiary = errors.New("invalid beneficiary")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAmountMismatch     = errors.New("attached value does not match amount")
	ErrTransferFailed     = errors.New("transfer failed")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInvalidFee         = errors.New("fee rate out of range")
	ErrForbidden          = errors.New("admin capability required")
)

// Storage-level errors returned by BalanceStore implementations.
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Wallet sign-in errors.
var (
	ErrProofPayloadUnavailable = errors.New("proof payload unknown, used or expired")
	ErrInvalidProof            = errors.New("invalid ton proof")
	ErrInvalidAddress          = errors.New("invalid address")
)
