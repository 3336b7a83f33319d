package handlers

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/custody-escrow/backend/internal/http/dto"
	"github.com/custody-escrow/backend/internal/middleware"
	"github.com/custody-escrow/backend/internal/models"
	"github.com/custody-escrow/backend/internal/services"
	"github.com/custody-escrow/backend/internal/ton"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// statusFor maps the service error taxonomy to HTTP. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrUnauthorized),
		errors.Is(err, services.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrInvalidProof),
		errors.Is(err, services.ErrProofPayloadUnavailable):
		return fiber.StatusUnauthorized
	case errors.Is(err, services.ErrInvalidState):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrInsufficientFunds),
		errors.Is(err, services.ErrAmountMismatch):
		return fiber.StatusPaymentRequired
	case errors.Is(err, services.ErrTransferFailed):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, services.ErrUnsupportedAsset),
		errors.Is(err, services.ErrInvalidRecipient),
		errors.Is(err, services.ErrInvalidDeadline),
		errors.Is(err, services.ErrInvalidBeneficiary),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidFee),
		errors.Is(err, services.ErrInvalidAddress):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		msg = "internal error"
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}

func parseEscrowID(c *fiber.Ctx) (uint64, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid escrow id")
	}
	return id, nil
}

// parseAmount reads a base-unit decimal string. Empty means zero.
func parseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

// parseAsset keeps the native sentinel and canonicalizes jetton master addresses.
func parseAsset(s string) (models.Asset, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, string(models.AssetNative)) {
		return models.AssetNative, nil
	}
	addr, err := ton.CanonicalAccount(s)
	if err != nil {
		return "", fmt.Errorf("invalid asset: %w", err)
	}
	return models.Asset(addr), nil
}

func parseAccount(s string) (string, error) {
	return ton.CanonicalAccount(s)
}

// parseOptionalAccount leaves nil and empty values unset.
func parseOptionalAccount(s *string) (*string, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	addr, err := parseAccount(*s)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func queryInt(c *fiber.Ctx, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}

func callFrom(c *fiber.Ctx, v dto.CallValue) (services.Call, error) {
	value, err := parseAmount(v.Value)
	if err != nil {
		return services.Call{}, err
	}
	return services.Call{Caller: middleware.GetAddress(c), Value: value}, nil
}
