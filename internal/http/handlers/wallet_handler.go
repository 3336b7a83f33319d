package handlers

import (
	"github.com/custody-escrow/backend/internal/http/dto"
	"github.com/custody-escrow/backend/internal/services"
	"github.com/custody-escrow/backend/internal/ton"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type WalletHandler struct {
	walletService *services.WalletService
	log           *zap.Logger
}

func NewWalletHandler(walletService *services.WalletService, log *zap.Logger) *WalletHandler {
	return &WalletHandler{walletService: walletService, log: log}
}

// GeneratePayload создаёт nonce для TON Proof.
// POST /auth/proof-payload
func (h *WalletHandler) GeneratePayload(c *fiber.Ctx) error {
	payload, err := h.walletService.GeneratePayload(c.Context())
	if err != nil {
		h.log.Error("failed to generate proof payload", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(fiber.Map{"payload": payload})
}

// SignIn проверяет TON Proof и выдаёт JWT на адрес кошелька.
// POST /auth/sign-in
func (h *WalletHandler) SignIn(c *fiber.Ctx) error {
	var req dto.SignInRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if req.Address == "" || req.PublicKey == "" || req.Proof.Signature == "" {
		return badRequest(c, "address, public_key, and proof.signature are required")
	}

	res, err := h.walletService.SignIn(c.Context(), ton.ProofData{
		Address:   req.Address,
		Network:   req.Network,
		PublicKey: req.PublicKey,
		Proof:     req.Proof,
	})
	if err != nil {
		h.log.Debug("wallet sign-in failed", zap.Error(err))
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SignInResponse{Token: res.Token, Address: res.Address})
}
