package handlers

import (
	"fmt"
	"strings"

	"github.com/custody-escrow/backend/internal/http/dto"
	"github.com/custody-escrow/backend/internal/middleware"
	"github.com/custody-escrow/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type EscrowHandler struct {
	escrowService *services.EscrowService
	log           *zap.Logger
}

func NewEscrowHandler(escrowService *services.EscrowService, log *zap.Logger) *EscrowHandler {
	return &EscrowHandler{escrowService: escrowService, log: log}
}

// CreateEscrow
// POST /escrows
func (h *EscrowHandler) CreateEscrow(c *fiber.Ctx) error {
	var req dto.CreateEscrowRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	call, err := callFrom(c, req.CallValue)
	if err != nil {
		return badRequest(c, err.Error())
	}
	asset, err := parseAsset(req.Asset)
	if err != nil {
		return respondError(c, h.log, fmt.Errorf("%w: %v", services.ErrUnsupportedAsset, err))
	}
	recipient, err := optionalParty(req.Recipient)
	if err != nil {
		return respondError(c, h.log, fmt.Errorf("%w: %v", services.ErrInvalidRecipient, err))
	}
	depositor, err := parseOptionalAccount(req.Depositor)
	if err != nil {
		return badRequest(c, "invalid depositor: "+err.Error())
	}
	mediator, err := parseOptionalAccount(req.Mediator)
	if err != nil {
		return badRequest(c, "invalid mediator: "+err.Error())
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return badRequest(c, err.Error())
	}

	escrow, err := h.escrowService.Create(c.Context(), call, services.CreateEscrowInput{
		Asset:           asset,
		Recipient:       recipient,
		Depositor:       depositor,
		Mediator:        mediator,
		Amount:          amount,
		DepositDeadline: req.DepositDeadline,
		MediationFeeBPS: req.MediationFeeBPS,
		ExtraData:       req.ExtraData,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: dto.NewEscrowView(escrow)})
}

// Deposit
// POST /escrows/:id/deposit
func (h *EscrowHandler) Deposit(c *fiber.Ctx) error {
	id, err := parseEscrowID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req dto.DepositRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return badRequest(c, "invalid request body")
	}
	call, err := callFrom(c, req.CallValue)
	if err != nil {
		return badRequest(c, err.Error())
	}

	escrow, err := h.escrowService.Deposit(c.Context(), call, id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	// Поздний депозит отменяет эскроу без ошибки: клиент смотрит на status.
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewEscrowView(escrow)})
}

// RaiseDispute
// POST /escrows/:id/dispute
func (h *EscrowHandler) RaiseDispute(c *fiber.Ctx) error {
	id, err := parseEscrowID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req dto.DisputeRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return badRequest(c, "invalid request body")
	}
	call, err := callFrom(c, req.CallValue)
	if err != nil {
		return badRequest(c, err.Error())
	}

	escrow, err := h.escrowService.RaiseDispute(c.Context(), call, id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewEscrowView(escrow)})
}

// Release
// POST /escrows/:id/release
func (h *EscrowHandler) Release(c *fiber.Ctx) error {
	id, err := parseEscrowID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req dto.ReleaseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	call, err := callFrom(c, req.CallValue)
	if err != nil {
		return badRequest(c, err.Error())
	}
	beneficiary, err := optionalParty(req.Beneficiary)
	if err != nil {
		return respondError(c, h.log, fmt.Errorf("%w: %v", services.ErrInvalidBeneficiary, err))
	}

	escrow, err := h.escrowService.Release(c.Context(), call, id, beneficiary)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewEscrowView(escrow)})
}

// Mediate
// POST /escrows/:id/mediate
func (h *EscrowHandler) Mediate(c *fiber.Ctx) error {
	id, err := parseEscrowID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req dto.MediateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	call, err := callFrom(c, req.CallValue)
	if err != nil {
		return badRequest(c, err.Error())
	}
	beneficiary, err := optionalParty(req.Beneficiary)
	if err != nil {
		return respondError(c, h.log, fmt.Errorf("%w: %v", services.ErrInvalidBeneficiary, err))
	}

	escrow, err := h.escrowService.Mediate(c.Context(), call, id, beneficiary, req.Reason)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewEscrowView(escrow)})
}

// GetEscrow
// GET /escrows/:id
func (h *EscrowHandler) GetEscrow(c *fiber.Ctx) error {
	id, err := parseEscrowID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	escrow, err := h.escrowService.GetEscrow(c.Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewEscrowView(escrow)})
}

// Count
// GET /escrows/count
func (h *EscrowHandler) Count(c *fiber.Ctx) error {
	n, err := h.escrowService.TotalEscrows(c.Context())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{"count": n}})
}

// ListMine
// GET /escrows?limit=&offset=
func (h *EscrowHandler) ListMine(c *fiber.Ctx) error {
	list, err := h.escrowService.ListForParty(c.Context(), middleware.GetAddress(c), queryInt(c, "limit", 20), queryInt(c, "offset", 0))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewEscrowViews(list)})
}

// GetEvents
// GET /escrows/:id/events
func (h *EscrowHandler) GetEvents(c *fiber.Ctx) error {
	id, err := parseEscrowID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	logs, err := h.escrowService.History(c.Context(), id, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: logs})
}

// IsAssetSupported
// GET /assets/:asset/supported
func (h *EscrowHandler) IsAssetSupported(c *fiber.Ctx) error {
	asset, err := parseAsset(c.Params("asset"))
	if err != nil {
		return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{"asset": c.Params("asset"), "supported": false}})
	}
	ok, err := h.escrowService.IsAssetSupported(c.Context(), asset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{"asset": asset, "supported": ok}})
}

// optionalParty canonicalizes a party address. An empty value is passed through
// so the state machine reports it in its own check order.
func optionalParty(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	return parseAccount(s)
}

// parseOptionalBody accepts an empty body for operations whose only input is the id.
func parseOptionalBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return c.BodyParser(out)
}
