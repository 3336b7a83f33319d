package handlers

import (
	"github.com/custody-escrow/backend/internal/http/dto"
	"github.com/custody-escrow/backend/internal/middleware"
	"github.com/custody-escrow/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AdminHandler struct {
	adminService *services.AdminService
	log          *zap.Logger
}

func NewAdminHandler(adminService *services.AdminService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{adminService: adminService, log: log}
}

// GetSettings
// GET /admin/settings
func (h *AdminHandler) GetSettings(c *fiber.Ctx) error {
	settings, err := h.adminService.Settings(c.Context(), middleware.GetAddress(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: settings})
}

// UpdateSettings applies a partial update on top of the current settings.
// PUT /admin/settings
func (h *AdminHandler) UpdateSettings(c *fiber.Ctx) error {
	var req dto.UpdateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	actor := middleware.GetAddress(c)
	current, err := h.adminService.Settings(c.Context(), actor)
	if err != nil {
		return respondError(c, h.log, err)
	}

	next := *current
	if req.PlatformFeeBPS != nil {
		next.PlatformFeeBPS = *req.PlatformFeeBPS
	}
	if req.DefaultMediationFeeBPS != nil {
		next.DefaultMediationFeeBPS = *req.DefaultMediationFeeBPS
	}
	if req.FeeDestination != nil {
		if next.FeeDestination, err = optionalParty(*req.FeeDestination); err != nil {
			return badRequest(c, "invalid fee_destination: "+err.Error())
		}
	}
	if req.DefaultMediator != nil {
		if next.DefaultMediator, err = optionalParty(*req.DefaultMediator); err != nil {
			return badRequest(c, "invalid default_mediator: "+err.Error())
		}
	}

	updated, err := h.adminService.UpdateSettings(c.Context(), actor, next)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: updated})
}

// ListAssets
// GET /admin/assets
func (h *AdminHandler) ListAssets(c *fiber.Ctx) error {
	assets, err := h.adminService.ListAssets(c.Context())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: assets})
}

// SetAssetSupported
// PUT /admin/assets/:asset
func (h *AdminHandler) SetAssetSupported(c *fiber.Ctx) error {
	asset, err := parseAsset(c.Params("asset"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req dto.SetAssetRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if err := h.adminService.SetAssetSupported(c.Context(), middleware.GetAddress(c), asset, req.Supported); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{"asset": asset, "supported": req.Supported}})
}

// CreditAccount вручную зачисляет средства (например, входящие jetton-переводы).
// POST /admin/credits
func (h *AdminHandler) CreditAccount(c *fiber.Ctx) error {
	var req dto.CreditRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	account, err := parseAccount(req.Account)
	if err != nil {
		return badRequest(c, "invalid account: "+err.Error())
	}
	asset, err := parseAsset(req.Asset)
	if err != nil {
		return badRequest(c, err.Error())
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.adminService.CreditAccount(c.Context(), middleware.GetAddress(c), account, asset, amount, req.Note); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}
