package handlers

import (
	"github.com/custody-escrow/backend/internal/http/dto"
	"github.com/custody-escrow/backend/internal/middleware"
	"github.com/custody-escrow/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AccountHandler struct {
	accountService *services.AccountService
	custodyAccount string
	log            *zap.Logger
}

func NewAccountHandler(accountService *services.AccountService, custodyAccount string, log *zap.Logger) *AccountHandler {
	return &AccountHandler{accountService: accountService, custodyAccount: custodyAccount, log: log}
}

// GetBalances
// GET /me/balances
func (h *AccountHandler) GetBalances(c *fiber.Ctx) error {
	balances, err := h.accountService.Balances(c.Context(), middleware.GetAddress(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewBalanceViews(balances)})
}

// GetDepositInfo говорит, куда и с каким комментарием переводить TON.
// GET /me/deposit
func (h *AccountHandler) GetDepositInfo(c *fiber.Ctx) error {
	addr := middleware.GetAddress(c)
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{
		"wallet_address": h.custodyAccount,
		"memo":           "deposit:" + addr,
	}})
}

// GetAllowance
// GET /me/allowances/:asset
func (h *AccountHandler) GetAllowance(c *fiber.Ctx) error {
	asset, err := parseAsset(c.Params("asset"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	amount, err := h.accountService.Allowance(c.Context(), middleware.GetAddress(c), asset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.BalanceView{Asset: string(asset), Amount: amount.String()}})
}

// Approve разрешает движку списывать jetton при депозите и комиссии.
// POST /me/allowances
func (h *AccountHandler) Approve(c *fiber.Ctx) error {
	var req dto.ApproveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	asset, err := parseAsset(req.Asset)
	if err != nil {
		return badRequest(c, err.Error())
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.accountService.Approve(c.Context(), middleware.GetAddress(c), asset, amount); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// RequestWithdrawal
// POST /me/withdrawals
func (h *AccountHandler) RequestWithdrawal(c *fiber.Ctx) error {
	var req dto.WithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	destination, err := optionalParty(req.Destination)
	if err != nil {
		return badRequest(c, "invalid destination: "+err.Error())
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return badRequest(c, err.Error())
	}

	w, err := h.accountService.RequestWithdrawal(c.Context(), middleware.GetAddress(c), destination, amount)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: dto.NewWithdrawalView(w)})
}

// ListWithdrawals
// GET /me/withdrawals
func (h *AccountHandler) ListWithdrawals(c *fiber.Ctx) error {
	list, err := h.accountService.ListWithdrawals(c.Context(), middleware.GetAddress(c), queryInt(c, "limit", 50))
	if err != nil {
		return respondError(c, h.log, err)
	}
	out := make([]dto.WithdrawalView, 0, len(list))
	for i := range list {
		out = append(out, dto.NewWithdrawalView(&list[i]))
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: out})
}
