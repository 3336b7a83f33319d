package http

import (
	"time"

	"github.com/custody-escrow/backend/internal/config"
	"github.com/custody-escrow/backend/internal/http/handlers"
	"github.com/custody-escrow/backend/internal/metrics"
	"github.com/custody-escrow/backend/internal/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Handlers struct {
	Wallet  *handlers.WalletHandler
	Escrow  *handlers.EscrowHandler
	Account *handlers.AccountHandler
	Admin   *handlers.AdminHandler
	WSHub   *handlers.WSHub   // nil disables /ws
	Metrics *metrics.Registry // nil disables /metrics
}

// SetupRouter wires every route. rdb may be nil, which turns rate limiting off.
func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	h Handlers,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))
	if h.Metrics != nil {
		app.Use(h.Metrics.Middleware())
		app.Get("/metrics", h.Metrics.Handler())
	}

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Rate-limited public endpoints
	api.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitRPS, time.Minute))

	// Auth (TON Connect + Proof)
	api.Post("/auth/proof-payload", h.Wallet.GeneratePayload)
	api.Post("/auth/sign-in", h.Wallet.SignIn)

	// Read-only escrow surface
	api.Get("/escrows/count", h.Escrow.Count)
	api.Get("/escrows/:id<int>", h.Escrow.GetEscrow)
	api.Get("/escrows/:id<int>/events", h.Escrow.GetEvents)
	api.Get("/assets/:asset/supported", h.Escrow.IsAssetSupported)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Escrows
	protected.Get("/escrows", h.Escrow.ListMine)
	protected.Post("/escrows", h.Escrow.CreateEscrow)
	protected.Post("/escrows/:id/deposit", h.Escrow.Deposit)
	protected.Post("/escrows/:id/dispute", h.Escrow.RaiseDispute)
	protected.Post("/escrows/:id/release", h.Escrow.Release)
	protected.Post("/escrows/:id/mediate", h.Escrow.Mediate)

	// Account
	protected.Get("/me/balances", h.Account.GetBalances)
	protected.Get("/me/deposit", h.Account.GetDepositInfo)
	protected.Get("/me/allowances/:asset", h.Account.GetAllowance)
	protected.Post("/me/allowances", h.Account.Approve)
	protected.Get("/me/withdrawals", h.Account.ListWithdrawals)
	protected.Post("/me/withdrawals", h.Account.RequestWithdrawal)

	// Admin
	admin := protected.Group("/admin", middleware.AdminMiddleware(cfg))
	admin.Get("/settings", h.Admin.GetSettings)
	admin.Put("/settings", h.Admin.UpdateSettings)
	admin.Get("/assets", h.Admin.ListAssets)
	admin.Put("/assets/:asset", h.Admin.SetAssetSupported)
	admin.Post("/credits", h.Admin.CreditAccount)

	// WebSocket
	if h.WSHub != nil {
		app.Use("/ws", handlers.WSUpgradeMiddleware())
		app.Get("/ws", websocket.New(h.WSHub.HandleWS))
	}
}
