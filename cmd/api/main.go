package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/custody-escrow/backend/internal/config"
	"github.com/custody-escrow/backend/internal/db"
	"github.com/custody-escrow/backend/internal/events"
	apphttp "github.com/custody-escrow/backend/internal/http"
	"github.com/custody-escrow/backend/internal/http/handlers"
	"github.com/custody-escrow/backend/internal/metrics"
	"github.com/custody-escrow/backend/internal/models"
	"github.com/custody-escrow/backend/internal/repositories"
	"github.com/custody-escrow/backend/internal/repositories/memstore"
	"github.com/custody-escrow/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if err := cfg.NormalizeAddresses(); err != nil {
		log.Fatal("invalid address in config", zap.Error(err))
	}
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage + events
	var (
		stores     services.Stores
		rdb        *redis.Client
		publisher  events.Publisher
		subscriber events.Subscriber
	)
	switch cfg.StorageDriver {
	case "memory":
		log.Warn("STORAGE_DRIVER=memory: state is lost on restart")
		stores = memstore.New().Stores()
		bus := events.NewMemoryBus()
		publisher, subscriber = bus, bus
	default:
		pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
		if err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()

		// Run migrations
		if err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}

		// Redis
		rdb, err = db.NewRedisClient(ctx, cfg.RedisURL, "escrow-api", log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()

		stores = repositories.NewStores(pool, log)
		publisher = events.NewRedisPublisher(rdb, log)
		subscriber = events.NewRedisSubscriber(rdb, log)
	}

	// Services
	custody := services.NewCustodyAdapter(stores.Balances, cfg.TONHotWalletAddress, log)
	escrowService := services.NewEscrowService(stores.Tx, stores.Escrows, stores.Balances, stores.Config, stores.Audit, custody, publisher, log)
	accountService := services.NewAccountService(stores.Tx, stores.Balances, stores.Withdrawals, stores.Audit, publisher, log)
	adminService := services.NewAdminService(stores.Tx, stores.Config, stores.Audit, accountService, cfg.RoleOf, log)
	walletService := services.NewWalletService(stores.Proofs, stores.Audit, cfg, log)

	if err := adminService.Bootstrap(ctx, defaultSettings(cfg), supportedAssets(cfg)); err != nil {
		log.Fatal("failed to seed platform settings", zap.Error(err))
	}

	// Handlers
	wsHub := handlers.NewWSHub(cfg, subscriber, escrowService.GetEscrow, log)
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to subscribe ws hub", zap.Error(err))
	}

	reg := metrics.NewRegistry()
	if err := reg.Track(ctx, subscriber); err != nil {
		log.Fatal("failed to subscribe metrics", zap.Error(err))
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, apphttp.Handlers{
		Wallet:  handlers.NewWalletHandler(walletService, log),
		Escrow:  handlers.NewEscrowHandler(escrowService, log),
		Account: handlers.NewAccountHandler(accountService, cfg.TONHotWalletAddress, log),
		Admin:   handlers.NewAdminHandler(adminService, log),
		WSHub:   wsHub,
		Metrics: reg,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr), zap.String("storage", cfg.StorageDriver))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func defaultSettings(cfg *config.Config) models.PlatformSettings {
	return models.PlatformSettings{
		PlatformFeeBPS:         cfg.PlatformFeeBPS,
		FeeDestination:         cfg.FeeDestination,
		DefaultMediator:        cfg.DefaultMediator,
		DefaultMediationFeeBPS: cfg.DefaultMediationFeeBPS,
	}
}

func supportedAssets(cfg *config.Config) []models.Asset {
	out := make([]models.Asset, 0, len(cfg.SupportedAssets))
	for _, a := range cfg.SupportedAssets {
		out = append(out, models.Asset(a))
	}
	return out
}
