package main

import (
	"context"
	"errors"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custody-escrow/backend/internal/config"
	"github.com/custody-escrow/backend/internal/db"
	"github.com/custody-escrow/backend/internal/events"
	"github.com/custody-escrow/backend/internal/models"
	"github.com/custody-escrow/backend/internal/repositories"
	"github.com/custody-escrow/backend/internal/services"
	"github.com/custody-escrow/backend/internal/ton"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Payout worker: sends queued withdrawals from the custody hot wallet.

const claimTTL = 10 * time.Minute

// sender is satisfied by *ton.Payer.
type sender interface {
	Send(ctx context.Context, to string, amountNano *big.Int, comment string) error
}

// claimer keeps two workers from paying the same withdrawal.
type claimer interface {
	Claim(ctx context.Context, id string) bool
}

type redisClaimer struct {
	rdb *redis.Client
}

func (c redisClaimer) Claim(ctx context.Context, id string) bool {
	ok, err := c.rdb.SetNX(ctx, "worker:withdrawal:"+id, "1", claimTTL).Result()
	return err == nil && ok
}

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if err := cfg.NormalizeAddresses(); err != nil {
		log.Fatal("invalid address in config", zap.Error(err))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TONWalletSeed == "" {
		log.Fatal("TON_WALLET_SEED is required")
	}

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, "payout-worker", log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Services
	stores := repositories.NewStores(pool, log)
	publisher := events.NewRedisPublisher(rdb, log)
	accounts := services.NewAccountService(stores.Tx, stores.Balances, stores.Withdrawals, stores.Audit, publisher, log)

	tonAPI, err := ton.Connect(ctx, ton.ConnectOptions{
		Network:        cfg.TONNetwork,
		LiteServerHost: cfg.LiteServerHost,
		LiteServerPort: cfg.LiteServerPort,
		LiteServerKey:  cfg.LiteServerKey,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to TON network", zap.Error(err))
	}
	payer, err := ton.NewPayer(tonAPI, cfg.TONWalletSeed, cfg.TONHotWalletAddress, log)
	if err != nil {
		log.Fatal("failed to open hot wallet", zap.Error(err))
	}

	log.Info("worker started",
		zap.String("hot_wallet", payer.Address()),
		zap.Duration("poll_interval", cfg.WithdrawPollInterval),
	)

	// Run jobs on tickers
	payoutTicker := time.NewTicker(cfg.WithdrawPollInterval)
	defer payoutTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-payoutTicker.C:
			runPayouts(ctx, accounts, payer, redisClaimer{rdb: rdb}, cfg.WithdrawBatchSize, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// runPayouts sends one batch of pending withdrawals, oldest first. Each one is
// moved to sending before the wallet sees it, so it is paid at most once. A
// failed send marks the withdrawal failed, which returns the funds to the account.
func runPayouts(ctx context.Context, accounts *services.AccountService, payer sender, claims claimer, batch int, log *zap.Logger) {
	pending, err := accounts.PendingWithdrawals(ctx, batch)
	if err != nil {
		log.Error("failed to list pending withdrawals", zap.Error(err))
		return
	}

	for i := range pending {
		w := &pending[i]
		if !claims.Claim(ctx, w.ID.String()) {
			continue
		}
		if err := accounts.BeginWithdrawal(ctx, w); err != nil {
			if !errors.Is(err, services.ErrInvalidState) {
				log.Error("failed to start withdrawal", zap.String("withdrawal_id", w.ID.String()), zap.Error(err))
			}
			continue
		}

		if err := payer.Send(ctx, w.Destination, w.Amount, "withdrawal:"+w.ID.String()); err != nil {
			log.Warn("payout failed, refunding",
				zap.String("withdrawal_id", w.ID.String()),
				zap.String("account", w.Account),
				zap.Error(err),
			)
			if err := accounts.FailWithdrawal(ctx, w, err.Error()); err != nil {
				log.Error("failed to refund withdrawal, left in sending",
					zap.String("withdrawal_id", w.ID.String()),
					zap.String("account", w.Account),
					zap.Error(err),
				)
			}
			continue
		}

		if err := accounts.CompleteWithdrawal(ctx, w); err != nil {
			// The coins already left the wallet. The row stays in sending and is not resent.
			log.Error("payout sent but not recorded",
				zap.String("withdrawal_id", w.ID.String()),
				zap.String("status", models.WithdrawalStatusSending),
				zap.Error(err),
			)
		}
	}
}
