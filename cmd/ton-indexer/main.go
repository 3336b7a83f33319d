package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/custody-escrow/backend/internal/config"
	"github.com/custody-escrow/backend/internal/db"
	"github.com/custody-escrow/backend/internal/events"
	"github.com/custody-escrow/backend/internal/models"
	"github.com/custody-escrow/backend/internal/repositories"
	"github.com/custody-escrow/backend/internal/services"
	tonaddr "github.com/custody-escrow/backend/internal/ton"
	"github.com/redis/go-redis/v9"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"go.uber.org/zap"
)

// TON indexer: follows the custody hot wallet and credits incoming transfers
// tagged "deposit:<address>" to that account's custodial TON balance.

const (
	cursorKey         = "ton-indexer:cursor"
	claimKeyPrefix    = "ton-indexer:tx:"
	claimTTL          = 7 * 24 * time.Hour
	pollInterval      = 5 * time.Second
	txBatchSize       = 100
	depositMemoPrefix = "deposit:"
)

type creditor interface {
	Credit(ctx context.Context, actor, account string, asset models.Asset, amount *big.Int, ref string) error
}

// claimStore makes crediting idempotent across restarts and replays.
type claimStore interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string)
	Settle(ctx context.Context, key, value string)
}

type redisClaims struct {
	rdb *redis.Client
}

func (c redisClaims) Claim(ctx context.Context, key string) (bool, error) {
	return c.rdb.SetNX(ctx, claimKeyPrefix+key, "processing", claimTTL).Result()
}

func (c redisClaims) Release(ctx context.Context, key string) {
	c.rdb.Del(ctx, claimKeyPrefix+key)
}

func (c redisClaims) Settle(ctx context.Context, key, value string) {
	c.rdb.Set(ctx, claimKeyPrefix+key, value, claimTTL)
}

// chain is the part of the lite client API the indexer reads.
type chain interface {
	CurrentMasterchainInfo(ctx context.Context) (*ton.BlockIDExt, error)
	GetAccount(ctx context.Context, block *ton.BlockIDExt, addr *address.Address) (*tlb.Account, error)
	ListTransactions(ctx context.Context, addr *address.Address, num uint32, lt uint64, txHash []byte) ([]*tlb.Transaction, error)
}

// cursorStore holds the (lt, hash) of the last handled wallet transaction.
type cursorStore interface {
	load(ctx context.Context) (lt uint64, found bool, err error)
	save(ctx context.Context, lt uint64, hash []byte) error
}

// redisCursor keeps the cursor in one redis hash.
type redisCursor struct {
	rdb *redis.Client
}

func (c redisCursor) load(ctx context.Context) (lt uint64, found bool, err error) {
	vals, err := c.rdb.HGetAll(ctx, cursorKey).Result()
	if err != nil {
		return 0, false, err
	}
	raw, ok := vals["lt"]
	if !ok {
		return 0, false, nil
	}
	lt, err = strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cursor %q: %w", raw, err)
	}
	return lt, true, nil
}

func (c redisCursor) save(ctx context.Context, lt uint64, hash []byte) error {
	return c.rdb.HSet(ctx, cursorKey,
		"lt", strconv.FormatUint(lt, 10),
		"hash", hex.EncodeToString(hash),
	).Err()
}

type indexer struct {
	api     chain
	wallet  *address.Address
	credits creditor
	claims  claimStore
	cursor  cursorStore
	log     *zap.Logger
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

	if cfg.TONHotWalletAddress == "" {
		log.Fatal("TON_HOT_WALLET_ADDRESS is required")
	}

	hotWallet, err := tonaddr.ParseAccount(cfg.TONHotWalletAddress)
	if err != nil {
		log.Fatal("invalid TON_HOT_WALLET_ADDRESS", zap.String("addr", cfg.TONHotWalletAddress), zap.Error(err))
	}

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, "ton-indexer", log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	stores := repositories.NewStores(pool, log)
	publisher := events.NewRedisPublisher(rdb, log)
	accounts := services.NewAccountService(stores.Tx, stores.Balances, stores.Withdrawals, stores.Audit, publisher, log)

	tonAPI, err := tonaddr.Connect(ctx, tonaddr.ConnectOptions{
		Network:        cfg.TONNetwork,
		LiteServerHost: cfg.LiteServerHost,
		LiteServerPort: cfg.LiteServerPort,
		LiteServerKey:  cfg.LiteServerKey,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to TON network", zap.Error(err))
	}

	idx := &indexer{
		api:     tonAPI,
		wallet:  hotWallet,
		credits: accounts,
		claims:  redisClaims{rdb: rdb},
		cursor:  redisCursor{rdb: rdb},
		log:     log,
	}

	log.Info("TON indexer started",
		zap.String("hot_wallet", hotWallet.String()),
		zap.String("network", cfg.TONNetwork),
	)

	idx.initCursor(ctx)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if err := idx.poll(ctx); err != nil {
				log.Error("poll cycle failed", zap.Error(err))
			}
		case <-sigCh:
			log.Info("shutting down TON indexer")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// initCursor pins the cursor to the wallet's current last transaction on first run,
// so history that predates the indexer is never credited.
func (i *indexer) initCursor(ctx context.Context) {
	lt, found, err := i.cursor.load(ctx)
	if err != nil {
		i.log.Warn("failed to read cursor", zap.Error(err))
	}
	if found {
		i.log.Info("resuming from saved cursor", zap.Uint64("lt", lt))
		return
	}

	account, err := i.walletState(ctx)
	if err != nil || account == nil || !account.IsActive || account.LastTxLT == 0 {
		if err != nil {
			i.log.Warn("failed to read hot wallet for cursor init", zap.Error(err))
		} else {
			i.log.Info("hot wallet not active yet, starting from LT=0")
		}
		if err := i.cursor.save(ctx, 0, nil); err != nil {
			i.log.Error("failed to save cursor", zap.Error(err))
		}
		return
	}

	if err := i.cursor.save(ctx, account.LastTxLT, account.LastTxHash); err != nil {
		i.log.Error("failed to save cursor", zap.Error(err))
		return
	}
	i.log.Info("cursor initialized at current account state",
		zap.Uint64("lt", account.LastTxLT),
		zap.String("hash", hex.EncodeToString(account.LastTxHash)),
	)
}

func (i *indexer) walletState(ctx context.Context) (*tlb.Account, error) {
	block, err := i.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("get master block: %w", err)
	}
	account, err := i.api.GetAccount(ctx, block, i.wallet)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// poll handles every wallet transaction newer than the cursor. The cursor only
// moves past transactions that were handled, so a deposit whose credit failed
// is retried on the next poll.
func (i *indexer) poll(ctx context.Context) error {
	cursorLT, _, err := i.cursor.load(ctx)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}

	account, err := i.walletState(ctx)
	if err != nil {
		return err
	}
	if account == nil || !account.IsActive || account.LastTxLT <= cursorLT {
		return nil
	}

	txs, err := i.fetchSince(ctx, account, cursorLT)
	if err != nil {
		return fmt.Errorf("fetch transactions: %w", err)
	}
	if len(txs) > 0 {
		i.log.Info("found new transactions", zap.Int("count", len(txs)))
	}
	for n, tx := range txs {
		if err := i.handle(ctx, tx); err != nil {
			if n > 0 {
				prev := txs[n-1]
				if serr := i.cursor.save(ctx, prev.LT, prev.Hash); serr != nil {
					i.log.Error("failed to save cursor", zap.Error(serr))
				}
			}
			return fmt.Errorf("handle tx lt=%d: %w", tx.LT, err)
		}
	}

	return i.cursor.save(ctx, account.LastTxLT, account.LastTxHash)
}

// fetchSince pages backwards from the wallet head until it reaches cursorLT
// and returns the newer transactions oldest first.
func (i *indexer) fetchSince(ctx context.Context, account *tlb.Account, cursorLT uint64) ([]*tlb.Transaction, error) {
	var out []*tlb.Transaction

	lt, hash := account.LastTxLT, account.LastTxHash
	for {
		page, err := i.api.ListTransactions(ctx, i.wallet, uint32(txBatchSize), lt, hash)
		if err != nil {
			return nil, fmt.Errorf("list transactions (lt=%d): %w", lt, err)
		}
		if len(page) == 0 {
			break
		}

		reached := false
		for _, tx := range page {
			if tx.LT <= cursorLT {
				reached = true
				continue
			}
			out = append(out, tx)
		}
		if reached || len(page) < txBatchSize || page[0].PrevTxLT == 0 {
			break
		}
		lt, hash = page[0].PrevTxLT, page[0].PrevTxHash
	}

	sort.Slice(out, func(a, b int) bool { return out[a].LT < out[b].LT })
	return out, nil
}

// handle credits one incoming transfer if it carries a deposit memo. Transfers
// that are not deposits are not errors.
func (i *indexer) handle(ctx context.Context, tx *tlb.Transaction) error {
	if tx.IO.In == nil {
		return nil
	}
	inMsg, ok := tx.IO.In.Msg.(*tlb.InternalMessage)
	if !ok || inMsg == nil || inMsg.Bounced {
		return nil
	}

	amount := inMsg.Amount.Nano()
	if amount.Sign() <= 0 {
		return nil
	}

	memo := extractComment(inMsg)
	account, ok := depositAccount(memo)
	if !ok {
		i.log.Debug("transfer without deposit memo, skipping",
			zap.Uint64("lt", tx.LT),
			zap.String("amount", inMsg.Amount.String()),
			zap.String("memo", memo),
		)
		return nil
	}

	key := strconv.FormatUint(tx.LT, 10)
	claimed, err := i.claims.Claim(ctx, key)
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	if !claimed {
		return nil
	}

	ref := "ton:" + key + ":" + hex.EncodeToString(tx.Hash)
	if err := i.credits.Credit(ctx, "", account, models.AssetNative, amount, ref); err != nil {
		i.claims.Release(ctx, key)
		return fmt.Errorf("credit %s: %w", account, err)
	}
	i.claims.Settle(ctx, key, "credited:"+account)

	i.log.Info("deposit credited",
		zap.Uint64("tx_lt", tx.LT),
		zap.String("amount", inMsg.Amount.String()),
		zap.String("account", account),
	)
	return nil
}

// depositAccount reads the credited account out of a "deposit:<address>" memo.
func depositAccount(memo string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(memo), depositMemoPrefix)
	if !ok {
		return "", false
	}
	account, err := tonaddr.CanonicalAccount(rest)
	if err != nil {
		return "", false
	}
	return account, true
}

// extractComment parses a text comment from an InternalMessage body.
// TON text comments have opcode 0x00000000 followed by UTF-8 text.
func extractComment(inMsg *tlb.InternalMessage) string {
	if inMsg.Body == nil {
		return ""
	}

	slice := inMsg.Body.BeginParse()
	if slice.BitsLeft() < 32 {
		return ""
	}
	if op, err := slice.LoadUInt(32); err != nil || op != 0 {
		return ""
	}

	data, err := slice.LoadStringSnake()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(data)
}
