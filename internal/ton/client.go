package ton

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"go.uber.org/zap"
)

// ConnectOptions selects the lite servers to talk to.
type ConnectOptions struct {
	Network        string
	LiteServerHost string
	LiteServerPort int
	LiteServerKey  string
}

// Connect establishes a connection to the TON network.
// If a lite server host and key are set, connects to that server.
// Otherwise, auto-discovers lite servers from the global config of the network.
func Connect(ctx context.Context, opts ConnectOptions, log *zap.Logger) (ton.APIClientWrapped, error) {
	client := liteclient.NewConnectionPool()

	if opts.LiteServerHost != "" && opts.LiteServerKey != "" {
		addr := fmt.Sprintf("%s:%d", opts.LiteServerHost, opts.LiteServerPort)
		log.Info("connecting to lite server", zap.String("addr", addr))
		if err := client.AddConnection(ctx, addr, opts.LiteServerKey); err != nil {
			return nil, fmt.Errorf("connect to lite server %s: %w", addr, err)
		}
	} else {
		configURL := "https://ton.org/testnet-global.config.json"
		if strings.ToLower(opts.Network) == "mainnet" {
			configURL = "https://ton.org/global.config.json"
		}
		log.Info("connecting via global config", zap.String("url", configURL), zap.String("network", opts.Network))
		if err := client.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
			return nil, fmt.Errorf("connect via config %s: %w", configURL, err)
		}
	}

	proofPolicy := ton.ProofCheckPolicyFast
	if strings.ToLower(opts.Network) == "mainnet" {
		proofPolicy = ton.ProofCheckPolicySecure
	}

	return ton.NewAPIClient(client, proofPolicy).WithRetry(), nil
}

// Payer sends native payouts from the custody hot wallet.
type Payer struct {
	w   *wallet.Wallet
	log *zap.Logger
}

// NewPayer opens the hot wallet from its mnemonic. The wallet address must match
// the configured custody account, otherwise payouts would drain a different wallet.
func NewPayer(api ton.APIClientWrapped, seed string, custodyAccount string, log *zap.Logger) (*Payer, error) {
	w, err := wallet.FromSeed(api, strings.Fields(seed), wallet.V4R2)
	if err != nil {
		return nil, fmt.Errorf("open hot wallet: %w", err)
	}

	if custodyAccount != "" {
		want, err := CanonicalAccount(custodyAccount)
		if err != nil {
			return nil, err
		}
		if got := w.WalletAddress().StringRaw(); got != want {
			return nil, fmt.Errorf("seed opens wallet %s, custody account is %s", got, want)
		}
	}
	return &Payer{w: w, log: log}, nil
}

func (p *Payer) Address() string {
	return p.w.WalletAddress().StringRaw()
}

// Send transfers amountNano to the destination with a text comment and waits
// for the message to be accepted.
func (p *Payer) Send(ctx context.Context, to string, amountNano *big.Int, comment string) error {
	dst, err := ParseAccount(to)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	if err := p.w.Transfer(ctx, dst, tlb.FromNanoTON(amountNano), comment); err != nil {
		return fmt.Errorf("transfer %s to %s: %w", tlb.FromNanoTON(amountNano).String(), dst.String(), err)
	}
	p.log.Info("payout sent",
		zap.String("to", dst.String()),
		zap.String("amount", tlb.FromNanoTON(amountNano).String()),
	)
	return nil
}
