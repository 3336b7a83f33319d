package services

import (
	"context"
	"fmt"

	"github.com/custody-escrow/backend/internal/auth"
	"github.com/custody-escrow/backend/internal/config"
	"github.com/custody-escrow/backend/internal/models"
	"github.com/custody-escrow/backend/internal/ton"
	"go.uber.org/zap"
)

// WalletService signs callers in with TON Connect. The proven wallet address
// becomes the caller identity of every escrow operation.
type WalletService struct {
	proofs ProofStore
	audit  AuditStore
	cfg    *config.Config
	log    *zap.Logger
}

func NewWalletService(proofs ProofStore, audit AuditStore, cfg *config.Config, log *zap.Logger) *WalletService {
	return &WalletService{
		proofs: proofs,
		audit:  audit,
		cfg:    cfg,
		log:    log,
	}
}

// GeneratePayload создаёт nonce для TON Proof.
// Клиент передаёт его в tonconnect при подключении кошелька.
func (s *WalletService) GeneratePayload(ctx context.Context) (string, error) {
	p, err := s.proofs.CreateProofPayload(ctx, s.cfg.ProofTTL)
	if err != nil {
		return "", fmt.Errorf("failed to create proof payload: %w", err)
	}
	return p.Payload, nil
}

type SignInResult struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

// SignIn проверяет TON Proof и выдаёт JWT на адрес кошелька.
func (s *WalletService) SignIn(ctx context.Context, req ton.ProofData) (*SignInResult, error) {
	// 1. Consume payload (nonce), защита от replay
	if _, err := s.proofs.ConsumeProofPayload(ctx, req.Proof.Payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}

	addr, err := ton.ParseAccount(req.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}

	if req.Network != "" && req.Network != ton.NetworkID(s.cfg.TONNetwork) {
		return nil, fmt.Errorf("%w: network mismatch: expected %s, got %s", ErrInvalidProof, ton.NetworkID(s.cfg.TONNetwork), req.Network)
	}

	if err := ton.VerifyProof(req.PublicKey, addr, req.Proof, s.cfg.TONProofAllowedDomains); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}

	account := addr.StringRaw()
	token, err := auth.GenerateJWT(s.cfg.JWTSecret, account, s.cfg.JWTExpiration)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorAddress: &account,
		ActorType:    "user",
		Action:       "wallet_signed_in",
		EntityType:   "account",
		EntityID:     account,
		Meta:         map[string]any{"domain": req.Proof.Domain.Value},
	})

	s.log.Info("wallet signed in", zap.String("address", account))
	return &SignInResult{Token: token, Address: account}, nil
}
