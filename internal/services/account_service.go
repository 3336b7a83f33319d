package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/custody-escrow/backend/internal/events"
	"github.com/custody-escrow/backend/internal/models"
	"go.uber.org/zap"
)

// AccountService manages custody balances outside of escrows: deposits credited
// from chain, token allowances for escrow pulls, and native withdrawals.
type AccountService struct {
	tx          TxRunner
	balances    BalanceStore
	withdrawals WithdrawalStore
	audit       AuditStore
	publisher   events.Publisher
	log         *zap.Logger
}

func NewAccountService(
	tx TxRunner,
	balances BalanceStore,
	withdrawals WithdrawalStore,
	audit AuditStore,
	publisher events.Publisher,
	log *zap.Logger,
) *AccountService {
	return &AccountService{
		tx:          tx,
		balances:    balances,
		withdrawals: withdrawals,
		audit:       audit,
		publisher:   publisher,
		log:         log,
	}
}

func (s *AccountService) Balances(ctx context.Context, account string) ([]models.Balance, error) {
	return s.balances.Balances(ctx, account)
}

func (s *AccountService) Allowance(ctx context.Context, owner string, asset models.Asset) (*big.Int, error) {
	return s.balances.Allowance(ctx, owner, asset)
}

// Approve sets how much of a token the engine may pull from owner. Native value
// is attached per call and never approved.
func (s *AccountService) Approve(ctx context.Context, owner string, asset models.Asset, amount *big.Int) error {
	if asset.IsNative() {
		return fmt.Errorf("%w: native value is attached, not approved", ErrUnsupportedAsset)
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.balances.SetAllowance(ctx, owner, asset, amount); err != nil {
			return err
		}
		return s.audit.Log(ctx, models.AuditLog{
			ActorAddress: &owner,
			ActorType:    "user",
			Action:       "allowance_set",
			EntityType:   "account",
			EntityID:     owner,
			Meta:         map[string]any{"asset": string(asset), "amount": amount.String()},
		})
	})
}

// Credit adds funds that arrived from outside the ledger. ref identifies the
// source (chain transaction, admin note) in the audit trail.
func (s *AccountService) Credit(ctx context.Context, actor, account string, asset models.Asset, amount *big.Int, ref string) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	actorType := "admin"
	if actor == "" {
		actorType = "system"
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.balances.Credit(ctx, account, asset, amount); err != nil {
			return err
		}
		entry := models.AuditLog{
			ActorType:  actorType,
			Action:     "balance_credited",
			EntityType: "account",
			EntityID:   account,
			Meta:       map[string]any{"asset": string(asset), "amount": amount.String(), "ref": ref},
		}
		if actor != "" {
			entry.ActorAddress = &actor
		}
		return s.audit.Log(ctx, entry)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.EventBalanceCredited, map[string]any{
		"account": account,
		"asset":   string(asset),
		"amount":  amount.String(),
		"ref":     ref,
	})
	return nil
}

// RequestWithdrawal debits native funds and queues them for the payout worker.
func (s *AccountService) RequestWithdrawal(ctx context.Context, account, destination string, amount *big.Int) (*models.Withdrawal, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if destination == "" {
		destination = account
	}

	w := &models.Withdrawal{
		Account:     account,
		Destination: destination,
		Amount:      new(big.Int).Set(amount),
		Status:      models.WithdrawalStatusPending,
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.balances.Debit(ctx, account, models.AssetNative, amount); err != nil {
			if errors.Is(err, ErrInsufficientBalance) {
				return fmt.Errorf("%w: withdraw %s: %w", ErrInsufficientFunds, amount, err)
			}
			return err
		}
		if err := s.withdrawals.Create(ctx, w); err != nil {
			return fmt.Errorf("queue withdrawal: %w", err)
		}
		return s.audit.Log(ctx, models.AuditLog{
			ActorAddress: &account,
			ActorType:    "user",
			Action:       "withdrawal_requested",
			EntityType:   "withdrawal",
			EntityID:     w.ID.String(),
			Meta:         map[string]any{"destination": destination, "amount": amount.String()},
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventWithdrawalRequested, map[string]any{
		"withdrawal_id": w.ID.String(),
		"account":       account,
		"amount":        amount.String(),
	})
	s.log.Info("withdrawal queued",
		zap.String("withdrawal_id", w.ID.String()),
		zap.String("account", account),
		zap.String("amount", amount.String()),
	)
	return w, nil
}

func (s *AccountService) ListWithdrawals(ctx context.Context, account string, limit int) ([]models.Withdrawal, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.withdrawals.ListByAccount(ctx, account, limit)
}

func (s *AccountService) PendingWithdrawals(ctx context.Context, limit int) ([]models.Withdrawal, error) {
	return s.withdrawals.ListPending(ctx, limit)
}

// BeginWithdrawal moves a pending withdrawal to sending. Call it before handing
// the payout to the wallet: a sending withdrawal is never listed as pending
// again, whatever happens to its bookkeeping afterwards.
func (s *AccountService) BeginWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	if err := s.withdrawals.MarkSending(ctx, w); err != nil {
		return err
	}
	w.Status = models.WithdrawalStatusSending
	return nil
}

func (s *AccountService) CompleteWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	if err := s.withdrawals.MarkSent(ctx, w); err != nil {
		return err
	}
	s.publish(ctx, events.EventWithdrawalSent, map[string]any{
		"withdrawal_id": w.ID.String(),
		"account":       w.Account,
		"amount":        w.Amount.String(),
	})
	return nil
}

// FailWithdrawal marks a withdrawal failed and gives the funds back to the account.
func (s *AccountService) FailWithdrawal(ctx context.Context, w *models.Withdrawal, reason string) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.withdrawals.MarkFailed(ctx, w, reason); err != nil {
			return err
		}
		if err := s.balances.Credit(ctx, w.Account, models.AssetNative, w.Amount); err != nil {
			return err
		}
		return s.audit.Log(ctx, models.AuditLog{
			ActorType:  "system",
			Action:     "withdrawal_failed",
			EntityType: "withdrawal",
			EntityID:   w.ID.String(),
			Meta:       map[string]any{"reason": reason},
		})
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events.EventWithdrawalFailed, map[string]any{
		"withdrawal_id": w.ID.String(),
		"account":       w.Account,
		"reason":        reason,
	})
	return nil
}

func (s *AccountService) publish(ctx context.Context, eventType string, payload map[string]any) {
	if err := s.publisher.Publish(ctx, events.StreamAccount, events.Event{Type: eventType, Payload: payload}); err != nil {
		s.log.Warn("account event not published", zap.String("type", eventType), zap.Error(err))
	}
}
