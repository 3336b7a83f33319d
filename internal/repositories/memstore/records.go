package memstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/custody-escrow/backend/internal/models"
	"github.com/custody-escrow/backend/internal/services"
	"github.com/google/uuid"
)

type AuditStore struct {
	s *Store
}

func (a *AuditStore) Log(ctx context.Context, entry models.AuditLog) error {
	return a.s.view(ctx, func(st *state) error {
		entry.ID = uuid.New()
		entry.CreatedAt = time.Now()
		st.audit = append(st.audit, entry)
		return nil
	})
}

// GetByEntity returns newest entries first, like the SQL implementation.
func (a *AuditStore) GetByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.AuditLog
	err := a.s.view(ctx, func(st *state) error {
		skipped := 0
		for i := len(st.audit) - 1; i >= 0 && len(out) < limit; i-- {
			l := st.audit[i]
			if l.EntityType != entityType || l.EntityID != entityID {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			out = append(out, l)
		}
		return nil
	})
	return out, err
}

type WithdrawalStore struct {
	s *Store
}

func (w *WithdrawalStore) Create(ctx context.Context, wd *models.Withdrawal) error {
	return w.s.view(ctx, func(st *state) error {
		wd.ID = uuid.New()
		wd.CreatedAt = time.Now()
		cp := *wd
		cp.Amount = new(big.Int).Set(wd.Amount)
		st.withdrawals = append(st.withdrawals, &cp)
		return nil
	})
}

func (w *WithdrawalStore) ListPending(ctx context.Context, limit int) ([]models.Withdrawal, error) {
	return w.list(ctx, limit, false, func(wd *models.Withdrawal) bool {
		return wd.Status == models.WithdrawalStatusPending
	})
}

func (w *WithdrawalStore) ListByAccount(ctx context.Context, account string, limit int) ([]models.Withdrawal, error) {
	return w.list(ctx, limit, true, func(wd *models.Withdrawal) bool {
		return wd.Account == account
	})
}

func (w *WithdrawalStore) list(ctx context.Context, limit int, newestFirst bool, match func(*models.Withdrawal) bool) ([]models.Withdrawal, error) {
	var out []models.Withdrawal
	err := w.s.view(ctx, func(st *state) error {
		n := len(st.withdrawals)
		for i := 0; i < n; i++ {
			if limit > 0 && len(out) >= limit {
				break
			}
			wd := st.withdrawals[i]
			if newestFirst {
				wd = st.withdrawals[n-1-i]
			}
			if match(wd) {
				cp := *wd
				cp.Amount = new(big.Int).Set(wd.Amount)
				out = append(out, cp)
			}
		}
		return nil
	})
	return out, err
}

func (w *WithdrawalStore) MarkSending(ctx context.Context, wd *models.Withdrawal) error {
	return w.mark(ctx, wd.ID, models.WithdrawalStatusPending, models.WithdrawalStatusSending, nil)
}

func (w *WithdrawalStore) MarkSent(ctx context.Context, wd *models.Withdrawal) error {
	return w.mark(ctx, wd.ID, models.WithdrawalStatusSending, models.WithdrawalStatusSent, nil)
}

func (w *WithdrawalStore) MarkFailed(ctx context.Context, wd *models.Withdrawal, reason string) error {
	return w.mark(ctx, wd.ID, models.WithdrawalStatusSending, models.WithdrawalStatusFailed, &reason)
}

func (w *WithdrawalStore) mark(ctx context.Context, id uuid.UUID, from, to string, reason *string) error {
	return w.s.view(ctx, func(st *state) error {
		for _, wd := range st.withdrawals {
			if wd.ID == id && wd.Status == from {
				wd.Status = to
				wd.Error = reason
				if to != models.WithdrawalStatusSending {
					now := time.Now()
					wd.ProcessedAt = &now
				}
				return nil
			}
		}
		return fmt.Errorf("%w: withdrawal %s is not %s", services.ErrInvalidState, id, from)
	})
}

type ProofStore struct {
	s *Store
}

func (p *ProofStore) CreateProofPayload(ctx context.Context, ttl time.Duration) (*models.TonProofPayload, error) {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	now := time.Now()
	payload := &models.TonProofPayload{
		ID:        uuid.New(),
		Payload:   hex.EncodeToString(b),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	err := p.s.view(ctx, func(st *state) error {
		cp := *payload
		st.proofs[payload.Payload] = &cp
		return nil
	})
	return payload, err
}

func (p *ProofStore) ConsumeProofPayload(ctx context.Context, payload string) (*models.TonProofPayload, error) {
	var out models.TonProofPayload
	err := p.s.view(ctx, func(st *state) error {
		pp, ok := st.proofs[payload]
		if !ok || pp.Used || time.Now().After(pp.ExpiresAt) {
			return services.ErrProofPayloadUnavailable
		}
		pp.Used = true
		out = *pp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
