package memstore

import (
	"context"
	"fmt"

	"github.com/custody-escrow/backend/internal/models"
	"github.com/custody-escrow/backend/internal/services"
)

type EscrowLedger struct {
	s *Store
}

func (l *EscrowLedger) Allocate(ctx context.Context) (uint64, error) {
	var id uint64
	err := l.s.view(ctx, func(st *state) error {
		id = uint64(len(st.escrows)) + 1
		st.escrows = append(st.escrows, &models.Escrow{ID: id})
		return nil
	})
	return id, err
}

func (l *EscrowLedger) Get(ctx context.Context, id uint64) (*models.Escrow, error) {
	var out *models.Escrow
	err := l.s.view(ctx, func(st *state) error {
		if id == 0 || id > uint64(len(st.escrows)) {
			return fmt.Errorf("%w: id %d", services.ErrNotFound, id)
		}
		out = st.escrows[id-1].Clone()
		return nil
	})
	return out, err
}

func (l *EscrowLedger) Update(ctx context.Context, e *models.Escrow) error {
	return l.s.view(ctx, func(st *state) error {
		if e.ID == 0 || e.ID > uint64(len(st.escrows)) {
			return fmt.Errorf("%w: id %d", services.ErrNotFound, e.ID)
		}
		st.escrows[e.ID-1] = e.Clone()
		return nil
	})
}

func (l *EscrowLedger) Count(ctx context.Context) (uint64, error) {
	var n uint64
	err := l.s.view(ctx, func(st *state) error {
		n = uint64(len(st.escrows))
		return nil
	})
	return n, err
}

func (l *EscrowLedger) ListByParty(ctx context.Context, addr string, limit, offset int) ([]uint64, error) {
	if limit <= 0 {
		limit = 50
	}
	var ids []uint64
	err := l.s.view(ctx, func(st *state) error {
		skipped := 0
		for i := len(st.escrows) - 1; i >= 0 && len(ids) < limit; i-- {
			e := st.escrows[i]
			if e.Status == models.EscrowStatusUnset {
				continue
			}
			if e.Creator != addr && !e.IsCounterparty(addr) && e.Mediator != addr {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			ids = append(ids, e.ID)
		}
		return nil
	})
	return ids, err
}
