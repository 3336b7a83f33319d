package services

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/custody-escrow/backend/internal/events"
	"github.com/custody-escrow/backend/internal/models"
	"go.uber.org/zap"
)

// Call carries what the execution substrate vouches for: who is calling and how
// much native value they attached.
type Call struct {
	Caller string
	Value  *big.Int
}

func (c Call) value() *big.Int {
	if c.Value == nil {
		return new(big.Int)
	}
	return c.Value
}

type CreateEscrowInput struct {
	Asset           models.Asset
	Recipient       string
	Depositor       *string
	Mediator        *string
	Amount          *big.Int
	DepositDeadline time.Time
	MediationFeeBPS int
	ExtraData       []byte
}

// EscrowService is the escrow state machine. Each operation runs as one unit on
// the TxRunner; status is persisted before any funds leave custody.
type EscrowService struct {
	tx        TxRunner
	ledger    EscrowLedger
	balances  BalanceStore
	config    ConfigStore
	audit     AuditStore
	assets    AssetAdapter
	fees      *FeeEngine
	publisher events.Publisher
	now       func() time.Time
	log       *zap.Logger
}

func NewEscrowService(
	tx TxRunner,
	ledger EscrowLedger,
	balances BalanceStore,
	config ConfigStore,
	audit AuditStore,
	assets AssetAdapter,
	publisher events.Publisher,
	log *zap.Logger,
) *EscrowService {
	return &EscrowService{
		tx:        tx,
		ledger:    ledger,
		balances:  balances,
		config:    config,
		audit:     audit,
		assets:    assets,
		fees:      NewFeeEngine(assets),
		publisher: publisher,
		now:       time.Now,
		log:       log,
	}
}

// SetNowFunc overrides the clock used for deadlines.
func (s *EscrowService) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

// operation buffers events until the outermost unit commits.
type operation struct {
	events []events.Event
}

type operationKey struct{}

func (o *operation) emit(eventType string, payload map[string]any) {
	o.events = append(o.events, events.Event{Type: eventType, Payload: payload})
}

// run executes fn as one unit after checking the attached value.
func (s *EscrowService) run(ctx context.Context, call Call, fn func(ctx context.Context, op *operation) error) error {
	return s.unit(ctx, func(ctx context.Context, op *operation) error {
		if err := s.checkValue(ctx, call); err != nil {
			return err
		}
		return fn(ctx, op)
	})
}

// runOn is run for operations addressed by escrow id. The record is loaded
// first, so an unknown id is ErrNotFound whatever value is attached.
func (s *EscrowService) runOn(ctx context.Context, call Call, id uint64, fn func(ctx context.Context, op *operation, e *models.Escrow) error) error {
	return s.unit(ctx, func(ctx context.Context, op *operation) error {
		e, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := s.checkValue(ctx, call); err != nil {
			return err
		}
		return fn(ctx, op, e)
	})
}

func (s *EscrowService) unit(ctx context.Context, fn func(ctx context.Context, op *operation) error) error {
	if outer, ok := ctx.Value(operationKey{}).(*operation); ok {
		// Reentrant call: share the outer unit and its event buffer.
		return s.tx.RunInTx(ctx, func(ctx context.Context) error {
			return fn(ctx, outer)
		})
	}

	op := &operation{}
	ctx = context.WithValue(ctx, operationKey{}, op)
	if err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return fn(ctx, op)
	}); err != nil {
		return err
	}

	for _, ev := range op.events {
		if err := s.publisher.Publish(ctx, events.StreamEscrow, ev); err != nil {
			s.log.Warn("escrow event not published", zap.String("type", ev.Type), zap.Error(err))
		}
	}
	return nil
}

// checkValue makes sure the attached native value is actually backed by the
// caller's balance before anything else happens.
func (s *EscrowService) checkValue(ctx context.Context, call Call) error {
	v := call.value()
	if v.Sign() < 0 {
		return fmt.Errorf("%w: negative attached value", ErrInvalidAmount)
	}
	if v.Sign() == 0 {
		return nil
	}
	bal, err := s.balances.Balance(ctx, call.Caller, models.AssetNative)
	if err != nil {
		return err
	}
	if bal.Cmp(v) < 0 {
		return fmt.Errorf("%w: attached %s, balance %s", ErrInsufficientFunds, v, bal)
	}
	return nil
}

// load rejects out-of-range ids before reading any record.
func (s *EscrowService) load(ctx context.Context, id uint64) (*models.Escrow, error) {
	count, err := s.ledger.Count(ctx)
	if err != nil {
		return nil, err
	}
	if id == 0 || id > count {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return s.ledger.Get(ctx, id)
}

// transition validates and persists a status change with audit logging.
func (s *EscrowService) transition(ctx context.Context, e *models.Escrow, to models.EscrowStatus, actor string, meta map[string]any) error {
	from := e.Status
	if !models.IsValidTransition(from, to) {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidState, from, to)
	}
	e.Status = to
	if err := s.ledger.Update(ctx, e); err != nil {
		return err
	}

	if meta == nil {
		meta = map[string]any{}
	}
	meta["old_status"] = string(from)
	meta["new_status"] = string(to)
	return s.audit.Log(ctx, models.AuditLog{
		ActorAddress: &actor,
		ActorType:    "user",
		Action:       fmt.Sprintf("escrow_status_%s_to_%s", statusLabel(from), to),
		EntityType:   "escrow",
		EntityID:     strconv.FormatUint(e.ID, 10),
		Meta:         meta,
	})
}

func (s *EscrowService) Create(ctx context.Context, call Call, in CreateEscrowInput) (*models.Escrow, error) {
	var created *models.Escrow
	err := s.run(ctx, call, func(ctx context.Context, op *operation) error {
		if in.Amount == nil || in.Amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		supported, err := s.config.IsAssetSupported(ctx, in.Asset)
		if err != nil {
			return err
		}
		if !supported {
			return fmt.Errorf("%w: %s", ErrUnsupportedAsset, in.Asset)
		}
		if in.Recipient == "" {
			return ErrInvalidRecipient
		}

		settings, err := s.config.Settings(ctx)
		if err != nil {
			return fmt.Errorf("load platform settings: %w", err)
		}

		mediator, mediationFee := settings.DefaultMediator, settings.DefaultMediationFeeBPS
		if in.Mediator != nil && *in.Mediator != "" {
			mediator, mediationFee = *in.Mediator, in.MediationFeeBPS
		}
		if err := ValidateBPS(mediationFee); err != nil {
			return err
		}

		id, err := s.ledger.Allocate(ctx)
		if err != nil {
			return fmt.Errorf("allocate escrow: %w", err)
		}

		leftover, err := s.fees.TakeFee(ctx, in.Asset, call.Caller, in.Amount, call.value(), settings)
		if err != nil {
			return err
		}

		now := s.now()
		e := &models.Escrow{
			ID:                  id,
			Creator:             call.Caller,
			Recipient:           in.Recipient,
			Mediator:            mediator,
			Asset:               in.Asset,
			Amount:              new(big.Int).Set(in.Amount),
			LastDepositDeadline: in.DepositDeadline,
			CreatedAt:           now,
			MediationFeeBPS:     mediationFee,
			ExtraData:           in.ExtraData,
		}

		meta := map[string]any{"asset": string(in.Asset), "amount": in.Amount.String()}
		if in.Depositor != nil && *in.Depositor == call.Caller {
			caller := call.Caller
			e.Depositor = &caller
			if err := s.transition(ctx, e, models.EscrowStatusFunded, call.Caller, meta); err != nil {
				return err
			}
			if err := s.assets.Pull(ctx, in.Asset, call.Caller, in.Amount, leftover); err != nil {
				return err
			}
		} else {
			if !in.DepositDeadline.After(now) {
				return fmt.Errorf("%w: %s", ErrInvalidDeadline, in.DepositDeadline.Format(time.RFC3339))
			}
			if in.Depositor != nil && *in.Depositor != "" {
				dep := *in.Depositor
				e.Depositor = &dep
			}
			if err := s.transition(ctx, e, models.EscrowStatusCreated, call.Caller, meta); err != nil {
				return err
			}
		}

		op.emit(events.EventEscrowCreated, map[string]any{
			"escrow_id": e.ID,
			"creator":   e.Creator,
		})
		op.emit(events.EventEscrowAdded, map[string]any{
			"escrow_id": e.ID,
			"depositor": deref(e.Depositor),
			"recipient": e.Recipient,
			"mediator":  e.Mediator,
			"asset":     string(e.Asset),
		})
		if e.Status == models.EscrowStatusFunded {
			op.emit(events.EventEscrowFunded, map[string]any{"escrow_id": e.ID})
		}
		created = e.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("escrow created",
		zap.Uint64("escrow_id", created.ID),
		zap.String("creator", created.Creator),
		zap.String("asset", string(created.Asset)),
		zap.String("status", string(created.Status)),
	)
	return created, nil
}

// Deposit funds a CREATED escrow. Past the deadline it cancels the escrow instead
// and returns successfully without moving funds; check the returned status.
func (s *EscrowService) Deposit(ctx context.Context, call Call, id uint64) (*models.Escrow, error) {
	var out *models.Escrow
	err := s.runOn(ctx, call, id, func(ctx context.Context, op *operation, e *models.Escrow) error {
		if e.Depositor != nil && *e.Depositor != call.Caller {
			return fmt.Errorf("%w: only the depositor can fund escrow %d", ErrUnauthorized, id)
		}
		if e.Status != models.EscrowStatusCreated {
			return fmt.Errorf("%w: escrow %d is %s", ErrInvalidState, id, e.Status)
		}

		if s.now().After(e.LastDepositDeadline) {
			if err := s.transition(ctx, e, models.EscrowStatusCancelled, call.Caller, map[string]any{"reason": "deposit_deadline_passed"}); err != nil {
				return err
			}
			op.emit(events.EventEscrowCancelled, map[string]any{"escrow_id": e.ID})
			out = e.Clone()
			return nil
		}

		caller := call.Caller
		e.Depositor = &caller
		if err := s.transition(ctx, e, models.EscrowStatusFunded, call.Caller, nil); err != nil {
			return err
		}
		if err := s.assets.Pull(ctx, e.Asset, call.Caller, e.Amount, call.value()); err != nil {
			return err
		}
		op.emit(events.EventEscrowFunded, map[string]any{"escrow_id": e.ID})
		out = e.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Status == models.EscrowStatusCancelled {
		s.log.Info("late deposit cancelled escrow", zap.Uint64("escrow_id", id), zap.String("caller", call.Caller))
	}
	return out, nil
}

func (s *EscrowService) RaiseDispute(ctx context.Context, call Call, id uint64) (*models.Escrow, error) {
	var out *models.Escrow
	err := s.runOn(ctx, call, id, func(ctx context.Context, op *operation, e *models.Escrow) error {
		if !e.IsCounterparty(call.Caller) {
			return fmt.Errorf("%w: only depositor or recipient can dispute", ErrUnauthorized)
		}
		if e.Status != models.EscrowStatusFunded {
			return fmt.Errorf("%w: escrow %d is %s", ErrInvalidState, id, e.Status)
		}
		if err := s.transition(ctx, e, models.EscrowStatusDisputed, call.Caller, nil); err != nil {
			return err
		}
		op.emit(events.EventEscrowDisputed, map[string]any{"escrow_id": e.ID, "party": call.Caller})
		out = e.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Release pays the full amount to the other counterparty: the depositor releases
// to the recipient, or the recipient releases back to the depositor.
func (s *EscrowService) Release(ctx context.Context, call Call, id uint64, beneficiary string) (*models.Escrow, error) {
	var out *models.Escrow
	err := s.runOn(ctx, call, id, func(ctx context.Context, op *operation, e *models.Escrow) error {
		if e.Status != models.EscrowStatusFunded {
			return fmt.Errorf("%w: escrow %d is %s", ErrInvalidState, id, e.Status)
		}
		toRecipient := e.IsDepositor(call.Caller) && beneficiary == e.Recipient
		toDepositor := call.Caller == e.Recipient && e.IsDepositor(beneficiary)
		if !toRecipient && !toDepositor {
			return fmt.Errorf("%w: %s cannot release to %s", ErrUnauthorized, call.Caller, beneficiary)
		}

		e.Beneficiary = &beneficiary
		if err := s.transition(ctx, e, models.EscrowStatusReleased, call.Caller, map[string]any{"beneficiary": beneficiary}); err != nil {
			return err
		}
		if err := s.assets.Push(ctx, e.Asset, e.Amount, beneficiary); err != nil {
			return err
		}
		op.emit(events.EventEscrowReleased, map[string]any{
			"escrow_id": e.ID,
			"receiver":  beneficiary,
			"amount":    e.Amount.String(),
		})
		out = e.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Mediate settles a disputed escrow: the mediator's fee first, the rest to the
// chosen counterparty.
func (s *EscrowService) Mediate(ctx context.Context, call Call, id uint64, beneficiary, reason string) (*models.Escrow, error) {
	var out *models.Escrow
	err := s.runOn(ctx, call, id, func(ctx context.Context, op *operation, e *models.Escrow) error {
		if e.Status != models.EscrowStatusDisputed {
			return fmt.Errorf("%w: escrow %d is %s", ErrInvalidState, id, e.Status)
		}
		if call.Caller != e.Mediator {
			return fmt.Errorf("%w: only the mediator can mediate", ErrUnauthorized)
		}
		if !e.IsCounterparty(beneficiary) {
			return fmt.Errorf("%w: %s", ErrInvalidBeneficiary, beneficiary)
		}

		fee, remainder := MediationSplit(e.Amount, e.MediationFeeBPS)
		e.Reason = &reason
		e.Beneficiary = &beneficiary
		if err := s.transition(ctx, e, models.EscrowStatusMediated, call.Caller, map[string]any{
			"beneficiary":    beneficiary,
			"mediation_fee":  fee.String(),
			"remainder":      remainder.String(),
			"mediation_note": reason,
		}); err != nil {
			return err
		}
		if err := s.assets.Push(ctx, e.Asset, fee, e.Mediator); err != nil {
			return err
		}
		if err := s.assets.Push(ctx, e.Asset, remainder, beneficiary); err != nil {
			return err
		}
		op.emit(events.EventEscrowReleased, map[string]any{
			"escrow_id":     e.ID,
			"receiver":      beneficiary,
			"amount":        remainder.String(),
			"mediator":      e.Mediator,
			"mediation_fee": fee.String(),
		})
		out = e.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("escrow mediated",
		zap.Uint64("escrow_id", id),
		zap.String("beneficiary", beneficiary),
		zap.String("mediator", call.Caller),
	)
	return out, nil
}

func (s *EscrowService) GetEscrow(ctx context.Context, id uint64) (*models.Escrow, error) {
	var out *models.Escrow
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		e, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		out = e.Clone()
		return nil
	})
	return out, err
}

func (s *EscrowService) TotalEscrows(ctx context.Context) (uint64, error) {
	return s.ledger.Count(ctx)
}

func (s *EscrowService) IsAssetSupported(ctx context.Context, asset models.Asset) (bool, error) {
	return s.config.IsAssetSupported(ctx, asset)
}

// History returns the audit trail of an escrow, newest first.
func (s *EscrowService) History(ctx context.Context, id uint64, limit, offset int) ([]models.AuditLog, error) {
	if _, err := s.GetEscrow(ctx, id); err != nil {
		return nil, err
	}
	return s.audit.GetByEntity(ctx, "escrow", strconv.FormatUint(id, 10), limit, offset)
}

// ListForParty returns the escrows addr creates, funds, receives or mediates.
func (s *EscrowService) ListForParty(ctx context.Context, addr string, limit, offset int) ([]*models.Escrow, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []*models.Escrow
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		ids, err := s.ledger.ListByParty(ctx, addr, limit, offset)
		if err != nil {
			return err
		}
		out = make([]*models.Escrow, 0, len(ids))
		for _, id := range ids {
			e, err := s.load(ctx, id)
			if err != nil {
				return err
			}
			out = append(out, e.Clone())
		}
		return nil
	})
	return out, err
}

func statusLabel(s models.EscrowStatus) string {
	if s == models.EscrowStatusUnset {
		return "new"
	}
	return string(s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
