package services_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/custody-escrow/backend/internal/events"
	"github.com/custody-escrow/backend/internal/models"
	"github.com/custody-escrow/backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_FundedByDepositorTakesPlatformFee(t *testing.T) {
	f := newFixture(t, 200)
	f.fund(alice, models.AssetNative, 1000)

	e, err := f.svc.Create(f.ctx, call(alice, 102), services.CreateEscrowInput{
		Asset:           models.AssetNative,
		Recipient:       bob,
		Depositor:       ptr(alice),
		Amount:          big.NewInt(100),
		DepositDeadline: f.now.Add(time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), e.ID)
	assert.Equal(t, models.EscrowStatusFunded, e.Status)
	assert.Equal(t, alice, *e.Depositor)
	assert.Equal(t, int64(100), e.Amount.Int64())
	assert.Equal(t, int64(2), f.balance(feeWallet, models.AssetNative))
	assert.Equal(t, int64(100), f.balance(custody, models.AssetNative))
	assert.Equal(t, int64(898), f.balance(alice, models.AssetNative))
	assert.Equal(t, []string{events.EventEscrowCreated, events.EventEscrowAdded, events.EventEscrowFunded}, f.rec.Types())
}

func TestCreate_PastDeadlineRevertsEverything(t *testing.T) {
	f := newFixture(t, 200)
	f.fund(alice, models.AssetNative, 10)

	_, err := f.svc.Create(f.ctx, call(alice, 2), services.CreateEscrowInput{
		Asset:           models.AssetNative,
		Recipient:       bob,
		Amount:          big.NewInt(100),
		DepositDeadline: f.now.Add(-time.Minute),
	})
	require.ErrorIs(t, err, services.ErrInvalidDeadline)

	assert.Equal(t, uint64(0), f.count())
	assert.Equal(t, int64(10), f.balance(alice, models.AssetNative))
	assert.Equal(t, int64(0), f.balance(feeWallet, models.AssetNative))
	assert.Empty(t, f.rec.Events)

	// The id is not burnt by the failed attempt.
	e, err := f.svc.Create(f.ctx, call(alice, 2), services.CreateEscrowInput{
		Asset:           models.AssetNative,
		Recipient:       bob,
		Amount:          big.NewInt(100),
		DepositDeadline: f.now.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.ID)
	assert.Equal(t, models.EscrowStatusCreated, e.Status)
	assert.Nil(t, e.Depositor)
}

func TestCreate_DeadlineEqualToNowIsRejected(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.svc.Create(f.ctx, call(carol, 0), services.CreateEscrowInput{
		Asset:           models.AssetNative,
		Recipient:       bob,
		Amount:          big.NewInt(100),
		DepositDeadline: f.now,
	})
	assert.ErrorIs(t, err, services.ErrInvalidDeadline)
}

func TestDeposit_AfterDeadlineCancelsWithoutMovingFunds(t *testing.T) {
	f := newFixture(t, 0)
	f.fund(alice, models.AssetNative, 500)

	e, err := f.svc.Create(f.ctx, call(carol, 0), services.CreateEscrowInput{
		Asset:           models.AssetNative,
		Recipient:       bob,
		Amount:          big.NewInt(100),
		DepositDeadline: f.now.Add(time.Hour),
	})
	require.NoError(t, err)
	f.rec.Reset()

	f.now = f.now.Add(2 * time.Hour)
	got, err := f.svc.Deposit(f.ctx, call(alice, 100), e.ID)
	require.NoError(t, err)

	assert.Equal(t, models.EscrowStatusCancelled, got.Status)
	assert.Nil(t, got.Depositor)
	assert.Equal(t, int64(500), f.balance(alice, models.AssetNative))
	assert.Equal(t, int64(0), f.balance(custody, models.AssetNative))
	assert.Equal(t, []string{events.EventEscrowCancelled}, f.rec.Types())
}

func TestDeposit_AtDeadlineFundsAndBindsDepositor(t *testing.T) {
	f := newFixture(t, 0)
	f.fund(alice, models.AssetNative, 100)

	e, err := f.svc.Create(f.ctx, call(carol, 0), services.CreateEscrowInput{
		Asset:           models.AssetNative,
		Recipient:       bob,
		Amount:          big.NewInt(100),
		DepositDeadline: f.now.Add(time.Hour),
	})
	require.NoError(t, err)

	f.now = e.LastDepositDeadline
	got, err := f.svc.Deposit(f.ctx, call(alice, 100), e.ID)
	require.NoError(t, err)

	assert.Equal(t, models.EscrowStatusFunded, got.Status)
	assert.Equal(t, alice, *got.Depositor)
	assert.Equal(t, int64(100), f.balance(custody, models.AssetNative))
	assert.Equal(t, int64(0), f.balance(alice, models.AssetNative))
}

func TestDeposit_BoundDepositorOnly(t *testing.T) {
	f := newFixture(t, 0)
	f.fund(bob, models.AssetNative, 100)

	e, err := f.svc.Create(f.ctx, call(carol, 0), services.CreateEscrowInput{
		Asset:           models.AssetNative,
		Recipient:       bob,
		Depositor:       ptr(alice),
		Amount:          big.NewInt(100),
		DepositDeadline: f.now.Add(time.Hour),
	})
	require.NoError(t, err)
	before := f.get(e.ID)

	_, err = f.svc.Deposit(f.ctx, call(bob, 100), e.ID)
	require.ErrorIs(t, err, services.ErrUnauthorized)
	assert.Equal(t, before, f.get(e.ID))
	assert.Equal(t, int64(100), f.balance(bob, models.AssetNative))
}

func TestDeposit_WrongValueFails(t *testing.T) {
	f := newFixture(t, 0)
	f.fund(alice, models.AssetNative, 1000)

	e, err := f.svc.Create(f.ctx, call(carol, 0), services.CreateEscrowInput{
		Asset:           models.AssetNative,
		Recipient:       bob,
		Amount:          big.NewInt(100),
		DepositDeadline: f.now.Add(time.Hour),
	})
	require.NoError(t, err)
	before := f.get(e.ID)

	_, err = f.svc.Deposit(f.ctx, call(alice, 99), e.ID)
	require.ErrorIs(t, err, services.ErrAmountMismatch)

	_, err = f.svc.Deposit(f.ctx, call(alice, 2000), e.ID)
	require.ErrorIs(t, err, services.ErrInsufficientFunds)

	assert.Equal(t, before, f.get(e.ID))
	assert.Equal(t, int64(1000), f.balance(alice, models.AssetNative))
}

func TestMediate_SplitsFeeAndRemainder(t *testing.T) {
	f := newFixture(t, 0)
	e := f.fundedNative(1000, 1000)

	_, err := f.svc.RaiseDispute(f.ctx, call(alice, 0), e.ID)
	require.NoError(t, err)
	f.rec.Reset()

	got, err := f.svc.Mediate(f.ctx, call(mediator, 0), e.ID, bob, "goods delivered late")
	require.NoError(t, err)

	assert.Equal(t, models.EscrowStatusMediated, got.Status)
	assert.Equal(t, "goods delivered late", *got.Reason)
	assert.Equal(t, bob, *got.Beneficiary)
	assert.Equal(t, int64(100), f.balance(mediator, models.AssetNative))
	assert.Equal(t, int64(900), f.balance(bob, models.AssetNative))
	assert.Equal(t, int64(0), f.balance(custody, models.AssetNative))
	require.Equal(t, []string{events.EventEscrowReleased}, f.rec.Types())
	assert.Equal(t, "900", f.rec.Events[0].Payload["amount"])
	assert.Equal(t, "100", f.rec.Events[0].Payload["mediation_fee"])
}

func TestMediate_Guards(t *testing.T) {
	f := newFixture(t, 0)
	e := f.fundedNative(1000, 1000)

	_, err := f.svc.Mediate(f.ctx, call(mediator, 0), e.ID, bob, "early")
	require.ErrorIs(t, err, services.ErrInvalidState)

	_, err = f.svc.RaiseDispute(f.ctx, call(bob, 0), e.ID)
	require.NoError(t, err)
	before := f.get(e.ID)

	_, err = f.svc.Mediate(f.ctx, call(alice, 0), e.ID, alice, "self")
	require.ErrorIs(t, err, services.ErrUnauthorized)

	_, err = f.svc.Mediate(f.ctx, call(mediator, 0), e.ID, mallory, "outsider")
	require.ErrorIs(t, err, services.ErrInvalidBeneficiary)

	_, err = f.svc.Mediate(f.ctx, call(mediator, 0), e.ID, mediator, "to myself")
	require.ErrorIs(t, err, services.ErrInvalidBeneficiary)

	assert.Equal(t, before, f.get(e.ID))
	assert.Equal(t, int64(1000), f.balance(custody, models.AssetNative))
}

func TestRelease_ByStrangerIsUnauthorized(t *testing.T) {
	f := newFixture(t, 0)
	e := f.fundedNative(500, 0)
	before := f.get(e.ID)

	_, err := f.svc.Release(f.ctx, call(mallory, 0), e.ID, bob)
	require.ErrorIs(t, err, services.ErrUnauthorized)

	after := f.get(e.ID)
	assert.Equal(t, models.EscrowStatusFunded, after.Status)
	assert.Equal(t, before, after)
}

func TestRelease_Pairings(t *testing.T) {
	tests := []struct {
		name        string
		caller      string
		beneficiary string
		wantErr     error
	}{
		{"depositor to recipient", alice, bob, nil},
		{"recipient to depositor", bob, alice, nil},
		{"depositor to self", alice, alice, services.ErrUnauthorized},
		{"recipient to self", bob, bob, services.ErrUnauthorized},
		{"stranger to recipient", mallory, bob, services.ErrUnauthorized},
		{"depositor to stranger", alice, mallory, services.ErrUnauthorized},
		{"mediator to recipient", mediator, bob, services.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			e := f.fundedNative(300, 0)
			before := f.get(e.ID)

			got, err := f.svc.Release(f.ctx, call(tt.caller, 0), e.ID, tt.beneficiary)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, f.get(e.ID))
				assert.Equal(t, int64(300), f.balance(custody, models.AssetNative))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.EscrowStatusReleased, got.Status)
			assert.Equal(t, tt.beneficiary, *got.Beneficiary)
			assert.Equal(t, int64(300), f.balance(tt.beneficiary, models.AssetNative))
			assert.Equal(t, int64(0), f.balance(custody, models.AssetNative))
		})
	}
}

func TestRaiseDispute_Guards(t *testing.T) {
	f := newFixture(t, 0)

	created, err := f.svc.Create(f.ctx, call(carol, 0), services.CreateEscrowInput{
		Asset:           models.AssetNative,
		Recipient:       bob,
		Amount:          big.NewInt(10),
		DepositDeadline: f.now.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = f.svc.RaiseDispute(f.ctx, call(bob, 0), created.ID)
	require.ErrorIs(t, err, services.ErrInvalidState)

	funded := f.fundedNative(10, 0)
	_, err = f.svc.RaiseDispute(f.ctx, call(mallory, 0), funded.ID)
	require.ErrorIs(t, err, services.ErrUnauthorized)

	f.rec.Reset()
	got, err := f.svc.RaiseDispute(f.ctx, call(alice, 0), funded.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusDisputed, got.Status)
	require.Len(t, f.rec.Events, 1)
	assert.Equal(t, alice, f.rec.Events[0].Payload["party"])
}

func TestUnknownIDsAreNotFound(t *testing.T) {
	f := newFixture(t, 0)
	e := f.fundedNative(10, 0)

	for _, id := range []uint64{0, e.ID + 1, 1 << 40} {
		_, err := f.svc.GetEscrow(f.ctx, id)
		assert.ErrorIs(t, err, services.ErrNotFound)
		_, err = f.svc.Deposit(f.ctx, call(alice, 0), id)
		assert.ErrorIs(t, err, services.ErrNotFound)
		_, err = f.svc.RaiseDispute(f.ctx, call(alice, 0), id)
		assert.ErrorIs(t, err, services.ErrNotFound)
		_, err = f.svc.Release(f.ctx, call(alice, 0), id, bob)
		assert.ErrorIs(t, err, services.ErrNotFound)
		_, err = f.svc.Mediate(f.ctx, call(mediator, 0), id, bob, "")
		assert.ErrorIs(t, err, services.ErrNotFound)
		_, err = f.svc.History(f.ctx, id, 10, 0)
		assert.ErrorIs(t, err, services.ErrNotFound)
	}
}

func TestUnknownIDsAreNotFoundWhateverValueIsAttached(t *testing.T) {
	f := newFixture(t, 0)

	// Nobody holds any balance, so the attached value is never backed.
	for _, id := range []uint64{0, 1} {
		_, err := f.svc.Deposit(f.ctx, call(alice, 5), id)
		assert.ErrorIs(t, err, services.ErrNotFound)
		assert.NotErrorIs(t, err, services.ErrInsufficientFunds)
		_, err = f.svc.RaiseDispute(f.ctx, call(alice, 5), id)
		assert.ErrorIs(t, err, services.ErrNotFound)
		_, err = f.svc.Release(f.ctx, call(alice, 5), id, bob)
		assert.ErrorIs(t, err, services.ErrNotFound)
		_, err = f.svc.Mediate(f.ctx, call(mediator, 5), id, bob, "")
		assert.ErrorIs(t, err, services.ErrNotFound)
	}

	e := f.fundedNative(10, 0)
	_, err := f.svc.Release(f.ctx, call(alice, 1_000_000), e.ID, bob)
	assert.ErrorIs(t, err, services.ErrInsufficientFunds)
	assert.Equal(t, models.EscrowStatusFunded, f.get(e.ID).Status)
}

func TestTerminalEscrowsRejectEveryOperation(t *testing.T) {
	f := newFixture(t, 0)

	released := f.fundedNative(10, 0)
	_, err := f.svc.Release(f.ctx, call(alice, 0), released.ID, bob)
	require.NoError(t, err)

	mediated := f.fundedNative(10, 0)
	_, err = f.svc.RaiseDispute(f.ctx, call(alice, 0), mediated.ID)
	require.NoError(t, err)
	_, err = f.svc.Mediate(f.ctx, call(mediator, 0), mediated.ID, alice, "refund")
	require.NoError(t, err)

	cancelled, err := f.svc.Create(f.ctx, call(carol, 0), services.CreateEscrowInput{
		Asset:           models.AssetNative,
		Recipient:       bob,
		Amount:          big.NewInt(10),
		DepositDeadline: f.now.Add(time.Minute),
	})
	require.NoError(t, err)
	f.now = f.now.Add(time.Hour)
	_, err = f.svc.Deposit(f.ctx, call(alice, 0), cancelled.ID)
	require.NoError(t, err)

	f.fund(alice, models.AssetNative, 100)
	for _, id := range []uint64{released.ID, mediated.ID, cancelled.ID} {
		before := f.get(id)
		require.True(t, before.Status.IsTerminal())

		_, err = f.svc.Deposit(f.ctx, call(alice, 10), id)
		assert.ErrorIs(t, err, services.ErrInvalidState)
		_, err = f.svc.RaiseDispute(f.ctx, call(bob, 0), id)
		assert.ErrorIs(t, err, services.ErrInvalidState)
		_, err = f.svc.Release(f.ctx, call(bob, 0), id, alice)
		assert.ErrorIs(t, err, services.ErrInvalidState)
		_, err = f.svc.Mediate(f.ctx, call(mediator, 0), id, bob, "again")
		assert.ErrorIs(t, err, services.ErrInvalidState)

		assert.Equal(t, before, f.get(id))
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, 0)
	valid := services.CreateEscrowInput{
		Asset:           models.AssetNative,
		Recipient:       bob,
		Amount:          big.NewInt(10),
		DepositDeadline: f.now.Add(time.Hour),
	}

	tests := []struct {
		name    string
		mutate  func(in *services.CreateEscrowInput)
		wantErr error
	}{
		{"unsupported asset", func(in *services.CreateEscrowInput) { in.Asset = "EQunknown" }, services.ErrUnsupportedAsset},
		{"asset checked before recipient", func(in *services.CreateEscrowInput) {
			in.Asset = "EQunknown"
			in.Recipient = ""
		}, services.ErrUnsupportedAsset},
		{"empty recipient", func(in *services.CreateEscrowInput) { in.Recipient = "" }, services.ErrInvalidRecipient},
		{"zero amount", func(in *services.CreateEscrowInput) { in.Amount = big.NewInt(0) }, services.ErrInvalidAmount},
		{"negative amount", func(in *services.CreateEscrowInput) { in.Amount = big.NewInt(-5) }, services.ErrInvalidAmount},
		{"mediation fee above 100%", func(in *services.CreateEscrowInput) {
			in.Mediator = ptr(mediator)
			in.MediationFeeBPS = 10001
		}, services.ErrInvalidFee},
		{"negative mediation fee", func(in *services.CreateEscrowInput) {
			in.Mediator = ptr(mediator)
			in.MediationFeeBPS = -1
		}, services.ErrInvalidFee},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := f.svc.Create(f.ctx, call(carol, 0), in)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, uint64(0), f.count())
		})
	}
}

func TestCreate_MediatorResolution(t *testing.T) {
	f := newFixture(t, 0)
	base := services.CreateEscrowInput{
		Asset:           models.AssetNative,
		Recipient:       bob,
		Amount:          big.NewInt(10),
		DepositDeadline: f.now.Add(time.Hour),
		MediationFeeBPS: 2500,
	}

	e, err := f.svc.Create(f.ctx, call(carol, 0), base)
	require.NoError(t, err)
	assert.Equal(t, defMed, e.Mediator)
	assert.Equal(t, 500, e.MediationFeeBPS)

	in := base
	in.Mediator = ptr("")
	e, err = f.svc.Create(f.ctx, call(carol, 0), in)
	require.NoError(t, err)
	assert.Equal(t, defMed, e.Mediator)
	assert.Equal(t, 500, e.MediationFeeBPS)

	in.Mediator = ptr(mediator)
	e, err = f.svc.Create(f.ctx, call(carol, 0), in)
	require.NoError(t, err)
	assert.Equal(t, mediator, e.Mediator)
	assert.Equal(t, 2500, e.MediationFeeBPS)

	// A party may name itself mediator.
	in.Mediator = ptr(bob)
	e, err = f.svc.Create(f.ctx, call(carol, 0), in)
	require.NoError(t, err)
	assert.Equal(t, bob, e.Mediator)

	f.rec.Reset()
	in.Mediator = nil
	e, err = f.svc.Create(f.ctx, call(carol, 0), in)
	require.NoError(t, err)
	require.Len(t, f.rec.Events, 2)
	assert.Equal(t, carol, f.rec.Events[0].Payload["creator"])
	assert.Equal(t, defMed, f.rec.Events[1].Payload["mediator"])
}

func TestCreate_NativeValueChecks(t *testing.T) {
	f := newFixture(t, 200)
	f.fund(alice, models.AssetNative, 150)

	in := services.CreateEscrowInput{
		Asset:           models.AssetNative,
		Recipient:       bob,
		Depositor:       ptr(alice),
		Amount:          big.NewInt(100),
		DepositDeadline: f.now.Add(time.Hour),
	}

	_, err := f.svc.Create(f.ctx, call(alice, 101), in)
	assert.ErrorIs(t, err, services.ErrAmountMismatch)

	_, err = f.svc.Create(f.ctx, call(alice, 1), in)
	assert.ErrorIs(t, err, services.ErrInsufficientFunds)

	_, err = f.svc.Create(f.ctx, call(alice, 151), in)
	assert.ErrorIs(t, err, services.ErrInsufficientFunds)

	assert.Equal(t, uint64(0), f.count())
	assert.Equal(t, int64(150), f.balance(alice, models.AssetNative))
	assert.Equal(t, int64(0), f.balance(feeWallet, models.AssetNative))
	assert.Empty(t, f.rec.Events)
}

func TestCreate_UnfundedKeepsUnusedValueWithCaller(t *testing.T) {
	f := newFixture(t, 200)
	f.fund(carol, models.AssetNative, 50)

	_, err := f.svc.Create(f.ctx, call(carol, 50), services.CreateEscrowInput{
		Asset:           models.AssetNative,
		Recipient:       bob,
		Amount:          big.NewInt(100),
		DepositDeadline: f.now.Add(time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), f.balance(feeWallet, models.AssetNative))
	assert.Equal(t, int64(48), f.balance(carol, models.AssetNative))
	assert.Equal(t, int64(0), f.balance(custody, models.AssetNative))
}

func TestTokenEscrow_Lifecycle(t *testing.T) {
	f := newFixture(t, 100)
	f.fund(alice, jetton, 1000)
	require.NoError(t, f.accounts.Approve(f.ctx, alice, jetton, big.NewInt(505)))

	e, err := f.svc.Create(f.ctx, call(alice, 0), services.CreateEscrowInput{
		Asset:           jetton,
		Recipient:       bob,
		Depositor:       ptr(alice),
		Amount:          big.NewInt(500),
		DepositDeadline: f.now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusFunded, e.Status)
	assert.Equal(t, int64(5), f.balance(feeWallet, jetton))
	assert.Equal(t, int64(500), f.balance(custody, jetton))
	assert.Equal(t, int64(495), f.balance(alice, jetton))

	allowance, err := f.accounts.Allowance(f.ctx, alice, jetton)
	require.NoError(t, err)
	assert.Equal(t, int64(0), allowance.Int64())

	_, err = f.svc.Release(f.ctx, call(alice, 0), e.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(500), f.balance(bob, jetton))
	assert.Equal(t, int64(0), f.balance(custody, jetton))
}

func TestTokenEscrow_WithoutAllowanceFails(t *testing.T) {
	f := newFixture(t, 0)
	f.fund(alice, jetton, 1000)
	require.NoError(t, f.accounts.Approve(f.ctx, alice, jetton, big.NewInt(499)))

	_, err := f.svc.Create(f.ctx, call(alice, 0), services.CreateEscrowInput{
		Asset:           jetton,
		Recipient:       bob,
		Depositor:       ptr(alice),
		Amount:          big.NewInt(500),
		DepositDeadline: f.now.Add(time.Hour),
	})
	require.ErrorIs(t, err, services.ErrTransferFailed)
	assert.Equal(t, uint64(0), f.count())
	assert.Equal(t, int64(1000), f.balance(alice, jetton))
}

func TestMediate_FailedPushRollsBackTransition(t *testing.T) {
	f := newFixture(t, 0)
	e := f.fundedNative(1000, 1000)
	_, err := f.svc.RaiseDispute(f.ctx, call(alice, 0), e.ID)
	require.NoError(t, err)
	before := f.get(e.ID)
	f.rec.Reset()

	f.adapter.SetReceiveHook(func(_ context.Context, to string, _ models.Asset, _ *big.Int) error {
		if to == bob {
			return assert.AnError
		}
		return nil
	})

	_, err = f.svc.Mediate(f.ctx, call(mediator, 0), e.ID, bob, "ruling")
	require.ErrorIs(t, err, services.ErrTransferFailed)

	assert.Equal(t, before, f.get(e.ID))
	assert.Equal(t, int64(0), f.balance(mediator, models.AssetNative))
	assert.Equal(t, int64(0), f.balance(bob, models.AssetNative))
	assert.Equal(t, int64(1000), f.balance(custody, models.AssetNative))
	assert.Empty(t, f.rec.Events)
}

func TestRelease_ReentrantCallSeesUpdatedStatus(t *testing.T) {
	f := newFixture(t, 0)
	e := f.fundedNative(400, 0)

	var reentrantErr error
	calls := 0
	f.adapter.SetReceiveHook(func(ctx context.Context, to string, _ models.Asset, _ *big.Int) error {
		calls++
		_, reentrantErr = f.svc.Release(ctx, call(alice, 0), e.ID, bob)
		return nil
	})

	got, err := f.svc.Release(f.ctx, call(alice, 0), e.ID, bob)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, reentrantErr, services.ErrInvalidState)
	assert.Equal(t, models.EscrowStatusReleased, got.Status)
	assert.Equal(t, int64(400), f.balance(bob, models.AssetNative))
	assert.Equal(t, int64(0), f.balance(custody, models.AssetNative))
	assert.Equal(t, []string{events.EventEscrowReleased}, f.rec.Types()[len(f.rec.Types())-1:])
}

func TestHistory_NewestFirst(t *testing.T) {
	f := newFixture(t, 0)
	e := f.fundedNative(10, 0)
	_, err := f.svc.RaiseDispute(f.ctx, call(bob, 0), e.ID)
	require.NoError(t, err)

	logs, err := f.svc.History(f.ctx, e.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "escrow_status_funded_to_disputed", logs[0].Action)
	assert.Equal(t, "escrow_status_new_to_funded", logs[1].Action)

	logs, err = f.svc.History(f.ctx, e.ID, 10, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "escrow_status_new_to_funded", logs[0].Action)
}

func TestIsAssetSupported(t *testing.T) {
	f := newFixture(t, 0)

	ok, err := f.svc.IsAssetSupported(f.ctx, jetton)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.IsAssetSupported(f.ctx, "EQother")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListForParty(t *testing.T) {
	f := newFixture(t, 0)
	first := f.fundedNative(10, 0)
	second := f.fundedNative(20, 0)

	for _, party := range []string{alice, bob, mediator} {
		list, err := f.svc.ListForParty(f.ctx, party, 10, 0)
		require.NoError(t, err)
		require.Len(t, list, 2, party)
		assert.Equal(t, second.ID, list[0].ID)
		assert.Equal(t, first.ID, list[1].ID)
	}

	list, err := f.svc.ListForParty(f.ctx, bob, 1, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)

	list, err = f.svc.ListForParty(f.ctx, carol, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}
