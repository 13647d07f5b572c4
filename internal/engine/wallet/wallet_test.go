package wallet

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mktetts/sei-solar-depin/internal/engine"
)

const (
	operator = engine.Address("operator")
	alice    = engine.Address("alice")
)

type fakeTarget struct {
	err    error
	refund uint64
	ledger *Wallet
	calls  int
}

func (f *fakeTarget) Name() string { return "fake" }

func (f *fakeTarget) Execute(call engine.Call) (engine.Receipt, error) {
	f.calls++
	if f.err != nil {
		return engine.Receipt{}, f.err
	}
	if f.refund > 0 {
		if err := f.ledger.CreditUserRefund(call.User, f.refund); err != nil {
			return engine.Receipt{}, err
		}
	}
	return engine.Receipt{Refund: f.refund}, nil
}

func newWallet(t *testing.T) *Wallet {
	t.Helper()
	w, err := New(operator, 300, nil)
	require.NoError(t, err)
	return w
}

func TestDepositWithdraw(t *testing.T) {
	w := newWallet(t)

	require.NoError(t, w.Deposit(alice, 1000))
	assert.Equal(t, uint64(1000), w.Balance(alice))
	assert.Equal(t, uint64(1000), w.Held())

	require.NoError(t, w.Withdraw(alice, 400))
	assert.Equal(t, uint64(600), w.Balance(alice))
	assert.Equal(t, uint64(600), w.Held())

	assert.ErrorIs(t, w.Withdraw(alice, 601), engine.ErrInsufficientBalance)
	assert.ErrorIs(t, w.Deposit(alice, 0), engine.ErrInvalid)
	assert.ErrorIs(t, w.Deposit("", 10), engine.ErrInvalid)
}

func TestExecuteOperatorOnly(t *testing.T) {
	w := newWallet(t)
	require.NoError(t, w.Deposit(alice, 10_000))

	_, err := w.Execute(alice, alice, &fakeTarget{}, 100, time.Now(), engine.BuyPowerCommand{})
	assert.ErrorIs(t, err, engine.ErrUnauthorized)
	assert.Equal(t, uint64(10_000), w.Balance(alice))
}

func TestExecutePrefundsEstimatedCost(t *testing.T) {
	w := newWallet(t)
	require.NoError(t, w.Deposit(alice, 1000))

	// 800 + 300 estimate > 1000: rejected before the target runs.
	tgt := &fakeTarget{}
	_, err := w.Execute(operator, alice, tgt, 800, time.Now(), engine.BuyPowerCommand{})
	assert.ErrorIs(t, err, engine.ErrInsufficientBalance)
	assert.Zero(t, tgt.calls)

	// 700 + 300 estimate == 1000: accepted.
	_, err = w.Execute(operator, alice, tgt, 700, time.Now(), engine.BuyPowerCommand{})
	require.NoError(t, err)
	assert.Equal(t, 1, tgt.calls)
}

func TestExecuteChargesLesserOfActualAndEstimated(t *testing.T) {
	w, err := New(operator, 250, nil)
	require.NoError(t, err)
	require.NoError(t, w.Deposit(alice, 10_000))

	// emergencyStop is metered at 200, under the 250 estimate.
	_, err = w.Execute(operator, alice, &fakeTarget{}, 0, time.Now(), engine.EmergencyStopCommand{})
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000-200), w.Balance(alice))
	assert.Equal(t, uint64(200), w.Balance(operator))

	// buyPower is metered at 300, over the estimate: the estimate caps it.
	_, err = w.Execute(operator, alice, &fakeTarget{}, 0, time.Now(), engine.BuyPowerCommand{})
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000-200-250), w.Balance(alice))
	assert.Equal(t, uint64(200+250), w.Balance(operator))

	recs := w.Executions()
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(200), recs[0].Charged)
	assert.Equal(t, uint64(300), recs[1].ActualCost)
	assert.Equal(t, uint64(250), recs[1].Charged)
}

func TestExecuteFailedTargetMovesNothing(t *testing.T) {
	w := newWallet(t)
	require.NoError(t, w.Deposit(alice, 10_000))

	boom := errors.New("boom")
	_, err := w.Execute(operator, alice, &fakeTarget{err: boom}, 500, time.Now(), engine.BuyPowerCommand{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(10_000), w.Balance(alice))
	assert.Equal(t, uint64(10_000), w.Held())
	assert.Zero(t, w.Balance(operator))
	assert.Empty(t, w.Executions())
}

func TestExecuteRefundDuringCall(t *testing.T) {
	w := newWallet(t)
	require.NoError(t, w.Deposit(alice, 10_000))

	// Target returns 150 of the 500 attached value mid-call.
	tgt := &fakeTarget{refund: 150, ledger: w}
	_, err := w.Execute(operator, alice, tgt, 500, time.Now(), engine.BuyPowerCommand{})
	require.NoError(t, err)

	// alice: -500 value, -300 metered cost, +150 refund.
	assert.Equal(t, uint64(10_000-500-300+150), w.Balance(alice))
	// held: -500 moved to the target, +150 returned.
	assert.Equal(t, uint64(10_000-500+150), w.Held())
	assert.Equal(t, uint64(300), w.Balance(operator))
}

func TestChangeOperator(t *testing.T) {
	w := newWallet(t)

	assert.ErrorIs(t, w.ChangeOperator(alice, alice), engine.ErrUnauthorized)
	assert.ErrorIs(t, w.ChangeOperator(operator, ""), engine.ErrInvalid)

	require.NoError(t, w.ChangeOperator(operator, alice))
	assert.Equal(t, alice, w.Operator())

	// The old operator lost the role.
	assert.ErrorIs(t, w.ChangeOperator(operator, operator), engine.ErrUnauthorized)
}

func TestCostScheduleFallback(t *testing.T) {
	costs := DefaultCosts()
	assert.Equal(t, uint64(300), costs.ActualCost(engine.KindBuyPower))
	assert.Equal(t, uint64(300), costs.ActualCost("unknown"))
}
