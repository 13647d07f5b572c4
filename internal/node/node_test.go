package node

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mktetts/sei-solar-depin/internal/engine"
	"github.com/mktetts/sei-solar-depin/internal/journal"
)

const (
	operator = engine.Address("operator")
	owner    = engine.Address("owner")
	alice    = engine.Address("alice")
	bob      = engine.Address("bob")
)

func newNode(t *testing.T, store journal.Store) *Node {
	t.Helper()
	n, err := New(Options{Operator: operator, EstimatedCost: 300, Store: store})
	require.NoError(t, err)
	return n
}

func seedStation(t *testing.T, n *Node) uint64 {
	t.Helper()
	id, err := n.RegisterStation(context.Background(), owner, "SOLAR-1", "http://device-1.local",
		1_000_000, 1000, "12 Beach Rd", 12_971_598, 77_594_566)
	require.NoError(t, err)
	return id
}

func TestDepositBuyStopFlow(t *testing.T) {
	ctx := context.Background()
	n := newNode(t, nil)
	id := seedStation(t, n)

	require.NoError(t, n.Deposit(ctx, alice, 1_000_000_000))

	price, err := n.CalculatePrice(id, 100, 500)
	require.NoError(t, err)

	rcpt, err := n.BuyPower(ctx, alice, id, 100, 500, 0)
	require.NoError(t, err)
	assert.Equal(t, price, rcpt.Price)
	assert.Zero(t, rcpt.Refund)

	// The execution cost is deducted on top of the price.
	assert.Less(t, n.Balance(alice), 1_000_000_000-price)
	assert.Equal(t, price, n.OwnerEarnings(owner))

	stop, err := n.EmergencyStop(ctx, alice, rcpt.BookingID, 60)
	require.NoError(t, err)
	assert.Equal(t, uint64(40*500*1_000_000/(engine.Scale*engine.Scale)), stop.Refund)

	b, err := n.Booking(rcpt.BookingID)
	require.NoError(t, err)
	assert.Equal(t, "STOPPED", b.Status.String())
	assert.Equal(t, uint64(4), n.Seq())
}

func TestBuyPowerExplicitOverpayment(t *testing.T) {
	ctx := context.Background()
	n := newNode(t, nil)
	id := seedStation(t, n)
	require.NoError(t, n.Deposit(ctx, alice, 1_000_000))

	price, err := n.CalculatePrice(id, 10, 50)
	require.NoError(t, err)

	rcpt, err := n.BuyPower(ctx, alice, id, 10, 50, price+123)
	require.NoError(t, err)
	assert.Equal(t, uint64(123), rcpt.Refund)
}

func TestFailedOpsJournalNothing(t *testing.T) {
	ctx := context.Background()
	store := journal.NewMemoryStore()
	n := newNode(t, store)

	assert.Error(t, n.Deposit(ctx, alice, 0))
	assert.Error(t, n.Withdraw(ctx, alice, 10))
	_, err := n.BuyPower(ctx, alice, 0, 10, 10, 0)
	assert.Error(t, err)

	recs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Zero(t, n.Seq())
}

func TestReplayRebuildsIdenticalState(t *testing.T) {
	ctx := context.Background()
	store := journal.NewMemoryStore()

	n := newNode(t, store)
	id := seedStation(t, n)
	require.NoError(t, n.Deposit(ctx, alice, 1_000_000_000))
	require.NoError(t, n.Deposit(ctx, bob, 500_000))

	rcpt, err := n.BuyPower(ctx, alice, id, 100, 500, 0)
	require.NoError(t, err)
	_, err = n.EmergencyStop(ctx, alice, rcpt.BookingID, 60)
	require.NoError(t, err)
	require.NoError(t, n.UpdateCapacity(ctx, owner, id, 1500))
	require.NoError(t, n.Withdraw(ctx, bob, 100_000))
	_, err = n.Prebook(ctx, bob, id, 10, 20)
	require.NoError(t, err)

	// Fresh node, same journal.
	n2 := newNode(t, store)
	require.NoError(t, n2.Replay(ctx))

	assert.Equal(t, n.Seq(), n2.Seq())
	assert.Equal(t, n.Balance(alice), n2.Balance(alice))
	assert.Equal(t, n.Balance(bob), n2.Balance(bob))
	assert.Equal(t, n.Balance(operator), n2.Balance(operator))
	assert.Equal(t, n.Held(), n2.Held())
	assert.Equal(t, n.OwnerEarnings(owner), n2.OwnerEarnings(owner))
	assert.Equal(t, n.EngineBalance(), n2.EngineBalance())
	assert.Equal(t, n.BookingCount(), n2.BookingCount())

	st1, err := n.Station(id)
	require.NoError(t, err)
	st2, err := n2.Station(id)
	require.NoError(t, err)
	assert.Equal(t, st1, st2)

	b1, err := n.Booking(rcpt.BookingID)
	require.NoError(t, err)
	b2, err := n2.Booking(rcpt.BookingID)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestReplayRejectsTamperedJournal(t *testing.T) {
	ctx := context.Background()
	store := journal.NewMemoryStore()

	n := newNode(t, store)
	require.NoError(t, n.Deposit(ctx, alice, 1000))
	require.NoError(t, n.Deposit(ctx, alice, 2000))

	recs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	tampered := journal.NewMemoryStore()
	recs[0].Params = []byte(`{"user":"alice","amount":999999}`)
	for _, rec := range recs {
		require.NoError(t, tampered.Append(ctx, rec))
	}

	n2 := newNode(t, tampered)
	assert.Error(t, n2.Replay(ctx))
}

func TestChangeOperatorSurvivesReplay(t *testing.T) {
	ctx := context.Background()
	store := journal.NewMemoryStore()

	n := newNode(t, store)
	require.NoError(t, n.Deposit(ctx, alice, 10_000))
	require.NoError(t, n.ChangeOperator(ctx, bob))
	assert.Equal(t, bob, n.Operator())

	n2 := newNode(t, store)
	require.NoError(t, n2.Replay(ctx))
	assert.Equal(t, bob, n2.Operator())
}

func TestExecutionRecords(t *testing.T) {
	ctx := context.Background()
	n := newNode(t, nil)
	id := seedStation(t, n)
	require.NoError(t, n.Deposit(ctx, alice, 1_000_000))

	_, err := n.Prebook(ctx, alice, id, 10, 20)
	require.NoError(t, err)

	recs := n.Executions()
	require.Len(t, recs, 1)
	assert.Equal(t, alice, recs[0].User)
	assert.Equal(t, "booking", recs[0].Target)
	assert.Equal(t, engine.KindPrebook, recs[0].Op)
	// prebook is metered at 100, under the 300 estimate.
	assert.Equal(t, uint64(100), recs[0].Charged)
}
