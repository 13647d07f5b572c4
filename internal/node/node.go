// Package node is the substrate the three ledger components run on: it
// serializes every mutating call into a single global order, stamps each
// commit with a sequence number, and appends it to the hash-chained journal.
// A call either completes atomically or does not happen; failed operations
// leave no journal record and no state change.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mktetts/sei-solar-depin/internal/engine"
	"github.com/mktetts/sei-solar-depin/internal/engine/booking"
	"github.com/mktetts/sei-solar-depin/internal/engine/station"
	"github.com/mktetts/sei-solar-depin/internal/engine/wallet"
	"github.com/mktetts/sei-solar-depin/internal/journal"
)

// Journal operation names.
const (
	OpDeposit          = "wallet.deposit"
	OpWithdraw         = "wallet.withdraw"
	OpChangeOperator   = "wallet.changeOperator"
	OpRegisterStation  = "station.register"
	OpUpdateCapacity   = "station.updateCapacity"
	OpUpdatePrice      = "station.updatePrice"
	OpPrebook          = "booking.prebook"
	OpBuyPower         = "booking.buyPower"
	OpEmergencyStop    = "booking.emergencyStop"
	OpWithdrawEarnings = "booking.withdrawEarnings"
)

// Options configure a node.
type Options struct {
	Operator      engine.Address
	EstimatedCost uint64
	Costs         wallet.CostSchedule
	Store         journal.Store
}

// Node owns the balance ledger, the station registry and the booking engine,
// wired in deployment order. All mutation goes through its entry points.
type Node struct {
	mu       sync.RWMutex
	wallet   *wallet.Wallet
	registry *station.Registry
	engine   *booking.Engine
	store    journal.Store
	seq      uint64
	lastHash string

	// Commit timestamps are truncated to microseconds: the record hash
	// covers the timestamp, and timestamptz keeps no finer precision.
	now func() time.Time
}

// New builds a node and its components. Store may be nil for an ephemeral
// in-memory chain.
func New(opts Options) (*Node, error) {
	w, err := wallet.New(opts.Operator, opts.EstimatedCost, opts.Costs)
	if err != nil {
		return nil, err
	}
	r, err := station.New(opts.Operator)
	if err != nil {
		return nil, err
	}
	e, err := booking.New(r, w)
	if err != nil {
		return nil, err
	}
	store := opts.Store
	if store == nil {
		store = journal.NewMemoryStore()
	}
	return &Node{wallet: w, registry: r, engine: e, store: store, now: time.Now}, nil
}

type depositParams struct {
	User   engine.Address `json:"user"`
	Amount uint64         `json:"amount"`
}

type withdrawParams struct {
	User   engine.Address `json:"user"`
	Amount uint64         `json:"amount"`
}

type changeOperatorParams struct {
	Next engine.Address `json:"next"`
}

type registerStationParams struct {
	Owner         engine.Address `json:"owner"`
	UniqueID      string         `json:"uniqueId"`
	DeviceAddress string         `json:"deviceAddress"`
	PricePerUnit  uint64         `json:"pricePerUnit"`
	Capacity      uint64         `json:"capacity"`
	Address       string         `json:"address"`
	LatMicro      int64          `json:"latMicro"`
	LonMicro      int64          `json:"lonMicro"`
}

type updateCapacityParams struct {
	Caller      engine.Address `json:"caller"`
	StationID   uint64         `json:"stationId"`
	NewCapacity uint64         `json:"newCapacity"`
}

type updatePriceParams struct {
	Caller    engine.Address `json:"caller"`
	StationID uint64         `json:"stationId"`
	NewPrice  uint64         `json:"newPrice"`
}

type prebookParams struct {
	User      engine.Address `json:"user"`
	StationID uint64         `json:"stationId"`
	Units     uint64         `json:"units"`
	Rate      uint64         `json:"rate"`
}

type buyPowerParams struct {
	User      engine.Address `json:"user"`
	StationID uint64         `json:"stationId"`
	Units     uint64         `json:"units"`
	Rate      uint64         `json:"rate"`
	Payment   uint64         `json:"payment"`
}

type emergencyStopParams struct {
	User          engine.Address `json:"user"`
	BookingID     uint64         `json:"bookingId"`
	UnitsConsumed uint64         `json:"unitsConsumed"`
}

type withdrawEarningsParams struct {
	Owner engine.Address `json:"owner"`
}

// commit journals a successfully applied operation. The journal is the
// durability boundary: an append failure is surfaced to the caller and the
// process should be restarted from the stored chain.
func (n *Node) commit(ctx context.Context, op string, params any, at time.Time) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("node: marshal %s: %w", op, err)
	}
	n.seq++
	rec := journal.Record{Seq: n.seq, Op: op, Params: raw, At: at}
	rec.Seal(n.lastHash)
	if err := n.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("node: journal %s: %w", op, err)
	}
	n.lastHash = rec.Hash
	return nil
}

// Deposit credits a user's spendable balance.
func (n *Node) Deposit(ctx context.Context, user engine.Address, amount uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	at := n.now().UTC().Truncate(time.Microsecond)
	if err := n.wallet.Deposit(user, amount); err != nil {
		return err
	}
	return n.commit(ctx, OpDeposit, depositParams{User: user, Amount: amount}, at)
}

// Withdraw debits a user and transfers the value out.
func (n *Node) Withdraw(ctx context.Context, user engine.Address, amount uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	at := n.now().UTC().Truncate(time.Microsecond)
	if err := n.wallet.Withdraw(user, amount); err != nil {
		return err
	}
	return n.commit(ctx, OpWithdraw, withdrawParams{User: user, Amount: amount}, at)
}

// ChangeOperator hands the operator role to a new identity.
func (n *Node) ChangeOperator(ctx context.Context, next engine.Address) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	at := n.now().UTC().Truncate(time.Microsecond)
	if err := n.wallet.ChangeOperator(n.wallet.Operator(), next); err != nil {
		return err
	}
	return n.commit(ctx, OpChangeOperator, changeOperatorParams{Next: next}, at)
}

// RegisterStation adds a station to the registry; the owner becomes its
// gatekeeper.
func (n *Node) RegisterStation(ctx context.Context, owner engine.Address, uniqueID, deviceAddress string, pricePerUnit, capacity uint64, address string, latMicro, lonMicro int64) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	at := n.now().UTC().Truncate(time.Microsecond)
	p := registerStationParams{
		Owner: owner, UniqueID: uniqueID, DeviceAddress: deviceAddress,
		PricePerUnit: pricePerUnit, Capacity: capacity, Address: address,
		LatMicro: latMicro, LonMicro: lonMicro,
	}
	id, err := n.registry.Register(owner, uniqueID, deviceAddress, pricePerUnit, capacity, address, latMicro, lonMicro, at)
	if err != nil {
		return 0, err
	}
	if err := n.commit(ctx, OpRegisterStation, p, at); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateCapacity changes a station's capacity (owner- or operator-gated).
func (n *Node) UpdateCapacity(ctx context.Context, caller engine.Address, stationID, newCapacity uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	at := n.now().UTC().Truncate(time.Microsecond)
	if err := n.registry.UpdateCapacity(caller, stationID, newCapacity); err != nil {
		return err
	}
	return n.commit(ctx, OpUpdateCapacity, updateCapacityParams{Caller: caller, StationID: stationID, NewCapacity: newCapacity}, at)
}

// UpdatePrice changes a station's price (owner- or operator-gated).
func (n *Node) UpdatePrice(ctx context.Context, caller engine.Address, stationID, newPrice uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	at := n.now().UTC().Truncate(time.Microsecond)
	if err := n.registry.UpdatePrice(caller, stationID, newPrice); err != nil {
		return err
	}
	return n.commit(ctx, OpUpdatePrice, updatePriceParams{Caller: caller, StationID: stationID, NewPrice: newPrice}, at)
}

// CalculatePrice quotes a purchase without mutating anything.
func (n *Node) CalculatePrice(stationID, units, rate uint64) (uint64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.engine.CalculatePrice(stationID, units, rate)
}

// Prebook reserves intent without committing funds. Operator-proxied: the
// user still pre-funds the execution cost.
func (n *Node) Prebook(ctx context.Context, user engine.Address, stationID, units, rate uint64) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	at := n.now().UTC().Truncate(time.Microsecond)
	rcpt, err := n.execute(user, 0, at, engine.PrebookCommand{StationID: stationID, Units: units, Rate: rate})
	if err != nil {
		return 0, err
	}
	if err := n.commit(ctx, OpPrebook, prebookParams{User: user, StationID: stationID, Units: units, Rate: rate}, at); err != nil {
		return 0, err
	}
	return rcpt.BookingID, nil
}

// BuyPower purchases energy. A zero payment means "pay the quoted price";
// anything above the price is refunded to the user inside the same atomic
// call. Returns the receipt carrying the booking id and the device toggle
// instruction.
func (n *Node) BuyPower(ctx context.Context, user engine.Address, stationID, units, rate, payment uint64) (engine.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	at := n.now().UTC().Truncate(time.Microsecond)
	if payment == 0 {
		price, err := n.engine.CalculatePrice(stationID, units, rate)
		if err != nil {
			return engine.Receipt{}, err
		}
		payment = price
	}
	rcpt, err := n.execute(user, payment, at, engine.BuyPowerCommand{StationID: stationID, Units: units, Rate: rate})
	if err != nil {
		return engine.Receipt{}, err
	}
	p := buyPowerParams{User: user, StationID: stationID, Units: units, Rate: rate, Payment: payment}
	if err := n.commit(ctx, OpBuyPower, p, at); err != nil {
		return engine.Receipt{}, err
	}
	return rcpt, nil
}

// EmergencyStop halts an active paid booking and settles the partial refund.
func (n *Node) EmergencyStop(ctx context.Context, user engine.Address, bookingID, unitsConsumed uint64) (engine.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	at := n.now().UTC().Truncate(time.Microsecond)
	rcpt, err := n.execute(user, 0, at, engine.EmergencyStopCommand{BookingID: bookingID, UnitsConsumed: unitsConsumed})
	if err != nil {
		return engine.Receipt{}, err
	}
	p := emergencyStopParams{User: user, BookingID: bookingID, UnitsConsumed: unitsConsumed}
	if err := n.commit(ctx, OpEmergencyStop, p, at); err != nil {
		return engine.Receipt{}, err
	}
	return rcpt, nil
}

// WithdrawEarnings pays out an owner's accrued earnings.
func (n *Node) WithdrawEarnings(ctx context.Context, owner engine.Address) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	at := n.now().UTC().Truncate(time.Microsecond)
	amount, err := n.engine.WithdrawEarnings(owner)
	if err != nil {
		return 0, err
	}
	if err := n.commit(ctx, OpWithdrawEarnings, withdrawEarningsParams{Owner: owner}, at); err != nil {
		return 0, err
	}
	return amount, nil
}

// execute routes a typed command through the balance ledger's privileged
// proxy with the booking engine as target. Caller holds the write lock.
func (n *Node) execute(user engine.Address, amount uint64, at time.Time, cmd engine.Command) (engine.Receipt, error) {
	return n.wallet.Execute(n.wallet.Operator(), user, n.engine, amount, at, cmd)
}

// Replay rebuilds node state from the journal, verifying the hash chain.
// Must be called before the node serves traffic.
func (n *Node) Replay(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	recs, err := n.store.List(ctx)
	if err != nil {
		return err
	}
	prev := ""
	for _, rec := range recs {
		if err := rec.Verify(prev); err != nil {
			return err
		}
		if err := n.apply(rec); err != nil {
			return fmt.Errorf("node: replay seq %d (%s): %w", rec.Seq, rec.Op, err)
		}
		prev = rec.Hash
		n.seq = rec.Seq
		n.lastHash = rec.Hash
	}
	return nil
}

func (n *Node) apply(rec journal.Record) error {
	switch rec.Op {
	case OpDeposit:
		var p depositParams
		if err := json.Unmarshal(rec.Params, &p); err != nil {
			return err
		}
		return n.wallet.Deposit(p.User, p.Amount)
	case OpWithdraw:
		var p withdrawParams
		if err := json.Unmarshal(rec.Params, &p); err != nil {
			return err
		}
		return n.wallet.Withdraw(p.User, p.Amount)
	case OpChangeOperator:
		var p changeOperatorParams
		if err := json.Unmarshal(rec.Params, &p); err != nil {
			return err
		}
		return n.wallet.ChangeOperator(n.wallet.Operator(), p.Next)
	case OpRegisterStation:
		var p registerStationParams
		if err := json.Unmarshal(rec.Params, &p); err != nil {
			return err
		}
		_, err := n.registry.Register(p.Owner, p.UniqueID, p.DeviceAddress, p.PricePerUnit, p.Capacity, p.Address, p.LatMicro, p.LonMicro, rec.At)
		return err
	case OpUpdateCapacity:
		var p updateCapacityParams
		if err := json.Unmarshal(rec.Params, &p); err != nil {
			return err
		}
		return n.registry.UpdateCapacity(p.Caller, p.StationID, p.NewCapacity)
	case OpUpdatePrice:
		var p updatePriceParams
		if err := json.Unmarshal(rec.Params, &p); err != nil {
			return err
		}
		return n.registry.UpdatePrice(p.Caller, p.StationID, p.NewPrice)
	case OpPrebook:
		var p prebookParams
		if err := json.Unmarshal(rec.Params, &p); err != nil {
			return err
		}
		_, err := n.execute(p.User, 0, rec.At, engine.PrebookCommand{StationID: p.StationID, Units: p.Units, Rate: p.Rate})
		return err
	case OpBuyPower:
		var p buyPowerParams
		if err := json.Unmarshal(rec.Params, &p); err != nil {
			return err
		}
		_, err := n.execute(p.User, p.Payment, rec.At, engine.BuyPowerCommand{StationID: p.StationID, Units: p.Units, Rate: p.Rate})
		return err
	case OpEmergencyStop:
		var p emergencyStopParams
		if err := json.Unmarshal(rec.Params, &p); err != nil {
			return err
		}
		_, err := n.execute(p.User, 0, rec.At, engine.EmergencyStopCommand{BookingID: p.BookingID, UnitsConsumed: p.UnitsConsumed})
		return err
	case OpWithdrawEarnings:
		var p withdrawEarningsParams
		if err := json.Unmarshal(rec.Params, &p); err != nil {
			return err
		}
		_, err := n.engine.WithdrawEarnings(p.Owner)
		return err
	}
	return fmt.Errorf("node: unknown op %q", rec.Op)
}

// Seq returns the sequence of the last committed operation.
func (n *Node) Seq() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.seq
}

// Read-side surface, consumed by dashboards and assistants.

func (n *Node) Operator() engine.Address {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.wallet.Operator()
}

func (n *Node) Balance(user engine.Address) uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.wallet.Balance(user)
}

func (n *Node) Held() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.wallet.Held()
}

func (n *Node) EstimatedCost() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.wallet.EstimatedCost()
}

func (n *Node) Costs() wallet.CostSchedule {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.wallet.Costs()
}

func (n *Node) Executions() []engine.ExecutionRecord {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.wallet.Executions()
}

func (n *Node) Station(id uint64) (station.Record, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.registry.Get(id)
}

func (n *Node) Stations() []station.Record {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.registry.All()
}

func (n *Node) Booking(id uint64) (booking.Booking, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.engine.Booking(id)
}

func (n *Node) UserBookings(user engine.Address) []booking.Booking {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.engine.UserBookings(user)
}

func (n *Node) BookingCount() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.engine.BookingCount()
}

func (n *Node) StationBookings(stationID uint64) []booking.StationBooking {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.engine.StationBookings(stationID)
}

func (n *Node) StationPrebookings(stationID uint64) []booking.StationPrebooking {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.engine.StationPrebookings(stationID)
}

func (n *Node) OwnerEarnings(owner engine.Address) uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.engine.OwnerEarnings(owner)
}

func (n *Node) EngineBalance() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.engine.Balance()
}
