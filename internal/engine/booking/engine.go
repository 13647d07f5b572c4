// Package booking implements the booking engine: pricing, reservation
// lifecycle, settlement and device-instruction emission. It reads the station
// registry and moves money only through the balance ledger's refund-credit
// path.
package booking

import (
	"fmt"
	"time"

	"github.com/mktetts/sei-solar-depin/internal/engine"
	"github.com/mktetts/sei-solar-depin/internal/engine/station"
)

// Status is a booking's lifecycle state. A booking starts ACTIVE and ends
// either COMPLETED or STOPPED; STOPPED is terminal and reached only through
// an emergency stop on a paid booking.
type Status uint8

const (
	StatusActive Status = iota
	StatusCompleted
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusCompleted:
		return "COMPLETED"
	case StatusStopped:
		return "STOPPED"
	}
	return "UNKNOWN"
}

// Booking is one reservation. AmountPaid == 0 marks a pre-booking: no device
// trigger, no emergency-stop eligibility. Once STOPPED a booking is immutable.
type Booking struct {
	ID            uint64
	User          engine.Address
	StationID     uint64
	Units         uint64 // scaled energy target
	Rate          uint64 // scaled delivery rate
	AmountPaid    uint64
	CreatedAt     time.Time
	Status        Status
	UnitsConsumed uint64
	Refund        uint64
}

// StationBooking is the paid-booking view returned per station.
type StationBooking struct {
	User       engine.Address
	AmountPaid uint64
	BookingID  uint64
}

// StationPrebooking is the pre-booking view returned per station.
type StationPrebooking struct {
	User      engine.Address
	Units     uint64
	Rate      uint64
	BookingID uint64
	CreatedAt time.Time
}

// Catalog is the registry surface the engine reads.
type Catalog interface {
	Get(id uint64) (station.Record, error)
}

// RefundLedger is the balance-ledger surface the engine returns value
// through.
type RefundLedger interface {
	CreditUserRefund(user engine.Address, amount uint64) error
}

// Engine owns bookings and per-owner earnings. Ids are stable handles into an
// append-only table, never reused. Not safe for concurrent use; the substrate
// serializes all calls.
type Engine struct {
	catalog   Catalog
	ledger    RefundLedger
	bookings  []Booking
	byUser    map[engine.Address][]uint64
	byStation map[uint64][]uint64
	earnings  map[engine.Address]uint64
	float     uint64 // value held against future refunds and payouts
}

// New wires the engine to its collaborators. Both references are immutable
// for the engine's lifetime, matching the one-time deployment order balance
// ledger, registry, booking engine.
func New(catalog Catalog, ledger RefundLedger) (*Engine, error) {
	if catalog == nil || ledger == nil {
		return nil, fmt.Errorf("booking: catalog and ledger required: %w", engine.ErrInvalid)
	}
	return &Engine{
		catalog:   catalog,
		ledger:    ledger,
		byUser:    make(map[engine.Address][]uint64),
		byStation: make(map[uint64][]uint64),
		earnings:  make(map[engine.Address]uint64),
	}, nil
}

// Name identifies the engine in balance-ledger execution records.
func (e *Engine) Name() string { return "booking" }

// Execute is the single authenticated entry point for value-carrying
// commands, dispatched by the balance ledger on the operator's behalf.
func (e *Engine) Execute(call engine.Call) (engine.Receipt, error) {
	switch cmd := call.Command.(type) {
	case engine.PrebookCommand:
		if call.Value != 0 {
			return engine.Receipt{}, fmt.Errorf("booking: prebook carries no value: %w", engine.ErrInvalid)
		}
		id, err := e.prebook(call.User, cmd, call.At)
		if err != nil {
			return engine.Receipt{}, err
		}
		return engine.Receipt{BookingID: id}, nil
	case engine.BuyPowerCommand:
		return e.buyPower(call.User, cmd, call.Value, call.At)
	case engine.EmergencyStopCommand:
		if call.Value != 0 {
			return engine.Receipt{}, fmt.Errorf("booking: emergency stop carries no value: %w", engine.ErrInvalid)
		}
		return e.emergencyStop(call.User, cmd)
	default:
		return engine.Receipt{}, fmt.Errorf("booking: unknown command %q: %w", call.Command.Kind(), engine.ErrInvalid)
	}
}

// CalculatePrice computes units*rate*pricePerUnit/Scale². Pure: identical
// inputs always return the identical price. Fails if the requested rate
// exceeds what the station can deliver.
func (e *Engine) CalculatePrice(stationID, units, rate uint64) (uint64, error) {
	st, err := e.catalog.Get(stationID)
	if err != nil {
		return 0, err
	}
	if units == 0 {
		return 0, fmt.Errorf("booking: units must be positive: %w", engine.ErrInvalid)
	}
	if rate == 0 {
		return 0, fmt.Errorf("booking: rate must be positive: %w", engine.ErrInvalid)
	}
	maxRate, err := engine.MulDiv(st.Capacity, engine.Scale, 1)
	if err != nil {
		return 0, err
	}
	if rate > maxRate {
		return 0, fmt.Errorf("booking: rate %d exceeds station capacity: %w", rate, engine.ErrInvalid)
	}
	return engine.PriceFor(units, rate, st.PricePerUnit)
}

func (e *Engine) prebook(user engine.Address, cmd engine.PrebookCommand, at time.Time) (uint64, error) {
	if user.Empty() {
		return 0, fmt.Errorf("booking: user: %w", engine.ErrInvalid)
	}
	if _, err := e.catalog.Get(cmd.StationID); err != nil {
		return 0, err
	}
	if cmd.Units == 0 || cmd.Rate == 0 {
		return 0, fmt.Errorf("booking: units and rate must be positive: %w", engine.ErrInvalid)
	}
	id := e.append(Booking{
		User:      user,
		StationID: cmd.StationID,
		Units:     cmd.Units,
		Rate:      cmd.Rate,
		CreatedAt: at,
		Status:    StatusActive,
	})
	return id, nil
}

func (e *Engine) buyPower(user engine.Address, cmd engine.BuyPowerCommand, payment uint64, at time.Time) (engine.Receipt, error) {
	if user.Empty() {
		return engine.Receipt{}, fmt.Errorf("booking: user: %w", engine.ErrInvalid)
	}
	price, err := e.CalculatePrice(cmd.StationID, cmd.Units, cmd.Rate)
	if err != nil {
		return engine.Receipt{}, err
	}
	if payment < price {
		return engine.Receipt{}, fmt.Errorf("booking: payment %d below price %d: %w", payment, price, engine.ErrInsufficientPayment)
	}
	st, err := e.catalog.Get(cmd.StationID)
	if err != nil {
		return engine.Receipt{}, err
	}

	newFloat, err := engine.AddChecked(e.float, price)
	if err != nil {
		return engine.Receipt{}, err
	}
	newEarnings, err := engine.AddChecked(e.earnings[st.Owner], price)
	if err != nil {
		return engine.Receipt{}, err
	}
	// Excess payment goes straight back to the user through the dedicated
	// refund-credit path; this must happen before any engine state changes
	// so a ledger failure leaves nothing half-applied.
	excess := payment - price
	if excess > 0 {
		if err := e.ledger.CreditUserRefund(user, excess); err != nil {
			return engine.Receipt{}, err
		}
	}

	e.float = newFloat
	e.earnings[st.Owner] = newEarnings
	id := e.append(Booking{
		User:       user,
		StationID:  cmd.StationID,
		Units:      cmd.Units,
		Rate:       cmd.Rate,
		AmountPaid: price,
		CreatedAt:  at,
		Status:     StatusActive,
	})

	return engine.Receipt{
		BookingID:   id,
		Price:       price,
		Refund:      excess,
		Instruction: engine.ToggleInstruction(id, st.ID, user, st.DeviceAddress, cmd.Units, cmd.Rate),
	}, nil
}

func (e *Engine) emergencyStop(user engine.Address, cmd engine.EmergencyStopCommand) (engine.Receipt, error) {
	if cmd.BookingID >= uint64(len(e.bookings)) {
		return engine.Receipt{}, fmt.Errorf("booking %d: %w", cmd.BookingID, engine.ErrNotFound)
	}
	b := &e.bookings[cmd.BookingID]
	switch {
	case b.User != user:
		return engine.Receipt{}, fmt.Errorf("booking %d belongs to %s: %w", b.ID, b.User, engine.ErrUnauthorized)
	case b.Status != StatusActive:
		return engine.Receipt{}, fmt.Errorf("booking %d is %s: %w", b.ID, b.Status, engine.ErrInvalid)
	case b.AmountPaid == 0:
		return engine.Receipt{}, fmt.Errorf("booking %d: cannot stop a pre-booking: %w", b.ID, engine.ErrInvalid)
	case cmd.UnitsConsumed > b.Units:
		return engine.Receipt{}, fmt.Errorf("booking %d: consumed %d exceeds booked %d: %w", b.ID, cmd.UnitsConsumed, b.Units, engine.ErrInvalid)
	}

	st, err := e.catalog.Get(b.StationID)
	if err != nil {
		return engine.Receipt{}, err
	}
	refund, err := engine.PriceFor(b.Units-cmd.UnitsConsumed, b.Rate, st.PricePerUnit)
	if err != nil {
		return engine.Receipt{}, err
	}
	if refund > b.AmountPaid {
		refund = b.AmountPaid
	}
	// A refund must never drive earnings negative; failing here aborts the
	// whole stop rather than clamping.
	if e.earnings[st.Owner] < refund {
		return engine.Receipt{}, fmt.Errorf("booking %d: refund %d exceeds owner earnings: %w", b.ID, refund, engine.ErrInsufficientEarnings)
	}
	if e.float < refund {
		return engine.Receipt{}, fmt.Errorf("booking %d: engine holds %d, refund %d: %w", b.ID, e.float, refund, engine.ErrInsufficientBalance)
	}
	if refund > 0 {
		if err := e.ledger.CreditUserRefund(user, refund); err != nil {
			return engine.Receipt{}, err
		}
	}

	e.earnings[st.Owner] -= refund
	e.float -= refund
	b.Status = StatusStopped
	b.UnitsConsumed = cmd.UnitsConsumed
	b.Refund = refund

	return engine.Receipt{
		BookingID:   b.ID,
		Refund:      refund,
		Instruction: engine.StopInstruction(b.ID, st.ID, user, st.DeviceAddress, cmd.UnitsConsumed, refund),
	}, nil
}

// WithdrawEarnings zeroes the owner's accrued earnings and pays them out of
// the engine's held value. Self-service: the owner calls this directly.
func (e *Engine) WithdrawEarnings(owner engine.Address) (uint64, error) {
	amount := e.earnings[owner]
	if amount == 0 {
		return 0, fmt.Errorf("booking: no earnings for %s: %w", owner, engine.ErrInsufficientEarnings)
	}
	if e.float < amount {
		return 0, fmt.Errorf("booking: engine holds %d, payout %d: %w", e.float, amount, engine.ErrInsufficientBalance)
	}
	e.earnings[owner] = 0
	e.float -= amount
	return amount, nil
}

func (e *Engine) append(b Booking) uint64 {
	b.ID = uint64(len(e.bookings))
	e.bookings = append(e.bookings, b)
	e.byUser[b.User] = append(e.byUser[b.User], b.ID)
	e.byStation[b.StationID] = append(e.byStation[b.StationID], b.ID)
	return b.ID
}

// Booking returns a copy of the booking with the given id.
func (e *Engine) Booking(id uint64) (Booking, error) {
	if id >= uint64(len(e.bookings)) {
		return Booking{}, fmt.Errorf("booking %d: %w", id, engine.ErrNotFound)
	}
	return e.bookings[id], nil
}

// UserBookings returns copies of all of the user's bookings in creation order.
func (e *Engine) UserBookings(user engine.Address) []Booking {
	ids := e.byUser[user]
	out := make([]Booking, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.bookings[id])
	}
	return out
}

// BookingCount returns the total number of bookings ever created.
func (e *Engine) BookingCount() uint64 { return uint64(len(e.bookings)) }

// StationBookings returns the paid bookings recorded for a station, in call
// order.
func (e *Engine) StationBookings(stationID uint64) []StationBooking {
	var out []StationBooking
	for _, id := range e.byStation[stationID] {
		b := e.bookings[id]
		if b.AmountPaid > 0 {
			out = append(out, StationBooking{User: b.User, AmountPaid: b.AmountPaid, BookingID: b.ID})
		}
	}
	return out
}

// StationPrebookings returns the pre-bookings recorded for a station, in call
// order.
func (e *Engine) StationPrebookings(stationID uint64) []StationPrebooking {
	var out []StationPrebooking
	for _, id := range e.byStation[stationID] {
		b := e.bookings[id]
		if b.AmountPaid == 0 {
			out = append(out, StationPrebooking{User: b.User, Units: b.Units, Rate: b.Rate, BookingID: b.ID, CreatedAt: b.CreatedAt})
		}
	}
	return out
}

// OwnerEarnings returns the owner's accrued, withdrawable value.
func (e *Engine) OwnerEarnings(owner engine.Address) uint64 { return e.earnings[owner] }

// Balance returns the value the engine holds against refunds and payouts.
func (e *Engine) Balance() uint64 { return e.float }
