// Package engine holds the types shared by the three ledger components:
// the balance ledger (wallet), the station registry and the booking engine.
// Everything here is deterministic and free of I/O; the substrate (internal/node)
// serializes all mutating calls, so none of these types carry locks.
package engine

import "time"

// Address identifies a participant: a user, a station owner or the operator.
type Address string

func (a Address) Empty() bool { return a == "" }

// Scale is the fixed-point multiplier for decimal-bearing quantities.
// A user-facing value v is stored as round(v * Scale); 3 decimal digits
// of precision, e.g. 0.005 energy units are stored as 5.
const Scale = 1000

// Call is the value-carrying invocation the balance ledger hands to a target
// component on behalf of a user. At is the substrate commit timestamp, so
// replay reproduces booking timestamps exactly.
type Call struct {
	User    Address
	Value   uint64
	At      time.Time
	Command Command
}

// Receipt reports what a target did with a Call.
type Receipt struct {
	BookingID   uint64
	Price       uint64
	Refund      uint64
	Instruction *Instruction
}

// Target is a component the balance ledger may invoke with attached value.
type Target interface {
	Name() string
	Execute(call Call) (Receipt, error)
}

// ExecutionRecord is emitted by the balance ledger for every successful
// proxy execution.
type ExecutionRecord struct {
	User       Address   `json:"user"`
	Target     string    `json:"target"`
	Op         string    `json:"op"`
	Amount     uint64    `json:"amount"`
	ActualCost uint64    `json:"actualCost"`
	Charged    uint64    `json:"charged"`
	At         time.Time `json:"at"`
}
