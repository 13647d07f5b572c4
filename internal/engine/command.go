package engine

// Command is the typed payload of a proxy execution. The balance ledger does
// not inspect a command beyond its kind; the booking engine dispatches on the
// concrete variant.
type Command interface {
	Kind() string
}

// Command kinds, used for the cost schedule and the journal.
const (
	KindPrebook       = "prebook"
	KindBuyPower      = "buyPower"
	KindEmergencyStop = "emergencyStop"
)

// PrebookCommand reserves intent without committing funds.
type PrebookCommand struct {
	StationID uint64
	Units     uint64
	Rate      uint64
}

func (PrebookCommand) Kind() string { return KindPrebook }

// BuyPowerCommand purchases energy; the attached value must cover the price.
type BuyPowerCommand struct {
	StationID uint64
	Units     uint64
	Rate      uint64
}

func (BuyPowerCommand) Kind() string { return KindBuyPower }

// EmergencyStopCommand halts an active paid booking and settles the refund.
type EmergencyStopCommand struct {
	BookingID     uint64
	UnitsConsumed uint64
}

func (EmergencyStopCommand) Kind() string { return KindEmergencyStop }
