package engine

import "fmt"

// Instruction describes the HTTP call an off-engine dispatcher should make to
// a physical station. The engine never performs the call itself; it stays free
// of network I/O and its failure modes.
type Instruction struct {
	BookingID     uint64  `json:"bookingId"`
	StationID     uint64  `json:"stationId"`
	User          Address `json:"user"`
	DeviceAddress string  `json:"deviceAddress"`
	Endpoint      string  `json:"endpoint"`

	// Toggle fields, raw scaled integers. How the device interprets them is
	// an external contract with the device firmware.
	Units uint64 `json:"units,omitempty"`
	Rate  uint64 `json:"rate,omitempty"`

	// Stop fields.
	UnitsConsumed uint64 `json:"unitsConsumed,omitempty"`
	Refund        uint64 `json:"refund,omitempty"`
}

// ToggleInstruction builds the start-delivery descriptor emitted by buyPower.
func ToggleInstruction(bookingID, stationID uint64, user Address, device string, units, rate uint64) *Instruction {
	return &Instruction{
		BookingID:     bookingID,
		StationID:     stationID,
		User:          user,
		DeviceAddress: device,
		Endpoint:      fmt.Sprintf("/toggle/%d/%d", units, rate),
		Units:         units,
		Rate:          rate,
	}
}

// StopInstruction builds the halt-delivery descriptor emitted by emergencyStop.
func StopInstruction(bookingID, stationID uint64, user Address, device string, unitsConsumed, refund uint64) *Instruction {
	return &Instruction{
		BookingID:     bookingID,
		StationID:     stationID,
		User:          user,
		DeviceAddress: device,
		Endpoint:      "/stop",
		UnitsConsumed: unitsConsumed,
		Refund:        refund,
	}
}
