// Package station implements the charging-station registry: an owner-gated
// catalog of physical stations and their price governance.
package station

import (
	"fmt"
	"sort"
	"time"

	"github.com/mktetts/sei-solar-depin/internal/engine"
)

// Bounds for coordinates stored in integer microdegrees.
const (
	MaxLatitude  = 90_000_000
	MaxLongitude = 180_000_000
)

// Record describes one charging station. Identity and owner are immutable
// once created; price and capacity change only through the owner-gated
// update operations. Records are never deleted, only logically superseded
// via the Exists flag.
type Record struct {
	ID            uint64
	UniqueID      string
	DeviceAddress string
	PricePerUnit  uint64 // scaled, per energy unit
	Capacity      uint64 // scaled, max instantaneous rate
	Owner          engine.Address
	Address        string
	LatitudeMicro  int64
	LongitudeMicro int64
	Exists         bool
	CreatedAt      time.Time
}

// Registry is a gated key-value catalog; no state machine beyond existence.
// Not safe for concurrent use; the substrate serializes all calls.
type Registry struct {
	operator engine.Address
	stations map[uint64]*Record
	nextID   uint64
}

// New constructs a registry. The operator identity may act in place of a
// station owner on the gated update operations.
func New(operator engine.Address) (*Registry, error) {
	if operator.Empty() {
		return nil, fmt.Errorf("station: operator: %w", engine.ErrInvalid)
	}
	return &Registry{operator: operator, stations: make(map[uint64]*Record)}, nil
}

// Register adds a station and assigns the next sequential id. The caller
// becomes owner.
func (r *Registry) Register(owner engine.Address, uniqueID, deviceAddress string, pricePerUnit, capacity uint64, address string, latMicro, lonMicro int64, at time.Time) (uint64, error) {
	switch {
	case owner.Empty():
		return 0, fmt.Errorf("station: owner: %w", engine.ErrInvalid)
	case uniqueID == "":
		return 0, fmt.Errorf("station: unique id: %w", engine.ErrInvalid)
	case pricePerUnit == 0:
		return 0, fmt.Errorf("station: price must be positive: %w", engine.ErrInvalid)
	case capacity == 0:
		return 0, fmt.Errorf("station: capacity must be positive: %w", engine.ErrInvalid)
	case address == "":
		return 0, fmt.Errorf("station: physical address: %w", engine.ErrInvalid)
	case latMicro < -MaxLatitude || latMicro > MaxLatitude:
		return 0, fmt.Errorf("station: latitude %d out of range: %w", latMicro, engine.ErrInvalid)
	case lonMicro < -MaxLongitude || lonMicro > MaxLongitude:
		return 0, fmt.Errorf("station: longitude %d out of range: %w", lonMicro, engine.ErrInvalid)
	}

	id := r.nextID
	r.nextID++
	r.stations[id] = &Record{
		ID:             id,
		UniqueID:       uniqueID,
		DeviceAddress:  deviceAddress,
		PricePerUnit:   pricePerUnit,
		Capacity:       capacity,
		Owner:          owner,
		Address:        address,
		LatitudeMicro:  latMicro,
		LongitudeMicro: lonMicro,
		Exists:         true,
		CreatedAt:      at,
	}
	return id, nil
}

// UpdateCapacity changes a station's capacity. A capacity increase raises the
// price proportionally; a decrease leaves the price untouched. The coupling
// is deliberately one-directional.
func (r *Registry) UpdateCapacity(caller engine.Address, id uint64, newCapacity uint64) error {
	st, err := r.gated(caller, id)
	if err != nil {
		return err
	}
	if newCapacity == 0 {
		return fmt.Errorf("station: capacity must be positive: %w", engine.ErrInvalid)
	}
	if newCapacity > st.Capacity {
		pct, err := engine.MulDiv(newCapacity-st.Capacity, 100, st.Capacity)
		if err != nil {
			return err
		}
		bump, err := engine.MulDiv(st.PricePerUnit, pct, 100)
		if err != nil {
			return err
		}
		price, err := engine.AddChecked(st.PricePerUnit, bump)
		if err != nil {
			return err
		}
		st.PricePerUnit = price
	}
	st.Capacity = newCapacity
	return nil
}

// UpdatePrice changes a station's price independently of capacity.
func (r *Registry) UpdatePrice(caller engine.Address, id uint64, newPrice uint64) error {
	st, err := r.gated(caller, id)
	if err != nil {
		return err
	}
	if newPrice == 0 {
		return fmt.Errorf("station: price must be positive: %w", engine.ErrInvalid)
	}
	st.PricePerUnit = newPrice
	return nil
}

func (r *Registry) gated(caller engine.Address, id uint64) (*Record, error) {
	st, ok := r.stations[id]
	if !ok || !st.Exists {
		return nil, fmt.Errorf("station %d: %w", id, engine.ErrNotFound)
	}
	if caller != st.Owner && caller != r.operator {
		return nil, fmt.Errorf("station %d: caller %s is not owner or operator: %w", id, caller, engine.ErrUnauthorized)
	}
	return st, nil
}

// Get returns a copy of the station record.
func (r *Registry) Get(id uint64) (Record, error) {
	st, ok := r.stations[id]
	if !ok || !st.Exists {
		return Record{}, fmt.Errorf("station %d: %w", id, engine.ErrNotFound)
	}
	return *st, nil
}

// All returns copies of every existing station, ordered by id.
func (r *Registry) All() []Record {
	out := make([]Record, 0, len(r.stations))
	for _, st := range r.stations {
		if st.Exists {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of ids ever assigned.
func (r *Registry) Count() uint64 { return r.nextID }

func (r *Registry) Price(id uint64) (uint64, error) {
	st, err := r.Get(id)
	if err != nil {
		return 0, err
	}
	return st.PricePerUnit, nil
}

func (r *Registry) Capacity(id uint64) (uint64, error) {
	st, err := r.Get(id)
	if err != nil {
		return 0, err
	}
	return st.Capacity, nil
}

func (r *Registry) Owner(id uint64) (engine.Address, error) {
	st, err := r.Get(id)
	if err != nil {
		return "", err
	}
	return st.Owner, nil
}

// Location returns latitude and longitude in microdegrees.
func (r *Registry) Location(id uint64) (int64, int64, error) {
	st, err := r.Get(id)
	if err != nil {
		return 0, 0, err
	}
	return st.LatitudeMicro, st.LongitudeMicro, nil
}

func (r *Registry) DeviceAddress(id uint64) (string, error) {
	st, err := r.Get(id)
	if err != nil {
		return "", err
	}
	return st.DeviceAddress, nil
}
