package httpapi

import (
	"net/http"
	"time"

	"github.com/mktetts/sei-solar-depin/internal/engine"
	"github.com/mktetts/sei-solar-depin/internal/engine/station"
	"github.com/mktetts/sei-solar-depin/internal/geo"
)

type stationView struct {
	ID            uint64         `json:"id"`
	UniqueID      string         `json:"uniqueId"`
	DeviceAddress string         `json:"deviceAddress"`
	PricePerUnit  uint64         `json:"pricePerUnit"`
	Capacity      uint64         `json:"capacity"`
	Owner         engine.Address `json:"owner"`
	Address       string         `json:"address"`
	LatMicro      int64          `json:"latMicro"`
	LonMicro      int64          `json:"lonMicro"`
	CreatedAt     time.Time      `json:"createdAt"`
}

func viewStation(st station.Record) stationView {
	return stationView{
		ID:            st.ID,
		UniqueID:      st.UniqueID,
		DeviceAddress: st.DeviceAddress,
		PricePerUnit:  st.PricePerUnit,
		Capacity:      st.Capacity,
		Owner:         st.Owner,
		Address:       st.Address,
		LatMicro:      st.LatitudeMicro,
		LonMicro:      st.LongitudeMicro,
		CreatedAt:     st.CreatedAt,
	}
}

type registerStationReq struct {
	Owner         engine.Address `json:"owner"`
	UniqueID      string         `json:"uniqueId"`
	DeviceAddress string         `json:"deviceAddress"`
	PricePerUnit  uint64         `json:"pricePerUnit"`
	Capacity      uint64         `json:"capacity"`
	Address       string         `json:"address"`
	LatMicro      int64          `json:"latMicro"`
	LonMicro      int64          `json:"lonMicro"`
}

func (s *Server) RegisterStation(w http.ResponseWriter, r *http.Request) {
	var req registerStationReq
	if !decode(w, r, &req) {
		return
	}
	id, err := s.Node.RegisterStation(r.Context(), req.Owner, req.UniqueID, req.DeviceAddress,
		req.PricePerUnit, req.Capacity, req.Address, req.LatMicro, req.LonMicro)
	if err != nil {
		s.Met.OperationErrs.WithLabelValues("station.register").Inc()
		writeErr(w, err)
		return
	}
	s.Met.Operations.WithLabelValues("station.register").Inc()
	writeJSON(w, http.StatusCreated, map[string]any{"stationId": id})
}

func (s *Server) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	id, err := urlUint(r, "stationId")
	if err != nil {
		http.Error(w, "bad station id", http.StatusBadRequest)
		return
	}
	var req struct {
		Caller engine.Address `json:"caller"`
		Price  uint64         `json:"price"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.Node.UpdatePrice(r.Context(), req.Caller, id, req.Price); err != nil {
		s.Met.OperationErrs.WithLabelValues("station.updatePrice").Inc()
		writeErr(w, err)
		return
	}
	s.Met.Operations.WithLabelValues("station.updatePrice").Inc()
	st, err := s.Node.Station(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewStation(st))
}

func (s *Server) UpdateCapacity(w http.ResponseWriter, r *http.Request) {
	id, err := urlUint(r, "stationId")
	if err != nil {
		http.Error(w, "bad station id", http.StatusBadRequest)
		return
	}
	var req struct {
		Caller   engine.Address `json:"caller"`
		Capacity uint64         `json:"capacity"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.Node.UpdateCapacity(r.Context(), req.Caller, id, req.Capacity); err != nil {
		s.Met.OperationErrs.WithLabelValues("station.updateCapacity").Inc()
		writeErr(w, err)
		return
	}
	s.Met.Operations.WithLabelValues("station.updateCapacity").Inc()
	st, err := s.Node.Station(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewStation(st))
}

func (s *Server) GetStation(w http.ResponseWriter, r *http.Request) {
	id, err := urlUint(r, "stationId")
	if err != nil {
		http.Error(w, "bad station id", http.StatusBadRequest)
		return
	}
	st, err := s.Node.Station(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewStation(st))
}

func (s *Server) ListStations(w http.ResponseWriter, r *http.Request) {
	stations := s.Node.Stations()
	out := make([]stationView, 0, len(stations))
	for _, st := range stations {
		out = append(out, viewStation(st))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) NearestStations(w http.ResponseWriter, r *http.Request) {
	lat, err := queryInt(r, "lat")
	if err != nil {
		http.Error(w, "bad lat", http.StatusBadRequest)
		return
	}
	lon, err := queryInt(r, "lon")
	if err != nil {
		http.Error(w, "bad lon", http.StatusBadRequest)
		return
	}
	limit := 10
	if n, err := queryUint(r, "limit"); err == nil && n > 0 {
		limit = int(n)
	}

	type nearestView struct {
		stationView
		DistanceKm float64 `json:"distanceKm"`
	}
	ranked := geo.Nearest(s.Node.Stations(), lat, lon, limit)
	out := make([]nearestView, 0, len(ranked))
	for _, rk := range ranked {
		out = append(out, nearestView{stationView: viewStation(rk.Station), DistanceKm: rk.DistanceKm})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) StationBookings(w http.ResponseWriter, r *http.Request) {
	id, err := urlUint(r, "stationId")
	if err != nil {
		http.Error(w, "bad station id", http.StatusBadRequest)
		return
	}
	if _, err := s.Node.Station(id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Node.StationBookings(id))
}

func (s *Server) StationPrebookings(w http.ResponseWriter, r *http.Request) {
	id, err := urlUint(r, "stationId")
	if err != nil {
		http.Error(w, "bad station id", http.StatusBadRequest)
		return
	}
	if _, err := s.Node.Station(id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Node.StationPrebookings(id))
}

// StationBattery proxies the device's battery report.
func (s *Server) StationBattery(w http.ResponseWriter, r *http.Request) {
	id, err := urlUint(r, "stationId")
	if err != nil {
		http.Error(w, "bad station id", http.StatusBadRequest)
		return
	}
	st, err := s.Node.Station(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	raw, err := s.Device.Battery(r.Context(), st.DeviceAddress)
	if err != nil {
		http.Error(w, "device unreachable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

// StationEstimate proxies the device's charging-time estimate for a given
// energy amount and rate, both raw scaled integers.
func (s *Server) StationEstimate(w http.ResponseWriter, r *http.Request) {
	id, err := urlUint(r, "stationId")
	if err != nil {
		http.Error(w, "bad station id", http.StatusBadRequest)
		return
	}
	energy, err := queryUint(r, "energy")
	if err != nil {
		http.Error(w, "bad energy", http.StatusBadRequest)
		return
	}
	rate, err := queryUint(r, "rate")
	if err != nil {
		http.Error(w, "bad rate", http.StatusBadRequest)
		return
	}
	st, err := s.Node.Station(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	raw, err := s.Device.Estimate(r.Context(), st.DeviceAddress, energy, rate)
	if err != nil {
		http.Error(w, "device unreachable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}
