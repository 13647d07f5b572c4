package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mktetts/sei-solar-depin/internal/engine"
	"github.com/mktetts/sei-solar-depin/internal/engine/booking"
)

type bookingView struct {
	ID            uint64         `json:"id"`
	User          engine.Address `json:"user"`
	StationID     uint64         `json:"stationId"`
	Units         uint64         `json:"units"`
	Rate          uint64         `json:"rate"`
	AmountPaid    uint64         `json:"amountPaid"`
	Status        string         `json:"status"`
	UnitsConsumed uint64         `json:"unitsConsumed"`
	Refund        uint64         `json:"refund"`
	CreatedAt     time.Time      `json:"createdAt"`
}

func viewBooking(b booking.Booking) bookingView {
	return bookingView{
		ID:            b.ID,
		User:          b.User,
		StationID:     b.StationID,
		Units:         b.Units,
		Rate:          b.Rate,
		AmountPaid:    b.AmountPaid,
		Status:        b.Status.String(),
		UnitsConsumed: b.UnitsConsumed,
		Refund:        b.Refund,
		CreatedAt:     b.CreatedAt,
	}
}

func (s *Server) QuotePrice(w http.ResponseWriter, r *http.Request) {
	stationID, err := queryUint(r, "stationId")
	if err != nil {
		http.Error(w, "bad stationId", http.StatusBadRequest)
		return
	}
	units, err := queryUint(r, "units")
	if err != nil {
		http.Error(w, "bad units", http.StatusBadRequest)
		return
	}
	rate, err := queryUint(r, "rate")
	if err != nil {
		http.Error(w, "bad rate", http.StatusBadRequest)
		return
	}
	price, err := s.Node.CalculatePrice(stationID, units, rate)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"price": price})
}

type prebookReq struct {
	User      engine.Address `json:"user"`
	StationID uint64         `json:"stationId"`
	Units     uint64         `json:"units"`
	Rate      uint64         `json:"rate"`
}

func (s *Server) Prebook(w http.ResponseWriter, r *http.Request) {
	var req prebookReq
	if !decode(w, r, &req) {
		return
	}
	id, err := s.Node.Prebook(r.Context(), req.User, req.StationID, req.Units, req.Rate)
	if err != nil {
		s.Met.OperationErrs.WithLabelValues("booking.prebook").Inc()
		writeErr(w, err)
		return
	}
	s.Met.Operations.WithLabelValues("booking.prebook").Inc()
	writeJSON(w, http.StatusCreated, map[string]any{"bookingId": id})
}

type buyPowerReq struct {
	User      engine.Address `json:"user"`
	StationID uint64         `json:"stationId"`
	Units     uint64         `json:"units"`
	Rate      uint64         `json:"rate"`
	Payment   uint64         `json:"payment"` // 0 means pay the quoted price
}

func (s *Server) BuyPower(w http.ResponseWriter, r *http.Request) {
	var req buyPowerReq
	if !decode(w, r, &req) {
		return
	}
	rcpt, err := s.Node.BuyPower(r.Context(), req.User, req.StationID, req.Units, req.Rate, req.Payment)
	if err != nil {
		s.Met.OperationErrs.WithLabelValues("booking.buyPower").Inc()
		writeErr(w, err)
		return
	}
	s.Met.Operations.WithLabelValues("booking.buyPower").Inc()
	s.Met.EngineFloat.Set(float64(s.Node.EngineBalance()))

	// The booking is committed regardless of device reachability.
	dispatched := false
	if err := s.Device.Dispatch(r.Context(), rcpt.Instruction); err != nil {
		s.Log.WithError(err).WithField("bookingId", rcpt.BookingID).Warn("toggle dispatch failed")
	} else {
		dispatched = true
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"bookingId":   rcpt.BookingID,
		"price":       rcpt.Price,
		"refund":      rcpt.Refund,
		"instruction": rcpt.Instruction,
		"dispatched":  dispatched,
	})
}

type stopReq struct {
	User engine.Address `json:"user"`

	// BookingID nil selects the user's most recent active paid booking.
	BookingID *uint64 `json:"bookingId"`

	// UnitsConsumed nil asks the station's device how much it delivered.
	UnitsConsumed *uint64 `json:"unitsConsumed"`
}

// Stop halts an active paid booking. When the caller omits unitsConsumed the
// device is stopped first and its delivered energy, rounded up to scaled
// units and capped at the booked amount, becomes the consumption figure.
func (s *Server) Stop(w http.ResponseWriter, r *http.Request) {
	var req stopReq
	if !decode(w, r, &req) {
		return
	}

	var target booking.Booking
	if req.BookingID != nil {
		b, err := s.Node.Booking(*req.BookingID)
		if err != nil {
			writeErr(w, err)
			return
		}
		target = b
	} else {
		all := s.Node.UserBookings(req.User)
		found := false
		for i := len(all) - 1; i >= 0; i-- {
			if all[i].Status == booking.StatusActive && all[i].AmountPaid > 0 {
				target = all[i]
				found = true
				break
			}
		}
		if !found {
			http.Error(w, "no active paid booking", http.StatusNotFound)
			return
		}
	}

	deviceStopped := false
	var consumed uint64
	if req.UnitsConsumed != nil {
		consumed = *req.UnitsConsumed
	} else {
		st, err := s.Node.Station(target.StationID)
		if err != nil {
			writeErr(w, err)
			return
		}
		res, err := s.Device.Stop(r.Context(), st.DeviceAddress)
		if err != nil {
			http.Error(w, "device unreachable", http.StatusBadGateway)
			return
		}
		deviceStopped = true
		consumed = res.UnitsScaled
		if consumed > target.Units {
			consumed = target.Units
		}
	}

	rcpt, err := s.Node.EmergencyStop(r.Context(), req.User, target.ID, consumed)
	if err != nil {
		s.Met.OperationErrs.WithLabelValues("booking.emergencyStop").Inc()
		writeErr(w, err)
		return
	}
	s.Met.Operations.WithLabelValues("booking.emergencyStop").Inc()
	s.Met.EngineFloat.Set(float64(s.Node.EngineBalance()))

	if !deviceStopped {
		if err := s.Device.Dispatch(r.Context(), rcpt.Instruction); err != nil {
			s.Log.WithError(err).WithField("bookingId", rcpt.BookingID).Warn("stop dispatch failed")
		} else {
			deviceStopped = true
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bookingId":     rcpt.BookingID,
		"unitsConsumed": consumed,
		"refund":        rcpt.Refund,
		"instruction":   rcpt.Instruction,
		"dispatched":    deviceStopped,
	})
}

func (s *Server) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := urlUint(r, "bookingId")
	if err != nil {
		http.Error(w, "bad booking id", http.StatusBadRequest)
		return
	}
	b, err := s.Node.Booking(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewBooking(b))
}

func (s *Server) UserBookings(w http.ResponseWriter, r *http.Request) {
	user := engine.Address(chi.URLParam(r, "user"))
	all := s.Node.UserBookings(user)
	out := make([]bookingView, 0, len(all))
	for _, b := range all {
		out = append(out, viewBooking(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) BookingCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"count": s.Node.BookingCount()})
}

func (s *Server) OwnerEarnings(w http.ResponseWriter, r *http.Request) {
	owner := engine.Address(chi.URLParam(r, "owner"))
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "earnings": s.Node.OwnerEarnings(owner)})
}

func (s *Server) WithdrawEarnings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner engine.Address `json:"owner"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, err := s.Node.WithdrawEarnings(r.Context(), req.Owner)
	if err != nil {
		s.Met.OperationErrs.WithLabelValues("booking.withdrawEarnings").Inc()
		writeErr(w, err)
		return
	}
	s.Met.Operations.WithLabelValues("booking.withdrawEarnings").Inc()
	s.Met.EngineFloat.Set(float64(s.Node.EngineBalance()))
	writeJSON(w, http.StatusOK, map[string]any{"owner": req.Owner, "amount": amount})
}

func (s *Server) EngineBalance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"balance": s.Node.EngineBalance()})
}
