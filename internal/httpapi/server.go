package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mktetts/sei-solar-depin/internal/config"
	"github.com/mktetts/sei-solar-depin/internal/dispatcher"
	"github.com/mktetts/sei-solar-depin/internal/metrics"
	"github.com/mktetts/sei-solar-depin/internal/node"
)

type Server struct {
	Cfg    config.Config
	Node   *node.Node
	Device *dispatcher.Client
	Log    *logrus.Logger
	Met    *metrics.Metrics
}

func NewServer(cfg config.Config, n *node.Node, device *dispatcher.Client, log *logrus.Logger) *Server {
	return &Server{Cfg: cfg, Node: n, Device: device, Log: log, Met: metrics.Get()}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Mutations run as the operator; the bearer token is the proof.
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return RequireBearer(s.Cfg.OperatorToken, next) })
		r.Post("/v1/wallet/deposit", s.Deposit)
		r.Post("/v1/wallet/withdraw", s.Withdraw)
		r.Post("/v1/wallet/operator", s.ChangeOperator)
		r.Post("/v1/stations", s.RegisterStation)
		r.Put("/v1/stations/{stationId}/price", s.UpdatePrice)
		r.Put("/v1/stations/{stationId}/capacity", s.UpdateCapacity)
		r.Post("/v1/charging/prebook", s.Prebook)
		r.Post("/v1/charging/buy", s.BuyPower)
		r.Post("/v1/charging/stop", s.Stop)
		r.Post("/v1/earnings/withdraw", s.WithdrawEarnings)
	})

	r.Get("/v1/wallet", s.GetHeld)
	r.Get("/v1/wallet/{user}", s.GetBalance)
	r.Get("/v1/stations", s.ListStations)
	r.Get("/v1/stations/nearest", s.NearestStations)
	r.Get("/v1/stations/{stationId}", s.GetStation)
	r.Get("/v1/stations/{stationId}/bookings", s.StationBookings)
	r.Get("/v1/stations/{stationId}/prebookings", s.StationPrebookings)
	r.Get("/v1/stations/{stationId}/battery", s.StationBattery)
	r.Get("/v1/stations/{stationId}/estimate", s.StationEstimate)
	r.Get("/v1/charging/price", s.QuotePrice)
	r.Get("/v1/bookings/count", s.BookingCount)
	r.Get("/v1/bookings/{bookingId}", s.GetBooking)
	r.Get("/v1/users/{user}/bookings", s.UserBookings)
	r.Get("/v1/earnings/{owner}", s.OwnerEarnings)
	r.Get("/v1/engine/balance", s.EngineBalance)
	r.Get("/v1/costs", s.Costs)
	r.Get("/v1/executions", s.Executions)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.Handler())
	return r
}
