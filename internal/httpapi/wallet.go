package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mktetts/sei-solar-depin/internal/engine"
)

type moveFundsReq struct {
	User   engine.Address `json:"user"`
	Amount uint64         `json:"amount"`
}

func (s *Server) Deposit(w http.ResponseWriter, r *http.Request) {
	var req moveFundsReq
	if !decode(w, r, &req) {
		return
	}
	if err := s.Node.Deposit(r.Context(), req.User, req.Amount); err != nil {
		s.Met.OperationErrs.WithLabelValues("wallet.deposit").Inc()
		writeErr(w, err)
		return
	}
	s.Met.Operations.WithLabelValues("wallet.deposit").Inc()
	s.Met.HeldValue.Set(float64(s.Node.Held()))
	writeJSON(w, http.StatusOK, map[string]any{"user": req.User, "balance": s.Node.Balance(req.User)})
}

func (s *Server) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req moveFundsReq
	if !decode(w, r, &req) {
		return
	}
	if err := s.Node.Withdraw(r.Context(), req.User, req.Amount); err != nil {
		s.Met.OperationErrs.WithLabelValues("wallet.withdraw").Inc()
		writeErr(w, err)
		return
	}
	s.Met.Operations.WithLabelValues("wallet.withdraw").Inc()
	s.Met.HeldValue.Set(float64(s.Node.Held()))
	writeJSON(w, http.StatusOK, map[string]any{"user": req.User, "balance": s.Node.Balance(req.User)})
}

func (s *Server) ChangeOperator(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Next engine.Address `json:"next"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.Node.ChangeOperator(r.Context(), req.Next); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operator": s.Node.Operator()})
}

func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request) {
	user := engine.Address(chi.URLParam(r, "user"))
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "balance": s.Node.Balance(user)})
}

func (s *Server) GetHeld(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"operator": s.Node.Operator(),
		"held":     s.Node.Held(),
	})
}

func (s *Server) Executions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Node.Executions())
}

func (s *Server) Costs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"estimatedCost": s.Node.EstimatedCost(),
		"costs":         s.Node.Costs(),
	})
}
