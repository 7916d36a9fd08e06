package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type payoutRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
	Notes  string          `json:"notes"`
}

// RequestPayout reserves pending earnings and queues a payout for the
// background worker.
func (s *Service) RequestPayout(w http.ResponseWriter, r *http.Request) {
	act := actor(r)
	if !checkActive(w, act) {
		return
	}
	var req payoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	po, err := s.payouts.Request(r.Context(), act, req.Amount, req.Method, req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if s.hub != nil {
		s.hub.PayoutStatus(po.ID, po.Status, po.Amount)
	}
	writeJSON(w, po, http.StatusCreated)
}

// ListPayouts returns the actor's payouts, newest first.
func (s *Service) ListPayouts(w http.ResponseWriter, r *http.Request) {
	payouts, err := s.payouts.List(r.Context(), actor(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, payouts, http.StatusOK)
}

// GetPayout returns one payout for its seller or an admin.
func (s *Service) GetPayout(w http.ResponseWriter, r *http.Request) {
	po, err := s.payouts.Get(r.Context(), actor(r), chi.URLParam(r, "payoutID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, po, http.StatusOK)
}
