package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type adjustWalletRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// AdjustWallet applies a signed admin correction to an account's balance.
func (s *Service) AdjustWallet(w http.ResponseWriter, r *http.Request) {
	var req adjustWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Description == "" {
		writeError(w, "description is required", http.StatusBadRequest)
		return
	}
	accountID := chi.URLParam(r, "accountID")
	if _, err := s.store.GetAccount(r.Context(), accountID); err != nil {
		writeDomainError(w, err)
		return
	}
	txn, err := s.ledger.AdminAdjust(r.Context(), accountID, req.Amount, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, txn, http.StatusCreated)
}

// FreezeAccount blocks an account from money-moving operations.
func (s *Service) FreezeAccount(w http.ResponseWriter, r *http.Request) {
	s.setFrozen(w, r, true)
}

// UnfreezeAccount lifts a freeze.
func (s *Service) UnfreezeAccount(w http.ResponseWriter, r *http.Request) {
	s.setFrozen(w, r, false)
}

func (s *Service) setFrozen(w http.ResponseWriter, r *http.Request, frozen bool) {
	a, err := s.store.GetAccount(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	a.Frozen = frozen
	if err := s.store.UpdateAccount(r.Context(), a); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, a, http.StatusOK)
}

// Stats returns the platform dashboard summary.
func (s *Service) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.PlatformStats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, stats, http.StatusOK)
}
