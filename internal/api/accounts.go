package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradepost/escrow-engine/internal/model"
)

type createAccountRequest struct {
	Email    string     `json:"email"`
	Username string     `json:"username"`
	Role     model.Role `json:"role"`
}

// CreateAccount registers a new account. The wallet is created lazily on
// first use.
func (s *Service) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Username == "" {
		writeError(w, "email and username are required", http.StatusBadRequest)
		return
	}
	switch req.Role {
	case "":
		req.Role = model.RoleBuyer
	case model.RoleBuyer, model.RoleSeller, model.RoleAdmin:
	default:
		writeError(w, "invalid role", http.StatusBadRequest)
		return
	}

	a := &model.Account{
		ID:        uuid.New().String(),
		Email:     req.Email,
		Username:  req.Username,
		Role:      req.Role,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateAccount(r.Context(), a); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, a, http.StatusCreated)
}

// GetWallet returns the actor's wallet, creating it on first access.
func (s *Service) GetWallet(w http.ResponseWriter, r *http.Request) {
	wal, err := s.ledger.Wallet(r.Context(), actor(r).ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, wal, http.StatusOK)
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"payment_method"`
}

// Deposit credits external funds into the actor's spendable balance.
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	act := actor(r)
	if !checkActive(w, act) {
		return
	}
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Method == "" {
		req.Method = "card"
	}
	txn, err := s.ledger.Deposit(r.Context(), act.ID, req.Amount, req.Method)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, txn, http.StatusCreated)
}

type transactionPage struct {
	Items  []model.Transaction `json:"items"`
	Total  int                 `json:"total"`
	Offset int                 `json:"offset"`
	Limit  int                 `json:"limit"`
}

// ListTransactions returns a page of the actor's ledger, newest first.
func (s *Service) ListTransactions(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r, 50)
	items, total, err := s.ledger.Transactions(r.Context(), actor(r).ID, offset, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, transactionPage{Items: items, Total: total, Offset: offset, Limit: limit}, http.StatusOK)
}
