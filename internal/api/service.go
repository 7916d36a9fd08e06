// Package api exposes the escrow engine over JSON/HTTP.
//
// Actor identity arrives on every request as the X-Account-ID header set
// by the auth front end; token issuance is out of scope. All core
// operations receive the resolved actor explicitly; the engine holds no
// ambient session state.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tradepost/escrow-engine/internal/checkout"
	"github.com/tradepost/escrow-engine/internal/dispute"
	"github.com/tradepost/escrow-engine/internal/events"
	"github.com/tradepost/escrow-engine/internal/keylock"
	"github.com/tradepost/escrow-engine/internal/model"
	"github.com/tradepost/escrow-engine/internal/order"
	"github.com/tradepost/escrow-engine/internal/payout"
	"github.com/tradepost/escrow-engine/internal/store"
	"github.com/tradepost/escrow-engine/internal/wallet"
)

// Service wires the engine's components to HTTP handlers.
type Service struct {
	store    store.Store
	ledger   *wallet.Ledger
	orders   *order.Service
	checkout *checkout.Orchestrator
	disputes *dispute.Engine
	payouts  *payout.Processor
	hub      *events.Hub
}

// NewService creates the HTTP service. Pass nil for hub if event
// broadcasting is not needed.
func NewService(st store.Store, ledger *wallet.Ledger, orders *order.Service, co *checkout.Orchestrator, disputes *dispute.Engine, payouts *payout.Processor, hub *events.Hub) *Service {
	return &Service{
		store:    st,
		ledger:   ledger,
		orders:   orders,
		checkout: co,
		disputes: disputes,
		payouts:  payouts,
		hub:      hub,
	}
}

// Routes mounts all endpoints on the router.
func (s *Service) Routes(r chi.Router) {
	r.Post("/accounts", s.CreateAccount)
	r.Get("/products", s.ListProducts)
	r.Get("/products/{productID}", s.GetProduct)
	if s.hub != nil {
		r.Get("/events", s.hub.HandleWS)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.withActor)

		r.Get("/wallet", s.GetWallet)
		r.Post("/wallet/deposit", s.Deposit)
		r.Get("/wallet/transactions", s.ListTransactions)

		r.Post("/orders", s.Checkout)
		r.Get("/orders", s.ListOrders)
		r.Get("/orders/seller", s.ListSellerOrders)
		r.Get("/orders/{orderID}", s.GetOrder)
		r.Put("/orders/{orderID}/ship", s.ShipOrder)
		r.Put("/orders/{orderID}/confirm-delivery", s.ConfirmDelivery)
		r.Put("/orders/{orderID}/complete", s.CompleteOrder)
		r.Put("/orders/{orderID}/cancel", s.CancelOrder)

		r.Post("/disputes", s.OpenDispute)
		r.Get("/disputes", s.ListDisputes)
		r.Get("/disputes/{disputeID}", s.GetDispute)
		r.Post("/disputes/{disputeID}/messages", s.AddDisputeMessage)
		r.Get("/disputes/{disputeID}/messages", s.ListDisputeMessages)

		r.Post("/payouts", s.RequestPayout)
		r.Get("/payouts", s.ListPayouts)
		r.Get("/payouts/{payoutID}", s.GetPayout)

		r.Post("/products", s.CreateProduct)
		r.Put("/products/{productID}", s.UpdateProduct)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Put("/disputes/{disputeID}/review", s.BeginReview)
			r.Put("/disputes/{disputeID}/resolve", s.ResolveDispute)
			r.Post("/accounts/{accountID}/wallet/adjust", s.AdjustWallet)
			r.Put("/accounts/{accountID}/freeze", s.FreezeAccount)
			r.Put("/accounts/{accountID}/unfreeze", s.UnfreezeAccount)
			r.Get("/stats", s.Stats)
		})
	})
}

// --- Actor resolution ---

type ctxKey int

const actorKey ctxKey = 0

// withActor resolves the X-Account-ID header into an account and rejects
// requests without a valid one.
func (s *Service) withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Account-ID")
		if id == "" {
			writeError(w, "missing X-Account-ID header", http.StatusUnauthorized)
			return
		}
		act, err := s.store.GetAccount(r.Context(), id)
		if err != nil {
			writeError(w, "unknown account", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), actorKey, act)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Service) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor(r).Role != model.RoleAdmin {
			writeError(w, "admin access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// actor returns the resolved account; only valid behind withActor.
func actor(r *http.Request) *model.Account {
	return r.Context().Value(actorKey).(*model.Account)
}

// checkActive rejects frozen accounts from mutating operations.
func checkActive(w http.ResponseWriter, act *model.Account) bool {
	if act.Frozen {
		writeError(w, "account is frozen", http.StatusForbidden)
		return false
	}
	return true
}

// --- Response helpers ---

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON success response.
func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// pageParams reads offset/limit query parameters with a capped default.
func pageParams(r *http.Request, defaultLimit int) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = defaultLimit
	}
	return offset, limit
}

// writeDomainError maps the engine's error taxonomy to HTTP statuses.
// Busy is transient: clients should retry a bounded number of times.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, "not found", http.StatusNotFound)
	case errors.Is(err, order.ErrForbidden), errors.Is(err, payout.ErrNotSeller):
		writeError(w, "access denied", http.StatusForbidden)
	case errors.Is(err, wallet.ErrInsufficientFunds):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidQuantity),
		errors.Is(err, checkout.ErrOwnProduct),
		errors.Is(err, payout.ErrInvalidMethod):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, dispute.ErrAlreadyOpen),
		errors.Is(err, dispute.ErrClosed),
		errors.Is(err, dispute.ErrAlreadyResolved),
		errors.Is(err, dispute.ErrNotDisputable),
		errors.Is(err, store.ErrOutOfStock),
		errors.Is(err, store.ErrConflict):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, keylock.ErrBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, "busy, retry shortly", http.StatusServiceUnavailable)
	default:
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}
