package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tradepost/escrow-engine/internal/checkout"
	"github.com/tradepost/escrow-engine/internal/model"
)

// Checkout places a multi-seller cart. Responds 201 even on partial
// failure; the result body reports which sub-orders failed and what was
// refunded.
func (s *Service) Checkout(w http.ResponseWriter, r *http.Request) {
	act := actor(r)
	if !checkActive(w, act) {
		return
	}
	var req checkout.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	result, err := s.checkout.Checkout(r.Context(), act, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if s.hub != nil {
		for _, o := range result.Orders {
			s.hub.OrderStatus(o.ID, o.Status, o.TotalAmount)
		}
	}
	writeJSON(w, result, http.StatusCreated)
}

// ListOrders returns the actor's purchases, optionally ?status= filtered.
func (s *Service) ListOrders(w http.ResponseWriter, r *http.Request) {
	status := model.OrderStatus(r.URL.Query().Get("status"))
	orders, err := s.orders.ListForBuyer(r.Context(), actor(r).ID, status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, orders, http.StatusOK)
}

// ListSellerOrders returns orders containing the actor's items.
func (s *Service) ListSellerOrders(w http.ResponseWriter, r *http.Request) {
	status := model.OrderStatus(r.URL.Query().Get("status"))
	orders, err := s.orders.ListForSeller(r.Context(), actor(r).ID, status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, orders, http.StatusOK)
}

// GetOrder returns one order for a participant or admin.
func (s *Service) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.orders.Get(r.Context(), actor(r), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, o, http.StatusOK)
}

type shipRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

// ShipOrder moves paid to shipped with a tracking number. Seller-only.
func (s *Service) ShipOrder(w http.ResponseWriter, r *http.Request) {
	act := actor(r)
	if !checkActive(w, act) {
		return
	}
	var req shipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	o, err := s.orders.Ship(r.Context(), act, chi.URLParam(r, "orderID"), req.TrackingNumber)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.broadcastOrder(o)
	writeJSON(w, o, http.StatusOK)
}

// ConfirmDelivery moves shipped to delivered. Buyer-only.
func (s *Service) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	act := actor(r)
	if !checkActive(w, act) {
		return
	}
	o, err := s.orders.ConfirmDelivery(r.Context(), act, chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.broadcastOrder(o)
	writeJSON(w, o, http.StatusOK)
}

// CompleteOrder moves delivered to completed, releasing escrow to the
// seller's pending balance. Buyer-only.
func (s *Service) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	act := actor(r)
	if !checkActive(w, act) {
		return
	}
	o, err := s.orders.Complete(r.Context(), act, chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.broadcastOrder(o)
	writeJSON(w, o, http.StatusOK)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder cancels a not-yet-shipped order, refunding the buyer when
// funds were already debited.
func (s *Service) CancelOrder(w http.ResponseWriter, r *http.Request) {
	act := actor(r)
	if !checkActive(w, act) {
		return
	}
	var req cancelRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	o, err := s.orders.Cancel(r.Context(), act, chi.URLParam(r, "orderID"), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.broadcastOrder(o)
	writeJSON(w, o, http.StatusOK)
}

func (s *Service) broadcastOrder(o *model.Order) {
	if s.hub != nil {
		s.hub.OrderStatus(o.ID, o.Status, o.TotalAmount)
	}
}
