package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type openDisputeRequest struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// OpenDispute opens a dispute against an order. Buyer-only; the order
// moves to disputed and its escrow stays held.
func (s *Service) OpenDispute(w http.ResponseWriter, r *http.Request) {
	act := actor(r)
	if !checkActive(w, act) {
		return
	}
	var req openDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.OrderID == "" || req.Reason == "" {
		writeError(w, "order_id and reason are required", http.StatusBadRequest)
		return
	}
	d, err := s.disputes.Open(r.Context(), act, req.OrderID, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if s.hub != nil {
		s.hub.DisputeStatus(d.ID, d.Status)
	}
	writeJSON(w, d, http.StatusCreated)
}

// ListDisputes returns the actor's disputes; admins see all.
func (s *Service) ListDisputes(w http.ResponseWriter, r *http.Request) {
	disputes, err := s.disputes.List(r.Context(), actor(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, disputes, http.StatusOK)
}

// GetDispute returns one dispute for a participant or admin.
func (s *Service) GetDispute(w http.ResponseWriter, r *http.Request) {
	d, err := s.disputes.Get(r.Context(), actor(r), chi.URLParam(r, "disputeID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, d, http.StatusOK)
}

type disputeMessageRequest struct {
	Content string `json:"content"`
}

// AddDisputeMessage appends to the dispute thread.
func (s *Service) AddDisputeMessage(w http.ResponseWriter, r *http.Request) {
	var req disputeMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		writeError(w, "content is required", http.StatusBadRequest)
		return
	}
	m, err := s.disputes.AddMessage(r.Context(), actor(r), chi.URLParam(r, "disputeID"), req.Content)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, m, http.StatusCreated)
}

// ListDisputeMessages returns thread messages after ?after_seq=, oldest
// first, up to ?limit=. Clients resume by passing the last seq they saw.
func (s *Service) ListDisputeMessages(w http.ResponseWriter, r *http.Request) {
	afterSeq, _ := strconv.ParseInt(r.URL.Query().Get("after_seq"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	msgs, err := s.disputes.Messages(r.Context(), actor(r), chi.URLParam(r, "disputeID"), afterSeq, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, msgs, http.StatusOK)
}

// BeginReview marks an open dispute as under review. Admin-only route.
func (s *Service) BeginReview(w http.ResponseWriter, r *http.Request) {
	d, err := s.disputes.BeginReview(r.Context(), actor(r), chi.URLParam(r, "disputeID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if s.hub != nil {
		s.hub.DisputeStatus(d.ID, d.Status)
	}
	writeJSON(w, d, http.StatusOK)
}

type resolveDisputeRequest struct {
	Resolution  string `json:"resolution"`
	AdminNotes  string `json:"admin_notes"`
	RefundBuyer bool   `json:"refund_buyer"`
}

// ResolveDispute settles a dispute and its order. Admin-only route.
func (s *Service) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	var req resolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	d, err := s.disputes.Resolve(r.Context(), actor(r), chi.URLParam(r, "disputeID"),
		req.Resolution, req.AdminNotes, req.RefundBuyer)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if s.hub != nil {
		s.hub.DisputeStatus(d.ID, d.Status)
	}
	writeJSON(w, d, http.StatusOK)
}
