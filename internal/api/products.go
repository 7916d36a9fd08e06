package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradepost/escrow-engine/internal/model"
)

type createProductRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Category    string          `json:"category"`
}

// CreateProduct lists a new product. Sellers and admins only.
func (s *Service) CreateProduct(w http.ResponseWriter, r *http.Request) {
	act := actor(r)
	if act.Role != model.RoleSeller && act.Role != model.RoleAdmin {
		writeError(w, "only sellers can list products", http.StatusForbidden)
		return
	}
	if !checkActive(w, act) {
		return
	}
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		writeError(w, "title is required", http.StatusBadRequest)
		return
	}
	if req.Price.LessThanOrEqual(decimal.Zero) {
		writeError(w, "price must be positive", http.StatusBadRequest)
		return
	}
	if req.Quantity < 0 {
		writeError(w, "quantity must not be negative", http.StatusBadRequest)
		return
	}

	p := &model.Product{
		ID:          uuid.New().String(),
		SellerID:    act.ID,
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price.Round(2),
		Quantity:    req.Quantity,
		Category:    req.Category,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateProduct(r.Context(), p); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, p, http.StatusCreated)
}

type updateProductRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Quantity    *int             `json:"quantity"`
	Category    *string          `json:"category"`
	Active      *bool            `json:"active"`
}

// UpdateProduct edits a listing. Owner or admin only. Price edits never
// touch existing orders; their totals were frozen at checkout.
func (s *Service) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	act := actor(r)
	p, err := s.store.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if act.Role != model.RoleAdmin && p.SellerID != act.ID {
		writeError(w, "access denied", http.StatusForbidden)
		return
	}

	var req updateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title != nil {
		p.Title = *req.Title
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Price != nil {
		if req.Price.LessThanOrEqual(decimal.Zero) {
			writeError(w, "price must be positive", http.StatusBadRequest)
			return
		}
		p.Price = req.Price.Round(2)
	}
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			writeError(w, "quantity must not be negative", http.StatusBadRequest)
			return
		}
		p.Quantity = *req.Quantity
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	if req.Active != nil {
		p.Active = *req.Active
	}

	if err := s.store.UpdateProduct(r.Context(), p); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, p, http.StatusOK)
}

type productPage struct {
	Items  []model.Product `json:"items"`
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Limit  int             `json:"limit"`
}

// ListProducts returns a page of listings. Public.
func (s *Service) ListProducts(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r, 50)
	items, total, err := s.store.ListProducts(r.Context(), offset, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, productPage{Items: items, Total: total, Offset: offset, Limit: limit}, http.StatusOK)
}

// GetProduct returns one listing. Public.
func (s *Service) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, p, http.StatusOK)
}
