package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tradepost/escrow-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu           sync.RWMutex
	accounts     map[string]*model.Account
	wallets      map[string]*model.Wallet
	transactions []model.Transaction
	products     map[string]*model.Product
	orders       map[string]*model.Order
	disputes     map[string]*model.Dispute
	messages     []model.DisputeMessage
	disputeSeq   map[string]int64
	payouts      map[string]*model.Payout
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[string]*model.Account),
		wallets:    make(map[string]*model.Wallet),
		products:   make(map[string]*model.Product),
		orders:     make(map[string]*model.Order),
		disputes:   make(map[string]*model.Dispute),
		disputeSeq: make(map[string]int64),
		payouts:    make(map[string]*model.Payout),
	}
}

// --- Accounts ---

func (s *MemoryStore) CreateAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.ID]; ok {
		return ErrConflict
	}
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) UpdateAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.ID]; !ok {
		return ErrNotFound
	}
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

// --- Wallets & ledger ---

func (s *MemoryStore) CreateWallet(_ context.Context, w *model.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[w.AccountID]; ok {
		return ErrConflict
	}
	cp := *w
	s.wallets[w.AccountID] = &cp
	return nil
}

func (s *MemoryStore) GetWallet(_ context.Context, accountID string) (*model.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *MemoryStore) ApplyWalletChange(_ context.Context, w *model.Wallet, txn *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[w.AccountID]; !ok {
		return ErrNotFound
	}
	cp := *w
	s.wallets[w.AccountID] = &cp
	s.transactions = append(s.transactions, *txn)
	return nil
}

func (s *MemoryStore) GetTransactions(_ context.Context, accountID string, offset, limit int) ([]model.Transaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []model.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- { // newest first
		if s.transactions[i].AccountID == accountID {
			all = append(all, s.transactions[i])
		}
	}
	return page(all, offset, limit), len(all), nil
}

// --- Products ---

func (s *MemoryStore) CreateProduct(_ context.Context, p *model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[p.ID]; ok {
		return ErrConflict
	}
	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id string) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpdateProduct(_ context.Context, p *model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *MemoryStore) ListProducts(_ context.Context, offset, limit int) ([]model.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]model.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Active {
			all = append(all, *p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, offset, limit), len(all), nil
}

// DecrementProductQuantity is the compare-and-decrement preventing oversell:
// the check and the subtraction happen under one lock.
func (s *MemoryStore) DecrementProductQuantity(_ context.Context, id string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return ErrNotFound
	}
	if p.Quantity < qty {
		return ErrOutOfStock
	}
	p.Quantity -= qty
	return nil
}

func (s *MemoryStore) RestoreProductQuantity(_ context.Context, id string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return ErrNotFound
	}
	p.Quantity += qty
	return nil
}

// --- Orders ---

func (s *MemoryStore) CreateOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[o.ID]; ok {
		return ErrConflict
	}
	s.orders[o.ID] = copyOrder(o)
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOrder(o), nil
}

func (s *MemoryStore) UpdateOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[o.ID]; !ok {
		return ErrNotFound
	}
	s.orders[o.ID] = copyOrder(o)
	return nil
}

func (s *MemoryStore) ListOrdersByBuyer(_ context.Context, buyerID string, status model.OrderStatus) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Order
	for _, o := range s.orders {
		if o.BuyerID != buyerID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		result = append(result, *copyOrder(o))
	}
	sortOrders(result)
	return result, nil
}

func (s *MemoryStore) ListOrdersBySeller(_ context.Context, sellerID string, status model.OrderStatus) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Order
	for _, o := range s.orders {
		if o.SellerID() != sellerID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		result = append(result, *copyOrder(o))
	}
	sortOrders(result)
	return result, nil
}

// --- Disputes ---

func (s *MemoryStore) CreateDispute(_ context.Context, d *model.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.disputes[d.ID]; ok {
		return ErrConflict
	}
	cp := *d
	s.disputes[d.ID] = &cp
	return nil
}

func (s *MemoryStore) GetDispute(_ context.Context, id string) (*model.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.disputes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) GetOpenDisputeByOrder(_ context.Context, orderID string) (*model.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.disputes {
		if d.OrderID == orderID && !d.Status.Resolved() {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateDispute(_ context.Context, d *model.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.disputes[d.ID]; !ok {
		return ErrNotFound
	}
	cp := *d
	s.disputes[d.ID] = &cp
	return nil
}

func (s *MemoryStore) ListDisputes(_ context.Context, accountID string) ([]model.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Dispute
	for _, d := range s.disputes {
		if accountID != "" && d.BuyerID != accountID && d.SellerID != accountID {
			continue
		}
		result = append(result, *d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *MemoryStore) AppendDisputeMessage(_ context.Context, m *model.DisputeMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.disputes[m.DisputeID]; !ok {
		return ErrNotFound
	}
	s.disputeSeq[m.DisputeID]++
	m.Seq = s.disputeSeq[m.DisputeID]
	s.messages = append(s.messages, *m)
	return nil
}

func (s *MemoryStore) ListDisputeMessages(_ context.Context, disputeID string, afterSeq int64, limit int) ([]model.DisputeMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.DisputeMessage
	for _, m := range s.messages {
		if m.DisputeID != disputeID || m.Seq <= afterSeq {
			continue
		}
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// --- Payouts ---

func (s *MemoryStore) CreatePayout(_ context.Context, p *model.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payouts[p.ID]; ok {
		return ErrConflict
	}
	cp := *p
	s.payouts[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPayout(_ context.Context, id string) (*model.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payouts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpdatePayout(_ context.Context, p *model.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payouts[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	s.payouts[p.ID] = &cp
	return nil
}

func (s *MemoryStore) ListPayoutsBySeller(_ context.Context, sellerID string) ([]model.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Payout
	for _, p := range s.payouts {
		if p.SellerID == sellerID {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *MemoryStore) ClaimPendingPayouts(_ context.Context, limit int) ([]model.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*model.Payout
	for _, p := range s.payouts {
		if p.Status == model.PayoutPending {
			pending = append(pending, p)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	now := time.Now().UTC()
	claimed := make([]model.Payout, 0, len(pending))
	for _, p := range pending {
		p.Status = model.PayoutProcessing
		p.ProcessedAt = &now
		claimed = append(claimed, *p)
	}
	return claimed, nil
}

// --- Admin ---

func (s *MemoryStore) PlatformStats(_ context.Context) (*model.PlatformStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &model.PlatformStats{
		TotalAccounts: len(s.accounts),
		TotalOrders:   len(s.orders),
	}
	for _, p := range s.products {
		if p.Active {
			stats.TotalProducts++
		}
	}
	for _, d := range s.disputes {
		if !d.Status.Resolved() {
			stats.OpenDisputes++
		}
	}
	return stats, nil
}

// --- Helpers ---

func copyOrder(o *model.Order) *model.Order {
	cp := *o
	cp.Items = append([]model.OrderItem(nil), o.Items...)
	return &cp
}

func sortOrders(orders []model.Order) {
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
}

func page[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return []T{}
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end]
}
