package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradepost/escrow-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot read paths: wallets, products, and accounts. Writes go
// to the primary store and invalidate the cache; everything money-critical
// reads through to the primary on a miss.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Accounts ---

func (s *CachedStore) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.CreateAccount(ctx, a); err != nil {
		return err
	}
	s.cache(ctx, accountKey(a.ID), a)
	return nil
}

func (s *CachedStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	var a model.Account
	if s.lookup(ctx, accountKey(id), &a) {
		return &a, nil
	}
	got, err := s.primary.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, accountKey(id), got)
	return got, nil
}

func (s *CachedStore) UpdateAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.UpdateAccount(ctx, a); err != nil {
		return err
	}
	s.rdb.Del(ctx, accountKey(a.ID))
	return nil
}

// --- Wallets & ledger ---

func (s *CachedStore) CreateWallet(ctx context.Context, w *model.Wallet) error {
	if err := s.primary.CreateWallet(ctx, w); err != nil {
		return err
	}
	s.cache(ctx, walletKey(w.AccountID), w)
	return nil
}

func (s *CachedStore) GetWallet(ctx context.Context, accountID string) (*model.Wallet, error) {
	var w model.Wallet
	if s.lookup(ctx, walletKey(accountID), &w) {
		return &w, nil
	}
	got, err := s.primary.GetWallet(ctx, accountID)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, walletKey(accountID), got)
	return got, nil
}

func (s *CachedStore) ApplyWalletChange(ctx context.Context, w *model.Wallet, txn *model.Transaction) error {
	if err := s.primary.ApplyWalletChange(ctx, w, txn); err != nil {
		return err
	}
	// Invalidate rather than write the new value; the next read
	// re-populates from the source of truth.
	s.rdb.Del(ctx, walletKey(w.AccountID))
	return nil
}

func (s *CachedStore) GetTransactions(ctx context.Context, accountID string, offset, limit int) ([]model.Transaction, int, error) {
	return s.primary.GetTransactions(ctx, accountID, offset, limit)
}

// --- Products ---

func (s *CachedStore) CreateProduct(ctx context.Context, p *model.Product) error {
	if err := s.primary.CreateProduct(ctx, p); err != nil {
		return err
	}
	s.cache(ctx, productKey(p.ID), p)
	return nil
}

func (s *CachedStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	if s.lookup(ctx, productKey(id), &p) {
		return &p, nil
	}
	got, err := s.primary.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, productKey(id), got)
	return got, nil
}

func (s *CachedStore) UpdateProduct(ctx context.Context, p *model.Product) error {
	if err := s.primary.UpdateProduct(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, productKey(p.ID))
	return nil
}

func (s *CachedStore) ListProducts(ctx context.Context, offset, limit int) ([]model.Product, int, error) {
	return s.primary.ListProducts(ctx, offset, limit)
}

func (s *CachedStore) DecrementProductQuantity(ctx context.Context, id string, qty int) error {
	if err := s.primary.DecrementProductQuantity(ctx, id, qty); err != nil {
		return err
	}
	s.rdb.Del(ctx, productKey(id))
	return nil
}

func (s *CachedStore) RestoreProductQuantity(ctx context.Context, id string, qty int) error {
	if err := s.primary.RestoreProductQuantity(ctx, id, qty); err != nil {
		return err
	}
	s.rdb.Del(ctx, productKey(id))
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) CreateOrder(ctx context.Context, o *model.Order) error {
	return s.primary.CreateOrder(ctx, o)
}

func (s *CachedStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return s.primary.GetOrder(ctx, id)
}

func (s *CachedStore) UpdateOrder(ctx context.Context, o *model.Order) error {
	return s.primary.UpdateOrder(ctx, o)
}

func (s *CachedStore) ListOrdersByBuyer(ctx context.Context, buyerID string, status model.OrderStatus) ([]model.Order, error) {
	return s.primary.ListOrdersByBuyer(ctx, buyerID, status)
}

func (s *CachedStore) ListOrdersBySeller(ctx context.Context, sellerID string, status model.OrderStatus) ([]model.Order, error) {
	return s.primary.ListOrdersBySeller(ctx, sellerID, status)
}

func (s *CachedStore) CreateDispute(ctx context.Context, d *model.Dispute) error {
	return s.primary.CreateDispute(ctx, d)
}

func (s *CachedStore) GetDispute(ctx context.Context, id string) (*model.Dispute, error) {
	return s.primary.GetDispute(ctx, id)
}

func (s *CachedStore) GetOpenDisputeByOrder(ctx context.Context, orderID string) (*model.Dispute, error) {
	return s.primary.GetOpenDisputeByOrder(ctx, orderID)
}

func (s *CachedStore) UpdateDispute(ctx context.Context, d *model.Dispute) error {
	return s.primary.UpdateDispute(ctx, d)
}

func (s *CachedStore) ListDisputes(ctx context.Context, accountID string) ([]model.Dispute, error) {
	return s.primary.ListDisputes(ctx, accountID)
}

func (s *CachedStore) AppendDisputeMessage(ctx context.Context, m *model.DisputeMessage) error {
	return s.primary.AppendDisputeMessage(ctx, m)
}

func (s *CachedStore) ListDisputeMessages(ctx context.Context, disputeID string, afterSeq int64, limit int) ([]model.DisputeMessage, error) {
	return s.primary.ListDisputeMessages(ctx, disputeID, afterSeq, limit)
}

func (s *CachedStore) CreatePayout(ctx context.Context, p *model.Payout) error {
	return s.primary.CreatePayout(ctx, p)
}

func (s *CachedStore) GetPayout(ctx context.Context, id string) (*model.Payout, error) {
	return s.primary.GetPayout(ctx, id)
}

func (s *CachedStore) UpdatePayout(ctx context.Context, p *model.Payout) error {
	return s.primary.UpdatePayout(ctx, p)
}

func (s *CachedStore) ListPayoutsBySeller(ctx context.Context, sellerID string) ([]model.Payout, error) {
	return s.primary.ListPayoutsBySeller(ctx, sellerID)
}

func (s *CachedStore) ClaimPendingPayouts(ctx context.Context, limit int) ([]model.Payout, error) {
	return s.primary.ClaimPendingPayouts(ctx, limit)
}

func (s *CachedStore) PlatformStats(ctx context.Context) (*model.PlatformStats, error) {
	return s.primary.PlatformStats(ctx)
}

// --- Cache helpers ---

// lookup reads a cached value into dst, reporting whether it was found.
func (s *CachedStore) lookup(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func accountKey(id string) string { return fmt.Sprintf("account:%s", id) }
func walletKey(id string) string  { return fmt.Sprintf("wallet:%s", id) }
func productKey(id string) string { return fmt.Sprintf("product:%s", id) }
