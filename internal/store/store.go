// Package store defines the persistence interface for the escrow engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/tradepost/escrow-engine/internal/model"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a create collides with an existing entity.
	ErrConflict = errors.New("store: already exists")

	// ErrOutOfStock is returned by DecrementProductQuantity when the
	// product has fewer units than requested. The product is unchanged.
	ErrOutOfStock = errors.New("store: insufficient product quantity")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. Serialization of mutations is
// the caller's job (per-entity locks); the store only guarantees that each
// individual method is atomic.
type Store interface {
	// --- Accounts ---

	// CreateAccount persists a new account.
	CreateAccount(ctx context.Context, a *model.Account) error

	// GetAccount retrieves an account by id.
	GetAccount(ctx context.Context, id string) (*model.Account, error)

	// UpdateAccount saves account changes (freeze flag).
	UpdateAccount(ctx context.Context, a *model.Account) error

	// --- Wallets & ledger ---

	// CreateWallet persists a new zero-balance wallet.
	CreateWallet(ctx context.Context, w *model.Wallet) error

	// GetWallet retrieves the wallet owned by accountID.
	GetWallet(ctx context.Context, accountID string) (*model.Wallet, error)

	// ApplyWalletChange saves the updated wallet and appends its explaining
	// transaction as one atomic unit.
	ApplyWalletChange(ctx context.Context, w *model.Wallet, txn *model.Transaction) error

	// GetTransactions returns a wallet's ledger entries newest first, plus
	// the total count for pagination.
	GetTransactions(ctx context.Context, accountID string, offset, limit int) ([]model.Transaction, int, error)

	// --- Products ---

	CreateProduct(ctx context.Context, p *model.Product) error
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	UpdateProduct(ctx context.Context, p *model.Product) error
	ListProducts(ctx context.Context, offset, limit int) ([]model.Product, int, error)

	// DecrementProductQuantity atomically subtracts qty from a product's
	// stock, failing with ErrOutOfStock rather than going negative.
	DecrementProductQuantity(ctx context.Context, id string, qty int) error

	// RestoreProductQuantity adds stock back after a failed sub-order.
	RestoreProductQuantity(ctx context.Context, id string, qty int) error

	// --- Orders ---

	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	UpdateOrder(ctx context.Context, o *model.Order) error

	// ListOrdersByBuyer returns a buyer's orders newest first, optionally
	// filtered by status ("" for all).
	ListOrdersByBuyer(ctx context.Context, buyerID string, status model.OrderStatus) ([]model.Order, error)

	// ListOrdersBySeller returns orders containing the seller's items.
	ListOrdersBySeller(ctx context.Context, sellerID string, status model.OrderStatus) ([]model.Order, error)

	// --- Disputes ---

	CreateDispute(ctx context.Context, d *model.Dispute) error
	GetDispute(ctx context.Context, id string) (*model.Dispute, error)

	// GetOpenDisputeByOrder returns the order's unresolved dispute, or
	// ErrNotFound when none is open.
	GetOpenDisputeByOrder(ctx context.Context, orderID string) (*model.Dispute, error)

	UpdateDispute(ctx context.Context, d *model.Dispute) error

	// ListDisputes returns disputes where accountID is a participant,
	// newest first; accountID "" returns all (admin view).
	ListDisputes(ctx context.Context, accountID string) ([]model.Dispute, error)

	// AppendDisputeMessage appends to the dispute's thread, assigning the
	// next monotonically increasing Seq.
	AppendDisputeMessage(ctx context.Context, m *model.DisputeMessage) error

	// ListDisputeMessages returns up to limit messages with Seq > afterSeq
	// in ascending Seq order, so readers can resume where they left off.
	ListDisputeMessages(ctx context.Context, disputeID string, afterSeq int64, limit int) ([]model.DisputeMessage, error)

	// --- Payouts ---

	CreatePayout(ctx context.Context, p *model.Payout) error
	GetPayout(ctx context.Context, id string) (*model.Payout, error)
	UpdatePayout(ctx context.Context, p *model.Payout) error
	ListPayoutsBySeller(ctx context.Context, sellerID string) ([]model.Payout, error)

	// ClaimPendingPayouts atomically moves up to limit pending payouts to
	// processing and returns them, so only one worker pass handles each.
	ClaimPendingPayouts(ctx context.Context, limit int) ([]model.Payout, error)

	// --- Admin ---

	PlatformStats(ctx context.Context) (*model.PlatformStats, error)
}
