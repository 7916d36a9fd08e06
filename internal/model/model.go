// Package model defines the core domain types shared across the escrow engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role determines which operations an account may perform. Roles expand
// permissions; they never change ownership of an entity.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Account identifies a user. Identity is immutable; each account owns
// exactly one Wallet, created lazily on first use.
type Account struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Username  string    `json:"username" db:"username"`
	Role      Role      `json:"role" db:"role"`
	Frozen    bool      `json:"frozen" db:"frozen"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Wallet holds an account's funds. Balance is spendable; PendingBalance is
// seller earnings released from escrow but not yet paid out. Both are
// always >= 0, and every change to either is explained by exactly one
// Transaction.
type Wallet struct {
	AccountID      string          `json:"account_id" db:"account_id"`
	Balance        decimal.Decimal `json:"balance" db:"balance"`
	PendingBalance decimal.Decimal `json:"pending_balance" db:"pending_balance"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TxnDeposit         TransactionType = "deposit"
	TxnPurchase        TransactionType = "purchase"
	TxnEscrowRelease   TransactionType = "escrow_release"
	TxnEscrowRefund    TransactionType = "escrow_refund"
	TxnPayout          TransactionType = "payout"
	TxnRefundCredit    TransactionType = "refund_credit"
	TxnAdminAdjustment TransactionType = "admin_adjustment"
)

// Transaction is an immutable ledger entry. Once created, these are never
// modified or deleted. Amount is signed: positive credits the wallet,
// negative debits it. BalanceAfter records the wallet's Balance (not
// PendingBalance) immediately after the entry was applied; replaying all
// entries for a wallet in creation order reproduces its current Balance.
type Transaction struct {
	ID            string          `json:"id" db:"id"`
	AccountID     string          `json:"account_id" db:"account_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Type          TransactionType `json:"transaction_type" db:"transaction_type"`
	ReferenceID   string          `json:"reference_id,omitempty" db:"reference_id"`
	ReferenceType string          `json:"reference_type,omitempty" db:"reference_type"`
	Description   string          `json:"description,omitempty" db:"description"`
	BalanceAfter  decimal.Decimal `json:"balance_after" db:"balance_after"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// OrderStatus is the order state machine's state set.
type OrderStatus string

const (
	OrderPendingPayment OrderStatus = "pending_payment"
	OrderPaid           OrderStatus = "paid"
	OrderShipped        OrderStatus = "shipped"
	OrderDelivered      OrderStatus = "delivered"
	OrderCompleted      OrderStatus = "completed"
	OrderCancelled      OrderStatus = "cancelled"
	OrderDisputed       OrderStatus = "disputed"
	OrderRefunded       OrderStatus = "refunded"
)

// Order is created per seller at checkout and retained forever as history.
// TotalAmount is frozen at creation; later product price edits never
// change it.
type Order struct {
	ID              string          `json:"id" db:"id"`
	BuyerID         string          `json:"buyer_id" db:"buyer_id"`
	Status          OrderStatus     `json:"status" db:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount" db:"total_amount"`
	ShippingAddress string          `json:"shipping_address,omitempty" db:"shipping_address"`
	TrackingNumber  string          `json:"tracking_number,omitempty" db:"tracking_number"`
	Notes           string          `json:"notes,omitempty" db:"notes"`
	Items           []OrderItem     `json:"items"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// SellerID returns the seller owning this order's items. Orders are
// created one per seller at checkout, so the first item is authoritative.
func (o *Order) SellerID() string {
	if len(o.Items) == 0 {
		return ""
	}
	return o.Items[0].SellerID
}

// OrderItem snapshots one product line at order time. UnitPrice is the
// product's price at the moment of checkout.
type OrderItem struct {
	ID        string          `json:"id" db:"id"`
	OrderID   string          `json:"order_id" db:"order_id"`
	ProductID string          `json:"product_id" db:"product_id"`
	SellerID  string          `json:"seller_id" db:"seller_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
}

// DisputeStatus is the dispute lifecycle state set.
type DisputeStatus string

const (
	DisputeOpen           DisputeStatus = "open"
	DisputeUnderReview    DisputeStatus = "under_review"
	DisputeResolvedBuyer  DisputeStatus = "resolved_buyer"
	DisputeResolvedSeller DisputeStatus = "resolved_seller"
	DisputeClosed         DisputeStatus = "closed"
)

// Resolved reports whether the dispute has reached a terminal state.
func (s DisputeStatus) Resolved() bool {
	return s == DisputeResolvedBuyer || s == DisputeResolvedSeller || s == DisputeClosed
}

// Dispute is opened by a buyer against exactly one order. At most one
// unresolved dispute may exist per order at a time.
type Dispute struct {
	ID           string        `json:"id" db:"id"`
	OrderID      string        `json:"order_id" db:"order_id"`
	BuyerID      string        `json:"buyer_id" db:"buyer_id"`
	SellerID     string        `json:"seller_id" db:"seller_id"`
	Reason       string        `json:"reason" db:"reason"`
	Status       DisputeStatus `json:"status" db:"status"`
	AdminNotes   string        `json:"admin_notes,omitempty" db:"admin_notes"`
	Resolution   string        `json:"resolution,omitempty" db:"resolution"`
	ResolvedByID string        `json:"resolved_by_id,omitempty" db:"resolved_by_id"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	ResolvedAt   *time.Time    `json:"resolved_at,omitempty" db:"resolved_at"`
}

// DisputeMessage is one entry in a dispute's append-only thread. Seq is a
// per-dispute monotonically increasing position, which makes the thread a
// restartable sequence for paginated readers.
type DisputeMessage struct {
	ID        string    `json:"id" db:"id"`
	DisputeID string    `json:"dispute_id" db:"dispute_id"`
	Seq       int64     `json:"seq" db:"seq"`
	SenderID  string    `json:"sender_id" db:"sender_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PayoutStatus is the payout lifecycle state set.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

// Payout converts a seller's pending earnings into an external transfer.
// The amount is reserved from the wallet's pending balance at request
// time, not at completion.
type Payout struct {
	ID          string          `json:"id" db:"id"`
	SellerID    string          `json:"seller_id" db:"seller_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Status      PayoutStatus    `json:"status" db:"status"`
	Method      string          `json:"method" db:"method"`
	Reference   string          `json:"reference,omitempty" db:"reference"`
	Notes       string          `json:"notes,omitempty" db:"notes"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// Product is a read-only source of price and stock at checkout time.
// Quantity is decremented on purchase with the same atomicity guarantee
// as a wallet debit, so the last unit can only be sold once.
type Product struct {
	ID          string          `json:"id" db:"id"`
	SellerID    string          `json:"seller_id" db:"seller_id"`
	Title       string          `json:"title" db:"title"`
	Description string          `json:"description,omitempty" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Quantity    int             `json:"quantity" db:"quantity"`
	Category    string          `json:"category,omitempty" db:"category"`
	Active      bool            `json:"active" db:"active"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// PlatformStats is the admin dashboard summary.
type PlatformStats struct {
	TotalAccounts int `json:"total_accounts"`
	TotalProducts int `json:"total_products"`
	TotalOrders   int `json:"total_orders"`
	OpenDisputes  int `json:"open_disputes"`
}
