// Package checkout turns a multi-seller cart into per-seller orders.
//
// The flow is a saga, not one transaction: a single up-front debit covers
// the grand total, then each seller's sub-order commits independently. A
// sub-order that loses a stock race is compensated with a refund of its
// portion while the other sub-orders stand. The result reports exactly
// which sub-orders succeeded and which failed.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradepost/escrow-engine/internal/metrics"
	"github.com/tradepost/escrow-engine/internal/model"
	"github.com/tradepost/escrow-engine/internal/store"
	"github.com/tradepost/escrow-engine/internal/wallet"
)

var (
	// ErrEmptyCart is returned for a checkout with no items.
	ErrEmptyCart = errors.New("checkout: cart is empty")

	// ErrOwnProduct is returned when a buyer attempts to purchase their
	// own listing.
	ErrOwnProduct = errors.New("checkout: cannot purchase your own product")

	// ErrInvalidQuantity is returned for zero or negative line quantities.
	ErrInvalidQuantity = errors.New("checkout: quantity must be positive")
)

// CartItem is one validated cart line.
type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Request is a fully-formed checkout call. Cart staging happens client
// side; the engine only sees the final item list.
type Request struct {
	Items           []CartItem `json:"items"`
	ShippingAddress string     `json:"shipping_address,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

// Failure describes one sub-order that could not be created. Refunded
// reports whether its portion of the up-front debit made it back to the
// buyer; false means the compensating credit itself failed and the funds
// need operational follow-up.
type Failure struct {
	SellerID  string          `json:"seller_id"`
	ProductID string          `json:"product_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	Refunded  bool            `json:"refunded"`
}

// Result reports the outcome of a checkout so the caller can reconcile
// partial success.
type Result struct {
	CheckoutID    string          `json:"checkout_id"`
	Orders        []model.Order   `json:"orders"`
	Failures      []Failure       `json:"failures"`
	TotalDebited  decimal.Decimal `json:"total_debited"`
	TotalRefunded decimal.Decimal `json:"total_refunded"`
}

// Orchestrator coordinates the checkout saga.
type Orchestrator struct {
	store  store.Store
	ledger *wallet.Ledger
}

// NewOrchestrator creates a checkout orchestrator.
func NewOrchestrator(st store.Store, ledger *wallet.Ledger) *Orchestrator {
	return &Orchestrator{store: st, ledger: ledger}
}

// sellerGroup is one seller's slice of the cart with prices snapshotted
// at validation time.
type sellerGroup struct {
	sellerID string
	items    []model.OrderItem
	subtotal decimal.Decimal
}

// Checkout validates the cart, debits the grand total once, then creates
// one order per seller. If the debit fails nothing else happens; if a
// sub-order fails its stock and funds are compensated and the remaining
// sub-orders proceed.
func (c *Orchestrator) Checkout(ctx context.Context, buyer *model.Account, req Request) (*Result, error) {
	groups, grandTotal, err := c.validate(ctx, buyer, req)
	if err != nil {
		return nil, err
	}

	checkoutID := uuid.New().String()

	// One debit for the whole cart, before any order exists. Failure here
	// means zero side effects.
	if _, err := c.ledger.Debit(ctx, buyer.ID, grandTotal, model.TxnPurchase,
		checkoutID, "checkout", fmt.Sprintf("Purchase for checkout %s", checkoutID)); err != nil {
		return nil, err
	}

	result := &Result{
		CheckoutID:    checkoutID,
		Orders:        []model.Order{},
		Failures:      []Failure{},
		TotalDebited:  grandTotal,
		TotalRefunded: decimal.Zero,
	}

	for _, g := range groups {
		if failure := c.placeSubOrder(ctx, buyer, checkoutID, g, req); failure != nil {
			// Label cardinality stays bounded; free-form reasons collapse.
			label := "stock_error"
			if failure.Reason == "out of stock" {
				label = "out_of_stock"
			}
			metrics.CheckoutFailures.WithLabelValues(label).Inc()
			result.Failures = append(result.Failures, *failure)
			if failure.Refunded {
				result.TotalRefunded = result.TotalRefunded.Add(failure.Amount)
			}
			continue
		}
		o, err := c.createOrder(ctx, buyer, g, req)
		if err != nil {
			// Order row creation failed after stock was taken: give the
			// stock and the money back.
			refunded := c.compensate(ctx, buyer.ID, checkoutID, g, len(g.items)) == nil
			metrics.CheckoutFailures.WithLabelValues("order_create").Inc()
			result.Failures = append(result.Failures, Failure{
				SellerID: g.sellerID,
				Amount:   g.subtotal,
				Reason:   err.Error(),
				Refunded: refunded,
			})
			if refunded {
				result.TotalRefunded = result.TotalRefunded.Add(g.subtotal)
			}
			continue
		}
		metrics.OrdersPlaced.Inc()
		result.Orders = append(result.Orders, *o)
	}

	slog.Info("checkout finished",
		"checkout_id", checkoutID,
		"buyer", buyer.ID,
		"orders", len(result.Orders),
		"failures", len(result.Failures),
		"debited", grandTotal.String(),
		"refunded", result.TotalRefunded.String(),
	)
	return result, nil
}

// validate loads and checks every cart line, snapshots unit prices, and
// partitions the cart by seller. Sellers are processed in sorted order so
// partial-failure reports are deterministic.
func (c *Orchestrator) validate(ctx context.Context, buyer *model.Account, req Request) ([]sellerGroup, decimal.Decimal, error) {
	if len(req.Items) == 0 {
		return nil, decimal.Zero, ErrEmptyCart
	}

	bySeller := make(map[string]*sellerGroup)
	grandTotal := decimal.Zero

	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, decimal.Zero, ErrInvalidQuantity
		}
		p, err := c.store.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if !p.Active {
			return nil, decimal.Zero, fmt.Errorf("%w: product %s inactive", store.ErrNotFound, p.ID)
		}
		if p.SellerID == buyer.ID {
			return nil, decimal.Zero, ErrOwnProduct
		}

		g, ok := bySeller[p.SellerID]
		if !ok {
			g = &sellerGroup{sellerID: p.SellerID, subtotal: decimal.Zero}
			bySeller[p.SellerID] = g
		}
		subtotal := p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2)
		g.items = append(g.items, model.OrderItem{
			ProductID: p.ID,
			SellerID:  p.SellerID,
			Quantity:  line.Quantity,
			UnitPrice: p.Price,
		})
		g.subtotal = g.subtotal.Add(subtotal)
		grandTotal = grandTotal.Add(subtotal)
	}

	sellers := make([]string, 0, len(bySeller))
	for id := range bySeller {
		sellers = append(sellers, id)
	}
	sort.Strings(sellers)

	groups := make([]sellerGroup, 0, len(sellers))
	for _, id := range sellers {
		groups = append(groups, *bySeller[id])
	}
	return groups, grandTotal.Round(2), nil
}

// placeSubOrder takes stock for one seller group. On an out-of-stock race
// it rolls back the group's stock, refunds the group's portion, and
// returns the failure; nil means all stock was taken.
func (c *Orchestrator) placeSubOrder(ctx context.Context, buyer *model.Account, checkoutID string, g sellerGroup, _ Request) *Failure {
	for i, item := range g.items {
		if err := c.store.DecrementProductQuantity(ctx, item.ProductID, item.Quantity); err != nil {
			refunded := c.compensate(ctx, buyer.ID, checkoutID, g, i) == nil
			reason := "out of stock"
			if !errors.Is(err, store.ErrOutOfStock) {
				reason = err.Error()
			}
			return &Failure{
				SellerID:  g.sellerID,
				ProductID: item.ProductID,
				Amount:    g.subtotal,
				Reason:    reason,
				Refunded:  refunded,
			}
		}
	}
	return nil
}

// compensate undoes a failed sub-order: restore the first n decremented
// items and credit the group subtotal back to the buyer. The returned
// error reports a failed refund credit so callers never claim a refund
// that did not land.
func (c *Orchestrator) compensate(ctx context.Context, buyerID, checkoutID string, g sellerGroup, n int) error {
	for _, item := range g.items[:n] {
		if err := c.store.RestoreProductQuantity(ctx, item.ProductID, item.Quantity); err != nil {
			slog.Error("stock restore failed", "product", item.ProductID, "err", err)
		}
	}
	_, err := c.ledger.Credit(ctx, buyerID, g.subtotal, model.TxnEscrowRefund,
		checkoutID, "checkout", fmt.Sprintf("Refund for unavailable items in checkout %s", checkoutID))
	if err != nil {
		slog.Error("compensating refund failed", "buyer", buyerID, "checkout", checkoutID, "err", err)
	}
	return err
}

// createOrder persists one per-seller order. The wallet debit at checkout
// is the payment confirmation, so orders are created already paid.
func (c *Orchestrator) createOrder(ctx context.Context, buyer *model.Account, g sellerGroup, req Request) (*model.Order, error) {
	now := time.Now().UTC()
	o := &model.Order{
		ID:              uuid.New().String(),
		BuyerID:         buyer.ID,
		Status:          model.OrderPaid,
		TotalAmount:     g.subtotal,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, item := range g.items {
		item.ID = uuid.New().String()
		item.OrderID = o.ID
		o.Items = append(o.Items, item)
	}
	if err := c.store.CreateOrder(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}
