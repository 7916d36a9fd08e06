package order

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradepost/escrow-engine/internal/keylock"
	"github.com/tradepost/escrow-engine/internal/metrics"
	"github.com/tradepost/escrow-engine/internal/model"
	"github.com/tradepost/escrow-engine/internal/store"
	"github.com/tradepost/escrow-engine/internal/wallet"
)

// Service drives order transitions. Each transition locks the order,
// verifies capability then state, applies the ledger effect, and persists
// the new status, leaving everything untouched on failure.
type Service struct {
	store  store.Store
	ledger *wallet.Ledger
	locks  *keylock.Map
}

// NewService creates an order service.
func NewService(st store.Store, ledger *wallet.Ledger, locks *keylock.Map) *Service {
	return &Service{store: st, ledger: ledger, locks: locks}
}

// Get returns an order, enforcing view access for non-participants.
func (s *Service) Get(ctx context.Context, actor *model.Account, orderID string) (*model.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !Permitted(actor, ActionView, o) {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListForBuyer returns the actor's purchases, optionally status-filtered.
func (s *Service) ListForBuyer(ctx context.Context, buyerID string, status model.OrderStatus) ([]model.Order, error) {
	return s.store.ListOrdersByBuyer(ctx, buyerID, status)
}

// ListForSeller returns orders containing the seller's items.
func (s *Service) ListForSeller(ctx context.Context, sellerID string, status model.OrderStatus) ([]model.Order, error) {
	return s.store.ListOrdersBySeller(ctx, sellerID, status)
}

// Ship moves paid → shipped and records the tracking number. Seller-only.
func (s *Service) Ship(ctx context.Context, actor *model.Account, orderID, trackingNumber string) (*model.Order, error) {
	return s.transition(ctx, actor, orderID, ActionShip, model.OrderShipped, func(_ context.Context, o *model.Order) error {
		o.TrackingNumber = trackingNumber
		return nil
	}, nil)
}

// ConfirmDelivery moves shipped → delivered. Buyer-only, no ledger effect.
func (s *Service) ConfirmDelivery(ctx context.Context, actor *model.Account, orderID string) (*model.Order, error) {
	return s.transition(ctx, actor, orderID, ActionConfirmDelivery, model.OrderDelivered, nil, nil)
}

// Complete moves delivered → completed and releases the escrowed total
// into the seller's pending balance. Buyer-only.
func (s *Service) Complete(ctx context.Context, actor *model.Account, orderID string) (*model.Order, error) {
	return s.transition(ctx, actor, orderID, ActionComplete, model.OrderCompleted, s.releaseEscrow, s.reclaimEscrow)
}

// Cancel moves pending_payment or paid → cancelled. When funds were
// already debited (paid), the full total is refunded to the buyer.
func (s *Service) Cancel(ctx context.Context, actor *model.Account, orderID, reason string) (*model.Order, error) {
	var refunded bool
	effect := func(ctx context.Context, o *model.Order) error {
		if o.Status != model.OrderPaid {
			return nil // nothing debited yet
		}
		desc := fmt.Sprintf("Refund for cancelled order %s", o.ID)
		if reason != "" {
			desc = fmt.Sprintf("%s: %s", desc, reason)
		}
		if _, err := s.ledger.Credit(ctx, o.BuyerID, o.TotalAmount, model.TxnEscrowRefund, o.ID, "order", desc); err != nil {
			return err
		}
		refunded = true
		return nil
	}
	undo := func(ctx context.Context, o *model.Order) error {
		if !refunded {
			return nil
		}
		desc := fmt.Sprintf("Reversal of refund for order %s", o.ID)
		_, err := s.ledger.Debit(ctx, o.BuyerID, o.TotalAmount, model.TxnEscrowRefund, o.ID, "order", desc)
		return err
	}
	return s.transition(ctx, actor, orderID, ActionCancel, model.OrderCancelled, effect, undo)
}

// ReleaseEscrow credits the order total into the seller's pending balance.
// Used by Complete and by dispute resolution in the seller's favor; the
// caller must hold the order lock when resolving a dispute.
func (s *Service) ReleaseEscrow(ctx context.Context, o *model.Order) error {
	return s.releaseEscrow(ctx, o)
}

// ReclaimEscrow reverses ReleaseEscrow when a later persist failed and
// the release was never recorded against the order.
func (s *Service) ReclaimEscrow(ctx context.Context, o *model.Order) error {
	return s.reclaimEscrow(ctx, o)
}

// releaseEscrow splits the escrowed total per seller from the order items.
// Orders are created one per seller, so this is normally a single credit,
// but the split keeps the ledger correct for operationally merged orders.
func (s *Service) releaseEscrow(ctx context.Context, o *model.Order) error {
	sellers, totals := sellerTotals(o)
	for _, sellerID := range sellers {
		desc := fmt.Sprintf("Sale proceeds for order %s", o.ID)
		if _, err := s.ledger.MoveToPending(ctx, sellerID, totals[sellerID], o.ID, "order", desc); err != nil {
			return err
		}
	}
	return nil
}

// reclaimEscrow takes the released totals back out of each seller's
// pending balance so a retried transition cannot release them twice.
func (s *Service) reclaimEscrow(ctx context.Context, o *model.Order) error {
	sellers, totals := sellerTotals(o)
	for _, sellerID := range sellers {
		desc := fmt.Sprintf("Reversal of sale proceeds for order %s", o.ID)
		if _, err := s.ledger.ReclaimPending(ctx, sellerID, totals[sellerID], o.ID, "order", desc); err != nil {
			return err
		}
	}
	return nil
}

// sellerTotals sums the order's items per seller, in item order.
func sellerTotals(o *model.Order) ([]string, map[string]decimal.Decimal) {
	totals := make(map[string]decimal.Decimal)
	var sellers []string
	for _, item := range o.Items {
		if _, ok := totals[item.SellerID]; !ok {
			sellers = append(sellers, item.SellerID)
		}
		subtotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		totals[item.SellerID] = totals[item.SellerID].Add(subtotal)
	}
	for id := range totals {
		totals[id] = totals[id].Round(2)
	}
	return sellers, totals
}

// transition runs one guarded order transition under the order lock.
// effect, when non-nil, runs after the guards pass and before the status
// is persisted; a failing effect aborts the transition. undo reverses a
// committed effect when the status persist fails, so a retried transition
// cannot apply the ledger effect twice.
func (s *Service) transition(ctx context.Context, actor *model.Account, orderID string, action Action, target model.OrderStatus, effect, undo func(context.Context, *model.Order) error) (*model.Order, error) {
	release, err := s.locks.Acquire(ctx, keylock.OrderKey(orderID))
	if err != nil {
		return nil, err
	}
	defer release()

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	// Role before state: a non-participant learns nothing about legality.
	if !Permitted(actor, action, o) {
		return nil, ErrForbidden
	}
	if !CanTransition(o.Status, target) {
		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, o.Status, target)
	}

	if effect != nil {
		if err := effect(ctx, o); err != nil {
			return nil, err
		}
	}

	o.Status = target
	o.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateOrder(ctx, o); err != nil {
		if undo != nil {
			if uerr := undo(ctx, o); uerr != nil {
				slog.Error("transition compensation failed", "order_id", o.ID, "status", target, "err", uerr)
			}
		}
		return nil, err
	}

	metrics.OrderTransitions.WithLabelValues(string(target)).Inc()
	slog.Info("order transitioned",
		"order_id", o.ID,
		"status", target,
		"actor", actor.ID,
		"action", action,
	)
	return o, nil
}
