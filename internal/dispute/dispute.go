// Package dispute implements the arbitration workflow that forces a
// disputed order into a terminal state.
//
// A dispute carries an append-only message thread readable as a
// restartable paginated sequence. Resolution is a single admin action
// that atomically settles the dispute and drives the paired order
// transition with its ledger effect; resolving twice is rejected so a
// refund or release can never happen twice.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tradepost/escrow-engine/internal/keylock"
	"github.com/tradepost/escrow-engine/internal/metrics"
	"github.com/tradepost/escrow-engine/internal/model"
	"github.com/tradepost/escrow-engine/internal/order"
	"github.com/tradepost/escrow-engine/internal/store"
	"github.com/tradepost/escrow-engine/internal/wallet"
)

var (
	// ErrAlreadyOpen is returned when the order already has an unresolved
	// dispute.
	ErrAlreadyOpen = errors.New("dispute: an unresolved dispute already exists for this order")

	// ErrClosed is returned when appending a message to a resolved dispute.
	ErrClosed = errors.New("dispute: dispute is resolved")

	// ErrAlreadyResolved is returned by a second resolve attempt. No
	// ledger effect is performed.
	ErrAlreadyResolved = errors.New("dispute: already resolved")

	// ErrNotDisputable is returned when the order's status does not allow
	// opening a dispute.
	ErrNotDisputable = errors.New("dispute: order cannot be disputed in its current status")
)

// Engine runs the dispute workflow against the order state machine and
// the wallet ledger.
type Engine struct {
	store  store.Store
	ledger *wallet.Ledger
	orders *order.Service
	locks  *keylock.Map
}

// NewEngine creates a dispute engine.
func NewEngine(st store.Store, ledger *wallet.Ledger, orders *order.Service, locks *keylock.Map) *Engine {
	return &Engine{store: st, ledger: ledger, orders: orders, locks: locks}
}

// Open creates a dispute against the order and moves it to disputed.
// Buyer-only; the escrow stays held until resolution.
func (e *Engine) Open(ctx context.Context, actor *model.Account, orderID, reason string) (*model.Dispute, error) {
	release, err := e.locks.Acquire(ctx, keylock.OrderKey(orderID))
	if err != nil {
		return nil, err
	}
	defer release()

	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Permitted(actor, order.ActionDispute, o) {
		return nil, order.ErrForbidden
	}
	if !order.CanTransition(o.Status, model.OrderDisputed) {
		return nil, fmt.Errorf("%w: status %s", ErrNotDisputable, o.Status)
	}

	// The transition check above already rejects disputed orders, so this
	// guard only fires when an order row was repaired by hand while its
	// dispute stayed open. One unresolved dispute per order is the invariant.
	if _, err := e.store.GetOpenDisputeByOrder(ctx, orderID); err == nil {
		return nil, ErrAlreadyOpen
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	d := &model.Dispute{
		ID:        uuid.New().String(),
		OrderID:   o.ID,
		BuyerID:   o.BuyerID,
		SellerID:  o.SellerID(),
		Reason:    reason,
		Status:    model.DisputeOpen,
		CreatedAt: now,
	}
	if err := e.store.CreateDispute(ctx, d); err != nil {
		return nil, err
	}

	o.Status = model.OrderDisputed
	o.UpdatedAt = now
	if err := e.store.UpdateOrder(ctx, o); err != nil {
		return nil, err
	}

	metrics.OpenDisputes.Inc()
	slog.Info("dispute opened", "dispute_id", d.ID, "order_id", o.ID, "buyer", actor.ID)
	return d, nil
}

// Get returns a dispute, restricted to participants and admins.
func (e *Engine) Get(ctx context.Context, actor *model.Account, disputeID string) (*model.Dispute, error) {
	d, err := e.store.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !participant(actor, d) {
		return nil, order.ErrForbidden
	}
	return d, nil
}

// List returns the actor's disputes; admins see all.
func (e *Engine) List(ctx context.Context, actor *model.Account) ([]model.Dispute, error) {
	if actor.Role == model.RoleAdmin {
		return e.store.ListDisputes(ctx, "")
	}
	return e.store.ListDisputes(ctx, actor.ID)
}

// AddMessage appends to the dispute thread. Participants and admins may
// post while the dispute is unresolved; an admin's first message begins
// the review.
func (e *Engine) AddMessage(ctx context.Context, actor *model.Account, disputeID, content string) (*model.DisputeMessage, error) {
	release, err := e.locks.Acquire(ctx, keylock.DisputeKey(disputeID))
	if err != nil {
		return nil, err
	}
	defer release()

	d, err := e.store.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !participant(actor, d) {
		return nil, order.ErrForbidden
	}
	if d.Status.Resolved() {
		return nil, ErrClosed
	}

	m := &model.DisputeMessage{
		ID:        uuid.New().String(),
		DisputeID: d.ID,
		SenderID:  actor.ID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.AppendDisputeMessage(ctx, m); err != nil {
		return nil, err
	}

	if actor.Role == model.RoleAdmin && d.Status == model.DisputeOpen {
		d.Status = model.DisputeUnderReview
		if err := e.store.UpdateDispute(ctx, d); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Messages returns up to limit messages with Seq > afterSeq, oldest
// first. Callers resume by passing the last Seq they saw.
func (e *Engine) Messages(ctx context.Context, actor *model.Account, disputeID string, afterSeq int64, limit int) ([]model.DisputeMessage, error) {
	d, err := e.store.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !participant(actor, d) {
		return nil, order.ErrForbidden
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return e.store.ListDisputeMessages(ctx, disputeID, afterSeq, limit)
}

// BeginReview marks an open dispute as under review. Admin-only.
func (e *Engine) BeginReview(ctx context.Context, actor *model.Account, disputeID string) (*model.Dispute, error) {
	if actor.Role != model.RoleAdmin {
		return nil, order.ErrForbidden
	}

	release, err := e.locks.Acquire(ctx, keylock.DisputeKey(disputeID))
	if err != nil {
		return nil, err
	}
	defer release()

	d, err := e.store.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status.Resolved() {
		return nil, ErrAlreadyResolved
	}
	if d.Status == model.DisputeOpen {
		d.Status = model.DisputeUnderReview
		if err := e.store.UpdateDispute(ctx, d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Resolve settles the dispute and its order in one atomic admin action.
// refundBuyer=true refunds the escrowed total to the buyer and the order
// becomes refunded; false releases it to the seller's pending balance and
// the order completes. A second resolve fails with ErrAlreadyResolved and
// performs no ledger effect.
func (e *Engine) Resolve(ctx context.Context, actor *model.Account, disputeID, resolution, adminNotes string, refundBuyer bool) (*model.Dispute, error) {
	if actor.Role != model.RoleAdmin {
		return nil, order.ErrForbidden
	}

	release, err := e.locks.Acquire(ctx, keylock.DisputeKey(disputeID))
	if err != nil {
		return nil, err
	}
	defer release()

	d, err := e.store.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status.Resolved() {
		return nil, ErrAlreadyResolved
	}

	releaseOrder, err := e.locks.Acquire(ctx, keylock.OrderKey(d.OrderID))
	if err != nil {
		return nil, err
	}
	defer releaseOrder()

	o, err := e.store.GetOrder(ctx, d.OrderID)
	if err != nil {
		return nil, err
	}

	var target model.OrderStatus
	if refundBuyer {
		target = model.OrderRefunded
	} else {
		target = model.OrderCompleted
	}
	if !order.CanTransition(o.Status, target) {
		return nil, fmt.Errorf("%w: %s → %s", order.ErrInvalidTransition, o.Status, target)
	}

	if refundBuyer {
		desc := fmt.Sprintf("Refund for dispute %s resolved in buyer's favor", d.ID)
		if _, err := e.ledger.Credit(ctx, o.BuyerID, o.TotalAmount, model.TxnEscrowRefund, o.ID, "order", desc); err != nil {
			return nil, err
		}
		d.Status = model.DisputeResolvedBuyer
	} else {
		if err := e.orders.ReleaseEscrow(ctx, o); err != nil {
			return nil, err
		}
		d.Status = model.DisputeResolvedSeller
	}

	now := time.Now().UTC()
	o.Status = target
	o.UpdatedAt = now
	if err := e.store.UpdateOrder(ctx, o); err != nil {
		e.reverseSettlement(ctx, o, refundBuyer)
		return nil, err
	}

	d.Resolution = resolution
	d.AdminNotes = adminNotes
	d.ResolvedByID = actor.ID
	d.ResolvedAt = &now
	if err := e.store.UpdateDispute(ctx, d); err != nil {
		o.Status = model.OrderDisputed
		if rerr := e.store.UpdateOrder(ctx, o); rerr != nil {
			slog.Error("order revert failed after dispute persist failure", "order_id", o.ID, "err", rerr)
		}
		e.reverseSettlement(ctx, o, refundBuyer)
		return nil, err
	}

	metrics.OpenDisputes.Dec()
	metrics.DisputesResolved.WithLabelValues(string(d.Status)).Inc()
	slog.Info("dispute resolved",
		"dispute_id", d.ID,
		"order_id", o.ID,
		"refund_buyer", refundBuyer,
		"admin", actor.ID,
	)
	return d, nil
}

// reverseSettlement takes back the resolution's ledger effect when a
// later persist fails. The dispute stays unresolved, so the retried
// resolve re-applies the effect exactly once.
func (e *Engine) reverseSettlement(ctx context.Context, o *model.Order, refundBuyer bool) {
	if refundBuyer {
		desc := fmt.Sprintf("Reversal of dispute refund for order %s", o.ID)
		if _, err := e.ledger.Debit(ctx, o.BuyerID, o.TotalAmount, model.TxnEscrowRefund, o.ID, "order", desc); err != nil {
			slog.Error("dispute refund reversal failed", "order_id", o.ID, "err", err)
		}
		return
	}
	if err := e.orders.ReclaimEscrow(ctx, o); err != nil {
		slog.Error("escrow reclaim failed", "order_id", o.ID, "err", err)
	}
}

func participant(actor *model.Account, d *model.Dispute) bool {
	return actor.Role == model.RoleAdmin || d.BuyerID == actor.ID || d.SellerID == actor.ID
}
