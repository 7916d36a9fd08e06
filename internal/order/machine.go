// Package order implements the per-order status state machine and the
// transitions that move escrowed funds.
//
// The transition table is the contract: any attempt to move an order along
// an edge the table does not list fails with ErrInvalidTransition and
// changes nothing. Role checks run before state checks, so an actor without
// the capability gets ErrForbidden even when the state would permit the
// move.
package order

import (
	"errors"

	"github.com/tradepost/escrow-engine/internal/model"
)

var (
	// ErrInvalidTransition is returned when the order's current status does
	// not permit the requested transition. No state is modified.
	ErrInvalidTransition = errors.New("order: invalid status transition")

	// ErrForbidden is returned when the actor lacks the capability for the
	// requested action, regardless of order state.
	ErrForbidden = errors.New("order: actor not permitted")
)

// transitions lists the legal edges of the order state machine.
// cancelled is reachable only before shipment; disputed only after payment
// and before completion; refunded only through dispute resolution.
var transitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderPendingPayment: {model.OrderPaid, model.OrderCancelled},
	model.OrderPaid:           {model.OrderShipped, model.OrderCancelled, model.OrderDisputed},
	model.OrderShipped:        {model.OrderDelivered, model.OrderDisputed},
	model.OrderDelivered:      {model.OrderCompleted, model.OrderDisputed},
	model.OrderDisputed:       {model.OrderCompleted, model.OrderRefunded},
	model.OrderCompleted:      {},
	model.OrderCancelled:      {},
	model.OrderRefunded:       {},
}

// CanTransition reports whether the state machine permits from → to.
func CanTransition(from, to model.OrderStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Action is a capability-checked operation on an order.
type Action string

const (
	ActionShip            Action = "ship"
	ActionConfirmDelivery Action = "confirm_delivery"
	ActionComplete        Action = "complete"
	ActionCancel          Action = "cancel"
	ActionDispute         Action = "dispute"
	ActionView            Action = "view"
)

// Permitted reports whether the actor holds the capability for action on
// this order. The check is independent of order state: buyers own the
// delivery-side actions, the order's seller owns shipping, and admins may
// perform any action for operational recovery.
func Permitted(actor *model.Account, action Action, o *model.Order) bool {
	if actor.Role == model.RoleAdmin {
		return true
	}

	isBuyer := o.BuyerID == actor.ID
	isSeller := false
	for _, item := range o.Items {
		if item.SellerID == actor.ID {
			isSeller = true
			break
		}
	}

	switch action {
	case ActionShip:
		return isSeller
	case ActionConfirmDelivery, ActionComplete, ActionCancel, ActionDispute:
		return isBuyer
	case ActionView:
		return isBuyer || isSeller
	}
	return false
}
