package order

import (
	"testing"

	"github.com/tradepost/escrow-engine/internal/model"
)

func TestCanTransition_Table(t *testing.T) {
	tests := []struct {
		from, to model.OrderStatus
		want     bool
	}{
		{model.OrderPendingPayment, model.OrderPaid, true},
		{model.OrderPendingPayment, model.OrderCancelled, true},
		{model.OrderPendingPayment, model.OrderShipped, false},
		{model.OrderPaid, model.OrderShipped, true},
		{model.OrderPaid, model.OrderCancelled, true},
		{model.OrderPaid, model.OrderDisputed, true},
		{model.OrderPaid, model.OrderCompleted, false},
		{model.OrderShipped, model.OrderDelivered, true},
		{model.OrderShipped, model.OrderDisputed, true},
		{model.OrderShipped, model.OrderCancelled, false},
		{model.OrderDelivered, model.OrderCompleted, true},
		{model.OrderDelivered, model.OrderDisputed, true},
		{model.OrderDelivered, model.OrderShipped, false},
		{model.OrderDisputed, model.OrderCompleted, true},
		{model.OrderDisputed, model.OrderRefunded, true},
		{model.OrderDisputed, model.OrderCancelled, false},
		{model.OrderCompleted, model.OrderDisputed, false},
		{model.OrderCancelled, model.OrderPaid, false},
		{model.OrderRefunded, model.OrderCompleted, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminalStates_HaveNoEdges(t *testing.T) {
	terminals := []model.OrderStatus{model.OrderCompleted, model.OrderCancelled, model.OrderRefunded}
	all := []model.OrderStatus{
		model.OrderPendingPayment, model.OrderPaid, model.OrderShipped,
		model.OrderDelivered, model.OrderCompleted, model.OrderCancelled,
		model.OrderDisputed, model.OrderRefunded,
	}
	for _, from := range terminals {
		for _, to := range all {
			if CanTransition(from, to) {
				t.Errorf("terminal state %s should have no edge to %s", from, to)
			}
		}
	}
}

func TestPermitted_Capabilities(t *testing.T) {
	buyer := &model.Account{ID: "buyer-1", Role: model.RoleBuyer}
	seller := &model.Account{ID: "seller-1", Role: model.RoleSeller}
	stranger := &model.Account{ID: "other", Role: model.RoleBuyer}
	admin := &model.Account{ID: "admin-1", Role: model.RoleAdmin}

	o := &model.Order{
		ID:      "order-1",
		BuyerID: "buyer-1",
		Items:   []model.OrderItem{{SellerID: "seller-1"}},
	}

	tests := []struct {
		actor  *model.Account
		action Action
		want   bool
	}{
		{seller, ActionShip, true},
		{buyer, ActionShip, false},
		{buyer, ActionConfirmDelivery, true},
		{seller, ActionConfirmDelivery, false},
		{buyer, ActionComplete, true},
		{buyer, ActionCancel, true},
		{seller, ActionCancel, false},
		{buyer, ActionDispute, true},
		{seller, ActionDispute, false},
		{buyer, ActionView, true},
		{seller, ActionView, true},
		{stranger, ActionView, false},
		{stranger, ActionCancel, false},
		{admin, ActionShip, true},
		{admin, ActionCancel, true},
	}

	for _, tt := range tests {
		if got := Permitted(tt.actor, tt.action, o); got != tt.want {
			t.Errorf("Permitted(%s, %s) = %v, want %v", tt.actor.ID, tt.action, got, tt.want)
		}
	}
}
