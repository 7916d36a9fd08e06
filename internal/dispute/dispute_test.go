package dispute_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradepost/escrow-engine/internal/dispute"
	"github.com/tradepost/escrow-engine/internal/keylock"
	"github.com/tradepost/escrow-engine/internal/model"
	"github.com/tradepost/escrow-engine/internal/order"
	"github.com/tradepost/escrow-engine/internal/store"
	"github.com/tradepost/escrow-engine/internal/wallet"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var (
	buyer  = &model.Account{ID: "buyer-1", Role: model.RoleBuyer}
	seller = &model.Account{ID: "seller-1", Role: model.RoleSeller}
	admin  = &model.Account{ID: "admin-1", Role: model.RoleAdmin}
)

func newEnv(t *testing.T) (*dispute.Engine, *wallet.Ledger, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	locks := keylock.New(time.Second)
	ledger := wallet.NewLedger(ms, locks)
	orders := order.NewService(ms, ledger, locks)
	return dispute.NewEngine(ms, ledger, orders, locks), ledger, ms
}

func seedOrder(t *testing.T, ms *store.MemoryStore, id string, status model.OrderStatus, total float64) *model.Order {
	t.Helper()
	now := time.Now().UTC()
	o := &model.Order{
		ID:          id,
		BuyerID:     buyer.ID,
		Status:      status,
		TotalAmount: d(total),
		Items: []model.OrderItem{
			{ID: id + "-item", OrderID: id, ProductID: "prod-1", SellerID: seller.ID, Quantity: 1, UnitPrice: d(total)},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := ms.CreateOrder(context.Background(), o); err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}
	return o
}

func openDispute(t *testing.T, e *dispute.Engine, orderID string) *model.Dispute {
	t.Helper()
	dp, err := e.Open(context.Background(), buyer, orderID, "item not as described")
	if err != nil {
		t.Fatalf("failed to open dispute: %v", err)
	}
	return dp
}

func TestOpen_MovesOrderToDisputed(t *testing.T) {
	e, _, ms := newEnv(t)
	seedOrder(t, ms, "order-1", model.OrderShipped, 100)

	dp := openDispute(t, e, "order-1")
	if dp.Status != model.DisputeOpen {
		t.Errorf("expected open, got %s", dp.Status)
	}
	if dp.BuyerID != buyer.ID || dp.SellerID != seller.ID {
		t.Errorf("participants wrong: %s/%s", dp.BuyerID, dp.SellerID)
	}

	o, _ := ms.GetOrder(context.Background(), "order-1")
	if o.Status != model.OrderDisputed {
		t.Errorf("expected order disputed, got %s", o.Status)
	}
}

func TestOpen_SellerForbidden(t *testing.T) {
	e, _, ms := newEnv(t)
	seedOrder(t, ms, "order-1", model.OrderShipped, 100)

	if _, err := e.Open(context.Background(), seller, "order-1", "reason"); !errors.Is(err, order.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestOpen_SecondDisputeRejected(t *testing.T) {
	e, _, ms := newEnv(t)
	seedOrder(t, ms, "order-1", model.OrderShipped, 100)
	openDispute(t, e, "order-1")

	// Order is now disputed, so the state machine rejects first.
	_, err := e.Open(context.Background(), buyer, "order-1", "again")
	if !errors.Is(err, dispute.ErrNotDisputable) {
		t.Fatalf("expected ErrNotDisputable, got %v", err)
	}
}

func TestOpen_NotDisputableStates(t *testing.T) {
	e, _, ms := newEnv(t)

	for i, status := range []model.OrderStatus{model.OrderPendingPayment, model.OrderCompleted, model.OrderCancelled, model.OrderRefunded} {
		id := "order-nd-" + string(rune('a'+i))
		seedOrder(t, ms, id, status, 100)
		if _, err := e.Open(context.Background(), buyer, id, "reason"); !errors.Is(err, dispute.ErrNotDisputable) {
			t.Errorf("status %s: expected ErrNotDisputable, got %v", status, err)
		}
	}
}

func TestAddMessage_SequencedThread(t *testing.T) {
	e, _, ms := newEnv(t)
	ctx := context.Background()
	seedOrder(t, ms, "order-1", model.OrderShipped, 100)
	dp := openDispute(t, e, "order-1")

	m1, err := e.AddMessage(ctx, buyer, dp.ID, "first")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m2, _ := e.AddMessage(ctx, seller, dp.ID, "second")
	m3, _ := e.AddMessage(ctx, buyer, dp.ID, "third")

	if m1.Seq != 1 || m2.Seq != 2 || m3.Seq != 3 {
		t.Errorf("expected seq 1,2,3 got %d,%d,%d", m1.Seq, m2.Seq, m3.Seq)
	}

	// Resume after seq 1.
	msgs, err := e.Messages(ctx, buyer, dp.ID, 1, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "second" || msgs[1].Content != "third" {
		t.Errorf("expected [second third], got %+v", msgs)
	}
}

func TestAddMessage_StrangerForbidden(t *testing.T) {
	e, _, ms := newEnv(t)
	seedOrder(t, ms, "order-1", model.OrderShipped, 100)
	dp := openDispute(t, e, "order-1")

	stranger := &model.Account{ID: "other", Role: model.RoleBuyer}
	if _, err := e.AddMessage(context.Background(), stranger, dp.ID, "hi"); !errors.Is(err, order.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAddMessage_AdminFlipsToUnderReview(t *testing.T) {
	e, _, ms := newEnv(t)
	ctx := context.Background()
	seedOrder(t, ms, "order-1", model.OrderShipped, 100)
	dp := openDispute(t, e, "order-1")

	if _, err := e.AddMessage(ctx, admin, dp.ID, "looking into this"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := e.Get(ctx, admin, dp.ID)
	if got.Status != model.DisputeUnderReview {
		t.Errorf("expected under_review after admin message, got %s", got.Status)
	}
}

func TestResolve_ForBuyer_RefundsAndOrderRefunded(t *testing.T) {
	e, ledger, ms := newEnv(t)
	ctx := context.Background()
	seedOrder(t, ms, "order-1", model.OrderShipped, 100)
	dp := openDispute(t, e, "order-1")

	got, err := e.Resolve(ctx, admin, dp.ID, "refund issued", "seller unresponsive", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != model.DisputeResolvedBuyer {
		t.Errorf("expected resolved_buyer, got %s", got.Status)
	}
	if got.ResolvedAt == nil || got.ResolvedByID != admin.ID {
		t.Errorf("resolution metadata missing: %+v", got)
	}

	o, _ := ms.GetOrder(ctx, "order-1")
	if o.Status != model.OrderRefunded {
		t.Errorf("expected order refunded, got %s", o.Status)
	}

	w, _ := ledger.Wallet(ctx, buyer.ID)
	if !w.Balance.Equal(d(100)) {
		t.Errorf("expected buyer refunded 100, got %s", w.Balance)
	}
	sw, _ := ledger.Wallet(ctx, seller.ID)
	if !sw.PendingBalance.IsZero() {
		t.Errorf("seller must receive nothing, got pending %s", sw.PendingBalance)
	}
}

func TestResolve_ForSeller_ReleasesEscrow(t *testing.T) {
	e, ledger, ms := newEnv(t)
	ctx := context.Background()
	seedOrder(t, ms, "order-1", model.OrderShipped, 100)
	dp := openDispute(t, e, "order-1")

	got, err := e.Resolve(ctx, admin, dp.ID, "buyer claim unfounded", "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != model.DisputeResolvedSeller {
		t.Errorf("expected resolved_seller, got %s", got.Status)
	}

	o, _ := ms.GetOrder(ctx, "order-1")
	if o.Status != model.OrderCompleted {
		t.Errorf("expected order completed, got %s", o.Status)
	}

	w, _ := ledger.Wallet(ctx, seller.ID)
	if !w.PendingBalance.Equal(d(100)) {
		t.Errorf("expected seller pending 100, got %s", w.PendingBalance)
	}
	bw, _ := ledger.Wallet(ctx, buyer.ID)
	if !bw.Balance.IsZero() {
		t.Errorf("buyer must receive nothing, got %s", bw.Balance)
	}
}

// A second resolve must fail and perform no second ledger effect.
func TestResolve_Idempotent(t *testing.T) {
	e, ledger, ms := newEnv(t)
	ctx := context.Background()
	seedOrder(t, ms, "order-1", model.OrderShipped, 100)
	dp := openDispute(t, e, "order-1")

	if _, err := e.Resolve(ctx, admin, dp.ID, "refund", "", true); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := e.Resolve(ctx, admin, dp.ID, "refund", "", true); !errors.Is(err, dispute.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}

	// Exactly one refund.
	w, _ := ledger.Wallet(ctx, buyer.ID)
	if !w.Balance.Equal(d(100)) {
		t.Errorf("expected single refund of 100, got %s", w.Balance)
	}
}

// flakyStore fails a set number of UpdateDispute calls so the
// compensation path of a resolution can be exercised.
type flakyStore struct {
	*store.MemoryStore
	disputeFailures int
}

func (f *flakyStore) UpdateDispute(ctx context.Context, d *model.Dispute) error {
	if f.disputeFailures > 0 {
		f.disputeFailures--
		return errors.New("write failed")
	}
	return f.MemoryStore.UpdateDispute(ctx, d)
}

// A dispute persist failure after the refund credit must reverse the
// refund and put the order back to disputed, so the retried resolve
// refunds exactly once.
func TestResolve_PersistFailureReversesRefund(t *testing.T) {
	fs := &flakyStore{MemoryStore: store.NewMemoryStore()}
	locks := keylock.New(time.Second)
	ledger := wallet.NewLedger(fs, locks)
	orders := order.NewService(fs, ledger, locks)
	e := dispute.NewEngine(fs, ledger, orders, locks)
	ctx := context.Background()

	seedOrder(t, fs.MemoryStore, "order-1", model.OrderShipped, 100)
	dp := openDispute(t, e, "order-1")

	fs.disputeFailures = 1
	if _, err := e.Resolve(ctx, admin, dp.ID, "refund", "", true); err == nil {
		t.Fatal("expected error from failed dispute persist")
	}

	w, _ := ledger.Wallet(ctx, buyer.ID)
	if !w.Balance.IsZero() {
		t.Fatalf("expected reversed refund, buyer balance %s", w.Balance)
	}
	o, _ := fs.MemoryStore.GetOrder(ctx, "order-1")
	if o.Status != model.OrderDisputed {
		t.Fatalf("expected order back to disputed, got %s", o.Status)
	}
	got, _ := fs.MemoryStore.GetDispute(ctx, dp.ID)
	if got.Status.Resolved() {
		t.Fatalf("expected dispute unresolved, got %s", got.Status)
	}

	if _, err := e.Resolve(ctx, admin, dp.ID, "refund", "", true); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	w, _ = ledger.Wallet(ctx, buyer.ID)
	if !w.Balance.Equal(d(100)) {
		t.Fatalf("expected single refund of 100 after retry, got %s", w.Balance)
	}
}

func TestResolve_NonAdminForbidden(t *testing.T) {
	e, _, ms := newEnv(t)
	seedOrder(t, ms, "order-1", model.OrderShipped, 100)
	dp := openDispute(t, e, "order-1")

	if _, err := e.Resolve(context.Background(), buyer, dp.ID, "x", "", true); !errors.Is(err, order.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAddMessage_ClosedAfterResolve(t *testing.T) {
	e, _, ms := newEnv(t)
	ctx := context.Background()
	seedOrder(t, ms, "order-1", model.OrderShipped, 100)
	dp := openDispute(t, e, "order-1")
	e.Resolve(ctx, admin, dp.ID, "done", "", false)

	if _, err := e.AddMessage(ctx, buyer, dp.ID, "wait"); !errors.Is(err, dispute.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestBeginReview_AdminOnlyAndIdempotent(t *testing.T) {
	e, _, ms := newEnv(t)
	ctx := context.Background()
	seedOrder(t, ms, "order-1", model.OrderShipped, 100)
	dp := openDispute(t, e, "order-1")

	if _, err := e.BeginReview(ctx, buyer, dp.ID); !errors.Is(err, order.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	got, err := e.BeginReview(ctx, admin, dp.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != model.DisputeUnderReview {
		t.Errorf("expected under_review, got %s", got.Status)
	}

	// Second call is a no-op, not an error.
	if _, err := e.BeginReview(ctx, admin, dp.ID); err != nil {
		t.Errorf("repeat BeginReview should succeed: %v", err)
	}
}

func TestList_ParticipantsAndAdmin(t *testing.T) {
	e, _, ms := newEnv(t)
	ctx := context.Background()
	seedOrder(t, ms, "order-1", model.OrderShipped, 100)
	openDispute(t, e, "order-1")

	for _, actor := range []*model.Account{buyer, seller, admin} {
		got, err := e.List(ctx, actor)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", actor.ID, err)
		}
		if len(got) != 1 {
			t.Errorf("%s: expected 1 dispute, got %d", actor.ID, len(got))
		}
	}

	stranger := &model.Account{ID: "other", Role: model.RoleBuyer}
	got, _ := e.List(ctx, stranger)
	if len(got) != 0 {
		t.Errorf("stranger should see no disputes, got %d", len(got))
	}
}
