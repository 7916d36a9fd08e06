package payout_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradepost/escrow-engine/internal/keylock"
	"github.com/tradepost/escrow-engine/internal/model"
	"github.com/tradepost/escrow-engine/internal/payout"
	"github.com/tradepost/escrow-engine/internal/store"
	"github.com/tradepost/escrow-engine/internal/wallet"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var (
	seller = &model.Account{ID: "seller-1", Role: model.RoleSeller}
	buyer  = &model.Account{ID: "buyer-1", Role: model.RoleBuyer}
)

func newEnv(t *testing.T, transfer payout.TransferFunc) (*payout.Processor, *wallet.Ledger, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	ledger := wallet.NewLedger(ms, keylock.New(time.Second))
	return payout.NewProcessor(ms, ledger, nil, time.Minute, transfer), ledger, ms
}

func earn(t *testing.T, ledger *wallet.Ledger, amount float64) {
	t.Helper()
	if _, err := ledger.MoveToPending(context.Background(), seller.ID, d(amount), "order-1", "order", "sale"); err != nil {
		t.Fatalf("failed to seed earnings: %v", err)
	}
}

func TestRequest_ReservesPending(t *testing.T) {
	p, ledger, _ := newEnv(t, nil)
	ctx := context.Background()
	earn(t, ledger, 90)

	po, err := p.Request(ctx, seller, d(40), "bank_transfer", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if po.Status != model.PayoutPending {
		t.Errorf("expected pending, got %s", po.Status)
	}
	if !po.Amount.Equal(d(40)) {
		t.Errorf("expected amount 40, got %s", po.Amount)
	}

	// Reserved at request time: pending drops immediately.
	w, _ := ledger.Wallet(ctx, seller.ID)
	if !w.PendingBalance.Equal(d(50)) {
		t.Errorf("expected pending 50 after reservation, got %s", w.PendingBalance)
	}
	if !w.Balance.IsZero() {
		t.Errorf("payout must never touch spendable balance, got %s", w.Balance)
	}
}

// The reservation guard: a second request for more than the remainder
// fails even though the first payout has not completed.
func TestRequest_CannotDoubleRequestEarnings(t *testing.T) {
	p, ledger, _ := newEnv(t, nil)
	ctx := context.Background()
	earn(t, ledger, 90)

	if _, err := p.Request(ctx, seller, d(50), "", ""); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := p.Request(ctx, seller, d(50), "", ""); !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	// The remainder is still requestable.
	if _, err := p.Request(ctx, seller, d(40), "", ""); err != nil {
		t.Fatalf("remainder request: %v", err)
	}
}

func TestRequest_BuyerRejected(t *testing.T) {
	p, _, _ := newEnv(t, nil)
	if _, err := p.Request(context.Background(), buyer, d(10), "", ""); !errors.Is(err, payout.ErrNotSeller) {
		t.Fatalf("expected ErrNotSeller, got %v", err)
	}
}

func TestRequest_InvalidMethod(t *testing.T) {
	p, ledger, _ := newEnv(t, nil)
	earn(t, ledger, 50)

	for _, method := range []string{"Bank Transfer", "x", "UPPER", "1starts_with_digit"} {
		if _, err := p.Request(context.Background(), seller, d(10), method, ""); !errors.Is(err, payout.ErrInvalidMethod) {
			t.Errorf("method %q: expected ErrInvalidMethod, got %v", method, err)
		}
	}
}

func TestRequest_DefaultMethod(t *testing.T) {
	p, ledger, _ := newEnv(t, nil)
	earn(t, ledger, 50)

	po, err := p.Request(context.Background(), seller, d(10), "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if po.Method != "bank_transfer" {
		t.Errorf("expected default bank_transfer, got %q", po.Method)
	}
}

func TestProcessPending_CompletesPayout(t *testing.T) {
	p, ledger, ms := newEnv(t, nil)
	ctx := context.Background()
	earn(t, ledger, 90)

	po, _ := p.Request(ctx, seller, d(40), "", "")

	n := p.ProcessPending(ctx)
	if n != 1 {
		t.Fatalf("expected 1 processed, got %d", n)
	}

	got, _ := ms.GetPayout(ctx, po.ID)
	if got.Status != model.PayoutCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if !strings.HasPrefix(got.Reference, "PAY-") {
		t.Errorf("expected PAY- reference, got %q", got.Reference)
	}
	if got.CompletedAt == nil || got.ProcessedAt == nil {
		t.Errorf("timestamps missing: %+v", got)
	}

	// Completion does not move the wallet again; the reservation already did.
	w, _ := ledger.Wallet(ctx, seller.ID)
	if !w.PendingBalance.Equal(d(50)) {
		t.Errorf("expected pending 50, got %s", w.PendingBalance)
	}
}

func TestProcessPending_FailureRestoresFunds(t *testing.T) {
	failing := func(_ context.Context, _ *model.Payout) (string, error) {
		return "", errors.New("provider unavailable")
	}
	p, ledger, ms := newEnv(t, failing)
	ctx := context.Background()
	earn(t, ledger, 90)

	po, _ := p.Request(ctx, seller, d(40), "", "")
	p.ProcessPending(ctx)

	got, _ := ms.GetPayout(ctx, po.ID)
	if got.Status != model.PayoutFailed {
		t.Errorf("expected failed, got %s", got.Status)
	}

	// Compensation goes back to pending, never to spendable.
	w, _ := ledger.Wallet(ctx, seller.ID)
	if !w.PendingBalance.Equal(d(90)) {
		t.Errorf("expected pending restored to 90, got %s", w.PendingBalance)
	}
	if !w.Balance.IsZero() {
		t.Errorf("spendable balance must stay zero, got %s", w.Balance)
	}

	txns, _, _ := ledger.Transactions(ctx, seller.ID, 0, 10)
	if txns[0].Type != model.TxnRefundCredit {
		t.Errorf("expected refund_credit compensation entry, got %s", txns[0].Type)
	}
}

func TestProcessPending_ClaimsOncePerPayout(t *testing.T) {
	p, ledger, _ := newEnv(t, nil)
	ctx := context.Background()
	earn(t, ledger, 90)

	p.Request(ctx, seller, d(40), "", "")

	if n := p.ProcessPending(ctx); n != 1 {
		t.Fatalf("first pass should claim 1, got %d", n)
	}
	if n := p.ProcessPending(ctx); n != 0 {
		t.Fatalf("second pass should claim 0, got %d", n)
	}
}

func TestGet_RestrictedToOwnerAndAdmin(t *testing.T) {
	p, ledger, _ := newEnv(t, nil)
	ctx := context.Background()
	earn(t, ledger, 90)

	po, _ := p.Request(ctx, seller, d(40), "", "")

	if _, err := p.Get(ctx, seller, po.ID); err != nil {
		t.Errorf("owner should see payout: %v", err)
	}
	admin := &model.Account{ID: "admin-1", Role: model.RoleAdmin}
	if _, err := p.Get(ctx, admin, po.ID); err != nil {
		t.Errorf("admin should see payout: %v", err)
	}
	// Others get not-found, not forbidden, to avoid existence leaks.
	if _, err := p.Get(ctx, buyer, po.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for stranger, got %v", err)
	}
}

func TestStartStop_WorkerDrainsQueue(t *testing.T) {
	ms := store.NewMemoryStore()
	ledger := wallet.NewLedger(ms, keylock.New(time.Second))
	p := payout.NewProcessor(ms, ledger, nil, 10*time.Millisecond, nil)
	ctx := context.Background()

	ledger.MoveToPending(ctx, seller.ID, d(90), "order-1", "order", "sale")
	po, err := p.Request(ctx, seller, d(40), "", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	p.Start()
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for {
		got, _ := ms.GetPayout(ctx, po.ID)
		if got.Status == model.PayoutCompleted {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("payout never completed, status %s", got.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
