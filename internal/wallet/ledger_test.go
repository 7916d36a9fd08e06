package wallet_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradepost/escrow-engine/internal/keylock"
	"github.com/tradepost/escrow-engine/internal/model"
	"github.com/tradepost/escrow-engine/internal/store"
	"github.com/tradepost/escrow-engine/internal/wallet"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newLedger(t *testing.T) (*wallet.Ledger, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	return wallet.NewLedger(ms, keylock.New(time.Second)), ms
}

func TestWallet_LazyCreation(t *testing.T) {
	l, _ := newLedger(t)

	w, err := l.Wallet(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.Balance.IsZero() || !w.PendingBalance.IsZero() {
		t.Errorf("new wallet should be empty, got balance=%s pending=%s", w.Balance, w.PendingBalance)
	}
}

func TestDeposit_CreditsBalance(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	txn, err := l.Deposit(ctx, "acct-1", d(100), "card")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !txn.Amount.Equal(d(100)) {
		t.Errorf("expected amount 100, got %s", txn.Amount)
	}
	if txn.Type != model.TxnDeposit {
		t.Errorf("expected deposit type, got %s", txn.Type)
	}
	if !txn.BalanceAfter.Equal(d(100)) {
		t.Errorf("expected balance_after 100, got %s", txn.BalanceAfter)
	}

	w, _ := l.Wallet(ctx, "acct-1")
	if !w.Balance.Equal(d(100)) {
		t.Errorf("expected balance 100, got %s", w.Balance)
	}
}

func TestDeposit_RejectsNonPositive(t *testing.T) {
	l, _ := newLedger(t)

	for _, amount := range []decimal.Decimal{decimal.Zero, d(-10)} {
		if _, err := l.Deposit(context.Background(), "acct-1", amount, "card"); !errors.Is(err, wallet.ErrInvalidAmount) {
			t.Errorf("amount %s: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestDebit_InsufficientFunds(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	l.Deposit(ctx, "acct-1", d(50), "card")

	_, err := l.Debit(ctx, "acct-1", d(50.01), model.TxnPurchase, "ref", "checkout", "test")
	if !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// Failed debit leaves the wallet untouched.
	w, _ := l.Wallet(ctx, "acct-1")
	if !w.Balance.Equal(d(50)) {
		t.Errorf("balance should be unchanged at 50, got %s", w.Balance)
	}
	_, total, _ := l.Transactions(ctx, "acct-1", 0, 10)
	if total != 1 {
		t.Errorf("failed debit must not append a transaction, got %d entries", total)
	}
}

func TestDebit_ExactBalanceAllowed(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	l.Deposit(ctx, "acct-1", d(50), "card")
	if _, err := l.Debit(ctx, "acct-1", d(50), model.TxnPurchase, "ref", "checkout", "test"); err != nil {
		t.Fatalf("debiting exact balance should succeed: %v", err)
	}

	w, _ := l.Wallet(ctx, "acct-1")
	if !w.Balance.IsZero() {
		t.Errorf("expected zero balance, got %s", w.Balance)
	}
}

func TestPendingOps_DoNotTouchBalance(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	l.Deposit(ctx, "seller", d(10), "card")

	txn, err := l.MoveToPending(ctx, "seller", d(75), "order-1", "order", "sale proceeds")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// BalanceAfter tracks the spendable balance, which this op never moves.
	if !txn.BalanceAfter.Equal(d(10)) {
		t.Errorf("expected balance_after 10, got %s", txn.BalanceAfter)
	}

	w, _ := l.Wallet(ctx, "seller")
	if !w.Balance.Equal(d(10)) {
		t.Errorf("balance should stay 10, got %s", w.Balance)
	}
	if !w.PendingBalance.Equal(d(75)) {
		t.Errorf("expected pending 75, got %s", w.PendingBalance)
	}
}

func TestReleasePending_InsufficientPending(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	l.MoveToPending(ctx, "seller", d(40), "order-1", "order", "sale")

	if _, err := l.ReleasePending(ctx, "seller", d(50), "po-1", "payout", "payout"); !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	w, _ := l.Wallet(ctx, "seller")
	if !w.PendingBalance.Equal(d(40)) {
		t.Errorf("pending should be unchanged at 40, got %s", w.PendingBalance)
	}
}

func TestReleaseRestore_Pending(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	l.MoveToPending(ctx, "seller", d(90), "order-1", "order", "sale")
	l.ReleasePending(ctx, "seller", d(40), "po-1", "payout", "payout")

	w, _ := l.Wallet(ctx, "seller")
	if !w.PendingBalance.Equal(d(50)) {
		t.Fatalf("expected pending 50 after reservation, got %s", w.PendingBalance)
	}

	l.RestorePending(ctx, "seller", d(40), "po-1", "payout", "payout failed")
	w, _ = l.Wallet(ctx, "seller")
	if !w.PendingBalance.Equal(d(90)) {
		t.Errorf("expected pending restored to 90, got %s", w.PendingBalance)
	}
}

func TestAdminAdjust_RejectsNegativeResult(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	l.Deposit(ctx, "acct-1", d(30), "card")

	if _, err := l.AdminAdjust(ctx, "acct-1", d(-31), "correction"); !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	txn, err := l.AdminAdjust(ctx, "acct-1", d(-30), "correction")
	if err != nil {
		t.Fatalf("adjust to exactly zero should succeed: %v", err)
	}
	if txn.Type != model.TxnAdminAdjustment {
		t.Errorf("expected admin_adjustment type, got %s", txn.Type)
	}
}

// Replaying a wallet's history newest-to-oldest must land on the current
// balance, and the latest entry's balance_after must match it.
func TestLedger_ReplayInvariant(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	l.Deposit(ctx, "acct-1", d(200), "card")
	l.Debit(ctx, "acct-1", d(45.50), model.TxnPurchase, "c1", "checkout", "purchase")
	l.Credit(ctx, "acct-1", d(20.50), model.TxnEscrowRefund, "c1", "checkout", "refund")
	l.MoveToPending(ctx, "acct-1", d(99), "o1", "order", "sale")
	l.AdminAdjust(ctx, "acct-1", d(-25), "correction")

	w, _ := l.Wallet(ctx, "acct-1")
	txns, total, err := l.Transactions(ctx, "acct-1", 0, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected 5 transactions, got %d", total)
	}

	// Newest first: the head entry explains the current balance.
	if !txns[0].BalanceAfter.Equal(w.Balance) {
		t.Errorf("latest balance_after %s != wallet balance %s", txns[0].BalanceAfter, w.Balance)
	}

	// Replay oldest to newest, skipping pending-only entries.
	replayed := decimal.Zero
	for i := len(txns) - 1; i >= 0; i-- {
		switch txns[i].Type {
		case model.TxnEscrowRelease, model.TxnPayout, model.TxnRefundCredit:
			// Pending-balance entries never move the spendable balance.
		default:
			replayed = replayed.Add(txns[i].Amount)
		}
		if !txns[i].BalanceAfter.Equal(replayed) {
			t.Errorf("entry %d (%s): balance_after %s, replay %s",
				i, txns[i].Type, txns[i].BalanceAfter, replayed)
		}
	}
	if !replayed.Equal(w.Balance) {
		t.Errorf("replayed %s != balance %s", replayed, w.Balance)
	}
}

func TestTransactions_NewestFirstPagination(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		l.Deposit(ctx, "acct-1", decimal.NewFromInt(int64(i)), "card")
	}

	pg, total, err := l.Transactions(ctx, "acct-1", 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 5 {
		t.Errorf("expected total 5, got %d", total)
	}
	if len(pg) != 2 {
		t.Fatalf("expected page of 2, got %d", len(pg))
	}
	// Newest first: deposits 4 then 3 after skipping 5.
	if !pg[0].Amount.Equal(d(4)) || !pg[1].Amount.Equal(d(3)) {
		t.Errorf("expected amounts [4 3], got [%s %s]", pg[0].Amount, pg[1].Amount)
	}
}
