// Package wallet implements the append-only ledger behind every wallet.
//
// Each operation serializes on the wallet's lock, mutates balance or
// pending balance, and appends exactly one Transaction explaining the
// change. BalanceAfter on a transaction always records the spendable
// balance, never the pending balance, so replaying a wallet's entries in
// creation order reproduces its current balance exactly.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradepost/escrow-engine/internal/keylock"
	"github.com/tradepost/escrow-engine/internal/metrics"
	"github.com/tradepost/escrow-engine/internal/model"
	"github.com/tradepost/escrow-engine/internal/store"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the balance,
	// a reservation exceeds the pending balance, or an adjustment would
	// leave the balance negative. The wallet is unchanged.
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")

	// ErrInvalidAmount is returned for zero or negative operation amounts.
	ErrInvalidAmount = errors.New("wallet: amount must be positive")
)

// Ledger performs all wallet mutations. Concurrent operations on the same
// wallet serialize through the lock map; operations on different wallets
// proceed in parallel.
type Ledger struct {
	store store.Store
	locks *keylock.Map
}

// NewLedger creates a ledger over the given store and lock map.
func NewLedger(st store.Store, locks *keylock.Map) *Ledger {
	return &Ledger{store: st, locks: locks}
}

// Wallet returns the account's wallet, creating an empty one on first use.
func (l *Ledger) Wallet(ctx context.Context, accountID string) (*model.Wallet, error) {
	w, err := l.store.GetWallet(ctx, accountID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	w = &model.Wallet{
		AccountID:      accountID,
		Balance:        decimal.Zero,
		PendingBalance: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := l.store.CreateWallet(ctx, w); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost a creation race; the other writer's wallet wins.
			return l.store.GetWallet(ctx, accountID)
		}
		return nil, err
	}
	return w, nil
}

// Transactions returns a page of the wallet's ledger, newest first.
func (l *Ledger) Transactions(ctx context.Context, accountID string, offset, limit int) ([]model.Transaction, int, error) {
	return l.store.GetTransactions(ctx, accountID, offset, limit)
}

// Deposit credits external funds into the spendable balance.
func (l *Ledger) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, method string) (*model.Transaction, error) {
	amount = amount.Round(2)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	return l.apply(ctx, accountID, func(w *model.Wallet) (*model.Transaction, error) {
		w.Balance = w.Balance.Add(amount)
		return &model.Transaction{
			Amount:      amount,
			Type:        model.TxnDeposit,
			Description: fmt.Sprintf("Deposit via %s", method),
		}, nil
	})
}

// Debit removes funds from the spendable balance, failing with
// ErrInsufficientFunds when amount exceeds it.
func (l *Ledger) Debit(ctx context.Context, accountID string, amount decimal.Decimal, typ model.TransactionType, refID, refType, description string) (*model.Transaction, error) {
	amount = amount.Round(2)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	return l.apply(ctx, accountID, func(w *model.Wallet) (*model.Transaction, error) {
		if w.Balance.LessThan(amount) {
			return nil, fmt.Errorf("%w: available %s, required %s", ErrInsufficientFunds, w.Balance, amount)
		}
		w.Balance = w.Balance.Sub(amount)
		return &model.Transaction{
			Amount:        amount.Neg(),
			Type:          typ,
			ReferenceID:   refID,
			ReferenceType: refType,
			Description:   description,
		}, nil
	})
}

// Credit adds funds to the spendable balance.
func (l *Ledger) Credit(ctx context.Context, accountID string, amount decimal.Decimal, typ model.TransactionType, refID, refType, description string) (*model.Transaction, error) {
	amount = amount.Round(2)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	return l.apply(ctx, accountID, func(w *model.Wallet) (*model.Transaction, error) {
		w.Balance = w.Balance.Add(amount)
		return &model.Transaction{
			Amount:        amount,
			Type:          typ,
			ReferenceID:   refID,
			ReferenceType: refType,
			Description:   description,
		}, nil
	})
}

// MoveToPending credits escrowed funds into the seller's pending balance
// on escrow release. The spendable balance is untouched, so BalanceAfter
// on the recorded entry equals the balance before the call.
func (l *Ledger) MoveToPending(ctx context.Context, accountID string, amount decimal.Decimal, refID, refType, description string) (*model.Transaction, error) {
	amount = amount.Round(2)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	return l.apply(ctx, accountID, func(w *model.Wallet) (*model.Transaction, error) {
		w.PendingBalance = w.PendingBalance.Add(amount)
		return &model.Transaction{
			Amount:        amount,
			Type:          model.TxnEscrowRelease,
			ReferenceID:   refID,
			ReferenceType: refType,
			Description:   description,
		}, nil
	})
}

// ReleasePending reserves earnings out of the pending balance for an
// external payout. The reservation happens at payout request time so the
// same earnings cannot be requested twice.
func (l *Ledger) ReleasePending(ctx context.Context, accountID string, amount decimal.Decimal, refID, refType, description string) (*model.Transaction, error) {
	amount = amount.Round(2)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	return l.apply(ctx, accountID, func(w *model.Wallet) (*model.Transaction, error) {
		if w.PendingBalance.LessThan(amount) {
			return nil, fmt.Errorf("%w: pending %s, required %s", ErrInsufficientFunds, w.PendingBalance, amount)
		}
		w.PendingBalance = w.PendingBalance.Sub(amount)
		return &model.Transaction{
			Amount:        amount.Neg(),
			Type:          model.TxnPayout,
			ReferenceID:   refID,
			ReferenceType: refType,
			Description:   description,
		}, nil
	})
}

// ReclaimPending reverses an earlier MoveToPending when the operation
// that released the escrow could not be recorded. The entry is a negative
// escrow_release, so the pair nets to zero on the ledger.
func (l *Ledger) ReclaimPending(ctx context.Context, accountID string, amount decimal.Decimal, refID, refType, description string) (*model.Transaction, error) {
	amount = amount.Round(2)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	return l.apply(ctx, accountID, func(w *model.Wallet) (*model.Transaction, error) {
		if w.PendingBalance.LessThan(amount) {
			return nil, fmt.Errorf("%w: pending %s, required %s", ErrInsufficientFunds, w.PendingBalance, amount)
		}
		w.PendingBalance = w.PendingBalance.Sub(amount)
		return &model.Transaction{
			Amount:        amount.Neg(),
			Type:          model.TxnEscrowRelease,
			ReferenceID:   refID,
			ReferenceType: refType,
			Description:   description,
		}, nil
	})
}

// RestorePending returns a reserved amount to the pending balance after a
// failed payout. This is the compensating action for ReleasePending; it
// never touches the spendable balance.
func (l *Ledger) RestorePending(ctx context.Context, accountID string, amount decimal.Decimal, refID, refType, description string) (*model.Transaction, error) {
	amount = amount.Round(2)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	return l.apply(ctx, accountID, func(w *model.Wallet) (*model.Transaction, error) {
		w.PendingBalance = w.PendingBalance.Add(amount)
		return &model.Transaction{
			Amount:        amount,
			Type:          model.TxnRefundCredit,
			ReferenceID:   refID,
			ReferenceType: refType,
			Description:   description,
		}, nil
	})
}

// AdminAdjust applies a signed correction to the spendable balance.
// Adjustments that would leave the balance negative are rejected.
func (l *Ledger) AdminAdjust(ctx context.Context, accountID string, amount decimal.Decimal, description string) (*model.Transaction, error) {
	amount = amount.Round(2)
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	return l.apply(ctx, accountID, func(w *model.Wallet) (*model.Transaction, error) {
		next := w.Balance.Add(amount)
		if next.IsNegative() {
			return nil, fmt.Errorf("%w: adjustment would leave balance negative", ErrInsufficientFunds)
		}
		w.Balance = next
		return &model.Transaction{
			Amount:      amount,
			Type:        model.TxnAdminAdjustment,
			Description: description,
		}, nil
	})
}

// apply runs one atomic wallet mutation: acquire the wallet lock, load
// (or lazily create) the wallet, let fn mutate it and describe the change,
// then persist wallet and transaction as a unit.
func (l *Ledger) apply(ctx context.Context, accountID string, fn func(w *model.Wallet) (*model.Transaction, error)) (*model.Transaction, error) {
	release, err := l.locks.Acquire(ctx, keylock.WalletKey(accountID))
	if err != nil {
		return nil, err
	}
	defer release()

	w, err := l.Wallet(ctx, accountID)
	if err != nil {
		return nil, err
	}

	txn, err := fn(w)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	w.UpdatedAt = now
	txn.ID = uuid.New().String()
	txn.AccountID = accountID
	txn.BalanceAfter = w.Balance
	txn.CreatedAt = now

	if err := l.store.ApplyWalletChange(ctx, w, txn); err != nil {
		return nil, err
	}
	metrics.TransactionsTotal.WithLabelValues(string(txn.Type)).Inc()
	return txn, nil
}
