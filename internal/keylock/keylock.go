// Package keylock provides per-key mutual exclusion with bounded waits.
//
// Every mutation of a wallet, order, or dispute runs under that entity's
// lock, so concurrent operations on the same entity serialize while
// operations on different entities proceed in parallel. Acquisition waits
// at most the configured timeout and then fails with ErrBusy, which callers
// surface as a retryable condition.
//
// Lock ordering for multi-entity operations: an order or dispute lock may
// be held while acquiring a wallet lock, but wallet locks are leaf-level;
// no order or dispute lock is ever acquired while a wallet lock is held.
package keylock

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned when a lock cannot be acquired within the bounded
// wait. The operation had no effect and may be retried.
var ErrBusy = errors.New("keylock: entity busy, lock acquisition timed out")

// Map is a set of named locks created lazily on first use.
type Map struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
	wait  time.Duration
}

// New creates a lock map whose acquisitions wait at most maxWait.
func New(maxWait time.Duration) *Map {
	if maxWait <= 0 {
		maxWait = 3 * time.Second
	}
	return &Map{
		locks: make(map[string]*semaphore.Weighted),
		wait:  maxWait,
	}
}

// Acquire takes the lock for key, blocking up to the bounded wait. On
// success it returns a release function that must be called exactly once.
// On timeout it returns ErrBusy; if the caller's context ends first, its
// error is returned instead.
func (m *Map) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	sem, ok := m.locks[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		m.locks[key] = sem
	}
	m.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, m.wait)
	defer cancel()

	if err := sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrBusy
	}
	return func() { sem.Release(1) }, nil
}

// WalletKey names the lock guarding one account's wallet.
func WalletKey(accountID string) string { return "wallet:" + accountID }

// OrderKey names the lock guarding one order.
func OrderKey(orderID string) string { return "order:" + orderID }

// DisputeKey names the lock guarding one dispute.
func DisputeKey(disputeID string) string { return "dispute:" + disputeID }
