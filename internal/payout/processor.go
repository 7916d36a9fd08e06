// Package payout converts seller earnings into external transfers.
//
// The amount is reserved out of the wallet's pending balance at request
// time, so the same earnings cannot back two payouts. Processing is
// asynchronous: a background worker claims pending payouts and moves them
// processing → completed, or → failed with the reserved amount restored.
// Once a payout leaves pending there is no cancellation; requesters
// observe completion by polling.
package payout

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradepost/escrow-engine/internal/metrics"
	"github.com/tradepost/escrow-engine/internal/model"
	"github.com/tradepost/escrow-engine/internal/store"
	"github.com/tradepost/escrow-engine/internal/wallet"
)

var (
	// ErrNotSeller is returned when a non-seller requests a payout.
	ErrNotSeller = errors.New("payout: only sellers can request payouts")

	// ErrInvalidMethod is returned for an unrecognized payout method.
	ErrInvalidMethod = errors.New("payout: unsupported payout method")
)

// methodRegex matches snake_case method identifiers like "bank_transfer".
var methodRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{2,49}$`)

// TransferFunc performs the external transfer for one claimed payout and
// returns the provider reference. Failures mark the payout failed and
// restore the reserved funds.
type TransferFunc func(ctx context.Context, p *model.Payout) (string, error)

// Broadcaster receives payout lifecycle notifications. May be nil.
type Broadcaster interface {
	PayoutStatus(payoutID string, status model.PayoutStatus, amount decimal.Decimal)
}

// Processor handles payout requests and runs the background worker.
type Processor struct {
	store    store.Store
	ledger   *wallet.Ledger
	transfer TransferFunc
	events   Broadcaster
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewProcessor creates a payout processor. Pass nil transfer to use the
// built-in simulated provider, and nil events to disable broadcasting.
func NewProcessor(st store.Store, ledger *wallet.Ledger, events Broadcaster, interval time.Duration, transfer TransferFunc) *Processor {
	if transfer == nil {
		transfer = simulatedTransfer
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Processor{
		store:    st,
		ledger:   ledger,
		transfer: transfer,
		events:   events,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Request reserves amount from the seller's pending balance and creates a
// payout in state pending. The reservation is the guard against
// double-requesting the same earnings.
func (p *Processor) Request(ctx context.Context, actor *model.Account, amount decimal.Decimal, method, notes string) (*model.Payout, error) {
	if actor.Role != model.RoleSeller && actor.Role != model.RoleAdmin {
		return nil, ErrNotSeller
	}
	if method == "" {
		method = "bank_transfer"
	}
	if !methodRegex.MatchString(method) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMethod, method)
	}

	payoutID := uuid.New().String()
	amount = amount.Round(2)

	if _, err := p.ledger.ReleasePending(ctx, actor.ID, amount, payoutID, "payout",
		fmt.Sprintf("Payout %s via %s", payoutID, method)); err != nil {
		return nil, err
	}

	po := &model.Payout{
		ID:        payoutID,
		SellerID:  actor.ID,
		Amount:    amount,
		Status:    model.PayoutPending,
		Method:    method,
		Notes:     notes,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.store.CreatePayout(ctx, po); err != nil {
		// The reservation already committed; give the funds back.
		if _, rerr := p.ledger.RestorePending(ctx, actor.ID, amount, payoutID, "payout",
			"Payout creation failed, funds returned"); rerr != nil {
			slog.Error("payout reservation rollback failed", "payout", payoutID, "err", rerr)
		}
		return nil, err
	}

	slog.Info("payout requested",
		"payout_id", po.ID,
		"seller", actor.ID,
		"amount", amount.String(),
		"method", method,
	)
	return po, nil
}

// Get returns a payout, restricted to its seller and admins.
func (p *Processor) Get(ctx context.Context, actor *model.Account, payoutID string) (*model.Payout, error) {
	po, err := p.store.GetPayout(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RoleAdmin && po.SellerID != actor.ID {
		return nil, store.ErrNotFound
	}
	return po, nil
}

// List returns the seller's payouts, newest first.
func (p *Processor) List(ctx context.Context, actor *model.Account) ([]model.Payout, error) {
	return p.store.ListPayoutsBySeller(ctx, actor.ID)
}

// Start launches the background worker. Call Stop to shut it down.
func (p *Processor) Start() {
	go func() {
		defer close(p.done)
		slog.Info("payout worker started", "interval", p.interval)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.ProcessPending(context.Background())
			}
		}
	}()
}

// Stop shuts the worker down and waits for the current pass to finish.
func (p *Processor) Stop() {
	close(p.stop)
	<-p.done
}

// ProcessPending runs one worker pass: claim pending payouts, execute the
// external transfer for each, and settle completed or failed. Exported so
// tests can step the worker deterministically.
func (p *Processor) ProcessPending(ctx context.Context) int {
	claimed, err := p.store.ClaimPendingPayouts(ctx, 10)
	if err != nil {
		slog.Error("payout claim failed", "err", err)
		return 0
	}

	for i := range claimed {
		po := &claimed[i]
		p.settle(ctx, po)
	}
	return len(claimed)
}

// settle completes or fails one claimed payout. Failure restores the
// reserved amount to the seller's pending balance, the compensating
// action, never a spendable-balance credit.
func (p *Processor) settle(ctx context.Context, po *model.Payout) {
	ref, err := p.transfer(ctx, po)
	now := time.Now().UTC()

	if err != nil {
		po.Status = model.PayoutFailed
		if uerr := p.store.UpdatePayout(ctx, po); uerr != nil {
			slog.Error("payout status update failed", "payout", po.ID, "err", uerr)
			return
		}
		if _, rerr := p.ledger.RestorePending(ctx, po.SellerID, po.Amount, po.ID, "payout",
			fmt.Sprintf("Payout %s failed, funds returned", po.ID)); rerr != nil {
			slog.Error("payout compensation failed", "payout", po.ID, "err", rerr)
		}
		metrics.PayoutsTotal.WithLabelValues(string(model.PayoutFailed)).Inc()
		slog.Warn("payout failed", "payout_id", po.ID, "err", err)
		p.broadcast(po)
		return
	}

	po.Status = model.PayoutCompleted
	po.Reference = ref
	po.CompletedAt = &now
	if err := p.store.UpdatePayout(ctx, po); err != nil {
		slog.Error("payout status update failed", "payout", po.ID, "err", err)
		return
	}
	metrics.PayoutsTotal.WithLabelValues(string(model.PayoutCompleted)).Inc()
	slog.Info("payout completed", "payout_id", po.ID, "reference", ref, "amount", po.Amount.String())
	p.broadcast(po)
}

func (p *Processor) broadcast(po *model.Payout) {
	if p.events != nil {
		p.events.PayoutStatus(po.ID, po.Status, po.Amount)
	}
}

// simulatedTransfer stands in for a real payment provider and always
// succeeds with a generated reference.
func simulatedTransfer(_ context.Context, _ *model.Payout) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "PAY-" + strings.ToUpper(hex.EncodeToString(buf)), nil
}
