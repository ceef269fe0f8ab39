package ledger

import (
	"context"
	"encoding/json"

	sdkerrors "cosmossdk.io/errors"
	"cosmossdk.io/math"
)

// Bank maintains token balances as ledger accounts, one per participant.
// Balance mutations are commutative, so version conflicts under concurrent
// writers are resolved by re-reading and replaying, bounded by casAttempts.
type Bank struct {
	ledger Ledger
}

const casAttempts = 16

var balanceSeed = []byte("balance")

// NewBank wraps a ledger with balance bookkeeping.
func NewBank(l Ledger) *Bank {
	return &Bank{ledger: l}
}

type balanceRecord struct {
	Amount math.Int `json:"amount"`
}

// BalanceAddress derives the balance account address for a participant.
func BalanceAddress(participant string) Address {
	return Derive(balanceSeed, []byte(participant))
}

// BalanceOf returns the participant's balance, zero when the account has
// never been funded.
func (b *Bank) BalanceOf(ctx context.Context, participant string) (math.Int, error) {
	rec, found, err := b.ledger.Get(ctx, BalanceAddress(participant))
	if err != nil {
		return math.ZeroInt(), err
	}
	if !found {
		return math.ZeroInt(), nil
	}
	var bal balanceRecord
	if err := json.Unmarshal(rec.Data, &bal); err != nil {
		return math.ZeroInt(), sdkerrors.Wrap(ErrUnavailable, "corrupt balance record")
	}
	return bal.Amount, nil
}

// Credit adds amount to the participant's balance.
func (b *Bank) Credit(ctx context.Context, participant string, amount math.Int) error {
	if amount.IsNegative() {
		return sdkerrors.Wrap(ErrInsufficientBalance, "negative credit")
	}
	return b.mutate(ctx, participant, func(cur math.Int) (math.Int, error) {
		return cur.Add(amount), nil
	})
}

// Debit removes amount from the participant's balance, failing with
// ErrInsufficientBalance when the balance would go negative.
func (b *Bank) Debit(ctx context.Context, participant string, amount math.Int) error {
	if amount.IsNegative() {
		return sdkerrors.Wrap(ErrInsufficientBalance, "negative debit")
	}
	return b.mutate(ctx, participant, func(cur math.Int) (math.Int, error) {
		next := cur.Sub(amount)
		if next.IsNegative() {
			return math.ZeroInt(), sdkerrors.Wrapf(ErrInsufficientBalance, "balance %s, debit %s", cur, amount)
		}
		return next, nil
	})
}

// Transfer debits from and credits to atomically from the caller's point of
// view: the credit is only applied after the debit commits.
func (b *Bank) Transfer(ctx context.Context, from, to string, amount math.Int) error {
	if err := b.Debit(ctx, from, amount); err != nil {
		return err
	}
	return b.Credit(ctx, to, amount)
}

func (b *Bank) mutate(ctx context.Context, participant string, apply func(math.Int) (math.Int, error)) error {
	addr := BalanceAddress(participant)

	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		rec, found, err := b.ledger.Get(ctx, addr)
		if err != nil {
			return err
		}

		cur := math.ZeroInt()
		version := uint64(0)
		if found {
			var bal balanceRecord
			if err := json.Unmarshal(rec.Data, &bal); err != nil {
				return sdkerrors.Wrap(ErrUnavailable, "corrupt balance record")
			}
			cur = bal.Amount
			version = rec.Version
		}

		next, err := apply(cur)
		if err != nil {
			return err
		}

		data, err := json.Marshal(balanceRecord{Amount: next})
		if err != nil {
			return err
		}

		err = b.ledger.Put(ctx, addr, data, version)
		if err == nil {
			return nil
		}
		if !sdkerrors.IsOf(err, ErrVersionConflict) {
			return err
		}
		lastErr = err
	}
	return sdkerrors.Wrap(lastErr, "balance update contention exhausted")
}
