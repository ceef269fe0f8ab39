// Package keeper implements the staking ledger: collateral positions per
// staker and pool, reward accrual and slashing, persisted as versioned
// ledger records.
package keeper

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"cosmossdk.io/log"

	"github.com/haunti-network/haunti/pkg/ledger"
	"github.com/haunti-network/haunti/x/stake/types"
)

const casAttempts = 16

var (
	seedModule     = []byte(types.ModuleName)
	seedPool       = []byte("pool")
	seedPosition   = []byte("position")
	seedSlash      = []byte("slash")
	seedSlashSeq   = []byte("slash_seq")
	seedSlashIndex = []byte("slash_index")
)

// PoolAddress derives the ledger address of a pool aggregate.
func PoolAddress(pool types.PoolType) ledger.Address {
	return ledger.Derive(seedModule, seedPool, []byte(pool))
}

// PositionAddress derives the ledger address of one staker's position in one
// pool. The (staker, pool) pair is the unit of mutual exclusion.
func PositionAddress(staker string, pool types.PoolType) ledger.Address {
	return ledger.Derive(seedModule, seedPosition, []byte(pool), []byte(staker))
}

// SlashAddress derives the ledger address of a slash record.
func SlashAddress(id uint64) ledger.Address {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return ledger.Derive(seedModule, seedSlash, buf[:])
}

// SlashIndexAddress derives the address of a staker's slash-record index.
func SlashIndexAddress(staker string) ledger.Address {
	return ledger.Derive(seedModule, seedSlashIndex, []byte(staker))
}

// Keeper mediates all staking state access.
type Keeper struct {
	ledger ledger.Ledger
	bank   *ledger.Bank
	params types.Params
	logger log.Logger
	now    func() time.Time
}

// Option configures a Keeper.
type Option func(*Keeper)

// WithTimeSource overrides the clock, used by tests to control lockups.
func WithTimeSource(now func() time.Time) Option {
	return func(k *Keeper) { k.now = now }
}

// New builds a staking keeper over the ledger and bank.
func New(l ledger.Ledger, bank *ledger.Bank, params types.Params, logger log.Logger, opts ...Option) *Keeper {
	k := &Keeper{
		ledger: l,
		bank:   bank,
		params: params,
		logger: logger.With("module", types.ModuleName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Params returns the module parameters.
func (k *Keeper) Params() types.Params {
	return k.params
}

// GetPosition returns the staker's position in pool.
func (k *Keeper) GetPosition(ctx context.Context, staker string, pool types.PoolType) (types.Position, error) {
	rec, found, err := k.ledger.Get(ctx, PositionAddress(staker, pool))
	if err != nil {
		return types.Position{}, err
	}
	if !found {
		return types.Position{}, sdkerrors.Wrapf(types.ErrPositionNotFound, "staker %s pool %s", staker, pool)
	}
	var pos types.Position
	if err := json.Unmarshal(rec.Data, &pos); err != nil {
		return types.Position{}, sdkerrors.Wrap(types.ErrCorruptState, "position record")
	}
	return pos, nil
}

// GetPool returns the pool aggregate, an empty pool when nothing has been
// staked yet.
func (k *Keeper) GetPool(ctx context.Context, pool types.PoolType) (types.Pool, error) {
	if !pool.Valid() {
		return types.Pool{}, sdkerrors.Wrapf(types.ErrInvalidPool, "%q", pool)
	}
	rec, found, err := k.ledger.Get(ctx, PoolAddress(pool))
	if err != nil {
		return types.Pool{}, err
	}
	if !found {
		return types.NewPool(pool, k.now()), nil
	}
	var p types.Pool
	if err := json.Unmarshal(rec.Data, &p); err != nil {
		return types.Pool{}, sdkerrors.Wrap(types.ErrCorruptState, "pool record")
	}
	return p, nil
}

// MeetsMinimum reports whether the staker's position in pool satisfies the
// configured minimum, as enforced at claim time.
func (k *Keeper) MeetsMinimum(ctx context.Context, staker string, pool types.PoolType) (bool, error) {
	pos, err := k.GetPosition(ctx, staker, pool)
	if err != nil {
		if sdkerrors.IsOf(err, types.ErrPositionNotFound) {
			return false, nil
		}
		return false, err
	}
	return pos.Amount.GTE(k.params.MinStakeFor(pool)), nil
}

// update applies a read-modify-write to one record with optimistic
// concurrency, replaying on version conflicts.
func (k *Keeper) update(ctx context.Context, addr ledger.Address, apply func(data []byte, found bool) ([]byte, error)) error {
	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		rec, found, err := k.ledger.Get(ctx, addr)
		if err != nil {
			return err
		}
		version := uint64(0)
		var cur []byte
		if found {
			version = rec.Version
			cur = rec.Data
		}

		next, err := apply(cur, found)
		if err != nil {
			return err
		}

		err = k.ledger.Put(ctx, addr, next, version)
		if err == nil {
			return nil
		}
		if !sdkerrors.IsOf(err, ledger.ErrVersionConflict) {
			return err
		}
		lastErr = err
	}
	return sdkerrors.Wrap(lastErr, "stake update contention exhausted")
}
