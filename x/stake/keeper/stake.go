package keeper

import (
	"context"
	"encoding/json"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"cosmossdk.io/math"

	"github.com/haunti-network/haunti/pkg/ledger"
	"github.com/haunti-network/haunti/x/stake/types"
)

// Stake locks amount of the staker's balance into pool. A lockup extends the
// position's lock-end; it never shortens an existing one. The resulting
// position must meet the pool minimum.
func (k *Keeper) Stake(ctx context.Context, staker string, pool types.PoolType, amount math.Int, lockup time.Duration) error {
	if !pool.Valid() {
		return sdkerrors.Wrapf(types.ErrInvalidPool, "%q", pool)
	}
	if amount.IsNil() || !amount.IsPositive() {
		return sdkerrors.Wrap(types.ErrInvalidAmount, "stake must be positive")
	}
	if lockup < 0 || lockup > k.params.MaxLockup {
		return sdkerrors.Wrapf(types.ErrInvalidAmount, "lockup %s out of range", lockup)
	}

	if err := k.bank.Debit(ctx, staker, amount); err != nil {
		return err
	}

	now := k.now()
	err := k.update(ctx, PositionAddress(staker, pool), func(data []byte, found bool) ([]byte, error) {
		pos := types.Position{
			Staker:         staker,
			Pool:           pool,
			Amount:         math.ZeroInt(),
			AccruedRewards: math.ZeroInt(),
			RewardsClaimed: math.ZeroInt(),
			CreatedAt:      now,
		}
		if found {
			if err := json.Unmarshal(data, &pos); err != nil {
				return nil, sdkerrors.Wrap(types.ErrCorruptState, "position record")
			}
		}

		next := pos.Amount.Add(amount)
		if next.LT(k.params.MinStakeFor(pool)) {
			return nil, sdkerrors.Wrapf(types.ErrBelowMinimumStake,
				"position %s below pool %s minimum %s", next, pool, k.params.MinStakeFor(pool))
		}

		pos.Amount = next
		if lockup > 0 {
			pos.LockStart = now
			if lockEnd := now.Add(lockup); lockEnd.After(pos.LockEnd) {
				pos.LockEnd = lockEnd
			}
		}
		pos.UpdatedAt = now
		return json.Marshal(pos)
	})
	if err != nil {
		// The debit already committed; put the funds back.
		if refundErr := k.bank.Credit(ctx, staker, amount); refundErr != nil {
			k.logger.Error("stake refund failed", "staker", staker, "amount", amount, "error", refundErr)
		}
		return err
	}

	if err := k.adjustPoolTotal(ctx, pool, amount, math.ZeroInt()); err != nil {
		return err
	}

	k.ledger.Emit(ctx, ledger.Event{
		Type: types.EventTypeStakeDeposited,
		Attributes: map[string]string{
			types.AttributeKeyStaker: staker,
			types.AttributeKeyPool:   string(pool),
			types.AttributeKeyAmount: amount.String(),
		},
		EmittedAt: now,
	})
	k.logger.Info("stake deposited", "staker", staker, "pool", pool, "amount", amount, "lockup", lockup)
	return nil
}

// Unstake releases amount back to the staker's balance. Fails with
// ErrLockActive before the lock ends and ErrInsufficientStake when the
// position cannot cover the withdrawal.
func (k *Keeper) Unstake(ctx context.Context, staker string, pool types.PoolType, amount math.Int) error {
	if !pool.Valid() {
		return sdkerrors.Wrapf(types.ErrInvalidPool, "%q", pool)
	}
	if amount.IsNil() || !amount.IsPositive() {
		return sdkerrors.Wrap(types.ErrInvalidAmount, "withdrawal must be positive")
	}

	now := k.now()
	err := k.update(ctx, PositionAddress(staker, pool), func(data []byte, found bool) ([]byte, error) {
		if !found {
			return nil, sdkerrors.Wrapf(types.ErrPositionNotFound, "staker %s pool %s", staker, pool)
		}
		var pos types.Position
		if err := json.Unmarshal(data, &pos); err != nil {
			return nil, sdkerrors.Wrap(types.ErrCorruptState, "position record")
		}
		if pos.Locked(now) {
			return nil, sdkerrors.Wrapf(types.ErrLockActive, "until %s", pos.LockEnd)
		}
		if pos.Amount.LT(amount) {
			return nil, sdkerrors.Wrapf(types.ErrInsufficientStake, "position %s, withdrawal %s", pos.Amount, amount)
		}
		pos.Amount = pos.Amount.Sub(amount)
		pos.UpdatedAt = now
		return json.Marshal(pos)
	})
	if err != nil {
		return err
	}

	if err := k.adjustPoolTotal(ctx, pool, math.ZeroInt(), amount); err != nil {
		return err
	}
	if err := k.bank.Credit(ctx, staker, amount); err != nil {
		return err
	}

	k.ledger.Emit(ctx, ledger.Event{
		Type: types.EventTypeStakeWithdrawn,
		Attributes: map[string]string{
			types.AttributeKeyStaker: staker,
			types.AttributeKeyPool:   string(pool),
			types.AttributeKeyAmount: amount.String(),
		},
		EmittedAt: now,
	})
	k.logger.Info("stake withdrawn", "staker", staker, "pool", pool, "amount", amount)
	return nil
}

// adjustPoolTotal applies a staked-total delta to the pool aggregate.
func (k *Keeper) adjustPoolTotal(ctx context.Context, pool types.PoolType, add, sub math.Int) error {
	now := k.now()
	return k.update(ctx, PoolAddress(pool), func(data []byte, found bool) ([]byte, error) {
		p := types.NewPool(pool, now)
		if found {
			if err := json.Unmarshal(data, &p); err != nil {
				return nil, sdkerrors.Wrap(types.ErrCorruptState, "pool record")
			}
		}
		p.TotalStaked = p.TotalStaked.Add(add).Sub(sub)
		if p.TotalStaked.IsNegative() {
			p.TotalStaked = math.ZeroInt()
		}
		p.UpdatedAt = now
		return json.Marshal(p)
	})
}
