package keeper

import (
	"context"
	"encoding/json"

	sdkerrors "cosmossdk.io/errors"
	"cosmossdk.io/math"

	"github.com/haunti-network/haunti/pkg/ledger"
	"github.com/haunti-network/haunti/x/stake/types"
)

const secondsPerYear = 365 * 24 * 3600

// AccrueReward credits amount of claimable rewards to the staker's position
// and the pool's lifetime accrual total.
func (k *Keeper) AccrueReward(ctx context.Context, staker string, pool types.PoolType, amount math.Int) error {
	if !pool.Valid() {
		return sdkerrors.Wrapf(types.ErrInvalidPool, "%q", pool)
	}
	if amount.IsNil() || amount.IsNegative() {
		return sdkerrors.Wrap(types.ErrInvalidAmount, "reward must be non-negative")
	}
	if amount.IsZero() {
		return nil
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
		pos.AccruedRewards = pos.AccruedRewards.Add(amount)
		pos.UpdatedAt = now
		return json.Marshal(pos)
	})
	if err != nil {
		return err
	}

	err = k.update(ctx, PoolAddress(pool), func(data []byte, found bool) ([]byte, error) {
		p := types.NewPool(pool, now)
		if found {
			if err := json.Unmarshal(data, &p); err != nil {
				return nil, sdkerrors.Wrap(types.ErrCorruptState, "pool record")
			}
		}
		p.TotalRewardsAccrued = p.TotalRewardsAccrued.Add(amount)
		p.UpdatedAt = now
		return json.Marshal(p)
	})
	if err != nil {
		return err
	}

	k.ledger.Emit(ctx, ledger.Event{
		Type: types.EventTypeRewardAccrued,
		Attributes: map[string]string{
			types.AttributeKeyStaker: staker,
			types.AttributeKeyPool:   string(pool),
			types.AttributeKeyAmount: amount.String(),
		},
		EmittedAt: now,
	})
	return nil
}

// ClaimRewards pays out the staker's claimable rewards to their balance and
// returns the amount paid.
func (k *Keeper) ClaimRewards(ctx context.Context, staker string, pool types.PoolType) (math.Int, error) {
	if !pool.Valid() {
		return math.ZeroInt(), sdkerrors.Wrapf(types.ErrInvalidPool, "%q", pool)
	}

	now := k.now()
	var claimed math.Int
	err := k.update(ctx, PositionAddress(staker, pool), func(data []byte, found bool) ([]byte, error) {
		if !found {
			return nil, sdkerrors.Wrapf(types.ErrPositionNotFound, "staker %s pool %s", staker, pool)
		}
		var pos types.Position
		if err := json.Unmarshal(data, &pos); err != nil {
			return nil, sdkerrors.Wrap(types.ErrCorruptState, "position record")
		}
		claimed = pos.AccruedRewards
		pos.AccruedRewards = math.ZeroInt()
		pos.RewardsClaimed = pos.RewardsClaimed.Add(claimed)
		pos.UpdatedAt = now
		return json.Marshal(pos)
	})
	if err != nil {
		return math.ZeroInt(), err
	}
	if claimed.IsZero() {
		return claimed, nil
	}

	if err := k.bank.Credit(ctx, staker, claimed); err != nil {
		return math.ZeroInt(), err
	}

	k.ledger.Emit(ctx, ledger.Event{
		Type: types.EventTypeRewardsClaimed,
		Attributes: map[string]string{
			types.AttributeKeyStaker: staker,
			types.AttributeKeyPool:   string(pool),
			types.AttributeKeyAmount: claimed.String(),
		},
		EmittedAt: now,
	})
	k.logger.Info("rewards claimed", "staker", staker, "pool", pool, "amount", claimed)
	return claimed, nil
}

// GetAPY derives the pool's annualized reward rate from its historical
// accrual over staked principal. A pool with zero principal or no history
// yields zero, never a division error.
func (k *Keeper) GetAPY(ctx context.Context, pool types.PoolType) (math.LegacyDec, error) {
	p, err := k.GetPool(ctx, pool)
	if err != nil {
		return math.LegacyZeroDec(), err
	}
	if p.TotalStaked.IsZero() || p.TotalRewardsAccrued.IsZero() {
		return math.LegacyZeroDec(), nil
	}

	age := k.now().Sub(p.CreatedAt)
	ageSeconds := int64(age.Seconds())
	if ageSeconds <= 0 {
		return math.LegacyZeroDec(), nil
	}

	rate := math.LegacyNewDecFromInt(p.TotalRewardsAccrued).
		QuoInt(p.TotalStaked).
		MulInt64(secondsPerYear).
		QuoInt64(ageSeconds)
	return rate, nil
}
