package keeper

import (
	"context"
	"encoding/json"
	"strconv"

	sdkerrors "cosmossdk.io/errors"
	"cosmossdk.io/math"

	"github.com/haunti-network/haunti/pkg/ledger"
	"github.com/haunti-network/haunti/x/stake/types"
)

type slashSequence struct {
	Next uint64 `json:"next"`
}

type slashIndex struct {
	IDs []uint64 `json:"ids"`
}

// Slash reduces the staker's position by fraction, ignoring any active
// lockup. The reduction is clamped to the position balance; the actual
// slashed amount is returned and recorded. Slashed stake is burned: it
// leaves the position without being credited anywhere.
func (k *Keeper) Slash(ctx context.Context, staker string, pool types.PoolType, fraction math.LegacyDec, reason string) (math.Int, error) {
	if !pool.Valid() {
		return math.ZeroInt(), sdkerrors.Wrapf(types.ErrInvalidPool, "%q", pool)
	}
	if fraction.IsNil() {
		fraction = k.params.SlashFraction
	}
	if fraction.IsNegative() || fraction.GT(math.LegacyOneDec()) {
		return math.ZeroInt(), sdkerrors.Wrapf(types.ErrInvalidFraction, "%s", fraction)
	}

	now := k.now()
	var requested, actual math.Int
	err := k.update(ctx, PositionAddress(staker, pool), func(data []byte, found bool) ([]byte, error) {
		if !found {
			return nil, sdkerrors.Wrapf(types.ErrPositionNotFound, "staker %s pool %s", staker, pool)
		}
		var pos types.Position
		if err := json.Unmarshal(data, &pos); err != nil {
			return nil, sdkerrors.Wrap(types.ErrCorruptState, "position record")
		}

		requested = fraction.MulInt(pos.Amount).TruncateInt()
		actual = requested
		if actual.GT(pos.Amount) {
			actual = pos.Amount
		}
		pos.Amount = pos.Amount.Sub(actual)
		pos.UpdatedAt = now
		return json.Marshal(pos)
	})
	if err != nil {
		return math.ZeroInt(), err
	}

	if err := k.adjustPoolTotal(ctx, pool, math.ZeroInt(), actual); err != nil {
		return math.ZeroInt(), err
	}

	id, err := k.nextSlashID(ctx)
	if err != nil {
		return math.ZeroInt(), err
	}
	record := types.SlashRecord{
		ID:        id,
		Staker:    staker,
		Pool:      pool,
		Fraction:  fraction,
		Requested: requested,
		Actual:    actual,
		Reason:    reason,
		SlashedAt: now,
	}
	if err := k.writeSlashRecord(ctx, record); err != nil {
		return math.ZeroInt(), err
	}

	k.ledger.Emit(ctx, ledger.Event{
		Type: types.EventTypeStakeSlashed,
		Attributes: map[string]string{
			types.AttributeKeyStaker:    staker,
			types.AttributeKeyPool:      string(pool),
			types.AttributeKeyFraction:  fraction.String(),
			types.AttributeKeyRequested: requested.String(),
			types.AttributeKeyAmount:    actual.String(),
			types.AttributeKeyReason:    reason,
			types.AttributeKeySlashID:   strconv.FormatUint(record.ID, 10),
		},
		EmittedAt: now,
	})
	k.logger.Info("stake slashed",
		"staker", staker,
		"pool", pool,
		"fraction", fraction,
		"requested", requested,
		"actual", actual,
		"reason", reason,
	)
	return actual, nil
}

// SlashRecords returns the staker's slash history, oldest first.
func (k *Keeper) SlashRecords(ctx context.Context, staker string) ([]types.SlashRecord, error) {
	rec, found, err := k.ledger.Get(ctx, SlashIndexAddress(staker))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	var idx slashIndex
	if err := json.Unmarshal(rec.Data, &idx); err != nil {
		return nil, sdkerrors.Wrap(types.ErrCorruptState, "slash index record")
	}

	records := make([]types.SlashRecord, 0, len(idx.IDs))
	for _, id := range idx.IDs {
		srec, found, err := k.ledger.Get(ctx, SlashAddress(id))
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		var sr types.SlashRecord
		if err := json.Unmarshal(srec.Data, &sr); err != nil {
			return nil, sdkerrors.Wrap(types.ErrCorruptState, "slash record")
		}
		records = append(records, sr)
	}
	return records, nil
}

func (k *Keeper) nextSlashID(ctx context.Context) (uint64, error) {
	var id uint64
	err := k.update(ctx, ledger.Derive(seedModule, seedSlashSeq), func(data []byte, found bool) ([]byte, error) {
		seq := slashSequence{Next: 1}
		if found {
			if err := json.Unmarshal(data, &seq); err != nil {
				return nil, sdkerrors.Wrap(types.ErrCorruptState, "slash sequence record")
			}
		}
		id = seq.Next
		seq.Next++
		return json.Marshal(seq)
	})
	return id, err
}

func (k *Keeper) writeSlashRecord(ctx context.Context, record types.SlashRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := k.ledger.Put(ctx, SlashAddress(record.ID), data, 0); err != nil {
		return err
	}
	return k.update(ctx, SlashIndexAddress(record.Staker), func(data []byte, found bool) ([]byte, error) {
		var idx slashIndex
		if found {
			if err := json.Unmarshal(data, &idx); err != nil {
				return nil, sdkerrors.Wrap(types.ErrCorruptState, "slash index record")
			}
		}
		idx.IDs = append(idx.IDs, record.ID)
		return json.Marshal(idx)
	})
}
