package keeper

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"cosmossdk.io/math"

	"github.com/haunti-network/haunti/pkg/ledger"
	"github.com/haunti-network/haunti/pkg/storage"
	"github.com/haunti-network/haunti/x/task/types"
	"github.com/haunti-network/haunti/zk/engine"
)

// Create validates the parameters, escrows the reward from the owner's
// balance and persists the task in Pending state. The task address is
// derived from (owner, model reference, nonce), so recreating the same
// triple is a state conflict, not a duplicate.
func (k *Keeper) Create(ctx context.Context, p types.CreateParams) (types.Task, error) {
	now := k.now()
	if err := validateCreate(p, now); err != nil {
		return types.Task{}, err
	}

	addr := types.TaskAddress(p.Owner, p.ModelRef, p.Nonce)
	task := types.Task{
		ID:            addr.String(),
		Owner:         p.Owner,
		Nonce:         p.Nonce,
		State:         types.StatePending,
		ModelRef:      p.ModelRef,
		DatasetRef:    p.DatasetRef,
		ResourceClass: p.ResourceClass,
		CircuitName:   p.CircuitName,
		Reward:        p.Reward,
		Deadline:      p.Deadline,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	data, err := json.Marshal(task)
	if err != nil {
		return types.Task{}, err
	}

	if err := k.bank.Debit(ctx, p.Owner, p.Reward); err != nil {
		return types.Task{}, err
	}

	if err := k.ledger.Put(ctx, addr, data, 0); err != nil {
		// The escrow debit already committed; put the funds back.
		if refundErr := k.bank.Credit(ctx, p.Owner, p.Reward); refundErr != nil {
			k.logger.Error("escrow refund failed", "task_id", task.ID, "error", refundErr)
		}
		if sdkerrors.IsOf(err, ledger.ErrVersionConflict) {
			return types.Task{}, sdkerrors.Wrapf(types.ErrStateConflict, "task %s already exists", task.ID)
		}
		return types.Task{}, err
	}

	k.metrics.TasksCreated.Inc()
	k.ledger.Emit(ctx, ledger.Event{
		Type: types.EventTypeTaskCreated,
		Attributes: map[string]string{
			types.AttributeKeyTaskID:   task.ID,
			types.AttributeKeyOwner:    task.Owner,
			types.AttributeKeyCircuit:  task.CircuitName,
			types.AttributeKeyReward:   task.Reward.String(),
			types.AttributeKeyDeadline: task.Deadline.Format(time.RFC3339),
		},
		EmittedAt: now,
	})
	k.logger.Info("task created",
		"task_id", task.ID,
		"owner", task.Owner,
		"circuit", task.CircuitName,
		"reward", task.Reward,
	)
	return task, nil
}

func validateCreate(p types.CreateParams, now time.Time) error {
	if p.Owner == "" {
		return sdkerrors.Wrap(types.ErrInvalidTask, "missing owner")
	}
	if p.ModelRef == "" {
		return sdkerrors.Wrap(types.ErrInvalidTask, "missing model reference")
	}
	if !p.ResourceClass.Valid() {
		return sdkerrors.Wrapf(types.ErrInvalidTask, "unknown resource class %q", p.ResourceClass)
	}
	if p.CircuitName == "" {
		return sdkerrors.Wrap(types.ErrInvalidTask, "missing circuit name")
	}
	if p.Reward.IsNil() || !p.Reward.IsPositive() {
		return sdkerrors.Wrap(types.ErrInvalidTask, "reward must be positive")
	}
	if !p.Deadline.After(now) {
		return sdkerrors.Wrap(types.ErrInvalidTask, "deadline must be in the future")
	}
	return nil
}

// Claim moves a Pending task to Claimed for the given provider. The provider
// must hold at least the pool minimum in the task's resource-class pool.
// Exactly one of any set of concurrent claimers wins; losers receive
// ErrStateConflict and must re-read before deciding anything.
func (k *Keeper) Claim(ctx context.Context, provider, id string) (types.Task, error) {
	addr, err := ledger.AddressFromString(id)
	if err != nil {
		return types.Task{}, sdkerrors.Wrapf(types.ErrInvalidTask, "task id %q: %v", id, err)
	}
	task, version, err := k.loadTask(ctx, addr)
	if err != nil {
		return types.Task{}, err
	}
	task, err = k.materializeExpiry(ctx, addr, task, version)
	if err != nil {
		return types.Task{}, err
	}
	if task.State != types.StatePending {
		if task.State == types.StateExpired {
			return types.Task{}, sdkerrors.Wrapf(types.ErrTaskExpired, "task %s", id)
		}
		return types.Task{}, sdkerrors.Wrapf(types.ErrInvalidTransition, "claim from %s", task.State)
	}

	ok, err := k.stake.MeetsMinimum(ctx, provider, task.ResourceClass)
	if err != nil {
		return types.Task{}, err
	}
	if !ok {
		return types.Task{}, sdkerrors.Wrapf(types.ErrInsufficientStake,
			"provider %s in pool %s", provider, task.ResourceClass)
	}

	// Reload to pick up the version materializeExpiry may have observed.
	task, version, err = k.loadTask(ctx, addr)
	if err != nil {
		return types.Task{}, err
	}
	if task.State != types.StatePending {
		return types.Task{}, sdkerrors.Wrapf(types.ErrStateConflict, "task %s", id)
	}

	now := k.now()
	task.State = types.StateClaimed
	task.Claimant = provider
	task.ClaimedAt = now
	task.SubmitDeadline = now.Add(k.params.SubmitWindow)
	if task.SubmitDeadline.After(task.Deadline) {
		task.SubmitDeadline = task.Deadline
	}
	task.UpdatedAt = now
	if err := k.commit(ctx, addr, task, version); err != nil {
		return types.Task{}, err
	}

	k.metrics.TasksClaimed.Inc()
	k.ledger.Emit(ctx, ledger.Event{
		Type: types.EventTypeTaskClaimed,
		Attributes: map[string]string{
			types.AttributeKeyTaskID:   task.ID,
			types.AttributeKeyClaimant: provider,
			types.AttributeKeyDeadline: task.SubmitDeadline.Format(time.RFC3339),
		},
		EmittedAt: now,
	})
	k.logger.Info("task claimed", "task_id", task.ID, "claimant", provider)
	return task, nil
}

// SubmitProof settles a claimed task against a proof. Verification runs
// before any state is touched, so a transient engine failure leaves the task
// unchanged and retriable. The settlement itself is a single
// compare-and-swap from Claimed to the terminal state.
//
// A true verification completes the task, pays the claimant and accrues the
// configured share as staking reward. A false verification fails the task,
// forfeits the reward per policy and slashes the claimant's stake. Both are
// terminal; a claimant cannot resubmit.
func (k *Keeper) SubmitProof(ctx context.Context, caller, id string, proof *engine.Proof, resultRef storage.Ref) (types.SettlementOutcome, error) {
	start := k.now()

	addr, err := ledger.AddressFromString(id)
	if err != nil {
		return types.SettlementOutcome{}, sdkerrors.Wrapf(types.ErrInvalidTask, "task id %q: %v", id, err)
	}
	task, version, err := k.loadTask(ctx, addr)
	if err != nil {
		return types.SettlementOutcome{}, err
	}
	task, err = k.materializeExpiry(ctx, addr, task, version)
	if err != nil {
		return types.SettlementOutcome{}, err
	}
	if task.State != types.StateClaimed {
		if task.State == types.StateExpired {
			return types.SettlementOutcome{}, sdkerrors.Wrapf(types.ErrTaskExpired, "task %s", id)
		}
		return types.SettlementOutcome{}, sdkerrors.Wrapf(types.ErrInvalidTransition, "submit from %s", task.State)
	}
	if task.Claimant != caller {
		return types.SettlementOutcome{}, sdkerrors.Wrapf(types.ErrNotClaimant, "caller %s, claimant %s", caller, task.Claimant)
	}
	if proof == nil {
		return types.SettlementOutcome{}, sdkerrors.Wrap(engine.ErrMalformedProof, "empty proof")
	}
	if proof.CircuitName != task.CircuitName {
		return types.SettlementOutcome{}, sdkerrors.Wrapf(types.ErrCircuitMismatch,
			"proof %s, task %s", proof.CircuitName, task.CircuitName)
	}

	verified, err := k.verifier.Verify(ctx, proof)
	if err != nil {
		return types.SettlementOutcome{}, err
	}

	now := k.now()
	k.ledger.Emit(ctx, ledger.Event{
		Type: types.EventTypeProofSubmitted,
		Attributes: map[string]string{
			types.AttributeKeyTaskID:   task.ID,
			types.AttributeKeyClaimant: caller,
			types.AttributeKeyProofID:  proof.IDHex(),
			types.AttributeKeyCircuit:  proof.CircuitName,
		},
		EmittedAt: now,
	})

	// Reload: the version may have advanced if expiry materialized above.
	task, version, err = k.loadTask(ctx, addr)
	if err != nil {
		return types.SettlementOutcome{}, err
	}
	if task.State != types.StateClaimed || task.Claimant != caller {
		return types.SettlementOutcome{}, sdkerrors.Wrapf(types.ErrStateConflict, "task %s", id)
	}

	task.ProofID = proof.IDHex()
	task.ResultRef = resultRef
	task.UpdatedAt = now
	if verified {
		task.State = types.StateCompleted
	} else {
		task.State = types.StateFailed
	}
	if err := k.commit(ctx, addr, task, version); err != nil {
		return types.SettlementOutcome{}, err
	}

	outcome := types.SettlementOutcome{
		TaskID:          task.ID,
		ProofID:         task.ProofID,
		Verified:        verified,
		State:           task.State,
		RewardPaid:      math.ZeroInt(),
		RewardAccrued:   math.ZeroInt(),
		RewardForfeited: math.ZeroInt(),
		StakeSlashed:    math.ZeroInt(),
	}
	if verified {
		err = k.settleCompleted(ctx, task, &outcome, now)
	} else {
		err = k.settleFailed(ctx, task, &outcome, now)
	}
	k.metrics.SettlementTime.Observe(now.Sub(start).Seconds())
	return outcome, err
}

func (k *Keeper) settleCompleted(ctx context.Context, task types.Task, outcome *types.SettlementOutcome, now time.Time) error {
	accrued := k.params.RewardAccrualFraction.MulInt(task.Reward).TruncateInt()
	paid := task.Reward.Sub(accrued)

	if err := k.bank.Credit(ctx, task.Claimant, paid); err != nil {
		return err
	}
	if accrued.IsPositive() {
		if err := k.stake.AccrueReward(ctx, task.Claimant, task.ResourceClass, accrued); err != nil {
			k.logger.Error("reward accrual failed", "task_id", task.ID, "error", err)
			// Fall back to direct payout so the claimant is never shorted.
			if creditErr := k.bank.Credit(ctx, task.Claimant, accrued); creditErr != nil {
				return creditErr
			}
			paid = paid.Add(accrued)
			accrued = math.ZeroInt()
		}
	}
	outcome.RewardPaid = paid
	outcome.RewardAccrued = accrued

	k.metrics.TasksCompleted.Inc()
	k.metrics.RewardsPaid.Add(counterValue(task.Reward))
	k.ledger.Emit(ctx, ledger.Event{
		Type: types.EventTypeTaskCompleted,
		Attributes: map[string]string{
			types.AttributeKeyTaskID:   task.ID,
			types.AttributeKeyClaimant: task.Claimant,
			types.AttributeKeyReward:   task.Reward.String(),
			types.AttributeKeyProofID:  task.ProofID,
		},
		EmittedAt: now,
	})
	k.logger.Info("task completed",
		"task_id", task.ID,
		"claimant", task.Claimant,
		"paid", paid,
		"accrued", accrued,
	)
	return nil
}

func (k *Keeper) settleFailed(ctx context.Context, task types.Task, outcome *types.SettlementOutcome, now time.Time) error {
	forfeitTo := task.Owner
	if k.params.ForfeitToTreasury {
		forfeitTo = k.params.TreasuryAccount
	}
	if err := k.bank.Credit(ctx, forfeitTo, task.Reward); err != nil {
		return err
	}
	outcome.RewardForfeited = task.Reward

	slashed, err := k.stake.Slash(ctx, task.Claimant, task.ResourceClass, k.params.PenaltyFraction, "invalid proof for task "+task.ID)
	if err != nil {
		k.logger.Error("slash failed", "task_id", task.ID, "claimant", task.Claimant, "error", err)
	} else {
		outcome.StakeSlashed = slashed
		k.metrics.StakeSlashed.Add(counterValue(slashed))
	}

	k.metrics.TasksFailed.Inc()
	k.ledger.Emit(ctx, ledger.Event{
		Type: types.EventTypeTaskFailed,
		Attributes: map[string]string{
			types.AttributeKeyTaskID:   task.ID,
			types.AttributeKeyClaimant: task.Claimant,
			types.AttributeKeyReward:   task.Reward.String(),
			types.AttributeKeyProofID:  task.ProofID,
			types.AttributeKeyReason:   "proof verification failed",
		},
		EmittedAt: now,
	})
	k.logger.Info("task failed",
		"task_id", task.ID,
		"claimant", task.Claimant,
		"forfeited_to", forfeitTo,
		"slashed", outcome.StakeSlashed,
	)
	return nil
}

// Cancel refunds the escrow and retires a Pending task. Owner only. The
// transition commits with RefundDue set and the credit runs after, so a
// refund that failed mid-flight stays owed: a repeat Cancel on the cancelled
// task drives the credit again instead of rejecting the transition.
func (k *Keeper) Cancel(ctx context.Context, caller, id string) (types.Task, error) {
	addr, err := ledger.AddressFromString(id)
	if err != nil {
		return types.Task{}, sdkerrors.Wrapf(types.ErrInvalidTask, "task id %q: %v", id, err)
	}
	task, version, err := k.loadTask(ctx, addr)
	if err != nil {
		return types.Task{}, err
	}
	task, err = k.materializeExpiry(ctx, addr, task, version)
	if err != nil {
		return types.Task{}, err
	}

	if task.State == types.StateCancelled && task.RefundDue {
		if task.Owner != caller {
			return types.Task{}, sdkerrors.Wrapf(types.ErrNotOwner, "caller %s", caller)
		}
		if err := k.payRefund(ctx, addr, task); err != nil {
			return types.Task{}, err
		}
		task.RefundDue = false
		return task, nil
	}

	if task.State != types.StatePending {
		if task.State == types.StateExpired {
			return types.Task{}, sdkerrors.Wrapf(types.ErrTaskExpired, "task %s", id)
		}
		return types.Task{}, sdkerrors.Wrapf(types.ErrInvalidTransition, "cancel from %s", task.State)
	}
	if task.Owner != caller {
		return types.Task{}, sdkerrors.Wrapf(types.ErrNotOwner, "caller %s", caller)
	}

	task, version, err = k.loadTask(ctx, addr)
	if err != nil {
		return types.Task{}, err
	}
	if task.State != types.StatePending {
		return types.Task{}, sdkerrors.Wrapf(types.ErrStateConflict, "task %s", id)
	}

	now := k.now()
	task.State = types.StateCancelled
	task.RefundDue = true
	task.UpdatedAt = now
	if err := k.commit(ctx, addr, task, version); err != nil {
		return types.Task{}, err
	}

	k.metrics.TasksCancelled.Inc()
	k.ledger.Emit(ctx, ledger.Event{
		Type: types.EventTypeTaskCancelled,
		Attributes: map[string]string{
			types.AttributeKeyTaskID: task.ID,
			types.AttributeKeyOwner:  task.Owner,
			types.AttributeKeyReward: task.Reward.String(),
		},
		EmittedAt: now,
	})

	if err := k.payRefund(ctx, addr, task); err != nil {
		return types.Task{}, err
	}
	task.RefundDue = false
	k.logger.Info("task cancelled", "task_id", task.ID, "owner", task.Owner)
	return task, nil
}

// ReclaimExpired returns the escrowed reward of an expired task to its
// owner. Idempotence is enforced through the EscrowReclaimed marker; a
// refund that failed after the marker committed stays due and is driven
// again by the next call.
func (k *Keeper) ReclaimExpired(ctx context.Context, caller, id string) (math.Int, error) {
	addr, err := ledger.AddressFromString(id)
	if err != nil {
		return math.ZeroInt(), sdkerrors.Wrapf(types.ErrInvalidTask, "task id %q: %v", id, err)
	}
	task, version, err := k.loadTask(ctx, addr)
	if err != nil {
		return math.ZeroInt(), err
	}
	task, err = k.materializeExpiry(ctx, addr, task, version)
	if err != nil {
		return math.ZeroInt(), err
	}
	if task.State != types.StateExpired {
		return math.ZeroInt(), sdkerrors.Wrapf(types.ErrInvalidTransition, "reclaim from %s", task.State)
	}
	if task.Owner != caller {
		return math.ZeroInt(), sdkerrors.Wrapf(types.ErrNotOwner, "caller %s", caller)
	}
	if task.EscrowReclaimed && !task.RefundDue {
		return math.ZeroInt(), sdkerrors.Wrapf(types.ErrEscrowReclaimed, "task %s", id)
	}

	if !task.EscrowReclaimed {
		task, version, err = k.loadTask(ctx, addr)
		if err != nil {
			return math.ZeroInt(), err
		}
		if task.State != types.StateExpired || task.EscrowReclaimed {
			return math.ZeroInt(), sdkerrors.Wrapf(types.ErrStateConflict, "task %s", id)
		}

		task.EscrowReclaimed = true
		task.RefundDue = true
		task.UpdatedAt = k.now()
		if err := k.commit(ctx, addr, task, version); err != nil {
			return math.ZeroInt(), err
		}
	}

	if err := k.payRefund(ctx, addr, task); err != nil {
		return math.ZeroInt(), err
	}
	k.logger.Info("escrow reclaimed", "task_id", task.ID, "owner", task.Owner, "amount", task.Reward)
	return task.Reward, nil
}

// payRefund credits the escrowed reward back to the owner and clears the
// RefundDue marker. The marker clears only after the credit lands.
func (k *Keeper) payRefund(ctx context.Context, addr ledger.Address, task types.Task) error {
	if err := k.bank.Credit(ctx, task.Owner, task.Reward); err != nil {
		return err
	}

	current, version, err := k.loadTask(ctx, addr)
	if err != nil {
		return err
	}
	if !current.RefundDue {
		return nil
	}
	current.RefundDue = false
	current.UpdatedAt = k.now()
	return k.commit(ctx, addr, current, version)
}

// counterValue converts an amount for a Prometheus counter. Amounts are
// unbounded integers, so the conversion must not pass through int64.
func counterValue(amount math.Int) float64 {
	f, _ := new(big.Float).SetInt(amount.BigInt()).Float64()
	return f
}
