// Package keeper implements the task lifecycle state machine. Transitions
// are committed with compare-and-swap against the version observed at read
// time, so exactly one of any set of racing writers wins.
package keeper

import (
	"context"
	"encoding/json"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"cosmossdk.io/log"

	"github.com/haunti-network/haunti/pkg/ledger"
	"github.com/haunti-network/haunti/x/task/types"
	"github.com/haunti-network/haunti/zk/engine"

	stakekeeper "github.com/haunti-network/haunti/x/stake/keeper"
)

// ProofVerifier is the slice of the proof engine the state machine needs.
type ProofVerifier interface {
	Verify(ctx context.Context, proof *engine.Proof) (bool, error)
}

// Keeper mediates all task state access and drives staking side effects on
// settlement.
type Keeper struct {
	ledger   ledger.Ledger
	bank     *ledger.Bank
	stake    *stakekeeper.Keeper
	verifier ProofVerifier
	params   types.Params
	logger   log.Logger
	metrics  *TaskMetrics
	now      func() time.Time
}

// Option configures a Keeper.
type Option func(*Keeper)

// WithTimeSource overrides the clock, used by tests to control deadlines.
func WithTimeSource(now func() time.Time) Option {
	return func(k *Keeper) { k.now = now }
}

// New builds a task keeper.
func New(l ledger.Ledger, bank *ledger.Bank, stake *stakekeeper.Keeper, verifier ProofVerifier, params types.Params, logger log.Logger, opts ...Option) *Keeper {
	k := &Keeper{
		ledger:   l,
		bank:     bank,
		stake:    stake,
		verifier: verifier,
		params:   params,
		logger:   logger.With("module", types.ModuleName),
		metrics:  GetTaskMetrics(),
		now:      time.Now,
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

// GetTask returns the task, materializing lazy expiry: a task read past its
// deadline is transitioned to Expired before being returned.
func (k *Keeper) GetTask(ctx context.Context, id string) (types.Task, error) {
	addr, err := ledger.AddressFromString(id)
	if err != nil {
		return types.Task{}, sdkerrors.Wrapf(types.ErrInvalidTask, "task id %q: %v", id, err)
	}
	task, version, err := k.loadTask(ctx, addr)
	if err != nil {
		return types.Task{}, err
	}
	return k.materializeExpiry(ctx, addr, task, version)
}

func (k *Keeper) loadTask(ctx context.Context, addr ledger.Address) (types.Task, uint64, error) {
	rec, found, err := k.ledger.Get(ctx, addr)
	if err != nil {
		return types.Task{}, 0, err
	}
	if !found {
		return types.Task{}, 0, sdkerrors.Wrapf(types.ErrTaskNotFound, "task %s", addr)
	}
	var task types.Task
	if err := json.Unmarshal(rec.Data, &task); err != nil {
		return types.Task{}, 0, sdkerrors.Wrap(types.ErrCorruptState, "task record")
	}
	return task, rec.Version, nil
}

// expiredBy reports whether the task's relevant deadline has elapsed at now.
// Pending tasks expire at the task deadline, claimed tasks at the submission
// deadline.
func expiredBy(task types.Task, now time.Time) bool {
	switch task.State {
	case types.StatePending:
		return now.After(task.Deadline)
	case types.StateClaimed:
		return now.After(task.SubmitDeadline)
	}
	return false
}

// materializeExpiry commits the Expired transition for an overdue task. A
// losing race against another transition re-reads and returns the winner's
// state; expiry needs no retry beyond that.
func (k *Keeper) materializeExpiry(ctx context.Context, addr ledger.Address, task types.Task, version uint64) (types.Task, error) {
	now := k.now()
	if !expiredBy(task, now) {
		return task, nil
	}

	task.State = types.StateExpired
	task.UpdatedAt = now
	data, err := json.Marshal(task)
	if err != nil {
		return types.Task{}, err
	}

	err = k.ledger.Put(ctx, addr, data, version)
	if err != nil {
		if sdkerrors.IsOf(err, ledger.ErrVersionConflict) {
			current, _, loadErr := k.loadTask(ctx, addr)
			if loadErr != nil {
				return types.Task{}, loadErr
			}
			return current, nil
		}
		return types.Task{}, err
	}

	k.metrics.TasksExpired.Inc()
	k.ledger.Emit(ctx, ledger.Event{
		Type: types.EventTypeTaskExpired,
		Attributes: map[string]string{
			types.AttributeKeyTaskID:   task.ID,
			types.AttributeKeyOwner:    task.Owner,
			types.AttributeKeyDeadline: task.Deadline.Format(time.RFC3339),
		},
		EmittedAt: now,
	})
	k.logger.Info("task expired", "task_id", task.ID, "owner", task.Owner)
	return task, nil
}

// commit writes the task with compare-and-swap semantics; a lost race is a
// StateConflict the caller must surface, never blindly retried.
func (k *Keeper) commit(ctx context.Context, addr ledger.Address, task types.Task, version uint64) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if err := k.ledger.Put(ctx, addr, data, version); err != nil {
		if sdkerrors.IsOf(err, ledger.ErrVersionConflict) {
			return sdkerrors.Wrapf(types.ErrStateConflict, "task %s", task.ID)
		}
		return err
	}
	return nil
}
