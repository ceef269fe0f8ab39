// Package orchestrator is the caller-facing façade over the task state
// machine, staking ledger and proof engine. It owns retry policy: transient
// infrastructure failures are retried with bounded backoff here and nowhere
// else; every other error class is surfaced as-is.
package orchestrator

import (
	"context"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"cosmossdk.io/math"

	"github.com/haunti-network/haunti/pkg/ledger"
	"github.com/haunti-network/haunti/pkg/retry"
	"github.com/haunti-network/haunti/pkg/storage"
	"github.com/haunti-network/haunti/zk/engine"
	"github.com/haunti-network/haunti/zk/registry"

	stakekeeper "github.com/haunti-network/haunti/x/stake/keeper"
	staketypes "github.com/haunti-network/haunti/x/stake/types"
	taskkeeper "github.com/haunti-network/haunti/x/task/keeper"
	tasktypes "github.com/haunti-network/haunti/x/task/types"
)

// IsTransient classifies errors eligible for automatic retry: network and
// availability failures whose outcome may differ on the next attempt.
// Verification failures, state conflicts and economic errors never qualify.
func IsTransient(err error) bool {
	return sdkerrors.IsOf(err,
		ledger.ErrUnavailable,
		storage.ErrFetchFailed,
		storage.ErrStoreFailed,
		registry.ErrArtifactFetch,
	)
}

// Orchestrator coordinates task, stake and proof operations.
type Orchestrator struct {
	tasks  *taskkeeper.Keeper
	stake  *stakekeeper.Keeper
	engine *engine.Engine
	ledger ledger.Ledger
	retry  retry.Config
	logger log.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetryConfig overrides the backoff policy. The transient-error
// classification stays in place.
func WithRetryConfig(cfg retry.Config) Option {
	return func(o *Orchestrator) {
		cfg.ShouldRetry = IsTransient
		o.retry = cfg
	}
}

// New builds an orchestrator with the default retry policy scoped to
// transient errors.
func New(tasks *taskkeeper.Keeper, stake *stakekeeper.Keeper, eng *engine.Engine, l ledger.Ledger, logger log.Logger, opts ...Option) *Orchestrator {
	cfg := retry.DefaultConfig()
	cfg.ShouldRetry = IsTransient
	o := &Orchestrator{
		tasks:  tasks,
		stake:  stake,
		engine: eng,
		ledger: l,
		retry:  cfg,
		logger: logger.With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CreateTask escrows the reward and registers a new Pending task, returning
// its identifier.
func (o *Orchestrator) CreateTask(ctx context.Context, params tasktypes.CreateParams) (string, error) {
	var task tasktypes.Task
	err := retry.Do(ctx, o.retry, o.logger, "create_task", func() error {
		var opErr error
		task, opErr = o.tasks.Create(ctx, params)
		return opErr
	})
	if err != nil {
		return "", err
	}
	return task.ID, nil
}

// ClaimTask claims a Pending task for the provider. A lost claim race
// surfaces as a StateConflict; the caller must re-check task state rather
// than retry blindly, so it is never retried here.
func (o *Orchestrator) ClaimTask(ctx context.Context, provider, taskID string) error {
	return retry.Do(ctx, o.retry, o.logger, "claim_task", func() error {
		_, opErr := o.tasks.Claim(ctx, provider, taskID)
		return opErr
	})
}

// GenerateProof produces a proof for the named circuit over the given
// inputs. Proof generation mutates no shared state, so a timeout leaves
// nothing to unwind.
func (o *Orchestrator) GenerateProof(ctx context.Context, circuitName string, inputs map[string]any) (*engine.Proof, error) {
	var proof *engine.Proof
	err := retry.Do(ctx, o.retry, o.logger, "generate_proof", func() error {
		var opErr error
		proof, opErr = o.engine.Prove(ctx, circuitName, inputs)
		return opErr
	})
	return proof, err
}

// SubmitProof submits the claimant's proof for settlement. Only transient
// infrastructure failures are retried; once the state machine has committed
// a terminal state the outcome is returned as-is.
func (o *Orchestrator) SubmitProof(ctx context.Context, claimant, taskID string, proof *engine.Proof, resultRef storage.Ref) (tasktypes.SettlementOutcome, error) {
	var outcome tasktypes.SettlementOutcome
	err := retry.Do(ctx, o.retry, o.logger, "submit_proof", func() error {
		var opErr error
		outcome, opErr = o.tasks.SubmitProof(ctx, claimant, taskID, proof, resultRef)
		return opErr
	})
	return outcome, err
}

// CancelTask cancels a Pending task and refunds its escrow. Owner only.
func (o *Orchestrator) CancelTask(ctx context.Context, owner, taskID string) error {
	return retry.Do(ctx, o.retry, o.logger, "cancel_task", func() error {
		_, opErr := o.tasks.Cancel(ctx, owner, taskID)
		return opErr
	})
}

// ReclaimExpired returns an expired task's escrow to its owner.
func (o *Orchestrator) ReclaimExpired(ctx context.Context, owner, taskID string) (math.Int, error) {
	var amount math.Int
	err := retry.Do(ctx, o.retry, o.logger, "reclaim_expired", func() error {
		var opErr error
		amount, opErr = o.tasks.ReclaimExpired(ctx, owner, taskID)
		return opErr
	})
	return amount, err
}

// GetTaskStatus returns the task's current state, materializing lazy expiry.
func (o *Orchestrator) GetTaskStatus(ctx context.Context, taskID string) (tasktypes.Task, error) {
	var task tasktypes.Task
	err := retry.Do(ctx, o.retry, o.logger, "get_task_status", func() error {
		var opErr error
		task, opErr = o.tasks.GetTask(ctx, taskID)
		return opErr
	})
	return task, err
}

// SubscribeToTaskEvents subscribes to ledger events matching the filter. The
// caller owns the returned subscription and must Close it.
func (o *Orchestrator) SubscribeToTaskEvents(filter ledger.EventFilter) *ledger.Subscription {
	return o.ledger.Subscribe(filter)
}

// Stake locks collateral for the staker in the given pool.
func (o *Orchestrator) Stake(ctx context.Context, staker string, pool staketypes.PoolType, amount math.Int, lockup time.Duration) error {
	return retry.Do(ctx, o.retry, o.logger, "stake", func() error {
		return o.stake.Stake(ctx, staker, pool, amount, lockup)
	})
}

// Unstake releases collateral after the lockup has ended.
func (o *Orchestrator) Unstake(ctx context.Context, staker string, pool staketypes.PoolType, amount math.Int) error {
	return retry.Do(ctx, o.retry, o.logger, "unstake", func() error {
		return o.stake.Unstake(ctx, staker, pool, amount)
	})
}

// ClaimRewards pays out the staker's accrued rewards.
func (o *Orchestrator) ClaimRewards(ctx context.Context, staker string, pool staketypes.PoolType) (math.Int, error) {
	var claimed math.Int
	err := retry.Do(ctx, o.retry, o.logger, "claim_rewards", func() error {
		var opErr error
		claimed, opErr = o.stake.ClaimRewards(ctx, staker, pool)
		return opErr
	})
	return claimed, err
}

// GetAPY returns the pool's annualized reward rate.
func (o *Orchestrator) GetAPY(ctx context.Context, pool staketypes.PoolType) (math.LegacyDec, error) {
	var rate math.LegacyDec
	err := retry.Do(ctx, o.retry, o.logger, "get_apy", func() error {
		var opErr error
		rate, opErr = o.stake.GetAPY(ctx, pool)
		return opErr
	})
	return rate, err
}
