package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/haunti-network/haunti/pkg/ledger"
	"github.com/haunti-network/haunti/pkg/retry"
	"github.com/haunti-network/haunti/pkg/storage"
	"github.com/haunti-network/haunti/zk/circuits"
	"github.com/haunti-network/haunti/zk/engine"
	"github.com/haunti-network/haunti/zk/registry"

	stakekeeper "github.com/haunti-network/haunti/x/stake/keeper"
	staketypes "github.com/haunti-network/haunti/x/stake/types"
	taskkeeper "github.com/haunti-network/haunti/x/task/keeper"
	tasktypes "github.com/haunti-network/haunti/x/task/types"
)

// One real trusted setup of the cheap preimage circuit for the package.
var (
	setupOnce sync.Once
	testReg   *registry.Registry
	testCache *registry.ArtifactCache
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	setupOnce.Do(func() {
		store := storage.NewMemStore()
		testReg = registry.New(nil)
		if _, err := testReg.Setup(context.Background(), circuits.PreimageCircuitName, store, log.NewNopLogger()); err != nil {
			panic(err)
		}
		testCache = registry.NewArtifactCache(testReg, store, log.NewNopLogger())
	})
	return engine.New(testReg, testCache, log.NewNopLogger())
}

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts:   4,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
		JitterFactor:  0,
	}
}

type fixture struct {
	orch   *Orchestrator
	bank   *ledger.Bank
	stake  *stakekeeper.Keeper
	ledger ledger.Ledger
}

func newFixture(t *testing.T, base ledger.Ledger) *fixture {
	t.Helper()
	if base == nil {
		base = ledger.NewMemLedger()
	}
	bank := ledger.NewBank(base)
	logger := log.NewNopLogger()

	stakeParams := staketypes.DefaultParams()
	stakeParams.MinStake = map[staketypes.PoolType]math.Int{
		staketypes.PoolGPUProvider: math.NewInt(10),
		staketypes.PoolValidator:   math.NewInt(10),
		staketypes.PoolTrainer:     math.NewInt(10),
		staketypes.PoolGovernance:  math.NewInt(10),
	}
	stakeK := stakekeeper.New(base, bank, stakeParams, logger)

	eng := testEngine(t)
	taskK := taskkeeper.New(base, bank, stakeK, eng, tasktypes.DefaultParams(), logger)

	orch := New(taskK, stakeK, eng, base, logger, WithRetryConfig(fastRetry()))
	return &fixture{orch: orch, bank: bank, stake: stakeK, ledger: base}
}

func (f *fixture) fund(t *testing.T, who string, amount int64) {
	t.Helper()
	require.NoError(t, f.bank.Credit(context.Background(), who, math.NewInt(amount)))
}

func (f *fixture) balance(t *testing.T, who string) math.Int {
	t.Helper()
	bal, err := f.bank.BalanceOf(context.Background(), who)
	require.NoError(t, err)
	return bal
}

func createParams(owner string, nonce uint64, reward int64) tasktypes.CreateParams {
	return tasktypes.CreateParams{
		Owner:         owner,
		Nonce:         nonce,
		ModelRef:      "model-ref",
		ResourceClass: staketypes.PoolGPUProvider,
		CircuitName:   circuits.PreimageCircuitName,
		Reward:        math.NewInt(reward),
		Deadline:      time.Now().Add(time.Hour),
	}
}

func preimageInputs() map[string]any {
	preimage := big.NewInt(987654)
	taskID := uint64(3)
	return map[string]any{
		"task_id":           taskID,
		"result_commitment": circuits.Commitment(preimage, new(big.Int).SetUint64(taskID)),
		"preimage":          preimage,
	}
}

func TestIsTransient(t *testing.T) {
	transient := []error{
		sdkerrors.Wrap(ledger.ErrUnavailable, "rpc timeout"),
		storage.ErrFetchFailed,
		storage.ErrStoreFailed,
		registry.ErrArtifactFetch,
	}
	for _, err := range transient {
		require.True(t, IsTransient(err), "%v", err)
	}

	permanent := []error{
		tasktypes.ErrStateConflict,
		tasktypes.ErrTaskNotFound,
		staketypes.ErrInsufficientStake,
		engine.ErrMalformedProof,
		ledger.ErrInsufficientBalance,
		errors.New("anonymous"),
	}
	for _, err := range permanent {
		require.False(t, IsTransient(err), "%v", err)
	}
}

func TestFullLifecycleCompleted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.fund(t, "owner", 100)
	f.fund(t, "provider", 50)
	require.NoError(t, f.orch.Stake(ctx, "provider", staketypes.PoolGPUProvider, math.NewInt(50), 0))

	sub := f.orch.SubscribeToTaskEvents(ledger.EventFilter{Types: []string{tasktypes.EventTypeTaskCompleted}})
	defer sub.Close()

	taskID, err := f.orch.CreateTask(ctx, createParams("owner", 1, 100))
	require.NoError(t, err)
	require.NoError(t, f.orch.ClaimTask(ctx, "provider", taskID))

	proof, err := f.orch.GenerateProof(ctx, circuits.PreimageCircuitName, preimageInputs())
	require.NoError(t, err)

	outcome, err := f.orch.SubmitProof(ctx, "provider", taskID, proof, "result-ref")
	require.NoError(t, err)
	require.True(t, outcome.Verified)
	require.Equal(t, tasktypes.StateCompleted, outcome.State)
	require.Equal(t, math.NewInt(95), outcome.RewardPaid)
	require.Equal(t, math.NewInt(5), outcome.RewardAccrued)
	require.Equal(t, math.NewInt(95), f.balance(t, "provider"))

	task, err := f.orch.GetTaskStatus(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, tasktypes.StateCompleted, task.State)

	select {
	case ev := <-sub.C:
		require.Equal(t, taskID, ev.Attribute(tasktypes.AttributeKeyTaskID))
	case <-time.After(time.Second):
		t.Fatal("no completion event")
	}

	claimed, err := f.orch.ClaimRewards(ctx, "provider", staketypes.PoolGPUProvider)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(5), claimed)
	require.Equal(t, math.NewInt(100), f.balance(t, "provider"))
}

func TestFullLifecycleFailedProof(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.fund(t, "owner", 100)
	f.fund(t, "provider", 50)
	require.NoError(t, f.orch.Stake(ctx, "provider", staketypes.PoolGPUProvider, math.NewInt(50), 0))

	taskID, err := f.orch.CreateTask(ctx, createParams("owner", 1, 100))
	require.NoError(t, err)
	require.NoError(t, f.orch.ClaimTask(ctx, "provider", taskID))

	proof, err := f.orch.GenerateProof(ctx, circuits.PreimageCircuitName, preimageInputs())
	require.NoError(t, err)
	proof.PublicSignals[1][31] ^= 0x01

	outcome, err := f.orch.SubmitProof(ctx, "provider", taskID, proof, "result-ref")
	require.NoError(t, err)
	require.False(t, outcome.Verified)
	require.Equal(t, tasktypes.StateFailed, outcome.State)
	require.Equal(t, math.NewInt(100), outcome.RewardForfeited)
	require.Equal(t, math.NewInt(5), outcome.StakeSlashed)

	require.Equal(t, math.NewInt(100), f.balance(t, "owner"))
	pos, err := f.stake.GetPosition(ctx, "provider", staketypes.PoolGPUProvider)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(45), pos.Amount)
}

// flakyLedger fails the first n reads with ErrUnavailable.
type flakyLedger struct {
	ledger.Ledger
	mu       sync.Mutex
	failures int
	getCalls int
}

func (l *flakyLedger) Get(ctx context.Context, addr ledger.Address) (ledger.Record, bool, error) {
	l.mu.Lock()
	l.getCalls++
	fail := l.failures > 0
	if fail {
		l.failures--
	}
	l.mu.Unlock()
	if fail {
		return ledger.Record{}, false, sdkerrors.Wrap(ledger.ErrUnavailable, "simulated outage")
	}
	return l.Ledger.Get(ctx, addr)
}

func TestTransientFailuresRetried(t *testing.T) {
	flaky := &flakyLedger{Ledger: ledger.NewMemLedger()}
	f := newFixture(t, flaky)
	ctx := context.Background()
	f.fund(t, "owner", 100)

	taskID, err := f.orch.CreateTask(ctx, createParams("owner", 1, 100))
	require.NoError(t, err)

	flaky.mu.Lock()
	flaky.failures = 2
	flaky.mu.Unlock()

	task, err := f.orch.GetTaskStatus(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, tasktypes.StatePending, task.State)
}

func TestPermanentFailuresNotRetried(t *testing.T) {
	flaky := &flakyLedger{Ledger: ledger.NewMemLedger()}
	f := newFixture(t, flaky)
	ctx := context.Background()

	missing := tasktypes.TaskAddress("nobody", "no-model", 0).String()

	flaky.mu.Lock()
	flaky.getCalls = 0
	flaky.mu.Unlock()

	_, err := f.orch.GetTaskStatus(ctx, missing)
	require.True(t, sdkerrors.IsOf(err, tasktypes.ErrTaskNotFound))

	flaky.mu.Lock()
	calls := flaky.getCalls
	flaky.mu.Unlock()
	require.Equal(t, 1, calls)
}
