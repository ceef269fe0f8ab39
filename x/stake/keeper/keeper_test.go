package keeper

import (
	"context"
	"testing"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/haunti-network/haunti/pkg/ledger"
	"github.com/haunti-network/haunti/x/stake/types"
)

type fixture struct {
	keeper *Keeper
	bank   *ledger.Bank
	ledger *ledger.MemLedger
	clock  *fakeClock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := ledger.NewMemLedger()
	bank := ledger.NewBank(mem)
	clock := &fakeClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}

	params := types.DefaultParams()
	params.MinStake = map[types.PoolType]math.Int{
		types.PoolGPUProvider: math.NewInt(10),
		types.PoolValidator:   math.NewInt(10),
		types.PoolTrainer:     math.NewInt(10),
		types.PoolGovernance:  math.NewInt(10),
	}

	k := New(mem, bank, params, log.NewNopLogger(), WithTimeSource(clock.Now))
	return &fixture{keeper: k, bank: bank, ledger: mem, clock: clock}
}

func (f *fixture) fund(t *testing.T, who string, amount int64) {
	t.Helper()
	require.NoError(t, f.bank.Credit(context.Background(), who, math.NewInt(amount)))
}

func TestStakeAndUnstake(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)

	require.NoError(t, f.keeper.Stake(ctx, "alice", types.PoolGPUProvider, math.NewInt(60), 0))

	pos, err := f.keeper.GetPosition(ctx, "alice", types.PoolGPUProvider)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(60), pos.Amount)

	bal, err := f.bank.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, math.NewInt(40), bal)

	pool, err := f.keeper.GetPool(ctx, types.PoolGPUProvider)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(60), pool.TotalStaked)

	require.NoError(t, f.keeper.Unstake(ctx, "alice", types.PoolGPUProvider, math.NewInt(25)))
	bal, err = f.bank.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, math.NewInt(65), bal)

	err = f.keeper.Unstake(ctx, "alice", types.PoolGPUProvider, math.NewInt(100))
	require.True(t, sdkerrors.IsOf(err, types.ErrInsufficientStake))
}

func TestStakeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)

	err := f.keeper.Stake(ctx, "alice", "bogus-pool", math.NewInt(50), 0)
	require.True(t, sdkerrors.IsOf(err, types.ErrInvalidPool))

	err = f.keeper.Stake(ctx, "alice", types.PoolGPUProvider, math.NewInt(-5), 0)
	require.True(t, sdkerrors.IsOf(err, types.ErrInvalidAmount))

	// Below the pool minimum; the escrowed funds come back.
	err = f.keeper.Stake(ctx, "alice", types.PoolGPUProvider, math.NewInt(5), 0)
	require.True(t, sdkerrors.IsOf(err, types.ErrBelowMinimumStake))
	bal, err := f.bank.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, math.NewInt(100), bal)

	// More than the balance.
	err = f.keeper.Stake(ctx, "alice", types.PoolGPUProvider, math.NewInt(500), 0)
	require.True(t, sdkerrors.IsOf(err, ledger.ErrInsufficientBalance))
}

func TestUnstakeLockActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)

	require.NoError(t, f.keeper.Stake(ctx, "alice", types.PoolValidator, math.NewInt(50), 24*time.Hour))

	err := f.keeper.Unstake(ctx, "alice", types.PoolValidator, math.NewInt(10))
	require.True(t, sdkerrors.IsOf(err, types.ErrLockActive))

	f.clock.Advance(25 * time.Hour)
	require.NoError(t, f.keeper.Unstake(ctx, "alice", types.PoolValidator, math.NewInt(10)))
}

func TestSlashIgnoresLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "provider", 100)

	require.NoError(t, f.keeper.Stake(ctx, "provider", types.PoolGPUProvider, math.NewInt(50), 24*time.Hour))

	actual, err := f.keeper.Slash(ctx, "provider", types.PoolGPUProvider, math.LegacyNewDecWithPrec(10, 2), "invalid proof")
	require.NoError(t, err)
	require.Equal(t, math.NewInt(5), actual)

	pos, err := f.keeper.GetPosition(ctx, "provider", types.PoolGPUProvider)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(45), pos.Amount)

	pool, err := f.keeper.GetPool(ctx, types.PoolGPUProvider)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(45), pool.TotalStaked)

	records, err := f.keeper.SlashRecords(ctx, "provider")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, math.NewInt(5), records[0].Actual)
	require.Equal(t, "invalid proof", records[0].Reason)
}

func TestSlashClampsToZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "provider", 100)

	require.NoError(t, f.keeper.Stake(ctx, "provider", types.PoolGPUProvider, math.NewInt(20), 0))

	// Full slash empties the position without going negative.
	actual, err := f.keeper.Slash(ctx, "provider", types.PoolGPUProvider, math.LegacyOneDec(), "repeat offender")
	require.NoError(t, err)
	require.Equal(t, math.NewInt(20), actual)

	pos, err := f.keeper.GetPosition(ctx, "provider", types.PoolGPUProvider)
	require.NoError(t, err)
	require.True(t, pos.Amount.IsZero())

	// Slashing an empty position reports zero.
	actual, err = f.keeper.Slash(ctx, "provider", types.PoolGPUProvider, math.LegacyOneDec(), "again")
	require.NoError(t, err)
	require.True(t, actual.IsZero())
}

func TestSlashEmitsEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "provider", 100)

	sub := f.ledger.Subscribe(ledger.EventFilter{Types: []string{types.EventTypeStakeSlashed}})
	defer sub.Close()

	require.NoError(t, f.keeper.Stake(ctx, "provider", types.PoolTrainer, math.NewInt(40), 0))
	_, err := f.keeper.Slash(ctx, "provider", types.PoolTrainer, math.LegacyNewDecWithPrec(25, 2), "bad batch")
	require.NoError(t, err)

	select {
	case ev := <-sub.C:
		require.Equal(t, "provider", ev.Attributes[types.AttributeKeyStaker])
		require.Equal(t, "10", ev.Attributes[types.AttributeKeyAmount])
	case <-time.After(time.Second):
		t.Fatal("no slash event")
	}
}

func TestRewardsAccrueAndClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)

	require.NoError(t, f.keeper.Stake(ctx, "alice", types.PoolTrainer, math.NewInt(50), 0))
	require.NoError(t, f.keeper.AccrueReward(ctx, "alice", types.PoolTrainer, math.NewInt(7)))
	require.NoError(t, f.keeper.AccrueReward(ctx, "alice", types.PoolTrainer, math.NewInt(3)))

	claimed, err := f.keeper.ClaimRewards(ctx, "alice", types.PoolTrainer)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(10), claimed)

	bal, err := f.bank.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, math.NewInt(60), bal)

	// Nothing left to claim.
	claimed, err = f.keeper.ClaimRewards(ctx, "alice", types.PoolTrainer)
	require.NoError(t, err)
	require.True(t, claimed.IsZero())

	pos, err := f.keeper.GetPosition(ctx, "alice", types.PoolTrainer)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(10), pos.RewardsClaimed)

	err = f.keeper.AccrueReward(ctx, "nobody", types.PoolTrainer, math.NewInt(1))
	require.True(t, sdkerrors.IsOf(err, types.ErrPositionNotFound))
}

func TestGetAPY(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Zero principal yields zero, not an error.
	rate, err := f.keeper.GetAPY(ctx, types.PoolGovernance)
	require.NoError(t, err)
	require.True(t, rate.IsZero())

	f.fund(t, "alice", 1000)
	require.NoError(t, f.keeper.Stake(ctx, "alice", types.PoolGovernance, math.NewInt(1000), 0))

	rate, err = f.keeper.GetAPY(ctx, types.PoolGovernance)
	require.NoError(t, err)
	require.True(t, rate.IsZero())

	// 100 accrued over a quarter of a year on 1000 staked = 40% APY.
	require.NoError(t, f.keeper.AccrueReward(ctx, "alice", types.PoolGovernance, math.NewInt(100)))
	f.clock.Advance(time.Duration(secondsPerYear/4) * time.Second)

	rate, err = f.keeper.GetAPY(ctx, types.PoolGovernance)
	require.NoError(t, err)
	require.Equal(t, math.LegacyNewDecWithPrec(40, 2).String(), rate.String())
}

func TestMeetsMinimum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.keeper.MeetsMinimum(ctx, "ghost", types.PoolGPUProvider)
	require.NoError(t, err)
	require.False(t, ok)

	f.fund(t, "alice", 100)
	require.NoError(t, f.keeper.Stake(ctx, "alice", types.PoolGPUProvider, math.NewInt(10), 0))
	ok, err = f.keeper.MeetsMinimum(ctx, "alice", types.PoolGPUProvider)
	require.NoError(t, err)
	require.True(t, ok)
}
