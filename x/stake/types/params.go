package types

import (
	"fmt"
	"time"

	"cosmossdk.io/math"
)

// Params are the staking module parameters.
type Params struct {
	// MinStake is the minimum position size per pool, enforced on deposit
	// and when a provider claims work collateralized by the pool.
	MinStake map[PoolType]math.Int `json:"min_stake" mapstructure:"min_stake"`

	// MaxLockup caps the lockup period a staker may request.
	MaxLockup time.Duration `json:"max_lockup" mapstructure:"max_lockup"`

	// SlashFraction is the default fraction applied when no explicit
	// fraction accompanies a slash.
	SlashFraction math.LegacyDec `json:"slash_fraction" mapstructure:"slash_fraction"`
}

// DefaultParams returns production defaults.
func DefaultParams() Params {
	return Params{
		MinStake: map[PoolType]math.Int{
			PoolGPUProvider: math.NewInt(1000),
			PoolValidator:   math.NewInt(5000),
			PoolTrainer:     math.NewInt(500),
			PoolGovernance:  math.NewInt(100),
		},
		MaxLockup:     365 * 24 * time.Hour,
		SlashFraction: math.LegacyNewDecWithPrec(10, 2), // 10%
	}
}

// MinStakeFor returns the minimum position size for the pool, zero when
// unconfigured.
func (p Params) MinStakeFor(pool PoolType) math.Int {
	if min, ok := p.MinStake[pool]; ok {
		return min
	}
	return math.ZeroInt()
}

// Validate checks parameter consistency.
func (p Params) Validate() error {
	for pool, min := range p.MinStake {
		if !pool.Valid() {
			return fmt.Errorf("min stake for unknown pool %q", pool)
		}
		if min.IsNegative() {
			return fmt.Errorf("negative min stake for pool %q", pool)
		}
	}
	if p.MaxLockup < 0 {
		return fmt.Errorf("negative max lockup")
	}
	if p.SlashFraction.IsNegative() || p.SlashFraction.GT(math.LegacyOneDec()) {
		return fmt.Errorf("slash fraction %s out of [0,1]", p.SlashFraction)
	}
	return nil
}
