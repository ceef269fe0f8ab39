// Package types defines the staking module's entities, parameters, sentinel
// errors and event vocabulary.
package types

import (
	"time"

	"cosmossdk.io/math"
)

// ModuleName is the staking module codespace.
const ModuleName = "stake"

// PoolType partitions stake by the role it collateralizes.
type PoolType string

const (
	PoolGPUProvider PoolType = "gpu-provider"
	PoolValidator   PoolType = "validator"
	PoolTrainer     PoolType = "trainer"
	PoolGovernance  PoolType = "governance"
)

// AllPoolTypes lists every pool in deterministic order.
func AllPoolTypes() []PoolType {
	return []PoolType{PoolGPUProvider, PoolValidator, PoolTrainer, PoolGovernance}
}

// Valid reports whether p names a known pool.
func (p PoolType) Valid() bool {
	switch p {
	case PoolGPUProvider, PoolValidator, PoolTrainer, PoolGovernance:
		return true
	}
	return false
}

// Pool aggregates the stake locked under one pool type.
type Pool struct {
	Type                PoolType  `json:"type"`
	TotalStaked         math.Int  `json:"total_staked"`
	TotalRewardsAccrued math.Int  `json:"total_rewards_accrued"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// NewPool returns an empty pool created at now.
func NewPool(poolType PoolType, now time.Time) Pool {
	return Pool{
		Type:                poolType,
		TotalStaked:         math.ZeroInt(),
		TotalRewardsAccrued: math.ZeroInt(),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// Position is one staker's collateral in one pool. Amount never goes
// negative; it only decreases via withdrawal after the lock ends or via
// slashing, which bypasses the lock. Positions are retained at zero balance.
type Position struct {
	Staker string   `json:"staker"`
	Pool   PoolType `json:"pool"`
	Amount math.Int `json:"amount"`

	LockStart time.Time `json:"lock_start"`
	LockEnd   time.Time `json:"lock_end"`

	// AccruedRewards is the claimable balance; RewardsClaimed is the
	// lifetime total already paid out.
	AccruedRewards math.Int `json:"accrued_rewards"`
	RewardsClaimed math.Int `json:"rewards_claimed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Locked reports whether the position's lockup is still active at now.
func (p Position) Locked(now time.Time) bool {
	return now.Before(p.LockEnd)
}

// SlashRecord is the audit entry written for every executed slash.
type SlashRecord struct {
	ID        uint64         `json:"id"`
	Staker    string         `json:"staker"`
	Pool      PoolType       `json:"pool"`
	Fraction  math.LegacyDec `json:"fraction"`
	Requested math.Int       `json:"requested"`
	Actual    math.Int       `json:"actual"`
	Reason    string         `json:"reason"`
	SlashedAt time.Time      `json:"slashed_at"`
}
