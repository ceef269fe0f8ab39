package types

import (
	"fmt"
	"time"

	"cosmossdk.io/math"
)

// Params are the task module parameters.
type Params struct {
	// SubmitWindow bounds the time between claim and proof submission. The
	// effective submission deadline never extends past the task deadline.
	SubmitWindow time.Duration `json:"submit_window" mapstructure:"submit_window"`

	// RewardAccrualFraction is the share of a completed task's reward that
	// is credited as claimable staking reward instead of being paid out
	// directly. It keeps providers' staking yield coupled to completed work.
	RewardAccrualFraction math.LegacyDec `json:"reward_accrual_fraction" mapstructure:"reward_accrual_fraction"`

	// PenaltyFraction is the stake fraction slashed on a failed
	// verification.
	PenaltyFraction math.LegacyDec `json:"penalty_fraction" mapstructure:"penalty_fraction"`

	// ForfeitToTreasury redirects forfeited rewards to TreasuryAccount
	// instead of back to the task owner.
	ForfeitToTreasury bool   `json:"forfeit_to_treasury" mapstructure:"forfeit_to_treasury"`
	TreasuryAccount   string `json:"treasury_account" mapstructure:"treasury_account"`
}

// DefaultParams returns production defaults.
func DefaultParams() Params {
	return Params{
		SubmitWindow:          time.Hour,
		RewardAccrualFraction: math.LegacyNewDecWithPrec(5, 2),  // 5%
		PenaltyFraction:       math.LegacyNewDecWithPrec(10, 2), // 10%
		ForfeitToTreasury:     false,
	}
}

// Validate checks parameter consistency.
func (p Params) Validate() error {
	if p.SubmitWindow <= 0 {
		return fmt.Errorf("submit window must be positive")
	}
	if p.RewardAccrualFraction.IsNegative() || p.RewardAccrualFraction.GT(math.LegacyOneDec()) {
		return fmt.Errorf("reward accrual fraction %s out of [0,1]", p.RewardAccrualFraction)
	}
	if p.PenaltyFraction.IsNegative() || p.PenaltyFraction.GT(math.LegacyOneDec()) {
		return fmt.Errorf("penalty fraction %s out of [0,1]", p.PenaltyFraction)
	}
	if p.ForfeitToTreasury && p.TreasuryAccount == "" {
		return fmt.Errorf("treasury forfeiture enabled without a treasury account")
	}
	return nil
}
