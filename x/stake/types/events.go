package types

// Staking event types and attribute keys

const (
	EventTypeStakeDeposited = "stake_deposited"
	EventTypeStakeWithdrawn = "stake_withdrawn"
	EventTypeStakeSlashed   = "stake_slashed"
	EventTypeRewardAccrued  = "reward_accrued"
	EventTypeRewardsClaimed = "rewards_claimed"
)

const (
	AttributeKeyStaker    = "staker"
	AttributeKeyPool      = "pool"
	AttributeKeyAmount    = "amount"
	AttributeKeyFraction  = "fraction"
	AttributeKeyRequested = "requested"
	AttributeKeyReason    = "reason"
	AttributeKeySlashID   = "slash_id"
	AttributeKeyLockEnd   = "lock_end"
)
