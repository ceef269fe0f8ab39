package types

import (
	sdkerrors "cosmossdk.io/errors"
)

// Staking module sentinel errors

var (
	ErrInvalidPool       = sdkerrors.Register(ModuleName, 2, "invalid pool type")
	ErrInvalidAmount     = sdkerrors.Register(ModuleName, 3, "invalid stake amount")
	ErrBelowMinimumStake = sdkerrors.Register(ModuleName, 4, "stake below pool minimum")
	ErrPositionNotFound  = sdkerrors.Register(ModuleName, 5, "stake position not found")
	ErrInsufficientStake = sdkerrors.Register(ModuleName, 6, "insufficient staked amount")
	ErrLockActive        = sdkerrors.Register(ModuleName, 7, "lockup period still active")
	ErrInvalidFraction   = sdkerrors.Register(ModuleName, 8, "slash fraction out of range")
	ErrCorruptState      = sdkerrors.Register(ModuleName, 9, "corrupt staking state record")
)
