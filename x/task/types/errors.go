package types

import (
	sdkerrors "cosmossdk.io/errors"
)

// Task module sentinel errors

var (
	ErrInvalidTask       = sdkerrors.Register(ModuleName, 2, "invalid task parameters")
	ErrTaskNotFound      = sdkerrors.Register(ModuleName, 3, "task not found")
	ErrStateConflict     = sdkerrors.Register(ModuleName, 4, "concurrent transition lost the race")
	ErrInvalidTransition = sdkerrors.Register(ModuleName, 5, "transition not allowed from current state")
	ErrNotOwner          = sdkerrors.Register(ModuleName, 6, "caller is not the task owner")
	ErrNotClaimant       = sdkerrors.Register(ModuleName, 7, "caller is not the task claimant")
	ErrInsufficientStake = sdkerrors.Register(ModuleName, 8, "claimant stake below pool minimum")
	ErrTaskExpired       = sdkerrors.Register(ModuleName, 9, "task deadline has passed")
	ErrCircuitMismatch   = sdkerrors.Register(ModuleName, 10, "proof circuit does not match task circuit")
	ErrCorruptState      = sdkerrors.Register(ModuleName, 11, "corrupt task state record")
	ErrEscrowReclaimed   = sdkerrors.Register(ModuleName, 12, "escrow already reclaimed")
)
