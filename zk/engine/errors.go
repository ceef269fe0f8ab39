package engine

import (
	sdkerrors "cosmossdk.io/errors"
)

const codespace = "engine"

var (
	// ErrInputSchemaViolation indicates the supplied inputs do not match the
	// circuit's declared schema (missing, unknown or mistyped fields).
	ErrInputSchemaViolation = sdkerrors.Register(codespace, 2, "inputs violate circuit schema")

	// ErrProofGeneration indicates the prover backend failed.
	ErrProofGeneration = sdkerrors.Register(codespace, 3, "proof generation failed")

	// ErrProofTimeout indicates proof generation exceeded its deadline.
	ErrProofTimeout = sdkerrors.Register(codespace, 4, "proof generation timed out")

	// ErrVerificationKeyMissing indicates no verifying key is available for
	// the circuit the proof claims.
	ErrVerificationKeyMissing = sdkerrors.Register(codespace, 5, "verifying key missing")

	// ErrMalformedProof indicates proof bytes that cannot be decoded into the
	// structural proof layout at all.
	ErrMalformedProof = sdkerrors.Register(codespace, 6, "malformed proof")

	// ErrInvalidProofPoint indicates a structurally parseable proof whose
	// curve points are invalid. Verify reports such proofs as failed rather
	// than erroring.
	ErrInvalidProofPoint = sdkerrors.Register(codespace, 7, "proof point not a valid curve element")
)
