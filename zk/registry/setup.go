package registry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"

	sdkerrors "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/haunti-network/haunti/pkg/storage"
)

// groth16Setup is a function variable so tests can stub the expensive key
// generation.
var groth16Setup = groth16.Setup

// SetGroth16Setup allows tests to stub key generation for fast execution.
func SetGroth16Setup(fn func(constraint.ConstraintSystem) (groth16.ProvingKey, groth16.VerifyingKey, error)) {
	groth16Setup = fn
}

// Groth16SetupFunc exposes the current setup function (useful for restoring
// after stubs).
func Groth16SetupFunc() func(constraint.ConstraintSystem) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	return groth16Setup
}

// Setup compiles the named circuit, runs the Groth16 trusted setup, persists
// the three artifacts in the blob store and records their references and
// digests in the registry. It is an expensive bootstrap operation, run once
// per circuit by operators (or tests) when no artifacts are configured.
func (r *Registry) Setup(ctx context.Context, name string, store storage.Store, logger log.Logger) (*CircuitConfig, error) {
	cfg, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	logger.Info("compiling circuit", "circuit", name)
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, cfg.def.New())
	if err != nil {
		return nil, sdkerrors.Wrapf(ErrArtifactIntegrity, "compile %q: %v", name, err)
	}

	pk, vk, err := groth16Setup(ccs)
	if err != nil {
		return nil, sdkerrors.Wrapf(ErrArtifactIntegrity, "setup %q: %v", name, err)
	}

	var refs [3]storage.Ref
	var digests [3]string

	serialize := func(idx int, marshal func(*bytes.Buffer) error) error {
		buf := new(bytes.Buffer)
		if err := marshal(buf); err != nil {
			return sdkerrors.Wrapf(ErrArtifactIntegrity, "serialize %q artifact: %v", name, err)
		}
		ref, err := store.Store(ctx, buf.Bytes())
		if err != nil {
			return sdkerrors.Wrapf(ErrArtifactFetch, "store %q artifact: %v", name, err)
		}
		sum := sha256.Sum256(buf.Bytes())
		refs[idx] = ref
		digests[idx] = hex.EncodeToString(sum[:])
		return nil
	}

	if err := serialize(0, func(buf *bytes.Buffer) error { _, err := ccs.WriteTo(buf); return err }); err != nil {
		return nil, err
	}
	if err := serialize(1, func(buf *bytes.Buffer) error { _, err := pk.WriteTo(buf); return err }); err != nil {
		return nil, err
	}
	if err := serialize(2, func(buf *bytes.Buffer) error { _, err := vk.WriteTo(buf); return err }); err != nil {
		return nil, err
	}

	if err := r.setArtifacts(name, refs, digests); err != nil {
		return nil, err
	}

	logger.Info("circuit setup complete",
		"circuit", name,
		"program_ref", string(refs[0]),
		"proving_key_ref", string(refs[1]),
		"verifying_key_ref", string(refs[2]),
	)
	return r.Get(name)
}
