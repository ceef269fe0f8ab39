package engine

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/stretchr/testify/require"

	"github.com/haunti-network/haunti/pkg/storage"
	"github.com/haunti-network/haunti/zk/circuits"
	"github.com/haunti-network/haunti/zk/registry"
)

// Shared trusted setup for the cheap preimage circuit; the real Groth16
// setup runs once for the whole package.
var (
	setupOnce sync.Once
	testReg   *registry.Registry
	testCache *registry.ArtifactCache
)

func testEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	setupOnce.Do(func() {
		store := storage.NewMemStore()
		testReg = registry.New(nil)
		if _, err := testReg.Setup(context.Background(), circuits.PreimageCircuitName, store, log.NewNopLogger()); err != nil {
			panic(err)
		}
		testCache = registry.NewArtifactCache(testReg, store, log.NewNopLogger())
	})
	return New(testReg, testCache, log.NewNopLogger(), opts...)
}

func preimageInputs() map[string]any {
	preimage := big.NewInt(424242)
	taskID := uint64(11)
	commitment := circuits.Commitment(preimage, new(big.Int).SetUint64(taskID))
	return map[string]any{
		"task_id":           taskID,
		"result_commitment": commitment,
		"preimage":          preimage,
	}
}

func TestProveVerifyRoundTrip(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	proof, err := eng.Prove(ctx, circuits.PreimageCircuitName, preimageInputs())
	require.NoError(t, err)
	require.Equal(t, circuits.PreimageCircuitName, proof.CircuitName)
	require.Len(t, proof.PublicSignals, 2)

	ok, err := eng.Verify(ctx, proof)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestProofIDBindsInputs(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	first, err := eng.Prove(ctx, circuits.PreimageCircuitName, preimageInputs())
	require.NoError(t, err)
	second, err := eng.Prove(ctx, circuits.PreimageCircuitName, preimageInputs())
	require.NoError(t, err)

	// Same inputs against the same artifacts share one identifier even
	// though the proofs themselves are randomized.
	require.Equal(t, first.ID, second.ID)

	otherPre := big.NewInt(5)
	other := map[string]any{
		"task_id":           uint64(11),
		"result_commitment": circuits.Commitment(otherPre, big.NewInt(11)),
		"preimage":          otherPre,
	}
	third, err := eng.Prove(ctx, circuits.PreimageCircuitName, other)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, third.ID)
}

func TestVerifyRejectsMutatedProof(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	proof, err := eng.Prove(ctx, circuits.PreimageCircuitName, preimageInputs())
	require.NoError(t, err)

	mutations := []struct {
		name   string
		mutate func(*Proof)
	}{
		{"point a", func(p *Proof) { p.A[7] ^= 0x01 }},
		{"point b", func(p *Proof) { p.B[33] ^= 0x01 }},
		{"point c", func(p *Proof) { p.C[19] ^= 0x01 }},
		{"first signal", func(p *Proof) { p.PublicSignals[0][31] ^= 0x01 }},
		{"second signal", func(p *Proof) { p.PublicSignals[1][15] ^= 0x01 }},
	}
	for _, m := range mutations {
		t.Run(m.name, func(t *testing.T) {
			tampered := *proof
			tampered.PublicSignals = make([][32]byte, len(proof.PublicSignals))
			copy(tampered.PublicSignals, proof.PublicSignals)
			m.mutate(&tampered)

			ok, err := eng.Verify(ctx, &tampered)
			require.NoError(t, err, "well-formed but wrong proofs must not error")
			require.False(t, ok)
		})
	}
}

func TestExpandCompactRoundTrip(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	proof, err := eng.Prove(ctx, circuits.PreimageCircuitName, preimageInputs())
	require.NoError(t, err)

	expanded, err := proof.Expand()
	require.NoError(t, err)
	back, err := expanded.Compact()
	require.NoError(t, err)
	require.Equal(t, proof, back)

	ok, err := eng.VerifyExpanded(ctx, expanded)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestProofWireRoundTrip(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	proof, err := eng.Prove(ctx, circuits.PreimageCircuitName, preimageInputs())
	require.NoError(t, err)

	raw, err := proof.MarshalBinary()
	require.NoError(t, err)

	var decoded Proof
	require.NoError(t, decoded.UnmarshalBinary(raw))
	require.Equal(t, *proof, decoded)

	var truncated Proof
	err = truncated.UnmarshalBinary(raw[:40])
	require.True(t, sdkerrors.IsOf(err, ErrMalformedProof))

	raw[0] = 0x7f
	err = decoded.UnmarshalBinary(raw)
	require.True(t, sdkerrors.IsOf(err, ErrMalformedProof))
}

func TestProveSchemaViolations(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		inputs map[string]any
	}{
		{"missing field", map[string]any{"task_id": uint64(1)}},
		{"unknown field", func() map[string]any {
			in := preimageInputs()
			in["extra"] = 1
			return in
		}()},
		{"mistyped field", func() map[string]any {
			in := preimageInputs()
			in["preimage"] = 3.14
			return in
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.Prove(ctx, circuits.PreimageCircuitName, tc.inputs)
			require.True(t, sdkerrors.IsOf(err, ErrInputSchemaViolation))
		})
	}

	_, err := eng.Prove(ctx, "unknown-circuit", nil)
	require.True(t, sdkerrors.IsOf(err, registry.ErrCircuitNotConfigured))
}

func TestProveTimeout(t *testing.T) {
	eng := testEngine(t, WithProveTimeout(20*time.Millisecond))
	ctx := context.Background()

	orig := groth16Prove
	defer SetGroth16Prove(orig)
	SetGroth16Prove(func(constraint.ConstraintSystem, groth16.ProvingKey, witness.Witness, ...backend.ProverOption) (groth16.Proof, error) {
		time.Sleep(500 * time.Millisecond)
		return nil, nil
	})

	_, err := eng.Prove(ctx, circuits.PreimageCircuitName, preimageInputs())
	require.True(t, sdkerrors.IsOf(err, ErrProofTimeout))
}

func TestVerifyMalformed(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	_, err := eng.Verify(ctx, nil)
	require.True(t, sdkerrors.IsOf(err, ErrMalformedProof))

	proof, err := eng.Prove(ctx, circuits.PreimageCircuitName, preimageInputs())
	require.NoError(t, err)

	short := *proof
	short.PublicSignals = short.PublicSignals[:1]
	_, err = eng.Verify(ctx, &short)
	require.True(t, sdkerrors.IsOf(err, ErrMalformedProof))
}

func TestVerifyKeyMissing(t *testing.T) {
	// A registry with no artifacts configured for the claimed circuit.
	reg := registry.New(nil)
	cache := registry.NewArtifactCache(reg, storage.NewMemStore(), log.NewNopLogger())
	eng := New(reg, cache, log.NewNopLogger())

	proof := &Proof{CircuitName: circuits.PreimageCircuitName, PublicSignals: make([][32]byte, 2)}
	_, err := eng.Verify(context.Background(), proof)
	require.True(t, sdkerrors.IsOf(err, ErrVerificationKeyMissing))
}
