// Package engine generates and verifies Groth16 proofs for the registered
// circuits, converting between compact and expanded proof representations.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sort"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/backend/groth16"
	groth16bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"

	"github.com/haunti-network/haunti/zk/circuits"
	"github.com/haunti-network/haunti/zk/registry"
)

// DefaultProveTimeout bounds a single proof generation attempt.
const DefaultProveTimeout = 5 * time.Minute

// Prover and verifier backends are function variables so tests can stub the
// expensive operations.
var (
	groth16Prove  = groth16.Prove
	groth16Verify = groth16.Verify
)

// SetGroth16Prove allows tests to stub proof generation for fast execution.
func SetGroth16Prove(fn func(constraint.ConstraintSystem, groth16.ProvingKey, witness.Witness, ...backend.ProverOption) (groth16.Proof, error)) {
	groth16Prove = fn
}

// SetGroth16Verify allows tests to stub proof verification for fast execution.
func SetGroth16Verify(fn func(groth16.Proof, groth16.VerifyingKey, witness.Witness, ...backend.VerifierOption) error) {
	groth16Verify = fn
}

// Engine proves and verifies circuit executions using artifacts served by the
// registry cache. Safe for concurrent use.
type Engine struct {
	registry *registry.Registry
	cache    *registry.ArtifactCache
	logger   log.Logger
	metrics  *EngineMetrics

	proveTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithProveTimeout overrides the per-proof generation deadline.
func WithProveTimeout(d time.Duration) Option {
	return func(e *Engine) { e.proveTimeout = d }
}

// New returns an engine over the given registry and artifact cache.
func New(reg *registry.Registry, cache *registry.ArtifactCache, logger log.Logger, opts ...Option) *Engine {
	e := &Engine{
		registry:     reg,
		cache:        cache,
		logger:       logger.With("component", "proof_engine"),
		metrics:      GetEngineMetrics(),
		proveTimeout: DefaultProveTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Prove generates a Groth16 proof that the named circuit is satisfied by the
// given inputs. Inputs are validated against the circuit schema before any
// artifact is touched; unknown fields are rejected. The returned proof is in
// compact form with its public signals in declaration order.
func (e *Engine) Prove(ctx context.Context, circuitName string, inputs map[string]any) (*Proof, error) {
	cfg, err := e.registry.Get(circuitName)
	if err != nil {
		return nil, err
	}
	if err := validateInputs(cfg.Schema, inputs); err != nil {
		return nil, err
	}

	bundle, err := e.cache.EnsureLoaded(ctx, circuitName, false)
	if err != nil {
		return nil, err
	}

	assignment, err := cfg.Def().Bind(inputs)
	if err != nil {
		return nil, sdkerrors.Wrapf(ErrInputSchemaViolation, "bind %q: %v", circuitName, err)
	}
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, sdkerrors.Wrapf(ErrProofGeneration, "witness %q: %v", circuitName, err)
	}

	proveCtx := ctx
	if e.proveTimeout > 0 {
		var cancel context.CancelFunc
		proveCtx, cancel = context.WithTimeout(ctx, e.proveTimeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := e.runProver(proveCtx, circuitName, bundle, w)
	if err != nil {
		e.metrics.ProofsGenerated.WithLabelValues(circuitName, "error").Inc()
		return nil, err
	}
	e.metrics.ProofsGenerated.WithLabelValues(circuitName, "ok").Inc()
	e.metrics.ProofGenerationTime.WithLabelValues(circuitName).Observe(time.Since(start).Seconds())

	g16p, ok := raw.(*groth16bn254.Proof)
	if !ok {
		return nil, sdkerrors.Wrapf(ErrProofGeneration, "unexpected proof backend %T", raw)
	}

	pubW, err := w.Public()
	if err != nil {
		return nil, sdkerrors.Wrapf(ErrProofGeneration, "public witness %q: %v", circuitName, err)
	}
	vec, ok := pubW.Vector().(fr.Vector)
	if !ok {
		return nil, sdkerrors.Wrapf(ErrProofGeneration, "unexpected witness vector %T", pubW.Vector())
	}

	proof := &Proof{
		CircuitName:   circuitName,
		ID:            proofID(cfg, inputs, bundle),
		A:             g16p.Ar.Bytes(),
		B:             g16p.Bs.Bytes(),
		C:             g16p.Krs.Bytes(),
		PublicSignals: make([][sizeScalar]byte, len(vec)),
	}
	for i := range vec {
		proof.PublicSignals[i] = vec[i].Bytes()
	}

	e.logger.Info("proof generated",
		"circuit", circuitName,
		"proof_id", proof.IDHex(),
		"signals", len(proof.PublicSignals),
		"duration", time.Since(start),
	)
	return proof, nil
}

// runProver executes the prover in its own goroutine so the deadline is
// honored even though the backend does not take a context. On timeout the
// prover goroutine is abandoned; its result channel is buffered.
func (e *Engine) runProver(ctx context.Context, circuitName string, bundle *registry.ArtifactBundle, w witness.Witness) (groth16.Proof, error) {
	type result struct {
		proof groth16.Proof
		err   error
	}
	done := make(chan result, 1)
	go func() {
		p, err := groth16Prove(bundle.Program, bundle.ProvingKey, w)
		done <- result{p, err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			e.metrics.ProofTimeouts.WithLabelValues(circuitName).Inc()
			return nil, sdkerrors.Wrapf(ErrProofTimeout, "circuit %q after %s", circuitName, e.proveTimeout)
		}
		return nil, sdkerrors.Wrapf(ErrProofGeneration, "circuit %q: %v", circuitName, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, sdkerrors.Wrapf(ErrProofGeneration, "circuit %q: %v", circuitName, res.err)
		}
		return res.proof, nil
	}
}

// Verify checks a compact proof against the verifying key of the circuit it
// claims. A structurally undecodable proof is an error; a well-formed proof
// that fails the pairing check (including invalid curve points) verifies to
// false with a nil error.
func (e *Engine) Verify(ctx context.Context, proof *Proof) (bool, error) {
	if proof == nil || proof.CircuitName == "" {
		e.metrics.MalformedProofs.Inc()
		return false, sdkerrors.Wrap(ErrMalformedProof, "empty proof")
	}

	cfg, err := e.registry.Get(proof.CircuitName)
	if err != nil {
		return false, err
	}
	if len(proof.PublicSignals) != cfg.PublicInputs {
		e.metrics.MalformedProofs.Inc()
		return false, sdkerrors.Wrapf(ErrMalformedProof,
			"circuit %q: %d public signals, expected %d", proof.CircuitName, len(proof.PublicSignals), cfg.PublicInputs)
	}

	bundle, err := e.cache.EnsureLoaded(ctx, proof.CircuitName, false)
	if err != nil {
		if sdkerrors.IsOf(err, registry.ErrArtifactsMissing) {
			return false, sdkerrors.Wrapf(ErrVerificationKeyMissing, "circuit %q", proof.CircuitName)
		}
		return false, err
	}

	start := time.Now()
	defer func() {
		e.metrics.VerificationTime.WithLabelValues(proof.CircuitName).Observe(time.Since(start).Seconds())
	}()

	var g16p groth16bn254.Proof
	if _, err := g16p.Ar.SetBytes(proof.A[:]); err != nil {
		return e.verifyFailed(proof, "invalid point a"), nil
	}
	if _, err := g16p.Bs.SetBytes(proof.B[:]); err != nil {
		return e.verifyFailed(proof, "invalid point b"), nil
	}
	if _, err := g16p.Krs.SetBytes(proof.C[:]); err != nil {
		return e.verifyFailed(proof, "invalid point c"), nil
	}

	pubW, err := publicWitness(proof.PublicSignals)
	if err != nil {
		return false, sdkerrors.Wrapf(ErrMalformedProof, "circuit %q: %v", proof.CircuitName, err)
	}

	if err := groth16Verify(&g16p, bundle.VerifyingKey, pubW); err != nil {
		return e.verifyFailed(proof, err.Error()), nil
	}

	e.metrics.ProofsVerified.WithLabelValues(proof.CircuitName, "valid").Inc()
	return true, nil
}

// VerifyExpanded verifies a proof given in expanded form by compacting it
// first. Expanded points that do not lie on the curve verify to false.
func (e *Engine) VerifyExpanded(ctx context.Context, exp *ExpandedProof) (bool, error) {
	if exp == nil || exp.CircuitName == "" {
		e.metrics.MalformedProofs.Inc()
		return false, sdkerrors.Wrap(ErrMalformedProof, "empty proof")
	}
	compact, err := exp.Compact()
	if err != nil {
		if sdkerrors.IsOf(err, ErrInvalidProofPoint) {
			return e.verifyFailed(&Proof{CircuitName: exp.CircuitName}, "expanded point off curve"), nil
		}
		return false, err
	}
	return e.Verify(ctx, compact)
}

func (e *Engine) verifyFailed(proof *Proof, reason string) bool {
	e.metrics.ProofsVerified.WithLabelValues(proof.CircuitName, "invalid").Inc()
	e.logger.Debug("proof rejected", "circuit", proof.CircuitName, "proof_id", proof.IDHex(), "reason", reason)
	return false
}

// publicWitness builds a gnark public witness from the fixed-order signal
// vector.
func publicWitness(signals [][sizeScalar]byte) (witness.Witness, error) {
	w, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return nil, err
	}
	values := make(chan any, len(signals))
	for i := range signals {
		var el fr.Element
		el.SetBytes(signals[i][:])
		values <- el
	}
	close(values)
	if err := w.Fill(len(signals), 0, values); err != nil {
		return nil, err
	}
	return w, nil
}

// validateInputs checks the supplied inputs against the declared schema:
// every declared field must be present and well typed, and no undeclared
// field may appear.
func validateInputs(schema circuits.Schema, inputs map[string]any) error {
	for name := range inputs {
		if _, ok := schema[name]; !ok {
			return sdkerrors.Wrapf(ErrInputSchemaViolation, "unknown input %q", name)
		}
	}
	for name, ft := range schema {
		v, ok := inputs[name]
		if !ok {
			return sdkerrors.Wrapf(ErrInputSchemaViolation, "missing input %q", name)
		}
		if err := ft.Validate(v); err != nil {
			return sdkerrors.Wrapf(ErrInputSchemaViolation, "input %q: %v", name, err)
		}
	}
	return nil
}

// proofID derives the deterministic proof identifier: a hash over the circuit
// name, the canonicalized inputs in sorted field order and the digests of the
// artifacts used. Two proofs over the same inputs and artifacts share an ID.
func proofID(cfg *registry.CircuitConfig, inputs map[string]any, bundle *registry.ArtifactBundle) [32]byte {
	h := sha256.New()
	h.Write([]byte(cfg.Name))
	h.Write([]byte{0})

	names := make([]string, 0, len(cfg.Schema))
	for name := range cfg.Schema {
		names = append(names, name)
	}
	sort.Strings(names)

	writeScalar := func(v any) {
		n, err := circuits.ToScalar(v)
		if err != nil {
			return
		}
		var el fr.Element
		el.SetBigInt(n)
		b := el.Bytes()
		h.Write(b[:])
	}

	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		v := inputs[name]
		switch cfg.Schema[name].Kind {
		case circuits.KindUint:
			n, err := circuits.ToUint64(v)
			if err != nil {
				continue
			}
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], n)
			h.Write(buf[:])
		case circuits.KindScalar:
			writeScalar(v)
		case circuits.KindScalarList:
			list, err := circuits.ToScalarList(v, cfg.Schema[name].Len)
			if err != nil {
				continue
			}
			for _, el := range list {
				writeScalar(el)
			}
		}
	}

	h.Write(bundle.ProgramDigest[:])
	h.Write(bundle.ProvingKeyDigest[:])

	var id [32]byte
	copy(id[:], h.Sum(nil))
	return id
}
