// Package registry maps circuit names to artifact locations and caches the
// deserialized artifacts with single-flight loading.
package registry

import (
	"sync"

	sdkerrors "cosmossdk.io/errors"

	"github.com/haunti-network/haunti/pkg/storage"
	"github.com/haunti-network/haunti/zk/circuits"
)

const codespace = "registry"

var (
	// ErrCircuitNotConfigured indicates the circuit name is absent from the registry.
	ErrCircuitNotConfigured = sdkerrors.Register(codespace, 2, "circuit not configured")

	// ErrArtifactFetch indicates a transport failure while fetching an artifact.
	ErrArtifactFetch = sdkerrors.Register(codespace, 3, "artifact fetch failed")

	// ErrArtifactIntegrity indicates an artifact failed its digest check or
	// could not be deserialized. Never retried with the same artifact.
	ErrArtifactIntegrity = sdkerrors.Register(codespace, 4, "artifact integrity check failed")

	// ErrArtifactsMissing indicates the circuit has no usable artifacts:
	// either no references were configured (setup has not run) or a
	// configured reference resolves to nothing. Retrying cannot help.
	ErrArtifactsMissing = sdkerrors.Register(codespace, 5, "circuit artifacts missing")
)

// CircuitConfig is the immutable registration of one circuit: artifact
// locations, expected digests and the declared input schema.
type CircuitConfig struct {
	Name        string
	Description string

	// Artifact references in the blob store.
	ProgramRef      storage.Ref
	ProvingKeyRef   storage.Ref
	VerifyingKeyRef storage.Ref

	// Optional hex sha256 digests; checked on load when non-empty.
	ProgramDigest      string
	ProvingKeyDigest   string
	VerifyingKeyDigest string

	Schema       circuits.Schema
	PublicInputs int

	def circuits.Def
}

// Def exposes the underlying circuit definition (constructor and binder).
func (c *CircuitConfig) Def() circuits.Def {
	return c.def
}

// ArtifactOverride carries configured artifact locations for a builtin
// circuit, typically loaded from the node config file.
type ArtifactOverride struct {
	ProgramRef         string `mapstructure:"program_ref"`
	ProvingKeyRef      string `mapstructure:"proving_key_ref"`
	VerifyingKeyRef    string `mapstructure:"verifying_key_ref"`
	ProgramDigest      string `mapstructure:"program_digest"`
	ProvingKeyDigest   string `mapstructure:"proving_key_digest"`
	VerifyingKeyDigest string `mapstructure:"verifying_key_digest"`
}

// Registry holds the circuit configurations. Entries are created at
// construction from the builtin definitions; only artifact references may be
// filled in afterwards (by Setup during bootstrap).
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*CircuitConfig
}

// New builds a registry from the builtin circuit definitions, applying any
// configured artifact locations.
func New(overrides map[string]ArtifactOverride) *Registry {
	r := &Registry{entries: make(map[string]*CircuitConfig)}
	for _, def := range circuits.Builtin() {
		cfg := &CircuitConfig{
			Name:         def.Name,
			Description:  def.Description,
			Schema:       def.Schema,
			PublicInputs: def.PublicInputs,
			def:          def,
		}
		if ov, ok := overrides[def.Name]; ok {
			cfg.ProgramRef = storage.Ref(ov.ProgramRef)
			cfg.ProvingKeyRef = storage.Ref(ov.ProvingKeyRef)
			cfg.VerifyingKeyRef = storage.Ref(ov.VerifyingKeyRef)
			cfg.ProgramDigest = ov.ProgramDigest
			cfg.ProvingKeyDigest = ov.ProvingKeyDigest
			cfg.VerifyingKeyDigest = ov.VerifyingKeyDigest
		}
		r.entries[def.Name] = cfg
	}
	return r
}

// Get returns the configuration for name.
func (r *Registry) Get(name string) (*CircuitConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.entries[name]
	if !ok {
		return nil, sdkerrors.Wrapf(ErrCircuitNotConfigured, "circuit %q", name)
	}
	out := *cfg
	return &out, nil
}

// Names lists the registered circuit names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// setArtifacts records artifact locations produced by Setup. Bootstrap only.
func (r *Registry) setArtifacts(name string, refs [3]storage.Ref, digests [3]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, ok := r.entries[name]
	if !ok {
		return sdkerrors.Wrapf(ErrCircuitNotConfigured, "circuit %q", name)
	}
	cfg.ProgramRef, cfg.ProvingKeyRef, cfg.VerifyingKeyRef = refs[0], refs[1], refs[2]
	cfg.ProgramDigest, cfg.ProvingKeyDigest, cfg.VerifyingKeyDigest = digests[0], digests[1], digests[2]
	return nil
}
