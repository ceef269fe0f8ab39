package registry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	sdkerrors "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"golang.org/x/sync/singleflight"

	"github.com/haunti-network/haunti/pkg/storage"
)

// ArtifactBundle holds the deserialized artifacts of one circuit together
// with the digests of their raw encodings. Bundles are immutable; a forced
// reload replaces the whole entry.
type ArtifactBundle struct {
	CircuitName string

	Program      constraint.ConstraintSystem
	ProvingKey   groth16.ProvingKey
	VerifyingKey groth16.VerifyingKey

	ProgramDigest      [32]byte
	ProvingKeyDigest   [32]byte
	VerifyingKeyDigest [32]byte
}

// ArtifactCache fetches, integrity-checks and memoizes circuit artifacts.
// Loads are single-flight per circuit name: concurrent callers for the same
// name share one underlying fetch; unrelated names never block each other.
type ArtifactCache struct {
	registry *Registry
	store    storage.Store
	logger   log.Logger

	mu      sync.RWMutex
	entries map[string]*ArtifactBundle

	flight singleflight.Group
}

// NewArtifactCache returns an empty cache over the given registry and store.
func NewArtifactCache(reg *Registry, store storage.Store, logger log.Logger) *ArtifactCache {
	return &ArtifactCache{
		registry: reg,
		store:    store,
		logger:   logger.With("component", "artifact_cache"),
		entries:  make(map[string]*ArtifactBundle),
	}
}

// EnsureLoaded returns the artifact bundle for circuitName, fetching it on
// first use. With forceReload the entry is refetched and atomically replaced
// only after the new bundle is complete; readers never observe torn state.
func (c *ArtifactCache) EnsureLoaded(ctx context.Context, circuitName string, forceReload bool) (*ArtifactBundle, error) {
	if _, err := c.registry.Get(circuitName); err != nil {
		return nil, err
	}

	if !forceReload {
		c.mu.RLock()
		bundle := c.entries[circuitName]
		c.mu.RUnlock()
		if bundle != nil {
			return bundle, nil
		}
	}

	v, err, _ := c.flight.Do(circuitName, func() (any, error) {
		// Double-check under the flight: a non-forced caller that lost the
		// fast-path race can reuse the entry a concurrent load just stored.
		if !forceReload {
			c.mu.RLock()
			bundle := c.entries[circuitName]
			c.mu.RUnlock()
			if bundle != nil {
				return bundle, nil
			}
		}

		bundle, err := c.load(ctx, circuitName)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[circuitName] = bundle
		c.mu.Unlock()
		return bundle, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ArtifactBundle), nil
}

// Invalidate drops the cached entry for circuitName.
func (c *ArtifactCache) Invalidate(circuitName string) {
	c.mu.Lock()
	delete(c.entries, circuitName)
	c.mu.Unlock()
}

func (c *ArtifactCache) load(ctx context.Context, circuitName string) (*ArtifactBundle, error) {
	cfg, err := c.registry.Get(circuitName)
	if err != nil {
		return nil, err
	}
	if cfg.ProgramRef == "" || cfg.ProvingKeyRef == "" || cfg.VerifyingKeyRef == "" {
		return nil, sdkerrors.Wrapf(ErrArtifactsMissing, "circuit %q", circuitName)
	}

	programRaw, programDigest, err := c.fetch(ctx, cfg.ProgramRef, cfg.ProgramDigest, "program")
	if err != nil {
		return nil, err
	}
	pkRaw, pkDigest, err := c.fetch(ctx, cfg.ProvingKeyRef, cfg.ProvingKeyDigest, "proving_key")
	if err != nil {
		return nil, err
	}
	vkRaw, vkDigest, err := c.fetch(ctx, cfg.VerifyingKeyRef, cfg.VerifyingKeyDigest, "verifying_key")
	if err != nil {
		return nil, err
	}

	program := groth16.NewCS(ecc.BN254)
	if _, err := program.ReadFrom(bytes.NewReader(programRaw)); err != nil {
		return nil, sdkerrors.Wrapf(ErrArtifactIntegrity, "circuit %q: undecodable program: %v", circuitName, err)
	}
	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(bytes.NewReader(pkRaw)); err != nil {
		return nil, sdkerrors.Wrapf(ErrArtifactIntegrity, "circuit %q: undecodable proving key: %v", circuitName, err)
	}
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(vkRaw)); err != nil {
		return nil, sdkerrors.Wrapf(ErrArtifactIntegrity, "circuit %q: undecodable verifying key: %v", circuitName, err)
	}

	c.logger.Info("circuit artifacts loaded",
		"circuit", circuitName,
		"program_bytes", len(programRaw),
		"proving_key_bytes", len(pkRaw),
		"verifying_key_bytes", len(vkRaw),
	)

	return &ArtifactBundle{
		CircuitName:        circuitName,
		Program:            program,
		ProvingKey:         pk,
		VerifyingKey:       vk,
		ProgramDigest:      programDigest,
		ProvingKeyDigest:   pkDigest,
		VerifyingKeyDigest: vkDigest,
	}, nil
}

func (c *ArtifactCache) fetch(ctx context.Context, ref storage.Ref, expectedDigest, kind string) ([]byte, [32]byte, error) {
	var digest [32]byte

	data, err := c.store.Fetch(ctx, ref)
	if err != nil {
		// A reference that resolves to nothing is a configuration problem,
		// not a transport failure; callers must not retry it.
		if sdkerrors.IsOf(err, storage.ErrNotFound) {
			return nil, digest, sdkerrors.Wrapf(ErrArtifactsMissing, "%s %s: %v", kind, ref, err)
		}
		return nil, digest, sdkerrors.Wrapf(ErrArtifactFetch, "%s %s: %v", kind, ref, err)
	}

	digest = sha256.Sum256(data)
	if expectedDigest != "" && hex.EncodeToString(digest[:]) != expectedDigest {
		return nil, digest, sdkerrors.Wrapf(ErrArtifactIntegrity,
			"%s %s: digest %s, expected %s", kind, ref, hex.EncodeToString(digest[:]), expectedDigest)
	}
	return data, digest, nil
}
