// Package storage abstracts the content-addressed blob collaborator used to
// resolve model, dataset and circuit-artifact references. The core never
// interprets blob contents.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	sdkerrors "cosmossdk.io/errors"
)

const codespace = "storage"

var (
	// ErrFetchFailed indicates a transport failure while resolving a reference.
	ErrFetchFailed = sdkerrors.Register(codespace, 2, "blob fetch failed")

	// ErrStoreFailed indicates a transport failure while persisting a blob.
	ErrStoreFailed = sdkerrors.Register(codespace, 3, "blob store failed")

	// ErrNotFound indicates the reference does not resolve to a blob.
	ErrNotFound = sdkerrors.Register(codespace, 4, "blob not found")
)

// Ref is an opaque content-addressed reference (hex digest for the memory
// store, CID for IPFS).
type Ref string

// Store fetches and persists opaque blobs.
type Store interface {
	Fetch(ctx context.Context, ref Ref) ([]byte, error)
	Store(ctx context.Context, data []byte) (Ref, error)
}

// MemStore is a content-addressed in-memory store keyed by sha256 digest.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[Ref][]byte
}

// NewMemStore returns an empty in-memory blob store.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[Ref][]byte)}
}

// Fetch implements Store.
func (s *MemStore) Fetch(_ context.Context, ref Ref) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[ref]
	if !ok {
		return nil, sdkerrors.Wrapf(ErrNotFound, "ref %s", ref)
	}
	return append([]byte(nil), data...), nil
}

// Store implements Store. Storing identical bytes yields the same reference.
func (s *MemStore) Store(_ context.Context, data []byte) (Ref, error) {
	sum := sha256.Sum256(data)
	ref := Ref(hex.EncodeToString(sum[:]))

	s.mu.Lock()
	s.blobs[ref] = append([]byte(nil), data...)
	s.mu.Unlock()
	return ref, nil
}
