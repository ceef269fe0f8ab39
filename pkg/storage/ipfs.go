package storage

import (
	"bytes"
	"context"
	"io"

	sdkerrors "cosmossdk.io/errors"
	shell "github.com/ipfs/go-ipfs-api"
)

// IPFSStore persists blobs on an IPFS node reachable over its HTTP API.
type IPFSStore struct {
	sh *shell.Shell
}

// NewIPFSStore connects to the IPFS API at addr (e.g. "localhost:5001").
func NewIPFSStore(addr string) *IPFSStore {
	return &IPFSStore{sh: shell.NewShell(addr)}
}

// Fetch implements Store.
func (s *IPFSStore) Fetch(ctx context.Context, ref Ref) ([]byte, error) {
	rc, err := s.sh.Cat(string(ref))
	if err != nil {
		return nil, sdkerrors.Wrapf(ErrFetchFailed, "ipfs cat %s: %v", ref, err)
	}
	defer func() {
		_ = rc.Close()
	}()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, sdkerrors.Wrapf(ErrFetchFailed, "ipfs read %s: %v", ref, err)
	}
	return data, nil
}

// Store implements Store, pinning the blob so it survives GC.
func (s *IPFSStore) Store(ctx context.Context, data []byte) (Ref, error) {
	cid, err := s.sh.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return "", sdkerrors.Wrapf(ErrStoreFailed, "ipfs add: %v", err)
	}
	return Ref(cid), nil
}
