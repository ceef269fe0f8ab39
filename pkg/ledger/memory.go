package ledger

import (
	"context"
	"sync"
	"time"

	sdkerrors "cosmossdk.io/errors"
)

// MemLedger is an in-process Ledger with per-account versioning. It backs
// tests and single-node deployments; RPC-backed ledgers implement the same
// interface.
type MemLedger struct {
	mu      sync.RWMutex
	records map[Address]Record

	bus *eventBus
}

// NewMemLedger returns an empty in-memory ledger.
func NewMemLedger() *MemLedger {
	return &MemLedger{
		records: make(map[Address]Record),
		bus:     newEventBus(),
	}
}

// Get implements Ledger.
func (l *MemLedger) Get(_ context.Context, addr Address) (Record, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[addr]
	if !ok {
		return Record{}, false, nil
	}
	// Copy the payload so callers cannot alias stored state.
	out := Record{Data: append([]byte(nil), rec.Data...), Version: rec.Version}
	return out, true, nil
}

// Put implements Ledger. expectedVersion 0 requires the account to be absent.
func (l *MemLedger) Put(_ context.Context, addr Address, data []byte, expectedVersion uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[addr]
	switch {
	case !ok && expectedVersion != 0:
		return sdkerrors.Wrapf(ErrVersionConflict, "account %s does not exist, expected version %d", addr, expectedVersion)
	case ok && rec.Version != expectedVersion:
		return sdkerrors.Wrapf(ErrVersionConflict, "account %s at version %d, expected %d", addr, rec.Version, expectedVersion)
	}

	l.records[addr] = Record{
		Data:    append([]byte(nil), data...),
		Version: expectedVersion + 1,
	}
	return nil
}

// Emit implements Ledger.
func (l *MemLedger) Emit(_ context.Context, event Event) {
	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now().UTC()
	}
	l.bus.publish(event)
}

// Subscribe implements Ledger.
func (l *MemLedger) Subscribe(filter EventFilter) *Subscription {
	return l.bus.subscribe(filter)
}
