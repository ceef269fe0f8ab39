package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	sdkerrors "cosmossdk.io/errors"
)

const codespace = "ledger"

var (
	// ErrNotFound indicates the requested account does not exist.
	ErrNotFound = sdkerrors.Register(codespace, 2, "account not found")

	// ErrVersionConflict indicates a compare-and-set write observed a stale version.
	// Callers must re-read current state before deciding whether to retry.
	ErrVersionConflict = sdkerrors.Register(codespace, 3, "account version conflict")

	// ErrUnavailable indicates the ledger transport failed or a confirmation
	// timed out. The outcome is unknown; callers must re-query state.
	ErrUnavailable = sdkerrors.Register(codespace, 4, "ledger unavailable")

	// ErrInsufficientBalance indicates a debit larger than the account balance.
	ErrInsufficientBalance = sdkerrors.Register(codespace, 5, "insufficient balance")
)

// Address identifies an account in the ledger's state store.
type Address [32]byte

// String returns the hex form used in events and logs.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// AddressFromString parses the hex form produced by String.
func AddressFromString(s string) (Address, error) {
	var a Address
	raw, err := hex.DecodeString(s)
	if err != nil {
		return a, sdkerrors.Wrap(ErrNotFound, "malformed address")
	}
	if len(raw) != len(a) {
		return a, sdkerrors.Wrapf(ErrNotFound, "address length %d", len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// Derive computes a deterministic account address from seed values,
// mirroring PDA-style derivation: sha256 over the length-prefixed seeds.
func Derive(seeds ...[]byte) Address {
	h := sha256.New()
	for _, seed := range seeds {
		var ln [2]byte
		ln[0] = byte(len(seed) >> 8)
		ln[1] = byte(len(seed))
		h.Write(ln[:])
		h.Write(seed)
	}
	var a Address
	copy(a[:], h.Sum(nil))
	return a
}

// Record is the stored state of a single account together with the version
// used for optimistic concurrency.
type Record struct {
	Data    []byte
	Version uint64
}

// Event is emitted by state transitions. Attributes follow the
// module_action / snake_case convention.
type Event struct {
	Type       string
	Attributes map[string]string
	EmittedAt  time.Time
}

// Attribute returns an attribute value, empty when absent.
func (e Event) Attribute(key string) string {
	return e.Attributes[key]
}

// Ledger is the account-based state store collaborator. Writes use
// compare-and-set semantics: Put succeeds only if the stored version still
// matches expectedVersion (0 means "create; must not exist").
type Ledger interface {
	// Get returns the current record for addr. found is false when the
	// account has never been written.
	Get(ctx context.Context, addr Address) (rec Record, found bool, err error)

	// Put writes data at addr if the stored version equals expectedVersion.
	// On success the stored version becomes expectedVersion+1.
	Put(ctx context.Context, addr Address, data []byte, expectedVersion uint64) error

	// Emit publishes an event to all matching subscribers.
	Emit(ctx context.Context, event Event)

	// Subscribe registers for events whose type is in filter.Types
	// (empty filter matches everything). The returned subscription must be
	// closed by the caller.
	Subscribe(filter EventFilter) *Subscription
}
