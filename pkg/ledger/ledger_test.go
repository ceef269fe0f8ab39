package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func TestDeriveDeterministic(t *testing.T) {
	a := Derive([]byte("task"), []byte("alice"), []byte("model"))
	b := Derive([]byte("task"), []byte("alice"), []byte("model"))
	require.Equal(t, a, b)

	c := Derive([]byte("task"), []byte("alice"), []byte("model2"))
	require.NotEqual(t, a, c)

	// Length prefixing keeps seed boundaries unambiguous.
	d := Derive([]byte("ta"), []byte("skalice"), []byte("model"))
	require.NotEqual(t, a, d)
}

func TestAddressRoundTrip(t *testing.T) {
	addr := Derive([]byte("pool"), []byte("validator"))
	parsed, err := AddressFromString(addr.String())
	require.NoError(t, err)
	require.Equal(t, addr, parsed)

	_, err = AddressFromString("zz")
	require.Error(t, err)
}

func TestMemLedgerCAS(t *testing.T) {
	ctx := context.Background()
	l := NewMemLedger()
	addr := Derive([]byte("x"))

	// Create requires expected version 0.
	require.NoError(t, l.Put(ctx, addr, []byte("v1"), 0))
	err := l.Put(ctx, addr, []byte("again"), 0)
	require.True(t, sdkerrors.IsOf(err, ErrVersionConflict))

	rec, found, err := l.Get(ctx, addr)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v1"), rec.Data)
	require.Equal(t, uint64(1), rec.Version)

	// Stale version loses.
	require.NoError(t, l.Put(ctx, addr, []byte("v2"), 1))
	err = l.Put(ctx, addr, []byte("v3"), 1)
	require.True(t, sdkerrors.IsOf(err, ErrVersionConflict))
}

func TestMemLedgerConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	l := NewMemLedger()
	addr := Derive([]byte("race"))

	const writers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Put(ctx, addr, []byte("winner"), 0); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func TestBankBalances(t *testing.T) {
	ctx := context.Background()
	bank := NewBank(NewMemLedger())

	bal, err := bank.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	require.True(t, bal.IsZero())

	require.NoError(t, bank.Credit(ctx, "alice", math.NewInt(100)))
	require.NoError(t, bank.Debit(ctx, "alice", math.NewInt(30)))

	bal, err = bank.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, math.NewInt(70), bal)

	err = bank.Debit(ctx, "alice", math.NewInt(100))
	require.True(t, sdkerrors.IsOf(err, ErrInsufficientBalance))

	require.NoError(t, bank.Transfer(ctx, "alice", "bob", math.NewInt(70)))
	bal, err = bank.BalanceOf(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, math.NewInt(70), bal)
}

func TestBankConcurrentCredits(t *testing.T) {
	ctx := context.Background()
	bank := NewBank(NewMemLedger())

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, bank.Credit(ctx, "hot", math.NewInt(10)))
		}()
	}
	wg.Wait()

	bal, err := bank.BalanceOf(ctx, "hot")
	require.NoError(t, err)
	require.Equal(t, math.NewInt(writers*10), bal)
}

func TestEventSubscription(t *testing.T) {
	ctx := context.Background()
	l := NewMemLedger()

	sub := l.Subscribe(EventFilter{Types: []string{"task_created"}})
	defer sub.Close()
	all := l.Subscribe(EventFilter{})
	defer all.Close()

	l.Emit(ctx, Event{Type: "task_created", Attributes: map[string]string{"task_id": "t1"}})
	l.Emit(ctx, Event{Type: "stake_slashed"})

	select {
	case ev := <-sub.C:
		require.Equal(t, "task_created", ev.Type)
		require.Equal(t, "t1", ev.Attributes["task_id"])
	case <-time.After(time.Second):
		t.Fatal("filtered subscriber got no event")
	}

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-all.C:
			got[ev.Type] = true
		case <-time.After(time.Second):
			t.Fatal("unfiltered subscriber missed events")
		}
	}
	require.True(t, got["task_created"])
	require.True(t, got["stake_slashed"])

	// The filtered subscriber must not see the slash event.
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}
