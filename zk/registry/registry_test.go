package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	sdkerrors "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"github.com/stretchr/testify/require"

	"github.com/haunti-network/haunti/pkg/storage"
	"github.com/haunti-network/haunti/zk/circuits"
)

func TestRegistryGet(t *testing.T) {
	reg := New(nil)

	cfg, err := reg.Get(circuits.PreimageCircuitName)
	require.NoError(t, err)
	require.Equal(t, circuits.PreimageCircuitName, cfg.Name)
	require.Equal(t, 2, cfg.PublicInputs)

	_, err = reg.Get("unknown-circuit")
	require.True(t, sdkerrors.IsOf(err, ErrCircuitNotConfigured))
}

func TestRegistryOverrides(t *testing.T) {
	reg := New(map[string]ArtifactOverride{
		circuits.PreimageCircuitName: {
			ProgramRef:      "prog-ref",
			ProvingKeyRef:   "pk-ref",
			VerifyingKeyRef: "vk-ref",
			ProgramDigest:   "abcd",
		},
	})
	cfg, err := reg.Get(circuits.PreimageCircuitName)
	require.NoError(t, err)
	require.Equal(t, storage.Ref("prog-ref"), cfg.ProgramRef)
	require.Equal(t, "abcd", cfg.ProgramDigest)

	// Other circuits stay unconfigured.
	other, err := reg.Get(circuits.TrainingCircuitName)
	require.NoError(t, err)
	require.Empty(t, other.ProgramRef)
}

func TestEnsureLoadedWithoutArtifacts(t *testing.T) {
	reg := New(nil)
	cache := NewArtifactCache(reg, storage.NewMemStore(), log.NewNopLogger())

	_, err := cache.EnsureLoaded(context.Background(), circuits.PreimageCircuitName, false)
	require.True(t, sdkerrors.IsOf(err, ErrArtifactsMissing))

	_, err = cache.EnsureLoaded(context.Background(), "unknown-circuit", false)
	require.True(t, sdkerrors.IsOf(err, ErrCircuitNotConfigured))
}

// countingStore counts Fetch calls to observe single-flight behavior.
type countingStore struct {
	inner   storage.Store
	fetches atomic.Int64
}

func (c *countingStore) Fetch(ctx context.Context, ref storage.Ref) ([]byte, error) {
	c.fetches.Add(1)
	return c.inner.Fetch(ctx, ref)
}

func (c *countingStore) Store(ctx context.Context, data []byte) (storage.Ref, error) {
	return c.inner.Store(ctx, data)
}

func setupPreimage(t *testing.T, store storage.Store) *Registry {
	t.Helper()
	reg := New(nil)
	_, err := reg.Setup(context.Background(), circuits.PreimageCircuitName, store, log.NewNopLogger())
	require.NoError(t, err)
	return reg
}

func TestEnsureLoadedSingleFlight(t *testing.T) {
	store := &countingStore{inner: storage.NewMemStore()}
	reg := setupPreimage(t, store)
	store.fetches.Store(0)

	cache := NewArtifactCache(reg, store, log.NewNopLogger())

	const callers = 8
	var wg sync.WaitGroup
	bundles := make([]*ArtifactBundle, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bundle, err := cache.EnsureLoaded(context.Background(), circuits.PreimageCircuitName, false)
			require.NoError(t, err)
			bundles[i] = bundle
		}(i)
	}
	wg.Wait()

	// One fetch per artifact regardless of caller count.
	require.Equal(t, int64(3), store.fetches.Load())
	for i := 1; i < callers; i++ {
		require.Same(t, bundles[0], bundles[i])
	}

	// A cached entry costs no further fetches.
	_, err := cache.EnsureLoaded(context.Background(), circuits.PreimageCircuitName, false)
	require.NoError(t, err)
	require.Equal(t, int64(3), store.fetches.Load())
}

func TestEnsureLoadedForceReload(t *testing.T) {
	store := &countingStore{inner: storage.NewMemStore()}
	reg := setupPreimage(t, store)
	cache := NewArtifactCache(reg, store, log.NewNopLogger())

	first, err := cache.EnsureLoaded(context.Background(), circuits.PreimageCircuitName, false)
	require.NoError(t, err)

	store.fetches.Store(0)
	second, err := cache.EnsureLoaded(context.Background(), circuits.PreimageCircuitName, true)
	require.NoError(t, err)
	require.Equal(t, int64(3), store.fetches.Load())
	require.NotSame(t, first, second)
	require.Equal(t, first.ProgramDigest, second.ProgramDigest)
}

func TestEnsureLoadedIntegrityFailure(t *testing.T) {
	store := storage.NewMemStore()
	reg := setupPreimage(t, store)
	cfg, err := reg.Get(circuits.PreimageCircuitName)
	require.NoError(t, err)

	// Same blobs, wrong expected digest.
	tampered := New(map[string]ArtifactOverride{
		circuits.PreimageCircuitName: {
			ProgramRef:      string(cfg.ProgramRef),
			ProvingKeyRef:   string(cfg.ProvingKeyRef),
			VerifyingKeyRef: string(cfg.VerifyingKeyRef),
			ProgramDigest:   "0000000000000000000000000000000000000000000000000000000000000000",
		},
	})
	cache := NewArtifactCache(tampered, store, log.NewNopLogger())

	_, err = cache.EnsureLoaded(context.Background(), circuits.PreimageCircuitName, false)
	require.True(t, sdkerrors.IsOf(err, ErrArtifactIntegrity))
}

// unreachableStore simulates a transport outage on every fetch.
type unreachableStore struct {
	inner storage.Store
}

func (s *unreachableStore) Fetch(context.Context, storage.Ref) ([]byte, error) {
	return nil, sdkerrors.Wrap(storage.ErrFetchFailed, "gateway timeout")
}

func (s *unreachableStore) Store(ctx context.Context, data []byte) (storage.Ref, error) {
	return s.inner.Store(ctx, data)
}

func TestEnsureLoadedUnresolvableRefs(t *testing.T) {
	reg := New(map[string]ArtifactOverride{
		circuits.PreimageCircuitName: {
			ProgramRef:      "missing-prog",
			ProvingKeyRef:   "missing-pk",
			VerifyingKeyRef: "missing-vk",
		},
	})
	cache := NewArtifactCache(reg, storage.NewMemStore(), log.NewNopLogger())

	// Configured references that resolve to nothing are a setup problem,
	// not a transport failure.
	_, err := cache.EnsureLoaded(context.Background(), circuits.PreimageCircuitName, false)
	require.True(t, sdkerrors.IsOf(err, ErrArtifactsMissing))
	require.False(t, sdkerrors.IsOf(err, ErrArtifactFetch))
}

func TestEnsureLoadedFetchFailure(t *testing.T) {
	reg := New(map[string]ArtifactOverride{
		circuits.PreimageCircuitName: {
			ProgramRef:      "prog-ref",
			ProvingKeyRef:   "pk-ref",
			VerifyingKeyRef: "vk-ref",
		},
	})
	cache := NewArtifactCache(reg, &unreachableStore{inner: storage.NewMemStore()}, log.NewNopLogger())

	_, err := cache.EnsureLoaded(context.Background(), circuits.PreimageCircuitName, false)
	require.True(t, sdkerrors.IsOf(err, ErrArtifactFetch))
}
