package hashtrie

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/htrie/lib/epoch"
	"github.com/ValentinKolb/htrie/lib/table"
	"github.com/ValentinKolb/htrie/lib/table/util"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/require"
)

func newIdentityMap(t *testing.T, opts *Options) *Map[uint64, uint64] {
	m, err := New[uint64, uint64](util.IdentityHasher(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func attach[K comparable, V any](t *testing.T, m *Map[K, V]) *Handle[K, V] {
	h, err := m.Attach()
	require.NoError(t, err)
	return h
}

// --------------------------------------------------------------------------
// Construction
// --------------------------------------------------------------------------

func TestNewValidatesOptions(t *testing.T) {
	_, err := New[uint64, uint64](nil, nil)
	require.Error(t, err)

	for _, opts := range []*Options{
		{HashLevel: 17},
		{RootHashLevel: -1},
		{Participants: -1},
		{Borrowers: -1},
		{Capacity: -1},
		{FailLimit: -3},
		{PoolSize: -1},
	} {
		_, err := New[uint64, uint64](util.IdentityHasher(), opts)
		require.Error(t, err, "%+v", opts)
	}
}

func TestMaxLevelCoversAllHashBits(t *testing.T) {
	m := newIdentityMap(t, nil)
	require.Equal(t, 15, m.MaxLevel())

	m = newIdentityMap(t, &Options{RootHashLevel: 16, HashLevel: 16})
	require.Equal(t, 4, m.MaxLevel())
}

// --------------------------------------------------------------------------
// Single handle behaviour
// --------------------------------------------------------------------------

func TestScenario(t *testing.T) {
	m := newIdentityMap(t, nil)
	h := attach(t, m)
	defer h.Detach()

	for k := uint64(0); k < 16; k++ {
		require.NoError(t, h.Insert(k, 10))
	}
	require.Equal(t, 16, m.Len())

	require.NoError(t, h.Insert(16, 10))
	v, ok := h.Get(16)
	require.True(t, ok)
	require.Equal(t, uint64(10), v)

	require.NoError(t, h.Update(16, 55))
	v, ok = h.Get(16)
	require.True(t, ok)
	require.Equal(t, uint64(55), v)

	require.NoError(t, h.Remove(16))
	_, ok = h.Get(16)
	require.False(t, ok)
	require.Equal(t, 16, m.Len())
}

func TestOutcomes(t *testing.T) {
	m := newIdentityMap(t, nil)
	h := attach(t, m)
	defer h.Detach()

	require.ErrorIs(t, h.Update(500, 1), table.ErrNotFound)
	require.ErrorIs(t, h.Remove(500), table.ErrNotFound)

	require.NoError(t, h.Insert(500, 1))
	require.ErrorIs(t, h.Insert(500, 2), table.ErrDuplicateKey)

	v, _ := h.Get(322)
	require.Zero(t, v)
	v, _ = h.Get(500)
	require.Equal(t, uint64(1), v)

	require.NoError(t, h.Update(500, 777))
	v, _ = h.Get(500)
	require.Equal(t, uint64(777), v)

	require.NoError(t, h.Remove(500))
	require.ErrorIs(t, h.Remove(500), table.ErrNotFound)
}

func TestCollisionPushesResidentDown(t *testing.T) {
	m := newIdentityMap(t, nil)
	h := attach(t, m)
	defer h.Detach()

	// 0 and 256 share root slot 0 and split one level deeper
	require.NoError(t, h.Insert(0, 1))
	require.NoError(t, h.Insert(256, 2))

	first := m.root.slots[0].Load()
	require.True(t, first.isArray())
	require.Equal(t, uint64(0), first.slots[0].Load().key)
	require.Equal(t, uint64(256), first.slots[1].Load().key)

	for k, want := range map[uint64]uint64{0: 1, 256: 2} {
		v, ok := h.Get(k)
		require.True(t, ok)
		require.Equal(t, want, v)
	}
}

func TestDeepCollision(t *testing.T) {
	m := newIdentityMap(t, nil)
	h := attach(t, m)
	defer h.Detach()

	// the hashes only differ in bit 60, which is consumed by the last level
	a, b := uint64(0), uint64(1)<<60
	require.NoError(t, h.Insert(a, 1))
	require.NoError(t, h.Insert(b, 2))

	meta := m.GetInfo().Metadata.(*Metadata)
	require.Equal(t, m.MaxLevel()-1, meta.ArrayNodes)
	require.Equal(t, 2, meta.DataNodes)
	require.Equal(t, m.MaxLevel()-1, meta.Depth.Median)

	v, ok := h.Get(b)
	require.True(t, ok)
	require.Equal(t, uint64(2), v)

	// array nodes stay in place after their entries are gone
	require.NoError(t, h.Remove(a))
	require.NoError(t, h.Remove(b))
	meta = m.GetInfo().Metadata.(*Metadata)
	require.Equal(t, m.MaxLevel()-1, meta.ArrayNodes)
	require.Zero(t, meta.DataNodes)
}

func TestFullHashCollision(t *testing.T) {
	constant := func(string) uint64 { return 0xdead }
	m, err := New[string, int](constant, nil)
	require.NoError(t, err)
	defer m.Close()

	h := attach(t, m)
	defer h.Detach()

	require.NoError(t, h.Insert("a", 1))
	require.ErrorIs(t, h.Insert("b", 2), table.ErrCapacityExhausted)
	require.ErrorIs(t, h.Insert("a", 3), table.ErrDuplicateKey)

	// keys are compared on a hash match, "b" never aliases "a"
	_, ok := h.Get("b")
	require.False(t, ok)
	require.ErrorIs(t, h.Update("b", 2), table.ErrNotFound)
	require.ErrorIs(t, h.Remove("b"), table.ErrNotFound)

	v, ok := h.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
	require.Equal(t, 1, m.Len())
}

func TestStringKeys(t *testing.T) {
	m, err := New[string, []byte](util.StringHasher(util.GenerateSeed()), nil)
	require.NoError(t, err)
	defer m.Close()

	for i := 0; i < 5000; i++ {
		require.NoError(t, m.Insert(fmt.Sprintf("key-%d", i), []byte(fmt.Sprintf("value-%d", i))))
	}
	for i := 0; i < 5000; i++ {
		v, ok := m.Get(fmt.Sprintf("key-%d", i))
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("value-%d", i), string(v))
	}
	require.Equal(t, 5000, m.Len())
}

// --------------------------------------------------------------------------
// Recycling
// --------------------------------------------------------------------------

func TestUpdateRecyclesNodes(t *testing.T) {
	m := newIdentityMap(t, nil)
	h := attach(t, m)
	defer h.Detach()

	require.NoError(t, h.Insert(1, 0))
	for i := uint64(1); i <= 100; i++ {
		require.NoError(t, h.Update(1, i))
		v, _ := h.Get(1)
		require.Equal(t, i, v)
	}

	// the node retired by one update is reused by the next one
	require.GreaterOrEqual(t, h.reuses.Load(), uint64(90))
	require.Equal(t, uint64(100), h.retired.Load())
	require.Less(t, h.allocs.Load(), uint64(10))
}

func TestDisabledRecyclingAllocates(t *testing.T) {
	m := newIdentityMap(t, &Options{DisableRecycle: true})
	h := attach(t, m)
	defer h.Detach()

	require.False(t, m.SupportsFeature(table.FeatureRecycle))
	require.NoError(t, h.Insert(1, 0))
	for i := uint64(1); i <= 50; i++ {
		require.NoError(t, h.Update(1, i))
	}
	require.Zero(t, h.reuses.Load())
	require.Equal(t, uint64(51), h.allocs.Load())
	require.Zero(t, h.pool.Len())
}

func TestDuplicateInsertAllocatesNothing(t *testing.T) {
	m := newIdentityMap(t, nil)
	h := attach(t, m)
	defer h.Detach()

	require.NoError(t, h.Insert(1, 1))
	require.NoError(t, h.Insert(257, 1)) // forces an array node at level 1

	// the duplicate allocated no node, nothing to return
	require.ErrorIs(t, h.Insert(1, 2), table.ErrDuplicateKey)
	require.Zero(t, h.pool.Len())
	require.Equal(t, uint64(2), h.allocs.Load())
}

func TestPinnedReaderBlocksReuse(t *testing.T) {
	m := newIdentityMap(t, nil)
	reader := attach(t, m)
	writer := attach(t, m)
	defer reader.Detach()
	defer writer.Detach()

	require.NoError(t, writer.Insert(9, 9))

	reader.Enter()
	pinned := m.find(9, 9)
	require.NotNil(t, pinned)

	for i := uint64(0); i < 5000; i++ {
		require.NoError(t, writer.Update(9, i))
		require.NoError(t, writer.Remove(9))
		require.NoError(t, writer.Insert(9, i))
	}

	// nothing retired after the reader entered may be reused
	require.Zero(t, writer.reuses.Load())
	require.Equal(t, uint64(9), pinned.key)
	require.Equal(t, uint64(9), pinned.value)
	reader.Leave()

	require.NoError(t, writer.Update(9, 1))
	require.NoError(t, writer.Update(9, 2))
	require.NotZero(t, writer.reuses.Load())
}

// --------------------------------------------------------------------------
// Handles
// --------------------------------------------------------------------------

func TestAttachExhaustion(t *testing.T) {
	m := newIdentityMap(t, &Options{Participants: 1})

	h := attach(t, m)
	_, err := m.Attach()
	require.ErrorIs(t, err, epoch.ErrNoFreeSlot)

	h.Detach()
	again := attach(t, m)
	require.Same(t, h, again)
	again.Detach()
}

// The convenience methods draw from their own slots, so a handle that is
// held for the lifetime of the map never blocks them.
func TestMapMethodsIgnoreAttachedHandles(t *testing.T) {
	m := newIdentityMap(t, &Options{Participants: 1, Borrowers: 1})

	h := attach(t, m)
	defer h.Detach()
	require.NoError(t, h.Insert(1, 1))

	var (
		v               uint64
		ok              bool
		insert, upd, rm error
		dataNodes       int
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		v, ok = m.Get(1)
		insert = m.Insert(2, 2)
		upd = m.Update(2, 3)
		dataNodes = m.GetInfo().Metadata.(*Metadata).DataNodes
		rm = m.Remove(2)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("map methods blocked while a handle holds the only participant slot")
	}
	require.True(t, ok)
	require.Equal(t, uint64(1), v)
	require.NoError(t, insert)
	require.NoError(t, upd)
	require.NoError(t, rm)
	require.Equal(t, 2, dataNodes)
	require.Equal(t, 1, m.Len())
	require.Equal(t, 2, m.Reclaimer().Registered())
}

func TestBorrowersAreShared(t *testing.T) {
	m := newIdentityMap(t, &Options{Borrowers: 1})

	var wg conc.WaitGroup
	for w := uint64(0); w < 8; w++ {
		wg.Go(func() {
			for i := uint64(0); i < 500; i++ {
				k := w<<32 | i
				for errors.Is(m.Insert(k, k), table.ErrContention) {
				}
			}
		})
	}
	wg.Wait()

	require.Equal(t, 8*500, m.Len())
	require.Equal(t, 1, m.Reclaimer().Registered())
}

func TestDetachTwicePanics(t *testing.T) {
	m := newIdentityMap(t, &Options{Participants: 2})
	h := attach(t, m)
	h.Detach()
	require.Panics(t, func() { h.Detach() })

	// the handle was queued once, so two attaches yield two handles
	a, b := attach(t, m), attach(t, m)
	require.NotSame(t, a, b)
	a.Detach()
	b.Detach()
}

func TestDetachInsideSectionPanics(t *testing.T) {
	m := newIdentityMap(t, nil)
	h := attach(t, m)

	h.Enter()
	require.Panics(t, func() { h.Detach() })
	h.Leave()
	h.Detach()
}

func TestClose(t *testing.T) {
	m, err := New[uint64, uint64](util.IdentityHasher(), nil)
	require.NoError(t, err)
	h := attach(t, m)
	for k := uint64(0); k < 1000; k++ {
		require.NoError(t, h.Insert(k, k))
	}
	h.Detach()

	require.NoError(t, m.Close())
	require.Zero(t, m.Len())
	require.Zero(t, m.Reclaimer().Registered())

	require.ErrorIs(t, h.Insert(1, 1), table.ErrClosed)
	require.ErrorIs(t, h.Update(1, 1), table.ErrClosed)
	require.ErrorIs(t, h.Remove(1), table.ErrClosed)
	_, ok := h.Get(1)
	require.False(t, ok)

	_, err = m.Attach()
	require.ErrorIs(t, err, table.ErrClosed)
	require.NoError(t, m.Close())
}

// --------------------------------------------------------------------------
// Info and metrics
// --------------------------------------------------------------------------

func TestGetInfo(t *testing.T) {
	m := newIdentityMap(t, &Options{Name: "info"})
	for k := uint64(0); k < 512; k++ {
		require.NoError(t, m.Insert(k, k))
	}

	info := m.GetInfo()
	require.Equal(t, table.ImplHashTrie, info.Impl)
	require.Equal(t, 512, info.Len)
	require.Contains(t, info.SupportedFeatures, table.FeatureLockFree)

	meta := info.Metadata.(*Metadata)
	require.Equal(t, 512, meta.DataNodes)
	// two keys per root slot, each root slot expanded once
	require.Equal(t, 256, meta.ArrayNodes)
	require.InDelta(t, 1.0, meta.RootDistribution.DistributionQuality, 1e-9)
	require.Equal(t, 1, meta.Depth.Median)
	require.Equal(t, m.Reclaimer().CurrentEpoch(), meta.CurrentEpoch)
}

func TestWriteMetrics(t *testing.T) {
	m := newIdentityMap(t, &Options{Name: "metrics"})
	require.NoError(t, m.Insert(1, 1))
	require.NoError(t, m.Insert(257, 1))
	require.NoError(t, m.Update(1, 2))

	var buf bytes.Buffer
	m.WriteMetrics(&buf)
	out := buf.String()

	require.Contains(t, out, `htrie_entries{table="metrics"} 2`)
	require.Contains(t, out, `htrie_array_expansions_total{table="metrics"} 1`)
	require.Contains(t, out, `htrie_node_retirements_total{table="metrics"} 1`)
	require.Contains(t, out, `htrie_contention_aborts_total{table="metrics"} 0`)
}

// --------------------------------------------------------------------------
// Concurrency
// --------------------------------------------------------------------------

// Readers pin a data node and verify it while writers churn the same keys.
// The pinned node must never be reinitialized before the reader leaves.
func TestNoPrematureReclamation(t *testing.T) {
	const keys = 8
	workers := runtime.GOMAXPROCS(0)
	if workers < 2 {
		workers = 2
	}
	m := newIdentityMap(t, &Options{Participants: 2 * workers})

	for k := uint64(0); k < keys; k++ {
		require.NoError(t, m.Insert(k, k<<32))
	}

	var stop atomic.Bool
	var violations atomic.Int64
	var writers, readers conc.WaitGroup

	for w := 0; w < workers; w++ {
		h := attach(t, m)
		writers.Go(func() {
			defer h.Detach()
			for i := uint64(0); !stop.Load(); i++ {
				k := i % keys
				// values always carry their key in the upper half
				_ = h.Update(k, k<<32|i&0xffffffff)
				if i%3 == 0 && h.Remove(k) == nil {
					for errors.Is(h.Insert(k, k<<32), table.ErrContention) {
					}
				}
				runtime.Gosched()
			}
		})
	}

	for r := 0; r < workers; r++ {
		h := attach(t, m)
		readers.Go(func() {
			defer h.Detach()
			for i := 0; i < 1000; i++ {
				k := uint64(i % keys)
				h.Enter()
				if n := m.find(k, k); n != nil {
					key, value := n.key, n.value
					for j := 0; j < 8; j++ {
						runtime.Gosched()
						if n.key != key || n.value != value || value>>32 != k {
							violations.Add(1)
						}
					}
				}
				h.Leave()
			}
		})
	}

	readers.Wait()
	stop.Store(true)
	writers.Wait()

	require.Zero(t, violations.Load())
	require.NotZero(t, m.GetInfo().Metadata.(*Metadata).Reuses)
}

func TestConcurrentExpansion(t *testing.T) {
	// one root bit and one bit per level maximise collisions
	m, err := New[uint64, uint64](util.Uint64Hasher(util.GenerateSeed()), &Options{
		RootHashLevel: 1,
		HashLevel:     1,
	})
	require.NoError(t, err)
	defer m.Close()

	const perWorker = 3000
	workers := runtime.GOMAXPROCS(0) * 2

	var wg conc.WaitGroup
	for w := 0; w < workers; w++ {
		base := uint64(w) * perWorker
		wg.Go(func() {
			h, err := m.Attach()
			if err != nil {
				t.Errorf("attach: %v", err)
				return
			}
			defer h.Detach()
			for i := uint64(0); i < perWorker; i++ {
				for {
					err := h.Insert(base+i, base+i)
					if err == nil {
						break
					}
					if !errors.Is(err, table.ErrContention) {
						t.Errorf("insert %d: %v", base+i, err)
						return
					}
				}
			}
		})
	}
	wg.Wait()

	require.Equal(t, workers*perWorker, m.Len())
	for k := uint64(0); k < uint64(workers*perWorker); k++ {
		v, ok := m.Get(k)
		require.True(t, ok, "key %d", k)
		require.Equal(t, k, v)
	}
	meta := m.GetInfo().Metadata.(*Metadata)
	require.Equal(t, workers*perWorker, meta.DataNodes)
}
