package hashtrie

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/htrie/lib/epoch"
	"github.com/ValentinKolb/htrie/lib/table"
	"github.com/ValentinKolb/htrie/lib/table/engines/internal"
	"github.com/ValentinKolb/htrie/lib/table/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var plog = logger.GetLogger("hashtrie")

// --------------------------------------------------------------------------
// Core Map structure
// --------------------------------------------------------------------------

// Map is a lock-free hash-trie. Lookups are wait-free, writers are lock-free
// with a bounded CAS retry budget per slot, and retired data nodes are
// recycled through epoch based reclamation.
type Map[K comparable, V any] struct {
	hasher    util.Hasher[K]
	geo       internal.Geometry
	opts      Options
	root      *node[K, V]
	reclaimer *epoch.Reclaimer

	size   *xsync.Counter
	closed atomic.Bool

	// idle holds detached handles for reuse by Attach, spare holds the
	// handles of the convenience methods. Both draw from separate slot
	// budgets, so attached handles never starve the convenience methods.
	idle       *xsync.MPMCQueueOf[*Handle[K, V]]
	spare      *xsync.MPMCQueueOf[*Handle[K, V]]
	attached   atomic.Int64
	borrowers  atomic.Int64
	warnedFull atomic.Bool
	mu         sync.Mutex
	handles    []*Handle[K, V]

	metrics *mapMetrics
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// New creates a Map that hashes keys with hasher and uses the specified
// options (optional). The trie depth is fixed here from the level widths.
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func New[K comparable, V any](hasher util.Hasher[K], opts *Options) (*Map[K, V], error) {
	if hasher == nil {
		return nil, errors.New("hashtrie: hasher must not be nil")
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	o, err := opts.withDefaults()
	if err != nil {
		return nil, fmt.Errorf("hashtrie: invalid options: %w", err)
	}
	geo, err := internal.NewGeometry(o.RootHashLevel, o.HashLevel)
	if err != nil {
		return nil, fmt.Errorf("hashtrie: invalid options: %w", err)
	}

	m := &Map[K, V]{
		hasher:    hasher,
		geo:       geo,
		opts:      o,
		root:      newArrayNode[K, V](geo.RootSize()),
		reclaimer: epoch.New(o.Participants + o.Borrowers),
		size:      xsync.NewCounter(),
		idle:      xsync.NewMPMCQueueOf[*Handle[K, V]](o.Participants),
		spare:     xsync.NewMPMCQueueOf[*Handle[K, V]](o.Borrowers),
	}
	m.metrics = newMapMetrics(m)

	plog.Debugf("created table %q (root=%d bits, level=%d bits, max level=%d, participants=%d+%d)",
		o.Name, o.RootHashLevel, o.HashLevel, geo.MaxLevel, o.Participants, o.Borrowers)

	return m, nil
}

// --------------------------------------------------------------------------
// Handles
// --------------------------------------------------------------------------

// Attach registers the calling goroutine and returns its Handle. Detached
// handles are reused before a new participant slot is claimed.
// It returns epoch.ErrNoFreeSlot (wrapped) if Options.Participants handles
// are already attached. The first failure is logged, later ones are not.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
// The returned Handle must only be used by one goroutine at a time.
func (m *Map[K, V]) Attach() (*Handle[K, V], error) {
	if m.closed.Load() {
		return nil, table.ErrClosed
	}
	if m.attached.Add(1) > int64(m.opts.Participants) {
		m.attached.Add(-1)
		if m.warnedFull.CompareAndSwap(false, true) {
			plog.Warningf("table %q: all %d participant slots are attached", m.opts.Name, m.opts.Participants)
		}
		return nil, fmt.Errorf("hashtrie: attach: %w", epoch.ErrNoFreeSlot)
	}

	if h, ok := m.idle.TryDequeue(); ok {
		h.attached.Store(true)
		return h, nil
	}
	h, err := m.register(false)
	if err != nil {
		m.attached.Add(-1)
		return nil, fmt.Errorf("hashtrie: attach: %w", err)
	}
	h.attached.Store(true)
	return h, nil
}

// register claims a participant slot and tracks the new handle for Close
func (m *Map[K, V]) register(borrowed bool) (*Handle[K, V], error) {
	p, err := m.reclaimer.Register()
	if err != nil {
		return nil, err
	}
	h := newHandle(m, p)
	h.borrowed = borrowed

	m.mu.Lock()
	m.handles = append(m.handles, h)
	m.mu.Unlock()

	return h, nil
}

// borrow returns a handle for a single convenience call. The handles come
// from the Options.Borrowers slots, which Attach never touches. When all of
// them are in flight, borrow waits for one of those calls to finish.
func (m *Map[K, V]) borrow() (*Handle[K, V], error) {
	if m.closed.Load() {
		return nil, table.ErrClosed
	}
	if h, ok := m.spare.TryDequeue(); ok {
		return h, nil
	}
	if m.borrowers.Add(1) <= int64(m.opts.Borrowers) {
		h, err := m.register(true)
		if err == nil {
			return h, nil
		}
		m.borrowers.Add(-1)
		return nil, err
	}
	m.borrowers.Add(-1)
	return m.spare.Dequeue(), nil
}

// giveBack returns a borrowed handle
func (m *Map[K, V]) giveBack(h *Handle[K, V]) {
	if m.closed.Load() {
		return
	}
	m.spare.Enqueue(h)
}

// --------------------------------------------------------------------------
// Table Interface Methods
// --------------------------------------------------------------------------

// Insert stores value under key using a borrowed handle. See Handle.Insert.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Map[K, V]) Insert(key K, value V) error {
	h, err := m.borrow()
	if err != nil {
		return err
	}
	defer m.giveBack(h)
	return h.Insert(key, value)
}

// Update replaces the value of key using a borrowed handle. See Handle.Update.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Map[K, V]) Update(key K, value V) error {
	h, err := m.borrow()
	if err != nil {
		return err
	}
	defer m.giveBack(h)
	return h.Update(key, value)
}

// Remove deletes key using a borrowed handle. See Handle.Remove.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Map[K, V]) Remove(key K) error {
	h, err := m.borrow()
	if err != nil {
		return err
	}
	defer m.giveBack(h)
	return h.Remove(key)
}

// Get looks up key using a borrowed handle. See Handle.Get. Handles held
// through Attach never delay it; Handle.Get skips the borrow altogether.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Map[K, V]) Get(key K) (V, bool) {
	h, err := m.borrow()
	if err != nil {
		var zero V
		return zero, false
	}
	defer m.giveBack(h)
	return h.Get(key)
}

// Len returns the number of entries. Concurrent writers may make the result
// stale by the time it is returned.
func (m *Map[K, V]) Len() int {
	return int(m.size.Value())
}

// MaxLevel returns the depth of the trie, the root counts as level 0
func (m *Map[K, V]) MaxLevel() int {
	return m.geo.MaxLevel
}

// Reclaimer returns the epoch reclaimer guarding the map
func (m *Map[K, V]) Reclaimer() *epoch.Reclaimer {
	return m.reclaimer
}

// SupportsFeature checks if this implementation supports a specific table feature
func (m *Map[K, V]) SupportsFeature(feature table.Feature) bool {
	supported := table.FeatureInsert |
		table.FeatureGet |
		table.FeatureUpdate |
		table.FeatureRemove |
		table.FeatureLockFree |
		table.FeatureWaitFreeGet
	if !m.opts.DisableRecycle {
		supported |= table.FeatureRecycle
	}
	return supported&feature == feature
}

// Close detaches every node reachable from the root and unregisters all
// handles. Subsequent operations return table.ErrClosed.
//
// Thread-safety: This method is not thread-safe. The caller must ensure that no
// other goroutine uses the map or one of its handles.
func (m *Map[K, V]) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	arrays, entries := clearSubtree(m.root)

	m.mu.Lock()
	for _, h := range m.handles {
		h.release()
	}
	m.handles = nil
	m.mu.Unlock()
	for _, q := range []*xsync.MPMCQueueOf[*Handle[K, V]]{m.idle, m.spare} {
		for {
			if _, ok := q.TryDequeue(); !ok {
				break
			}
		}
	}
	m.size.Reset()

	plog.Infof("closed table %q, released %d entries and %d array nodes", m.opts.Name, entries, arrays)
	return nil
}

// clearSubtree unlinks every node below n and counts what it released
func clearSubtree[K comparable, V any](n *node[K, V]) (arrays, entries int) {
	for i := range n.slots {
		child := n.slots[i].Swap(nil)
		switch {
		case child == nil:
		case child.isArray():
			a, e := clearSubtree(child)
			arrays += a + 1
			entries += e
		default:
			entries++
		}
	}
	return arrays, entries
}

// find returns the data node holding key or nil. The caller must be inside
// a protected section for as long as it uses the returned node.
func (m *Map[K, V]) find(hash uint64, key K) *node[K, V] {
	arr := m.root
	for level := 0; level < m.geo.MaxLevel; level++ {
		cur := arr.slot(m.geo.Index(hash, level)).Load()
		switch {
		case cur == nil:
			return nil
		case cur.isArray():
			arr = cur
		case cur.matches(hash, key):
			return cur
		default:
			return nil
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Handle statistics
// --------------------------------------------------------------------------

type handleTotals struct {
	allocs, reuses, retired uint64
}

// handleStats sums the allocation counters of all handles
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Map[K, V]) handleStats() handleTotals {
	m.mu.Lock()
	defer m.mu.Unlock()

	var t handleTotals
	for _, h := range m.handles {
		t.allocs += h.allocs.Load()
		t.reuses += h.reuses.Load()
		t.retired += h.retired.Load()
	}
	return t
}
