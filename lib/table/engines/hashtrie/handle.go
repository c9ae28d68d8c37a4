package hashtrie

import (
	"sync/atomic"

	"github.com/ValentinKolb/htrie/lib/epoch"
	"github.com/ValentinKolb/htrie/lib/recycle"
	"github.com/ValentinKolb/htrie/lib/table"
)

// Handle is a participant of a Map. It owns the epoch participant, the
// recycle pool of retired data nodes and a reserve of array nodes. Every
// operation on a handle enters epoch protection for its whole duration.
//
// Thread-safety: A Handle must only be used by one goroutine at a time.
// Different handles of the same map can be used concurrently.
type Handle[K comparable, V any] struct {
	m       *Map[K, V]
	p       *epoch.Participant
	pool    *recycle.Pool[node[K, V], *node[K, V]]
	reserve []*node[K, V]

	borrowed bool
	attached atomic.Bool

	// read by the metrics gauges
	allocs, reuses, retired atomic.Uint64
}

func newHandle[K comparable, V any](m *Map[K, V], p *epoch.Participant) *Handle[K, V] {
	h := &Handle[K, V]{
		m: m,
		p: p,
		pool: recycle.New[node[K, V]](&recycle.Options{
			Disabled: m.opts.DisableRecycle,
			MaxSize:  m.opts.PoolSize,
		}),
	}

	// spread the capacity hint over the participants, one array node per
	// fan-out entries
	if m.opts.Capacity > 0 {
		n := m.opts.Capacity / m.geo.Size() / m.opts.Participants
		n = min(n, maxReservePerHandle)
		h.reserve = make([]*node[K, V], 0, n)
		for i := 0; i < n; i++ {
			h.reserve = append(h.reserve, newArrayNode[K, V](m.geo.Size()))
		}
	}
	return h
}

// Detach returns the handle to the map for reuse. The handle must not be
// used by the caller afterwards. Detaching twice panics.
func (h *Handle[K, V]) Detach() {
	if h.p.Protected() {
		panic("hashtrie: Detach called inside a protected section")
	}
	if h.borrowed || !h.attached.CompareAndSwap(true, false) {
		panic("hashtrie: Detach called on a handle that is not attached")
	}
	if !h.m.closed.Load() {
		h.m.idle.Enqueue(h)
	}
	h.m.attached.Add(-1)
}

// Enter pins every node the handle observes until the matching Leave.
// Operations enter on their own; Enter is only needed to extend protection
// over several operations. Calls nest.
func (h *Handle[K, V]) Enter() {
	h.p.Enter()
}

// Leave ends a protected section started by Enter
func (h *Handle[K, V]) Leave() {
	h.p.Leave()
}

// --------------------------------------------------------------------------
// Operations
// --------------------------------------------------------------------------

// Get returns the value stored under key. It never writes shared memory and
// finishes after at most MaxLevel slot loads.
func (h *Handle[K, V]) Get(key K) (V, bool) {
	var zero V
	m := h.m
	if m.closed.Load() {
		return zero, false
	}

	hash := m.hasher(key)
	h.p.Enter()
	defer h.p.Leave()

	if n := m.find(hash, key); n != nil {
		return n.value, true
	}
	return zero, false
}

// Insert stores value under key if the key is absent.
//
// Outcomes: nil on success, table.ErrDuplicateKey if the key is present,
// table.ErrContention if the CAS on one slot failed FailLimit times and
// table.ErrCapacityExhausted if a different key has the same 64 bit hash.
func (h *Handle[K, V]) Insert(key K, value V) error {
	m := h.m
	if m.closed.Load() {
		return table.ErrClosed
	}

	hash := m.hasher(key)
	h.p.Enter()
	defer h.p.Leave()

	var fresh *node[K, V]
	arr := m.root
descend:
	for level := 0; level < m.geo.MaxLevel; level++ {
		slot := arr.slot(m.geo.Index(hash, level))
		cur := slot.Load()

		for fails := 0; fails < m.opts.FailLimit; {
			switch {
			case cur == nil:
				if fresh == nil {
					fresh = h.newData(hash, key, value)
				}
				if slot.CompareAndSwap(nil, fresh) {
					m.size.Inc()
					return nil
				}

			case cur.isArray():
				arr = cur
				continue descend

			case cur.hash == hash:
				if cur.key == key {
					return h.abort(fresh, table.ErrDuplicateKey)
				}
				m.metrics.capacityExhausted.Inc()
				plog.Warningf("table %q: distinct keys share hash %#x", m.opts.Name, hash)
				return h.abort(fresh, table.ErrCapacityExhausted)

			case m.geo.IsLast(level):
				// unreachable: distinct hashes separate before the last level
				return h.abort(fresh, table.ErrCapacityExhausted)

			default:
				// push the resident one level down and retry one level deeper
				next := h.newArray()
				at := m.geo.Index(cur.hash, level+1)
				next.slots[at].Store(cur)
				if slot.CompareAndSwap(cur, next) {
					m.metrics.expansions.Inc()
					arr = next
					continue descend
				}
				next.slots[at].Store(nil)
				h.reserve = append(h.reserve, next)
			}

			fails++
			cur = slot.Load()
		}
		return h.contended(fresh)
	}
	return h.abort(fresh, table.ErrCapacityExhausted)
}

// Update replaces the value stored under key. The replaced data node is
// retired and recycled once no participant can still observe it.
//
// Outcomes: nil on success, table.ErrNotFound if the key is absent and
// table.ErrContention if the CAS on one slot failed FailLimit times.
func (h *Handle[K, V]) Update(key K, value V) error {
	m := h.m
	if m.closed.Load() {
		return table.ErrClosed
	}

	hash := m.hasher(key)
	h.p.Enter()
	defer h.p.Leave()

	var fresh *node[K, V]
	arr := m.root
descend:
	for level := 0; level < m.geo.MaxLevel; level++ {
		slot := arr.slot(m.geo.Index(hash, level))
		cur := slot.Load()

		for fails := 0; fails < m.opts.FailLimit; fails++ {
			switch {
			case cur == nil:
				return h.abort(fresh, table.ErrNotFound)
			case cur.isArray():
				arr = cur
				continue descend
			case !cur.matches(hash, key):
				return h.abort(fresh, table.ErrNotFound)
			}

			if fresh == nil {
				fresh = h.newData(hash, key, value)
			}
			if slot.CompareAndSwap(cur, fresh) {
				h.retire(cur)
				return nil
			}
			cur = slot.Load()
		}
		return h.contended(fresh)
	}
	return h.abort(fresh, table.ErrNotFound)
}

// Remove deletes key. The removed data node is retired and recycled once no
// participant can still observe it.
//
// Outcomes: nil on success, table.ErrNotFound if the key is absent and
// table.ErrContention if the CAS on one slot failed FailLimit times.
func (h *Handle[K, V]) Remove(key K) error {
	m := h.m
	if m.closed.Load() {
		return table.ErrClosed
	}

	hash := m.hasher(key)
	h.p.Enter()
	defer h.p.Leave()

	arr := m.root
descend:
	for level := 0; level < m.geo.MaxLevel; level++ {
		slot := arr.slot(m.geo.Index(hash, level))
		cur := slot.Load()

		for fails := 0; fails < m.opts.FailLimit; fails++ {
			switch {
			case cur == nil:
				return table.ErrNotFound
			case cur.isArray():
				arr = cur
				continue descend
			case !cur.matches(hash, key):
				return table.ErrNotFound
			}

			if slot.CompareAndSwap(cur, nil) {
				m.size.Dec()
				h.retire(cur)
				return nil
			}
			cur = slot.Load()
		}
		return h.contended(nil)
	}
	return table.ErrNotFound
}

// --------------------------------------------------------------------------
// Node management
// --------------------------------------------------------------------------

// newData returns an initialized data node, reusing a retired one when the
// pool has a node that is safe to reuse.
func (h *Handle[K, V]) newData(hash uint64, key K, value V) *node[K, V] {
	if !h.m.opts.DisableRecycle {
		if h.pool.Len() == 0 && h.p.Pending() > 0 {
			h.p.Drain()
		}
		if h.pool.Len() > 0 {
			if n, ok := h.pool.Acquire(h.m.reclaimer.SafeEpoch()); ok {
				n.reset(hash, key, value)
				h.reuses.Add(1)
				return n
			}
		}
	}

	h.allocs.Add(1)
	n := &node[K, V]{kind: kindData}
	n.reset(hash, key, value)
	return n
}

// newArray returns an empty array node from the reserve or allocates one
func (h *Handle[K, V]) newArray() *node[K, V] {
	if n := len(h.reserve); n > 0 {
		a := h.reserve[n-1]
		h.reserve[n-1] = nil
		h.reserve = h.reserve[:n-1]
		return a
	}
	return newArrayNode[K, V](h.m.geo.Size())
}

// retire hands a data node that was just unlinked by a successful CAS to the
// reclaimer. The node returns to this handle's pool once every participant
// that might still hold it has left its protected section.
func (h *Handle[K, V]) retire(n *node[K, V]) {
	h.retired.Add(1)
	if h.m.opts.DisableRecycle {
		h.p.BumpEpoch(nil)
		return
	}
	h.p.BumpEpoch(func(stamp uint64) {
		n.scrub()
		n.links.Stamp(stamp)
		h.pool.Release(n)
	})
}

// abort returns an unpublished data node to the pool and passes err through.
// An unpublished node was never visible to other participants, so it keeps
// stamp 0 and is reusable right away.
func (h *Handle[K, V]) abort(fresh *node[K, V], err error) error {
	if fresh != nil {
		fresh.scrub()
		fresh.links.Stamp(0)
		h.pool.Release(fresh)
	}
	return err
}

func (h *Handle[K, V]) contended(fresh *node[K, V]) error {
	h.m.metrics.contention.Inc()
	return h.abort(fresh, table.ErrContention)
}

// release drops every node owned by the handle and frees its participant slot
func (h *Handle[K, V]) release() {
	h.pool.Reset()
	h.reserve = nil
	if !h.p.Protected() {
		h.p.Unregister()
	}
}
