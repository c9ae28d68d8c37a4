package reference

import (
	"github.com/ValentinKolb/htrie/lib/table"
	"github.com/ValentinKolb/htrie/lib/table/engines/internal"
)

// --------------------------------------------------------------------------
// Nodes
// --------------------------------------------------------------------------

type entry[K comparable, V any] struct {
	hash  uint64
	key   K
	value V
}

// slot holds either nothing, one entry or one child array
type slot[K comparable, V any] struct {
	entry *entry[K, V]
	child *array[K, V]
}

func (s *slot[K, V]) empty() bool {
	return s.entry == nil && s.child == nil
}

type array[K comparable, V any] struct {
	slots []slot[K, V]
}

// --------------------------------------------------------------------------
// Single-threaded trie
// --------------------------------------------------------------------------

// trie is the sequential hash-trie. It uses the same level addressing as the
// concurrent engine so both produce the same outcome for the same history.
//
// Thread-safety: None. The Table wrapper serializes access.
type trie[K comparable, V any] struct {
	geo     internal.Geometry
	root    array[K, V]
	reserve []*array[K, V]
	size    int
	arrays  int
}

func newTrie[K comparable, V any](geo internal.Geometry, capacity int) *trie[K, V] {
	t := &trie[K, V]{
		geo:  geo,
		root: array[K, V]{slots: make([]slot[K, V], geo.RootSize())},
	}
	t.reserveArrays(capacity)
	return t
}

// reserveArrays pre-allocates one array node for every Size() expected entries
func (t *trie[K, V]) reserveArrays(capacity int) {
	n := (capacity + t.geo.Size() - 1) / t.geo.Size()
	for i := 0; i < n; i++ {
		t.reserve = append(t.reserve, &array[K, V]{slots: make([]slot[K, V], t.geo.Size())})
	}
}

func (t *trie[K, V]) newArray() *array[K, V] {
	if n := len(t.reserve); n > 0 {
		a := t.reserve[n-1]
		t.reserve[n-1] = nil
		t.reserve = t.reserve[:n-1]
		return a
	}
	return &array[K, V]{slots: make([]slot[K, V], t.geo.Size())}
}

// locate returns the slot holding key or nil
func (t *trie[K, V]) locate(hash uint64, key K) *slot[K, V] {
	arr := &t.root
	for level := 0; level < t.geo.MaxLevel; level++ {
		s := &arr.slots[t.geo.Index(hash, level)]
		switch {
		case s.child != nil:
			arr = s.child
		case s.entry != nil && s.entry.hash == hash && s.entry.key == key:
			return s
		default:
			return nil
		}
	}
	return nil
}

func (t *trie[K, V]) get(hash uint64, key K) (V, bool) {
	if s := t.locate(hash, key); s != nil {
		return s.entry.value, true
	}
	var zero V
	return zero, false
}

func (t *trie[K, V]) insert(hash uint64, key K, value V) error {
	arr := &t.root
	for level := 0; level < t.geo.MaxLevel; level++ {
		s := &arr.slots[t.geo.Index(hash, level)]
		switch {
		case s.empty():
			s.entry = &entry[K, V]{hash: hash, key: key, value: value}
			t.size++
			return nil

		case s.child != nil:
			arr = s.child

		case s.entry.hash == hash:
			if s.entry.key == key {
				return table.ErrDuplicateKey
			}
			return table.ErrCapacityExhausted

		case t.geo.IsLast(level):
			return table.ErrCapacityExhausted

		default:
			// push the resident one level down and continue below it
			resident := s.entry
			child := t.newArray()
			child.slots[t.geo.Index(resident.hash, level+1)].entry = resident
			s.entry, s.child = nil, child
			t.arrays++
			arr = child
		}
	}
	return table.ErrCapacityExhausted
}

func (t *trie[K, V]) update(hash uint64, key K, value V) error {
	s := t.locate(hash, key)
	if s == nil {
		return table.ErrNotFound
	}
	s.entry.value = value
	return nil
}

func (t *trie[K, V]) remove(hash uint64, key K) error {
	s := t.locate(hash, key)
	if s == nil {
		return table.ErrNotFound
	}
	s.entry = nil
	t.size--
	return nil
}

// clear drops every entry and array node
func (t *trie[K, V]) clear() {
	clear(t.root.slots)
	t.reserve = nil
	t.size = 0
	t.arrays = 0
}
