package hashtrie

import (
	"sync/atomic"

	"github.com/ValentinKolb/htrie/lib/recycle"
)

type nodeKind uint8

const (
	kindData nodeKind = iota + 1
	kindArray
)

// node is the tagged union of the trie. A data node carries one entry and
// the recycle links; an array node only carries its slots. The kind of a
// node never changes once it has been published: data nodes are recycled as
// data nodes and array nodes are never unlinked.
type node[K comparable, V any] struct {
	kind nodeKind

	// data node
	hash  uint64
	key   K
	value V
	links recycle.Links[node[K, V]]

	// array node
	slots []atomic.Pointer[node[K, V]]
}

// Links exposes the intrusive free list links to the recycle pool
func (n *node[K, V]) Links() *recycle.Links[node[K, V]] {
	return &n.links
}

func newArrayNode[K comparable, V any](size int) *node[K, V] {
	return &node[K, V]{
		kind:  kindArray,
		slots: make([]atomic.Pointer[node[K, V]], size),
	}
}

func (n *node[K, V]) isData() bool {
	return n.kind == kindData
}

func (n *node[K, V]) isArray() bool {
	return n.kind == kindArray
}

// slot returns the i-th slot of an array node
func (n *node[K, V]) slot(i int) *atomic.Pointer[node[K, V]] {
	if n.kind != kindArray {
		panic("hashtrie: slot access on a data node")
	}
	return &n.slots[i]
}

// matches reports whether the data node holds key. The key is compared on
// a hash match so colliding hashes never alias two keys.
func (n *node[K, V]) matches(hash uint64, key K) bool {
	if n.kind != kindData {
		panic("hashtrie: key access on an array node")
	}
	return n.hash == hash && n.key == key
}

// reset reinitializes a data node in place. It must only be called while
// the node is unreachable from the trie. The kind is left alone, so it can
// be read without protection.
func (n *node[K, V]) reset(hash uint64, key K, value V) {
	n.hash = hash
	n.key = key
	n.value = value
}

// scrub drops the references held by a retired data node so the pool does
// not keep keys and values alive.
func (n *node[K, V]) scrub() {
	var (
		k K
		v V
	)
	n.key = k
	n.value = v
}
