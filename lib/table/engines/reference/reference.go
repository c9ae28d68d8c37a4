package reference

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ValentinKolb/htrie/lib/table"
	"github.com/ValentinKolb/htrie/lib/table/engines/internal"
	"github.com/ValentinKolb/htrie/lib/table/util"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("reference")

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures the reference table during initialization
type Options struct {
	HashLevel     int // Bits per array level below the root (0 = default: 4)
	RootHashLevel int // Bits of the root array (0 = default: 8)
	Capacity      int // Expected number of entries, array nodes are reserved for it
}

// DefaultOptions returns the default reference table options
func DefaultOptions() *Options {
	return &Options{
		HashLevel:     internal.DefaultHashLevel,
		RootHashLevel: internal.DefaultRootHashLevel,
	}
}

// --------------------------------------------------------------------------
// Table
// --------------------------------------------------------------------------

// Table wraps the sequential trie with a read-write lock. It reports the
// same outcomes as the lock-free engine for the same history and is used as
// an oracle by tests and the stress command.
type Table[K comparable, V any] struct {
	mu     sync.RWMutex
	hasher util.Hasher[K]
	trie   *trie[K, V]
	closed bool
}

// New creates a reference table that hashes keys with hasher and uses the
// specified options (optional)
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func New[K comparable, V any](hasher util.Hasher[K], opts *Options) (*Table[K, V], error) {
	if hasher == nil {
		return nil, errors.New("reference: hasher must not be nil")
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	root, bits := opts.RootHashLevel, opts.HashLevel
	if root == 0 {
		root = internal.DefaultRootHashLevel
	}
	if bits == 0 {
		bits = internal.DefaultHashLevel
	}
	if opts.Capacity < 0 {
		return nil, fmt.Errorf("reference: invalid options: capacity must not be negative, got %d", opts.Capacity)
	}
	geo, err := internal.NewGeometry(root, bits)
	if err != nil {
		return nil, fmt.Errorf("reference: invalid options: %w", err)
	}

	plog.Debugf("created reference table (root=%d bits, level=%d bits, capacity=%d)", root, bits, opts.Capacity)

	return &Table[K, V]{
		hasher: hasher,
		trie:   newTrie[K, V](geo, opts.Capacity),
	}, nil
}

// --------------------------------------------------------------------------
// Table Interface Methods
// --------------------------------------------------------------------------

// Insert stores value under key if the key is absent
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Table[K, V]) Insert(key K, value V) error {
	hash := t.hasher(key)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return table.ErrClosed
	}
	return t.trie.insert(hash, key, value)
}

// Update replaces the value of key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Table[K, V]) Update(key K, value V) error {
	hash := t.hasher(key)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return table.ErrClosed
	}
	return t.trie.update(hash, key, value)
}

// Remove deletes key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Table[K, V]) Remove(key K) error {
	hash := t.hasher(key)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return table.ErrClosed
	}
	return t.trie.remove(hash, key)
}

// Get looks up key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Table[K, V]) Get(key K) (V, bool) {
	hash := t.hasher(key)
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		var zero V
		return zero, false
	}
	return t.trie.get(hash, key)
}

// Len returns the number of entries
func (t *Table[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.trie.size
}

// SupportsFeature checks if this implementation supports a specific table feature
func (t *Table[K, V]) SupportsFeature(feature table.Feature) bool {
	supported := table.FeatureInsert |
		table.FeatureGet |
		table.FeatureUpdate |
		table.FeatureRemove
	return supported&feature == feature
}

// Metadata is the implementation specific part of table.Info
type Metadata struct {
	MaxLevel     int    `json:"max_level"`
	ArrayNodes   int    `json:"array_nodes"`
	ReservedLeft int    `json:"reserved_left"`
	Info         string `json:"info"`
}

// GetInfo returns information about the table
func (t *Table[K, V]) GetInfo() table.Info {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return table.Info{
		Len:  t.trie.size,
		Impl: table.ImplReference,
		SupportedFeatures: []table.Feature{
			table.FeatureInsert, table.FeatureGet,
			table.FeatureUpdate, table.FeatureRemove,
		},
		Metadata: &Metadata{
			MaxLevel:     t.trie.geo.MaxLevel,
			ArrayNodes:   t.trie.arrays,
			ReservedLeft: len(t.trie.reserve),
			Info:         "Single-threaded trie behind a read-write lock.",
		},
	}
}

// Close drops all entries. Subsequent operations return table.ErrClosed.
func (t *Table[K, V]) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.trie.clear()
	return nil
}
