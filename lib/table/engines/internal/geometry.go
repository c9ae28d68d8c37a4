package internal

import "fmt"

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// HashBits is the width of every trie hash
	HashBits = 64

	// MaxLevelBits caps the fan-out of a single array node at 65536 slots
	MaxLevelBits = 16

	DefaultHashLevel     = 4
	DefaultRootHashLevel = 8
)

// --------------------------------------------------------------------------
// Geometry
// --------------------------------------------------------------------------

// Geometry describes how a 64 bit hash is split into per-level slot indices.
// The root consumes the lowest RootBits bits, every deeper level the next
// Bits bits. MaxLevel is the number of levels needed to consume all 64 bits,
// so no shift ever reaches the word size and two hashes that still collide at
// the last level are equal.
type Geometry struct {
	RootBits uint
	Bits     uint
	MaxLevel int

	rootMask uint64
	mask     uint64
}

// NewGeometry validates the level widths and computes MaxLevel
func NewGeometry(rootBits, bits int) (Geometry, error) {
	if rootBits < 1 || rootBits > MaxLevelBits {
		return Geometry{}, fmt.Errorf("root hash level must be within [1, %d], got %d", MaxLevelBits, rootBits)
	}
	if bits < 1 || bits > MaxLevelBits {
		return Geometry{}, fmt.Errorf("hash level must be within [1, %d], got %d", MaxLevelBits, bits)
	}

	remaining := HashBits - rootBits
	return Geometry{
		RootBits: uint(rootBits),
		Bits:     uint(bits),
		MaxLevel: 1 + (remaining+bits-1)/bits,
		rootMask: 1<<uint(rootBits) - 1,
		mask:     1<<uint(bits) - 1,
	}, nil
}

// RootSize is the number of slots of the root array node
func (g Geometry) RootSize() int {
	return 1 << g.RootBits
}

// Size is the number of slots of every non-root array node
func (g Geometry) Size() int {
	return 1 << g.Bits
}

// Index returns the slot index of hash at level. Level 0 is the root.
func (g Geometry) Index(hash uint64, level int) int {
	if level == 0 {
		return int(hash & g.rootMask)
	}
	shift := g.RootBits + uint(level-1)*g.Bits
	return int((hash >> shift) & g.mask)
}

// IsLast reports whether level is the deepest level of the trie
func (g Geometry) IsLast(level int) bool {
	return level >= g.MaxLevel-1
}
