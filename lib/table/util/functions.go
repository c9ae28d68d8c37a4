package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/cespare/xxhash/v2"
)

// --------------------------------------------------------------------------
// General Utility Functions
// --------------------------------------------------------------------------

// GenerateSeed creates a random seed for per-table hash distribution
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// fall back to the clock, only if the system random source is unavailable
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// Hasher maps a key to the 64 bit hash that addresses it in a trie
type Hasher[K any] func(key K) uint64

// Mix64 is the splitmix64 finalizer. It spreads every input bit over the
// whole output word, so neighbouring integers land in unrelated root slots.
func Mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// StringHasher returns an xxhash based Hasher for strings.
// The seed is mixed into the digest so two tables never share a hash layout.
func StringHasher(seed uint64) Hasher[string] {
	return func(s string) uint64 {
		return Mix64(xxhash.Sum64String(s) ^ seed)
	}
}

// BytesHasher returns an xxhash based Hasher for byte slices
func BytesHasher(seed uint64) Hasher[[]byte] {
	return func(b []byte) uint64 {
		return Mix64(xxhash.Sum64(b) ^ seed)
	}
}

// Uint64Hasher returns a seeded Hasher for integer keys
func Uint64Hasher(seed uint64) Hasher[uint64] {
	return func(k uint64) uint64 {
		return Mix64(k ^ seed)
	}
}

// IdentityHasher returns the key itself as its hash. It keeps small integer
// keys in adjacent root slots which makes the trie layout predictable in tests.
func IdentityHasher() Hasher[uint64] {
	return func(k uint64) uint64 {
		return k
	}
}
