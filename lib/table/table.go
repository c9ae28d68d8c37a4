package table

import "errors"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplHashTrie  Implementation = "hashtrie"
	ImplReference Implementation = "reference"
)

// Feature represents table features as bit flags
type Feature uint64

const (
	FeatureInsert      Feature = 1 << iota // Support for Insert operations
	FeatureGet                             // Support for Get operations
	FeatureUpdate                          // Support for Update operations
	FeatureRemove                          // Support for Remove operations
	FeatureLockFree                        // Writers never block on a lock
	FeatureWaitFreeGet                     // Get completes in a bounded number of steps
	FeatureRecycle                         // Removed entries are recycled through epoch based reclamation
)

func (f Feature) String() string {
	switch f {
	case FeatureInsert:
		return "Insert"
	case FeatureGet:
		return "Get"
	case FeatureUpdate:
		return "Update"
	case FeatureRemove:
		return "Remove"
	case FeatureLockFree:
		return "LockFree"
	case FeatureWaitFreeGet:
		return "WaitFreeGet"
	case FeatureRecycle:
		return "Recycle"
	default:
		return "Unknown"
	}
}

type Info struct {
	Len               int            `json:"len"`
	Impl              Implementation `json:"impl"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Outcomes
// --------------------------------------------------------------------------

var (
	// ErrNotFound is returned by Update and Remove when the key is absent.
	ErrNotFound = errors.New("key not found")

	// ErrDuplicateKey is returned by Insert when the key is already present.
	// Callers that want to overwrite must use Update.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrContention is returned when a write exhausted its CAS retry budget on
	// a single slot. The table is unchanged and the call may be retried.
	ErrContention = errors.New("contention: cas fail limit exhausted")

	// ErrCapacityExhausted is returned by Insert when two distinct keys share
	// every hash bit the trie is able to consume.
	ErrCapacityExhausted = errors.New("capacity exhausted: hash bits exhausted")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("table closed")
)

// IsRetryable reports whether err is a transient outcome.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrContention)
}

// --------------------------------------------------------------------------
// Table Interface
// --------------------------------------------------------------------------

// Table defines an interface for concurrent associative containers.
// Insert, Update and Remove report their outcome as an error value: nil on
// success, or one of the sentinel errors above. Implementations can vary in
// their feature support, which can be queried with SupportsFeature.
type Table[K comparable, V any] interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Insert stores value under key if the key is absent.
	// It returns ErrDuplicateKey if the key is present, leaving the stored value untouched.
	Insert(key K, value V) error

	// Update replaces the value stored under key.
	// It returns ErrNotFound if the key is absent.
	Update(key K, value V) error

	// Remove deletes key from the table.
	// It returns ErrNotFound if the key is absent, so a second Remove of the same key fails.
	Remove(key K) error

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for key.
	// The boolean return value indicates whether the key was found.
	Get(key K) (value V, found bool)

	// Len returns the number of stored entries.
	Len() int

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the table.
	GetInfo() (info Info)

	// Close releases every node still reachable from the table.
	// It is not safe to call Close concurrently with other operations.
	Close() (err error)
}
