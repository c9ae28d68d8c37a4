package hashtrie

import (
	"fmt"
	"runtime"

	"github.com/ValentinKolb/htrie/lib/table/engines/internal"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// DefaultFailLimit is the number of failed CAS attempts tolerated on a
	// single slot before an operation gives up with table.ErrContention
	DefaultFailLimit = 20

	// maxReservePerHandle bounds the array nodes preallocated per handle
	maxReservePerHandle = 4096

	defaultName = "htrie"
)

// Options configures a Map during initialization. Zero values select the
// defaults.
type Options struct {
	Name           string // Label of the exported metrics ("" = "htrie")
	Participants   int    // Maximum number of concurrently attached handles (0 = 4 * GOMAXPROCS)
	Borrowers      int    // Participant slots reserved for the Map methods (0 = GOMAXPROCS)
	Capacity       int    // Expected number of entries, used to preallocate array nodes (0 = none)
	HashLevel      int    // Bits consumed per non-root level (0 = 4)
	RootHashLevel  int    // Bits consumed by the root (0 = 8)
	FailLimit      int    // CAS attempts per slot before ErrContention (0 = 20)
	DisableRecycle bool   // Allocate every data node instead of reusing retired ones
	PoolSize       int    // Maximum pooled data nodes per handle (0 = unbounded)
}

// DefaultOptions returns the default Map options
func DefaultOptions() *Options {
	return &Options{
		Name:          defaultName,
		Participants:  4 * runtime.GOMAXPROCS(0),
		Borrowers:     runtime.GOMAXPROCS(0),
		HashLevel:     internal.DefaultHashLevel,
		RootHashLevel: internal.DefaultRootHashLevel,
		FailLimit:     DefaultFailLimit,
	}
}

// withDefaults fills zero values and validates the result
func (o Options) withDefaults() (Options, error) {
	def := DefaultOptions()
	if o.Name == "" {
		o.Name = def.Name
	}
	if o.Participants == 0 {
		o.Participants = def.Participants
	}
	if o.Borrowers == 0 {
		o.Borrowers = def.Borrowers
	}
	if o.HashLevel == 0 {
		o.HashLevel = def.HashLevel
	}
	if o.RootHashLevel == 0 {
		o.RootHashLevel = def.RootHashLevel
	}
	if o.FailLimit == 0 {
		o.FailLimit = def.FailLimit
	}

	switch {
	case o.Participants < 0:
		return o, fmt.Errorf("participants must not be negative, got %d", o.Participants)
	case o.Borrowers < 0:
		return o, fmt.Errorf("borrowers must not be negative, got %d", o.Borrowers)
	case o.Capacity < 0:
		return o, fmt.Errorf("capacity must not be negative, got %d", o.Capacity)
	case o.FailLimit < 0:
		return o, fmt.Errorf("fail limit must not be negative, got %d", o.FailLimit)
	case o.PoolSize < 0:
		return o, fmt.Errorf("pool size must not be negative, got %d", o.PoolSize)
	}
	return o, nil
}
