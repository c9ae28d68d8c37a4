package epoch

import (
	"errors"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("epoch")

// ErrNoFreeSlot is returned by Register when every participant slot is taken
var ErrNoFreeSlot = errors.New("epoch: no free participant slot")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// firstEpoch is the value of the global epoch after New. Zero is reserved
	// as the "unprotected" marker of a participant.
	firstEpoch uint64 = 1

	// cacheLinePad keeps the published epochs of two participants on
	// different cache lines (8 byte epoch + 4 byte flag + padding = 64)
	cacheLinePad = 64 - 8 - 4
)

// --------------------------------------------------------------------------
// Reclaimer
// --------------------------------------------------------------------------

// slot is the shared part of a participant: the epoch it published while
// protected and whether the slot is currently registered.
type slot struct {
	local   atomic.Uint64
	claimed atomic.Bool
	_       [cacheLinePad]byte
}

// Reclaimer owns the global epoch counter and a fixed set of participant slots.
//
// Thread-safety: All methods of Reclaimer are safe for concurrent use. A
// Participant must only be used by the goroutine that registered it (or one
// goroutine at a time when handed over).
type Reclaimer struct {
	current      atomic.Uint64
	_            [64 - 8]byte
	slots        []slot
	participants []*Participant
	registered   atomic.Int32
}

// New creates a Reclaimer with room for maxParticipants concurrently
// registered participants. Values below 1 are raised to 1.
func New(maxParticipants int) *Reclaimer {
	if maxParticipants < 1 {
		maxParticipants = 1
	}

	r := &Reclaimer{
		slots:        make([]slot, maxParticipants),
		participants: make([]*Participant, maxParticipants),
	}
	r.current.Store(firstEpoch)

	for i := range r.participants {
		r.participants[i] = &Participant{
			r:    r,
			id:   i,
			slot: &r.slots[i],
		}
	}

	return r
}

// Register claims a free participant slot. This is the explicit thread
// registration step: every goroutine that touches protected memory needs
// its own Participant.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Reclaimer) Register() (*Participant, error) {
	for i := range r.slots {
		if r.slots[i].claimed.CompareAndSwap(false, true) {
			p := r.participants[i]
			p.depth = 0
			r.registered.Add(1)
			plog.Debugf("participant %d registered (%d/%d)", i, r.registered.Load(), len(r.slots))
			return p, nil
		}
	}
	plog.Warningf("participant registration failed: all %d slots in use", len(r.slots))
	return nil, ErrNoFreeSlot
}

// CurrentEpoch returns the global epoch
func (r *Reclaimer) CurrentEpoch() uint64 {
	return r.current.Load()
}

// SafeEpoch returns the minimum epoch published by a protected participant,
// or the current epoch if no participant is protected. Memory retired at an
// epoch strictly below the returned value can no longer be observed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Reclaimer) SafeEpoch() uint64 {
	safe := r.current.Load()
	for i := range r.slots {
		if e := r.slots[i].local.Load(); e != 0 && e < safe {
			safe = e
		}
	}
	return safe
}

// Registered returns the number of registered participants
func (r *Reclaimer) Registered() int {
	return int(r.registered.Load())
}

// Capacity returns the maximum number of concurrently registered participants
func (r *Reclaimer) Capacity() int {
	return len(r.slots)
}

// Protected returns the number of participants currently inside a protected
// section
func (r *Reclaimer) Protected() int {
	n := 0
	for i := range r.slots {
		if r.slots[i].local.Load() != 0 {
			n++
		}
	}
	return n
}
