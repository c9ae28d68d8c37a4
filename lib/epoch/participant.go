package epoch

// Action is a deferred reclamation step. It receives the epoch it was
// stamped with by BumpEpoch.
type Action func(stamp uint64)

type deferred struct {
	stamp  uint64
	action Action
}

// Participant is the per-goroutine view of a Reclaimer. It tracks the
// protection depth and the queue of deferred actions it created.
//
// Thread-safety: A Participant is not safe for concurrent use. Only the
// published epoch is shared with other participants.
type Participant struct {
	r     *Reclaimer
	id    int
	slot  *slot
	depth int

	// deferred actions ordered by stamp, pending[head:] are still queued
	pending []deferred
	head    int
}

// ID returns the slot index of the participant
func (p *Participant) ID() int {
	return p.id
}

// Reclaimer returns the reclaimer the participant is registered with
func (p *Participant) Reclaimer() *Reclaimer {
	return p.r
}

// --------------------------------------------------------------------------
// Protection
// --------------------------------------------------------------------------

// Enter starts a protected section and returns the published epoch.
// Enter is reentrant: nested calls are counted and only the outermost call
// publishes the current epoch. Every Enter must be paired with a Leave.
func (p *Participant) Enter() uint64 {
	p.depth++
	if p.depth == 1 {
		p.slot.local.Store(p.r.current.Load())
	}
	return p.slot.local.Load()
}

// Leave ends a protected section. Only the outermost Leave clears the
// published epoch; memory read inside the section must not be used after it.
func (p *Participant) Leave() {
	if p.depth == 0 {
		panic("epoch: Leave called without matching Enter")
	}
	p.depth--
	if p.depth == 0 {
		p.slot.local.Store(0)
	}
}

// Protected reports whether the participant is inside a protected section
func (p *Participant) Protected() bool {
	return p.depth > 0
}

// --------------------------------------------------------------------------
// Retirement
// --------------------------------------------------------------------------

// BumpEpoch advances the global epoch and returns the epoch that was current
// before the advance. If action is not nil it is queued and runs on this
// participant once the safe epoch exceeds the returned stamp, i.e. once no
// participant that could have observed the retired memory is still protected.
// Actions that are already eligible are run before BumpEpoch returns.
func (p *Participant) BumpEpoch(action Action) uint64 {
	stamp := p.r.current.Add(1) - 1
	if action != nil {
		p.pending = append(p.pending, deferred{stamp: stamp, action: action})
	}
	p.Drain()
	return stamp
}

// Drain runs every queued action whose stamp is below the safe epoch and
// returns how many ran. Stamps of one participant never decrease, so the
// queue is drained in order and stops at the first ineligible action.
func (p *Participant) Drain() int {
	if p.head == len(p.pending) {
		return 0
	}

	safe := p.r.SafeEpoch()
	ran := 0
	for p.head < len(p.pending) && p.pending[p.head].stamp < safe {
		d := p.pending[p.head]
		p.pending[p.head] = deferred{}
		p.head++
		d.action(d.stamp)
		ran++
	}

	if p.head == len(p.pending) {
		p.pending = p.pending[:0]
		p.head = 0
	} else if p.head > 64 && p.head > len(p.pending)/2 {
		n := copy(p.pending, p.pending[p.head:])
		clear(p.pending[n:])
		p.pending = p.pending[:n]
		p.head = 0
	}
	return ran
}

// Pending returns the number of queued actions
func (p *Participant) Pending() int {
	return len(p.pending) - p.head
}

// Unregister releases the participant slot. Eligible actions are run first;
// actions that are still blocked by other participants are discarded, their
// memory is left to the garbage collector.
//
// Unregister panics if called inside a protected section.
func (p *Participant) Unregister() {
	if p.depth != 0 {
		panic("epoch: Unregister called inside a protected section")
	}

	p.Drain()
	if n := p.Pending(); n > 0 {
		plog.Debugf("participant %d unregistered, dropping %d pending actions", p.id, n)
	}
	clear(p.pending)
	p.pending = p.pending[:0]
	p.head = 0

	p.slot.claimed.Store(false)
	p.r.registered.Add(-1)
}
