package recycle

// --------------------------------------------------------------------------
// Intrusive links
// --------------------------------------------------------------------------

// Links is embedded into every recyclable node. It carries the list
// pointers and the epoch the node was retired at, so pushing and popping
// never allocates.
type Links[T any] struct {
	prev, next *T
	epoch      uint64
	pooled     bool
}

// Epoch returns the retire stamp of the node
func (l *Links[T]) Epoch() uint64 {
	return l.epoch
}

// Stamp records the epoch the node was retired at. Nodes that were never
// published keep stamp 0 and are reusable immediately.
func (l *Links[T]) Stamp(epoch uint64) {
	l.epoch = epoch
}

// Linked is the constraint for pointer types that can live in a Pool
type Linked[T any] interface {
	*T
	Links() *Links[T]
}

// --------------------------------------------------------------------------
// Pool
// --------------------------------------------------------------------------

// Options configures a Pool
type Options struct {
	// Disabled turns the pool into a no-op: Release drops the node and
	// Acquire always reports a miss.
	Disabled bool

	// MaxSize bounds the number of pooled nodes (0 = unbounded). When the
	// bound is reached, Release evicts the oldest node from the bottom.
	MaxSize int
}

// Pool is a per-owner free list of retired nodes stored as an intrusive
// doubly linked list. The head is the top of a LIFO stack: Release pushes
// there and Acquire pops from there. The tail holds the oldest node and is
// only used for eviction.
//
// Thread-safety: A Pool is owned by a single participant and is not safe for
// concurrent use.
type Pool[T any, P Linked[T]] struct {
	head, tail *T
	size       int
	opts       Options

	hits, misses, evictions uint64
}

// New creates a pool with the given options (optional)
func New[T any, P Linked[T]](opts *Options) *Pool[T, P] {
	if opts == nil {
		opts = &Options{}
	}
	return &Pool[T, P]{opts: *opts}
}

// Acquire pops the top node if it was retired before safe, i.e. its stamp is
// strictly below the reclaimer's safe epoch. On a miss the caller allocates a
// fresh node; falling back to allocation is always correct.
//
// The returned node still holds its previous contents and must be
// reinitialized by the caller before it is published.
func (p *Pool[T, P]) Acquire(safe uint64) (*T, bool) {
	top := p.head
	if top == nil {
		p.misses++
		return nil, false
	}
	l := P(top).Links()
	if l.epoch >= safe {
		p.misses++
		return nil, false
	}
	p.unlink(top)
	p.hits++
	return top, true
}

// Release pushes n on top of the pool without touching its stamp. The stamp
// is recorded at retirement through Links.Stamp.
func (p *Pool[T, P]) Release(n *T) {
	if p.opts.Disabled || n == nil {
		return
	}
	l := P(n).Links()
	if l.pooled {
		panic("recycle: node released twice")
	}

	l.prev = nil
	l.next = p.head
	l.pooled = true
	if p.head != nil {
		P(p.head).Links().prev = n
	} else {
		p.tail = n
	}
	p.head = n
	p.size++

	if p.opts.MaxSize > 0 && p.size > p.opts.MaxSize {
		p.unlink(p.tail)
		p.evictions++
	}
}

// Len returns the number of pooled nodes
func (p *Pool[T, P]) Len() int {
	return p.size
}

// Stats returns the hit, miss and eviction counters
func (p *Pool[T, P]) Stats() (hits, misses, evictions uint64) {
	return p.hits, p.misses, p.evictions
}

// Reset drops every pooled node
func (p *Pool[T, P]) Reset() {
	for p.head != nil {
		p.unlink(p.head)
	}
}

func (p *Pool[T, P]) unlink(n *T) {
	l := P(n).Links()
	if l.prev != nil {
		P(l.prev).Links().next = l.next
	} else {
		p.head = l.next
	}
	if l.next != nil {
		P(l.next).Links().prev = l.prev
	} else {
		p.tail = l.prev
	}
	l.prev, l.next = nil, nil
	l.pooled = false
	p.size--
}
