// Package recycle provides a per-owner free list for nodes retired from a
// lock-free structure. It is purely an allocation strategy: every Acquire
// may miss, and a caller that allocates instead is always correct.
//
// Nodes embed Links, so the free list is intrusive and neither push nor pop
// allocates. The list is doubly linked: the head is a LIFO stack used by
// Acquire and Release, and the tail gives O(1) eviction of the oldest node
// when the pool is bounded.
//
// Reuse is gated by the retire stamp: Acquire only hands out the top node if
// its stamp is strictly below the safe epoch reported by the epoch package.
// The pool never computes epochs itself.
package recycle
