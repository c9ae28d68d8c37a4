// Package hashtrie implements a lock-free concurrent hash-trie (table.Table)
// whose removed entries are recycled through epoch based reclamation.
//
// The package focuses on:
//   - Wait-free lookups that never write shared memory
//   - Lock-free Insert, Update and Remove built on single-word CAS with a
//     bounded number of retries per slot
//   - Reuse of retired data nodes without use-after-reuse, guarded by the
//     epoch package
//   - Explicit outcomes that tell contention apart from structural results
//
// Key Components:
//
//   - Map: The trie itself. The root is an array node with 2^RootHashLevel
//     slots, deeper array nodes have 2^HashLevel slots. A slot holds nothing,
//     one data node or one array node, and it only changes through CAS. The
//     depth (MaxLevel) is fixed at construction so that the levels consume all
//     64 hash bits; two distinct keys that still collide at the last level
//     have equal hashes and the second Insert reports
//     table.ErrCapacityExhausted. Array nodes are created on the first
//     collision at a depth and never removed.
//
//   - Handle: A registered participant of the map. Attach performs the
//     explicit registration with the epoch reclaimer and returns a Handle
//     that owns a recycle pool of retired data nodes and a reserve of array
//     nodes. The convenience methods on Map borrow a handle for the duration
//     of a single call. Those handles live in their own participant slots
//     (Options.Borrowers), so handles kept by callers never hold them up.
//
//   - Data node reuse: A successful Update or Remove unlinks the old data
//     node and passes it to BumpEpoch. Once every participant that could
//     have loaded it has left its protected section, the node returns to the
//     retiring handle's pool and is reinitialized in place by a later Insert
//     or Update. Recycling can be disabled with Options.DisableRecycle; every
//     outcome stays the same, only allocations change.
//
// Collision handling: When Insert finds a data node with a different hash in
// its slot, it seeds a fresh array node with the resident at the index of the
// resident's hash one level deeper and swaps it in. The new key then continues
// into that array node; if both hashes share the next fragment the step
// repeats one level deeper.
//
// Contention: Each slot visit allows Options.FailLimit (default 20) failed
// CAS attempts. Exhausting it aborts the operation with table.ErrContention
// without side effects, so the caller may retry. In the worst case a write
// performs MaxLevel * FailLimit CAS attempts.
//
// Example:
//
//	m, err := hashtrie.New[string, int](util.StringHasher(util.GenerateSeed()), nil)
//	if err != nil {
//		return err
//	}
//	defer m.Close()
//
//	h, err := m.Attach()
//	if err != nil {
//		return err
//	}
//	defer h.Detach()
//
//	if err := h.Insert("answer", 42); errors.Is(err, table.ErrDuplicateKey) {
//		err = h.Update("answer", 42)
//	}
//	v, ok := h.Get("answer")
package hashtrie
