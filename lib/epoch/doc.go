// Package epoch implements epoch based reclamation (EBR) for lock-free data
// structures. It decides when memory that was unlinked from a shared
// structure can be reused because no goroutine can still hold a reference
// obtained before the unlink.
//
// Key Components:
//
//   - Reclaimer: Owns the global epoch counter (starting at 1) and a fixed
//     number of participant slots. Each slot publishes the epoch its owner
//     observed when entering a protected section, or 0 when unprotected.
//     SafeEpoch is the minimum published epoch, or the current epoch if no
//     participant is protected.
//
//   - Participant: The per-goroutine handle obtained through Register. It is
//     the explicit thread registration step; there is no implicit lookup of
//     the calling goroutine. Enter and Leave bracket every access to shared
//     nodes and are reentrant through a nesting counter.
//
//   - Deferred actions: BumpEpoch advances the global epoch, stamps the caller's
//     action with the epoch that was current before the advance and queues it on
//     the participant. The action runs on the same participant once
//     SafeEpoch() > stamp, which happens during a later BumpEpoch or Drain.
//
// Guarantee: memory handed to BumpEpoch at stamp E is never passed to its
// action while any participant that published an epoch <= E is still
// protected. Since a participant publishes an epoch it read before loading any
// shared pointer, a reader that could have seen the memory before it was
// unlinked always pins SafeEpoch at or below E.
//
// Memory Ordering: All shared state is held in sync/atomic values, which are
// sequentially consistent in Go. This is stronger than the acquire/release
// ordering the protocol needs and gives the race detector the happens-before
// edges between a reader's Leave and the reuse of the memory it read.
//
// Example:
//
//	r := epoch.New(runtime.GOMAXPROCS(0))
//	p, err := r.Register()
//	if err != nil {
//		return err
//	}
//	defer p.Unregister()
//
//	p.Enter()
//	old := shared.Swap(replacement)
//	p.BumpEpoch(func(stamp uint64) { pool.Release(old) })
//	p.Leave()
package epoch
