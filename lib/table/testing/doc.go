// Package testing provides standardised tests and benchmarks for
// table engines that satisfy the table.Table interface.
//
// The package contains:
//   - testing: A conformance suite covering round trips, duplicate keys,
//     update visibility, removal, the zero key, Close and three concurrent
//     scenarios (disjoint inserts, per-worker models and a shared key that is
//     updated, removed and inserted again while readers check that every
//     observed value is consistent with a serialization of the writes)
//   - benchmark: Parallel benchmarks for Insert, Get, Update, Insert/Remove
//     churn and a read heavy mix
//
// Operations that report table.ErrContention are retried by the suite; every
// other outcome is checked exactly.
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() table.Table[uint64, uint64] {
//		return NewMyTable()
//	}
//
//	// Running the standard test suite
//	tabletesting.RunTableTests(t, "MyTable", factory)
//
//	// Running performance benchmarks
//	tabletesting.RunTableBenchmarks(b, "MyTable", factory)
package testing
