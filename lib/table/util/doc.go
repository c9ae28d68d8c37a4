// Package util provides utility components for
// table engines that satisfy the table.Table interface.
//
// The package contains:
//   - functions: Seed generation and the Hasher constructors (xxhash for strings
//     and byte slices, a splitmix64 mixer for integers, and an identity hasher)
//   - statistics: Distribution statistics and a bucketed Histogram used to
//     describe root slot occupancy and data node depth
//
// Hashers are deliberately kept outside of the engines: an engine only needs
// a func(K) uint64, so callers can plug in any hash with 64 well mixed bits.
package util
