// Package table provides a standardized interface for concurrent associative
// containers. It defines the generic Table interface that allows consistent
// interaction with different engines while abstracting their implementation.
//
// The package focuses on:
//   - A unified interface for keyed insert, lookup, update and removal
//   - Feature discovery through capability flags
//   - Explicit, comparable outcomes instead of boolean results
//   - Metadata reporting through GetInfo
//
// Key Components:
//
//   - Table Interface: The core interface that every engine must satisfy.
//     Insert never overwrites, Update never creates and Remove never succeeds
//     twice for the same key.
//
//   - Outcomes: ErrNotFound, ErrDuplicateKey, ErrContention and
//     ErrCapacityExhausted describe every non-success result. They are returned
//     by value and compared with errors.Is. ErrContention is transient and
//     reflects interference from concurrent writers, never structural state,
//     so it is never reported in place of ErrNotFound or ErrDuplicateKey.
//
//   - Feature Flags: The Feature type defines capability flags that engines
//     advertise through SupportsFeature (for example FeatureLockFree).
//
//   - Implementation Identifiers: The Implementation type provides string
//     constants for the available engines ("hashtrie" and "reference").
//
// Note on Ordering:
//   - Operations on the same key are linearizable. Operations on distinct keys
//     have no relative ordering guarantee.
//   - Tables do not provide ordered iteration, range queries or persistence.
package table
