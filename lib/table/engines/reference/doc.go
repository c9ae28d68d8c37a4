// Package reference implements a sequential hash-trie behind a read-write
// lock. It shares the level addressing of the lock-free hashtrie engine, so
// for any serial history both engines report the same outcomes, which makes
// it usable as a correctness oracle.
//
// Array nodes are taken from a reserve that is filled at construction from
// Options.Capacity, one array node per array-size expected entries. Once the
// reserve is empty new array nodes are allocated on demand.
package reference
