// Package cmd implements the command-line interface of htrie. It provides
// commands to exercise the table engines in-process.
//
// The package is organized into several subpackages:
//
//   - bench: Parallel throughput benchmarks per operation with optional CSV
//     and Prometheus output
//   - stress: Concurrent correctness checks against per-worker models and
//     the reference engine, with latency percentiles per operation
//   - demo: Walks through a short scripted history and prints every outcome
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See htrie -help for a list of all commands.
package cmd
