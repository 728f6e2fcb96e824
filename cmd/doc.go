// Package cmd implements the command-line interface of dShard. It provides a
// hierarchical command structure for initializing shard tables, allocating ids
// and creating or reading sharded records.
//
// The package is organized into several subpackages:
//
//   - schema: Commands for the shard tables (init, list, table)
//   - id: Commands for the global id counter (next, peek)
//   - entity: Commands for records (create, get)
//   - perf: Load test with a worker pool, latency timers and shard distribution
//   - shell: Interactive shell
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dshard -help for a list of all commands.
package cmd
