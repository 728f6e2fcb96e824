// Package storage defines the storage collaborator used by the sharding core.
// The core never talks to a database directly: it allocates ids through a
// durable counter, creates one physical table per shard and reads and writes
// rows by primary key, all through the Backend interface.
//
// Key Components:
//
//   - Backend Interface: Counter operations (IncrementAndGetCounter, PeekCounter)
//     and table operations (CreatePhysicalTable, InsertRow, GetRowByPrimaryKey).
//     Counter increments must be atomic and durable, a failed increment must not
//     advance the counter.
//
//   - Error System: A structured error type with typed return codes. Errors
//     compare by code with errors.Is, so callers can test for ErrUnavailable
//     (transient, retry the whole operation), ErrNoSuchTable (schema was not
//     initialized) or ErrDuplicateKey.
//
// Implementations:
//
//   - In-Memory Store (memstore): Tables and counters held in concurrent maps,
//     optionally persisted to a snapshot file on Close. Used for tests and single
//     process deployments.
//     Available in the "github.com/ValentinKolb/dShard/lib/storage/memstore" package.
//
//   - SQL Store (sqlstore): database/sql implementation with sqlite, postgres and
//     mysql dialects. Every shard is a real table (user_0 ... user_9).
//     Available in the "github.com/ValentinKolb/dShard/lib/storage/sqlstore" package.
//
// The testing package (github.com/ValentinKolb/dShard/lib/storage/testing)
// provides a conformance suite every Backend implementation must pass.
package storage
