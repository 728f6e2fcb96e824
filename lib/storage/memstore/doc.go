// Package memstore implements the storage.Backend interface in memory.
//
// Architecture:
//
//   - Counters: an xsync.MapOf from counter name to value. Increments run inside
//     MapOf.Compute, which holds the bucket lock for the key, so concurrent
//     increments of one counter are serialized while different counters proceed
//     in parallel.
//
//   - Tables: an xsync.MapOf from physical table name to table. Each table keeps
//     its rows in a lock-free skip list (skipmap) ordered by primary key.
//     Inserts use LoadOrStore, so a primary key can only be taken once.
//
// Persistence:
//
//	A store opened with Open(path) loads the snapshot at path (if it exists) and
//	writes a new snapshot when it is closed. Snapshots are fuzzy: Save does not
//	block concurrent writers. The file format is little endian:
//
//	  magic "DSHMEMST" | version (uint8)
//	  counters: count (uint64), then name (uint32 len + bytes), value (uint64)
//	  tables:   count (uint64), then name, field count (uint32), fields
//	            (name, type, size uint32), row count (uint64), rows
//	            (id uint64, JSON payload uint32 len + bytes)
//
//	A store created with New is volatile.
//
//	Close waits for running operations before it writes the snapshot, so the
//	snapshot holds every counter value handed out. Snapshots are only written by
//	Close: after a crash the store restarts from the last snapshot and its
//	counters hand out ids again. Keep the global id counter in sqlite, a SQL
//	server or ZooKeeper when ids must survive crashes.
//
// After Close every operation fails with storage.ErrUnavailable.
package memstore
