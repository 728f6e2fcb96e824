// Package entity implements the lifecycle operations of sharded records.
//
// Create validates the values against the entity schema, allocates a global id,
// resolves the shard (id mod N) and inserts the row into the physical table of
// that shard. Get resolves the shard of an id and reads the row by primary key.
//
// Failures are returned as *Error. errors.Is matches both the failure kind
// (ErrAllocationFailed, ErrPersistFailed, ErrLookupFailed, ErrInvalidValues,
// ErrShardIndexOutOfRange) and the underlying cause (e.g. storage.ErrUnavailable).
// A record that does not exist is not an error: Get returns false.
//
// There are no retries. If the insert fails after an id was allocated the id is
// abandoned and the id sequence has a gap.
package entity
