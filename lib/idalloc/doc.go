// Package idalloc implements the global id allocator.
//
// Ids are produced by a single named counter in a CounterStore (any storage.Backend,
// or the ZooKeeper counter in the zkcounter sub package). The allocator itself holds
// no state besides the counter name, so it is safe to create many allocators on the
// same store: as long as they use the same counter name they share one id sequence.
//
// Guarantees:
//
//   - Every successful Allocate returns a value strictly greater than every value
//     returned before it (by any caller, in any process using the same store).
//   - Concurrent callers never receive the same value.
//   - If the store fails the error matches storage.ErrUnavailable and the counter
//     is not advanced.
//
// Ids are not gap free: an id whose record insert fails later is abandoned.
//
// Usage Example:
//
//	alloc := idalloc.New(backend, idalloc.DefaultCounterName)
//	id, err := alloc.Allocate(ctx)
//	if err != nil {
//	    // store unavailable
//	}
package idalloc
