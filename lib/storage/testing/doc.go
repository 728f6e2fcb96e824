// Package testing provides a standardised conformance suite for
// implementations of the storage.Backend interface.
//
// The package contains:
//   - RunBackendTests: counter, table and error semantics every backend must honour
//   - RunCounterTests: only the counter part, for stores that implement storage.Counter
//   - RunDurabilityTests: checks that counters and rows survive a close and reopen
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func(t *testing.T) storage.Backend {
//		return NewMyBackend()
//	}
//
//	// Running the standard test suite
//	storagetesting.RunBackendTests(t, "MyBackend", factory)
package testing
