// Package zkcounter implements storage.Counter on ZooKeeper.
//
// Each counter is a persistent znode <root>/<name> holding the current value as
// decimal text. An increment reads the node together with its version and writes
// the new value with Set(path, value, version). If another client wrote the node in
// between, ZooKeeper rejects the write with ErrBadVersion and the increment is
// retried with the fresh value, so concurrent clients never observe the same value.
// A missing node is created with the value 1 (first id).
//
// Use this counter when the id sequence has to be shared by processes that do not
// share a storage backend (e.g. several memory backends).
package zkcounter
