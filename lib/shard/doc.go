// Package shard maps global ids to shards and owns the per process shard registry.
//
// The shard of a record is id mod N, where N is the shard count of its entity type.
// Shard indices are capped (DefaultMaxShardCap = 100); resolving an index at or above
// the cap fails with ErrShardIndexOutOfRange.
//
// For every (entity type, index) pair the Registry memoizes one immutable
// schema.ShardDescriptor. Lookups of an existing descriptor are lock-free
// (xsync.MapOf.Load). Concurrent first lookups of a key are collapsed by a
// singleflight.Group, so the descriptor is built (and the physical table created)
// exactly once. The table is created outside the map's locks, slow DDL only
// blocks lookups of the same key.
// If creating the physical table fails nothing is memoized and the next lookup
// tries again.
//
// Usage Example:
//
//	reg := shard.NewRegistry(shard.Options{TableCreator: backend})
//	if _, err := reg.InitializeAllShards(ctx, userType); err != nil {
//	    // handle error
//	}
//	desc, err := reg.Resolve(ctx, userType, 37) // user_7 for 10 shards
package shard
