// Package schema describes logical entity types and the physical shard tables
// they are split into.
//
// A logical entity type (for example "User") has a canonical mixed-case name,
// a fixed shard count N and an ordered field list. Every record of the type
// carries a globally unique uint64 id as its primary key; the id is implicit
// and never part of the field list.
//
// Key Components:
//
//   - EntityType: The immutable definition of a logical entity. Created with
//     NewEntityType or from a YAML Definition.
//
//   - FieldSchema: The ordered field layout shared (by pointer) by all shards of
//     one entity type. FieldSchema.Normalize checks and converts caller supplied
//     Values before anything is written.
//
//   - ShardDescriptor: The value describing one physical shard table, i.e. the
//     bound table name (user_7), the synthesized type name (User7) and the shared
//     field schema. Descriptors are created and memoized by the shard registry
//     (github.com/ValentinKolb/dShard/lib/shard), never by callers directly.
//
// Naming:
//
//	The physical table name is derived from the canonical name with
//	CamelToUnderline followed by "_" and the decimal shard index:
//
//	  CamelToUnderline("UserAccount") == "user_account"
//	  PhysicalTableName("UserAccount", 7) == "user_account_7"
//	  ShardTypeName("UserAccount", 7) == "UserAccount7"
//
//	The transform must stay bit-exact, existing deployments address their
//	tables by these names.
//
// Definitions:
//
//	Entity types can be declared in a YAML file:
//
//	  entities:
//	    - name: User
//	      shard_count: 10
//	      fields:
//	        - {name: username, type: string, size: 80}
//	        - {name: email, type: string, size: 100}
package schema
