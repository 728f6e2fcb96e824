package schema

import "fmt"

// ShardDescriptor describes the physical table of one shard of an entity type.
// Descriptors are created once by the shard registry and never mutated.
type ShardDescriptor struct {
	Entity    string       // canonical entity name (User)
	Index     int          // shard index in [0, N)
	TableName string       // physical table name (user_7)
	TypeName  string       // synthesized per shard type name (User7)
	Schema    *FieldSchema // field layout shared by all shards of the entity
}

// NewShardDescriptor derives the descriptor for shard index of the entity type.
// It does not check the index against the shard count, the shard registry does.
func NewShardDescriptor(et *EntityType, index int) *ShardDescriptor {
	return &ShardDescriptor{
		Entity:    et.Name(),
		Index:     index,
		TableName: PhysicalTableName(et.Name(), index),
		TypeName:  ShardTypeName(et.Name(), index),
		Schema:    et.Schema(),
	}
}

func (d *ShardDescriptor) String() string {
	return fmt.Sprintf("%s: <table name: %s>", d.TypeName, d.TableName)
}
