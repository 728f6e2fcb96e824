package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dShard/lib/entity"
	"github.com/ValentinKolb/dShard/lib/schema"
)

// ParseAssignments parses key=value arguments into values of the entity type
func ParseAssignments(et *schema.EntityType, args []string) (schema.Values, error) {
	values := make(schema.Values, len(args))
	for _, arg := range args {
		key, text, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected field=value", arg)
		}
		if _, dup := values[key]; dup {
			return nil, fmt.Errorf("field %q assigned twice", key)
		}
		v, err := et.Schema().Parse(key, text)
		if err != nil {
			return nil, err
		}
		values[key] = v
	}
	return values, nil
}

// FormatRecord formats a record as multiple lines (fields in schema order)
func FormatRecord(rec *entity.Record) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-10s: %d\n", schema.PrimaryKey, rec.ID))
	sb.WriteString(fmt.Sprintf("%-10s: %s\n", "shard", rec.Shard))
	for _, f := range rec.Shard.Schema.Fields() {
		v, ok := rec.Values[f.Name]
		if !ok || v == nil {
			sb.WriteString(fmt.Sprintf("%-10s: NULL\n", f.Name))
			continue
		}
		sb.WriteString(fmt.Sprintf("%-10s: %v\n", f.Name, v))
	}
	return sb.String()
}

// FormatDescriptors formats shard descriptors as a table
func FormatDescriptors(descs []*schema.ShardDescriptor) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-16s %-6s %-24s %s\n", "ENTITY", "INDEX", "TABLE", "TYPE"))
	for _, d := range descs {
		sb.WriteString(fmt.Sprintf("%-16s %-6d %-24s %s\n", d.Entity, d.Index, d.TableName, d.TypeName))
	}
	return sb.String()
}
