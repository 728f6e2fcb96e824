package schema

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// FieldDefinition is the YAML representation of a Field.
type FieldDefinition struct {
	Name string    `yaml:"name"`
	Type FieldType `yaml:"type"`
	Size int       `yaml:"size,omitempty"`
}

// Definition is the YAML representation of an EntityType.
type Definition struct {
	Name       string            `yaml:"name"`
	ShardCount int               `yaml:"shard_count"`
	Fields     []FieldDefinition `yaml:"fields"`
}

// definitionsFile is the root document of an entity definitions file.
type definitionsFile struct {
	Entities []Definition `yaml:"entities"`
}

// Build creates the entity type described by the definition.
func (d Definition) Build() (*EntityType, error) {
	fields := make([]Field, len(d.Fields))
	for i, f := range d.Fields {
		fields[i] = Field{Name: f.Name, Type: f.Type, Size: f.Size}
	}
	return NewEntityType(d.Name, d.ShardCount, fields...)
}

// DefaultDefinitions returns the built-in User entity: 10 shards with a
// username (80 chars) and an email (100 chars).
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Name:       "User",
			ShardCount: 10,
			Fields: []FieldDefinition{
				{Name: "username", Type: FieldTString, Size: 80},
				{Name: "email", Type: FieldTString, Size: 100},
			},
		},
	}
}

// ParseDefinitions reads entity definitions in YAML format.
func ParseDefinitions(r io.Reader) ([]Definition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse entity definitions: %w", err)
	}
	if len(file.Entities) == 0 {
		return nil, fmt.Errorf("%w: no entities defined", ErrInvalidSchema)
	}
	return file.Entities, nil
}

// LoadDefinitionsFile reads entity definitions from a YAML file.
func LoadDefinitionsFile(path string) ([]Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseDefinitions(f)
}

// BuildAll builds all definitions. Two entity types may neither share a table
// name prefix (UserAccount and userAccount both map to user_account_N) nor
// differ only by case.
func BuildAll(defs []Definition) ([]*EntityType, error) {
	tables := make(map[string]string, len(defs))
	names := make(map[string]string, len(defs))
	out := make([]*EntityType, 0, len(defs))
	for _, d := range defs {
		et, err := d.Build()
		if err != nil {
			return nil, err
		}
		table := CamelToUnderline(et.Name())
		if other, dup := tables[table]; dup {
			return nil, fmt.Errorf("%w: entities %q and %q share the table prefix %q", ErrInvalidSchema, other, et.Name(), table)
		}
		lower := strings.ToLower(et.Name())
		if other, dup := names[lower]; dup {
			return nil, fmt.Errorf("%w: entities %q and %q differ only by case", ErrInvalidSchema, other, et.Name())
		}
		tables[table] = et.Name()
		names[lower] = et.Name()
		out = append(out, et)
	}
	return out, nil
}
