package schema

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// PrimaryKey is the name of the implicit primary key column of every shard table.
const PrimaryKey = "id"

var (
	entityNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)
	fieldNameRe  = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

	// ErrInvalidSchema is returned for malformed entity types or fields.
	ErrInvalidSchema = errors.New("invalid schema")
	// ErrInvalidValue is returned when field values do not match the schema.
	ErrInvalidValue = errors.New("invalid value")
)

// --------------------------------------------------------------------------
// Fields
// --------------------------------------------------------------------------

// FieldType is the storage type of a field
type FieldType string

const (
	FieldTString FieldType = "string"
	FieldTInt    FieldType = "int"
	FieldTFloat  FieldType = "float"
	FieldTBool   FieldType = "bool"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTString, FieldTInt, FieldTFloat, FieldTBool:
		return true
	default:
		return false
	}
}

// Field is a single column of an entity type.
type Field struct {
	Name string    // lower snake case column name
	Type FieldType // storage type
	Size int       // max length in characters for strings (0 = unbounded)
}

// Values holds field values of one record keyed by field name.
// Missing fields are stored as NULL.
type Values map[string]any

// Clone returns a shallow copy of the values.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	c := make(Values, len(v))
	for k, val := range v {
		c[k] = val
	}
	return c
}

// --------------------------------------------------------------------------
// Field Schema
// --------------------------------------------------------------------------

// FieldSchema is the ordered field layout shared by all shards of an entity type.
// It is immutable after creation.
type FieldSchema struct {
	fields []Field
	byName map[string]int
}

// NewFieldSchema validates the fields and creates a new schema.
func NewFieldSchema(fields ...Field) (*FieldSchema, error) {
	s := &FieldSchema{
		fields: make([]Field, len(fields)),
		byName: make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if !fieldNameRe.MatchString(f.Name) {
			return nil, fmt.Errorf("%w: field name %q must match %s", ErrInvalidSchema, f.Name, fieldNameRe)
		}
		if f.Name == PrimaryKey {
			return nil, fmt.Errorf("%w: field name %q is reserved for the primary key", ErrInvalidSchema, f.Name)
		}
		if !f.Type.Valid() {
			return nil, fmt.Errorf("%w: field %q has unknown type %q", ErrInvalidSchema, f.Name, f.Type)
		}
		if f.Size < 0 {
			return nil, fmt.Errorf("%w: field %q has negative size", ErrInvalidSchema, f.Name)
		}
		if _, dup := s.byName[f.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrInvalidSchema, f.Name)
		}
		s.fields[i] = f
		s.byName[f.Name] = i
	}
	return s, nil
}

// Fields returns a copy of the ordered field list.
func (s *FieldSchema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Len returns the number of fields (without the primary key).
func (s *FieldSchema) Len() int {
	return len(s.fields)
}

// Field returns the field with the given name.
func (s *FieldSchema) Field(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Normalize checks values against the schema and converts them to their
// canonical Go types (string, int64, float64, bool). Nil values are kept as NULL.
func (s *FieldSchema) Normalize(values Values) (Values, error) {
	out := make(Values, len(values))
	for name, raw := range values {
		f, ok := s.Field(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidValue, name)
		}
		if raw == nil {
			out[name] = nil
			continue
		}
		v, err := normalizeValue(f, raw)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// Parse converts the textual representation of a value for the named field.
// It is used for command line input.
func (s *FieldSchema) Parse(name, text string) (any, error) {
	f, ok := s.Field(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidValue, name)
	}
	var (
		v   any
		err error
	)
	switch f.Type {
	case FieldTString:
		v = text
	case FieldTInt:
		v, err = strconv.ParseInt(text, 10, 64)
	case FieldTFloat:
		v, err = strconv.ParseFloat(text, 64)
	case FieldTBool:
		v, err = strconv.ParseBool(text)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidValue, name, err)
	}
	return normalizeValue(f, v)
}

func normalizeValue(f Field, raw any) (any, error) {
	mismatch := func() error {
		return fmt.Errorf("%w: field %q expects %s, got %T", ErrInvalidValue, f.Name, f.Type, raw)
	}

	switch f.Type {
	case FieldTString:
		var s string
		switch v := raw.(type) {
		case string:
			s = v
		case []byte:
			s = string(v)
		default:
			return nil, mismatch()
		}
		if f.Size > 0 && utf8.RuneCountInString(s) > f.Size {
			return nil, fmt.Errorf("%w: field %q exceeds %d characters", ErrInvalidValue, f.Name, f.Size)
		}
		return s, nil

	case FieldTInt:
		switch v := raw.(type) {
		case int:
			return int64(v), nil
		case int8:
			return int64(v), nil
		case int16:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case uint8:
			return int64(v), nil
		case uint16:
			return int64(v), nil
		case uint32:
			return int64(v), nil
		case uint:
			if uint64(v) > math.MaxInt64 {
				return nil, mismatch()
			}
			return int64(v), nil
		case uint64:
			if v > math.MaxInt64 {
				return nil, mismatch()
			}
			return int64(v), nil
		case float64:
			// decoded JSON numbers arrive as float64
			if v != math.Trunc(v) || math.Abs(v) > 1<<53 {
				return nil, mismatch()
			}
			return int64(v), nil
		default:
			return nil, mismatch()
		}

	case FieldTFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		default:
			return nil, mismatch()
		}

	case FieldTBool:
		v, ok := raw.(bool)
		if !ok {
			return nil, mismatch()
		}
		return v, nil
	}
	return nil, mismatch()
}

// --------------------------------------------------------------------------
// Entity Type
// --------------------------------------------------------------------------

// EntityType is a named logical entity kind split across ShardCount physical tables.
// The shard count is fixed for the lifetime of a deployment.
type EntityType struct {
	name       string
	shardCount int
	schema     *FieldSchema
}

// NewEntityType creates a new entity type.
// The name must be a mixed-case identifier (e.g. "UserAccount") and shardCount at least 1.
func NewEntityType(name string, shardCount int, fields ...Field) (*EntityType, error) {
	name = strings.TrimSpace(name)
	if !entityNameRe.MatchString(name) {
		return nil, fmt.Errorf("%w: entity name %q must match %s", ErrInvalidSchema, name, entityNameRe)
	}
	if shardCount < 1 {
		return nil, fmt.Errorf("%w: entity %q: shard count must be at least 1, got %d", ErrInvalidSchema, name, shardCount)
	}
	s, err := NewFieldSchema(fields...)
	if err != nil {
		return nil, fmt.Errorf("entity %q: %w", name, err)
	}
	return &EntityType{
		name:       name,
		shardCount: shardCount,
		schema:     s,
	}, nil
}

// MustEntityType is like NewEntityType but panics on error.
func MustEntityType(name string, shardCount int, fields ...Field) *EntityType {
	et, err := NewEntityType(name, shardCount, fields...)
	if err != nil {
		panic(err)
	}
	return et
}

// Name returns the canonical name.
func (et *EntityType) Name() string { return et.name }

// ShardCount returns the number of shards N.
func (et *EntityType) ShardCount() int { return et.shardCount }

// Schema returns the field schema shared by all shards.
func (et *EntityType) Schema() *FieldSchema { return et.schema }

func (et *EntityType) String() string {
	return fmt.Sprintf("%s (shards=%d, fields=%d)", et.name, et.shardCount, et.schema.Len())
}
