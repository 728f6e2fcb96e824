package schema

import (
	"errors"
	"strings"
	"testing"
)

func userType(t *testing.T) *EntityType {
	t.Helper()
	et, err := NewEntityType("User", 10,
		Field{Name: "username", Type: FieldTString, Size: 80},
		Field{Name: "email", Type: FieldTString, Size: 100},
		Field{Name: "age", Type: FieldTInt},
		Field{Name: "active", Type: FieldTBool},
	)
	if err != nil {
		t.Fatalf("NewEntityType failed: %v", err)
	}
	return et
}

func TestNewEntityTypeValidation(t *testing.T) {
	tests := []struct {
		name       string
		entity     string
		shardCount int
		fields     []Field
	}{
		{"zero shards", "User", 0, nil},
		{"negative shards", "User", -3, nil},
		{"invalid name", "user-account", 10, nil},
		{"empty name", "", 10, nil},
		{"reserved id", "User", 10, []Field{{Name: "id", Type: FieldTInt}}},
		{"duplicate field", "User", 10, []Field{{Name: "a", Type: FieldTInt}, {Name: "a", Type: FieldTBool}}},
		{"unknown type", "User", 10, []Field{{Name: "a", Type: "blob"}}},
		{"upper case field", "User", 10, []Field{{Name: "Email", Type: FieldTString}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEntityType(tt.entity, tt.shardCount, tt.fields...)
			if !errors.Is(err, ErrInvalidSchema) {
				t.Errorf("expected ErrInvalidSchema, got %v", err)
			}
		})
	}
}

func TestEntityTypeAccessors(t *testing.T) {
	et := userType(t)
	if et.Name() != "User" || et.ShardCount() != 10 {
		t.Errorf("unexpected entity type %s", et)
	}
	if et.Schema().Len() != 4 {
		t.Errorf("expected 4 fields, got %d", et.Schema().Len())
	}

	fields := et.Schema().Fields()
	fields[0].Name = "changed"
	if f, _ := et.Schema().Field("username"); f.Name != "username" {
		t.Errorf("Fields should return a copy")
	}
}

func TestNormalize(t *testing.T) {
	s := userType(t).Schema()

	got, err := s.Normalize(Values{"username": "a", "age": 3, "active": true, "email": nil})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if got["age"] != int64(3) {
		t.Errorf("expected age to be int64(3), got %T(%v)", got["age"], got["age"])
	}
	if got["email"] != nil {
		t.Errorf("expected nil email, got %v", got["email"])
	}

	if _, err := s.Normalize(Values{"age": 3.0}); err != nil {
		t.Errorf("integral float should be accepted for int fields: %v", err)
	}

	bad := []Values{
		{"unknown": "x"},
		{"username": 5},
		{"age": "five"},
		{"age": 2.5},
		{"active": "yes"},
		{"username": strings.Repeat("x", 81)},
	}
	for _, v := range bad {
		if _, err := s.Normalize(v); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("Normalize(%v): expected ErrInvalidValue, got %v", v, err)
		}
	}
}

func TestParse(t *testing.T) {
	s := userType(t).Schema()

	if v, err := s.Parse("age", "42"); err != nil || v != int64(42) {
		t.Errorf("Parse(age, 42) = %v, %v", v, err)
	}
	if v, err := s.Parse("active", "true"); err != nil || v != true {
		t.Errorf("Parse(active, true) = %v, %v", v, err)
	}
	if v, err := s.Parse("username", "alice"); err != nil || v != "alice" {
		t.Errorf("Parse(username, alice) = %v, %v", v, err)
	}
	if _, err := s.Parse("age", "x"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue, got %v", err)
	}
	if _, err := s.Parse("nope", "x"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue for unknown field, got %v", err)
	}
}

func TestShardDescriptor(t *testing.T) {
	et := userType(t)
	d := NewShardDescriptor(et, 7)

	if d.TableName != "user_7" || d.TypeName != "User7" || d.Index != 7 || d.Entity != "User" {
		t.Errorf("unexpected descriptor %+v", d)
	}
	if d.Schema != et.Schema() {
		t.Errorf("descriptor should share the entity schema")
	}
	if d.String() != "User7: <table name: user_7>" {
		t.Errorf("unexpected String(): %s", d)
	}
}

func TestParseDefinitions(t *testing.T) {
	doc := `
entities:
  - name: User
    shard_count: 10
    fields:
      - {name: username, type: string, size: 80}
      - {name: email, type: string, size: 100}
  - name: OrderItem
    shard_count: 4
    fields:
      - name: amount
        type: float
`
	defs, err := ParseDefinitions(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseDefinitions failed: %v", err)
	}
	types, err := BuildAll(defs)
	if err != nil {
		t.Fatalf("BuildAll failed: %v", err)
	}
	if len(types) != 2 {
		t.Fatalf("expected 2 entity types, got %d", len(types))
	}
	if types[1].Name() != "OrderItem" || types[1].ShardCount() != 4 {
		t.Errorf("unexpected entity type %s", types[1])
	}
	if f, ok := types[0].Schema().Field("email"); !ok || f.Size != 100 {
		t.Errorf("unexpected email field %+v", f)
	}

	if _, err := ParseDefinitions(strings.NewReader("entities: []")); !errors.Is(err, ErrInvalidSchema) {
		t.Errorf("expected ErrInvalidSchema for empty definitions, got %v", err)
	}

	dup := append(DefaultDefinitions(), DefaultDefinitions()...)
	if _, err := BuildAll(dup); !errors.Is(err, ErrInvalidSchema) {
		t.Errorf("expected ErrInvalidSchema for duplicate entities, got %v", err)
	}
}

func TestBuildAllRejectsCollidingNames(t *testing.T) {
	field := []FieldDefinition{{Name: "username", Type: FieldTString}}
	tests := []struct {
		a, b string
	}{
		{"UserAccount", "userAccount"}, // both map to user_account_N
		{"ABc", "aBC"},                 // a_bc and a_b_c, but equal ignoring case
	}
	for _, tt := range tests {
		defs := []Definition{
			{Name: tt.a, ShardCount: 2, Fields: field},
			{Name: tt.b, ShardCount: 2, Fields: field},
		}
		if _, err := BuildAll(defs); !errors.Is(err, ErrInvalidSchema) {
			t.Errorf("%s/%s: expected ErrInvalidSchema, got %v", tt.a, tt.b, err)
		}
	}

	defs := []Definition{
		{Name: "UserAccount", ShardCount: 2, Fields: field},
		{Name: "User", ShardCount: 2, Fields: field},
	}
	if _, err := BuildAll(defs); err != nil {
		t.Errorf("expected distinct entities to build, got %v", err)
	}
}
