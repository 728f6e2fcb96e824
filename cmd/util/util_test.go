package util

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ValentinKolb/dShard/lib/config"
	"github.com/ValentinKolb/dShard/lib/schema"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("line longer than %d characters: %q", Wrap, line)
		}
	}
	if WrapString("short text") != "short text" {
		t.Error("short text should not be wrapped")
	}
}

func TestParseAssignments(t *testing.T) {
	et := schema.MustEntityType("User", 10,
		schema.Field{Name: "username", Type: schema.FieldTString, Size: 80},
		schema.Field{Name: "age", Type: schema.FieldTInt},
		schema.Field{Name: "active", Type: schema.FieldTBool},
	)

	values, err := ParseAssignments(et, []string{"username=alice=admin", "age=31", "active=true"})
	if err != nil {
		t.Fatalf("ParseAssignments failed: %v", err)
	}
	if values["username"] != "alice=admin" || values["age"] != int64(31) || values["active"] != true {
		t.Errorf("unexpected values %v", values)
	}

	for _, args := range [][]string{
		{"username"},
		{"=x"},
		{"nickname=x"},
		{"age=old"},
		{"age=1", "age=2"},
	} {
		if _, err := ParseAssignments(et, args); err == nil {
			t.Errorf("ParseAssignments(%v): expected error", args)
		}
	}
}

func TestRuntime(t *testing.T) {
	cfg := config.Default()
	cfg.Backend, cfg.DSN = config.BackendMemory, ""

	rt, err := OpenRuntime(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenRuntime failed: %v", err)
	}
	defer rt.Close()

	et, err := rt.Entity("user")
	if err != nil || et.Name() != "User" {
		t.Fatalf("expected case-insensitive entity lookup, got %v (err=%v)", et, err)
	}
	if _, err := rt.Entity("Order"); err == nil || !strings.Contains(err.Error(), "User") {
		t.Errorf("expected unknown entity error listing the known entities, got %v", err)
	}

	ctx, cancel := rt.Context()
	defer cancel()
	rec, err := rt.Service.Create(ctx, et, schema.Values{"username": "alice"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	out := FormatRecord(rec)
	for _, want := range []string{"id        : 1", "User1: <table name: user_1>", "username  : alice", "email     : NULL"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}

	descs, err := rt.Registry.InitializeAllShards(ctx, et)
	if err != nil {
		t.Fatalf("InitializeAllShards failed: %v", err)
	}
	if table := FormatDescriptors(descs); !strings.Contains(table, "user_9") {
		t.Errorf("expected user_9 in:\n%s", table)
	}
}

func TestOpenRuntimeInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "oracle"
	if _, err := OpenRuntime(context.Background(), cfg); err == nil {
		t.Error("expected error for invalid configuration")
	}
}

func TestOfflineRuntimeDoesNotOpenBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = config.BackendSQLite
	cfg.DSN = filepath.Join(t.TempDir(), "dshard.db")

	rt, err := NewOfflineRuntime(cfg)
	if err != nil {
		t.Fatalf("NewOfflineRuntime failed: %v", err)
	}
	et, err := rt.Entity("User")
	if err != nil {
		t.Fatalf("Entity failed: %v", err)
	}
	if index, err := rt.Registry.IndexFor(37, et.ShardCount()); err != nil || index != 7 {
		t.Errorf("expected index 7, got %d (err=%v)", index, err)
	}
	if rt.Backend != nil || rt.Service != nil || rt.Allocator != nil {
		t.Error("offline runtime must not open the backend")
	}
	if err := rt.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if _, err := os.Stat(cfg.DSN); !os.IsNotExist(err) {
		t.Errorf("expected no database file at %s, got %v", cfg.DSN, err)
	}
}
