package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ValentinKolb/dShard/lib/schema"
	"github.com/ValentinKolb/dShard/lib/storage"
	storetesting "github.com/ValentinKolb/dShard/lib/storage/testing"
)

func TestSQLite(t *testing.T) {
	storetesting.RunBackendTests(t, "SQLite", func(t *testing.T) storage.Backend {
		s, err := Open(context.Background(), DialectSQLite, filepath.Join(t.TempDir(), "test.db"))
		if err != nil {
			t.Fatalf("failed to open sqlite store: %v", err)
		}
		return s
	})
}

func TestSQLiteInMemory(t *testing.T) {
	storetesting.RunBackendTests(t, "SQLiteInMemory", func(t *testing.T) storage.Backend {
		s, err := Open(context.Background(), DialectSQLite, ":memory:")
		if err != nil {
			t.Fatalf("failed to open sqlite store: %v", err)
		}
		return s
	})
}

func TestSQLiteDurability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "durable.db")
	storetesting.RunDurabilityTests(t, "SQLite", func() (storage.Backend, error) {
		return Open(context.Background(), DialectSQLite, path)
	})
}

// Postgres and MySQL need a running server, the tests are skipped unless a DSN is given.
// Every test starts by dropping the tables the conformance suite uses.

func TestPostgres(t *testing.T) {
	runExternal(t, DialectPostgres, "DSHARD_TEST_POSTGRES_DSN")
}

func TestMySQL(t *testing.T) {
	runExternal(t, DialectMySQL, "DSHARD_TEST_MYSQL_DSN")
}

func runExternal(t *testing.T, d Dialect, env string) {
	dsn := os.Getenv(env)
	if dsn == "" {
		t.Skipf("%s not set", env)
	}
	storetesting.RunBackendTests(t, string(d), func(t *testing.T) storage.Backend {
		s, err := Open(context.Background(), d, dsn)
		if err != nil {
			t.Fatalf("failed to open %s store: %v", d, err)
		}
		resetDatabase(t, s)
		return s
	})
}

func resetDatabase(t *testing.T, s *Store) {
	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+countersTable); err != nil {
		t.Fatalf("failed to reset counters: %v", err)
	}
	for i := 0; i < 10; i++ {
		stmt := "DROP TABLE IF EXISTS " + s.dialect.quote(fmt.Sprintf("user_%d", i))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("failed to drop table: %v", err)
		}
	}
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"sqlite", DialectSQLite, false},
		{" SQLite ", DialectSQLite, false},
		{"postgres", DialectPostgres, false},
		{"postgresql", DialectPostgres, false},
		{"pgx", DialectPostgres, false},
		{"mysql", DialectMySQL, false},
		{"oracle", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDialect(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDialect(%q): unexpected error state: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDialect(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatements(t *testing.T) {
	fields, err := schema.NewFieldSchema(
		schema.Field{Name: "username", Type: schema.FieldTString, Size: 80},
		schema.Field{Name: "age", Type: schema.FieldTInt},
	)
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	pg := dialects[DialectPostgres]
	if got, want := pg.createTableSQL("user_7", fields),
		`CREATE TABLE IF NOT EXISTS "user_7" ("id" BIGINT PRIMARY KEY, "username" VARCHAR(80), "age" BIGINT)`; got != want {
		t.Errorf("unexpected postgres DDL:\n got: %s\nwant: %s", got, want)
	}
	if got, want := pg.insertSQL("user_7", fields),
		`INSERT INTO "user_7" ("id", "username", "age") VALUES ($1, $2, $3)`; got != want {
		t.Errorf("unexpected postgres insert:\n got: %s\nwant: %s", got, want)
	}

	my := dialects[DialectMySQL]
	if got, want := my.selectSQL("user_7", fields),
		"SELECT `id`, `username`, `age` FROM `user_7` WHERE `id` = ?"; got != want {
		t.Errorf("unexpected mysql select:\n got: %s\nwant: %s", got, want)
	}

	lite := dialects[DialectSQLite]
	if got := lite.createTableSQL("user_0", fields); !strings.Contains(got, `"id" INTEGER PRIMARY KEY`) {
		t.Errorf("sqlite DDL should use an integer primary key: %s", got)
	}
}

func TestInvalidTableName(t *testing.T) {
	s, err := Open(context.Background(), DialectSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	defer s.Close()

	fields, _ := schema.NewFieldSchema(schema.Field{Name: "username", Type: schema.FieldTString})
	err = s.CreatePhysicalTable(context.Background(), `user"; DROP TABLE x; --`, fields)
	var serr *storage.Error
	if !errors.As(err, &serr) || serr.Code != storage.RetCInvalidOperation {
		t.Errorf("expected InvalidOperation for invalid table name, got %v", err)
	}
}

func TestOpenUnknownDialect(t *testing.T) {
	if _, err := Open(context.Background(), Dialect("oracle"), "x"); err == nil {
		t.Error("expected error for unknown dialect")
	}
}

func TestCanceledContextIsUnavailable(t *testing.T) {
	s, err := Open(context.Background(), DialectSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.IncrementAndGetCounter(ctx, "global_id"); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for canceled context, got %v", err)
	}
	if v, ok, err := s.PeekCounter(context.Background(), "global_id"); err != nil || ok {
		t.Errorf("canceled increment must not advance the counter (v=%d, ok=%v, err=%v)", v, ok, err)
	}
}
