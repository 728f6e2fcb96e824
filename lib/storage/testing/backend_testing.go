package testing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dShard/lib/schema"
	"github.com/ValentinKolb/dShard/lib/storage"
)

// BackendFactory creates a new, empty backend for one test.
type BackendFactory func(t *testing.T) storage.Backend

// Opener opens a backend on the same underlying location every time it is called.
type Opener func() (storage.Backend, error)

// RunBackendTests runs the conformance suite for a Backend implementation.
func RunBackendTests(t *testing.T, name string, factory BackendFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("CounterSequence", func(t *testing.T) {
			b := factory(t)
			defer b.Close()
			testCounterSequence(t, b)
		})

		t.Run("CounterConcurrent", func(t *testing.T) {
			b := factory(t)
			defer b.Close()
			testCounterConcurrent(t, b)
		})

		t.Run("CounterIndependent", func(t *testing.T) {
			b := factory(t)
			defer b.Close()
			testCounterIndependent(t, b)
		})

		t.Run("Insert&Get", func(t *testing.T) {
			testInsertGet(t, factory(t))
		})

		t.Run("CreateTableIdempotent", func(t *testing.T) {
			testCreateTableIdempotent(t, factory(t))
		})

		t.Run("NoSuchTable", func(t *testing.T) {
			testNoSuchTable(t, factory(t))
		})

		t.Run("DuplicateKey", func(t *testing.T) {
			testDuplicateKey(t, factory(t))
		})

		t.Run("ConcurrentInsert", func(t *testing.T) {
			testConcurrentInsert(t, factory(t))
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, factory(t))
		})
	})
}

// CounterFactory creates a counter store for one test. Counter names used by the
// tests must not exist yet, the factory is responsible for cleanup.
type CounterFactory func(t *testing.T) storage.Counter

// RunCounterTests runs the counter part of the conformance suite for stores that
// only implement storage.Counter.
func RunCounterTests(t *testing.T, name string, factory CounterFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("CounterSequence", func(t *testing.T) {
			testCounterSequence(t, factory(t))
		})

		t.Run("CounterConcurrent", func(t *testing.T) {
			testCounterConcurrent(t, factory(t))
		})

		t.Run("CounterIndependent", func(t *testing.T) {
			testCounterIndependent(t, factory(t))
		})
	})
}

// RunDurabilityTests checks that counters and rows survive closing and reopening the backend.
func RunDurabilityTests(t *testing.T, name string, open Opener) {
	t.Run(name+"/Durability", func(t *testing.T) {
		ctx := testContext(t)
		fields := testSchema(t)

		b, err := open()
		if err != nil {
			t.Fatalf("open failed: %v", err)
		}
		if err := b.CreatePhysicalTable(ctx, "user_3", fields); err != nil {
			t.Fatalf("CreatePhysicalTable failed: %v", err)
		}
		var last uint64
		for i := 0; i < 5; i++ {
			if last, err = b.IncrementAndGetCounter(ctx, "global_id"); err != nil {
				t.Fatalf("IncrementAndGetCounter failed: %v", err)
			}
		}
		if err := b.InsertRow(ctx, "user_3", fields, last, schema.Values{"username": "a", "email": "a@x.com"}); err != nil {
			t.Fatalf("InsertRow failed: %v", err)
		}
		if err := b.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		b, err = open()
		if err != nil {
			t.Fatalf("reopen failed: %v", err)
		}
		defer b.Close()

		if v, ok, err := b.PeekCounter(ctx, "global_id"); err != nil || !ok || v != last {
			t.Errorf("expected counter %d after reopen, got %d (ok=%v, err=%v)", last, v, ok, err)
		}
		if v, err := b.IncrementAndGetCounter(ctx, "global_id"); err != nil || v != last+1 {
			t.Errorf("expected next value %d after reopen, got %d (err=%v)", last+1, v, err)
		}
		row, ok, err := b.GetRowByPrimaryKey(ctx, "user_3", fields, last)
		if err != nil || !ok {
			t.Fatalf("expected row %d after reopen (ok=%v, err=%v)", last, ok, err)
		}
		if row["username"] != "a" || row["email"] != "a@x.com" {
			t.Errorf("unexpected row after reopen: %v", row)
		}
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testSchema(t testing.TB) *schema.FieldSchema {
	s, err := schema.NewFieldSchema(
		schema.Field{Name: "username", Type: schema.FieldTString, Size: 80},
		schema.Field{Name: "email", Type: schema.FieldTString, Size: 100},
		schema.Field{Name: "age", Type: schema.FieldTInt},
		schema.Field{Name: "score", Type: schema.FieldTFloat},
		schema.Field{Name: "active", Type: schema.FieldTBool},
	)
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return s
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testCounterSequence(t *testing.T, b storage.Counter) {
	ctx := testContext(t)

	if _, ok, err := b.PeekCounter(ctx, "global_id"); err != nil || ok {
		t.Fatalf("expected empty counter before first increment (ok=%v, err=%v)", ok, err)
	}

	for want := uint64(1); want <= 10; want++ {
		got, err := b.IncrementAndGetCounter(ctx, "global_id")
		if err != nil {
			t.Fatalf("IncrementAndGetCounter failed: %v", err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}

	if v, ok, err := b.PeekCounter(ctx, "global_id"); err != nil || !ok || v != 10 {
		t.Errorf("expected peek 10, got %d (ok=%v, err=%v)", v, ok, err)
	}
	if v, _, _ := b.PeekCounter(ctx, "global_id"); v != 10 {
		t.Errorf("PeekCounter must not advance the counter, got %d", v)
	}
}

func testCounterConcurrent(t *testing.T, b storage.Counter) {
	ctx := testContext(t)

	const (
		workers = 8
		perG    = 25
	)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[uint64]struct{}, workers*perG)
	)
	errs := make(chan error, workers)

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			var prev uint64
			for i := 0; i < perG; i++ {
				v, err := b.IncrementAndGetCounter(ctx, "concurrent")
				if err != nil {
					errs <- err
					return
				}
				if v <= prev {
					errs <- fmt.Errorf("value %d not greater than previous %d of the same caller", v, prev)
					return
				}
				prev = v
				mu.Lock()
				if _, dup := seen[v]; dup {
					mu.Unlock()
					errs <- fmt.Errorf("duplicate value %d", v)
					return
				}
				seen[v] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if len(seen) != workers*perG {
		t.Errorf("expected %d distinct values, got %d", workers*perG, len(seen))
	}
	if v, ok, err := b.PeekCounter(ctx, "concurrent"); err != nil || !ok || v != workers*perG {
		t.Errorf("expected peek %d, got %d (ok=%v, err=%v)", workers*perG, v, ok, err)
	}
}

func testCounterIndependent(t *testing.T, b storage.Counter) {
	ctx := testContext(t)

	for i := 0; i < 3; i++ {
		if _, err := b.IncrementAndGetCounter(ctx, "a"); err != nil {
			t.Fatalf("IncrementAndGetCounter failed: %v", err)
		}
	}
	if v, err := b.IncrementAndGetCounter(ctx, "b"); err != nil || v != 1 {
		t.Errorf("expected independent counter to start at 1, got %d (err=%v)", v, err)
	}
	if v, _, _ := b.PeekCounter(ctx, "a"); v != 3 {
		t.Errorf("expected counter a to be 3, got %d", v)
	}
}

func testInsertGet(t *testing.T, b storage.Backend) {
	defer b.Close()
	ctx := testContext(t)
	fields := testSchema(t)

	if err := b.CreatePhysicalTable(ctx, "user_7", fields); err != nil {
		t.Fatalf("CreatePhysicalTable failed: %v", err)
	}

	values := schema.Values{
		"username": "alice",
		"email":    "alice@example.com",
		"age":      int64(31),
		"score":    12.5,
		"active":   true,
	}
	if err := b.InsertRow(ctx, "user_7", fields, 37, values); err != nil {
		t.Fatalf("InsertRow failed: %v", err)
	}

	row, ok, err := b.GetRowByPrimaryKey(ctx, "user_7", fields, 37)
	if err != nil || !ok {
		t.Fatalf("expected row 37 (ok=%v, err=%v)", ok, err)
	}
	for name, want := range values {
		if row[name] != want {
			t.Errorf("field %s: expected %v (%T), got %v (%T)", name, want, want, row[name], row[name])
		}
	}

	// modifying the returned row must not modify the stored row
	row["username"] = "mallory"
	row, _, _ = b.GetRowByPrimaryKey(ctx, "user_7", fields, 37)
	if row["username"] != "alice" {
		t.Errorf("GetRowByPrimaryKey should return a copy, got %v", row["username"])
	}

	// missing fields are NULL
	if err := b.InsertRow(ctx, "user_7", fields, 47, schema.Values{"username": "bob"}); err != nil {
		t.Fatalf("InsertRow failed: %v", err)
	}
	row, ok, err = b.GetRowByPrimaryKey(ctx, "user_7", fields, 47)
	if err != nil || !ok {
		t.Fatalf("expected row 47 (ok=%v, err=%v)", ok, err)
	}
	if row["username"] != "bob" || row["email"] != nil || row["age"] != nil {
		t.Errorf("unexpected row with missing fields: %v", row)
	}

	if _, ok, err := b.GetRowByPrimaryKey(ctx, "user_7", fields, 57); err != nil || ok {
		t.Errorf("expected no row for unknown id (ok=%v, err=%v)", ok, err)
	}
}

func testCreateTableIdempotent(t *testing.T, b storage.Backend) {
	defer b.Close()
	ctx := testContext(t)
	fields := testSchema(t)

	if err := b.CreatePhysicalTable(ctx, "user_1", fields); err != nil {
		t.Fatalf("CreatePhysicalTable failed: %v", err)
	}
	if err := b.InsertRow(ctx, "user_1", fields, 11, schema.Values{"username": "x"}); err != nil {
		t.Fatalf("InsertRow failed: %v", err)
	}
	if err := b.CreatePhysicalTable(ctx, "user_1", fields); err != nil {
		t.Fatalf("second CreatePhysicalTable failed: %v", err)
	}
	if _, ok, err := b.GetRowByPrimaryKey(ctx, "user_1", fields, 11); err != nil || !ok {
		t.Errorf("existing rows must survive a repeated CreatePhysicalTable (ok=%v, err=%v)", ok, err)
	}
}

func testNoSuchTable(t *testing.T, b storage.Backend) {
	defer b.Close()
	ctx := testContext(t)
	fields := testSchema(t)

	err := b.InsertRow(ctx, "user_9", fields, 9, schema.Values{"username": "x"})
	if !errors.Is(err, storage.ErrNoSuchTable) {
		t.Errorf("expected ErrNoSuchTable on insert, got %v", err)
	}
	_, _, err = b.GetRowByPrimaryKey(ctx, "user_9", fields, 9)
	if !errors.Is(err, storage.ErrNoSuchTable) {
		t.Errorf("expected ErrNoSuchTable on get, got %v", err)
	}
}

func testDuplicateKey(t *testing.T, b storage.Backend) {
	defer b.Close()
	ctx := testContext(t)
	fields := testSchema(t)

	if err := b.CreatePhysicalTable(ctx, "user_2", fields); err != nil {
		t.Fatalf("CreatePhysicalTable failed: %v", err)
	}
	if err := b.InsertRow(ctx, "user_2", fields, 2, schema.Values{"username": "first"}); err != nil {
		t.Fatalf("InsertRow failed: %v", err)
	}
	err := b.InsertRow(ctx, "user_2", fields, 2, schema.Values{"username": "second"})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	row, _, _ := b.GetRowByPrimaryKey(ctx, "user_2", fields, 2)
	if row["username"] != "first" {
		t.Errorf("duplicate insert must not overwrite the row, got %v", row["username"])
	}
}

func testConcurrentInsert(t *testing.T, b storage.Backend) {
	defer b.Close()
	ctx := testContext(t)
	fields := testSchema(t)

	const shards = 4
	for i := 0; i < shards; i++ {
		if err := b.CreatePhysicalTable(ctx, fmt.Sprintf("user_%d", i), fields); err != nil {
			t.Fatalf("CreatePhysicalTable failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	for id := uint64(1); id <= 40; id++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			table := fmt.Sprintf("user_%d", id%shards)
			if err := b.InsertRow(ctx, table, fields, id, schema.Values{"age": int64(id)}); err != nil {
				t.Errorf("InsertRow(%d) failed: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	for id := uint64(1); id <= 40; id++ {
		row, ok, err := b.GetRowByPrimaryKey(ctx, fmt.Sprintf("user_%d", id%shards), fields, id)
		if err != nil || !ok {
			t.Errorf("expected row %d (ok=%v, err=%v)", id, ok, err)
			continue
		}
		if row["age"] != int64(id) {
			t.Errorf("row %d: expected age %d, got %v", id, id, row["age"])
		}
	}
}

func testClosed(t *testing.T, b storage.Backend) {
	ctx := testContext(t)
	fields := testSchema(t)

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := b.IncrementAndGetCounter(ctx, "global_id"); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable from IncrementAndGetCounter after Close, got %v", err)
	}
	if _, _, err := b.PeekCounter(ctx, "global_id"); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable from PeekCounter after Close, got %v", err)
	}
	if err := b.CreatePhysicalTable(ctx, "user_0", fields); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable from CreatePhysicalTable after Close, got %v", err)
	}
}
