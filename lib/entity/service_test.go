package entity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ValentinKolb/dShard/lib/idalloc"
	"github.com/ValentinKolb/dShard/lib/schema"
	"github.com/ValentinKolb/dShard/lib/shard"
	"github.com/ValentinKolb/dShard/lib/storage"
	"github.com/ValentinKolb/dShard/lib/storage/memstore"
)

func userType() *schema.EntityType {
	return schema.MustEntityType("User", 10,
		schema.Field{Name: "username", Type: schema.FieldTString, Size: 80},
		schema.Field{Name: "email", Type: schema.FieldTString, Size: 100},
	)
}

func newTestService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })
	registry := shard.NewRegistry(shard.Options{TableCreator: store})
	return NewService(idalloc.New(store, ""), store, registry), store
}

// advance moves the global id counter to n
func advance(t *testing.T, c storage.Counter, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := c.IncrementAndGetCounter(context.Background(), idalloc.DefaultCounterName); err != nil {
			t.Fatalf("failed to advance counter: %v", err)
		}
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	user := userType()

	if _, err := svc.Registry().InitializeAllShards(ctx, user); err != nil {
		t.Fatalf("InitializeAllShards failed: %v", err)
	}
	advance(t, store, 36)

	rec, err := svc.Create(ctx, user, schema.Values{"username": "alice", "email": "alice@example.com"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rec.ID != 37 {
		t.Errorf("expected id 37, got %d", rec.ID)
	}
	if rec.Shard.Index != 7 || rec.Shard.TableName != "user_7" || rec.Shard.TypeName != "User7" {
		t.Errorf("expected record in user_7, got %s", rec.Shard)
	}

	got, ok, err := svc.Get(ctx, user, 37)
	if err != nil || !ok {
		t.Fatalf("Get failed (ok=%v, err=%v)", ok, err)
	}
	if got.Values["username"] != "alice" || got.Values["email"] != "alice@example.com" {
		t.Errorf("unexpected values %v", got.Values)
	}
	if got.Shard != rec.Shard {
		t.Error("Get and Create should use the same shard descriptor")
	}

	// the row lives in exactly one physical table
	for i := 0; i < user.ShardCount(); i++ {
		table := schema.PhysicalTableName(user.Name(), i)
		_, found, err := store.GetRowByPrimaryKey(ctx, table, user.Schema(), 37)
		if err != nil {
			t.Fatalf("GetRowByPrimaryKey(%s) failed: %v", table, err)
		}
		if found != (i == 7) {
			t.Errorf("table %s: found=%v", table, found)
		}
	}
}

func TestGetNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	rec, ok, err := svc.Get(context.Background(), userType(), 99)
	if err != nil {
		t.Fatalf("NotFound must not be an error, got %v", err)
	}
	if ok || rec != nil {
		t.Errorf("expected no record, got %v", rec)
	}
}

func TestCreateAssignsDistinctIncreasingIDs(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	user := userType()

	var prev uint64
	for i := 0; i < 25; i++ {
		rec, err := svc.Create(ctx, user, schema.Values{"username": "u"})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if rec.ID <= prev {
			t.Errorf("id %d not greater than previous id %d", rec.ID, prev)
		}
		if rec.Shard.Index != int(rec.ID%10) {
			t.Errorf("id %d stored in shard %d", rec.ID, rec.Shard.Index)
		}
		prev = rec.ID
	}
}

func TestCreateInvalidValues(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	user := userType()

	tests := []schema.Values{
		{"nickname": "x"},
		{"username": 42},
		{"username": strings.Repeat("a", 81)},
	}
	for _, values := range tests {
		_, err := svc.Create(ctx, user, values)
		if !errors.Is(err, ErrInvalidValues) {
			t.Errorf("Create(%v): expected ErrInvalidValues, got %v", values, err)
		}
	}

	// no id was consumed
	if _, ok, _ := store.PeekCounter(ctx, idalloc.DefaultCounterName); ok {
		t.Error("invalid values must be rejected before an id is allocated")
	}
}

func TestCreateAllocationFailed(t *testing.T) {
	ctx := context.Background()
	counter := memstore.New()
	rows := memstore.New()
	defer rows.Close()
	_ = counter.Close()

	svc := NewService(idalloc.New(counter, ""), rows, shard.NewRegistry(shard.Options{TableCreator: rows}))
	_, err := svc.Create(ctx, userType(), schema.Values{"username": "bob"})
	if !errors.Is(err, ErrAllocationFailed) {
		t.Errorf("expected ErrAllocationFailed, got %v", err)
	}
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("expected cause ErrUnavailable, got %v", err)
	}
	var eerr *Error
	if !errors.As(err, &eerr) || eerr.Op != "create" || eerr.Entity != "User" || eerr.ID != 0 {
		t.Errorf("unexpected error details: %#v", eerr)
	}
}

func TestCreatePersistFailed(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	defer store.Close()
	user := userType()

	// registry without table creator and no tables: the insert fails
	svc := NewService(idalloc.New(store, ""), store, shard.NewRegistry(shard.Options{}))
	_, err := svc.Create(ctx, user, schema.Values{"username": "bob"})
	if !errors.Is(err, ErrPersistFailed) || !errors.Is(err, storage.ErrNoSuchTable) {
		t.Fatalf("expected ErrPersistFailed caused by ErrNoSuchTable, got %v", err)
	}
	var eerr *Error
	if !errors.As(err, &eerr) || eerr.ID != 1 {
		t.Errorf("expected the abandoned id 1 in the error, got %#v", eerr)
	}
	if !strings.Contains(err.Error(), "create User (id 1)") {
		t.Errorf("error message should name operation, entity and id: %q", err)
	}

	// the abandoned id leaves a gap
	for i := 0; i < user.ShardCount(); i++ {
		_ = store.CreatePhysicalTable(ctx, schema.PhysicalTableName(user.Name(), i), user.Schema())
	}
	rec, err := svc.Create(ctx, user, schema.Values{"username": "bob"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rec.ID != 2 {
		t.Errorf("expected id 2 after an abandoned id, got %d", rec.ID)
	}
	if _, ok, _ := svc.Get(ctx, user, 1); ok {
		t.Error("abandoned id must not have a record")
	}
}

func TestCreatePersistUnavailable(t *testing.T) {
	ctx := context.Background()
	counter := memstore.New()
	defer counter.Close()
	rows := memstore.New()
	user := userType()

	svc := NewService(idalloc.New(counter, ""), rows, shard.NewRegistry(shard.Options{TableCreator: rows}))
	if _, err := svc.Registry().InitializeAllShards(ctx, user); err != nil {
		t.Fatalf("InitializeAllShards failed: %v", err)
	}
	_ = rows.Close()

	_, err := svc.Create(ctx, user, schema.Values{"username": "bob"})
	if !errors.Is(err, ErrPersistFailed) || !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("expected ErrPersistFailed caused by ErrUnavailable, got %v", err)
	}

	_, _, err = svc.Get(ctx, user, 1)
	if !errors.Is(err, ErrLookupFailed) || !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("expected ErrLookupFailed caused by ErrUnavailable, got %v", err)
	}
}

func TestShardIndexOutOfRange(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	defer store.Close()
	big := schema.MustEntityType("Event", 8)

	svc := NewService(idalloc.New(store, ""), store, shard.NewRegistry(shard.Options{MaxShardCap: 5, TableCreator: store}))
	advance(t, store, 5)

	_, err := svc.Create(ctx, big, schema.Values{})
	if !errors.Is(err, ErrShardIndexOutOfRange) {
		t.Errorf("expected ErrShardIndexOutOfRange for id 6, got %v", err)
	}
	_, _, err = svc.Get(ctx, big, 6)
	if !errors.Is(err, ErrShardIndexOutOfRange) {
		t.Errorf("expected ErrShardIndexOutOfRange from Get, got %v", err)
	}
}

func TestConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	user := userType()

	const (
		workers = 8
		perG    = 50
	)
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[uint64]string, workers*perG)
	)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				name := string(rune('a'+w)) + strings.Repeat("x", i%5)
				rec, err := svc.Create(ctx, user, schema.Values{"username": name})
				if err != nil {
					t.Errorf("Create failed: %v", err)
					return
				}
				mu.Lock()
				if _, dup := ids[rec.ID]; dup {
					t.Errorf("duplicate id %d", rec.ID)
				}
				ids[rec.ID] = name
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	if len(ids) != workers*perG {
		t.Fatalf("expected %d records, got %d", workers*perG, len(ids))
	}
	for id, name := range ids {
		rec, ok, err := svc.Get(ctx, user, id)
		if err != nil || !ok {
			t.Errorf("Get(%d) failed (ok=%v, err=%v)", id, ok, err)
			continue
		}
		if rec.Values["username"] != name {
			t.Errorf("record %d: expected username %q, got %v", id, name, rec.Values["username"])
		}
	}
}
