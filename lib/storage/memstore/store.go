package memstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ValentinKolb/dShard/lib/logging"
	"github.com/ValentinKolb/dShard/lib/schema"
	"github.com/ValentinKolb/dShard/lib/storage"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/zhangyunhao116/skipmap"
)

var log = logger.GetLogger(logging.LoggerStorage)

// table is a single physical table
type table struct {
	name   string
	fields *schema.FieldSchema
	rows   *skipmap.FuncMap[uint64, schema.Values]
}

func newTable(name string, fields *schema.FieldSchema) *table {
	return &table{
		name:   name,
		fields: fields,
		rows: skipmap.NewFunc[uint64, schema.Values](func(a, b uint64) bool {
			return a < b
		}),
	}
}

// Store is an in-memory storage.Backend
type Store struct {
	path     string       // snapshot path ("" = volatile)
	mu       sync.RWMutex // held shared by every operation, exclusively by Close
	closed   bool
	counters *xsync.MapOf[string, uint64]
	tables   *xsync.MapOf[string, *table]
	saveMu   sync.Mutex // serializes snapshot writes
}

// New creates a new volatile in-memory store.
func New() *Store {
	return &Store{
		counters: xsync.NewMapOf[string, uint64](),
		tables:   xsync.NewMapOf[string, *table](),
	}
}

// Open creates a store persisted at path. If a snapshot exists at path it is loaded.
// The snapshot is rewritten when the store is closed.
func Open(path string) (*Store, error) {
	s := New()
	s.path = path

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Infof("no snapshot at %s, starting empty", path)
		return s, nil
	}
	if err != nil {
		return nil, storage.Errorf(storage.RetCUnavailable, "failed to open snapshot %s: %v", path, err)
	}
	defer f.Close()

	if err := s.Load(f); err != nil {
		return nil, storage.Errorf(storage.RetCInternalError, "failed to load snapshot %s: %v", path, err)
	}
	log.Infof("loaded snapshot %s (%d counters, %d tables)", path, s.counters.Size(), s.tables.Size())
	return s, nil
}

// enter read locks the store for one operation. On success the caller must
// call s.mu.RUnlock when done.
func (s *Store) enter() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return storage.NewError(storage.RetCUnavailable, "memstore is closed")
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see storage/interface.go)
// --------------------------------------------------------------------------

func (s *Store) IncrementAndGetCounter(_ context.Context, name string) (uint64, error) {
	if err := s.enter(); err != nil {
		return 0, err
	}
	defer s.mu.RUnlock()
	value, _ := s.counters.Compute(name, func(old uint64, _ bool) (uint64, bool) {
		return old + 1, false
	})
	return value, nil
}

func (s *Store) PeekCounter(_ context.Context, name string) (uint64, bool, error) {
	if err := s.enter(); err != nil {
		return 0, false, err
	}
	defer s.mu.RUnlock()
	value, ok := s.counters.Load(name)
	return value, ok, nil
}

func (s *Store) CreatePhysicalTable(_ context.Context, name string, fields *schema.FieldSchema) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.mu.RUnlock()
	_, loaded := s.tables.LoadOrCompute(name, func() *table {
		return newTable(name, fields)
	})
	if !loaded {
		log.Debugf("created table %s", name)
	}
	return nil
}

func (s *Store) InsertRow(_ context.Context, name string, _ *schema.FieldSchema, id uint64, values schema.Values) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.mu.RUnlock()
	t, ok := s.tables.Load(name)
	if !ok {
		return storage.Errorf(storage.RetCNoSuchTable, "table %s does not exist", name)
	}
	if _, loaded := t.rows.LoadOrStore(id, values.Clone()); loaded {
		return storage.Errorf(storage.RetCDuplicateKey, "table %s: id %d already exists", name, id)
	}
	return nil
}

func (s *Store) GetRowByPrimaryKey(_ context.Context, name string, fields *schema.FieldSchema, id uint64) (schema.Values, bool, error) {
	if err := s.enter(); err != nil {
		return nil, false, err
	}
	defer s.mu.RUnlock()
	t, ok := s.tables.Load(name)
	if !ok {
		return nil, false, storage.Errorf(storage.RetCNoSuchTable, "table %s does not exist", name)
	}
	stored, ok := t.rows.Load(id)
	if !ok {
		return nil, false, nil
	}

	// return every schema field, missing ones as NULL
	out := make(schema.Values, fields.Len())
	for _, f := range fields.Fields() {
		out[f.Name] = stored[f.Name]
	}
	return out, true, nil
}

// Close marks the store as closed and writes the snapshot if the store is persistent.
// It waits for running operations, so every value handed out before Close is
// part of the snapshot.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.path == "" {
		return nil
	}
	return s.writeSnapshot()
}

// --------------------------------------------------------------------------
// Snapshot file handling
// --------------------------------------------------------------------------

// writeSnapshot atomically replaces the snapshot file (write to temp file, then rename)
func (s *Store) writeSnapshot() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return storage.Errorf(storage.RetCUnavailable, "failed to create snapshot: %v", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := s.Save(w); err != nil {
		tmp.Close()
		return storage.Errorf(storage.RetCInternalError, "failed to write snapshot: %v", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return storage.Errorf(storage.RetCUnavailable, "failed to write snapshot: %v", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return storage.Errorf(storage.RetCUnavailable, "failed to sync snapshot: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return storage.Errorf(storage.RetCUnavailable, "failed to close snapshot: %v", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return storage.Errorf(storage.RetCUnavailable, "failed to replace snapshot: %v", err)
	}
	log.Infof("wrote snapshot %s", s.path)
	return nil
}

// Stats returns the number of counters and tables (used for logging and tests).
func (s *Store) Stats() (counters, tables int) {
	return s.counters.Size(), s.tables.Size()
}

func (t *table) String() string {
	return fmt.Sprintf("%s (%d rows)", t.name, t.rows.Len())
}
