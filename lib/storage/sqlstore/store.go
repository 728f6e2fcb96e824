package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/ValentinKolb/dShard/lib/logging"
	"github.com/ValentinKolb/dShard/lib/schema"
	"github.com/ValentinKolb/dShard/lib/storage"
	"github.com/lni/dragonboat/v4/logger"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var log = logger.GetLogger(logging.LoggerStorage)

// tableNameRe restricts table names to the names produced by the naming transform,
// table names are interpolated into statements.
var tableNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store is a storage.Backend backed by a SQL database
type Store struct {
	db      *sql.DB
	dialect *dialect
	closed  atomic.Bool
}

// Open connects to the database and creates the counters table if needed.
func Open(ctx context.Context, d Dialect, dsn string) (*Store, error) {
	dia, ok := dialects[d]
	if !ok {
		return nil, storage.Errorf(storage.RetCInvalidOperation, "unknown sql dialect %q", d)
	}

	db, err := sql.Open(dia.driver, dsn)
	if err != nil {
		return nil, storage.Errorf(storage.RetCInvalidOperation, "failed to open %s database: %v", d, err)
	}
	if d == DialectSQLite {
		// sqlite allows a single writer, also every connection to ":memory:" is a separate database
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, dialect: dia}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, s.classify(err, "connect")
	}
	if _, err := db.ExecContext(ctx, dia.createCountersSQL()); err != nil {
		db.Close()
		return nil, s.classify(err, "create counters table")
	}

	log.Infof("opened %s database", d)
	return s, nil
}

// Dialect returns the dialect of the store
func (s *Store) Dialect() Dialect {
	return s.dialect.name
}

func (s *Store) checkOpen() error {
	if s.closed.Load() {
		return storage.NewError(storage.RetCUnavailable, "sqlstore is closed")
	}
	return nil
}

func checkTableName(table string) error {
	if !tableNameRe.MatchString(table) {
		return storage.Errorf(storage.RetCInvalidOperation, "invalid table name %q", table)
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see storage/interface.go)
// --------------------------------------------------------------------------

func (s *Store) IncrementAndGetCounter(ctx context.Context, name string) (value uint64, err error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, s.classify(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var v int64
	if s.dialect.lastValueSQL == "" {
		if err = tx.QueryRowContext(ctx, s.dialect.incrementSQL, name).Scan(&v); err != nil {
			return 0, s.classify(err, "increment counter "+name)
		}
	} else {
		if _, err = tx.ExecContext(ctx, s.dialect.incrementSQL, name); err != nil {
			return 0, s.classify(err, "increment counter "+name)
		}
		if err = tx.QueryRowContext(ctx, s.dialect.lastValueSQL).Scan(&v); err != nil {
			return 0, s.classify(err, "read counter "+name)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, s.classify(err, "commit counter "+name)
	}
	return uint64(v), nil
}

func (s *Store) PeekCounter(ctx context.Context, name string) (uint64, bool, error) {
	if err := s.checkOpen(); err != nil {
		return 0, false, err
	}
	var v int64
	err := s.db.QueryRowContext(ctx, s.dialect.peekSQL(), name).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, s.classify(err, "peek counter "+name)
	}
	return uint64(v), true, nil
}

func (s *Store) CreatePhysicalTable(ctx context.Context, table string, fields *schema.FieldSchema) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := checkTableName(table); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.createTableSQL(table, fields)); err != nil {
		return s.classify(err, "create table "+table)
	}
	log.Debugf("created table %s (if not exists)", table)
	return nil
}

func (s *Store) InsertRow(ctx context.Context, table string, fields *schema.FieldSchema, id uint64, values schema.Values) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := checkTableName(table); err != nil {
		return err
	}

	args := make([]any, 0, fields.Len()+1)
	args = append(args, int64(id))
	for _, f := range fields.Fields() {
		args = append(args, values[f.Name])
	}

	if _, err := s.db.ExecContext(ctx, s.dialect.insertSQL(table, fields), args...); err != nil {
		return s.classify(err, fmt.Sprintf("insert id %d into %s", id, table))
	}
	return nil
}

func (s *Store) GetRowByPrimaryKey(ctx context.Context, table string, fields *schema.FieldSchema, id uint64) (schema.Values, bool, error) {
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}
	if err := checkTableName(table); err != nil {
		return nil, false, err
	}

	cols := fields.Fields()
	var pk int64
	dest := make([]any, 0, len(cols)+1)
	dest = append(dest, &pk)
	for _, f := range cols {
		dest = append(dest, scanTarget(f.Type))
	}

	err := s.db.QueryRowContext(ctx, s.dialect.selectSQL(table, fields), int64(id)).Scan(dest...)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, s.classify(err, fmt.Sprintf("get id %d from %s", id, table))
	}

	out := make(schema.Values, len(cols))
	for i, f := range cols {
		out[f.Name] = scanValue(dest[i+1])
	}
	return out, true, nil
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return storage.Errorf(storage.RetCInternalError, "failed to close database: %v", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func scanTarget(t schema.FieldType) any {
	switch t {
	case schema.FieldTInt:
		return new(sql.NullInt64)
	case schema.FieldTFloat:
		return new(sql.NullFloat64)
	case schema.FieldTBool:
		return new(sql.NullBool)
	default:
		return new(sql.NullString)
	}
}

// scanValue converts a scan target back to a normalized value (nil for NULL)
func scanValue(target any) any {
	switch v := target.(type) {
	case *sql.NullInt64:
		if v.Valid {
			return v.Int64
		}
	case *sql.NullFloat64:
		if v.Valid {
			return v.Float64
		}
	case *sql.NullBool:
		if v.Valid {
			return v.Bool
		}
	case *sql.NullString:
		if v.Valid {
			return v.String
		}
	}
	return nil
}
