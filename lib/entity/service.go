package entity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dShard/lib/idalloc"
	"github.com/ValentinKolb/dShard/lib/logging"
	"github.com/ValentinKolb/dShard/lib/schema"
	"github.com/ValentinKolb/dShard/lib/shard"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	log = logger.GetLogger(logging.LoggerEntity)

	createDuration = metrics.GetOrCreateHistogram("dshard_entity_create_duration_seconds")
)

// RowStore is the part of storage.Backend used for records
type RowStore interface {
	InsertRow(ctx context.Context, table string, fields *schema.FieldSchema, id uint64, values schema.Values) error
	GetRowByPrimaryKey(ctx context.Context, table string, fields *schema.FieldSchema, id uint64) (schema.Values, bool, error)
}

// Record is a stored record together with its shard
type Record struct {
	ID     uint64
	Shard  *schema.ShardDescriptor
	Values schema.Values
}

func (r *Record) String() string {
	return fmt.Sprintf("%s#%d@%s %v", r.Shard.Entity, r.ID, r.Shard.TableName, r.Values)
}

// Service executes the lifecycle operations. It is safe for concurrent use.
type Service struct {
	alloc    idalloc.IAllocator
	rows     RowStore
	registry *shard.Registry
}

// NewService creates a new service. The registry should create tables in rows
// (Options.TableCreator) unless the tables were created up front.
func NewService(alloc idalloc.IAllocator, rows RowStore, registry *shard.Registry) *Service {
	return &Service{
		alloc:    alloc,
		rows:     rows,
		registry: registry,
	}
}

// Registry returns the shard registry of the service
func (s *Service) Registry() *shard.Registry {
	return s.registry
}

// Create stores a new record and returns it with its allocated id.
// The values are validated before an id is allocated.
func (s *Service) Create(ctx context.Context, et *schema.EntityType, values schema.Values) (*Record, error) {
	start := time.Now()

	normalized, err := et.Schema().Normalize(values)
	if err != nil {
		return nil, s.fail("create", et, 0, ErrInvalidValues, err)
	}

	id, err := s.alloc.Allocate(ctx)
	if err != nil {
		return nil, s.fail("create", et, 0, ErrAllocationFailed, err)
	}

	desc, err := s.registry.Resolve(ctx, et, id)
	if err != nil {
		kind := ErrPersistFailed // table creation failed
		if errors.Is(err, shard.ErrShardIndexOutOfRange) {
			kind = ErrShardIndexOutOfRange
		}
		return nil, s.fail("create", et, id, kind, err)
	}

	if err := s.rows.InsertRow(ctx, desc.TableName, desc.Schema, id, normalized); err != nil {
		return nil, s.fail("create", et, id, ErrPersistFailed, err)
	}

	createDuration.UpdateDuration(start)
	metrics.GetOrCreateCounter(fmt.Sprintf(`dshard_entity_created_total{entity=%q}`, et.Name())).Inc()
	log.Debugf("created %s %d in %s", et.Name(), id, desc.TableName)

	return &Record{
		ID:     id,
		Shard:  desc,
		Values: normalized,
	}, nil
}

// Get reads the record with the given id.
// The boolean return value is false (with a nil error) if no such record exists.
func (s *Service) Get(ctx context.Context, et *schema.EntityType, id uint64) (*Record, bool, error) {
	desc, err := s.registry.Resolve(ctx, et, id)
	if err != nil {
		kind := ErrLookupFailed
		if errors.Is(err, shard.ErrShardIndexOutOfRange) {
			kind = ErrShardIndexOutOfRange
		}
		return nil, false, s.fail("get", et, id, kind, err)
	}

	values, ok, err := s.rows.GetRowByPrimaryKey(ctx, desc.TableName, desc.Schema, id)
	if err != nil {
		return nil, false, s.fail("get", et, id, ErrLookupFailed, err)
	}

	result := "not_found"
	if ok {
		result = "found"
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`dshard_entity_get_total{entity=%q,result=%q}`, et.Name(), result)).Inc()

	if !ok {
		return nil, false, nil
	}
	return &Record{
		ID:     id,
		Shard:  desc,
		Values: values,
	}, true, nil
}

func (s *Service) fail(op string, et *schema.EntityType, id uint64, kind, cause error) error {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dshard_entity_errors_total{op=%q,kind=%q}`, op, kindName(kind))).Inc()
	err := &Error{
		Op:     op,
		Entity: et.Name(),
		ID:     id,
		Kind:   kind,
		Err:    cause,
	}
	if kind == ErrInvalidValues {
		log.Debugf("%v", err)
	} else {
		log.Warningf("%v", err)
	}
	return err
}
