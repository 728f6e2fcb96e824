package idalloc

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dShard/lib/logging"
	"github.com/ValentinKolb/dShard/lib/storage"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

// DefaultCounterName is the name of the global id counter
const DefaultCounterName = "global_id"

var (
	log = logger.GetLogger(logging.LoggerIDAlloc)

	allocatedTotal = metrics.GetOrCreateCounter("dshard_ids_allocated_total")
	errorsTotal    = metrics.GetOrCreateCounter("dshard_id_allocation_errors_total")
)

// CounterStore is the durable counter the allocator draws ids from
type CounterStore = storage.Counter

// IAllocator defines the interface for an id allocator.
type IAllocator interface {
	// Allocate returns the next globally unique id.
	Allocate(ctx context.Context) (id uint64, err error)
	// PeekMax returns the largest id allocated so far without allocating.
	// The boolean return value is false if no id was allocated yet.
	PeekMax(ctx context.Context) (max uint64, ok bool, err error)
}

// Allocator allocates ids from a named counter
type Allocator struct {
	store CounterStore
	name  string
}

// New creates an allocator on the given store. An empty name selects DefaultCounterName.
func New(store CounterStore, name string) *Allocator {
	if name == "" {
		name = DefaultCounterName
	}
	return &Allocator{
		store: store,
		name:  name,
	}
}

// Name returns the counter name
func (a *Allocator) Name() string {
	return a.name
}

func (a *Allocator) Allocate(ctx context.Context) (uint64, error) {
	id, err := a.store.IncrementAndGetCounter(ctx, a.name)
	if err != nil {
		errorsTotal.Inc()
		log.Warningf("failed to allocate id from counter %s: %v", a.name, err)
		return 0, wrapStoreError(err, "allocate id from counter %s", a.name)
	}
	allocatedTotal.Inc()
	log.Debugf("allocated id %d", id)
	return id, nil
}

func (a *Allocator) PeekMax(ctx context.Context) (uint64, bool, error) {
	v, ok, err := a.store.PeekCounter(ctx, a.name)
	if err != nil {
		return 0, false, wrapStoreError(err, "peek counter %s", a.name)
	}
	return v, ok, nil
}

// wrapStoreError adds context to a store error. Errors that are not storage errors
// (e.g. from a custom CounterStore) are reported as unavailable.
func wrapStoreError(err error, format string, args ...any) error {
	var serr *storage.Error
	if errors.As(err, &serr) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
	}
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), storage.ErrUnavailable, err)
}
