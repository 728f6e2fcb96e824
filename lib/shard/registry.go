package shard

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/ValentinKolb/dShard/lib/logging"
	"github.com/ValentinKolb/dShard/lib/schema"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxShardCap is the default upper bound (exclusive) for shard indices
const DefaultMaxShardCap = 100

var (
	// ErrShardIndexOutOfRange is returned if a shard index is negative, not below
	// the shard count or not below the max shard cap
	ErrShardIndexOutOfRange = errors.New("shard index out of range")
	// ErrInvalidShardCount is returned for a shard count below 1
	ErrInvalidShardCount = errors.New("invalid shard count")
)

var (
	log = logger.GetLogger(logging.LoggerShard)

	descriptorsCreated = metrics.GetOrCreateCounter("dshard_shard_descriptors_created_total")
	descriptorHits     = metrics.GetOrCreateCounter("dshard_shard_descriptor_cache_hits_total")
)

// TableCreator creates the physical table of a shard (implemented by every storage.Backend)
type TableCreator interface {
	CreatePhysicalTable(ctx context.Context, table string, fields *schema.FieldSchema) error
}

// Options configure a Registry
type Options struct {
	// MaxShardCap is the exclusive upper bound for shard indices (0 = DefaultMaxShardCap)
	MaxShardCap int
	// TableCreator is called once per descriptor when the descriptor is built (optional)
	TableCreator TableCreator
}

type descriptorKey struct {
	entity string
	index  int
}

func (k descriptorKey) String() string {
	return k.entity + "/" + strconv.Itoa(k.index)
}

// Registry memoizes shard descriptors. It is safe for concurrent use.
type Registry struct {
	maxCap      int
	creator     TableCreator
	descriptors *xsync.MapOf[descriptorKey, *schema.ShardDescriptor]
	builds      singleflight.Group
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.MaxShardCap <= 0 {
		opts.MaxShardCap = DefaultMaxShardCap
	}
	return &Registry{
		maxCap:      opts.MaxShardCap,
		creator:     opts.TableCreator,
		descriptors: xsync.NewMapOf[descriptorKey, *schema.ShardDescriptor](),
	}
}

// MaxShardCap returns the exclusive upper bound for shard indices
func (r *Registry) MaxShardCap() int {
	return r.maxCap
}

// IndexFor returns id mod shardCount.
func (r *Registry) IndexFor(id uint64, shardCount int) (int, error) {
	if shardCount < 1 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidShardCount, shardCount)
	}
	index := int(id % uint64(shardCount))
	if index >= r.maxCap {
		return 0, fmt.Errorf("%w: id %d maps to index %d, max shard cap is %d", ErrShardIndexOutOfRange, id, index, r.maxCap)
	}
	return index, nil
}

// DescriptorFor returns the memoized descriptor of shard index of the entity type,
// building it (and creating its physical table) on first use.
func (r *Registry) DescriptorFor(ctx context.Context, et *schema.EntityType, index int) (*schema.ShardDescriptor, error) {
	if index < 0 || index >= et.ShardCount() {
		return nil, fmt.Errorf("%w: index %d of %s with %d shards", ErrShardIndexOutOfRange, index, et.Name(), et.ShardCount())
	}
	if index >= r.maxCap {
		return nil, fmt.Errorf("%w: index %d of %s, max shard cap is %d", ErrShardIndexOutOfRange, index, et.Name(), r.maxCap)
	}

	key := descriptorKey{entity: et.Name(), index: index}

	// fast path
	if d, ok := r.descriptors.Load(key); ok {
		descriptorHits.Inc()
		return d, nil
	}

	// slow path: one build per key, the table is created outside the map's bucket lock
	ch := r.builds.DoChan(key.String(), func() (any, error) {
		if d, ok := r.descriptors.Load(key); ok {
			return d, nil
		}
		desc := schema.NewShardDescriptor(et, index)
		if r.creator != nil {
			if err := r.creator.CreatePhysicalTable(ctx, desc.TableName, desc.Schema); err != nil {
				log.Warningf("failed to create table of shard %d of %s: %v", index, et.Name(), err)
				return nil, fmt.Errorf("create table %s: %w", desc.TableName, err)
			}
		}
		r.descriptors.Store(key, desc)
		descriptorsCreated.Inc()
		log.Debugf("created shard descriptor %s", desc)
		return desc, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*schema.ShardDescriptor), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve returns the descriptor of the shard holding id.
func (r *Registry) Resolve(ctx context.Context, et *schema.EntityType, id uint64) (*schema.ShardDescriptor, error) {
	index, err := r.IndexFor(id, et.ShardCount())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", et.Name(), err)
	}
	return r.DescriptorFor(ctx, et, index)
}

// InitializeAllShards builds the descriptors (and physical tables) of every shard
// of the entity type. Calling it again is a no-op.
func (r *Registry) InitializeAllShards(ctx context.Context, et *schema.EntityType) ([]*schema.ShardDescriptor, error) {
	out := make([]*schema.ShardDescriptor, 0, et.ShardCount())
	for i := 0; i < et.ShardCount(); i++ {
		d, err := r.DescriptorFor(ctx, et, i)
		if err != nil {
			return out, fmt.Errorf("initialize shards of %s: %w", et.Name(), err)
		}
		out = append(out, d)
	}
	log.Infof("initialized %d shards of %s", len(out), et.Name())
	return out, nil
}

// Descriptors returns all memoized descriptors sorted by entity name and index.
func (r *Registry) Descriptors() []*schema.ShardDescriptor {
	out := make([]*schema.ShardDescriptor, 0, r.descriptors.Size())
	r.descriptors.Range(func(_ descriptorKey, d *schema.ShardDescriptor) bool {
		out = append(out, d)
		return true
	})
	slices.SortFunc(out, func(a, b *schema.ShardDescriptor) int {
		if c := cmp.Compare(a.Entity, b.Entity); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
	return out
}
