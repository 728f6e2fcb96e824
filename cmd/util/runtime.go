package util

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ValentinKolb/dShard/lib/config"
	"github.com/ValentinKolb/dShard/lib/entity"
	"github.com/ValentinKolb/dShard/lib/idalloc"
	"github.com/ValentinKolb/dShard/lib/logging"
	"github.com/ValentinKolb/dShard/lib/schema"
	"github.com/ValentinKolb/dShard/lib/shard"
	"github.com/ValentinKolb/dShard/lib/storage"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
)

var (
	log = logger.GetLogger(logging.LoggerCLI)

	// current is the runtime opened by Setup, closed by Shutdown
	current *Runtime
)

// Runtime holds everything a command needs to work with sharded entities
type Runtime struct {
	Config    config.Config
	Backend   storage.Backend
	Allocator *idalloc.Allocator
	Registry  *shard.Registry
	Service   *entity.Service
	Entities  []*schema.EntityType

	counterCloser io.Closer
}

// OpenRuntime opens the backend and counter of the configuration and wires the
// allocator, the shard registry and the entity service.
func OpenRuntime(ctx context.Context, cfg config.Config) (*Runtime, error) {
	rt, err := NewOfflineRuntime(cfg)
	if err != nil {
		return nil, err
	}

	backend, err := cfg.OpenBackend(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Backend, err)
	}
	counter, closer, err := cfg.OpenCounter(ctx, backend)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to open %s counter: %w", cfg.Counter, err)
	}

	rt.Backend = backend
	rt.counterCloser = closer
	rt.Allocator = idalloc.New(counter, cfg.CounterName)
	rt.Registry = shard.NewRegistry(shard.Options{
		MaxShardCap:  cfg.MaxShardCap,
		TableCreator: backend,
	})
	rt.Service = entity.NewService(rt.Allocator, backend, rt.Registry)
	return rt, nil
}

// NewOfflineRuntime validates the configuration and builds the entity types and a
// registry without a table creator. Neither the backend nor the counter is opened,
// so Backend, Allocator and Service are nil.
func NewOfflineRuntime(cfg config.Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	entities, err := cfg.EntityTypes()
	if err != nil {
		return nil, err
	}
	return &Runtime{
		Config:   cfg,
		Registry: shard.NewRegistry(shard.Options{MaxShardCap: cfg.MaxShardCap}),
		Entities: entities,
	}, nil
}

// Entity returns the entity type with the given name (case-insensitive)
func (r *Runtime) Entity(name string) (*schema.EntityType, error) {
	for _, et := range r.Entities {
		if et.Name() == name {
			return et, nil
		}
	}
	for _, et := range r.Entities {
		if strings.EqualFold(et.Name(), name) {
			return et, nil
		}
	}
	return nil, fmt.Errorf("unknown entity %q (known: %s)", name, strings.Join(r.EntityNames(), ", "))
}

// EntityNames returns the sorted names of all entity types
func (r *Runtime) EntityNames() []string {
	names := make([]string, len(r.Entities))
	for i, et := range r.Entities {
		names[i] = et.Name()
	}
	sort.Strings(names)
	return names
}

// Context returns a context with the configured operation timeout
func (r *Runtime) Context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.Config.Timeout())
}

// Close closes the counter and the backend
func (r *Runtime) Close() error {
	var errs []error
	if r.counterCloser != nil {
		errs = append(errs, r.counterCloser.Close())
	}
	if r.Backend != nil {
		errs = append(errs, r.Backend.Close())
	}
	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// cobra integration
// --------------------------------------------------------------------------

// Setup binds the flags, initializes logging and opens the runtime.
// Use it as PersistentPreRunE of command groups that work with entities.
func Setup(cmd *cobra.Command) (*Runtime, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}
	cfg := GetConfig()
	if err := logging.InitLoggers(cfg.LogLevel); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()

	rt, err := OpenRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}
	current = rt
	log.Debugf("opened runtime: %s backend, %d entities", cfg.Backend, len(rt.Entities))
	return rt, nil
}

// SetupOffline binds the flags and initializes logging like Setup, but neither
// the backend nor the counter is opened (see NewOfflineRuntime).
func SetupOffline(cmd *cobra.Command) (*Runtime, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}
	cfg := GetConfig()
	if err := logging.InitLoggers(cfg.LogLevel); err != nil {
		return nil, err
	}
	return NewOfflineRuntime(cfg)
}

// Shutdown closes the runtime opened by Setup (if any)
func Shutdown() {
	if current == nil {
		return
	}
	if err := current.Close(); err != nil {
		log.Errorf("failed to close runtime: %v", err)
	}
	current = nil
}
