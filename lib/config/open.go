package config

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dShard/lib/idalloc/zkcounter"
	"github.com/ValentinKolb/dShard/lib/logging"
	"github.com/ValentinKolb/dShard/lib/storage"
	"github.com/ValentinKolb/dShard/lib/storage/memstore"
	"github.com/ValentinKolb/dShard/lib/storage/sqlstore"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger(logging.LoggerCLI)

// OpenBackend opens the configured storage backend.
// For the memory backend the DSN is the snapshot path, an empty DSN keeps everything volatile.
func (c *Config) OpenBackend(ctx context.Context) (storage.Backend, error) {
	switch c.Backend {
	case BackendMemory:
		if c.DSN == "" {
			return memstore.New(), nil
		}
		return memstore.Open(c.DSN)
	case BackendSQLite:
		return sqlstore.Open(ctx, sqlstore.DialectSQLite, c.DSN)
	case BackendPostgres:
		return sqlstore.Open(ctx, sqlstore.DialectPostgres, c.DSN)
	case BackendMySQL:
		return sqlstore.Open(ctx, sqlstore.DialectMySQL, c.DSN)
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}

// OpenCounter returns the configured id counter store. With CounterBackend the
// backend itself is used and the returned closer is nil.
func (c *Config) OpenCounter(ctx context.Context, backend storage.Backend) (storage.Counter, io.Closer, error) {
	switch c.Counter {
	case CounterBackend:
		if c.Backend == BackendMemory && c.DSN != "" {
			log.Warningf("the id counter lives in the memory snapshot %s, ids are reissued after a crash", c.DSN)
		}
		return backend, nil, nil
	case CounterZooKeeper:
		zc, err := zkcounter.Connect(ctx, zkcounter.Options{
			Servers:        c.ZKServers,
			Root:           c.ZKRoot,
			SessionTimeout: time.Duration(c.ZKTimeoutMilli) * time.Millisecond,
		})
		if err != nil {
			return nil, nil, err
		}
		return zc, zc, nil
	default:
		return nil, nil, fmt.Errorf("unknown counter %q", c.Counter)
	}
}
