package zkcounter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dShard/lib/logging"
	"github.com/ValentinKolb/dShard/lib/storage"
	"github.com/go-zookeeper/zk"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger(logging.LoggerIDAlloc)

const (
	DefaultRoot           = "/dshard/counters"
	DefaultSessionTimeout = 5 * time.Second
)

// Options configure the connection to the ZooKeeper ensemble
type Options struct {
	Servers        []string      // e.g. ["zk1:2181", "zk2:2181"]
	Root           string        // parent znode of all counters
	SessionTimeout time.Duration // zk session timeout
}

// Counter is a storage.Counter stored in ZooKeeper
type Counter struct {
	conn   *zk.Conn
	root   string
	closed atomic.Bool
}

// zkLogger routes the zk client log through the dragonboat logger
type zkLogger struct {
	l logger.ILogger
}

func (z zkLogger) Printf(format string, args ...any) {
	z.l.Debugf(format, args...)
}

// Connect connects to ZooKeeper, waits for a session and creates the root node.
func Connect(ctx context.Context, opts Options) (*Counter, error) {
	if len(opts.Servers) == 0 {
		return nil, storage.NewError(storage.RetCInvalidOperation, "no zookeeper servers given")
	}
	if opts.Root == "" {
		opts.Root = DefaultRoot
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = DefaultSessionTimeout
	}
	root := "/" + strings.Trim(opts.Root, "/")

	conn, _, err := zk.Connect(opts.Servers, opts.SessionTimeout, zk.WithLogger(zkLogger{l: log}))
	if err != nil {
		return nil, storage.Errorf(storage.RetCUnavailable, "zk connect: %v", err)
	}

	c := &Counter{conn: conn, root: root}
	if err := c.waitConnected(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	if err := c.ensurePath(root); err != nil {
		conn.Close()
		return nil, classify(err, "ensure root "+root)
	}

	log.Infof("connected to zookeeper %s, counters at %s", strings.Join(opts.Servers, ","), root)
	return c, nil
}

func (c *Counter) waitConnected(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		st := c.conn.State()
		if st == zk.StateConnected || st == zk.StateHasSession {
			return nil
		}
		select {
		case <-ctx.Done():
			return storage.Errorf(storage.RetCUnavailable, "zk: not connected (state=%v): %v", st, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Counter) ensurePath(path string) error {
	cur := ""
	for _, p := range strings.Split(path, "/") {
		if p == "" {
			continue
		}
		cur = cur + "/" + p
		exists, _, err := c.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			_, err = c.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
			if err != nil && !errors.Is(err, zk.ErrNodeExists) {
				return err
			}
		}
	}
	return nil
}

func (c *Counter) nodePath(name string) (string, error) {
	if name == "" || strings.Contains(name, "/") {
		return "", storage.Errorf(storage.RetCInvalidOperation, "invalid counter name %q", name)
	}
	return c.root + "/" + name, nil
}

func (c *Counter) checkOpen(ctx context.Context) error {
	if c.closed.Load() {
		return storage.NewError(storage.RetCUnavailable, "zk counter is closed")
	}
	if err := ctx.Err(); err != nil {
		return storage.Errorf(storage.RetCUnavailable, "zk: %v", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see storage/interface.go)
// --------------------------------------------------------------------------

func (c *Counter) IncrementAndGetCounter(ctx context.Context, name string) (uint64, error) {
	if err := c.checkOpen(ctx); err != nil {
		return 0, err
	}
	path, err := c.nodePath(name)
	if err != nil {
		return 0, err
	}

	for conflicts := 0; ; conflicts++ {
		if err := c.checkOpen(ctx); err != nil {
			return 0, err
		}

		data, stat, err := c.conn.Get(path)
		if errors.Is(err, zk.ErrNoNode) {
			_, err = c.conn.Create(path, formatValue(1), 0, zk.WorldACL(zk.PermAll))
			if err == nil {
				return 1, nil
			}
			if errors.Is(err, zk.ErrNodeExists) {
				continue
			}
			return 0, classify(err, "create counter "+name)
		}
		if err != nil {
			return 0, classify(err, "read counter "+name)
		}

		value, err := parseValue(data)
		if err != nil {
			return 0, storage.Errorf(storage.RetCInternalError, "counter %s: %v", name, err)
		}

		next := value + 1
		_, err = c.conn.Set(path, formatValue(next), stat.Version)
		if errors.Is(err, zk.ErrBadVersion) {
			log.Debugf("counter %s: version conflict (%d), retrying", name, conflicts+1)
			continue
		}
		if err != nil {
			return 0, classify(err, "write counter "+name)
		}
		return next, nil
	}
}

func (c *Counter) PeekCounter(ctx context.Context, name string) (uint64, bool, error) {
	if err := c.checkOpen(ctx); err != nil {
		return 0, false, err
	}
	path, err := c.nodePath(name)
	if err != nil {
		return 0, false, err
	}

	data, _, err := c.conn.Get(path)
	if errors.Is(err, zk.ErrNoNode) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, classify(err, "read counter "+name)
	}
	value, err := parseValue(data)
	if err != nil {
		return 0, false, storage.Errorf(storage.RetCInternalError, "counter %s: %v", name, err)
	}
	return value, true, nil
}

// Close closes the zk session.
func (c *Counter) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.conn.Close()
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func formatValue(v uint64) []byte {
	return []byte(strconv.FormatUint(v, 10))
}

func parseValue(data []byte) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid counter value %q: %w", data, err)
	}
	return v, nil
}

// classify maps zk client errors to storage errors
func classify(err error, op string) error {
	code := storage.RetCInternalError
	switch {
	case errors.Is(err, zk.ErrNoServer),
		errors.Is(err, zk.ErrConnectionClosed),
		errors.Is(err, zk.ErrSessionExpired),
		errors.Is(err, zk.ErrSessionMoved),
		errors.Is(err, zk.ErrClosing):
		code = storage.RetCUnavailable
	}
	return storage.Errorf(code, "%s: %v", op, err)
}
