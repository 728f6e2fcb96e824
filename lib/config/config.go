package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/dShard/lib/idalloc"
	"github.com/ValentinKolb/dShard/lib/idalloc/zkcounter"
	"github.com/ValentinKolb/dShard/lib/logging"
	"github.com/ValentinKolb/dShard/lib/schema"
	"github.com/ValentinKolb/dShard/lib/shard"
)

// BackendType selects the storage backend
type BackendType string

const (
	BackendMemory   BackendType = "memory"
	BackendSQLite   BackendType = "sqlite"
	BackendPostgres BackendType = "postgres"
	BackendMySQL    BackendType = "mysql"
)

// CounterType selects where the global id counter lives
type CounterType string

const (
	CounterBackend   CounterType = "backend"
	CounterZooKeeper CounterType = "zookeeper"
)

// Config holds all configuration parameters of a dShard process.
type Config struct {
	// Sharding
	MaxShardCap  int
	EntitiesFile string // YAML entity definitions ("" = built-in User entity)

	// Storage
	Backend BackendType
	DSN     string // connection string, file path for sqlite and memory snapshots

	// Id allocation
	Counter        CounterType
	CounterName    string
	ZKServers      []string
	ZKRoot         string
	ZKTimeoutMilli int

	// Operations
	TimeoutSecond int

	// Logging configuration
	LogLevel string
}

// Default returns the default configuration
func Default() Config {
	return Config{
		MaxShardCap:    shard.DefaultMaxShardCap,
		Backend:        BackendSQLite,
		DSN:            "dshard.db",
		Counter:        CounterBackend,
		CounterName:    idalloc.DefaultCounterName,
		ZKServers:      []string{"localhost:2181"},
		ZKRoot:         zkcounter.DefaultRoot,
		ZKTimeoutMilli: int(zkcounter.DefaultSessionTimeout / time.Millisecond),
		TimeoutSecond:  5,
		LogLevel:       "info",
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var problems []string
	addProblem := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.MaxShardCap < 1 {
		addProblem("max-shard-cap must be at least 1, got %d", c.MaxShardCap)
	}
	switch c.Backend {
	case BackendMemory:
	case BackendSQLite, BackendPostgres, BackendMySQL:
		if c.DSN == "" {
			addProblem("backend %s needs a dsn", c.Backend)
		}
	default:
		addProblem("unknown backend %q (expected memory, sqlite, postgres or mysql)", c.Backend)
	}
	switch c.Counter {
	case CounterBackend:
	case CounterZooKeeper:
		if len(c.ZKServers) == 0 {
			addProblem("counter zookeeper needs at least one zk server")
		}
	default:
		addProblem("unknown counter %q (expected backend or zookeeper)", c.Counter)
	}
	if c.CounterName == "" || strings.Contains(c.CounterName, "/") {
		addProblem("invalid counter name %q", c.CounterName)
	}
	if c.TimeoutSecond < 1 {
		addProblem("timeout must be at least 1 second, got %d", c.TimeoutSecond)
	}
	if _, err := logging.ParseLogLevel(c.LogLevel); err != nil {
		addProblem("%v", err)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Timeout returns the timeout of a single operation
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// Definitions returns the entity definitions from EntitiesFile or the built-in defaults
func (c *Config) Definitions() ([]schema.Definition, error) {
	if c.EntitiesFile == "" {
		return schema.DefaultDefinitions(), nil
	}
	defs, err := schema.LoadDefinitionsFile(c.EntitiesFile)
	if err != nil {
		return nil, fmt.Errorf("entities file %s: %w", c.EntitiesFile, err)
	}
	return defs, nil
}

// EntityTypes builds the configured entity types
func (c *Config) EntityTypes() ([]*schema.EntityType, error) {
	defs, err := c.Definitions()
	if err != nil {
		return nil, err
	}
	return schema.BuildAll(defs)
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Sharding")
	addField("Max Shard Cap", fmt.Sprintf("%d", c.MaxShardCap))
	if c.EntitiesFile == "" {
		addField("Entities", "built-in (User)")
	} else {
		addField("Entities", c.EntitiesFile)
	}

	addSection("Storage")
	addField("Backend", string(c.Backend))
	addField("DSN", redactDSN(c.DSN))

	addSection("Id Allocation")
	addField("Counter", string(c.Counter))
	addField("Counter Name", c.CounterName)
	if c.Counter == CounterZooKeeper {
		addField("ZooKeeper Servers", strings.Join(c.ZKServers, ","))
		addField("ZooKeeper Root", c.ZKRoot)
		addField("Session Timeout", fmt.Sprintf("%d ms", c.ZKTimeoutMilli))
	}

	addSection("Operations")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// redactDSN hides the password of URL style and mysql style DSNs
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	userInfo := dsn[:at]
	start := 0
	if i := strings.Index(userInfo, "://"); i >= 0 {
		start = i + 3
	}
	colon := strings.Index(userInfo[start:], ":")
	if colon < 0 {
		return dsn
	}
	return userInfo[:start+colon+1] + "****" + dsn[at:]
}
