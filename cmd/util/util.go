package util

import (
	"strings"

	"github.com/ValentinKolb/dShard/lib/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupConfigFlags adds the configuration flags to a command
func SetupConfigFlags(cmd *cobra.Command) {
	d := config.Default()

	key := "max-shard-cap"
	cmd.PersistentFlags().Int(key, d.MaxShardCap, WrapString("Upper bound (exclusive) for shard indices"))

	key = "entities"
	cmd.PersistentFlags().String(key, "", WrapString("Path to a YAML file with entity definitions. Without it the built-in User entity (10 shards, username, email) is used"))

	key = "backend"
	cmd.PersistentFlags().String(key, string(d.Backend), WrapString("Storage backend (memory, sqlite, postgres, mysql)"))

	key = "dsn"
	cmd.PersistentFlags().String(key, d.DSN, WrapString("Data source name of the backend. For sqlite the database file, for memory the snapshot file (empty = volatile)"))

	key = "counter"
	cmd.PersistentFlags().String(key, string(d.Counter), WrapString("Where the global id counter lives (backend, zookeeper)"))

	key = "counter-name"
	cmd.PersistentFlags().String(key, d.CounterName, WrapString("Name of the global id counter"))

	key = "zk-servers"
	cmd.PersistentFlags().String(key, strings.Join(d.ZKServers, ","), WrapString("Comma-separated list of ZooKeeper servers (only for --counter=zookeeper)"))

	key = "zk-root"
	cmd.PersistentFlags().String(key, d.ZKRoot, WrapString("Parent znode of the counters (only for --counter=zookeeper)"))

	key = "zk-timeout"
	cmd.PersistentFlags().Int(key, d.ZKTimeoutMilli, WrapString("ZooKeeper session timeout in milliseconds"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, d.TimeoutSecond, WrapString("The timeout in seconds of a single operation"))

	key = "log-level"
	cmd.PersistentFlags().String(key, d.LogLevel, WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dshard")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetConfig reads the configuration from viper
func GetConfig() config.Config {
	var servers []string
	for _, s := range strings.Split(viper.GetString("zk-servers"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			servers = append(servers, s)
		}
	}

	return config.Config{
		MaxShardCap:    viper.GetInt("max-shard-cap"),
		EntitiesFile:   viper.GetString("entities"),
		Backend:        config.BackendType(strings.ToLower(viper.GetString("backend"))),
		DSN:            viper.GetString("dsn"),
		Counter:        config.CounterType(strings.ToLower(viper.GetString("counter"))),
		CounterName:    viper.GetString("counter-name"),
		ZKServers:      servers,
		ZKRoot:         viper.GetString("zk-root"),
		ZKTimeoutMilli: viper.GetInt("zk-timeout"),
		TimeoutSecond:  viper.GetInt("timeout"),
		LogLevel:       viper.GetString("log-level"),
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
