// Package logging provides the dShard log format on top of the dragonboat
// logger registry. Every package obtains its logger with logger.GetLogger
// and the CLI installs the factory once at startup via InitLoggers.
package logging

import (
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"log"
	"os"
	"strings"
)

// Names of the loggers used by the dShard packages.
const (
	LoggerIDAlloc = "idalloc"
	LoggerShard   = "shard"
	LoggerEntity  = "entity"
	LoggerStorage = "storage"
	LoggerCLI     = "cli"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// dShardLogger implements the ILogger interface with custom formatting
type dShardLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *dShardLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *dShardLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *dShardLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *dShardLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *dShardLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *dShardLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

func (l *dShardLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-10s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// output is where all loggers created by CreateLogger write to.
// Logs go to stderr so that command output on stdout stays machine readable.
var output io.Writer = os.Stderr

// CreateLogger creates a logger for the given package name (logger.Factory).
func CreateLogger(pkgName string) logger.ILogger {
	return &dShardLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: log.New(output, "", log.Ldate|log.Ltime),
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// InitLoggers installs the custom logger factory and sets the level of all dShard loggers.
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	logger.SetLoggerFactory(CreateLogger)

	for _, name := range []string{LoggerIDAlloc, LoggerShard, LoggerEntity, LoggerStorage, LoggerCLI} {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
