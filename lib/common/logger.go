package common

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Leveled logger (dragonboat logger.ILogger)
// --------------------------------------------------------------------------

var levelTags = map[logger.LogLevel]string{
	logger.ERROR:   "ERROR",
	logger.WARNING: "WARN",
	logger.INFO:    "INFO",
	logger.DEBUG:   "DEBUG",
}

// moduleLogger writes "LEVEL | module | message" lines for one named module
type moduleLogger struct {
	module string
	level  logger.LogLevel
	out    *log.Logger
}

func (l *moduleLogger) SetLevel(level logger.LogLevel) { l.level = level }

func (l *moduleLogger) Debugf(format string, args ...any)   { l.logf(logger.DEBUG, format, args) }
func (l *moduleLogger) Infof(format string, args ...any)    { l.logf(logger.INFO, format, args) }
func (l *moduleLogger) Warningf(format string, args ...any) { l.logf(logger.WARNING, format, args) }
func (l *moduleLogger) Errorf(format string, args ...any)   { l.logf(logger.ERROR, format, args) }

// Panicf always panics, the level only decides whether the message is logged first
func (l *moduleLogger) Panicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if l.level >= logger.ERROR {
		l.out.Printf("%-5s | %-10s | %s", "PANIC", l.module, msg)
	}
	panic(msg)
}

func (l *moduleLogger) logf(level logger.LogLevel, format string, args []any) {
	if level > l.level {
		return
	}
	l.out.Printf("%-5s | %-10s | %s", levelTags[level], l.module, fmt.Sprintf(format, args...))
}

// CreateLogger is the logger.Factory of this module. Output goes to stderr
// so it never mixes with command output; the level starts at WARNING.
func CreateLogger(module string) logger.ILogger {
	return &moduleLogger{
		module: module,
		level:  logger.WARNING,
		out:    log.New(os.Stderr, "", log.Ldate|log.Ltime),
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel maps a flag value such as "warn" to a logger.LogLevel
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
		return 0, fmt.Errorf("unknown log level %q (expected debug, info, warn or error)", level)
	}
}

// Loggers lists the named loggers of this module
var Loggers = []string{"hashtrie", "epoch", "reference", "cli"}

// InitLoggers installs the custom logger factory and sets level on every
// logger of this module
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	logger.SetLoggerFactory(CreateLogger)
	for _, name := range Loggers {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
