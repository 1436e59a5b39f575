// Package log provides named, leveled module loggers shared by every engine package.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/op/go-logging"
)

// Level controls which messages reach the sink.
type Level int

const (
	Debug Level = iota
	Info
	Notice
	Warning
	Error
)

var (
	format = logging.MustStringFormatter(
		`%{color}[%{time:15:04:05.000}] [%{module}] [%{level:.4s}]%{color:reset} %{message}`,
	)

	mu             sync.Mutex
	leveledBackend logging.LeveledBackend
	currentLevel   = Notice
)

// Logger is the logging surface used across the engine.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Notice(args ...interface{})
	Noticef(format string, args ...interface{})
	Warning(args ...interface{})
	Warningf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
}

// New returns a logger tagged with the given module name.
//
// Parameters:
//   - module: the module name printed with every message
//
// Returns:
//   - Logger: the module logger
func New(module string) Logger {
	return logging.MustGetLogger(module)
}

// SetSink redirects all log output to the given writer, keeping the current level.
//
// Parameters:
//   - sink: the destination writer
func SetSink(sink io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	backend := logging.NewLogBackend(sink, "", 0)
	formatted := logging.NewBackendFormatter(backend, format)
	leveledBackend = logging.AddModuleLevel(formatted)
	leveledBackend.SetLevel(toLogging(currentLevel), "")
	logging.SetBackend(leveledBackend)
}

// SetLevel sets the minimum level for all modules.
//
// Parameters:
//   - level: the minimum level to emit
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()

	currentLevel = level
	leveledBackend.SetLevel(toLogging(level), "")
}

// ParseLevel converts a level name (debug, info, notice, warning, error) to a Level.
// Unknown names map to Notice.
//
// Parameters:
//   - name: the level name
//
// Returns:
//   - Level: the parsed level
func ParseLevel(name string) Level {
	l, err := logging.LogLevel(name)
	if err != nil {
		return Notice
	}
	switch l {
	case logging.DEBUG:
		return Debug
	case logging.INFO:
		return Info
	case logging.WARNING:
		return Warning
	case logging.ERROR, logging.CRITICAL:
		return Error
	default:
		return Notice
	}
}

func toLogging(level Level) logging.Level {
	switch level {
	case Debug:
		return logging.DEBUG
	case Info:
		return logging.INFO
	case Warning:
		return logging.WARNING
	case Error:
		return logging.ERROR
	default:
		return logging.NOTICE
	}
}

func init() {
	SetSink(os.Stdout)
}
