// Package logging provides component loggers for vigil. Every logger writes
// to a rotating log file; console output on stderr is optional and runs at
// its own level.
//
// Basic usage:
//
//	if err := logging.Init(logging.DefaultConfig()); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logger := logging.Get("reconciler")
//	logger.Info("manifest saved", "path", "/srv/hashes.json")
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level is the minimum severity a sink accepts.
type Level int

// Levels, in increasing severity.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the lower-case name used in config files.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) charm() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel reports a level name ParseLevel does not know.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel is case-insensitive; an empty string means info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

// Config mirrors the logging section of the vigil config file.
type Config struct {
	// Level is the default file log level (debug, info, warn, error).
	Level string

	// Path defaults to DefaultLogPath() when empty.
	Path string

	// Rotation applies to the file sink only.
	Rotation RotationConfig

	// Components maps component names to level overrides.
	Components map[string]string

	// ConsoleLevel enables console output at the given level.
	// Empty disables console output.
	ConsoleLevel string

	// Console is where console output goes. Defaults to os.Stderr.
	Console io.Writer

	// TUIMode suppresses console output while the progress view owns the
	// terminal.
	TUIMode bool
}

// Logger is a component logger.
type Logger struct {
	file      *log.Logger
	console   *log.Logger
	component string
}

// Component returns the component name the logger was created for.
func (l *Logger) Component() string {
	return l.component
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	emit(l.file, level, msg, args...)
	if l.console != nil {
		emit(l.console, level, msg, args...)
	}
}

func emit(logger *log.Logger, level Level, msg string, args ...interface{}) {
	switch level {
	case LevelDebug:
		logger.Debug(msg, args...)
	case LevelInfo:
		logger.Info(msg, args...)
	case LevelWarn:
		logger.Warn(msg, args...)
	case LevelError:
		logger.Error(msg, args...)
	}
}

// With returns a logger that adds args to every entry.
func (l *Logger) With(args ...interface{}) *Logger {
	out := &Logger{
		file:      l.file.With(args...),
		component: l.component,
	}
	if l.console != nil {
		out.console = l.console.With(args...)
	}
	return out
}

type state struct {
	mu          sync.RWMutex
	initialized bool
	writer      *RotatingWriter
	level       Level
	components  map[string]Level
	loggers     map[string]*Logger

	console      io.Writer
	consoleLevel Level
}

var global = &state{
	loggers:    make(map[string]*Logger),
	components: make(map[string]Level),
}

// Init configures the logging system. Loggers obtained before Init discard
// their output; they are rebuilt when Init runs.
func Init(cfg Config) error {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.initialized && global.writer != nil {
		if err := global.writer.Close(); err != nil {
			return fmt.Errorf("closing existing writer: %w", err)
		}
		global.writer = nil
		global.initialized = false
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	components := make(map[string]Level, len(cfg.Components))
	for comp, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		components[comp] = parsed
	}

	var (
		console      io.Writer
		consoleLevel Level
	)
	if cfg.ConsoleLevel != "" && !cfg.TUIMode {
		consoleLevel, err = ParseLevel(cfg.ConsoleLevel)
		if err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
		console = cfg.Console
		if console == nil {
			console = os.Stderr
		}
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}
	writer, err := NewRotatingWriter(path, cfg.Rotation)
	if err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}

	global.level = level
	global.components = components
	global.console = console
	global.consoleLevel = consoleLevel
	global.writer = writer
	global.initialized = true

	for component := range global.loggers {
		global.loggers[component] = newLogger(component)
	}
	return nil
}

// Get returns the logger for component, creating it on first use.
func Get(component string) *Logger {
	global.mu.RLock()
	if logger, ok := global.loggers[component]; ok {
		global.mu.RUnlock()
		return logger
	}
	global.mu.RUnlock()

	global.mu.Lock()
	defer global.mu.Unlock()
	if logger, ok := global.loggers[component]; ok {
		return logger
	}
	logger := newLogger(component)
	global.loggers[component] = logger
	return logger
}

// newLogger must be called with global.mu held.
func newLogger(component string) *Logger {
	level := global.level
	if override, ok := global.components[component]; ok {
		level = override
	}

	if !global.initialized {
		return &Logger{
			file:      log.NewWithOptions(io.Discard, log.Options{Level: level.charm(), Prefix: component}),
			component: component,
		}
	}

	logger := &Logger{
		file: log.NewWithOptions(global.writer, log.Options{
			Level:           level.charm(),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          component,
		}),
		component: component,
	}
	if global.console != nil {
		logger.console = log.NewWithOptions(global.console, log.Options{
			Level:           global.consoleLevel.charm(),
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Prefix:          component,
		})
	}
	return logger
}

// Close flushes and closes the log file. Loggers obtained afterwards
// discard their output until Init is called again.
func Close() error {
	global.mu.Lock()
	defer global.mu.Unlock()

	if !global.initialized {
		return nil
	}

	var err error
	if global.writer != nil {
		if cerr := global.writer.Close(); cerr != nil {
			err = fmt.Errorf("closing log writer: %w", cerr)
		}
		global.writer = nil
	}
	global.initialized = false
	global.console = nil
	global.loggers = make(map[string]*Logger)
	global.components = make(map[string]Level)
	return err
}

// DefaultLogPath returns $XDG_STATE_HOME/vigil/vigil.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "vigil", "vigil.log")
}

// DefaultConfig logs at info to DefaultLogPath with the default rotation.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}
