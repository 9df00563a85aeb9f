// Package logging configures the process-wide slog logger used by the
// inference client and hands out per-component child loggers.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component names accepted by Config.Components.
const (
	ComponentTransport = "transport"
	ComponentSession   = "session"
	ComponentHeartbeat = "heartbeat"
	ComponentHTTP      = "http"
	ComponentCLI       = "cli"
)

var (
	mu     sync.RWMutex
	logger *slog.Logger

	// out is the rotating file writer, kept for Close.
	out   io.WriteCloser
	outMu sync.Mutex

	filter componentSet
)

// RotationConfig controls file output rotation.
type RotationConfig struct {
	// Path of the log file. Empty disables file output.
	Path string
	// MaxSizeMB before the file is rotated. Default: 10
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept. Default: 3
	MaxBackups int
	// Compress rotated files.
	Compress bool
}

// Config holds logging configuration.
type Config struct {
	// Level for console output: debug, info, warn or error.
	Level string
	// FileLevel for file output. Defaults to Level.
	FileLevel string
	// File enables rotated file output in addition to stderr.
	File *RotationConfig
	// JSON switches both outputs to JSON.
	JSON bool
	// Components restricts output to the named components. Empty means all.
	Components []string
	// Console overrides stderr, mainly for tests.
	Console io.Writer
}

// Initialize builds the global logger from cfg and installs it as the slog
// default.
func Initialize(cfg Config) error {
	consoleLevel := ParseLevel(cfg.Level)
	fileLevel := consoleLevel
	if cfg.FileLevel != "" {
		fileLevel = ParseLevel(cfg.FileLevel)
	}
	filter.set(cfg.Components)

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	newHandler := func(w io.Writer, level slog.Level) slog.Handler {
		opts := &slog.HandlerOptions{Level: level}
		if cfg.JSON {
			return slog.NewJSONHandler(w, opts)
		}
		return slog.NewTextHandler(w, opts)
	}

	outMu.Lock()
	defer outMu.Unlock()

	var handler slog.Handler
	if cfg.File != nil && cfg.File.Path != "" {
		rotating := newRotatingWriter(*cfg.File)
		if out != nil {
			_ = out.Close()
		}
		out = rotating
		if fileLevel == consoleLevel {
			handler = newHandler(io.MultiWriter(console, rotating), consoleLevel)
		} else {
			handler = fanout{newHandler(console, consoleLevel), newHandler(rotating, fileLevel)}
		}
	} else {
		handler = newHandler(console, consoleLevel)
	}

	l := slog.New(handler)
	mu.Lock()
	logger = l
	mu.Unlock()
	slog.SetDefault(l)
	return nil
}

func newRotatingWriter(cfg RotationConfig) *lumberjack.Logger {
	size := cfg.MaxSizeMB
	if size <= 0 {
		size = 10
	}
	backups := cfg.MaxBackups
	if backups <= 0 {
		backups = 3
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    size,
		MaxBackups: backups,
		Compress:   cfg.Compress,
	}
}

// Get returns the global logger, or slog.Default before Initialize.
func Get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// Close releases the log file, if any.
func Close() error {
	outMu.Lock()
	defer outMu.Unlock()
	if out == nil {
		return nil
	}
	err := out.Close()
	out = nil
	return err
}

// ParseLevel maps a level name to a slog.Level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SplitComponents parses a comma separated component list.
func SplitComponents(s string) []string {
	var components []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			components = append(components, c)
		}
	}
	return components
}

// WithComponent returns a logger tagged with component. When component
// filtering is active and the component is not listed, the logger discards
// everything.
func WithComponent(component string) *slog.Logger {
	base := Get().Handler().WithAttrs([]slog.Attr{slog.String("component", component)})
	return slog.New(&componentHandler{inner: base, component: component})
}

// Transport returns the logger for websocket transport events.
func Transport() *slog.Logger { return WithComponent(ComponentTransport) }

// Session returns the logger for session driver events.
func Session() *slog.Logger { return WithComponent(ComponentSession) }

// Heartbeat returns the logger for keep-alive pings.
func Heartbeat() *slog.Logger { return WithComponent(ComponentHeartbeat) }

// HTTP returns the logger for one-shot API calls.
func HTTP() *slog.Logger { return WithComponent(ComponentHTTP) }

// CLI returns the logger for command line tooling.
func CLI() *slog.Logger { return WithComponent(ComponentCLI) }

// WithTask returns a child logger that tags every record with task_id.
func WithTask(base *slog.Logger, taskID string) *slog.Logger {
	if base == nil {
		return nil
	}
	return base.With("task_id", taskID)
}

// OrDefault returns l, or the component logger when l is nil.
func OrDefault(l *slog.Logger, component string) *slog.Logger {
	if l != nil {
		return l
	}
	return WithComponent(component)
}
