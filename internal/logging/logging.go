// Package logging provides centralized logging configuration for carechat.
//
// Records are routed to the console and, optionally, to a rotated log file,
// each with its own minimum level. Loggers obtained from the component
// helpers (Session, Transport, Upload, CLI) carry a component attribute and
// can be silenced by Config.Components.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level for console output (debug, info, warn, error)
	Level string
	// FileLevel is the minimum log level for the log file. Defaults to Level.
	FileLevel string
	// File is the path of a rotated log file. Empty disables file logging.
	File string
	// MaxSizeMB is the size at which the log file is rotated. Default: 10MB
	MaxSizeMB int
	// MaxBackups is the number of rotated files to keep. Default: 3
	MaxBackups int
	// JSON enables JSON output format
	JSON bool
	// Components limits output to these components. Empty means all.
	Components []string
	// Console is where console output goes. Defaults to os.Stderr.
	Console io.Writer
}

var (
	mu      sync.RWMutex
	logger  *slog.Logger
	root    *router
	only    map[string]bool
	logFile io.Closer
)

// Initialize installs the global logger described by cfg, replacing (and
// closing) any previous log file.
func Initialize(cfg Config) error {
	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}
	consoleLevel := parseLevel(cfg.Level)
	fileLevel := consoleLevel
	if cfg.FileLevel != "" {
		fileLevel = parseLevel(cfg.FileLevel)
	}

	newHandler := func(w io.Writer) slog.Handler {
		// Levels are enforced per sink by the router.
		opts := &slog.HandlerOptions{Level: slog.LevelDebug}
		if cfg.JSON {
			return slog.NewJSONHandler(w, opts)
		}
		return slog.NewTextHandler(w, opts)
	}

	r := &router{sinks: []sink{{handler: newHandler(console), level: consoleLevel}}}
	var file *lumberjack.Logger
	if cfg.File != "" {
		file = rotatingFile(cfg)
		r.sinks = append(r.sinks, sink{handler: newHandler(file), level: fileLevel})
	}

	var filter map[string]bool
	if len(cfg.Components) > 0 {
		filter = make(map[string]bool, len(cfg.Components))
		for _, c := range cfg.Components {
			filter[c] = true
		}
	}

	mu.Lock()
	prev := logFile
	root = r
	only = filter
	logger = slog.New(r)
	if file != nil {
		logFile = file
	} else {
		logFile = nil
	}
	mu.Unlock()

	slog.SetDefault(slog.New(r))

	if prev != nil {
		if err := prev.Close(); err != nil {
			return fmt.Errorf("failed to close previous log file: %w", err)
		}
	}
	return nil
}

func rotatingFile(cfg Config) *lumberjack.Logger {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}
}

// Get returns the global logger, or slog.Default() before Initialize.
func Get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// Close closes the log file, if any.
func Close() error {
	mu.Lock()
	f := logFile
	logFile = nil
	mu.Unlock()

	if f == nil {
		return nil
	}
	return f.Close()
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type sink struct {
	handler slog.Handler
	level   slog.Level
}

// router hands each record to every sink whose level admits it. A router
// bound to a component drops everything while that component is filtered
// out; the filter is read per record so loggers created before Initialize
// follow later configuration.
type router struct {
	sinks     []sink
	component string
}

func (r *router) muted() bool {
	if r.component == "" {
		return false
	}
	mu.RLock()
	defer mu.RUnlock()
	return only != nil && !only[r.component]
}

func (r *router) Enabled(ctx context.Context, level slog.Level) bool {
	if r.muted() {
		return false
	}
	for _, s := range r.sinks {
		if level >= s.level && s.handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (r *router) Handle(ctx context.Context, rec slog.Record) error {
	if r.muted() {
		return nil
	}
	var errs []error
	for _, s := range r.sinks {
		if rec.Level >= s.level && s.handler.Enabled(ctx, rec.Level) {
			errs = append(errs, s.handler.Handle(ctx, rec.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (r *router) WithAttrs(attrs []slog.Attr) slog.Handler {
	return r.derive(r.component, func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (r *router) WithGroup(name string) slog.Handler {
	return r.derive(r.component, func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (r *router) derive(component string, fn func(slog.Handler) slog.Handler) *router {
	out := &router{sinks: make([]sink, len(r.sinks)), component: component}
	for i, s := range r.sinks {
		out.sinks[i] = sink{handler: fn(s.handler), level: s.level}
	}
	return out
}

// WithComponent returns a logger tagged with component. It is silent when
// Config.Components is set and does not list component.
func WithComponent(component string) *slog.Logger {
	mu.RLock()
	base := root
	mu.RUnlock()
	if base == nil {
		base = &router{sinks: []sink{{handler: slog.Default().Handler(), level: slog.LevelDebug}}}
	}
	attrs := []slog.Attr{slog.String("component", component)}
	return slog.New(base.derive(component, func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) }))
}

// Transport returns a logger for websocket connection events.
func Transport() *slog.Logger {
	return WithComponent("transport")
}

// Session returns a logger for session lifecycle events.
func Session() *slog.Logger {
	return WithComponent("session")
}

// Upload returns a logger for document uploads.
func Upload() *slog.Logger {
	return WithComponent("upload")
}

// CLI returns a logger for the command-line front end.
func CLI() *slog.Logger {
	return WithComponent("cli")
}

// WithIdentity returns a child logger that tags every record with the
// login role, identity and client ID.
func WithIdentity(base *slog.Logger, role, identity, clientID string) *slog.Logger {
	if base == nil {
		return nil
	}
	return base.With(
		"role", role,
		"identity", identity,
		"client_id", clientID,
	)
}
