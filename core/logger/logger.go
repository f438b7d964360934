package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/m3rciful/gatekeeper/core/buildinfo"
	coreconfig "github.com/m3rciful/gatekeeper/core/config"
)

// Component names used across the bot.
const (
	CompApp    = "app"
	CompTG     = "tg"
	CompWire   = "tg.wire"
	CompSender = "tg.sender"
	CompDB     = "db"
	CompMig    = "db.migrate"
	CompRouter = "router"
	CompVerify = "verify"
	CompGate   = "gate"
	CompStore  = "store"
)

var (
	initOnce  sync.Once
	closeOnce sync.Once

	out     *sink
	logFile *os.File

	levelVar slog.LevelVar
	sampler  atomic.Pointer[eventSampler]
	traceAll atomic.Bool

	// L is the base logger. It discards output until InitLogger runs so packages may log in tests.
	L = slog.New(slog.NewTextHandler(io.Discard, nil))
)

// InitLogger installs the structured logger described by cfg.Logging. Only the
// first call has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		var lc coreconfig.LoggingConfig
		if cfg != nil {
			lc = cfg.Logging
		}
		levelVar.Set(parseLevel(lc.Level))
		sampler.Store(newEventSampler(lc.DebugSample))
		traceAll.Store(truthy(os.Getenv("LOG_TRACE")))

		outputs := []io.Writer{os.Stdout}
		if path := strings.TrimSpace(lc.File); path != "" {
			if logFile, err = openLogFile(path); err != nil {
				return
			}
			outputs = append(outputs, logFile)
		}
		out = newSink(outputs...)

		L = slog.New(&handler{level: &levelVar, out: out, format: parseFormat(lc.Format)})
		slog.SetDefault(L)
		logStartup(cfg)
	})
	return err
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return f, nil
}

func logStartup(cfg *coreconfig.Config) {
	attrs := []slog.Attr{
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", buildinfo.Version),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
		slog.String("log_level", levelVar.Level().String()),
	}
	if cfg != nil {
		attrs = append(attrs,
			slog.String("storage", cfg.Storage.Driver),
			slog.Int("debug_sample", max(cfg.Logging.DebugSample, 1)),
		)
	}
	Info(context.Background(), CompApp, "startup", attrs...)
}

// Shutdown flushes queued lines and closes the log file.
func Shutdown() error {
	var err error
	closeOnce.Do(func() {
		if out != nil {
			err = out.Close()
		}
		if logFile != nil {
			err = errors.Join(err, logFile.Close())
		}
	})
	return err
}

func parseFormat(s string) logFormat {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return formatJSON
	}
	return formatKV
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// SampleDebug reports whether a high-volume debug event should be written
// now: debug must be enabled and event must pass the one-in-N sampler.
// LOG_TRACE disables sampling.
func SampleDebug(ctx context.Context, event string) bool {
	if !L.Enabled(ctx, slog.LevelDebug) {
		return false
	}
	return traceAll.Load() || sampler.Load().allow(event)
}

// Background returns context.Background().
func Background() context.Context {
	return context.Background()
}

// Component returns L scoped to the component name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// LogEvent writes an event record through logg, or the context logger when nil.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if !logg.Enabled(ctx, level) {
		return
	}
	logg.LogAttrs(ctx, level, event, attrs...)
}

// Debug logs a debug event for component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelDebug, event, attrs...)
}

// Info logs an info event for component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelInfo, event, attrs...)
}

// Warn logs a warning event for component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelWarn, event, attrs...)
}

// Error logs an error event for component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelError, event, attrs...)
}
