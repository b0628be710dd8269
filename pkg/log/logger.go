package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// Config holds logging configuration for the zerolog backend.
type Config struct {
	// Level is the minimum level: debug, info, warn, error. Default: info
	Level string

	// Format is json or console. Default: json (text is served by SlogProvider)
	Format string

	// Caller includes caller file and line number.
	Caller bool

	// Output is the destination writer. Default: os.Stderr
	Output io.Writer
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: os.Stderr,
	}
}

var (
	providerMu sync.RWMutex
	provider   LoggerProvider = NewZerologProvider(DefaultConfig())
)

// GetLogger returns the default logger of the global provider.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLogger()
}

// GetLoggerWithName returns a logger tagged with the given component name.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLoggerWithName(name)
}

// SetProvider replaces the global provider and returns a function restoring
// the previous one.
func SetProvider(p LoggerProvider) (restore func()) {
	providerMu.Lock()
	defer providerMu.Unlock()
	prev := provider
	provider = p
	return func() {
		providerMu.Lock()
		defer providerMu.Unlock()
		provider = prev
	}
}

// Output formats accepted by SetupLogger.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
	FormatText    = "text" // log/slog TextHandler
)

// SetupLogger configures the global provider on stderr and routes library
// warnings (errors.Warn) through it.
func SetupLogger(level, format string) error {
	return SetupLoggerTo(os.Stderr, level, format)
}

// SetupLoggerTo is SetupLogger writing to w. json and console use zerolog,
// text uses SlogProvider (a log/slog TextHandler wrapped by ErrFmtHandler).
func SetupLoggerTo(w io.Writer, level, format string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	switch format {
	case FormatText:
		p := NewSlogProvider(w, lvl)
		SetProvider(p)
		warnLogger := p.GetLoggerWithName("warnings")
		errors.SetZerologWarnFunc(func(warning error) {
			warnLogger.Warn(warning.Error())
		})
		return nil
	case FormatJSON, FormatConsole, "":
	default:
		return errors.NewValidationError("log_format", "must be one of json, console, text", format)
	}

	cfg := DefaultConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.Output = w
	p := NewZerologProvider(cfg)
	SetProvider(p)

	warnLogger := p.base.With().Str(ComponentKey, "warnings").Logger()
	errors.SetZerologWarnFunc(func(w error) {
		ev := warnLogger.Warn()
		if m, ok := w.(zerolog.LogObjectMarshaler); ok {
			ev = ev.EmbedObject(m)
		}
		ev.Msg(w.Error())
	})
	return nil
}

// ParseLevel converts a level name to a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.NewValidationError("log_level", "must be one of debug, info, warn, error", level)
	}
}

func toZerologLevel(l Level) zerolog.Level {
	switch {
	case l <= LevelDebug:
		return zerolog.DebugLevel
	case l <= LevelInfo:
		return zerolog.InfoLevel
	case l <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// ZerologProvider is the default LoggerProvider.
type ZerologProvider struct {
	mu   sync.RWMutex
	base zerolog.Logger
}

// NewZerologProvider builds a provider writing JSON (or console) lines.
func NewZerologProvider(cfg Config) *ZerologProvider {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = LevelInfo
	}

	zctx := zerolog.New(out).Level(toZerologLevel(level)).With().Timestamp()
	if cfg.Caller {
		zctx = zctx.Caller()
	}
	return &ZerologProvider{base: zctx.Logger()}
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *ZerologProvider) GetLogger() Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &zerologLogger{zl: p.base}
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &zerologLogger{zl: p.base.With().Str(ComponentKey, name).Logger()}
}

// SetLevel implements LoggerProvider.SetLevel. Loggers already handed out keep
// their level.
func (p *ZerologProvider) SetLevel(level Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = p.base.Level(toZerologLevel(level))
}

type zerologLogger struct {
	zl zerolog.Logger
}

func (l *zerologLogger) Debug(msg string, fields ...any) { emit(l.zl.Debug(), msg, fields) }
func (l *zerologLogger) Info(msg string, fields ...any)  { emit(l.zl.Info(), msg, fields) }
func (l *zerologLogger) Warn(msg string, fields ...any)  { emit(l.zl.Warn(), msg, fields) }
func (l *zerologLogger) Error(msg string, fields ...any) { emit(l.zl.Error(), msg, fields) }

func (l *zerologLogger) With(fields ...any) Logger {
	zctx := l.zl.With()
	for i := 0; i < len(fields); i += 2 {
		key, val := pairAt(fields, i)
		zctx = zctx.Interface(key, val)
	}
	return &zerologLogger{zl: zctx.Logger()}
}

func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	zl := toZerologLevel(level)
	return zl >= l.zl.GetLevel() && zl >= zerolog.GlobalLevel()
}

// emit writes fields onto e. A nil event means the level is disabled.
func emit(e *zerolog.Event, msg string, fields []any) {
	if e == nil {
		return
	}
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			e = e.Err(err)
			if st := extractStacktrace(err); st != "" {
				e = e.Str(StacktraceAttrKey, st)
			}
			fields = fields[1:]
		}
	}
	for i := 0; i < len(fields); i += 2 {
		key, val := pairAt(fields, i)
		switch v := val.(type) {
		case error:
			e = e.AnErr(key, v)
		case zerolog.LogObjectMarshaler:
			e = e.Object(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}

// pairAt returns the key/value pair starting at i. A dangling key is logged
// under !BADKEY like slog does.
func pairAt(fields []any, i int) (string, any) {
	if i+1 >= len(fields) {
		return "!BADKEY", fields[i]
	}
	return fmt.Sprint(fields[i]), fields[i+1]
}
