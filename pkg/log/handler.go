package log

import (
	"context"
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"
)

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}

// ErrFmtHandler is a slog handler to format stacktrace from cockroachdb/errors.
type ErrFmtHandler struct {
	handler slog.Handler
}

// WrapByErrFmtHandler function wraps the standard slog handler.
// This function returns the slog handler which emits logs with a stacktrace attribute.
func WrapByErrFmtHandler(handler slog.Handler) slog.Handler {
	return &ErrFmtHandler{
		handler: handler,
	}
}

func (eh *ErrFmtHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return eh.handler.Enabled(ctx, l)
}

func (eh *ErrFmtHandler) Handle(ctx context.Context, r slog.Record) error {
	var stacktrace string
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key == ErrAttrKey {
			if err, ok := attr.Value.Any().(error); ok {
				stacktrace = extractStacktrace(err)
			}
			return false
		}
		return true
	})
	if stacktrace != "" {
		r.AddAttrs(slog.String(StacktraceAttrKey, stacktrace))
	}
	return eh.handler.Handle(ctx, r)
}

func (eh *ErrFmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithAttrs(attrs)}
}

func (eh *ErrFmtHandler) WithGroup(g string) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithGroup(g)}
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}

// slogLogger adapts a slog.Handler to Logger so embedders that already run
// log/slog can receive pipeline records.
type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger returns a Logger writing through h. Errors passed as the
// first field get a stacktrace attribute via ErrFmtHandler.
func NewSlogLogger(h slog.Handler) Logger {
	return &slogLogger{l: slog.New(WrapByErrFmtHandler(h))}
}

// SlogProvider is a LoggerProvider writing log/slog text records.
type SlogProvider struct {
	level *slog.LevelVar
	l     Logger
}

// NewSlogProvider returns a provider writing to w at level and above.
func NewSlogProvider(w io.Writer, level Level) *SlogProvider {
	lv := new(slog.LevelVar)
	lv.Set(slog.Level(level))
	return &SlogProvider{
		level: lv,
		l:     NewSlogLogger(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})),
	}
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *SlogProvider) GetLogger() Logger { return p.l }

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *SlogProvider) GetLoggerWithName(name string) Logger {
	return p.l.With(ComponentKey, name)
}

// SetLevel implements LoggerProvider.SetLevel. It also applies to loggers
// already handed out.
func (p *SlogProvider) SetLevel(level Level) { p.level.Set(slog.Level(level)) }

func (s *slogLogger) Debug(msg string, fields ...any) { s.l.Debug(msg, slogArgs(fields)...) }
func (s *slogLogger) Info(msg string, fields ...any)  { s.l.Info(msg, slogArgs(fields)...) }
func (s *slogLogger) Warn(msg string, fields ...any)  { s.l.Warn(msg, slogArgs(fields)...) }
func (s *slogLogger) Error(msg string, fields ...any) { s.l.Error(msg, slogArgs(fields)...) }

func (s *slogLogger) With(fields ...any) Logger {
	return &slogLogger{l: s.l.With(fields...)}
}

func (s *slogLogger) Enabled(ctx context.Context, level Level) bool {
	return s.l.Enabled(ctx, slog.Level(level))
}

func slogArgs(fields []any) []any {
	if len(fields) == 0 {
		return fields
	}
	if err, ok := fields[0].(error); ok {
		args := make([]any, 0, len(fields))
		args = append(args, ErrAttr(err))
		return append(args, fields[1:]...)
	}
	return fields
}
