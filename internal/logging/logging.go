// Package logging is the structured logger shared by the outagemap services.
// Records go through log/slog; callers pass typed fields instead of loose
// key/value pairs.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Field is one structured attribute of a record.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field        { return Field{key, value} }
func Int(key string, value int) Field       { return Field{key, value} }
func Float(key string, value float64) Field { return Field{key, value} }
func Any(key string, value any) Field       { return Field{key, value} }

// Err records err under "error". A nil error is logged as an empty string.
func Err(err error) Field {
	if err == nil {
		return Field{"error", ""}
	}
	return Field{"error", err.Error()}
}

// Logger writes leveled records. Implementations must be safe for concurrent
// use.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Config selects the level, encoding and destination of a logger.
type Config struct {
	Level     string    // debug, info, warn or error
	Format    string    // "json", anything else is text
	AddSource bool      // annotate records with file:line
	Output    io.Writer // stderr when nil
}

// New returns a slog-backed Logger.
func New(cfg Config) Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level), AddSource: cfg.AddSource}

	if strings.EqualFold(cfg.Format, "json") {
		return handlerLogger{h: slog.NewJSONHandler(out, opts)}
	}
	return handlerLogger{h: slog.NewTextHandler(out, opts)}
}

// NewFromEnv reads LOG_LEVEL and LOG_FORMAT.
func NewFromEnv() Logger {
	return New(Config{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")})
}

// Noop discards everything.
func Noop() Logger { return discard{} }

// ParseLevel maps a level name to a slog level. "warning" is accepted as
// warn; empty or unknown names mean info.
func ParseLevel(name string) slog.Level {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	// UnmarshalText also accepts offsets such as "info+2"; those are fine.
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

type handlerLogger struct {
	h slog.Handler
}

func (l handlerLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return handlerLogger{h: l.h.WithAttrs(attrs(fields))}
}

func (l handlerLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.emit(ctx, slog.LevelDebug, msg, fields)
}

func (l handlerLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.emit(ctx, slog.LevelInfo, msg, fields)
}

func (l handlerLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.emit(ctx, slog.LevelWarn, msg, fields)
}

func (l handlerLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.emit(ctx, slog.LevelError, msg, fields)
}

func (l handlerLogger) emit(ctx context.Context, level slog.Level, msg string, fields []Field) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.h.Enabled(ctx, level) {
		return
	}
	// skip runtime.Callers, emit and the level method
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.AddAttrs(attrs(fields)...)
	_ = l.h.Handle(ctx, r)
}

func attrs(fields []Field) []slog.Attr {
	out := make([]slog.Attr, len(fields))
	for i, f := range fields {
		out[i] = slog.Any(f.Key, f.Value)
	}
	return out
}

type discard struct{}

func (d discard) With(...Field) Logger                  { return d }
func (discard) Debug(context.Context, string, ...Field) {}
func (discard) Info(context.Context, string, ...Field)  {}
func (discard) Warn(context.Context, string, ...Field)  {}
func (discard) Error(context.Context, string, ...Field) {}

type requestIDKey struct{}

// ContextWithRequestID stores a request id in ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithRequestLogger returns ctx carrying a request id (a new UUID unless one
// is already present) and base annotated with it.
func WithRequestLogger(ctx context.Context, base Logger) (context.Context, Logger) {
	if ctx == nil {
		ctx = context.Background()
	}
	if base == nil {
		base = Noop()
	}
	id := RequestIDFromContext(ctx)
	if id == "" {
		id = uuid.NewString()
		ctx = ContextWithRequestID(ctx, id)
	}
	return ctx, base.With(String("request_id", id))
}
