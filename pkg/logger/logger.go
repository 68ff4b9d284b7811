// Package logger wraps zap with request-aware helpers. Every line written
// through a context carries the trace, request and acting user of that
// context.
package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appctx "stockledger/internal/core/context"
)

// Logger is a sugared zap logger.
type Logger struct {
	*zap.SugaredLogger
}

// Config selects level and encoding.
type Config struct {
	Level       string // debug, info, warn, error; unknown values mean info
	Development bool   // console encoding with colors
	OutputPaths []string
	Service     string // added to every line when set
}

// New builds a logger from cfg.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}
	if cfg.Service != "" {
		zc.InitialFields = map[string]any{"service": cfg.Service}
	}

	// Skip the package-level helpers so callers show up as the source.
	zl, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{zl.Sugar()}, nil
}

var defaultLogger = sync.OnceValue(func() *Logger {
	l, err := New(Config{Level: "info", OutputPaths: []string{"stdout"}})
	if err != nil {
		return &Logger{zap.NewNop().Sugar()}
	}
	return l
})

// Default returns the process-wide fallback logger.
func Default() *Logger {
	return defaultLogger()
}

// WithContext returns a child logger carrying the trace and user of ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var fields []any
	if t := appctx.GetTrace(ctx); t != nil {
		fields = append(fields, "trace_id", t.TraceID)
		if t.RequestID != "" {
			fields = append(fields, "request_id", t.RequestID)
		}
	}
	if u := appctx.GetUser(ctx); u != nil {
		fields = append(fields, "user_id", u.UserID)
		if u.SessionID != "" {
			fields = append(fields, "session_id", u.SessionID)
		}
	}
	if len(fields) == 0 {
		return l
	}
	return &Logger{l.SugaredLogger.With(fields...)}
}

// With adds key-value pairs to logger.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{l.SugaredLogger.With(keysAndValues...)}
}

// WithComponent tags lines with the subsystem that wrote them.
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

type loggerKey struct{}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or Default, enriched with
// the trace and user of ctx.
func FromContext(ctx context.Context) *Logger {
	l, ok := ctx.Value(loggerKey{}).(*Logger)
	if !ok {
		l = Default()
	}
	return l.WithContext(ctx)
}

func Debug(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Debugw(msg, keysAndValues...)
}

func Info(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Infow(msg, keysAndValues...)
}

func Warn(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Warnw(msg, keysAndValues...)
}

func Error(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Errorw(msg, keysAndValues...)
}

// Fatal logs and terminates the process.
func Fatal(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Fatalw(msg, keysAndValues...)
}
