package logger_i

import (
	"log/slog"
	"os"
)

type Logger struct {
	inner *slog.Logger
}

// Init installs the process-wide handler. JSON output in prod so the log
// shipper can parse it, plain text locally.
func Init(isProd bool, level slog.Level) {
	options := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if isProd {
		handler = slog.NewJSONHandler(os.Stdout, options)
	} else {
		handler = slog.NewTextHandler(os.Stdout, options)
	}
	slog.SetDefault(slog.New(handler))
}

func NewLogger(section string) *Logger {
	return &Logger{
		inner: slog.Default().With("component", section),
	}
}

func (l *Logger) Info(msg string, args ...any) {
	l.inner.Info(msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.inner.Error(msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.inner.Warn(msg, args...)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.inner.Debug(msg, args...)
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		inner: l.inner.With(args...),
	}
}
