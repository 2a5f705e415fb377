package observability

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/masthead/pkg/contextkeys"
)

// Logger provides structured JSON logging on top of logrus
type Logger struct {
	entry *logrus.Entry
}

// NewLogger creates a new structured logger writing JSON lines to output
func NewLogger(level logrus.Level, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	base := logrus.New()
	base.SetOutput(output)
	base.SetLevel(level)
	base.SetFormatter(&logrus.JSONFormatter{})

	return &Logger{entry: logrus.NewEntry(base)}
}

// ParseLevel parses a level name, falling back to info
func ParseLevel(name string) logrus.Level {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// Level returns the configured level
func (l *Logger) Level() logrus.Level {
	return l.entry.Logger.GetLevel()
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithError adds an error to the logger context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{entry: l.entry.WithError(err)}
}

// Debug logs a debug message
func (l *Logger) Debug(message string) {
	l.entry.Debug(message)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Info logs an info message
func (l *Logger) Info(message string) {
	l.entry.Info(message)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(message string) {
	l.entry.Warn(message)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(message string) {
	l.entry.Error(message)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

var defaultLogger = NewLogger(logrus.InfoLevel, os.Stdout)

// Default returns the process-wide fallback logger
func Default() *Logger {
	return defaultLogger
}

// SetDefault replaces the process-wide fallback logger
func SetDefault(logger *Logger) {
	if logger != nil {
		defaultLogger = logger
	}
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return contextkeys.WithLogger(ctx, logger)
}

// GetLogger retrieves the logger from context
func GetLogger(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextkeys.LoggerKey).(*Logger); ok {
		return logger
	}
	return defaultLogger
}

// FromContext creates a logger carrying request, user and trace identifiers from context
func FromContext(ctx context.Context) *Logger {
	logger := GetLogger(ctx)

	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}

	if userID := contextkeys.GetUserID(ctx); userID != "" {
		logger = logger.WithField("user_id", userID)
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return logger
}
