// Package logging provides structured logging with request-scoped context
// fields, wrapping logrus the way the rest of this codebase's ecosystem does.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextKey namespaces values stored on a request context.
type ContextKey string

const (
	TraceIDKey   ContextKey = "trace_id"
	PrincipalKey ContextKey = "principal"
)

// Logger wraps logrus.Logger with a fixed service name field.
type Logger struct {
	*logrus.Logger
	service string
}

// New builds a Logger with an explicit level/format, matching the teacher's
// level-then-format construction order.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}
	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv builds a Logger using LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext attaches trace id / principal fields carried on ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		entry = entry.WithField("trace_id", traceID)
	}
	if principal, ok := ctx.Value(PrincipalKey).(string); ok && principal != "" {
		entry = entry.WithField("principal", principal)
	}
	return entry
}

// WithFields attaches ad hoc fields alongside the service name.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError attaches an error field alongside the service name.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"service": l.service, "error": err.Error()})
}

// ContextWithTraceID returns a context carrying traceID for downstream logging.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// ContextWithPrincipal returns a context carrying the acting principal.
func ContextWithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}
