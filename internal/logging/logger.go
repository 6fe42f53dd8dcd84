// Package logging provides structured logging for tripwire.
//
// Initialize the logger once at startup and obtain named loggers per
// component:
//
//	logging.Initialize("info", map[string]string{"trigger": "debug"})
//	logger := logging.GetLogger("trigger")
//	logger.InfoWithFields("detection finished",
//	    logging.Field("metric", "cpu_usage"),
//	    logging.Field("anomalies", 3),
//	)
//
// Loggers are immutable. WithField, WithFields and WithContext return copies,
// so a logger may be shared between goroutines without coordination.
//
// Package levels accept exact names ("store") and wildcard prefixes
// ("pipeline.*"). The most specific match wins; unmatched loggers use the
// default level.
//
// When a logger carries a context, the trace and span IDs of the active
// OpenTelemetry span (or the explicit TraceIDKey/SpanIDKey values) are added
// to every line.
//
// Set LOG_TIMESTAMP to pin the timestamp in tests.
package logging

import (
	"context"
	"os"
	"sync"
)

const rootLoggerName = "tripwire"

var (
	globalLogger *Logger
	initOnce     sync.Once
	// exitFunc terminates the process on Fatal. Tests replace it.
	exitFunc = os.Exit
)

// Initialize sets the default level and optional per-package overrides.
// An unknown default level falls back to INFO.
func Initialize(levelStr string, packageLevels ...map[string]string) error {
	level, err := parseLevel(levelStr)
	if err != nil {
		level = INFO
	}

	globalLogger = &Logger{
		level: level,
		name:  rootLoggerName,
	}

	if len(packageLevels) > 0 && packageLevels[0] != nil {
		if err := SetPackageLogLevels(packageLevels[0]); err != nil {
			return err
		}
	}

	return nil
}

// GetLogger returns a logger with the specified name, initializing the
// global logger at INFO on first use.
func GetLogger(name string) *Logger {
	initOnce.Do(func() {
		if globalLogger == nil {
			_ = Initialize("info")
		}
	})
	return &Logger{
		level:  globalLogger.level,
		name:   name,
		fields: make(map[string]interface{}),
	}
}

func (l *Logger) shouldLog(level LogLevel) bool {
	if pkgLevel := GetPackageLogLevel(l.name); pkgLevel >= 0 {
		return level >= pkgLevel
	}
	return level >= l.level
}

// Name returns the logger name.
func (l *Logger) Name() string {
	return l.name
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.shouldLog(DEBUG) {
		l.logf(DEBUG, msg, args...)
	}
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	if l.shouldLog(INFO) {
		l.logf(INFO, msg, args...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.shouldLog(WARN) {
		l.logf(WARN, msg, args...)
	}
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	if l.shouldLog(ERROR) {
		l.logf(ERROR, msg, args...)
	}
}

// Fatal logs a fatal message and exits the program with code 1
func (l *Logger) Fatal(msg string, args ...interface{}) {
	if l.shouldLog(FATAL) {
		l.logf(FATAL, msg, args...)
		exitFunc(1)
	}
}

// ErrorWithErr logs an error message followed by err.
func (l *Logger) ErrorWithErr(msg string, err error, args ...interface{}) {
	if l.shouldLog(ERROR) {
		args = append(args, err)
		l.logf(ERROR, msg+" - %v", args...)
	}
}

// WithName returns a copy of the logger with a different name.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{
		level:  l.level,
		name:   name,
		fields: cloneFields(l.fields),
		ctx:    l.ctx,
	}
}

// WithField returns a copy of the logger carrying one more persistent field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	next := l.WithName(l.name)
	next.fields[key] = value
	return next
}

// WithFields returns a copy of the logger carrying additional persistent fields.
func (l *Logger) WithFields(fields ...LogField) *Logger {
	next := l.WithName(l.name)
	for _, f := range fields {
		next.fields[f.Key] = f.Value
	}
	return next
}

// WithContext returns a copy of the logger bound to ctx. Trace and span IDs
// found in ctx are added to every message.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	next := l.WithName(l.name)
	next.ctx = ctx
	return next
}

// DebugWithFields logs a debug message with structured fields
func (l *Logger) DebugWithFields(msg string, fields ...LogField) {
	if l.shouldLog(DEBUG) {
		l.writeLog(DEBUG, msg, l.mergeFields(fields))
	}
}

// InfoWithFields logs an info message with structured fields
func (l *Logger) InfoWithFields(msg string, fields ...LogField) {
	if l.shouldLog(INFO) {
		l.writeLog(INFO, msg, l.mergeFields(fields))
	}
}

// WarnWithFields logs a warning message with structured fields
func (l *Logger) WarnWithFields(msg string, fields ...LogField) {
	if l.shouldLog(WARN) {
		l.writeLog(WARN, msg, l.mergeFields(fields))
	}
}

// ErrorWithFields logs an error message with structured fields
func (l *Logger) ErrorWithFields(msg string, fields ...LogField) {
	if l.shouldLog(ERROR) {
		l.writeLog(ERROR, msg, l.mergeFields(fields))
	}
}

// mergeFields combines context, persistent and call-site fields. Later
// sources win: context < logger < call site.
func (l *Logger) mergeFields(fields []LogField) map[string]interface{} {
	contextFields := extractContextFields(l.ctx)
	if contextFields == nil && len(l.fields) == 0 && len(fields) == 0 {
		return nil
	}

	merged := make(map[string]interface{}, len(contextFields)+len(l.fields)+len(fields))
	for k, v := range contextFields {
		merged[k] = v
	}
	for k, v := range l.fields {
		merged[k] = v
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}
	return merged
}
