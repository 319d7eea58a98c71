// Package telemetry provides the engine's structured logging and error
// reporting, shared by every component instead of each owning its own
// *log.Logger. It wraps logrus for leveled, field-based logs and Sentry
// for Fatal-class error capture with a correlation identifier, the same
// pairing the teacher's controllers/sender_controller.go LogError/LogEvent
// functions use, generalised into a reusable, constructor-injected type
// instead of package-level functions.
package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"verifyengine/errkind"
)

// Logger is the engine-wide structured logger. Zero value is unusable;
// build one with New.
type Logger struct {
	entry        *logrus.Entry
	sentryActive bool
}

// Config configures Sentry reporting. DSN empty disables Sentry entirely
// (reporting degrades to console-only, never blocking the caller).
type Config struct {
	DSN         string
	Environment string
	Level       string
}

// New builds a Logger. Sentry initialisation failures are logged and
// otherwise ignored — telemetry must never prevent the engine from running.
func New(cfg Config) *Logger {
	base := logrus.New()
	base.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(cfg.Level); err == nil {
		base.SetLevel(lvl)
	} else {
		base.SetLevel(logrus.InfoLevel)
	}

	sentryActive := false
	if cfg.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.DSN,
			Environment: cfg.Environment,
		}); err != nil {
			base.WithField("error", err.Error()).Warn("sentry init failed, continuing without it")
		} else {
			sentryActive = true
		}
	}

	return &Logger{entry: logrus.NewEntry(base), sentryActive: sentryActive}
}

// With returns a Logger carrying additional structured fields.
func (l *Logger) With(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields)), sentryActive: l.sentryActive}
}

// Event logs a structured, informational event and leaves a Sentry
// breadcrumb for later correlation with a captured error.
func (l *Logger) Event(eventType string, data map[string]interface{}) {
	entry := l.entry.WithField("event_type", eventType)
	for k, v := range data {
		entry = entry.WithField(k, v)
	}
	entry.Info("event occurred")

	if l.sentryActive {
		sentry.AddBreadcrumb(&sentry.Breadcrumb{
			Type:      "info",
			Category:  eventType,
			Data:      data,
			Timestamp: time.Now(),
		})
	}
}

// Error logs a non-fatal error with structured context. Used for
// Transient/Permanent errkind occurrences that the caller recovers from.
func (l *Logger) Error(errorType string, err error, context map[string]interface{}) {
	entry := l.entry.WithField("error_type", errorType).WithField("error", err.Error())
	for k, v := range context {
		entry = entry.WithField(k, v)
	}
	entry.Error("error occurred")
}

// Fatal reports an unrecoverable internal error kind to both logs and
// Sentry, stamping a correlation identifier the caller can hand back to
// support. It does not panic or exit the process.
func (l *Logger) Fatal(correlation string, err error, context map[string]interface{}) *errkind.Error {
	entry := l.entry.WithField("correlation_id", correlation).WithField("error", err.Error())
	for k, v := range context {
		entry = entry.WithField(k, v)
	}
	entry.Error("fatal error")

	if l.sentryActive {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("correlation_id", correlation)
			for k, v := range context {
				scope.SetExtra(k, v)
			}
			sentry.CaptureException(err)
		})
	}

	return errkind.NewFatal(correlation, err)
}
