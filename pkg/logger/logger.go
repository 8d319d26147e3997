// Package logger provides the structured logger used across the storefront
// services. It is a thin wrapper over logrus that pins a service name onto
// every entry.
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a service-scoped structured logger. All the usual levelled
// methods plus WithField/WithFields/WithError are available through the
// embedded entry.
type Logger struct {
	*logrus.Entry
}

// New creates a logger for the named service at the given level.
// Unknown level strings fall back to info.
func New(service, level string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	return &Logger{Entry: base.WithField("service", service)}
}

// NewDefault creates an info-level logger for the named service.
func NewDefault(service string) *Logger {
	return New(service, "info")
}

// Named returns a child logger scoped to a sub-component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Entry: l.WithField("component", component)}
}
