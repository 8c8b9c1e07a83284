// Package logging wraps logrus with the rotating-file setup the daemon
// needs, grounded on the same logrus-wrapper pattern as the teacher pack's
// other logging implementation (sirupsen/logrus driven through a small
// Logger type with structured fields), adapted here for a single
// long-lived background process rather than a request-serving one.
package logging

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// maxLogSizeMB and the backup count mirror original_source's log.py
	// RotatingFileHandler parameters (1MB, 3 backups).
	maxLogSizeMB = 1
	maxBackups   = 3
	maxAgeDays   = 0 // unbounded, rotation is size-driven only
	component    = "component"
)

// Logger wraps *logrus.Logger. Lines logged through WithComponent carry a
// "component" field naming the subsystem that emitted them.
type Logger struct {
	*logrus.Logger
}

// NewFileLogger builds a Logger writing to path through a size-based
// rotating writer. level parses via logrus.ParseLevel, falling back to
// Info on an unrecognized value.
func NewFileLogger(path, level string) (*Logger, error) {
	if path == "" {
		return nil, fmt.Errorf("logging: empty log path")
	}

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}

	logger := logrus.New()
	logger.SetLevel(logLevel)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   false,
	})

	return &Logger{Logger: logger}, nil
}

// NewDiscardLogger builds a Logger that drops everything, for tests and
// one-shot CLI invocations that shouldn't touch the filesystem.
func NewDiscardLogger() *Logger {
	logger := logrus.New()
	logger.SetOutput(discardWriter{})
	return &Logger{Logger: logger}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// WithComponent returns a logrus.Entry tagged with the given component
// name, e.g. "daemon", "timer", "dispatch".
func (l *Logger) WithComponent(name string) *logrus.Entry {
	return l.Logger.WithField(component, name)
}

// WithError returns a logrus.Entry carrying err under the standard
// "error" field.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithField("error", err.Error())
}
