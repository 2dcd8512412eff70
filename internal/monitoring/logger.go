// Package monitoring holds the package-level diagnostic logger shared by the
// lap timing tools.
package monitoring

import (
	"io"

	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

// Logf is the package-level diagnostic logger. It defaults to the logrus
// logger at info level but may be replaced by SetLogger. Tests or production
// code can redirect or mute it.
var Logf func(format string, v ...interface{}) = logger.Infof

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetLevel sets the verbosity of the underlying logrus logger, e.g. "debug".
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)
	return nil
}

// SetOutput redirects the underlying logrus logger.
func SetOutput(w io.Writer) { logger.SetOutput(w) }

// SetJSON switches the underlying logger to JSON lines.
func SetJSON(enabled bool) {
	if enabled {
		logger.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logger.SetFormatter(&logrus.TextFormatter{})
}

// WithFields returns a structured entry on the underlying logger.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return logger.WithFields(fields)
}
