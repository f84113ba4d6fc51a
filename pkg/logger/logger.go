// Package logger builds the logrus logger used for the diagnostic stream.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// New returns a logrus logger writing to w (stdout when nil).
// Each entry is written with a single Write call under the logger's mutex,
// so lines from concurrent signing workers never interleave mid-line.
func New(w io.Writer, level logrus.Level) *logrus.Logger {
	if w == nil {
		w = os.Stdout
	}
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return log
}

// Discard returns a logger that drops everything. Used by tests and library
// callers that do not care about diagnostics.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
