// Package logging configures the process-wide structured logger. Every
// subsystem receives a *logrus.Logger (or an Entry derived from it) from
// here; constructors handed a nil logger fall back to a plain logrus.New().
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing text-formatted records to stderr at the
// given level. An unrecognized level falls back to info rather than
// failing, so a typo in config.yml never prevents startup.
func New(level string) *logrus.Logger {
	return NewWithOutput(level, os.Stderr)
}

// NewWithOutput is New with an explicit sink, used by tests.
func NewWithOutput(level string, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		lv = logrus.InfoLevel
	}
	log.SetLevel(lv)
	return log
}
