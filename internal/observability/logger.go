package observability

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(level, format string) *logrus.Logger {
	return newLogger(os.Stdout, level, format)
}

// NewDiscardLogger returns a logger that drops everything, for tests.
func NewDiscardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newLogger(out io.Writer, level, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
