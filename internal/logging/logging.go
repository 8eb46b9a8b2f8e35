package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

const serviceName = "rasapp"

// DefaultFieldsHook stamps every entry with the service name.
type DefaultFieldsHook struct {
	Service string
}

func (hook *DefaultFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (hook *DefaultFieldsHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data["service"]; !ok {
		e.Data["service"] = hook.Service
	}
	return nil
}

// New builds a logger writing to stderr. Unknown levels fall back to info.
func New(level, format string) *logrus.Logger {
	return NewWithOutput(os.Stderr, level, format)
}

func NewWithOutput(out io.Writer, level, format string) *logrus.Logger {
	log := logrus.New()
	log.Out = out
	if format == "json" {
		log.Formatter = &logrus.JSONFormatter{}
	} else {
		log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	}
	l, err := logrus.ParseLevel(level)
	if err != nil {
		l = logrus.InfoLevel
	}
	log.SetLevel(l)
	log.AddHook(&DefaultFieldsHook{Service: serviceName})
	return log
}

// Discard returns a logger that drops everything, for tests.
func Discard() *logrus.Logger {
	return NewWithOutput(io.Discard, "panic", "text")
}
