package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

const serviceName = "hrms-api"

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrus.InfoLevel)
	l.AddHook(&defaultFieldsHook{})
	return l
}

// Get returns the process logger
func Get() *logrus.Logger {
	return log
}

// SetLevel parses a level name; unknown names keep the current level
func SetLevel(level string) {
	if parsed, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(parsed)
	}
}

type defaultFieldsHook struct{}

func (hook *defaultFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (hook *defaultFieldsHook) Fire(e *logrus.Entry) error {
	e.Data["service"] = serviceName
	return nil
}

// LogError writes a structured error entry tagged with where it happened
func LogError(module string, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   module,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	log.WithFields(fields).Error(err.Error())
}
