package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the process-wide structured logger. JSON output, level from
// SOLAR_LOG_LEVEL (default info).
func New() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})

	lvl, err := logrus.ParseLevel(os.Getenv("SOLAR_LOG_LEVEL"))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
