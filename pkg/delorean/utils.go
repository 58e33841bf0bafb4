package delorean

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger = newLogger()

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if isInfo() {
		level = zerolog.InfoLevel
	}
	if isDebug() {
		level = zerolog.DebugLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// SetLogger replaces the package logger. Tests use it to silence output.
func SetLogger(l zerolog.Logger) {
	logger = l
}

func info() *zerolog.Event {
	return logger.Info()
}

func debug() *zerolog.Event {
	return logger.Debug()
}

func isInfo() bool {
	return os.Getenv("INFO") == "1"
}

func isDebug() bool {
	return os.Getenv("DEBUG") == "1"
}
