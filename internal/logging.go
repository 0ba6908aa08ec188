package internal

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is the engine-wide structured logger. Commands print to stdout
// directly; Log carries diagnostics (stream lifecycle, cache decisions,
// retry timing) on stderr so they never mix with chat output.
var Log = newLogger()

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if os.Getenv("CHATCTL_DEBUG") != "" {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: LogTimeFormat,
	}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func init() {
	zerolog.DurationFieldUnit = time.Millisecond
}
