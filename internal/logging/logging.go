// Package logging provides the process-wide zerolog setup used by every
// other package. Callers never construct a zerolog.Logger directly; they
// ask for one scoped to their component name.
package logging

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once sync.Once
	base zerolog.Logger
)

// Init configures the process-wide logger. debug enables Debug-level
// output and a human-readable console writer; otherwise logs are
// structured JSON on stderr, suitable for a background daemon.
func Init(debug bool) {
	once.Do(func() {
		level := zerolog.InfoLevel
		var writer = os.Stderr
		var output zerolog.ConsoleWriter

		if debug {
			level = zerolog.DebugLevel
			output = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.Kitchen}
			base = zerolog.New(output).With().Timestamp().Logger().Level(level)
			return
		}

		base = zerolog.New(writer).With().Timestamp().Logger().Level(level)
	})
}

// WithComponent returns a logger tagged with the given component name.
// Safe to call before Init — it lazily initializes with non-debug defaults
// so package-level var initializers and early tests don't need to worry
// about ordering.
func WithComponent(name string) zerolog.Logger {
	once.Do(func() {
		base = zerolog.New(os.Stderr).With().Timestamp().Logger()
	})
	return base.With().Str("component", name).Logger()
}

// SetGlobalLevel adjusts the minimum level accepted by all loggers.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}
