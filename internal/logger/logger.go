package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var global zerolog.Logger

func init() {
	configure(os.Stdout, zerolog.InfoLevel)
}

// Init reconfigures the global logger. Pretty selects human-readable
// console output instead of JSON lines.
func Init(level string, pretty bool) {
	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}
	configure(out, parseLevel(level))
}

// WithComponent returns a logger tagged with the subsystem name.
func WithComponent(component string) *zerolog.Logger {
	l := global.With().Str("component", component).Logger()
	return &l
}

func configure(out io.Writer, level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
	global = zerolog.New(out).With().Timestamp().Caller().Logger()
	log.Logger = global
}

// parseLevel maps a config string to a zerolog level, defaulting to info
// for anything unrecognized.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
