// Package logging sets up the process-wide structured logger. The engine
// logs through zerolog instead of the teacher's bare log.Println calls,
// matching the corpus's preference for leveled, structured logging
// (see shuliakovsky-email-checker's internal/logger for the same
// instinct expressed with a hand-rolled buffer instead of a library).
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a console-writer zerolog.Logger at the given level name
// ("debug", "info", "warn", "error"). Unknown levels fall back to info.
func New(levelName string) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(levelName))
	if err != nil {
		level = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
