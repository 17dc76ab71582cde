/*

This file contains the logging setup for the rebalancer. Every package logs
through a component-tagged child of one root logger, so a single run can be
filtered down to the scheduler, the Morpho client, or one executor's output.

*/

package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// root is usable before Initialize runs so that component loggers created
// in package var blocks are never silent; Initialize replaces it with the
// fully configured logger.
var root = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
	With().
	Timestamp().
	Str("service", "vrm").
	Logger()

// Initialize configures the root logger and the global level. Level strings
// follow zerolog ("debug", "info", "warn", "error"); anything unparsable
// falls back to info.
func Initialize(logLevel string) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
	}

	root = zerolog.New(consoleWriter).
		With().
		Timestamp().
		Caller().
		Str("service", "vrm").
		Logger()

	// Route the zerolog global through the same writer so package main and
	// the scripts log consistently with the components.
	log.Logger = root
}

// GetForComponent returns a child logger tagged with the component name.
func GetForComponent(component string) zerolog.Logger {
	return root.With().Str("component", component).Logger()
}
