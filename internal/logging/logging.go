package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Output formats accepted by SetupLogger.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// SetupLogger configures the global logger based on verbosity level.
// It writes to stderr (console or JSON) and appends JSON lines to the log file
// under the XDG state directory.
func SetupLogger(verbosity int, format string) {
	zerolog.SetGlobalLevel(LevelForVerbosity(verbosity))

	var console io.Writer = os.Stderr
	if format != FormatJSON {
		console = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
		}
	}

	writers := []io.Writer{console}

	logFile := LogFilePath()
	logFileHandle, err := setupLogFile(logFile)
	if err == nil {
		writers = append(writers, logFileHandle)
	}

	log.Logger = zerolog.New(io.MultiWriter(writers...)).With().Timestamp().Logger()

	if err != nil {
		log.Warn().Err(err).Str("path", logFile).Msg("Failed to create log file, logging to console only")
	}

	if verbosity >= 2 {
		log.Logger = log.Logger.With().Caller().Logger()
	}

	log.Debug().Int("verbosity", verbosity).Str("logFile", logFile).Msg("Logger initialized")
}

// LevelForVerbosity maps the -v count to a level: 0 warn, 1 info, 2 debug,
// anything higher trace.
func LevelForVerbosity(verbosity int) zerolog.Level {
	switch {
	case verbosity <= 0:
		return zerolog.WarnLevel
	case verbosity == 1:
		return zerolog.InfoLevel
	case verbosity == 2:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// GetLogger returns a contextualized logger with the given name
func GetLogger(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// LogFilePath returns $XDG_STATE_HOME/mario/mario.log.
func LogFilePath() string {
	return filepath.Join(xdg.StateHome, "mario", "mario.log")
}

// setupLogFile creates the log file and its parent directories
func setupLogFile(logPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return file, nil
}

// TimeOperation logs the start of operation at debug level and returns a
// function that logs its duration when called with the operation's error.
// A failed operation is logged at warn level.
func TimeOperation(logger zerolog.Logger, operation string) func(err error) {
	start := time.Now()
	logger.Debug().Str("operation", operation).Msg("Operation started")

	return func(err error) {
		if err != nil {
			logger.Warn().Str("operation", operation).Dur("duration", time.Since(start)).Err(err).Msg("Operation failed")
			return
		}
		logger.Debug().Str("operation", operation).Dur("duration", time.Since(start)).Msg("Operation completed")
	}
}
