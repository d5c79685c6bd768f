package util

import (
	"io"
	"os"
	"strings"
	"time"

	stdlog "log"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Logger = zerolog.Logger

// LogLevel represents available log levels
type LogLevel = int

// Log levels
const (
	TraceLevel LogLevel = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
)

// zerologLevel maps a LogLevel onto zerolog; unknown values map to info
func zerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case TraceLevel:
		return zerolog.TraceLevel
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// InitializeLogger sets up the global logger writing to stderr, leaving
// stdout to command output
func InitializeLogger(level LogLevel) {
	InitializeLoggerTo(os.Stderr, level)
}

// InitializeLoggerTo sets up the global logger writing console formatted
// lines to out
func InitializeLoggerTo(out io.Writer, level LogLevel) {
	// Set time format to ISO8601
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerologLevel(level))

	output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}

	ctx := zerolog.New(output).With().Timestamp()
	if level == TraceLevel {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
	log.Debug().Msg("Logger initialized")
}

// GetLogger returns a configured logger for a specific component
func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// zerologWriter wraps zerolog to implement io.Writer for stdlog
type zerologWriter struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func (w zerologWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	// Remove stdlog prefix if present (timestamp and flags)
	if idx := strings.LastIndex(msg, ": "); idx != -1 && idx < len(msg)-2 {
		msg = msg[idx+2:]
	}
	w.logger.WithLevel(w.level).Msg(msg)

	return len(p), nil
}

// NewLogLogger returns a stdlog.Logger that routes to zerolog, for libraries
// that only accept the standard logger (go-fuse, promhttp)
func NewLogLogger(component string, lvl LogLevel) *stdlog.Logger {
	logger := GetLogger(component)
	writer := zerologWriter{logger: logger, level: zerologLevel(lvl)}

	return stdlog.New(writer, "", 0)
}
