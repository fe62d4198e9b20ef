// Package logger provides structured logging for memsetup
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with memsetup-specific functionality
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // console output for interactive use
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.Kitchen,
		}
	}

	zlog := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "memsetup").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// GetZerolog returns the underlying zerolog logger
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

// Info starts an info event
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Debug starts a debug event
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn starts a warning event
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// Error starts an error event
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// StoreLogger returns a logger for store client calls
func (l *Logger) StoreLogger(operation string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "store").
			Str("operation", operation).
			Logger(),
	}
}

// ComponentLogger returns a logger tagged with one action component
func (l *Logger) ComponentLogger(component string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", component).
			Logger(),
	}
}

// LogStoreRequest logs one HTTP round trip against the store
func (l *Logger) LogStoreRequest(method, path string, status int, duration time.Duration, err error) {
	event := l.zlog.Debug().
		Str("component", "store").
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("duration_ms", duration)

	if err != nil {
		event = l.zlog.Debug().
			Str("component", "store").
			Str("method", method).
			Str("path", path).
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("store request completed")
}

// LogActionStart logs the beginning of an action
func (l *Logger) LogActionStart(action, collection string) {
	l.zlog.Info().
		Str("event", "action_start").
		Str("action", action).
		Str("collection", collection).
		Msg("action starting")
}

// LogActionDone logs action completion
func (l *Logger) LogActionDone(action, collection string, duration time.Duration, err error) {
	if err != nil {
		l.zlog.Error().
			Str("event", "action_failed").
			Str("action", action).
			Str("collection", collection).
			Dur("duration_ms", duration).
			Err(err).
			Msg("action aborted")
		return
	}
	l.zlog.Info().
		Str("event", "action_done").
		Str("action", action).
		Str("collection", collection).
		Dur("duration_ms", duration).
		Msg("action completed")
}

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		InitGlobalLogger(Config{
			Level:  "info",
			Pretty: true,
		})
	}
	return globalLogger
}
