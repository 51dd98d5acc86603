// Package logger provides a process-wide structured logger used by every
// other package in this module.
package logger

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/stacklok/toolhive-core/env"
	"github.com/stacklok/toolhive-core/logging"
)

// singleton holds the active logger. It is an atomic.Pointer so that tests
// can swap it out and restore it without a data race.
var singleton atomic.Pointer[slog.Logger]

func init() {
	Initialize()
}

// Initialize sets up the package logger by reading the UNSTRUCTURED_LOGS
// environment variable from the real process environment.
func Initialize() {
	InitializeWithEnv(env.OS())
}

// InitializeWithEnv sets up the package logger using the given environment
// reader, which makes the unstructured/structured decision testable without
// touching the real process environment.
func InitializeWithEnv(reader env.Reader) {
	opts := []logging.Option{logging.WithLevel(slog.LevelInfo)}
	if !unstructuredLogsWithEnv(reader) {
		opts = append(opts, logging.WithJSON())
	}
	singleton.Store(logging.New(opts...))
}

// unstructuredLogsWithEnv reports whether UNSTRUCTURED_LOGS should be
// treated as enabled. Unset or unparsable values default to true, matching
// local-development ergonomics; only an explicit "false" disables it.
func unstructuredLogsWithEnv(reader env.Reader) bool {
	v := reader.Getenv("UNSTRUCTURED_LOGS")
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return b
}

// Get returns the current process logger.
func Get() *slog.Logger {
	return singleton.Load()
}

// NewLogr adapts the current process logger to a logr.Logger, for
// dependencies that expect one.
func NewLogr() logr.Logger {
	return logr.FromSlogHandler(singleton.Load().Handler())
}

// NewLogger returns the current process logger. It exists for call sites
// that prefer assigning a package-local logger variable, the way cmd/
// entrypoints do.
func NewLogger() *slog.Logger {
	return Get()
}

func Debug(msg string)                  { Get().Debug(msg) }
func Debugf(format string, args ...any) { Get().Debug(fmt.Sprintf(format, args...)) }
func Debugw(msg string, kv ...any)      { Get().Debug(msg, kv...) }
func Info(msg string)                   { Get().Info(msg) }
func Infof(format string, args ...any)  { Get().Info(fmt.Sprintf(format, args...)) }
func Infow(msg string, kv ...any)       { Get().Info(msg, kv...) }
func Warn(msg string)                   { Get().Warn(msg) }
func Warnf(format string, args ...any)  { Get().Warn(fmt.Sprintf(format, args...)) }
func Warnw(msg string, kv ...any)       { Get().Warn(msg, kv...) }
func Error(msg string)                  { Get().Error(msg) }
func Errorf(format string, args ...any) { Get().Error(fmt.Sprintf(format, args...)) }
func Errorw(msg string, kv ...any)      { Get().Error(msg, kv...) }

// DPanic logs at error level then panics, matching the teacher's
// zap-derived naming ("panic in development").
func DPanic(msg string)                  { Get().Error(msg); panic(msg) }
func DPanicf(format string, args ...any) { s := fmt.Sprintf(format, args...); Get().Error(s); panic(s) }
func DPanicw(msg string, kv ...any)      { Get().Error(msg, kv...); panic(msg) }

func Panic(msg string)                  { Get().Error(msg); panic(msg) }
func Panicf(format string, args ...any) { s := fmt.Sprintf(format, args...); Get().Error(s); panic(s) }
func Panicw(msg string, kv ...any)      { Get().Error(msg, kv...); panic(msg) }
