// Package logging wires structured logging for both the host and agent
// binaries. Everything goes to stderr so stdout stays reserved for the
// terminal-action output the CLI prints (§4.2) and for whatever the
// exec'd user command writes.
package logging

import (
	"log/slog"
	"os"
)

var (
	level  = new(slog.LevelVar)
	logger *slog.Logger
	prefix string
)

func init() {
	level.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// SetPrefix records the "giftwrap" / "giftwrap agent" prefix, readable
// through Prefix. It does not affect structured log lines, and main()
// picks the prefix of the final error line itself rather than reading it.
func SetPrefix(p string) {
	prefix = p
}

// Prefix returns the currently configured error-line prefix.
func Prefix() string {
	return prefix
}

// SetVerbose raises or lowers the minimum log level.
func SetVerbose(verbose bool) {
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
}

// Debug logs at debug level.
func Debug(msg string, args ...any) { logger.Debug(msg, args...) }

// Info logs at info level.
func Info(msg string, args ...any) { logger.Info(msg, args...) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { logger.Warn(msg, args...) }

// Error logs at error level.
func Error(msg string, args ...any) { logger.Error(msg, args...) }

// Slog returns the underlying structured logger for callers that want to
// attach their own fields.
func Slog() *slog.Logger { return logger }
