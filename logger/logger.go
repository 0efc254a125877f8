// Package logger provides structured logging for the pipeline core, built on
// log/slog with automatic secret redaction and context-aware field
// extraction (see context.go and handler.go).
//
// All exported functions log through the package-global DefaultLogger, which
// middleware and pipeline internals use without needing to carry a logger
// instance through every call. SetLogger lets a host application substitute
// its own *slog.Logger (e.g. wired to a central logging pipeline) without
// losing the level/format controls below.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

var (
	// DefaultLogger is the global structured logger instance used by every
	// package-level logging function. Safe for concurrent use.
	DefaultLogger *slog.Logger

	currentLevel  slog.Level
	currentFormat string
	logOutput     io.Writer = os.Stderr
	customHandler slog.Handler
)

func init() {
	currentLevel = ParseLevel(os.Getenv("LOG_LEVEL"))

	currentFormat = FormatText
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), FormatJSON) {
		currentFormat = FormatJSON
	}

	initLogger(currentLevel, nil)
}

// ParseLevel converts a level name ("debug", "info", "warn", "error") into
// a slog.Level, defaulting to LevelInfo for unrecognized or empty input.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// initLogger (re)builds DefaultLogger from the package's current level,
// format, and output settings, unless a custom logger was installed via
// SetLogger — in that case the custom logger is left untouched.
func initLogger(level slog.Level, commonFields []slog.Attr) {
	currentLevel = level

	if customHandler != nil {
		DefaultLogger = slog.New(customHandler)
		slog.SetDefault(DefaultLogger)
		return
	}

	opts := &slog.HandlerOptions{Level: level}

	var base slog.Handler
	if currentFormat == FormatJSON {
		base = slog.NewJSONHandler(logOutput, opts)
	} else {
		base = slog.NewTextHandler(logOutput, opts)
	}

	handler := slog.Handler(NewContextHandler(base, commonFields...))
	if moduleConfig := globalModuleConfig; moduleConfig != nil && len(moduleConfig.modules) > 0 {
		handler = NewModuleHandler(base, moduleConfig, commonFields...)
	}

	DefaultLogger = slog.New(handler)
	slog.SetDefault(DefaultLogger)
}

// SetLevel changes the logging level for all subsequent log operations.
func SetLevel(level slog.Level) {
	initLogger(level, nil)
}

// SetVerbose enables debug-level logging when verbose is true, otherwise
// restores info-level. Convenience wrapper for CLI --verbose flags.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// SetOutput redirects where the default handler writes, preserving the
// current format and level. Passing nil resets output to stderr. Has no
// effect while a custom logger is installed via SetLogger.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	logOutput = w
	initLogger(currentLevel, nil)
}

// SetLogger installs a caller-supplied *slog.Logger as DefaultLogger,
// bypassing the package's own handler construction entirely. Passing nil
// reverts to the package-managed logger. SetLevel and Configure never
// overwrite a logger installed this way.
func SetLogger(l *slog.Logger) {
	if l == nil {
		customHandler = nil
		initLogger(currentLevel, nil)
		return
	}
	DefaultLogger = l
	slog.SetDefault(l)
	customHandler = l.Handler()
}

// Info logs an informational message with structured key-value attributes.
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message, enriched with fields extracted
// from ctx (see context.go).
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message, emitted only when the level is Debug.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context-extracted fields.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message for recoverable or unexpected conditions.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context-extracted fields.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context-extracted fields.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// secretPatterns match credentials that commonly end up in middleware
// configuration or downstream error messages: API keys, bearer tokens, and
// connection strings carrying embedded passwords (e.g. redis://:pw@host).
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),
	regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_\-.]+`),
	regexp.MustCompile(`://[^:/@\s]+:[^@/\s]+@`),
}

// RedactSensitiveData replaces recognizable credentials in a string with a
// redacted form that preserves a short prefix for debugging context. Used
// before logging cache keys, rate-limit identifiers, or error strings that
// may embed a backend DSN or an upstream Authorization header.
func RedactSensitiveData(input string) string {
	result := input
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			switch {
			case strings.HasPrefix(match, "Bearer "):
				return "Bearer [REDACTED]"
			case strings.Contains(match, "://"):
				return "://[REDACTED]@"
			case len(match) > 8:
				return match[:4] + "...[REDACTED]"
			default:
				return "[REDACTED]"
			}
		})
	}
	return result
}
