package pkg

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Component identifies a subsystem for log filtering.
type Component string

// Controller and gadget component identifiers.
const (
	ComponentUDC      Component = "udc"
	ComponentEP0      Component = "ep0"
	ComponentEndpoint Component = "endpoint"
	ComponentDWC2     Component = "dwc2"
	ComponentPHY      Component = "phy"
	ComponentGadget   Component = "gadget"
	ComponentLoader   Component = "loader"
	ComponentDiag     Component = "diag"
	ComponentSim      Component = "sim"
	ComponentImage    Component = "image"
)

// LogFormat specifies the output format for logging.
type LogFormat int

// Log format options.
const (
	LogFormatText LogFormat = iota // Text format (default)
	LogFormatJSON                  // JSON format
)

var (
	// DefaultLogger is the logger behind the Log* functions. Replace it with
	// SetLogger.
	DefaultLogger *slog.Logger

	logLevel  = new(slog.LevelVar)
	logFormat = LogFormatText
	logOutput io.Writer = os.Stderr

	// logMutex guards DefaultLogger, logFormat and logOutput.
	logMutex sync.RWMutex
)

func init() {
	logLevel.Set(slog.LevelWarn)
	DefaultLogger = slog.New(newHandler(logOutput, logFormat, nil))
}

func newHandler(w io.Writer, format LogFormat, opts *slog.HandlerOptions) slog.Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{Level: logLevel}
	}
	if format == LogFormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetLogLevel sets the minimum level of the default handlers.
func SetLogLevel(level slog.Level) { logLevel.Set(level) }

// GetLogLevel returns the minimum level of the default handlers.
func GetLogLevel() slog.Level { return logLevel.Level() }

// ParseLogLevel parses a level name such as "debug" or "WARN+2".
func ParseLogLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, err
	}
	return level, nil
}

// SetLogger replaces the default logger.
func SetLogger(logger *slog.Logger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	DefaultLogger = logger
}

// SetLogFormat rebuilds the default logger with format, keeping the current
// output and level.
func SetLogFormat(format LogFormat) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logFormat = format
	DefaultLogger = slog.New(newHandler(logOutput, logFormat, nil))
}

// SetLogOutput rebuilds the default logger writing to w, keeping the current
// format and level.
func SetLogOutput(w io.Writer) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logOutput = w
	DefaultLogger = slog.New(newHandler(logOutput, logFormat, nil))
}

// NewLogger creates a text logger writing to w. A nil opts follows the
// package log level.
func NewLogger(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	return slog.New(newHandler(w, LogFormatText, opts))
}

// NewJSONLogger creates a JSON logger writing to w. A nil opts follows the
// package log level.
func NewJSONLogger(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	return slog.New(newHandler(w, LogFormatJSON, opts))
}

// logAt checks the level before building the attribute list, so per-packet
// debug logging in interrupt paths costs one comparison when disabled.
func logAt(level slog.Level, component Component, msg string, args []any) {
	logMutex.RLock()
	logger := DefaultLogger
	logMutex.RUnlock()

	ctx := context.Background()
	if !logger.Enabled(ctx, level) {
		return
	}
	logger.Log(ctx, level, msg, append([]any{"component", string(component)}, args...)...)
}

// LogDebug logs a debug message with the given component.
func LogDebug(component Component, msg string, args ...any) {
	logAt(slog.LevelDebug, component, msg, args)
}

// LogInfo logs an info message with the given component.
func LogInfo(component Component, msg string, args ...any) {
	logAt(slog.LevelInfo, component, msg, args)
}

// LogWarn logs a warning message with the given component.
func LogWarn(component Component, msg string, args ...any) {
	logAt(slog.LevelWarn, component, msg, args)
}

// LogError logs an error message with the given component.
func LogError(component Component, msg string, args ...any) {
	logAt(slog.LevelError, component, msg, args)
}
