// Package logging provides leveled, structured log output for the session
// client. Lines are written through zerolog, either as human-readable
// console lines or as JSON objects.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EnvLogLevel overrides the configured level when set.
const EnvLogLevel = "NODELINK_LOG_LEVEL"

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Format selects the line encoding.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

var zerologLevels = map[Level]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
}

// Logger provides structured logging. Derived loggers share nothing
// mutable with their parent.
type Logger struct {
	output    io.Writer
	format    Format
	minLevel  Level
	component string
	zl        zerolog.Logger
}

// New creates a console Logger writing to stdout at INFO.
func New() *Logger {
	l := &Logger{
		output:   os.Stdout,
		format:   FormatConsole,
		minLevel: LevelInfo,
	}
	l.rebuild()
	return l
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	l := New()
	l.SetOutput(io.Discard)
	return l
}

func (l *Logger) rebuild() {
	var w io.Writer
	switch l.format {
	case FormatJSON:
		w = zerolog.SyncWriter(l.output)
	default:
		w = zerolog.ConsoleWriter{
			Out:        zerolog.SyncWriter(l.output),
			TimeFormat: time.RFC3339,
			NoColor:    true,
			FormatLevel: func(i interface{}) string {
				s, _ := i.(string)
				return strings.ToUpper(s)
			},
		}
	}
	ctx := zerolog.New(w).Level(zerologLevels[l.minLevel]).With().Timestamp()
	if l.component != "" {
		ctx = ctx.Str("component", l.component)
	}
	l.zl = ctx.Logger()
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	child := &Logger{
		output:    l.output,
		format:    l.format,
		minLevel:  l.minLevel,
		component: component,
	}
	child.rebuild()
	return child
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	if _, ok := zerologLevels[level]; !ok {
		return
	}
	l.minLevel = level
	l.rebuild()
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	l.rebuild()
}

// SetFormat switches between console and JSON lines.
func (l *Logger) SetFormat(f Format) {
	if f != FormatJSON {
		f = FormatConsole
	}
	l.format = f
	l.rebuild()
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(l.zl.Debug(), msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(l.zl.Info(), msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(l.zl.Warn(), msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(l.zl.Error(), msg, fields...)
}

func (l *Logger) log(event *zerolog.Event, msg string, fields ...map[string]interface{}) {
	if event == nil {
		return
	}
	if len(fields) > 0 && fields[0] != nil {
		event = event.Fields(fields[0])
	}
	event.Msg(msg)
}

// ParseLevel maps a user-supplied level name onto a Level.
func ParseLevel(raw string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug", "trace":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

// --- Session lifecycle helpers ---

// StateChange logs a supervisor state transition.
func (l *Logger) StateChange(state, endpoint string, attempt int) {
	l.Debug("state_change", map[string]interface{}{
		"state":    state,
		"endpoint": endpoint,
		"attempt":  attempt,
	})
}

// SessionOpened logs a successful connection.
func (l *Logger) SessionOpened(endpoint string, attempt int) {
	l.Info("session_opened", map[string]interface{}{
		"endpoint": endpoint,
		"attempt":  attempt,
	})
}

// SessionClosed logs the end of a session and the error that ended it.
// retryable records whether the error's category expects a new session
// to succeed; the supervisor reconnects either way.
func (l *Logger) SessionClosed(endpoint string, duration time.Duration, code string, retryable bool, err error) {
	fields := map[string]interface{}{
		"endpoint":  endpoint,
		"duration":  duration.String(),
		"code":      code,
		"retryable": retryable,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error("session_closed", fields)
}

// Frame logs a raw frame at debug level.
func (l *Logger) Frame(direction, action string, payload []byte) {
	l.Debug("frame", map[string]interface{}{
		"dir":     direction,
		"action":  action,
		"payload": string(payload),
	})
}
