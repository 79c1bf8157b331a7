// Package logging provides structured logging for CLI and serve modes.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sftpdesk/sftpdesk/internal/events"
)

// Logger wraps zerolog with mode-specific behavior.
type Logger struct {
	zlog      zerolog.Logger
	mode      string // "cli" or "serve"
	component string
	eventBus  *events.EventBus
	output    io.Writer // current output writer
}

// NewLogger creates a new logger for the specified mode.
// When eventBus is non-nil, warn and error entries are also published as
// LogEvents so bridge clients can show them.
func NewLogger(mode string, eventBus *events.EventBus) *Logger {
	l := &Logger{mode: mode, eventBus: eventBus}
	l.SetOutput(ConsoleWriter(os.Stderr))
	return l
}

// NewDefaultCLILogger creates a default CLI logger.
func NewDefaultCLILogger() *Logger {
	return NewLogger("cli", nil)
}

// NewJSONLogger writes one JSON object per line to w. Used by serve mode when
// a log file is configured.
func NewJSONLogger(w io.Writer, eventBus *events.EventBus) *Logger {
	l := &Logger{mode: "serve", eventBus: eventBus}
	l.output = w
	l.zlog = l.build(w)
	return l
}

// Nop returns a logger that discards everything. Handy in tests.
func Nop() *Logger {
	return &Logger{mode: "cli", zlog: zerolog.Nop(), output: io.Discard}
}

// ConsoleWriter formats entries for a terminal with short timestamps.
func ConsoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}
}

func (l *Logger) build(w io.Writer) zerolog.Logger {
	ctx := zerolog.New(w).With().Timestamp()
	if l.component != "" {
		ctx = ctx.Str("component", l.component)
	}
	zl := ctx.Logger()
	if l.eventBus != nil {
		zl = zl.Hook(busHook{bus: l.eventBus, component: l.component})
	}
	return zl
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// With creates a child logger context with additional fields.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) *Logger {
	child := &Logger{
		mode:      l.mode,
		component: name,
		eventBus:  l.eventBus,
		output:    l.output,
	}
	if l.output == io.Discard {
		child.zlog = zerolog.Nop()
		return child
	}
	child.zlog = child.build(l.output)
	return child
}

// SetOutput changes the output writer for the logger.
// The CLI points it at the multi-bar container while bars are drawn.
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	l.zlog = l.build(w)
}

// Output returns the current output writer.
func (l *Logger) Output() io.Writer {
	return l.output
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// busHook republishes warn+ entries on the event bus.
type busHook struct {
	bus       *events.EventBus
	component string
}

func (h busHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	var lvl events.LogLevel
	switch {
	case level >= zerolog.ErrorLevel:
		lvl = events.ErrorLevel
	case level == zerolog.WarnLevel:
		lvl = events.WarnLevel
	default:
		return
	}
	if !e.Enabled() {
		return
	}
	h.bus.PublishLog(lvl, h.component, msg, nil)
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}
