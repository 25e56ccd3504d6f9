// Package logging wraps github.com/rs/zerolog the way the chaos-tooling
// sibling project's pkg/reporting/logger.go does: a small Logger type with
// level/format configuration and With-style field chaining, plus
// package-level convenience functions bound to a process-wide global.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level mirrors spec.md §7's error-kind classification: malformed packets
// and fatal invariant violations log at Error, policy rejections log at
// Info or Warn depending on their "warning" flag, everything else at Debug.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format selects console (human, colorized) or JSON output.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// Config configures a Logger.
type Config struct {
	Level  Level
	Format Format
	Output io.Writer
}

// Logger is a structured logger bound to a component name (e.g. an
// interface or node name), so every line it emits is already scoped.
type Logger struct {
	z zerolog.Logger
}

// New builds a Logger from cfg.
func New(cfg Config) *Logger {
	return &Logger{z: build(cfg)}
}

func build(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	var w io.Writer = out
	if cfg.Format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: false}
	}
	z := zerolog.New(w).With().Timestamp().Logger()
	return z.Level(zerologLevel(cfg.Level))
}

func zerologLevel(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// With returns a child Logger with one extra field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{z: l.z.With().Interface(key, value).Logger()}
}

// WithFields returns a child Logger with several extra fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.z.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{z: ctx.Logger()}
}

func (l *Logger) Debug(msg string) { l.z.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.z.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.z.Warn().Msg(msg) }
func (l *Logger) Error(msg string, err error) {
	if err != nil {
		l.z.Error().Err(err).Msg(msg)
		return
	}
	l.z.Error().Msg(msg)
}

// InitGlobal sets the process-wide default logger used by the
// package-level Debug/Info/Warn/Error helpers.
func InitGlobal(cfg Config) {
	log.Logger = build(cfg)
	zerolog.SetGlobalLevel(zerologLevel(cfg.Level))
}

func Debug(msg string) { log.Debug().Msg(msg) }
func Info(msg string)  { log.Info().Msg(msg) }
func Warn(msg string)  { log.Warn().Msg(msg) }
func Error(msg string, err error) {
	if err != nil {
		log.Error().Err(err).Msg(msg)
		return
	}
	log.Error().Msg(msg)
}
