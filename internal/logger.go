package internal

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Extra severities used by the binding, around the slog ones.
const (
	LevelNotice   = slog.Level(2)
	LevelCritical = slog.Level(12)
)

// logLevel is shared by the terminal loggers.
var logLevel = new(slog.LevelVar)

// SetDebug enables the debug records of the terminal loggers.
func SetDebug(enabled bool) {
	if enabled {
		logLevel.Set(slog.LevelDebug)
		return
	}
	logLevel.Set(slog.LevelInfo)
}

var levelNames = map[slog.Level]string{
	LevelNotice:   "NTC",
	LevelCritical: "CRT",
}

// Logger is a [slog.Logger] that tags every record with the component kind and name.
type Logger struct {
	*slog.Logger

	kind string
	name string
}

func newHandler(w io.Writer, noColor bool, level slog.Leveler) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:   level,
		NoColor: noColor,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != slog.LevelKey || len(groups) > 0 {
				return a
			}

			if lvl, ok := a.Value.Any().(slog.Level); ok {
				if name, ok := levelNames[lvl]; ok {
					return slog.String(slog.LevelKey, name)
				}
			}
			return a
		},
	})
}

// NewLogger returns a colored logger writing to the terminal.
func NewLogger(kind, name string) *Logger {
	var handler slog.Handler

	if runtime.GOOS == "windows" {
		handler = newHandler(colorable.NewColorableStdout(), false, logLevel)
	} else {
		w := os.Stderr
		handler = newHandler(w, !isatty.IsTerminal(w.Fd()), logLevel)
	}

	return &Logger{
		Logger: slog.New(handler),

		kind: kind,
		name: name,
	}
}

// NewWriterLogger returns a logger writing uncolored records to w.
func NewWriterLogger(w io.Writer, kind, name string) *Logger {
	return &Logger{
		Logger: slog.New(newHandler(w, true, slog.LevelDebug)),

		kind: kind,
		name: name,
	}
}

func (l *Logger) getInfo() slog.Attr {
	return slog.Group("info", slog.String("kind", l.kind), slog.String("name", l.name))
}

func (l *Logger) getArgs(args ...any) []any {
	return append([]any{l.getInfo()}, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.Logger.Info(msg, l.getArgs(args...)...)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.Logger.Debug(msg, l.getArgs(args...)...)
}

func (l *Logger) Notice(msg string, args ...any) {
	l.Logger.Log(context.Background(), LevelNotice, msg, l.getArgs(args...)...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.Logger.Warn(msg, l.getArgs(args...)...)
}

func (l *Logger) Error(msg string, err error, args ...any) {
	tmpArgs := append([]any{tint.Err(err)}, args...)
	l.Logger.Error(msg, l.getArgs(tmpArgs...)...)
}

// Critical logs faults that have no synchronous caller to report to.
func (l *Logger) Critical(msg string, err error, args ...any) {
	tmpArgs := append([]any{tint.Err(err)}, args...)
	l.Logger.Log(context.Background(), LevelCritical, msg, l.getArgs(tmpArgs...)...)
}
