// Package logging provides the daemon's console logger: a thin wrapper
// around the standard log.Logger with a dotted subsystem prefix, colorized
// warnings/errors, and a debug level gated on the daemon's -d/--debug flag.
//
// Modeled on mutagen's pkg/logging.Logger: a *Logger that still works (and
// stays silent) when nil, so packages that may or may not be handed a
// logger don't need a guard at every call site.
package logging

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// Logger writes prefixed, optionally colorized lines to stderr. The zero
// value is not usable; use New. A nil *Logger is usable and discards
// everything, Warnf and Errorf included.
type Logger struct {
	prefix string
	debug  bool
	std    *log.Logger
}

// New creates the root logger. debug controls whether Debugf emits anything,
// matching the C original's ctx.debug_mode / debug_printf gate.
func New(debug bool) *Logger {
	return &Logger{
		debug: debug,
		std:   log.New(os.Stderr, "", log.LstdFlags),
	}
}

// Sublogger returns a logger for a named subsystem (e.g. "dispatch",
// "installer"), nesting prefixes with '.' the way mutagen's loggers do.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{prefix: prefix, debug: l.debug, std: l.std}
}

func (l *Logger) line(v string) string {
	if l.prefix == "" {
		return v
	}
	return fmt.Sprintf("[%s] %s", l.prefix, v)
}

// Infof logs an informational line unconditionally.
func (l *Logger) Infof(format string, args ...any) {
	if l == nil {
		return
	}
	l.std.Output(2, l.line(fmt.Sprintf(format, args...)))
}

// Debugf logs only when the daemon is running with -d/--debug, matching the
// original's debug_printf macro.
func (l *Logger) Debugf(format string, args ...any) {
	if l == nil || !l.debug {
		return
	}
	l.std.Output(2, l.line(fmt.Sprintf(format, args...)))
}

// Warnf logs a yellow-highlighted warning, regardless of debug mode. A nil
// receiver discards it.
func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.std.Output(2, l.line(color.YellowString("warning: "+format, args...)))
}

// Errorf logs a red-highlighted error.
func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.std.Output(2, l.line(color.RedString("error: "+format, args...)))
}

// DebugDuration logs how long an operation (subtree rebuild, worker wait)
// took, in debug mode only, rendered with humanize for the same "don't
// hand-roll what a library already does well" reason the rest of the debug
// line formatting follows the teacher's ambient-dependency habit.
func (l *Logger) DebugDuration(operation string, since time.Time) {
	if l == nil || !l.debug {
		return
	}
	l.Debugf("%s finished, started %s", operation, humanize.Time(since))
}
