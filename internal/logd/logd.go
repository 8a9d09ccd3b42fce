// Package logd is discoveryd's leveled logger. Foreground mode colors
// stderr lines the way the teacher's pkg/logging/colors.go does (gated by
// NO_COLOR and TTY detection); daemon mode writes through syslog. Per-
// protocol verbosity follows the teacher's pkg/logging/debug_config.go
// shape: a global level with optional per-name overrides.
package logd

import (
	"fmt"
	"io"
	"log/syslog"
	"os"
	"sync"

	"github.com/fatih/color"
)

// Level is a syslog-style severity, ordered least to most verbose.
type Level int

const (
	CRIT Level = iota
	WARN
	INFO
	DEBUG
)

func (l Level) String() string {
	switch l {
	case CRIT:
		return "CRIT"
	case WARN:
		return "WARN"
	case INFO:
		return "INFO"
	case DEBUG:
		return "DEBUG"
	default:
		return "????"
	}
}

var (
	critColor = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow)
	infoColor = color.New(color.FgBlue)
	dbgColor  = color.New(color.FgWhite, color.Faint)
)

// Logger is the daemon-wide log sink. It is safe for concurrent use; the
// child's scheduler and receive goroutines and the parent's per-interface
// receivers all write to it.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	foreground bool
	global     Level
	protocols  map[string]Level
	sys        *syslog.Writer
}

// New builds a Logger. When foreground is true, colored lines go to
// stderr; otherwise a syslog writer is opened with the given tag and
// colors are never used.
func New(foreground bool, global Level, tag string) *Logger {
	l := &Logger{
		out:        os.Stderr,
		foreground: foreground,
		global:     global,
		protocols:  make(map[string]Level),
	}
	if foreground {
		color.NoColor = os.Getenv("NO_COLOR") != "" || !color.NoColor && !isTerminal(os.Stderr)
	} else {
		w, err := syslog.New(syslog.LOG_DAEMON, tag)
		if err == nil {
			l.sys = w
		}
	}
	return l
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// SetProtocolLevel sets a per-protocol verbosity override.
func (l *Logger) SetProtocolLevel(proto string, level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.protocols[proto] = level
}

// LevelFor returns the effective level for a protocol, falling back to
// the global level when no override is set.
func (l *Logger) LevelFor(proto string) Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lv, ok := l.protocols[proto]; ok {
		return lv
	}
	return l.global
}

func (l *Logger) enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level <= l.global
}

func (l *Logger) write(level Level, format string, args ...interface{}) {
	if !l.enabled(level) {
		return
	}
	l.emit(level, format, args...)
}

// emit writes one line without consulting the global level.
func (l *Logger) emit(level Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !l.foreground {
		if l.sys != nil {
			switch level {
			case CRIT:
				l.sys.Crit(msg)
			case WARN:
				l.sys.Warning(msg)
			case INFO:
				l.sys.Info(msg)
			default:
				l.sys.Debug(msg)
			}
		}
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	line := fmt.Sprintf("%s: %s\n", level, msg)
	switch level {
	case CRIT:
		critColor.Fprint(l.out, line)
	case WARN:
		warnColor.Fprint(l.out, line)
	case INFO:
		infoColor.Fprint(l.out, line)
	default:
		dbgColor.Fprint(l.out, line)
	}
}

func (l *Logger) Crit(format string, args ...interface{}) { l.write(CRIT, format, args...) }
func (l *Logger) Warn(format string, args ...interface{}) { l.write(WARN, format, args...) }
func (l *Logger) Info(format string, args ...interface{}) { l.write(INFO, format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.write(DEBUG, format, args...) }

// Protocol logs at the given protocol's effective level rather than the
// global one, mirroring the teacher's per-subsystem debug verbosity.
func (l *Logger) Protocol(proto string, level Level, format string, args ...interface{}) {
	if level > l.LevelFor(proto) {
		return
	}
	l.emit(level, "[%s] "+format, append([]interface{}{proto}, args...)...)
}
