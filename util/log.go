// Package util holds ambient helpers shared across the control loop:
// the leveled logger, the injectable clock, and config decoding.
package util

import (
	"io"
	"log"
	"os"
)

// level is one leveled sub-logger. Each embeds a standard *log.Logger
// so callers use the familiar Printf/Println/Fatal surface.
type level struct {
	*log.Logger
	enabled bool
}

func (l *level) Printf(format string, v ...interface{}) {
	if l.enabled {
		l.Logger.Printf(format, v...)
	}
}

func (l *level) Println(v ...interface{}) {
	if l.enabled {
		l.Logger.Println(v...)
	}
}

// Logger groups per-level sub-loggers the way evcc's util.Logger does,
// so call sites read as lp.log.DEBUG.Printf(...).
type Logger struct {
	TRACE *level
	DEBUG *level
	INFO  *level
	WARN  *level
	ERROR *level
	FATAL *level

	name string
}

// LogLevel controls the minimum level NewLogger enables.
type LogLevel int

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// NewLogger creates a Logger writing to w, prefixed with name, with
// every level below min silenced.
func NewLogger(name string, w io.Writer, min LogLevel) *Logger {
	mk := func(tag string, lvl LogLevel) *level {
		return &level{
			Logger:  log.New(w, "["+name+"] "+tag+" ", log.LstdFlags),
			enabled: lvl >= min,
		}
	}

	return &Logger{
		TRACE: mk("TRACE", LevelTrace),
		DEBUG: mk("DEBUG", LevelDebug),
		INFO:  mk("INFO ", LevelInfo),
		WARN:  mk("WARN ", LevelWarn),
		ERROR: mk("ERROR", LevelError),
		FATAL: mk("FATAL", LevelError),
		name:  name,
	}
}

// NewStderrLogger is the common-case constructor used by the CLI and
// by tests that don't care where logs go.
func NewStderrLogger(name string) *Logger {
	return NewLogger(name, os.Stderr, LevelInfo)
}

// Name returns the logger's component name.
func (l *Logger) Name() string {
	return l.name
}
