// Package logger is a small leveled wrapper around the standard log
// package: Errorf/Infof/Debugf/Tracef, gated by a single package-wide
// verbosity level.
package logger

import (
	"log"
	"os"
)

// Level is a logging verbosity level. Higher values are more verbose.
type Level int

const (
	Error Level = iota
	Info
	Debug
	Trace
)

// current holds the active verbosity; only messages with level <= current
// are logged.
var current Level = Info

func init() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

// SetVerbosity sets the global logging verbosity, typically once at
// startup after flag parsing.
func SetVerbosity(v int) {
	current = Level(v)
}

func logf(l Level, prefix, format string, args ...any) {
	if current >= l {
		log.Printf(prefix+format, args...)
	}
}

func Errorf(format string, args ...any) { logf(Error, "[ERROR] ", format, args...) }
func Infof(format string, args ...any)  { logf(Info, "[INFO]  ", format, args...) }
func Debugf(format string, args ...any) { logf(Debug, "[DEBUG] ", format, args...) }
func Tracef(format string, args ...any) { logf(Trace, "[TRACE] ", format, args...) }
