// Package logger is the process-wide logging facade. Backends are installed
// once with Init; messages are fanned out to each of them.
package logger

import (
	"os"
	"sync/atomic"
)

// LoggerInstance defines the interface for logging backends.
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

type backends []LoggerInstance

var installed atomic.Pointer[backends]

// Init installs the global logger with one or more backends, replacing any
// earlier ones. Calls made before Init are dropped.
func Init(instances ...LoggerInstance) {
	b := backends(instances)
	installed.Store(&b)
}

func each(fn func(LoggerInstance)) bool {
	b := installed.Load()
	if b == nil || len(*b) == 0 {
		return false
	}
	for _, instance := range *b {
		fn(instance)
	}
	return true
}

// Log writes a message at the default level.
func Log(message string, keyvals ...any) {
	each(func(l LoggerInstance) { l.Log(message, keyvals...) })
}

func Debug(message string, keyvals ...any) {
	each(func(l LoggerInstance) { l.Debug(message, keyvals...) })
}

func Info(message string, keyvals ...any) {
	each(func(l LoggerInstance) { l.Info(message, keyvals...) })
}

func Warn(message string, keyvals ...any) {
	each(func(l LoggerInstance) { l.Warn(message, keyvals...) })
}

func Error(message string, keyvals ...any) {
	each(func(l LoggerInstance) { l.Error(message, keyvals...) })
}

// Fatal writes a message at FATAL level and terminates the program, also
// when no backend is installed.
func Fatal(message string, keyvals ...any) {
	each(func(l LoggerInstance) { l.Fatal(message, keyvals...) })
	os.Exit(1)
}
