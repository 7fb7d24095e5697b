package cpqlorm

import "log"

// Logger is the minimal sink the core writes to for the one observable
// side effect spec.md itself requires: §4.D rule 7 notes that an explicit
// DELETE issued with no tenant context bypasses the tenant filter and
// "the decision is logged". No logging package is a hard dependency —
// any type satisfying this interface (including *log.Logger) can be
// plugged in via WithLogger, and the zero value is a silent no-op.
type Logger interface {
	Printf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

// StdLogger adapts the standard library's *log.Logger to Logger.
func StdLogger(l *log.Logger) Logger { return stdLoggerAdapter{l} }

type stdLoggerAdapter struct{ l *log.Logger }

func (a stdLoggerAdapter) Printf(format string, args ...any) { a.l.Printf(format, args...) }
