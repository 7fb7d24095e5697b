package cpqlorm

import (
	"errors"
	"fmt"
	"strings"
)

// Lexer and parser errors

// LexError reports malformed CPQL source text.
type LexError struct {
	Position int
	Message  string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("cpqlorm: lex error at %d: %s", e.Position, e.Message)
}

// ParseError reports a CPQL token stream that does not match the grammar.
type ParseError struct {
	Position int
	Expected string
	Found    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cpqlorm: parse error at %d: expected %s, found %s", e.Position, e.Expected, e.Found)
}

// Metadata / name resolution errors

var (
	ErrUnknownEntity       = errors.New("cpqlorm: unknown entity")
	ErrUnknownProperty     = errors.New("cpqlorm: unknown property")
	ErrUnknownAlias        = errors.New("cpqlorm: unknown alias")
	ErrUnknownRelationship = errors.New("cpqlorm: unknown relationship")
	ErrUnknownParameter    = errors.New("cpqlorm: unknown parameter")
)

// Valid syntax, invalid semantics

var (
	ErrUnsupportedFeature = errors.New("cpqlorm: unsupported feature")
	ErrAmbiguousAggregate = errors.New("cpqlorm: ambiguous aggregate over collection-valued path")
)

// Result-shape and tenancy errors

var (
	ErrNonUnique             = errors.New("cpqlorm: single-row query returned more than one row")
	ErrCrossTenantViolation  = errors.New("cpqlorm: ambient tenant does not match entity tenant")
	ErrConcurrencyConflict   = errors.New("cpqlorm: optimistic concurrency conflict") // reserved
	ErrNoPrimaryKeyValue     = errors.New("cpqlorm: entity has no primary key value")
	ErrRegistryAlreadyClosed = errors.New("cpqlorm: metadata registry already built")
)

// Driver-level classification sentinels, surfaced wrapped inside ExecutorError.

var (
	ErrRecordNotFound       = errors.New("cpqlorm: record not found")
	ErrDuplicateKey         = errors.New("cpqlorm: duplicate key violation")
	ErrForeignKeyViolation  = errors.New("cpqlorm: foreign key violation")
	ErrNotNullViolation     = errors.New("cpqlorm: not-null violation")
	ErrCheckViolation       = errors.New("cpqlorm: check constraint violation")
	ErrDeadlock             = errors.New("cpqlorm: transaction deadlock")
	ErrSerializationFailure = errors.New("cpqlorm: serialization failure")
	ErrConnectionFailed     = errors.New("cpqlorm: connection failed")
	ErrConnectionLost       = errors.New("cpqlorm: connection lost")
	ErrExecutorTimeout      = errors.New("cpqlorm: executor timeout")
)

// ExecutorError wraps any failure surfaced by the underlying connection
// (spec.md §7: ExecutorError(inner)). Query and Args are retained for
// diagnostics; Args is truncated by formatArgs when printed.
type ExecutorError struct {
	Operation string
	Query     string
	Args      []any
	Err       error
}

func (e *ExecutorError) Error() string {
	var b strings.Builder
	b.WriteString("cpqlorm: ")
	b.WriteString(e.Operation)
	b.WriteString(" failed: ")
	b.WriteString(e.Err.Error())
	if e.Query != "" {
		b.WriteString("\n  query: ")
		b.WriteString(e.Query)
	}
	if len(e.Args) > 0 {
		b.WriteString("\n  args: ")
		b.WriteString(formatArgs(e.Args))
	}
	return b.String()
}

func (e *ExecutorError) Unwrap() error { return e.Err }

func formatArgs(args []any) string {
	s := fmt.Sprintf("%v", args)
	if len(s) > 200 {
		return s[:200] + "...]"
	}
	return s
}

// ValidationError reports a descriptor or configuration problem detected
// while building the metadata registry.
type ValidationError struct {
	Entity  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("cpqlorm: %s.%s: %s", e.Entity, e.Field, e.Message)
	}
	return fmt.Sprintf("cpqlorm: %s: %s", e.Entity, e.Message)
}

// WrapExecutorError classifies a raw driver error into the taxonomy above
// and wraps it in an *ExecutorError. Classification is a best-effort
// substring match against Postgres/MySQL/SQLite error text, mirroring the
// cross-dialect error surface the executor boundary has to tolerate since
// database/sql does not normalize driver errors.
func WrapExecutorError(operation, query string, args []any, err error) error {
	if err == nil {
		return nil
	}

	sentinel := classifyDriverError(err)
	wrapped := fmt.Errorf("%w: %v", sentinel, err)

	return &ExecutorError{
		Operation: operation,
		Query:     query,
		Args:      args,
		Err:       wrapped,
	}
}

func classifyDriverError(err error) error {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "no rows"):
		return ErrRecordNotFound
	case strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint") || strings.Contains(msg, "unique violation"):
		return ErrDuplicateKey
	case strings.Contains(msg, "foreign key"):
		return ErrForeignKeyViolation
	case strings.Contains(msg, "not null") || strings.Contains(msg, "null value"):
		return ErrNotNullViolation
	case strings.Contains(msg, "check constraint"):
		return ErrCheckViolation
	case strings.Contains(msg, "deadlock"):
		return ErrDeadlock
	case strings.Contains(msg, "could not serialize") || strings.Contains(msg, "serialization"):
		return ErrSerializationFailure
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host"):
		return ErrConnectionFailed
	case strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe") || strings.Contains(msg, "bad connection"):
		return ErrConnectionLost
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "context deadline exceeded"):
		return ErrExecutorTimeout
	default:
		return errors.New("cpqlorm: executor error")
	}
}

// IsNotFound reports whether err (or any error it wraps) indicates a
// missing row.
func IsNotFound(err error) bool { return errors.Is(err, ErrRecordNotFound) }

// IsDuplicateKey reports a unique-constraint violation.
func IsDuplicateKey(err error) bool { return errors.Is(err, ErrDuplicateKey) }

// IsForeignKeyViolation reports a foreign-key violation.
func IsForeignKeyViolation(err error) bool { return errors.Is(err, ErrForeignKeyViolation) }

// IsCrossTenantViolation reports a tenant-mismatch failure on merge/remove.
func IsCrossTenantViolation(err error) bool { return errors.Is(err, ErrCrossTenantViolation) }

// IsDeadlock reports a transaction deadlock.
func IsDeadlock(err error) bool { return errors.Is(err, ErrDeadlock) }

// IsSerializationFailure reports a serializable-isolation conflict.
func IsSerializationFailure(err error) bool { return errors.Is(err, ErrSerializationFailure) }

// GetExecutorError unwraps err into its *ExecutorError, if any.
func GetExecutorError(err error) (*ExecutorError, bool) {
	var ee *ExecutorError
	ok := errors.As(err, &ee)
	return ee, ok
}
