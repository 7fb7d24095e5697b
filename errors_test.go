package cpqlorm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapExecutorErrorClassifiesDuplicateKey(t *testing.T) {
	inner := errors.New(`pq: duplicate key value violates unique constraint "users_email_key"`)
	err := WrapExecutorError("insert", "INSERT INTO users ...", []any{"a@example.com"}, inner)

	require.True(t, IsDuplicateKey(err))
	require.Contains(t, err.Error(), "insert failed")
	require.Contains(t, err.Error(), "INSERT INTO users")
}

func TestWrapExecutorErrorClassifiesForeignKeyViolation(t *testing.T) {
	inner := errors.New("FOREIGN KEY constraint failed")
	err := WrapExecutorError("delete", "DELETE FROM users WHERE id = ?", nil, inner)
	require.True(t, IsForeignKeyViolation(err))
}

func TestWrapExecutorErrorClassifiesDeadlockAndSerialization(t *testing.T) {
	deadlockErr := WrapExecutorError("update", "UPDATE users SET ...", nil, errors.New("Deadlock found when trying to get lock"))
	require.True(t, IsDeadlock(deadlockErr))

	serErr := WrapExecutorError("update", "UPDATE users SET ...", nil, errors.New("could not serialize access due to concurrent update"))
	require.True(t, IsSerializationFailure(serErr))
}

func TestWrapExecutorErrorClassifiesNotFound(t *testing.T) {
	err := WrapExecutorError("query", "SELECT 1", nil, errors.New("sql: no rows in result set"))
	require.True(t, IsNotFound(err))
}

func TestWrapExecutorErrorNilPassesThrough(t *testing.T) {
	require.Nil(t, WrapExecutorError("query", "SELECT 1", nil, nil))
}

func TestWrapExecutorErrorDefaultsToGenericSentinel(t *testing.T) {
	err := WrapExecutorError("query", "SELECT 1", nil, errors.New("something truly unexpected"))
	require.False(t, IsNotFound(err))
	require.False(t, IsDuplicateKey(err))
	require.False(t, IsForeignKeyViolation(err))
}

func TestExecutorErrorUnwrapsToSentinel(t *testing.T) {
	err := WrapExecutorError("query", "SELECT 1", nil, errors.New("no rows in result set"))
	require.True(t, errors.Is(err, ErrRecordNotFound))

	ee, ok := GetExecutorError(err)
	require.True(t, ok)
	require.Equal(t, "query", ee.Operation)
}

func TestExecutorErrorTruncatesLongArgs(t *testing.T) {
	longArg := make([]any, 0, 50)
	for i := 0; i < 50; i++ {
		longArg = append(longArg, "argument-value-padding-to-make-this-long")
	}
	err := WrapExecutorError("insert", "INSERT INTO users ...", longArg, errors.New("boom"))
	require.Contains(t, err.Error(), "...]")
}

func TestValidationErrorFormatsWithAndWithoutField(t *testing.T) {
	withField := &ValidationError{Entity: "User", Field: "Id", Message: "missing primary key"}
	require.Equal(t, "cpqlorm: User.Id: missing primary key", withField.Error())

	withoutField := &ValidationError{Entity: "User", Message: "duplicate entity name"}
	require.Equal(t, "cpqlorm: User: duplicate entity name", withoutField.Error())
}

func TestLexErrorAndParseErrorFormatting(t *testing.T) {
	lexErr := &LexError{Position: 5, Message: "unexpected character '!'"}
	require.Contains(t, lexErr.Error(), "lex error at 5")

	parseErr := &ParseError{Position: 10, Expected: "FROM", Found: "WHERE"}
	require.Contains(t, parseErr.Error(), "expected FROM, found WHERE")
}

func TestIsCrossTenantViolation(t *testing.T) {
	wrapped := errors.New("blocked: " + ErrCrossTenantViolation.Error())
	require.False(t, IsCrossTenantViolation(wrapped))
	require.True(t, IsCrossTenantViolation(ErrCrossTenantViolation))
}
