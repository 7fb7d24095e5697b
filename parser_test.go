package cpqlorm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSelectBareAliasProjection(t *testing.T) {
	q, err := Parse("SELECT u FROM User u WHERE u.active = :active")
	require.NoError(t, err)
	require.NotNil(t, q.Select)
	require.Equal(t, "User", q.Select.From.Name)
	require.Equal(t, "u", q.Select.From.Alias)
	require.Equal(t, []string{"active"}, q.ParameterNames)
}

func TestParseDeduplicatesParameterNames(t *testing.T) {
	q, err := Parse("SELECT u FROM User u WHERE u.id = :id OR u.parentId = :id")
	require.NoError(t, err)
	require.Equal(t, []string{"id"}, q.ParameterNames)
}

func TestParseJoinDefaultsInnerAndAliasToProperty(t *testing.T) {
	q, err := Parse("SELECT u FROM User u JOIN u.orders WHERE u.id = :id")
	require.NoError(t, err)
	require.Len(t, q.Select.Joins, 1)
	require.Equal(t, JoinInner, q.Select.Joins[0].Kind)
	require.Equal(t, "orders", q.Select.Joins[0].Alias)
}

func TestParseExplicitJoinKindAndAlias(t *testing.T) {
	q, err := Parse("SELECT u FROM User u LEFT JOIN u.orders o WHERE o.total > :min")
	require.NoError(t, err)
	require.Equal(t, JoinLeft, q.Select.Joins[0].Kind)
	require.Equal(t, "o", q.Select.Joins[0].Alias)
}

func TestParseUpdateAssignments(t *testing.T) {
	q, err := Parse("UPDATE User u SET u.active = :active WHERE u.id = :id")
	require.NoError(t, err)
	require.NotNil(t, q.Update)
	require.Len(t, q.Update.Assignments, 1)
	require.Equal(t, "active", q.Update.Assignments[0].Target.Property)
}

func TestParseDelete(t *testing.T) {
	q, err := Parse("DELETE FROM User u WHERE u.id = :id")
	require.NoError(t, err)
	require.NotNil(t, q.Delete)
	require.Equal(t, "User", q.Delete.Target.Name)
}

func TestParseAggregateAndGroupByHaving(t *testing.T) {
	q, err := Parse("SELECT COUNT(o) FROM Order o GROUP BY o.customerId HAVING COUNT(o) > :min ORDER BY o.customerId DESC")
	require.NoError(t, err)
	require.Len(t, q.Select.GroupBy, 1)
	require.NotNil(t, q.Select.Having)
	require.True(t, q.Select.OrderBy[0].Descending)
}

func TestParseInListAndParam(t *testing.T) {
	q, err := Parse("SELECT u FROM User u WHERE u.status IN ('a', 'b')")
	require.NoError(t, err)
	require.NotNil(t, q.Select.Where)

	q2, err := Parse("SELECT u FROM User u WHERE u.id IN :ids")
	require.NoError(t, err)
	require.Equal(t, []string{"ids"}, q2.ParameterNames)
}

func TestParseBetweenAndIsNull(t *testing.T) {
	q, err := Parse("SELECT u FROM User u WHERE u.age BETWEEN :lo AND :hi AND u.deletedAt IS NULL")
	require.NoError(t, err)
	require.Equal(t, []string{"lo", "hi"}, q.ParameterNames)
}

func TestParseRejectsTrailingGarbage(t *testing.T) {
	_, err := Parse("SELECT u FROM User u WHERE u.id = :id GARBAGE")
	require.Error(t, err)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestParseUnknownCharacterPropagatesLexError(t *testing.T) {
	_, err := Parse("SELECT u FROM User u WHERE u.id ! :id")
	require.Error(t, err)
	var lexErr *LexError
	require.ErrorAs(t, err, &lexErr)
}
