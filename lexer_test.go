package cpqlorm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLexerTokenizesKeywordsCaseInsensitively(t *testing.T) {
	toks, err := NewLexer("select e from Entity e where e.id = :id").Tokenize()
	require.NoError(t, err)
	require.Equal(t, TokSelect, toks[0].Kind)
	require.Equal(t, TokFrom, toks[2].Kind)
	require.Equal(t, TokWhere, toks[5].Kind)
}

func TestLexerParameterRequiresName(t *testing.T) {
	_, err := NewLexer("select e from Entity e where e.id = :").Tokenize()
	require.Error(t, err)
	var lexErr *LexError
	require.ErrorAs(t, err, &lexErr)
}

func TestLexerStringEscapes(t *testing.T) {
	toks, err := NewLexer(`'it\'s a \\test\\'`).Tokenize()
	require.NoError(t, err)
	require.Equal(t, TokString, toks[0].Kind)
	require.Equal(t, `it's a \test\`, toks[0].Lexeme)
}

func TestLexerStringUnknownEscapeErrors(t *testing.T) {
	_, err := NewLexer(`'bad \q escape'`).Tokenize()
	require.Error(t, err)
}

func TestLexerUnterminatedStringErrors(t *testing.T) {
	_, err := NewLexer(`'unterminated`).Tokenize()
	require.Error(t, err)
}

func TestLexerNumberKinds(t *testing.T) {
	toks, err := NewLexer("42 3.14").Tokenize()
	require.NoError(t, err)
	require.Equal(t, TokInteger, toks[0].Kind)
	require.Equal(t, TokDecimal, toks[1].Kind)
}

func TestLexerComments(t *testing.T) {
	toks, err := NewLexer("select e -- trailing comment\nfrom Entity e /* block */ where e.id = :id").Tokenize()
	require.NoError(t, err)
	require.Equal(t, TokSelect, toks[0].Kind)
}

func TestLexerRejectsUnknownOperator(t *testing.T) {
	_, err := NewLexer("e.id ! 1").Tokenize()
	require.Error(t, err)
}
