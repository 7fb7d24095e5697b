package cpqlorm

import "strings"

// TokenKind classifies one lexeme produced by the lexer (spec.md §4.B).
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokIdent
	TokString
	TokInteger
	TokDecimal
	TokParameter // :name

	// Punctuation
	TokLParen
	TokRParen
	TokComma
	TokDot
	TokSemicolon
	TokColon

	// Operators
	TokEq
	TokNotEq
	TokLt
	TokLtEq
	TokGt
	TokGtEq
	TokPlus
	TokMinus
	TokStar
	TokSlash
	TokPercent

	// Keywords
	TokSelect
	TokFrom
	TokWhere
	TokJoin
	TokInner
	TokLeft
	TokRight
	TokOn
	TokGroup
	TokBy
	TokHaving
	TokOrder
	TokAsc
	TokDesc
	TokAnd
	TokOr
	TokNot
	TokIn
	TokBetween
	TokLike
	TokIs
	TokNull
	TokDistinct
	TokUpdate
	TokSet
	TokDelete
	TokTrue
	TokFalse
	TokAs
	TokCount
	TokSum
	TokAvg
	TokMin
	TokMax
)

var keywords = map[string]TokenKind{
	"SELECT":   TokSelect,
	"FROM":     TokFrom,
	"WHERE":    TokWhere,
	"JOIN":     TokJoin,
	"INNER":    TokInner,
	"LEFT":     TokLeft,
	"RIGHT":    TokRight,
	"ON":       TokOn,
	"GROUP":    TokGroup,
	"BY":       TokBy,
	"HAVING":   TokHaving,
	"ORDER":    TokOrder,
	"ASC":      TokAsc,
	"DESC":     TokDesc,
	"AND":      TokAnd,
	"OR":       TokOr,
	"NOT":      TokNot,
	"IN":       TokIn,
	"BETWEEN":  TokBetween,
	"LIKE":     TokLike,
	"IS":       TokIs,
	"NULL":     TokNull,
	"DISTINCT": TokDistinct,
	"UPDATE":   TokUpdate,
	"SET":      TokSet,
	"DELETE":   TokDelete,
	"TRUE":     TokTrue,
	"FALSE":    TokFalse,
	"AS":       TokAs,
	"COUNT":    TokCount,
	"SUM":      TokSum,
	"AVG":      TokAvg,
	"MIN":      TokMin,
	"MAX":      TokMax,
}

// lookupKeyword returns the keyword token kind for lexeme, or
// (TokIdent, false) if it is not a keyword. Keyword matching
// is case-insensitive; the caller preserves the original-case lexeme for
// TokIdent.
func lookupKeyword(lexeme string) (TokenKind, bool) {
	k, ok := keywords[strings.ToUpper(lexeme)]
	if !ok {
		return TokIdent, false
	}
	return k, true
}

// Token is one lexed unit: its kind, the source text it came from
// (original case preserved for identifiers), and its byte offset for
// diagnostics.
type Token struct {
	Kind     TokenKind
	Lexeme   string
	Position int
}

func (t TokenKind) String() string {
	switch t {
	case TokEOF:
		return "EOF"
	case TokIdent:
		return "identifier"
	case TokString:
		return "string literal"
	case TokInteger:
		return "integer literal"
	case TokDecimal:
		return "decimal literal"
	case TokParameter:
		return "parameter"
	default:
		for lit, k := range keywords {
			if k == t {
				return lit
			}
		}
		return "token"
	}
}
