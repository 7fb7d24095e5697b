package cpqlorm

// This file defines the typed AST the parser produces (spec.md §3). It
// is net-new relative to the teacher, but structurally mirrors the
// teacher's query.go: whereClause/cond's recursive, operator-tagged
// linked list is generalized here into a proper Expression sum type, and
// the binaryOp enum becomes BinaryOp.

// JoinKind enumerates the three join types CPQL accepts (spec.md §3, §6).
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
)

// EntityRef names an entity and an optional alias in a FROM/UPDATE/DELETE
// target (spec.md §3).
type EntityRef struct {
	Name  string
	Alias string
}

// Join is one `[joinType] JOIN alias.property [alias]` clause.
type Join struct {
	Kind  JoinKind
	Path  PropertyPath
	Alias string
}

// PropertyPath is an `alias.property` reference.
type PropertyPath struct {
	Alias    string
	Property string
}

// OrderItem is one ORDER BY entry.
type OrderItem struct {
	Expr       Expression
	Descending bool
}

// Assignment is one `alias.property = expr` entry in an UPDATE's SET
// list.
type Assignment struct {
	Target PropertyPath
	Value  Expression
}

// Query is the tagged union the parser produces: exactly one of Select,
// Update, Delete is non-nil.
type Query struct {
	Select *SelectQuery
	Update *UpdateQuery
	Delete *DeleteQuery

	// ParameterNames is the deduplicated, first-seen-order set of every
	// `:name` occurrence in the source text (spec.md §4.C, tested by
	// §8's first invariant).
	ParameterNames []string
}

// SelectQuery is the AST for a parsed SELECT (spec.md §3).
type SelectQuery struct {
	IsDistinct bool
	Items      []ProjectionItem
	From       EntityRef
	Joins      []Join
	Where      Expression // nil if absent
	GroupBy    []Expression
	Having     Expression // nil if absent
	OrderBy    []OrderItem
}

// ProjectionItem is one selected expression, with an optional alias.
type ProjectionItem struct {
	Expr  Expression
	Alias string // empty if none given
}

// UpdateQuery is the AST for a parsed UPDATE (spec.md §3).
type UpdateQuery struct {
	Target      EntityRef
	Assignments []Assignment
	Where       Expression
}

// DeleteQuery is the AST for a parsed DELETE (spec.md §3).
type DeleteQuery struct {
	Target EntityRef
	Where  Expression
}

// Expression is the recursive sum type spec.md §3 names: Column,
// Parameter, Literal, Aggregate, Function, Binary, Unary, In, Between,
// Like, IsNull, Case. Each variant below implements the marker method so
// only these types satisfy Expression.
type Expression interface {
	expressionNode()
}

// Column is a bare `alias.PropertyName` or bare `alias` reference
// (Property == "" in the latter case, e.g. `SELECT u FROM User u` or
// `COUNT(c)`).
type Column struct {
	Alias    string
	Property string
}

func (Column) expressionNode() {}

// Parameter is a `:name` reference.
type Parameter struct {
	Name string
}

func (Parameter) expressionNode() {}

// LiteralKind classifies a Literal's Go value.
type LiteralKind int

const (
	LiteralInteger LiteralKind = iota
	LiteralDecimal
	LiteralString
	LiteralBool
	LiteralNull
)

// Literal is a constant value embedded in the query text.
type Literal struct {
	Kind  LiteralKind
	Value any
}

func (Literal) expressionNode() {}

// AggregateKind enumerates the recognized aggregate function names.
type AggregateKind int

const (
	AggregateCount AggregateKind = iota
	AggregateSum
	AggregateAvg
	AggregateMin
	AggregateMax
)

// Aggregate is `COUNT(...)`, `SUM(...)`, etc. Operand is rewritten by the
// SQL generator per §4.D rule 2 when it is a bare Column with no
// Property.
type Aggregate struct {
	Kind     AggregateKind
	Operand  Expression
	Distinct bool
}

func (Aggregate) expressionNode() {}

// Function is a named function call with an argument list. CPQL's
// grammar (§6) does not enumerate scalar function names beyond
// aggregates; Function exists so the generator can pass through
// dialect-neutral scalar calls unchanged.
type Function struct {
	Name string
	Args []Expression
}

func (Function) expressionNode() {}

// BinaryOp enumerates the comparison/arithmetic/logical binary operators.
type BinaryOp int

const (
	OpOr BinaryOp = iota
	OpAnd
	OpEq
	OpNotEq
	OpLt
	OpLtEq
	OpGt
	OpGtEq
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
)

// Binary is `left op right`.
type Binary struct {
	Op    BinaryOp
	Left  Expression
	Right Expression
}

func (Binary) expressionNode() {}

// UnaryOp enumerates the unary operators (NOT, unary minus).
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNeg
)

// Unary is `op operand`.
type Unary struct {
	Op      UnaryOp
	Operand Expression
}

func (Unary) expressionNode() {}

// In is `operand IN (list)` or `operand IN :param`.
type In struct {
	Operand Expression
	List    []Expression // nil if Param is set
	Param   *Parameter
	Negate  bool
}

func (In) expressionNode() {}

// Between is `operand BETWEEN low AND high`.
type Between struct {
	Operand Expression
	Low     Expression
	High    Expression
	Negate  bool
}

func (Between) expressionNode() {}

// Like is `operand LIKE pattern`.
type Like struct {
	Operand Expression
	Pattern Expression
	Negate  bool
}

func (Like) expressionNode() {}

// IsNull is `operand IS [NOT] NULL`.
type IsNull struct {
	Operand Expression
	Negate  bool
}

func (IsNull) expressionNode() {}

// CaseWhen is one `WHEN cond THEN result` arm of a Case expression. CPQL's
// normative grammar (spec.md §6) does not expose CASE syntax directly,
// but spec.md §3 lists Case in the Expression sum for forward
// compatibility with named-query text that embeds it verbatim; the
// parser does not currently produce Case nodes.
type CaseWhen struct {
	Condition Expression
	Result    Expression
}

// Case is a CASE WHEN ... THEN ... [ELSE ...] END expression.
type Case struct {
	Whens []CaseWhen
	Else  Expression // nil if absent
}

func (Case) expressionNode() {}
