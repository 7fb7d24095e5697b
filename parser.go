package cpqlorm

// Parser is a hand-written recursive-descent parser over the CPQL token
// stream (spec.md §4.C). Net-new relative to the teacher (no lexer or
// parser exists there), but structured like the teacher's query.go
// builder: each grammar production below has a direct counterpart in
// query.go's fluent Where/OrderBy/GroupBy/Join methods, just parsed from
// text instead of assembled from Go call chains. Parsing is single-shot:
// on error, Parse returns immediately with no recovery, matching §4.C's
// stated failure mode.
type Parser struct {
	tokens []Token
	pos    int
	params []string
	seen   map[string]bool
}

// Parse lexes and parses src into a Query.
func Parse(src string) (*Query, error) {
	tokens, err := NewLexer(src).Tokenize()
	if err != nil {
		return nil, err
	}
	p := &Parser{tokens: tokens, seen: make(map[string]bool)}
	return p.parseQuery()
}

func (p *Parser) cur() Token       { return p.tokens[p.pos] }
func (p *Parser) curKind() TokenKind { return p.tokens[p.pos].Kind }

func (p *Parser) advance() Token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) check(kind TokenKind) bool { return p.curKind() == kind }

func (p *Parser) match(kind TokenKind) (Token, bool) {
	if p.check(kind) {
		return p.advance(), true
	}
	return Token{}, false
}

func (p *Parser) expect(kind TokenKind) (Token, error) {
	if t, ok := p.match(kind); ok {
		return t, nil
	}
	return Token{}, &ParseError{Position: p.cur().Position, Expected: kind.String(), Found: p.cur().Kind.String()}
}

func (p *Parser) parseQuery() (*Query, error) {
	q := &Query{}
	var err error

	switch p.curKind() {
	case TokSelect:
		q.Select, err = p.parseSelect()
	case TokUpdate:
		q.Update, err = p.parseUpdate()
	case TokDelete:
		q.Delete, err = p.parseDelete()
	default:
		err = &ParseError{Position: p.cur().Position, Expected: "SELECT, UPDATE, or DELETE", Found: p.curKind().String()}
	}
	if err != nil {
		return nil, err
	}

	if !p.check(TokEOF) {
		return nil, &ParseError{Position: p.cur().Position, Expected: "end of input", Found: p.curKind().String()}
	}

	q.ParameterNames = p.params
	return q, nil
}

func (p *Parser) parseSelect() (*SelectQuery, error) {
	if _, err := p.expect(TokSelect); err != nil {
		return nil, err
	}
	sq := &SelectQuery{}
	if _, ok := p.match(TokDistinct); ok {
		sq.IsDistinct = true
	}

	items, err := p.parseProjList()
	if err != nil {
		return nil, err
	}
	sq.Items = items

	if _, err := p.expect(TokFrom); err != nil {
		return nil, err
	}
	ref, err := p.parseEntityRef()
	if err != nil {
		return nil, err
	}
	sq.From = ref

	for p.curKind() == TokInner || p.curKind() == TokLeft || p.curKind() == TokRight || p.curKind() == TokJoin {
		j, err := p.parseJoin()
		if err != nil {
			return nil, err
		}
		sq.Joins = append(sq.Joins, j)
	}

	if _, ok := p.match(TokWhere); ok {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		sq.Where = expr
	}

	if p.curKind() == TokGroup {
		p.advance()
		if _, err := p.expect(TokBy); err != nil {
			return nil, err
		}
		exprs, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		sq.GroupBy = exprs
	}

	if _, ok := p.match(TokHaving); ok {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		sq.Having = expr
	}

	if p.curKind() == TokOrder {
		p.advance()
		if _, err := p.expect(TokBy); err != nil {
			return nil, err
		}
		items, err := p.parseOrderItems()
		if err != nil {
			return nil, err
		}
		sq.OrderBy = items
	}

	return sq, nil
}

func (p *Parser) parseUpdate() (*UpdateQuery, error) {
	if _, err := p.expect(TokUpdate); err != nil {
		return nil, err
	}
	ref, err := p.parseEntityRef()
	if err != nil {
		return nil, err
	}
	uq := &UpdateQuery{Target: ref}

	if _, err := p.expect(TokSet); err != nil {
		return nil, err
	}

	for {
		assign, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		uq.Assignments = append(uq.Assignments, assign)
		if _, ok := p.match(TokComma); !ok {
			break
		}
	}

	if _, ok := p.match(TokWhere); ok {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		uq.Where = expr
	}

	return uq, nil
}

func (p *Parser) parseDelete() (*DeleteQuery, error) {
	if _, err := p.expect(TokDelete); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokFrom); err != nil {
		return nil, err
	}
	ref, err := p.parseEntityRef()
	if err != nil {
		return nil, err
	}
	dq := &DeleteQuery{Target: ref}

	if _, ok := p.match(TokWhere); ok {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		dq.Where = expr
	}

	return dq, nil
}

// parseEntityRef accepts `ident [ident]` — a name and optional alias.
// Names are accepted here even if their lexeme collides with a keyword
// (spec.md §4.C): the lexer emits a keyword lexeme that directly follows
// FROM, UPDATE or '.' as TokIdent, so an entity called Order reaches
// this position as an identifier.
func (p *Parser) parseEntityRef() (EntityRef, error) {
	name, err := p.expect(TokIdent)
	if err != nil {
		return EntityRef{}, err
	}
	ref := EntityRef{Name: name.Lexeme}
	if p.check(TokIdent) {
		ref.Alias = p.advance().Lexeme
	}
	return ref, nil
}

func (p *Parser) parseJoin() (Join, error) {
	kind := JoinInner
	switch p.curKind() {
	case TokInner:
		p.advance()
	case TokLeft:
		p.advance()
		kind = JoinLeft
	case TokRight:
		p.advance()
		kind = JoinRight
	}
	if _, err := p.expect(TokJoin); err != nil {
		return Join{}, err
	}
	alias, err := p.expect(TokIdent)
	if err != nil {
		return Join{}, err
	}
	if _, err := p.expect(TokDot); err != nil {
		return Join{}, err
	}
	prop, err := p.expect(TokIdent)
	if err != nil {
		return Join{}, err
	}
	j := Join{Kind: kind, Path: PropertyPath{Alias: alias.Lexeme, Property: prop.Lexeme}}
	if p.check(TokIdent) {
		j.Alias = p.advance().Lexeme
	} else {
		j.Alias = prop.Lexeme
	}
	return j, nil
}

func (p *Parser) parseProjList() ([]ProjectionItem, error) {
	var items []ProjectionItem
	for {
		item, err := p.parseProjItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if _, ok := p.match(TokComma); !ok {
			break
		}
	}
	return items, nil
}

func (p *Parser) parseProjItem() (ProjectionItem, error) {
	expr, err := p.parseExpression()
	if err != nil {
		return ProjectionItem{}, err
	}
	item := ProjectionItem{Expr: expr}
	if _, ok := p.match(TokAs); ok {
		alias, err := p.expect(TokIdent)
		if err != nil {
			return ProjectionItem{}, err
		}
		item.Alias = alias.Lexeme
	} else if p.check(TokIdent) {
		item.Alias = p.advance().Lexeme
	}
	return item, nil
}

func (p *Parser) parseExprList() ([]Expression, error) {
	var exprs []Expression
	for {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
		if _, ok := p.match(TokComma); !ok {
			break
		}
	}
	return exprs, nil
}

func (p *Parser) parseOrderItems() ([]OrderItem, error) {
	var items []OrderItem
	for {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		item := OrderItem{Expr: e}
		if _, ok := p.match(TokDesc); ok {
			item.Descending = true
		} else {
			p.match(TokAsc)
		}
		items = append(items, item)
		if _, ok := p.match(TokComma); !ok {
			break
		}
	}
	return items, nil
}

func (p *Parser) parseAssignment() (Assignment, error) {
	alias, err := p.expect(TokIdent)
	if err != nil {
		return Assignment{}, err
	}
	if _, err := p.expect(TokDot); err != nil {
		return Assignment{}, err
	}
	prop, err := p.expect(TokIdent)
	if err != nil {
		return Assignment{}, err
	}
	if _, err := p.expect(TokEq); err != nil {
		return Assignment{}, err
	}
	value, err := p.parseAdditive()
	if err != nil {
		return Assignment{}, err
	}
	return Assignment{Target: PropertyPath{Alias: alias.Lexeme, Property: prop.Lexeme}, Value: value}, nil
}

// Precedence ladder (lowest to highest): OR, AND, NOT, comparison
// (including LIKE/IN/BETWEEN/IS NULL), additive, multiplicative, unary,
// primary (spec.md §4.C).

func (p *Parser) parseExpression() (Expression, error) { return p.parseOr() }

func (p *Parser) parseOr() (Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.curKind() == TokOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expression, error) {
	left, err := p.parseNotLevel()
	if err != nil {
		return nil, err
	}
	for p.curKind() == TokAnd {
		p.advance()
		right, err := p.parseNotLevel()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNotLevel() (Expression, error) {
	if p.curKind() == TokNot {
		p.advance()
		operand, err := p.parseNotLevel()
		if err != nil {
			return nil, err
		}
		return Unary{Op: OpNot, Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (Expression, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	negate := false
	if p.curKind() == TokNot {
		p.advance()
		negate = true
	}

	switch p.curKind() {
	case TokEq:
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return maybeNegate(Binary{Op: OpEq, Left: left, Right: right}, negate), nil
	case TokNotEq:
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return maybeNegate(Binary{Op: OpNotEq, Left: left, Right: right}, negate), nil
	case TokLt:
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return maybeNegate(Binary{Op: OpLt, Left: left, Right: right}, negate), nil
	case TokLtEq:
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return maybeNegate(Binary{Op: OpLtEq, Left: left, Right: right}, negate), nil
	case TokGt:
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return maybeNegate(Binary{Op: OpGt, Left: left, Right: right}, negate), nil
	case TokGtEq:
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return maybeNegate(Binary{Op: OpGtEq, Left: left, Right: right}, negate), nil
	case TokLike:
		p.advance()
		pattern, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return Like{Operand: left, Pattern: pattern, Negate: negate}, nil
	case TokIn:
		p.advance()
		return p.parseInTail(left, negate)
	case TokBetween:
		p.advance()
		low, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokAnd); err != nil {
			return nil, err
		}
		high, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return Between{Operand: left, Low: low, High: high, Negate: negate}, nil
	case TokIs:
		if negate {
			return nil, &ParseError{Position: p.cur().Position, Expected: "comparison operator", Found: "NOT IS"}
		}
		p.advance()
		innerNegate := false
		if p.curKind() == TokNot {
			p.advance()
			innerNegate = true
		}
		if _, err := p.expect(TokNull); err != nil {
			return nil, err
		}
		return IsNull{Operand: left, Negate: innerNegate}, nil
	default:
		if negate {
			return nil, &ParseError{Position: p.cur().Position, Expected: "IN, LIKE, or BETWEEN after NOT", Found: p.curKind().String()}
		}
		return left, nil
	}
}

func maybeNegate(b Binary, negate bool) Expression {
	if !negate {
		return b
	}
	return Unary{Op: OpNot, Operand: b}
}

func (p *Parser) parseInTail(operand Expression, negate bool) (Expression, error) {
	if p.curKind() == TokParameter {
		param := p.advance()
		p.recordParameter(param.Lexeme)
		return In{Operand: operand, Param: &Parameter{Name: param.Lexeme}, Negate: negate}, nil
	}
	if _, err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	list, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	return In{Operand: operand, List: list, Negate: negate}, nil
}

func (p *Parser) parseAdditive() (Expression, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.curKind() == TokPlus || p.curKind() == TokMinus {
		op := OpAdd
		if p.curKind() == TokMinus {
			op = OpSub
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.curKind() == TokStar || p.curKind() == TokSlash || p.curKind() == TokPercent {
		var op BinaryOp
		switch p.curKind() {
		case TokStar:
			op = OpMul
		case TokSlash:
			op = OpDiv
		default:
			op = OpMod
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expression, error) {
	if p.curKind() == TokMinus {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Unary{Op: OpNeg, Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expression, error) {
	switch p.curKind() {
	case TokLParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return expr, nil
	case TokParameter:
		t := p.advance()
		p.recordParameter(t.Lexeme)
		return Parameter{Name: t.Lexeme}, nil
	case TokString:
		t := p.advance()
		return Literal{Kind: LiteralString, Value: t.Lexeme}, nil
	case TokInteger:
		t := p.advance()
		return Literal{Kind: LiteralInteger, Value: t.Lexeme}, nil
	case TokDecimal:
		t := p.advance()
		return Literal{Kind: LiteralDecimal, Value: t.Lexeme}, nil
	case TokTrue:
		p.advance()
		return Literal{Kind: LiteralBool, Value: true}, nil
	case TokFalse:
		p.advance()
		return Literal{Kind: LiteralBool, Value: false}, nil
	case TokNull:
		p.advance()
		return Literal{Kind: LiteralNull, Value: nil}, nil
	case TokCount, TokSum, TokAvg, TokMin, TokMax:
		return p.parseAggregate()
	case TokIdent:
		return p.parseColumnOrFunction()
	default:
		return nil, &ParseError{Position: p.cur().Position, Expected: "expression", Found: p.curKind().String()}
	}
}

func (p *Parser) parseAggregate() (Expression, error) {
	var kind AggregateKind
	switch p.curKind() {
	case TokCount:
		kind = AggregateCount
	case TokSum:
		kind = AggregateSum
	case TokAvg:
		kind = AggregateAvg
	case TokMin:
		kind = AggregateMin
	case TokMax:
		kind = AggregateMax
	}
	p.advance()
	if _, err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	distinct := false
	if _, ok := p.match(TokDistinct); ok {
		distinct = true
	}
	operand, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	return Aggregate{Kind: kind, Operand: operand, Distinct: distinct}, nil
}

// parseColumnOrFunction accepts `alias`, `alias.property`, or
// `name(args...)` — a bare identifier is a collection-valued alias
// reference (e.g. `SELECT u FROM User u` or `COUNT(c)`); followed by a
// dot it is a property path; followed by a paren it is a function call.
func (p *Parser) parseColumnOrFunction() (Expression, error) {
	name := p.advance()

	if _, ok := p.match(TokLParen); ok {
		var args []Expression
		if !p.check(TokRParen) {
			list, err := p.parseExprList()
			if err != nil {
				return nil, err
			}
			args = list
		}
		if _, err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return Function{Name: name.Lexeme, Args: args}, nil
	}

	if _, ok := p.match(TokDot); ok {
		prop, err := p.expect(TokIdent)
		if err != nil {
			return nil, err
		}
		return Column{Alias: name.Lexeme, Property: prop.Lexeme}, nil
	}

	return Column{Alias: name.Lexeme}, nil
}

func (p *Parser) recordParameter(name string) {
	if p.seen[name] {
		return
	}
	p.seen[name] = true
	p.params = append(p.params, name)
}
