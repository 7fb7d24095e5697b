package cpqlorm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// SQLGenerator turns a parsed CPQL Query into dialect-specific,
// parameterized SQL (spec.md §4.D). It is grounded on the teacher's
// query.go (toSqlSelect/toSqlUpdate/toSqlDelete, the placeholder
// generator functions) generalized from a fluent builder's internal
// state into a renderer over the parser's AST, and on dialect.go for the
// per-backend placeholder/quoting table.
type SQLGenerator struct {
	registry *Registry
	dialect  *Dialect
	logger   Logger
}

// NewSQLGenerator builds a generator bound to one metadata registry and
// one dialect.
func NewSQLGenerator(registry *Registry, dialect *Dialect) *SQLGenerator {
	return &SQLGenerator{registry: registry, dialect: dialect, logger: noopLogger{}}
}

// WithLogger attaches a logger used for the one observable side effect
// spec.md calls for: §4.D rule 7's "the decision is logged" when an
// explicit tenant-scoped DELETE bypasses the tenant filter.
func (g *SQLGenerator) WithLogger(l Logger) *SQLGenerator {
	g.logger = l
	return g
}

// GeneratedSQL is the generator's output: the rendered SQL text, the
// ordered (with repeats) list of parameter names each placeholder
// occurrence binds to, and, for SELECT statements, enough alias/property
// metadata for the query handle to materialize rows (spec.md §4.G).
type GeneratedSQL struct {
	SQL            string
	ParameterRefs  []string
	ResultColumns  []ResultColumn
	RootAlias      string
	RootEntity     string
	JoinedAliases  []JoinedAlias
	AutoTenantName string // non-empty iff a tenant predicate was injected
}

// ResultColumn records one `col AS PropertyName` projection so the query
// handle can route a scanned column back to an entity alias and
// property.
type ResultColumn struct {
	ColumnAlias string // the bare name after AS, e.g. "Id"
	EntityAlias string // which query alias this belongs to, e.g. "u"
	Property    string
}

// JoinedAlias records one join's alias, its relationship, and its
// target entity, so the query handle can row-collapse eager-fetched
// relationships using the root primary key as the grouping key.
type JoinedAlias struct {
	Alias        string
	ParentAlias  string
	Relationship *RelationshipDescriptor
	Entity       *EntityDescriptor
}

// aliasBinding tracks, during generation, which descriptor a query alias
// refers to.
type aliasBinding struct {
	alias string
	desc  *EntityDescriptor
}

type generation struct {
	gen       *SQLGenerator
	aliases   map[string]*aliasBinding
	joined    []JoinedAlias
	paramRefs []string
	posCount  int
}

// Generate renders q against the ambient tenant found on ctx.
func (g *SQLGenerator) Generate(ctx context.Context, q *Query) (*GeneratedSQL, error) {
	gctx := &generation{gen: g, aliases: make(map[string]*aliasBinding)}

	switch {
	case q.Select != nil:
		return gctx.generateSelect(ctx, q.Select)
	case q.Update != nil:
		return gctx.generateUpdate(ctx, q.Update)
	case q.Delete != nil:
		return gctx.generateDelete(ctx, q.Delete)
	default:
		return nil, fmt.Errorf("%w: empty query", ErrUnsupportedFeature)
	}
}

func (c *generation) quote(ident string) string { return c.gen.dialect.QuoteIdentifier(ident) }

func (c *generation) bindRoot(ref EntityRef) (*aliasBinding, error) {
	desc, err := c.gen.registry.Require(ref.Name)
	if err != nil {
		return nil, err
	}
	alias := ref.Alias
	if alias == "" {
		alias = ref.Name
	}
	b := &aliasBinding{alias: alias, desc: desc}
	c.aliases[alias] = b
	return b, nil
}

func (c *generation) bindJoins(joins []Join) error {
	for _, j := range joins {
		parent, ok := c.aliases[j.Path.Alias]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAlias, j.Path.Alias)
		}
		rel, ok := parent.desc.Relationships[j.Path.Property]
		if !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownRelationship, j.Path.Alias, j.Path.Property)
		}
		target, err := c.gen.registry.Require(rel.TargetEntity)
		if err != nil {
			return err
		}
		alias := j.Alias
		if alias == "" {
			alias = j.Path.Property
		}
		c.aliases[alias] = &aliasBinding{alias: alias, desc: target}
		c.joined = append(c.joined, JoinedAlias{Alias: alias, ParentAlias: parent.alias, Relationship: rel, Entity: target})
	}
	return nil
}

func (c *generation) nextParamRef(name string) string {
	c.posCount++
	c.paramRefs = append(c.paramRefs, name)
	return c.gen.dialect.Placeholder(c.posCount, name)
}

// generateSelect implements §4.D's rewrite rules 1-7 plus GROUP BY/HAVING/ORDER BY.
func (c *generation) generateSelect(ctx context.Context, sq *SelectQuery) (*GeneratedSQL, error) {
	root, err := c.bindRoot(sq.From)
	if err != nil {
		return nil, err
	}
	if err := c.bindJoins(sq.Joins); err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if sq.IsDistinct {
		b.WriteString("DISTINCT ")
	}

	var resultColumns []ResultColumn
	projSQL, cols, err := c.renderProjection(sq.Items)
	if err != nil {
		return nil, err
	}
	resultColumns = cols
	b.WriteString(projSQL)

	b.WriteString(" FROM ")
	b.WriteString(qualifiedTable(root.desc))
	b.WriteString(" AS ")
	b.WriteString(root.alias)

	for _, j := range c.joined {
		clause, err := c.renderJoinClause(j, relJoinKind(sq.Joins, j.Alias))
		if err != nil {
			return nil, err
		}
		b.WriteString(" ")
		b.WriteString(clause)
	}

	where := sq.Where
	autoTenant, err := c.maybeInjectTenant(ctx, root, &where, true)
	if err != nil {
		return nil, err
	}
	if where != nil {
		whereSQL, err := c.renderExpr(where, true)
		if err != nil {
			return nil, err
		}
		b.WriteString(" WHERE (")
		b.WriteString(whereSQL)
		b.WriteString(")")
	}

	if len(sq.GroupBy) > 0 {
		parts := make([]string, len(sq.GroupBy))
		for i, e := range sq.GroupBy {
			s, err := c.renderExpr(e, true)
			if err != nil {
				return nil, err
			}
			parts[i] = s
		}
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(parts, ", "))
	}

	if sq.Having != nil {
		s, err := c.renderExpr(sq.Having, true)
		if err != nil {
			return nil, err
		}
		b.WriteString(" HAVING ")
		b.WriteString(s)
	}

	if len(sq.OrderBy) > 0 {
		parts := make([]string, len(sq.OrderBy))
		for i, item := range sq.OrderBy {
			s, err := c.renderExpr(item.Expr, true)
			if err != nil {
				return nil, err
			}
			if item.Descending {
				s += " DESC"
			} else {
				s += " ASC"
			}
			parts[i] = s
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}

	return &GeneratedSQL{
		SQL:            b.String(),
		ParameterRefs:  c.paramRefs,
		ResultColumns:  resultColumns,
		RootAlias:      root.alias,
		RootEntity:     root.desc.Name,
		JoinedAliases:  c.joined,
		AutoTenantName: autoTenant,
	}, nil
}

// renderProjection implements rule 1 (bare-alias expansion) and the
// general "project a column as its property name" behavior §4.G relies
// on for materialization.
func (c *generation) renderProjection(items []ProjectionItem) (string, []ResultColumn, error) {
	var parts []string
	var cols []ResultColumn

	for _, item := range items {
		if col, ok := item.Expr.(Column); ok && col.Property == "" {
			binding, ok := c.aliases[col.Alias]
			if !ok {
				return "", nil, fmt.Errorf("%w: %s", ErrUnknownAlias, col.Alias)
			}
			for _, p := range binding.desc.Properties {
				parts = append(parts, fmt.Sprintf("%s.%s AS %s", binding.alias, p.ColumnName, c.quote(p.Name)))
				cols = append(cols, ResultColumn{ColumnAlias: p.Name, EntityAlias: binding.alias, Property: p.Name})
			}
			continue
		}

		if col, ok := item.Expr.(Column); ok {
			binding, ok := c.aliases[col.Alias]
			if !ok {
				return "", nil, fmt.Errorf("%w: %s", ErrUnknownAlias, col.Alias)
			}
			prop, ok := binding.desc.Property(col.Property)
			if !ok {
				return "", nil, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, col.Alias, col.Property)
			}
			alias := item.Alias
			if alias == "" {
				alias = prop.Name
			}
			parts = append(parts, fmt.Sprintf("%s.%s AS %s", binding.alias, prop.ColumnName, c.quote(alias)))
			cols = append(cols, ResultColumn{ColumnAlias: alias, EntityAlias: binding.alias, Property: prop.Name})
			continue
		}

		rendered, err := c.renderExpr(item.Expr, true)
		if err != nil {
			return "", nil, err
		}
		if item.Alias != "" {
			rendered += " AS " + c.quote(item.Alias)
		}
		parts = append(parts, rendered)
	}

	return strings.Join(parts, ", "), cols, nil
}

func qualifiedTable(d *EntityDescriptor) string {
	if d.Schema != "" {
		return d.Schema + "." + d.TableName
	}
	return d.TableName
}

// relJoinKind finds the parsed join kind for a bound alias; defaults to
// inner if not found (should not happen — every joined alias came from a
// parsed Join).
func relJoinKind(joins []Join, alias string) JoinKind {
	for _, j := range joins {
		a := j.Alias
		if a == "" {
			a = j.Path.Property
		}
		if a == alias {
			return j.Kind
		}
	}
	return JoinInner
}

// renderJoinClause implements §4.D rule 5, returning the full
// `[RIGHT|LEFT|INNER] JOIN table AS alias ON ...` text for one joined
// alias. ManyToMany is the one relationship kind whose single logical
// Join AST node requires two physical SQL joins (source -> join table,
// join table -> target); the join-table hop uses a synthetic alias
// (`<alias>_jt`) that is never exposed to the projection or to the
// caller's JoinedAlias list.
func (c *generation) renderJoinClause(j JoinedAlias, kind JoinKind) (string, error) {
	rel := j.Relationship
	source := j.ParentAlias
	target := j.Alias
	keyword := joinKeyword(kind)

	switch rel.Kind {
	case ManyToOne:
		targetKey := c.gen.registry.KeyPropertyFor(j.Entity)
		on := fmt.Sprintf("%s.%s = %s.%s", source, rel.JoinColumn.Name, target, targetKey.ColumnName)
		return fmt.Sprintf("%s %s AS %s ON %s", keyword, qualifiedTable(j.Entity), target, on), nil

	case OneToOne:
		if rel.IsOwner {
			targetKey := c.gen.registry.KeyPropertyFor(j.Entity)
			on := fmt.Sprintf("%s.%s = %s.%s", source, rel.JoinColumn.Name, target, targetKey.ColumnName)
			return fmt.Sprintf("%s %s AS %s ON %s", keyword, qualifiedTable(j.Entity), target, on), nil
		}
		fk, err := c.gen.registry.ForeignKeyFor(rel)
		if err != nil {
			return "", err
		}
		sourceKey := c.gen.registry.KeyPropertyFor(c.aliases[source].desc)
		on := fmt.Sprintf("%s.%s = %s.%s", source, sourceKey.ColumnName, target, fk)
		return fmt.Sprintf("%s %s AS %s ON %s", keyword, qualifiedTable(j.Entity), target, on), nil

	case OneToMany:
		fk, err := c.gen.registry.ForeignKeyFor(rel)
		if err != nil {
			return "", err
		}
		sourceKey := c.gen.registry.KeyPropertyFor(c.aliases[source].desc)
		on := fmt.Sprintf("%s.%s = %s.%s", source, sourceKey.ColumnName, target, fk)
		return fmt.Sprintf("%s %s AS %s ON %s", keyword, qualifiedTable(j.Entity), target, on), nil

	case ManyToMany:
		sourceKey := c.gen.registry.KeyPropertyFor(c.aliases[source].desc)
		targetKey := c.gen.registry.KeyPropertyFor(j.Entity)
		jtAlias := target + "_jt"
		jt := rel.JoinTable

		firstOn := fmt.Sprintf("%s.%s = %s.%s", source, sourceKey.ColumnName, jtAlias, jt.OwnerFKColumns[0])
		secondOn := fmt.Sprintf("%s.%s = %s.%s", jtAlias, jt.InverseFKColumns[0], target, targetKey.ColumnName)

		jtTable := jt.Name
		if jt.Schema != "" {
			jtTable = jt.Schema + "." + jt.Name
		}

		return fmt.Sprintf("%s %s AS %s ON %s %s %s AS %s ON %s",
			keyword, jtTable, jtAlias, firstOn,
			keyword, qualifiedTable(j.Entity), target, secondOn), nil

	default:
		return "", fmt.Errorf("%w: join kind", ErrUnsupportedFeature)
	}
}

// maybeInjectTenant implements §4.D rule 7. For SELECT, the predicate is
// alias-qualified; for UPDATE/DELETE (aliasForm=false) it is bare, since
// those statements never declare a table alias in the rendered SQL.
func (c *generation) maybeInjectTenant(ctx context.Context, root *aliasBinding, where *Expression, aliasForm bool) (string, error) {
	if root.desc.TenantProperty == nil {
		return "", nil
	}
	tenant, ok := CurrentTenant(ctx)
	if !ok {
		return "", nil
	}

	const autoParam = "__tenant"
	var col Expression
	if aliasForm {
		col = Column{Alias: root.alias, Property: root.desc.TenantProperty.Name}
	} else {
		col = rawColumn{name: root.desc.TenantProperty.ColumnName}
	}
	predicate := Binary{Op: OpEq, Left: col, Right: Parameter{Name: autoParam}}

	if *where == nil {
		*where = predicate
	} else {
		*where = Binary{Op: OpAnd, Left: *where, Right: predicate}
	}

	_ = tenant
	return autoParam, nil
}

// rawColumn is an internal Expression variant for a column reference
// that renders without an alias prefix — used only for the
// UPDATE/DELETE bare-column form (§4.D rule 8) where no table alias
// exists in the rendered SQL.
type rawColumn struct{ name string }

func (rawColumn) expressionNode() {}

// generateUpdate implements §4.D rule 8.
func (c *generation) generateUpdate(ctx context.Context, uq *UpdateQuery) (*GeneratedSQL, error) {
	root, err := c.bindRoot(uq.Target)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(qualifiedTable(root.desc))
	b.WriteString(" SET ")

	parts := make([]string, len(uq.Assignments))
	for i, a := range uq.Assignments {
		if a.Target.Alias != root.alias {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAlias, a.Target.Alias)
		}
		prop, ok := root.desc.Property(a.Target.Property)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProperty, a.Target.Property)
		}
		valueSQL, err := c.renderExpr(a.Value, false)
		if err != nil {
			return nil, err
		}
		parts[i] = fmt.Sprintf("%s = %s", prop.ColumnName, valueSQL)
	}
	b.WriteString(strings.Join(parts, ", "))

	where := uq.Where
	autoTenant, err := c.maybeInjectTenant(ctx, root, &where, false)
	if err != nil {
		return nil, err
	}
	if where != nil {
		whereSQL, err := c.renderExpr(where, false)
		if err != nil {
			return nil, err
		}
		b.WriteString(" WHERE (")
		b.WriteString(whereSQL)
		b.WriteString(")")
	}

	return &GeneratedSQL{
		SQL:            b.String(),
		ParameterRefs:  c.paramRefs,
		RootAlias:      root.alias,
		RootEntity:     root.desc.Name,
		AutoTenantName: autoTenant,
	}, nil
}

// generateDelete implements the DELETE counterpart of rule 8: no table
// alias is rendered, so WHERE uses bare column names, same as UPDATE.
func (c *generation) generateDelete(ctx context.Context, dq *DeleteQuery) (*GeneratedSQL, error) {
	root, err := c.bindRoot(dq.Target)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(qualifiedTable(root.desc))

	where := dq.Where
	autoTenant, err := c.maybeInjectTenant(ctx, root, &where, false)
	if err != nil {
		return nil, err
	}

	if root.desc.TenantProperty != nil && autoTenant == "" {
		if _, ok := CurrentTenant(ctx); !ok {
			c.gen.logger.Printf("cpqlorm: DELETE FROM %s issued with no tenant context; tenant filter bypassed", root.desc.TableName)
		}
	}

	if where != nil {
		whereSQL, err := c.renderExpr(where, false)
		if err != nil {
			return nil, err
		}
		b.WriteString(" WHERE (")
		b.WriteString(whereSQL)
		b.WriteString(")")
	}

	return &GeneratedSQL{
		SQL:            b.String(),
		ParameterRefs:  c.paramRefs,
		RootAlias:      root.alias,
		RootEntity:     root.desc.Name,
		AutoTenantName: autoTenant,
	}, nil
}

// renderExpr renders an Expression to SQL text. aliasForm controls
// whether Column nodes render with their alias prefix (SELECT/WHERE in a
// SELECT) or bare (UPDATE/DELETE, §4.D rule 8).
func (c *generation) renderExpr(e Expression, aliasForm bool) (string, error) {
	switch n := e.(type) {
	case rawColumn:
		return n.name, nil

	case Column:
		binding, ok := c.aliases[n.Alias]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownAlias, n.Alias)
		}
		if n.Property == "" {
			return "", fmt.Errorf("%w: bare alias %q used where a scalar value is required", ErrUnsupportedFeature, n.Alias)
		}
		prop, ok := binding.desc.Property(n.Property)
		if !ok {
			return "", fmt.Errorf("%w: %s.%s", ErrUnknownProperty, n.Alias, n.Property)
		}
		if aliasForm {
			return fmt.Sprintf("%s.%s", binding.alias, prop.ColumnName), nil
		}
		return prop.ColumnName, nil

	case Parameter:
		return c.nextParamRef(n.Name), nil

	case Literal:
		return renderLiteral(n), nil

	case Aggregate:
		return c.renderAggregate(n, aliasForm)

	case Function:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			s, err := c.renderExpr(a, aliasForm)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		return fmt.Sprintf("%s(%s)", strings.ToUpper(n.Name), strings.Join(args, ", ")), nil

	case Binary:
		left, err := c.renderExpr(n.Left, aliasForm)
		if err != nil {
			return "", err
		}
		right, err := c.renderExpr(n.Right, aliasForm)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", left, binaryOpSQL(n.Op), right), nil

	case Unary:
		operand, err := c.renderExpr(n.Operand, aliasForm)
		if err != nil {
			return "", err
		}
		if n.Op == OpNot {
			return fmt.Sprintf("NOT (%s)", operand), nil
		}
		return fmt.Sprintf("-(%s)", operand), nil

	case In:
		operand, err := c.renderExpr(n.Operand, aliasForm)
		if err != nil {
			return "", err
		}
		not := ""
		if n.Negate {
			not = "NOT "
		}
		if n.Param != nil {
			ref := c.nextParamRef(n.Param.Name)
			return fmt.Sprintf("%s %sIN %s", operand, not, ref), nil
		}
		parts := make([]string, len(n.List))
		for i, item := range n.List {
			s, err := c.renderExpr(item, aliasForm)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return fmt.Sprintf("%s %sIN (%s)", operand, not, strings.Join(parts, ", ")), nil

	case Between:
		operand, err := c.renderExpr(n.Operand, aliasForm)
		if err != nil {
			return "", err
		}
		low, err := c.renderExpr(n.Low, aliasForm)
		if err != nil {
			return "", err
		}
		high, err := c.renderExpr(n.High, aliasForm)
		if err != nil {
			return "", err
		}
		not := ""
		if n.Negate {
			not = "NOT "
		}
		return fmt.Sprintf("%s %sBETWEEN %s AND %s", operand, not, low, high), nil

	case Like:
		operand, err := c.renderExpr(n.Operand, aliasForm)
		if err != nil {
			return "", err
		}
		pattern, err := c.renderExpr(n.Pattern, aliasForm)
		if err != nil {
			return "", err
		}
		not := ""
		if n.Negate {
			not = "NOT "
		}
		return fmt.Sprintf("%s %sLIKE %s", operand, not, pattern), nil

	case IsNull:
		operand, err := c.renderExpr(n.Operand, aliasForm)
		if err != nil {
			return "", err
		}
		if n.Negate {
			return fmt.Sprintf("%s IS NOT NULL", operand), nil
		}
		return fmt.Sprintf("%s IS NULL", operand), nil

	case Case:
		var b strings.Builder
		b.WriteString("CASE")
		for _, w := range n.Whens {
			cond, err := c.renderExpr(w.Condition, aliasForm)
			if err != nil {
				return "", err
			}
			result, err := c.renderExpr(w.Result, aliasForm)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, " WHEN %s THEN %s", cond, result)
		}
		if n.Else != nil {
			elseSQL, err := c.renderExpr(n.Else, aliasForm)
			if err != nil {
				return "", err
			}
			b.WriteString(" ELSE ")
			b.WriteString(elseSQL)
		}
		b.WriteString(" END")
		return b.String(), nil

	default:
		return "", fmt.Errorf("%w: unrecognized expression node", ErrUnsupportedFeature)
	}
}

// renderAggregate implements §4.D rule 2: a bare-alias operand rewrites
// to AGG(alias.<primary-key-column>); COUNT(DISTINCT alias) follows the
// same rewrite.
func (c *generation) renderAggregate(agg Aggregate, aliasForm bool) (string, error) {
	name := aggregateName(agg.Kind)

	if col, ok := agg.Operand.(Column); ok && col.Property == "" {
		binding, ok := c.aliases[col.Alias]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownAlias, col.Alias)
		}
		pk := c.gen.registry.KeyPropertyFor(binding.desc)
		if pk == nil {
			return "", fmt.Errorf("%w: %s", ErrAmbiguousAggregate, col.Alias)
		}
		operand := fmt.Sprintf("%s.%s", binding.alias, pk.ColumnName)
		if !aliasForm {
			operand = pk.ColumnName
		}
		distinct := ""
		if agg.Distinct {
			distinct = "DISTINCT "
		}
		return fmt.Sprintf("%s(%s%s)", name, distinct, operand), nil
	}

	operand, err := c.renderExpr(agg.Operand, aliasForm)
	if err != nil {
		return "", err
	}
	distinct := ""
	if agg.Distinct {
		distinct = "DISTINCT "
	}
	return fmt.Sprintf("%s(%s%s)", name, distinct, operand), nil
}

func aggregateName(k AggregateKind) string {
	switch k {
	case AggregateCount:
		return "COUNT"
	case AggregateSum:
		return "SUM"
	case AggregateAvg:
		return "AVG"
	case AggregateMin:
		return "MIN"
	case AggregateMax:
		return "MAX"
	default:
		return "COUNT"
	}
}

func binaryOpSQL(op BinaryOp) string {
	switch op {
	case OpOr:
		return "OR"
	case OpAnd:
		return "AND"
	case OpEq:
		return "="
	case OpNotEq:
		return "<>"
	case OpLt:
		return "<"
	case OpLtEq:
		return "<="
	case OpGt:
		return ">"
	case OpGtEq:
		return ">="
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	default:
		return "="
	}
}

func renderLiteral(l Literal) string {
	switch l.Kind {
	case LiteralString:
		return "'" + strings.ReplaceAll(fmt.Sprintf("%v", l.Value), "'", "''") + "'"
	case LiteralBool:
		if b, ok := l.Value.(bool); ok && b {
			return "TRUE"
		}
		return "FALSE"
	case LiteralNull:
		return "NULL"
	case LiteralInteger, LiteralDecimal:
		return fmt.Sprintf("%v", l.Value)
	default:
		return fmt.Sprintf("%v", l.Value)
	}
}

// parseLiteralInt parses a numeric literal lexeme as a base-10 int64.
// Nothing in the package or its tests calls it.
func parseLiteralInt(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }
