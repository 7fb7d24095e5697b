package cpqlorm

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid"
)

// ColumnValues is the contract an entity struct implements to let the
// tracker and entity manager read and write its mapped columns without
// reflection over field tags (spec.md §9's redesign note pushes the
// metadata registry away from runtime introspection; the same
// philosophy extends to entity access — property names are resolved
// once, explicitly, at registration time, so reading a value back is a
// a plain method call rather than a reflect.Value walk).
type ColumnValues interface {
	ColumnValue(property string) any
	SetColumnValue(property string, value any)
}

// Entity is the minimum shape an entity manager operates on: it knows
// its own column values and which descriptor it maps to.
type Entity interface {
	ColumnValues
	EntityName() string
}

// Related is an optional capability an Entity implements when it has
// cascade-eligible relationships. RelatedEntities returns the current
// in-memory related entities for relationshipName (a single-element
// slice for to-one relationships, any length for to-many). Entities
// with no relationships, or none worth cascading, need not implement
// this interface at all.
type Related interface {
	RelatedEntities(relationshipName string) []Entity
}

// EntityManager is the unit-of-work façade of spec.md §4.F: persist,
// merge, remove, find, createQuery, and the transaction boundary, all
// bound to one connection and one change tracker for its lifetime
// (spec.md §5 — "Connection: owned exclusively by one entity manager").
// Grounded on the teacher's orm.go (Insert/Save/Find/Delete dispatch,
// generic Find[T]) and relations.go (Attach/Sync cascade helpers),
// generalized from the teacher's struct-tag reflection onto the
// explicit Registry/ColumnValues pair this module uses instead.
type EntityManager struct {
	registry  *Registry
	db        *sql.DB
	tx        *sql.Tx
	dialect   *Dialect
	generator *SQLGenerator
	tracker   *Tracker
	stmtCache *StmtCache
	resolver  *Resolver
	logger    Logger
}

// NewEntityManager builds a manager bound to registry, db, and dialect.
// The registry must already be built (Registry.Build) before use.
func NewEntityManager(registry *Registry, db *sql.DB, dialect *Dialect) *EntityManager {
	return &EntityManager{
		registry:  registry,
		db:        db,
		dialect:   dialect,
		generator: NewSQLGenerator(registry, dialect),
		tracker:   NewTracker(),
		stmtCache: NewStmtCache(0),
		logger:    noopLogger{},
	}
}

// WithLogger attaches a logger, propagated to the SQL generator for the
// tenant-bypass notice of §4.D rule 7.
func (m *EntityManager) WithLogger(l Logger) *EntityManager {
	m.logger = l
	m.generator.WithLogger(l)
	return m
}

// WithResolver attaches a primary/replica Resolver for read routing.
func (m *EntityManager) WithResolver(r *Resolver) *EntityManager {
	m.resolver = r
	return m
}

// WithStmtCache overrides the default prepared-statement cache.
func (m *EntityManager) WithStmtCache(c *StmtCache) *EntityManager {
	m.stmtCache = c
	return m
}

// prepareWrite returns a cached *sql.Stmt for query prepared against the
// manager's primary connection (SPEC_FULL.md's executor path: prepare
// and cache via a sharded LRU rather than re-preparing every flush). If
// a transaction is open, the cached statement is rebound to it via
// sql.Tx.StmtContext; that rebound copy is owned by the caller and must
// be closed after use, unlike the cache-owned statement returned when
// there is no open transaction.
func (m *EntityManager) prepareWrite(ctx context.Context, query string) (stmt *sql.Stmt, mustClose bool, err error) {
	stmt, err = m.stmtCache.Prepare(ctx, m.db, query)
	if err != nil {
		return nil, false, err
	}
	if m.tx != nil {
		return m.tx.StmtContext(ctx, stmt), true, nil
	}
	return stmt, false, nil
}

// prepareRead is prepareWrite's read-path counterpart: outside a
// transaction it prepares against a resolver-selected replica when one
// is configured, falling back to the primary connection otherwise.
func (m *EntityManager) prepareRead(ctx context.Context, query string) (stmt *sql.Stmt, mustClose bool, err error) {
	if m.tx != nil {
		stmt, err = m.stmtCache.Prepare(ctx, m.db, query)
		if err != nil {
			return nil, false, err
		}
		return m.tx.StmtContext(ctx, stmt), true, nil
	}
	db := m.db
	if m.resolver != nil {
		db = m.resolver.Replica()
	}
	stmt, err = m.stmtCache.Prepare(ctx, db, query)
	return stmt, false, err
}

// cascadeWalk is the per-top-level-call cycle guard of spec.md §9: a
// fresh visited set scoped to one persist/merge/remove invocation,
// keyed on (entityName, identityHash) so the same in-memory instance
// reached via two different relationship paths is only cascaded once.
type cascadeWalk struct {
	visited map[string]bool
}

func newCascadeWalk() *cascadeWalk { return &cascadeWalk{visited: make(map[string]bool)} }

func (w *cascadeWalk) seen(entityName string, instance Entity) bool {
	key := fmt.Sprintf("%s#%p", entityName, instance)
	if w.visited[key] {
		return true
	}
	w.visited[key] = true
	return false
}

// newGeneratedKey produces a value for a primary key whose generation
// strategy is UUID or Application-assigned-but-still-manager-supplied.
// Sequence/Identity keys come back from the database on insert instead.
func newGeneratedKey(strategy GenerationStrategy) any {
	switch strategy {
	case GenerationUUID:
		return uuid.NewString()
	case GenerationApplication:
		return ulid.MustNew(ulid.Now(), rand.Reader).String()
	default:
		return nil
	}
}

// Persist schedules entity for insertion (spec.md §4.F). If its
// primary key uses UUID or application-assigned generation and is
// currently unset, a key is generated up front so cascaded children
// can reference it before the parent is actually flushed. Persist
// cascades depth-first pre-order to every relationship whose
// CascadeFlags include CascadePersist (parent enqueued before
// children, matching the Insert flush-priority ordering of §4.E).
func (m *EntityManager) Persist(ctx context.Context, entity Entity) error {
	return m.persist(ctx, entity, newCascadeWalk(), 0)
}

func (m *EntityManager) persist(ctx context.Context, entity Entity, walk *cascadeWalk, depth int) error {
	desc, err := m.registry.Require(entity.EntityName())
	if err != nil {
		return err
	}
	if walk.seen(desc.Name, entity) {
		return nil
	}

	if desc.TenantProperty != nil {
		if tenant, ok := CurrentTenant(ctx); ok {
			if existing := entity.ColumnValue(desc.TenantProperty.Name); existing == nil || existing == "" {
				entity.SetColumnValue(desc.TenantProperty.Name, tenant)
			}
		}
	}

	if pk := desc.PrimaryKey; pk != nil {
		current := entity.ColumnValue(pk.Name)
		if isZeroKey(current) {
			if generated := newGeneratedKey(pk.GenerationStrategy); generated != nil {
				entity.SetColumnValue(pk.Name, generated)
			}
		}
	}

	te := m.tracker.Attach(desc, entity.ColumnValue(desc.PrimaryKey.Name), entity)
	m.tracker.Enqueue(OpInsert, te)

	related, ok := entity.(Related)
	if !ok {
		return nil
	}
	for relName, rel := range desc.CascadeRelationships {
		if !rel.CascadeFlags.Has(CascadePersist) {
			continue
		}
		for _, child := range related.RelatedEntities(relName) {
			if child == nil {
				continue
			}
			if err := m.persist(ctx, child, walk, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// Merge reconciles a detached or transient instance's state into the
// managed copy, scheduling an Update for any dirty updatable columns
// cascading merge to CascadeMerge relationships, and queuing a Delete
// for each member dropped from a collection relationship that has
// OrphanRemoval or CascadeRemove (spec.md §4.F). A cross-tenant instance (one whose tenant column
// disagrees with the ambient TenantContext) is rejected outright.
func (m *EntityManager) Merge(ctx context.Context, entity Entity) error {
	return m.merge(ctx, entity, newCascadeWalk(), 0)
}

func (m *EntityManager) merge(ctx context.Context, entity Entity, walk *cascadeWalk, depth int) error {
	desc, err := m.registry.Require(entity.EntityName())
	if err != nil {
		return err
	}
	if walk.seen(desc.Name, entity) {
		return nil
	}

	if desc.TenantProperty != nil {
		if tenant, ok := CurrentTenant(ctx); ok {
			if current, _ := entity.ColumnValue(desc.TenantProperty.Name).(string); current != "" && current != tenant {
				return fmt.Errorf("%w: entity %s tenant %q does not match ambient tenant %q", ErrCrossTenantViolation, desc.Name, current, tenant)
			}
		}
	}

	key := entity.ColumnValue(desc.PrimaryKey.Name)
	if isZeroKey(key) {
		return m.persist(ctx, entity, walk, depth)
	}

	te, existed := m.tracker.Find(desc.Name, key)
	var previousSnapshot map[string][]any
	if !existed {
		te = m.tracker.Attach(desc, key, entity)
		previousSnapshot = te.RelationshipSnapshots
	} else {
		previousSnapshot = te.RelationshipSnapshots
		te.CurrentReference = entity
	}

	if m.tracker.IsDirty(te) {
		m.tracker.Enqueue(OpUpdate, te)
	}

	related, isRelated := entity.(Related)
	nextSnapshot := make(map[string][]any)
	for relName, rel := range desc.Relationships {
		if !isRelated {
			continue
		}
		children := related.RelatedEntities(relName)

		if rel.CascadeFlags.Has(CascadeMerge) {
			for _, child := range children {
				if child == nil {
					continue
				}
				if err := m.merge(ctx, child, walk, depth+1); err != nil {
					return err
				}
			}
		}

		if rel.Kind != OneToMany && rel.Kind != ManyToMany {
			continue
		}
		targetDesc, err := m.registry.Require(rel.TargetEntity)
		if err != nil {
			return err
		}
		currentKeys := make([]any, 0, len(children))
		for _, child := range children {
			if child == nil {
				continue
			}
			currentKeys = append(currentKeys, child.ColumnValue(targetDesc.PrimaryKey.Name))
		}
		nextSnapshot[relName] = currentKeys

		if !rel.OrphanRemoval && !rel.CascadeFlags.Has(CascadeRemove) {
			continue
		}
		for _, priorKey := range previousSnapshot[relName] {
			if !containsKey(currentKeys, priorKey) {
				orphanTe, ok := m.tracker.Find(targetDesc.Name, priorKey)
				if ok {
					m.tracker.Enqueue(OpDelete, orphanTe)
				}
			}
		}
	}
	te.RelationshipSnapshots = nextSnapshot

	return nil
}

// Remove schedules entity for deletion and cascades depth-first
// post-order (children enqueued before the parent, matching the
// Delete flush priority of §4.E) to every CascadeRemove relationship.
func (m *EntityManager) Remove(ctx context.Context, entity Entity) error {
	return m.remove(ctx, entity, newCascadeWalk(), 0)
}

func (m *EntityManager) remove(ctx context.Context, entity Entity, walk *cascadeWalk, depth int) error {
	desc, err := m.registry.Require(entity.EntityName())
	if err != nil {
		return err
	}
	if walk.seen(desc.Name, entity) {
		return nil
	}

	if desc.TenantProperty != nil {
		if tenant, ok := CurrentTenant(ctx); ok {
			if current, _ := entity.ColumnValue(desc.TenantProperty.Name).(string); current != "" && current != tenant {
				return fmt.Errorf("%w: entity %s tenant %q does not match ambient tenant %q", ErrCrossTenantViolation, desc.Name, current, tenant)
			}
		}
	}

	related, isRelated := entity.(Related)
	if isRelated {
		for relName, rel := range desc.CascadeRelationships {
			if !rel.CascadeFlags.Has(CascadeRemove) {
				continue
			}
			for _, child := range related.RelatedEntities(relName) {
				if child == nil {
					continue
				}
				if err := m.remove(ctx, child, walk, depth+1); err != nil {
					return err
				}
			}
		}
	}

	key := entity.ColumnValue(desc.PrimaryKey.Name)
	te, ok := m.tracker.Find(desc.Name, key)
	if !ok {
		te = m.tracker.Attach(desc, key, entity)
	}
	m.tracker.Enqueue(OpDelete, te)
	return nil
}

// Find returns the managed instance for (entityName, key), consulting
// the identity map before issuing a SELECT (spec.md §4.F, the
// identity-map law of §8: two finds for the same key return the same
// reference). newInstance constructs a zero-valued T to materialize
// into on a cache miss.
func Find[T Entity](ctx context.Context, m *EntityManager, key any, newInstance func() T) (T, error) {
	var zero T
	entityName := zero.EntityName()

	desc, err := m.registry.Require(entityName)
	if err != nil {
		var none T
		return none, err
	}

	if te, ok := m.tracker.Find(desc.Name, key); ok && te.State == StateManaged {
		if cached, ok := te.CurrentReference.(T); ok {
			return cached, nil
		}
	}

	q, err := Parse(fmt.Sprintf("SELECT e FROM %s e WHERE e.%s = :key", desc.Name, desc.PrimaryKey.Name))
	if err != nil {
		var none T
		return none, err
	}
	plan, err := m.generator.Generate(ctx, q)
	if err != nil {
		var none T
		return none, err
	}

	args := make([]any, len(plan.ParameterRefs))
	for i, name := range plan.ParameterRefs {
		if name == "__tenant" {
			tenant, _ := CurrentTenant(ctx)
			args[i] = tenant
			continue
		}
		args[i] = key
	}

	stmt, mustClose, err := m.prepareRead(ctx, plan.SQL)
	if err != nil {
		var none T
		return none, WrapExecutorError("select", plan.SQL, args, err)
	}
	if mustClose {
		defer stmt.Close()
	}
	row := stmt.QueryRowContext(ctx, args...)
	instance := newInstance()
	if err := scanRowInto(row, plan.ResultColumns, plan.RootAlias, instance); err != nil {
		if err == sql.ErrNoRows {
			var none T
			return none, fmt.Errorf("%w: %s[%v]", ErrRecordNotFound, entityName, key)
		}
		var none T
		return none, err
	}

	m.tracker.Attach(desc, key, instance)
	return instance, nil
}

// CreateQuery parses cpql and returns a bound QueryHandle (spec.md
// §4.G) ready for setParameter/getResultList/executeUpdate.
func (m *EntityManager) CreateQuery(cpql string) (*QueryHandle, error) {
	q, err := Parse(cpql)
	if err != nil {
		return nil, err
	}
	return &QueryHandle{manager: m, query: q, params: make(map[string]any)}, nil
}

// BeginTransaction opens a transaction on the manager's connection,
// matching the "connection owned exclusively by one entity manager"
// rule of spec.md §5: a manager may only have one transaction open at
// a time.
func (m *EntityManager) BeginTransaction(ctx context.Context) error {
	if m.tx != nil {
		return fmt.Errorf("cpqlorm: transaction already open")
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	m.tx = tx
	return nil
}

// Commit flushes any queued operations, then commits the open
// transaction.
func (m *EntityManager) Commit(ctx context.Context) error {
	if m.tx == nil {
		return fmt.Errorf("cpqlorm: no transaction open")
	}
	if err := m.Flush(ctx); err != nil {
		_ = m.tx.Rollback()
		m.tx = nil
		return err
	}
	err := m.tx.Commit()
	m.tx = nil
	return err
}

// Rollback discards the open transaction and the queued-operation log
// without flushing.
func (m *EntityManager) Rollback() error {
	if m.tx == nil {
		return fmt.Errorf("cpqlorm: no transaction open")
	}
	err := m.tx.Rollback()
	m.tx = nil
	m.tracker.Clear()
	return err
}

// Flush applies every queued operation in (priority, sequence) order
// (spec.md §4.E/§4.F), executing each against the manager's current
// executor (the open transaction, if any, else the primary
// connection). A flushed entity stays Managed afterward — only a
// flushed Delete actually leaves the identity map, since there is no
// longer a row for it to represent.
func (m *EntityManager) Flush(ctx context.Context) error {
	for _, op := range m.tracker.FlushOrder() {
		var err error
		switch op.Kind {
		case OpInsert:
			err = m.flushInsert(ctx, op.Entity)
		case OpUpdate:
			err = m.flushUpdate(ctx, op.Entity)
		case OpDelete:
			err = m.flushDelete(ctx, op.Entity)
		}
		if err != nil {
			return err
		}
	}
	m.tracker.Clear()
	return nil
}

func (m *EntityManager) flushInsert(ctx context.Context, te *TrackedEntity) error {
	desc := te.Descriptor
	entity := te.CurrentReference.(Entity)

	cols := m.registry.ColumnListFor(desc)
	insertable := make([]*PropertyDescriptor, 0, len(cols))
	for _, p := range cols {
		if !p.Insertable {
			continue
		}
		// A still-unset Identity/Sequence key is left to the database,
		// which reports the assigned value back below.
		if p == desc.PrimaryKey && isZeroKey(entity.ColumnValue(p.Name)) &&
			(p.GenerationStrategy == GenerationIdentity || p.GenerationStrategy == GenerationSequence) {
			continue
		}
		insertable = append(insertable, p)
	}

	colNames := make([]string, len(insertable))
	placeholders := make([]string, len(insertable))
	args := make([]any, len(insertable))
	for i, p := range insertable {
		colNames[i] = m.dialect.QuoteIdentifier(p.ColumnName)
		placeholders[i] = m.dialect.Placeholder(i+1, p.Name)
		args[i] = entity.ColumnValue(p.Name)
	}

	sqlText := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qualifiedTable(desc), strings.Join(colNames, ", "), strings.Join(placeholders, ", "))

	switch m.dialect.Identity {
	case IdentityReturning:
		sqlText += fmt.Sprintf(" RETURNING %s", m.dialect.QuoteIdentifier(desc.PrimaryKey.ColumnName))
		stmt, mustClose, err := m.prepareWrite(ctx, sqlText)
		if err != nil {
			return WrapExecutorError("insert", sqlText, args, err)
		}
		if mustClose {
			defer stmt.Close()
		}
		row := stmt.QueryRowContext(ctx, args...)
		var generated any
		if err := row.Scan(&generated); err != nil {
			return WrapExecutorError("insert", sqlText, args, err)
		}
		entity.SetColumnValue(desc.PrimaryKey.Name, generated)
	case IdentityOutputClause:
		insertCols := fmt.Sprintf("INSERT INTO %s (%s) OUTPUT INSERTED.%s VALUES (%s)",
			qualifiedTable(desc), strings.Join(colNames, ", "), m.dialect.QuoteIdentifier(desc.PrimaryKey.ColumnName), strings.Join(placeholders, ", "))
		stmt, mustClose, err := m.prepareWrite(ctx, insertCols)
		if err != nil {
			return WrapExecutorError("insert", insertCols, args, err)
		}
		if mustClose {
			defer stmt.Close()
		}
		row := stmt.QueryRowContext(ctx, args...)
		var generated any
		if err := row.Scan(&generated); err != nil {
			return WrapExecutorError("insert", insertCols, args, err)
		}
		entity.SetColumnValue(desc.PrimaryKey.Name, generated)
	default:
		stmt, mustClose, err := m.prepareWrite(ctx, sqlText)
		if err != nil {
			return WrapExecutorError("insert", sqlText, args, err)
		}
		if mustClose {
			defer stmt.Close()
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return WrapExecutorError("insert", sqlText, args, err)
		}
		if desc.PrimaryKey.GenerationStrategy == GenerationIdentity {
			if id, err := res.LastInsertId(); err == nil {
				entity.SetColumnValue(desc.PrimaryKey.Name, id)
			}
		}
	}

	te.PrimaryKey = entity.ColumnValue(desc.PrimaryKey.Name)
	te.OriginalSnapshot = snapshotColumns(desc, entity)
	return nil
}

func (m *EntityManager) flushUpdate(ctx context.Context, te *TrackedEntity) error {
	desc := te.Descriptor
	entity := te.CurrentReference.(Entity)
	dirty := m.tracker.DirtyFields(te)
	if len(dirty) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(dirty))
	args := make([]any, 0, len(dirty)+1)
	i := 1
	for _, p := range desc.Properties {
		v, isDirty := dirty[p.Name]
		if !isDirty {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", m.dialect.QuoteIdentifier(p.ColumnName), m.dialect.Placeholder(i, p.Name)))
		args = append(args, v)
		i++
	}
	args = append(args, te.PrimaryKey)

	sqlText := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		qualifiedTable(desc), strings.Join(setClauses, ", "),
		m.dialect.QuoteIdentifier(desc.PrimaryKey.ColumnName), m.dialect.Placeholder(i, desc.PrimaryKey.Name))

	stmt, mustClose, err := m.prepareWrite(ctx, sqlText)
	if err != nil {
		return WrapExecutorError("update", sqlText, args, err)
	}
	if mustClose {
		defer stmt.Close()
	}
	if _, err := stmt.ExecContext(ctx, args...); err != nil {
		return WrapExecutorError("update", sqlText, args, err)
	}

	te.OriginalSnapshot = snapshotColumns(desc, entity)
	return nil
}

func (m *EntityManager) flushDelete(ctx context.Context, te *TrackedEntity) error {
	desc := te.Descriptor
	sqlText := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		qualifiedTable(desc), m.dialect.QuoteIdentifier(desc.PrimaryKey.ColumnName), m.dialect.Placeholder(1, desc.PrimaryKey.Name))

	stmt, mustClose, err := m.prepareWrite(ctx, sqlText)
	if err != nil {
		return WrapExecutorError("delete", sqlText, []any{te.PrimaryKey}, err)
	}
	if mustClose {
		defer stmt.Close()
	}
	if _, err := stmt.ExecContext(ctx, te.PrimaryKey); err != nil {
		return WrapExecutorError("delete", sqlText, []any{te.PrimaryKey}, err)
	}
	m.tracker.Detach(desc.Name, te.PrimaryKey)
	return nil
}

func isZeroKey(v any) bool {
	if v == nil {
		return true
	}
	switch k := v.(type) {
	case string:
		return k == ""
	case int:
		return k == 0
	case int32:
		return k == 0
	case int64:
		return k == 0
	case uint:
		return k == 0
	case uint64:
		return k == 0
	default:
		return reflect.ValueOf(v).IsZero()
	}
}

func containsKey(keys []any, target any) bool {
	for _, k := range keys {
		if fastEqual(k, target) {
			return true
		}
	}
	return false
}

