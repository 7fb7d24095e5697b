package cpqlorm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// QueryHandle is the bound, parameterizable query of spec.md §4.G:
// setParameter/getResultList/getSingleResult/executeScalar/executeUpdate
// over a single parsed Query. Grounded on the teacher's query.go builder
// surface, generalized from a fluent WHERE-chain into a wrapper over the
// CPQL parser/generator pipeline.
type QueryHandle struct {
	manager *EntityManager
	query   *Query
	params  map[string]any
}

// EntityFactory produces a fresh, zero-valued entity instance to
// materialize a row into. Callers register one per entity alias that
// appears in the query (root and any joined aliases).
type EntityFactory func() Entity

// RelationAttacher is the optional capability an entity implements so
// the query handle can wire a joined, eager-fetched row back onto its
// parent during row-collapse (spec.md §4.G: "rows sharing the root
// primary key collapse into one entity with its collections populated").
type RelationAttacher interface {
	AttachRelated(relationshipName string, related Entity)
}

// SetParameter binds name to value, validating that name is a
// parameter the parsed query actually references (spec.md §4.C,
// §7 — ErrUnknownParameter).
func (h *QueryHandle) SetParameter(name string, value any) (*QueryHandle, error) {
	found := false
	for _, p := range h.query.ParameterNames {
		if p == name {
			found = true
			break
		}
	}
	if !found {
		return h, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
	h.params[name] = value
	return h, nil
}

// plan renders the bound query against ctx's ambient tenant and
// resolves the bound argument slice in parameter-occurrence order.
func (h *QueryHandle) plan(ctx context.Context) (*GeneratedSQL, []any, error) {
	gen, err := h.manager.generator.Generate(ctx, h.query)
	if err != nil {
		return nil, nil, err
	}
	args := make([]any, len(gen.ParameterRefs))
	for i, name := range gen.ParameterRefs {
		if name == "__tenant" {
			tenant, _ := CurrentTenant(ctx)
			args[i] = tenant
			continue
		}
		v, ok := h.params[name]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
		}
		args[i] = v
	}
	return gen, args, nil
}

// loadedChild is a joined-row entity pending tracker attachment,
// deduplicated by (descriptor, key) across every row it appears in.
type loadedChild struct {
	desc   *EntityDescriptor
	key    any
	entity Entity
}

// GetResultList runs the bound SELECT and materializes every row,
// collapsing rows that share the root entity's primary key into one
// instance with its eager relationships populated (spec.md §4.G).
// factories must supply one EntityFactory per alias the query binds
// (root and any joined aliases). A missing root-alias factory is an
// error; a joined alias with no registered factory is skipped during
// materialization. A joined alias's columns are selected only when the
// alias appears bare in the projection (`SELECT u, o ...`), so a join
// left out of the projection populates no children. Every collapsed root or
// joined entity is attached to the entity manager's tracker exactly
// like Find does: one already Managed under the same key is returned
// as the existing reference rather than a freshly materialized one
// (the identity-map law of spec.md §8). The keys of an eagerly joined
// collection relationship are also recorded as that relationship's
// orphan-removal snapshot, and the joined entities themselves become
// Managed, so a later Merge can both detect a row dropped from the
// in-memory collection and find it in the tracker to enqueue its
// Delete (spec.md §4.F's orphan-removal law).
func (h *QueryHandle) GetResultList(ctx context.Context, factories map[string]EntityFactory) ([]Entity, error) {
	if h.query.Select == nil {
		return nil, fmt.Errorf("%w: getResultList on a non-SELECT query", ErrUnsupportedFeature)
	}

	gen, args, err := h.plan(ctx)
	if err != nil {
		return nil, err
	}

	rootDesc, err := h.manager.registry.Require(gen.RootEntity)
	if err != nil {
		return nil, err
	}

	stmt, mustClose, err := h.manager.prepareRead(ctx, gen.SQL)
	if err != nil {
		return nil, WrapExecutorError("select", gen.SQL, args, err)
	}
	if mustClose {
		defer stmt.Close()
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, WrapExecutorError("select", gen.SQL, args, err)
	}
	defer rows.Close()

	var ordered []Entity
	byRootKey := make(map[any]Entity)
	joinedKeysByRoot := make(map[any]map[string][]any)
	byChildKey := make(map[string]*loadedChild)

	for rows.Next() {
		scanDest := make([]any, len(gen.ResultColumns))
		values := make([]any, len(gen.ResultColumns))
		for i := range scanDest {
			scanDest[i] = &values[i]
		}
		if err := rows.Scan(scanDest...); err != nil {
			return nil, WrapExecutorError("select", gen.SQL, args, err)
		}

		perAlias := splitByAlias(gen.ResultColumns, values)
		rootKey := columnValueFor(perAlias[gen.RootAlias], gen.ResultColumns, gen.RootAlias, rootDesc.PrimaryKey.Name)

		root, seen := byRootKey[rootKey]
		if !seen {
			if te, ok := h.manager.tracker.Find(rootDesc.Name, rootKey); ok && te.State == StateManaged {
				root, ok = te.CurrentReference.(Entity)
			}
			if root == nil {
				factory, ok := factories[gen.RootAlias]
				if !ok {
					return nil, fmt.Errorf("cpqlorm: no entity factory registered for alias %q", gen.RootAlias)
				}
				root = factory()
				if err := materializeRow(perAlias[gen.RootAlias], root); err != nil {
					return nil, err
				}
			}
			byRootKey[rootKey] = root
			joinedKeysByRoot[rootKey] = make(map[string][]any)
			ordered = append(ordered, root)
		}

		attacher, canAttach := root.(RelationAttacher)
		for _, j := range gen.JoinedAliases {
			factory, ok := factories[j.Alias]
			if !ok {
				continue
			}
			rowForAlias := perAlias[j.Alias]
			if len(rowForAlias) == 0 {
				continue
			}

			childDesc, err := h.manager.registry.Require(j.Relationship.TargetEntity)
			if err != nil {
				return nil, err
			}
			childKey := columnValueFor(rowForAlias, gen.ResultColumns, j.Alias, childDesc.PrimaryKey.Name)
			compositeKey := fmt.Sprintf("%s#%v", childDesc.Name, childKey)

			loaded, seenChild := byChildKey[compositeKey]
			if !seenChild {
				var child Entity
				if te, ok := h.manager.tracker.Find(childDesc.Name, childKey); ok && te.State == StateManaged {
					child, _ = te.CurrentReference.(Entity)
				}
				if child == nil {
					child = factory()
					if err := materializeRow(rowForAlias, child); err != nil {
						return nil, err
					}
				}
				loaded = &loadedChild{desc: childDesc, key: childKey, entity: child}
				byChildKey[compositeKey] = loaded
			}

			if canAttach {
				attacher.AttachRelated(j.Relationship.Name, loaded.entity)
			}
			joinedKeysByRoot[rootKey][j.Relationship.Name] = append(joinedKeysByRoot[rootKey][j.Relationship.Name], childKey)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for rootKey, root := range byRootKey {
		te := h.manager.tracker.Attach(rootDesc, rootKey, root)
		if te.RelationshipSnapshots == nil {
			te.RelationshipSnapshots = make(map[string][]any)
		}
		for relName, keys := range joinedKeysByRoot[rootKey] {
			te.RelationshipSnapshots[relName] = keys
		}
	}
	for _, loaded := range byChildKey {
		h.manager.tracker.Attach(loaded.desc, loaded.key, loaded.entity)
	}

	return ordered, nil
}

// GetSingleResult expects exactly one root row and returns
// ErrNonUnique or ErrRecordNotFound otherwise (spec.md §4.G, §7).
func (h *QueryHandle) GetSingleResult(ctx context.Context, factories map[string]EntityFactory) (Entity, error) {
	results, err := h.GetResultList(ctx, factories)
	if err != nil {
		return nil, err
	}
	switch len(results) {
	case 0:
		return nil, ErrRecordNotFound
	case 1:
		return results[0], nil
	default:
		return nil, fmt.Errorf("%w: expected one row, got %d", ErrNonUnique, len(results))
	}
}

// ExecuteScalar runs a single-projection SELECT (typically an
// aggregate) and returns its one scalar value.
func (h *QueryHandle) ExecuteScalar(ctx context.Context) (any, error) {
	if h.query.Select == nil {
		return nil, fmt.Errorf("%w: executeScalar on a non-SELECT query", ErrUnsupportedFeature)
	}
	gen, args, err := h.plan(ctx)
	if err != nil {
		return nil, err
	}
	stmt, mustClose, err := h.manager.prepareRead(ctx, gen.SQL)
	if err != nil {
		return nil, WrapExecutorError("select", gen.SQL, args, err)
	}
	if mustClose {
		defer stmt.Close()
	}
	row := stmt.QueryRowContext(ctx, args...)
	var value any
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, WrapExecutorError("select", gen.SQL, args, err)
	}
	return value, nil
}

// ExecuteUpdate runs the bound UPDATE or DELETE and returns the
// affected row count, invalidating the identity map for the target
// entity (DESIGN.md, Open Question 2: bulk statements bypass the
// per-instance change tracker, so affected rows must be evicted rather
// than left stale).
func (h *QueryHandle) ExecuteUpdate(ctx context.Context) (int64, error) {
	var targetEntity string
	switch {
	case h.query.Update != nil:
		targetEntity = h.query.Update.Target.Name
	case h.query.Delete != nil:
		targetEntity = h.query.Delete.Target.Name
	default:
		return 0, fmt.Errorf("%w: executeUpdate on a SELECT query", ErrUnsupportedFeature)
	}

	gen, args, err := h.plan(ctx)
	if err != nil {
		return 0, err
	}
	stmt, mustClose, err := h.manager.prepareWrite(ctx, gen.SQL)
	if err != nil {
		return 0, WrapExecutorError("bulk", gen.SQL, args, err)
	}
	if mustClose {
		defer stmt.Close()
	}
	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, WrapExecutorError("bulk", gen.SQL, args, err)
	}
	h.manager.tracker.DetachAll(targetEntity)
	return res.RowsAffected()
}

// scanRowInto scans a single *sql.Row and materializes its rootAlias
// columns onto dest — the single-entity path entityManager.Find uses.
func scanRowInto(row *sql.Row, cols []ResultColumn, rootAlias string, dest Entity) error {
	scanDest := make([]any, len(cols))
	values := make([]any, len(cols))
	for i := range scanDest {
		scanDest[i] = &values[i]
	}
	if err := row.Scan(scanDest...); err != nil {
		return err
	}
	perAlias := splitByAlias(cols, values)
	return materializeRow(perAlias[rootAlias], dest)
}

// splitByAlias groups the flat scanned row values by the entity alias
// each ResultColumn belongs to, keyed by property name.
func splitByAlias(cols []ResultColumn, values []any) map[string]map[string]any {
	out := make(map[string]map[string]any)
	for i, c := range cols {
		m, ok := out[c.EntityAlias]
		if !ok {
			m = make(map[string]any)
			out[c.EntityAlias] = m
		}
		m[c.Property] = values[i]
	}
	return out
}

func columnValueFor(aliasRow map[string]any, _ []ResultColumn, _ string, property string) any {
	return aliasRow[property]
}

// materializeRow writes a single alias's decoded row map onto dest via
// its ColumnValues accessors.
func materializeRow(row map[string]any, dest Entity) error {
	for property, value := range row {
		dest.SetColumnValue(property, value)
	}
	return nil
}

// ProjectionFactory produces a fresh plain struct to decode an
// arbitrary, non-entity-shaped SELECT projection into — a read-model
// row such as `SELECT u.name AS Name, COUNT(o) AS Total FROM ...` that
// doesn't correspond to any single registered entity. Fields are
// matched by `mapstructure:"ColumnAlias"` struct tag.
type ProjectionFactory func() any

// GetProjectionList runs the bound SELECT and mapstructure-decodes
// each row into a fresh value from factory, keyed by the query's
// column aliases rather than any entity's property names.
func (h *QueryHandle) GetProjectionList(ctx context.Context, factory ProjectionFactory) ([]any, error) {
	if h.query.Select == nil {
		return nil, fmt.Errorf("%w: getProjectionList on a non-SELECT query", ErrUnsupportedFeature)
	}
	gen, args, err := h.plan(ctx)
	if err != nil {
		return nil, err
	}
	stmt, mustClose, err := h.manager.prepareRead(ctx, gen.SQL)
	if err != nil {
		return nil, WrapExecutorError("select", gen.SQL, args, err)
	}
	if mustClose {
		defer stmt.Close()
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, WrapExecutorError("select", gen.SQL, args, err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		scanDest := make([]any, len(gen.ResultColumns))
		values := make([]any, len(gen.ResultColumns))
		for i := range scanDest {
			scanDest[i] = &values[i]
		}
		if err := rows.Scan(scanDest...); err != nil {
			return nil, WrapExecutorError("select", gen.SQL, args, err)
		}
		rowMap := make(map[string]any, len(gen.ResultColumns))
		for i, c := range gen.ResultColumns {
			rowMap[c.ColumnAlias] = values[i]
		}
		dest := factory()
		if err := mapstructure.Decode(rowMap, dest); err != nil {
			return nil, err
		}
		out = append(out, dest)
	}
	return out, rows.Err()
}
