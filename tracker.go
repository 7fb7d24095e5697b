package cpqlorm

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// EntityState is a TrackedEntity's lifecycle state (spec.md §3, §4.F).
type EntityState int

const (
	StateTransient EntityState = iota
	StateManaged
	StateRemoved
	StateDetached
)

// OperationKind is a QueuedOperation's mutation kind (spec.md §3).
type OperationKind int

const (
	OpInsert OperationKind = iota
	OpUpdate
	OpDelete
)

func priorityOf(kind OperationKind) int {
	switch kind {
	case OpInsert:
		return 1
	case OpUpdate:
		return 2
	default:
		return 3
	}
}

// identityKey is the (entity-name, primary-key) pair the identity map is
// keyed by (spec.md §4.E, GLOSSARY).
type identityKey struct {
	entityName string
	key        any
}

// TrackedEntity is a live identity-mapped instance (spec.md §3).
type TrackedEntity struct {
	Descriptor       *EntityDescriptor
	PrimaryKey       any
	OriginalSnapshot map[string]any
	CurrentReference any
	State            EntityState

	// RelationshipSnapshots records, for each orphanRemoval-eligible
	// collection relationship, the primary keys present when the entity
	// was last loaded by a query or merged. Merge diffs this against the current collection to find
	// orphans (spec.md §4.F, §8's orphan-removal law). Populated by the
	// entity manager, not the tracker itself, since only the manager
	// knows how to read an entity's related collections.
	RelationshipSnapshots map[string][]any
}

// QueuedOperation is a deferred mutation entry (spec.md §3).
type QueuedOperation struct {
	Kind     OperationKind
	Entity   *TrackedEntity
	Sequence float64 // fractional offsets let cascaded ops interleave (spec.md §5)
}

// Tracker is the change tracker (spec.md §4.E): the identity map keyed
// by (entity-name, primary-key) plus the ordered queued-operation log.
// Grounded on the teacher's dirty.go — its sharded lruTracker keyed by
// entity pointer address is retargeted here to a map keyed by the
// (name, key) pair spec.md actually specifies (a stable logical key
// rather than a pointer, since spec.md's identity-map law requires two
// `find` calls for the same primary key to return the same reference
// regardless of how the caller obtained the pointer), but fastEqual's
// type-switched fast-path comparison is kept verbatim for isDirty.
type Tracker struct {
	mu         sync.Mutex
	identities map[identityKey]*TrackedEntity
	queue      []*QueuedOperation
	// opIndex indexes queue by identityKey so enqueue can
	// find-and-coalesce in O(1) instead of scanning.
	opIndex map[identityKey]*QueuedOperation
	nextSeq float64
}

// NewTracker creates an empty change tracker, one per entity manager
// (spec.md §5: the change tracker is not shared across managers).
func NewTracker() *Tracker {
	return &Tracker{
		identities: make(map[identityKey]*TrackedEntity),
		opIndex:    make(map[identityKey]*QueuedOperation),
	}
}

// Attach installs instance in Managed state, snapshotting its current
// column values (spec.md §4.E).
func (t *Tracker) Attach(desc *EntityDescriptor, key any, instance any) *TrackedEntity {
	t.mu.Lock()
	defer t.mu.Unlock()

	// An unset key (a new entity whose key the database assigns on
	// insert) is replaced by a per-instance placeholder, so distinct new
	// instances never share one identity-map slot or queued operation.
	if isZeroKey(key) {
		key = fmt.Sprintf("%s#%p", desc.Name, instance)
	}
	ik := identityKey{entityName: desc.Name, key: key}
	if existing, ok := t.identities[ik]; ok {
		existing.CurrentReference = instance
		existing.State = StateManaged
		return existing
	}

	te := &TrackedEntity{
		Descriptor:       desc,
		PrimaryKey:       key,
		OriginalSnapshot: snapshotColumns(desc, instance),
		CurrentReference: instance,
		State:            StateManaged,
	}
	t.identities[ik] = te
	return te
}

// Find returns the identity-mapped TrackedEntity for (entityName, key),
// if any — the hit path of spec.md §4.F's find operation and the basis
// of the identity-map law in §8.
func (t *Tracker) Find(entityName string, key any) (*TrackedEntity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	te, ok := t.identities[identityKey{entityName: entityName, key: key}]
	return te, ok
}

// Enqueue records a mutation with a monotonically increasing sequence
// number, applying the coalescing rules of spec.md §4.E: a duplicate
// Insert on an already-queued Insert coalesces; Delete after an
// unflushed Insert annihilates both; Update after Insert folds into the
// Insert.
func (t *Tracker) Enqueue(kind OperationKind, te *TrackedEntity) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ik := identityKey{entityName: te.Descriptor.Name, key: te.PrimaryKey}

	if existing, ok := t.opIndex[ik]; ok {
		switch {
		case existing.Kind == OpInsert && kind == OpInsert:
			return // duplicate Insert coalesces
		case existing.Kind == OpInsert && kind == OpDelete:
			t.removeFromQueue(existing)
			delete(t.opIndex, ik)
			return // Insert+Delete annihilate
		case existing.Kind == OpInsert && kind == OpUpdate:
			return // Update after Insert folds into the Insert
		case existing.Kind == OpUpdate && kind == OpUpdate:
			return // duplicate Update coalesces
		case existing.Kind == OpUpdate && kind == OpDelete:
			existing.Kind = OpDelete
			existing.Sequence = t.allocateSequence()
			return
		}
	}

	t.nextSeq++
	op := &QueuedOperation{Kind: kind, Entity: te, Sequence: t.nextSeq}
	t.queue = append(t.queue, op)
	t.opIndex[ik] = op
}

// EnqueueCascaded records an operation that descends from a top-level
// call, assigning it a fractional offset of parent so parent-before-
// child ordering is preserved within Inserts and child-before-parent
// within Deletes (spec.md §5).
func (t *Tracker) EnqueueCascaded(kind OperationKind, te *TrackedEntity, parentSeq float64, depth int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ik := identityKey{entityName: te.Descriptor.Name, key: te.PrimaryKey}
	if _, ok := t.opIndex[ik]; ok {
		return
	}

	offset := float64(depth) / 1000.0
	seq := parentSeq + offset
	if kind == OpDelete {
		seq = parentSeq - offset // child-before-parent on the Delete side
	}

	op := &QueuedOperation{Kind: kind, Entity: te, Sequence: seq}
	t.queue = append(t.queue, op)
	t.opIndex[ik] = op
}

func (t *Tracker) allocateSequence() float64 {
	t.nextSeq++
	return t.nextSeq
}

func (t *Tracker) removeFromQueue(op *QueuedOperation) {
	for i, o := range t.queue {
		if o == op {
			t.queue = append(t.queue[:i], t.queue[i+1:]...)
			return
		}
	}
}

// IsDirty reports whether instance's current column values differ from
// its snapshot on updatable columns only (spec.md §4.E).
func (t *Tracker) IsDirty(te *TrackedEntity) bool {
	if te.OriginalSnapshot == nil {
		return true // unreadable instance: conservatively dirty
	}
	current := snapshotColumns(te.Descriptor, te.CurrentReference)
	for _, p := range te.Descriptor.Properties {
		if !p.Updatable {
			continue
		}
		if !fastEqual(te.OriginalSnapshot[p.Name], current[p.Name]) {
			return true
		}
	}
	return false
}

// DirtyFields returns the set of updatable columns whose current value
// differs from the snapshot.
func (t *Tracker) DirtyFields(te *TrackedEntity) map[string]any {
	current := snapshotColumns(te.Descriptor, te.CurrentReference)
	dirty := make(map[string]any)
	for _, p := range te.Descriptor.Properties {
		if !p.Updatable {
			continue
		}
		if !fastEqual(te.OriginalSnapshot[p.Name], current[p.Name]) {
			dirty[p.Name] = current[p.Name]
		}
	}
	return dirty
}

// FlushOrder returns the queued operations sorted by (priority,
// sequence) so Inserts precede Updates precede Deletes, FIFO within a
// priority (spec.md §4.E, tested by §8's flush-order law).
func (t *Tracker) FlushOrder() []*QueuedOperation {
	t.mu.Lock()
	defer t.mu.Unlock()

	ordered := make([]*QueuedOperation, len(t.queue))
	copy(ordered, t.queue)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := priorityOf(ordered[i].Kind), priorityOf(ordered[j].Kind)
		if pi != pj {
			return pi < pj
		}
		return ordered[i].Sequence < ordered[j].Sequence
	})
	return ordered
}

// Clear empties the queued-operation log; typically called on commit or
// rollback (spec.md §4.E). The identity map is untouched — clearing the
// log is not the same as detaching entities.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = t.queue[:0]
	t.opIndex = make(map[identityKey]*QueuedOperation)
}

// Detach evicts (entityName, key) from the identity map, transitioning
// any tracked reference to Detached. Used by the entity manager once a
// flushed Delete has removed the row, and available for explicit
// eviction (spec.md §3).
func (t *Tracker) Detach(entityName string, key any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ik := identityKey{entityName: entityName, key: key}
	if te, ok := t.identities[ik]; ok {
		te.State = StateDetached
		delete(t.identities, ik)
	}
}

// DetachAll evicts every identity-mapped entity of entityName — the
// coarse invalidation ExecuteUpdate performs after a bulk UPDATE or
// DELETE statement, which could have touched any row (DESIGN.md, Open Question 2).
func (t *Tracker) DetachAll(entityName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ik, te := range t.identities {
		if ik.entityName == entityName {
			te.State = StateDetached
			delete(t.identities, ik)
		}
	}
}

// snapshotColumns reads every updatable-or-not column value off instance
// via the descriptor's property accessors, for use as both the
// attach-time snapshot and the current-value comparison point.
// instance is expected to satisfy ColumnValues (see manager.go);
// callers that pass a plain struct get an empty snapshot, which makes
// IsDirty conservatively report dirty (an untracked/unreadable entity is
// always dirty, matching the teacher's dirty.go semantics for new
// entities).
func snapshotColumns(desc *EntityDescriptor, instance any) map[string]any {
	accessor, ok := instance.(ColumnValues)
	if !ok {
		return nil
	}
	snap := make(map[string]any, len(desc.Properties))
	for _, p := range desc.Properties {
		snap[p.Name] = accessor.ColumnValue(p.Name)
	}
	return snap
}

// fastEqual is a type-switched fast-path equality check, kept from the
// teacher's dirty.go verbatim in spirit: common scalar types compare
// directly; anything else falls back to reflect.DeepEqual.
func fastEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case int:
		bv, ok := b.(int)
		return ok && av == bv
	case int32:
		bv, ok := b.(int32)
		return ok && av == bv
	case int64:
		bv, ok := b.(int64)
		return ok && av == bv
	case uint:
		bv, ok := b.(uint)
		return ok && av == bv
	case uint64:
		bv, ok := b.(uint64)
		return ok && av == bv
	case float32:
		bv, ok := b.(float32)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return reflect.DeepEqual(a, b)
	}
}
