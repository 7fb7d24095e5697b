package cpqlorm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	id   int64
	name string
}

func (r *fakeRow) ColumnValue(property string) any {
	switch property {
	case "Id":
		return r.id
	case "Name":
		return r.name
	}
	return nil
}

func (r *fakeRow) SetColumnValue(property string, value any) {
	switch property {
	case "Id":
		r.id, _ = value.(int64)
	case "Name":
		r.name, _ = value.(string)
	}
}

func (r *fakeRow) EntityName() string { return "User" }

func testUserDescriptor() *EntityDescriptor {
	r := NewRegistry()
	r.Entity("User").
		Property("Id", TypeInteger64).
		Property("Name", TypeText).
		PrimaryKey("Id", GenerationIdentity)
	reg, err := r.Build()
	if err != nil {
		panic(err)
	}
	d, _ := reg.Lookup("User")
	return d
}

func TestTrackerAttachIsIdempotentPerKey(t *testing.T) {
	desc := testUserDescriptor()
	tracker := NewTracker()

	row := &fakeRow{id: 1, name: "a"}
	te1 := tracker.Attach(desc, int64(1), row)
	te2 := tracker.Attach(desc, int64(1), row)
	require.Same(t, te1, te2)
}

func TestTrackerFlushOrderRespectsPriority(t *testing.T) {
	desc := testUserDescriptor()
	tracker := NewTracker()

	insertTe := tracker.Attach(desc, int64(1), &fakeRow{id: 1})
	updateTe := tracker.Attach(desc, int64(2), &fakeRow{id: 2})
	deleteTe := tracker.Attach(desc, int64(3), &fakeRow{id: 3})

	tracker.Enqueue(OpDelete, deleteTe)
	tracker.Enqueue(OpUpdate, updateTe)
	tracker.Enqueue(OpInsert, insertTe)

	order := tracker.FlushOrder()
	require.Len(t, order, 3)
	require.Equal(t, OpInsert, order[0].Kind)
	require.Equal(t, OpUpdate, order[1].Kind)
	require.Equal(t, OpDelete, order[2].Kind)
}

func TestTrackerInsertThenDeleteAnnihilates(t *testing.T) {
	desc := testUserDescriptor()
	tracker := NewTracker()

	te := tracker.Attach(desc, int64(1), &fakeRow{id: 1})
	tracker.Enqueue(OpInsert, te)
	tracker.Enqueue(OpDelete, te)

	require.Empty(t, tracker.FlushOrder())
}

func TestTrackerUpdateAfterInsertFoldsIntoInsert(t *testing.T) {
	desc := testUserDescriptor()
	tracker := NewTracker()

	te := tracker.Attach(desc, int64(1), &fakeRow{id: 1})
	tracker.Enqueue(OpInsert, te)
	tracker.Enqueue(OpUpdate, te)

	order := tracker.FlushOrder()
	require.Len(t, order, 1)
	require.Equal(t, OpInsert, order[0].Kind)
}

func TestTrackerIsDirtyComparesUpdatableColumnsOnly(t *testing.T) {
	desc := testUserDescriptor()
	tracker := NewTracker()

	row := &fakeRow{id: 1, name: "a"}
	te := tracker.Attach(desc, int64(1), row)
	require.False(t, tracker.IsDirty(te))

	row.name = "b"
	require.True(t, tracker.IsDirty(te))
}

func TestTrackerDetachEvictsIdentityMap(t *testing.T) {
	desc := testUserDescriptor()
	tracker := NewTracker()

	tracker.Attach(desc, int64(1), &fakeRow{id: 1})
	tracker.Detach("User", int64(1))

	_, ok := tracker.Find("User", int64(1))
	require.False(t, ok)
}

func TestFastEqualScalarFastPath(t *testing.T) {
	require.True(t, fastEqual(int64(1), int64(1)))
	require.False(t, fastEqual(int64(1), int64(2)))
	require.True(t, fastEqual(nil, nil))
	require.False(t, fastEqual(nil, int64(1)))
}
