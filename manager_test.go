package cpqlorm

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "github.com/mattn/go-sqlite3"
)

// testUser and testOrder are fixture entities implementing Entity and
// Related without struct-tag reflection, mirroring how a generated or
// hand-written model would satisfy ColumnValues in this module.
type testUser struct {
	Id       int64
	Name     string
	TenantId string
	Orders   []*testOrder
}

func (u *testUser) EntityName() string { return "User" }

func (u *testUser) ColumnValue(property string) any {
	switch property {
	case "Id":
		return u.Id
	case "Name":
		return u.Name
	case "TenantId":
		return u.TenantId
	}
	return nil
}

func (u *testUser) SetColumnValue(property string, value any) {
	switch property {
	case "Id":
		u.Id, _ = toInt64(value)
	case "Name":
		u.Name, _ = value.(string)
	case "TenantId":
		u.TenantId, _ = value.(string)
	}
}

func (u *testUser) RelatedEntities(relationshipName string) []Entity {
	if relationshipName != "Orders" {
		return nil
	}
	out := make([]Entity, len(u.Orders))
	for i, o := range u.Orders {
		out[i] = o
	}
	return out
}

func (u *testUser) AttachRelated(relationshipName string, related Entity) {
	if relationshipName != "Orders" {
		return
	}
	if o, ok := related.(*testOrder); ok {
		u.Orders = append(u.Orders, o)
	}
}

type testOrder struct {
	Id         int64
	Total      int64
	CustomerId int64
}

func (o *testOrder) EntityName() string { return "Order" }

func (o *testOrder) ColumnValue(property string) any {
	switch property {
	case "Id":
		return o.Id
	case "Total":
		return o.Total
	case "CustomerId":
		return o.CustomerId
	}
	return nil
}

func (o *testOrder) SetColumnValue(property string, value any) {
	switch property {
	case "Id":
		o.Id, _ = toInt64(value)
	case "Total":
		o.Total, _ = toInt64(value)
	case "CustomerId":
		o.CustomerId, _ = toInt64(value)
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

func testManagerRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	r.Entity("User").
		Property("Id", TypeInteger64).
		Property("Name", TypeText).
		Property("TenantId", TypeText).
		PrimaryKey("Id", GenerationIdentity).
		TenantProperty("TenantId").
		OneToMany("Orders", "Order", "Customer", Cascade(CascadePersist|CascadeRemove), OrphanRemoval())
	r.Entity("Order").
		Property("Id", TypeInteger64).
		Property("Total", TypeInteger64).
		Property("CustomerId", TypeInteger64).
		PrimaryKey("Id", GenerationIdentity).
		ManyToOne("Customer", "User", JoinColumnName("customer_id"))

	reg, err := r.Build()
	require.NoError(t, err)
	return reg
}

func setupManagerDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, tenant_id TEXT);
		CREATE TABLE orders (id INTEGER PRIMARY KEY, total INTEGER, customer_id INTEGER);
	`)
	require.NoError(t, err)
	return db
}

func TestEntityManagerPersistAndFlushInsertsRow(t *testing.T) {
	db := setupManagerDB(t)
	defer db.Close()

	mgr := NewEntityManager(testManagerRegistry(t), db, Dialects.SQLite)
	ctx := context.Background()

	u := &testUser{Name: "Ada"}
	require.NoError(t, mgr.Persist(ctx, u))
	require.NoError(t, mgr.Flush(ctx))
	require.NotZero(t, u.Id)

	var name string
	require.NoError(t, db.QueryRow("SELECT name FROM users WHERE id = ?", u.Id).Scan(&name))
	require.Equal(t, "Ada", name)
}

func TestEntityManagerPersistPopulatesAmbientTenant(t *testing.T) {
	db := setupManagerDB(t)
	defer db.Close()

	mgr := NewEntityManager(testManagerRegistry(t), db, Dialects.SQLite)
	ctx := WithTenant(context.Background(), "acme")

	u := &testUser{Name: "Ada"}
	require.NoError(t, mgr.Persist(ctx, u))
	require.Equal(t, "acme", u.TenantId)
}

func TestEntityManagerPersistCascadesToChildren(t *testing.T) {
	db := setupManagerDB(t)
	defer db.Close()

	mgr := NewEntityManager(testManagerRegistry(t), db, Dialects.SQLite)
	ctx := context.Background()

	u := &testUser{Name: "Ada"}
	o := &testOrder{Total: 100}
	u.Orders = []*testOrder{o}

	require.NoError(t, mgr.Persist(ctx, u))
	require.NoError(t, mgr.Flush(ctx))
	require.NotZero(t, o.Id)
}

func TestEntityManagerMergeRejectsCrossTenantEntity(t *testing.T) {
	db := setupManagerDB(t)
	defer db.Close()

	mgr := NewEntityManager(testManagerRegistry(t), db, Dialects.SQLite)
	ctx := context.Background()

	u := &testUser{Id: 1, Name: "Ada", TenantId: "other-tenant"}

	err := mgr.Merge(WithTenant(ctx, "acme"), u)
	require.ErrorIs(t, err, ErrCrossTenantViolation)
}

func TestEntityManagerMergeEnqueuesUpdateWhenDirty(t *testing.T) {
	db := setupManagerDB(t)
	defer db.Close()

	mgr := NewEntityManager(testManagerRegistry(t), db, Dialects.SQLite)
	ctx := context.Background()

	u := &testUser{Name: "Ada"}
	require.NoError(t, mgr.Persist(ctx, u))
	require.NoError(t, mgr.Flush(ctx))

	tracked, err := Find(ctx, mgr, u.Id, func() *testUser { return &testUser{} })
	require.NoError(t, err)
	tracked.Name = "Ada Lovelace"

	require.NoError(t, mgr.Merge(ctx, tracked))
	require.NoError(t, mgr.Flush(ctx))

	var name string
	require.NoError(t, db.QueryRow("SELECT name FROM users WHERE id = ?", u.Id).Scan(&name))
	require.Equal(t, "Ada Lovelace", name)
}

func TestEntityManagerRemoveCascadesToChildrenBeforeParent(t *testing.T) {
	db := setupManagerDB(t)
	defer db.Close()

	mgr := NewEntityManager(testManagerRegistry(t), db, Dialects.SQLite)
	ctx := context.Background()

	u := &testUser{Name: "Ada"}
	o := &testOrder{Total: 100}
	u.Orders = []*testOrder{o}
	require.NoError(t, mgr.Persist(ctx, u))
	require.NoError(t, mgr.Flush(ctx))

	require.NoError(t, mgr.Remove(ctx, u))
	require.NoError(t, mgr.Flush(ctx))

	var count int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM users WHERE id = ?", u.Id).Scan(&count))
	require.Zero(t, count)
}

func TestFindReturnsCachedInstanceOnSecondCall(t *testing.T) {
	db := setupManagerDB(t)
	defer db.Close()

	mgr := NewEntityManager(testManagerRegistry(t), db, Dialects.SQLite)
	ctx := context.Background()

	u := &testUser{Name: "Ada"}
	require.NoError(t, mgr.Persist(ctx, u))
	require.NoError(t, mgr.Flush(ctx))

	first, err := Find(ctx, mgr, u.Id, func() *testUser { return &testUser{} })
	require.NoError(t, err)

	second, err := Find(ctx, mgr, u.Id, func() *testUser { return &testUser{} })
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestFindReturnsNotFoundForMissingKey(t *testing.T) {
	db := setupManagerDB(t)
	defer db.Close()

	mgr := NewEntityManager(testManagerRegistry(t), db, Dialects.SQLite)
	ctx := context.Background()

	_, err := Find(ctx, mgr, int64(999), func() *testUser { return &testUser{} })
	require.True(t, IsNotFound(err))
}

func TestBeginTransactionRejectsNestedCalls(t *testing.T) {
	db := setupManagerDB(t)
	defer db.Close()

	mgr := NewEntityManager(testManagerRegistry(t), db, Dialects.SQLite)
	ctx := context.Background()

	require.NoError(t, mgr.BeginTransaction(ctx))
	require.Error(t, mgr.BeginTransaction(ctx))
	require.NoError(t, mgr.Rollback())
}

func TestCommitFlushesQueuedOperations(t *testing.T) {
	db := setupManagerDB(t)
	defer db.Close()

	mgr := NewEntityManager(testManagerRegistry(t), db, Dialects.SQLite)
	ctx := context.Background()

	require.NoError(t, mgr.BeginTransaction(ctx))
	u := &testUser{Name: "Ada"}
	require.NoError(t, mgr.Persist(ctx, u))
	require.NoError(t, mgr.Commit(ctx))

	var name string
	require.NoError(t, db.QueryRow("SELECT name FROM users WHERE id = ?", u.Id).Scan(&name))
	require.Equal(t, "Ada", name)
}

// TestMergeRemovesOrphanedCollectionMemberAfterQueryLoad exercises the
// orphan-removal law end-to-end through a query-loaded parent: load a
// User with its three Orders eagerly joined, drop one client-side, then
// merge+flush. GetResultList must attach both the root and its joined
// children to the tracker (not just collapse rows locally) for Merge's
// orphan-detection pass to find the dropped child and enqueue its
// Delete.
func TestMergeRemovesOrphanedCollectionMemberAfterQueryLoad(t *testing.T) {
	db := setupManagerDB(t)
	defer db.Close()

	mgr := NewEntityManager(testManagerRegistry(t), db, Dialects.SQLite)
	ctx := context.Background()

	u := &testUser{Name: "Ada"}
	require.NoError(t, mgr.Persist(ctx, u))
	require.NoError(t, mgr.Flush(ctx))

	for _, total := range []int64{10, 20, 30} {
		o := &testOrder{Total: total, CustomerId: u.Id}
		require.NoError(t, mgr.Persist(ctx, o))
	}
	require.NoError(t, mgr.Flush(ctx))

	var orderCount int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM orders").Scan(&orderCount))
	require.Equal(t, 3, orderCount)

	q, err := mgr.CreateQuery("SELECT u, o FROM User u JOIN u.Orders o WHERE u.Id = :id")
	require.NoError(t, err)
	_, err = q.SetParameter("id", u.Id)
	require.NoError(t, err)

	results, err := q.GetResultList(ctx, map[string]EntityFactory{
		"u": func() Entity { return &testUser{} },
		"o": func() Entity { return &testOrder{} },
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	loaded, ok := results[0].(*testUser)
	require.True(t, ok)
	require.Len(t, loaded.Orders, 3)

	loaded.Orders = loaded.Orders[:2]
	require.NoError(t, mgr.Merge(ctx, loaded))
	require.NoError(t, mgr.Flush(ctx))

	require.NoError(t, db.QueryRow("SELECT count(*) FROM orders").Scan(&orderCount))
	require.Equal(t, 2, orderCount)
}
