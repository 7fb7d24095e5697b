package cpqlorm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildTestRegistry(t *testing.T) *Registry {
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
		Property("Total", TypeDecimal).
		Property("CustomerId", TypeInteger64).
		PrimaryKey("Id", GenerationIdentity).
		ManyToOne("Customer", "User")

	built, err := r.Build()
	require.NoError(t, err)
	return built
}

func TestGenerateSelectBareAliasExpandsColumns(t *testing.T) {
	reg := buildTestRegistry(t)
	gen := NewSQLGenerator(reg, Dialects.PostgreSQL)

	q, err := Parse("SELECT u FROM User u WHERE u.Name = :name")
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), q)
	require.NoError(t, err)
	require.Contains(t, out.SQL, `u.id AS "Id"`)
	require.Contains(t, out.SQL, `u.name AS "Name"`)
	require.Len(t, out.ResultColumns, 3)
}

func TestGenerateSelectInjectsTenantFilter(t *testing.T) {
	reg := buildTestRegistry(t)
	gen := NewSQLGenerator(reg, Dialects.PostgreSQL)

	q, err := Parse("SELECT u FROM User u WHERE u.Name = :name")
	require.NoError(t, err)

	ctx := WithTenant(context.Background(), "tenant-a")
	out, err := gen.Generate(ctx, q)
	require.NoError(t, err)
	require.Equal(t, "__tenant", out.AutoTenantName)
	require.Contains(t, out.SQL, "tenant_id")
}

func TestGenerateSelectNoTenantInjectionWithoutAmbientContext(t *testing.T) {
	reg := buildTestRegistry(t)
	gen := NewSQLGenerator(reg, Dialects.PostgreSQL)

	q, err := Parse("SELECT u FROM User u WHERE u.Name = :name")
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), q)
	require.NoError(t, err)
	require.Empty(t, out.AutoTenantName)
}

func TestGenerateUpdateUsesBareColumnNames(t *testing.T) {
	reg := buildTestRegistry(t)
	gen := NewSQLGenerator(reg, Dialects.MySQL)

	q, err := Parse("UPDATE User u SET u.Name = :name WHERE u.Id = :id")
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), q)
	require.NoError(t, err)
	require.Contains(t, out.SQL, "UPDATE users SET")
	require.NotContains(t, out.SQL, "u.name")
}

func TestGenerateDeleteLogsTenantBypass(t *testing.T) {
	reg := buildTestRegistry(t)
	var logged string
	logger := loggerFunc(func(format string, args ...any) { logged = format })
	gen := NewSQLGenerator(reg, Dialects.PostgreSQL).WithLogger(logger)

	q, err := Parse("DELETE FROM User u WHERE u.Id = :id")
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, logged)
}

func TestGenerateManyToManyEmitsTwoJoins(t *testing.T) {
	r := NewRegistry()
	r.Entity("User").
		Property("Id", TypeInteger64).
		PrimaryKey("Id", GenerationIdentity).
		ManyToMany("Roles", "Role", "")
	r.Entity("Role").
		Property("Id", TypeInteger64).
		PrimaryKey("Id", GenerationIdentity)
	reg, err := r.Build()
	require.NoError(t, err)

	gen := NewSQLGenerator(reg, Dialects.PostgreSQL)
	q, err := Parse("SELECT u FROM User u JOIN u.Roles r WHERE u.Id = :id")
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), q)
	require.NoError(t, err)
	require.Contains(t, out.SQL, "_jt")
}

type loggerFunc func(format string, args ...any)

func (f loggerFunc) Printf(format string, args ...any) { f(format, args...) }
