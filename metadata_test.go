package cpqlorm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildRequiresExactlyOnePrimaryKey(t *testing.T) {
	r := NewRegistry()
	r.Entity("User").Property("Name", TypeText)

	_, err := r.Build()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestBuildRejectsDuplicateColumnNames(t *testing.T) {
	r := NewRegistry()
	r.Entity("User").
		Property("Id", TypeInteger64).
		Property("DisplayName", TypeText, Column("name")).
		Property("LegalName", TypeText, Column("name")).
		PrimaryKey("Id", GenerationIdentity)

	_, err := r.Build()
	require.Error(t, err)
}

func TestPrimaryKeyOnUndeclaredPropertyFails(t *testing.T) {
	r := NewRegistry()
	r.Entity("User").Property("Name", TypeText).PrimaryKey("Id", GenerationIdentity)

	_, err := r.Build()
	require.Error(t, err)
}

func TestBuildDefaultsTableNameToPluralSnakeCase(t *testing.T) {
	r := NewRegistry()
	r.Entity("OrderLine").
		Property("Id", TypeInteger64).
		PrimaryKey("Id", GenerationIdentity)

	reg, err := r.Build()
	require.NoError(t, err)

	d, ok := reg.Lookup("OrderLine")
	require.True(t, ok)
	require.Equal(t, "order_lines", d.TableName)
}

func TestBuildRejectsUnknownRelationshipTarget(t *testing.T) {
	r := NewRegistry()
	r.Entity("Order").
		Property("Id", TypeInteger64).
		PrimaryKey("Id", GenerationIdentity).
		ManyToOne("Customer", "User")

	_, err := r.Build()
	require.Error(t, err)
}

func TestBuildDefaultsManyToOneJoinColumn(t *testing.T) {
	r := NewRegistry()
	r.Entity("User").Property("Id", TypeInteger64).PrimaryKey("Id", GenerationIdentity)
	r.Entity("Order").
		Property("Id", TypeInteger64).
		PrimaryKey("Id", GenerationIdentity).
		ManyToOne("Customer", "User")

	reg, err := r.Build()
	require.NoError(t, err)

	order, _ := reg.Lookup("Order")
	require.Equal(t, "user_id", order.Relationships["Customer"].JoinColumn.Name)
}

func TestBuildValidatesOneToManyMappedBy(t *testing.T) {
	r := NewRegistry()
	r.Entity("User").
		Property("Id", TypeInteger64).
		PrimaryKey("Id", GenerationIdentity).
		OneToMany("Orders", "Order", "Customer")
	r.Entity("Order").
		Property("Id", TypeInteger64).
		PrimaryKey("Id", GenerationIdentity)

	_, err := r.Build()
	require.Error(t, err)
}

func TestBuildResolvesOneToManyAgainstOwningManyToOne(t *testing.T) {
	r := NewRegistry()
	r.Entity("User").
		Property("Id", TypeInteger64).
		PrimaryKey("Id", GenerationIdentity).
		OneToMany("Orders", "Order", "Customer")
	r.Entity("Order").
		Property("Id", TypeInteger64).
		PrimaryKey("Id", GenerationIdentity).
		ManyToOne("Customer", "User")

	reg, err := r.Build()
	require.NoError(t, err)

	user, _ := reg.Lookup("User")
	require.Equal(t, OneToMany, user.Relationships["Orders"].Kind)
}

func TestBuildDefaultsManyToManyJoinTableAndColumns(t *testing.T) {
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

	user, _ := reg.Lookup("User")
	rel := user.Relationships["Roles"]
	require.Equal(t, "users_roles", rel.JoinTable.Name)
	require.Equal(t, []string{"user_id"}, rel.JoinTable.OwnerFKColumns)
	require.Equal(t, []string{"role_id"}, rel.JoinTable.InverseFKColumns)
}

func TestBuildIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Entity("User").
		Property("Id", TypeInteger64).
		PrimaryKey("Id", GenerationIdentity)

	first, err := r.Build()
	require.NoError(t, err)

	second, err := r.Build()
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestEntityCalledTwiceReusesSameBuilder(t *testing.T) {
	r := NewRegistry()
	r.Entity("User").Property("Id", TypeInteger64).PrimaryKey("Id", GenerationIdentity)
	r.Entity("User").Property("Name", TypeText)

	reg, err := r.Build()
	require.NoError(t, err)

	d, _ := reg.Lookup("User")
	require.Len(t, d.Properties, 2)
}

func TestRequireFailsForUnknownEntity(t *testing.T) {
	r := NewRegistry()
	r.Entity("User").Property("Id", TypeInteger64).PrimaryKey("Id", GenerationIdentity)
	reg, err := r.Build()
	require.NoError(t, err)

	_, err = reg.Require("Ghost")
	require.ErrorIs(t, err, ErrUnknownEntity)
}

func TestForeignKeyForWalksMappedByOnInverseSide(t *testing.T) {
	r := NewRegistry()
	r.Entity("User").
		Property("Id", TypeInteger64).
		PrimaryKey("Id", GenerationIdentity).
		OneToMany("Orders", "Order", "Customer")
	r.Entity("Order").
		Property("Id", TypeInteger64).
		PrimaryKey("Id", GenerationIdentity).
		ManyToOne("Customer", "User")

	reg, err := r.Build()
	require.NoError(t, err)

	user, _ := reg.Lookup("User")
	fk, err := reg.ForeignKeyFor(user.Relationships["Orders"])
	require.NoError(t, err)
	require.Equal(t, "user_id", fk)
}

func TestDescribeRegistryWritesSchemaSummary(t *testing.T) {
	r := NewRegistry()
	r.Entity("User").
		Property("Id", TypeInteger64).
		PrimaryKey("Id", GenerationIdentity).
		OneToMany("Orders", "Order", "Customer")
	r.Entity("Order").
		Property("Id", TypeInteger64).
		PrimaryKey("Id", GenerationIdentity).
		ManyToOne("Customer", "User")

	reg, err := r.Build()
	require.NoError(t, err)

	var buf bytes.Buffer
	reg.DescribeRegistry(&buf)
	require.Contains(t, buf.String(), "entity Order -> table orders")
	require.Contains(t, buf.String(), "entity User -> table users")
}
