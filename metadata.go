package cpqlorm

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/gertd/go-pluralize"
	"github.com/iancoleman/strcase"
	"github.com/jedib0t/go-pretty/table"
	"golang.org/x/sync/singleflight"
)

// Registry is the metadata registry (spec.md §4.A): an immutable
// descriptor graph built once per program and thereafter freely shared
// across every entity manager (spec.md §5); lookups take only a read
// lock. Per spec.md §9's
// redesign note, descriptors are populated by explicit registration
// calls rather than by reflecting over annotated types at runtime — the
// registry itself performs no runtime introspection.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]*EntityBuilder
	entities map[string]*EntityDescriptor
	built    bool

	// group deduplicates concurrent calls into Build for the same
	// registry instance; a single registry is normally built once at
	// startup, but singleflight keeps concurrent first-touch callers
	// (e.g. several goroutines lazily initializing the same package
	// global) from racing the build.
	group singleflight.Group

	pluralizer *pluralize.Client
}

// NewRegistry creates an empty, mutable registry. Call Entity to declare
// entities, then Build to validate and freeze the descriptor graph.
func NewRegistry() *Registry {
	return &Registry{
		builders:   make(map[string]*EntityBuilder),
		pluralizer: pluralize.NewClient(),
	}
}

// Entity begins (or resumes) the declaration of an entity type. Calling
// Entity twice with the same name returns the same builder, allowing
// declarations to be split across multiple registration calls.
func (r *Registry) Entity(name string) *EntityBuilder {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.built {
		panic(fmt.Sprintf("cpqlorm: Entity(%q) called after Build", name))
	}

	if b, ok := r.builders[name]; ok {
		return b
	}
	b := &EntityBuilder{
		registry:      r,
		name:          name,
		relationships: make(map[string]*RelationshipDescriptor),
		namedQueries:  make(map[string]NamedQuery),
	}
	r.builders[name] = b
	return b
}

// EntityBuilder declaratively configures one EntityDescriptor. Every
// setter returns the builder for chaining, matching the teacher's
// EntityConfigurator/FieldConfigurator fluent style.
type EntityBuilder struct {
	registry *Registry

	name      string
	tableName string
	schema    string

	properties     []*PropertyDescriptor
	tenantProperty string

	relationships map[string]*RelationshipDescriptor
	namedQueries  map[string]NamedQuery

	err error
}

// Table overrides the default (pluralized snake_case) table name.
func (b *EntityBuilder) Table(name string) *EntityBuilder {
	b.tableName = name
	return b
}

// Schema sets an optional schema qualifier for the table.
func (b *EntityBuilder) Schema(name string) *EntityBuilder {
	b.schema = name
	return b
}

// PropertyOption mutates a PropertyDescriptor being declared.
type PropertyOption func(*PropertyDescriptor)

// Nullable marks a property as nullable.
func Nullable() PropertyOption { return func(p *PropertyDescriptor) { p.Nullable = true } }

// Length sets a property's declared length (e.g. varchar size).
func Length(n int) PropertyOption { return func(p *PropertyDescriptor) { p.Length = n } }

// ReadOnly marks a property as not updatable (e.g. CreatedAt columns).
func ReadOnly() PropertyOption { return func(p *PropertyDescriptor) { p.Updatable = false } }

// NotInsertable marks a property as excluded from INSERT column lists
// (e.g. a database-computed column).
func NotInsertable() PropertyOption { return func(p *PropertyDescriptor) { p.Insertable = false } }

// Column overrides the default snake_case column name for a property.
func Column(name string) PropertyOption {
	return func(p *PropertyDescriptor) { p.ColumnName = name }
}

// Property declares a scalar, column-backed field.
func (b *EntityBuilder) Property(name string, typeTag TypeTag, opts ...PropertyOption) *EntityBuilder {
	p := &PropertyDescriptor{
		Name:       name,
		ColumnName: strcase.ToSnake(name),
		TypeTag:    typeTag,
		Insertable: true,
		Updatable:  true,
	}
	for _, opt := range opts {
		opt(p)
	}
	b.properties = append(b.properties, p)
	return b
}

// PrimaryKey declares name as the entity's single primary-key property.
// It must already have been declared via Property.
func (b *EntityBuilder) PrimaryKey(name string, strategy GenerationStrategy) *EntityBuilder {
	for _, p := range b.properties {
		if p.Name == name {
			p.IsPrimaryKey = true
			p.GenerationStrategy = strategy
			p.Updatable = false
			return b
		}
	}
	b.err = fmt.Errorf("cpqlorm: PrimaryKey(%q): no such property declared on %q", name, b.name)
	return b
}

// TenantProperty designates the property holding the tenant discriminator.
func (b *EntityBuilder) TenantProperty(name string) *EntityBuilder {
	b.tenantProperty = name
	return b
}

// NamedQuery registers a named CPQL-or-native query.
func (b *EntityBuilder) NamedQuery(name, text string, isNative bool) *EntityBuilder {
	b.namedQueries[name] = NamedQuery{Text: text, IsNative: isNative}
	return b
}

// RelationshipOption mutates a RelationshipDescriptor being declared.
type RelationshipOption func(*RelationshipDescriptor)

// Cascade sets the relationship's cascade flags.
func Cascade(flags CascadeFlags) RelationshipOption {
	return func(r *RelationshipDescriptor) { r.CascadeFlags = flags }
}

// Eager marks a relationship for eager (joined) fetch.
func Eager() RelationshipOption { return func(r *RelationshipDescriptor) { r.FetchMode = FetchEager } }

// OrphanRemoval enables orphan deletion for a collection-valued
// relationship.
func OrphanRemoval() RelationshipOption {
	return func(r *RelationshipDescriptor) { r.OrphanRemoval = true }
}

// JoinColumnName overrides the default FK column name for an owner-side
// relationship.
func JoinColumnName(name string) RelationshipOption {
	return func(r *RelationshipDescriptor) {
		if r.JoinColumn == nil {
			r.JoinColumn = &JoinColumn{Insertable: true, Updatable: true}
		}
		r.JoinColumn.Name = name
	}
}

// ManyToOne declares an owner-side many-to-one relationship.
func (b *EntityBuilder) ManyToOne(name, targetEntity string, opts ...RelationshipOption) *EntityBuilder {
	rel := &RelationshipDescriptor{
		Name:         name,
		Kind:         ManyToOne,
		TargetEntity: targetEntity,
		IsOwner:      true,
		JoinColumn:   &JoinColumn{Insertable: true, Updatable: true, ReferencedColumn: "id"},
	}
	for _, opt := range opts {
		opt(rel)
	}
	b.relationships[name] = rel
	return b
}

// OneToOne declares a one-to-one relationship. isOwner controls whether
// this side physically holds the FK column.
func (b *EntityBuilder) OneToOne(name, targetEntity string, isOwner bool, mappedBy string, opts ...RelationshipOption) *EntityBuilder {
	rel := &RelationshipDescriptor{
		Name:         name,
		Kind:         OneToOne,
		TargetEntity: targetEntity,
		IsOwner:      isOwner,
		MappedBy:     mappedBy,
	}
	if isOwner {
		rel.JoinColumn = &JoinColumn{Insertable: true, Updatable: true, ReferencedColumn: "id"}
	}
	for _, opt := range opts {
		opt(rel)
	}
	b.relationships[name] = rel
	return b
}

// OneToMany declares an inverse-side one-to-many relationship; mappedBy
// names the owner-side relationship on the target entity.
func (b *EntityBuilder) OneToMany(name, targetEntity, mappedBy string, opts ...RelationshipOption) *EntityBuilder {
	rel := &RelationshipDescriptor{
		Name:         name,
		Kind:         OneToMany,
		TargetEntity: targetEntity,
		IsOwner:      false,
		MappedBy:     mappedBy,
	}
	for _, opt := range opts {
		opt(rel)
	}
	b.relationships[name] = rel
	return b
}

// ManyToMany declares an owner-side many-to-many relationship backed by
// a join table. If joinTable is empty, it defaults to
// "<owner_table>_<target_table>".
func (b *EntityBuilder) ManyToMany(name, targetEntity, joinTable string, opts ...RelationshipOption) *EntityBuilder {
	rel := &RelationshipDescriptor{
		Name:         name,
		Kind:         ManyToMany,
		TargetEntity: targetEntity,
		IsOwner:      true,
		JoinTable:    &JoinTable{Name: joinTable},
	}
	for _, opt := range opts {
		opt(rel)
	}
	b.relationships[name] = rel
	return b
}

// Build validates every declared entity, resolves relationship
// defaulting and mappedBy cross-references, and freezes the result into
// an immutable Registry. Build may be called exactly once; subsequent
// calls return the cached result via singleflight so concurrent
// first-time callers never race the build.
func (r *Registry) Build() (*Registry, error) {
	v, err, _ := r.group.Do("build", func() (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.built {
			return r, nil
		}

		for _, b := range r.builders {
			if b.err != nil {
				return nil, b.err
			}
		}

		entities := make(map[string]*EntityDescriptor, len(r.builders))
		for name, b := range r.builders {
			entities[name] = b.toDescriptor(r)
		}

		if err := resolveAndValidate(entities, r.pluralizer); err != nil {
			return nil, err
		}

		r.entities = entities
		r.built = true
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Registry), nil
}

func (b *EntityBuilder) toDescriptor(r *Registry) *EntityDescriptor {
	tableName := b.tableName
	if tableName == "" {
		tableName = r.pluralizer.Plural(strcase.ToSnake(b.name))
	}

	d := &EntityDescriptor{
		Name:                 b.name,
		TableName:            tableName,
		Schema:               b.schema,
		Properties:           b.properties,
		propertiesByName:     make(map[string]*PropertyDescriptor, len(b.properties)),
		Relationships:        b.relationships,
		NamedQueries:         b.namedQueries,
		CascadeRelationships: make(map[string]*RelationshipDescriptor),
	}
	for _, p := range b.properties {
		d.propertiesByName[p.Name] = p
		if p.IsPrimaryKey {
			d.PrimaryKey = p
		}
		if p.Name == b.tenantProperty {
			d.TenantProperty = p
		}
	}
	for name, rel := range b.relationships {
		if rel.CascadeFlags != 0 {
			d.CascadeRelationships[name] = rel
		}
	}
	return d
}

// resolveAndValidate enforces spec.md §3's invariants and fills in
// defaulted join-column names per §4.A's resolution policy.
func resolveAndValidate(entities map[string]*EntityDescriptor, p *pluralize.Client) error {
	for _, d := range entities {
		if d.PrimaryKey == nil {
			return &ValidationError{Entity: d.Name, Message: "exactly one primary key is required"}
		}

		seenCols := make(map[string]string, len(d.Properties))
		for _, prop := range d.Properties {
			if other, ok := seenCols[prop.ColumnName]; ok && other != prop.Name {
				return &ValidationError{Entity: d.Name, Field: prop.Name, Message: fmt.Sprintf("column %q already used by property %q", prop.ColumnName, other)}
			}
			seenCols[prop.ColumnName] = prop.Name
		}

		for relName, rel := range d.Relationships {
			target, ok := entities[rel.TargetEntity]
			if !ok {
				return &ValidationError{Entity: d.Name, Field: relName, Message: fmt.Sprintf("target entity %q not registered", rel.TargetEntity)}
			}

			switch rel.Kind {
			case ManyToOne:
				if rel.JoinColumn.Name == "" {
					rel.JoinColumn.Name = strcase.ToSnake(rel.TargetEntity + "Id")
				}
			case OneToOne:
				if rel.IsOwner {
					if rel.JoinColumn.Name == "" {
						rel.JoinColumn.Name = strcase.ToSnake(rel.TargetEntity + "Id")
					}
				} else {
					if rel.MappedBy == "" {
						return &ValidationError{Entity: d.Name, Field: relName, Message: "inverse OneToOne requires mappedBy"}
					}
					owner, ok := target.Relationships[rel.MappedBy]
					if !ok {
						return &ValidationError{Entity: d.Name, Field: relName, Message: fmt.Sprintf("mappedBy %q not found on %q", rel.MappedBy, rel.TargetEntity)}
					}
					if owner.TargetEntity != d.Name {
						return &ValidationError{Entity: d.Name, Field: relName, Message: fmt.Sprintf("mappedBy %q on %q does not point back to %q", rel.MappedBy, rel.TargetEntity, d.Name)}
					}
				}
			case OneToMany:
				if rel.MappedBy == "" {
					return &ValidationError{Entity: d.Name, Field: relName, Message: "OneToMany requires mappedBy"}
				}
				owner, ok := target.Relationships[rel.MappedBy]
				if !ok {
					return &ValidationError{Entity: d.Name, Field: relName, Message: fmt.Sprintf("mappedBy %q not found on %q", rel.MappedBy, rel.TargetEntity)}
				}
				if owner.TargetEntity != d.Name {
					return &ValidationError{Entity: d.Name, Field: relName, Message: fmt.Sprintf("mappedBy %q on %q does not point back to %q", rel.MappedBy, rel.TargetEntity, d.Name)}
				}
				if owner.JoinColumn == nil || owner.JoinColumn.Name == "" {
					if owner.JoinColumn == nil {
						owner.JoinColumn = &JoinColumn{Insertable: true, Updatable: true, ReferencedColumn: "id"}
					}
					owner.JoinColumn.Name = strcase.ToSnake(d.Name + "Id")
				}
			case ManyToMany:
				if rel.JoinTable.Name == "" {
					rel.JoinTable.Name = p.Plural(strcase.ToSnake(d.Name)) + "_" + p.Plural(strcase.ToSnake(rel.TargetEntity))
				}
				if len(rel.JoinTable.OwnerFKColumns) == 0 {
					rel.JoinTable.OwnerFKColumns = []string{strcase.ToSnake(d.Name + "Id")}
				}
				if len(rel.JoinTable.InverseFKColumns) == 0 {
					rel.JoinTable.InverseFKColumns = []string{strcase.ToSnake(rel.TargetEntity + "Id")}
				}
			}
		}
	}
	return nil
}

// Lookup returns the descriptor for entityName, or false if unknown.
func (r *Registry) Lookup(entityName string) (*EntityDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.entities[entityName]
	return d, ok
}

// Require returns the descriptor for entityName or fails with
// ErrUnknownEntity.
func (r *Registry) Require(entityName string) (*EntityDescriptor, error) {
	d, ok := r.Lookup(entityName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entityName)
	}
	return d, nil
}

// ColumnListFor returns the ordered sequence of properties for a
// descriptor, i.e. the full select/insert column list.
func (r *Registry) ColumnListFor(d *EntityDescriptor) []*PropertyDescriptor {
	return d.Properties
}

// KeyPropertyFor returns the primary-key property for a descriptor.
func (r *Registry) KeyPropertyFor(d *EntityDescriptor) *PropertyDescriptor {
	return d.PrimaryKey
}

// ForeignKeyFor returns the resolved join column name for a relationship,
// walking mappedBy for inverse OneToMany sides per §4.A.
func (r *Registry) ForeignKeyFor(rel *RelationshipDescriptor) (string, error) {
	if rel.Kind == OneToMany || (rel.Kind == OneToOne && !rel.IsOwner) {
		target, err := r.Require(rel.TargetEntity)
		if err != nil {
			return "", err
		}
		owner, ok := target.Relationships[rel.MappedBy]
		if !ok {
			return "", fmt.Errorf("%w: mappedBy %q on %q", ErrUnknownRelationship, rel.MappedBy, rel.TargetEntity)
		}
		return owner.JoinColumn.Name, nil
	}
	if rel.JoinColumn != nil {
		return rel.JoinColumn.Name, nil
	}
	return "", fmt.Errorf("%w: relationship %q has no join column", ErrUnsupportedFeature, rel.Name)
}

// DescribeRegistry writes a tabular debug dump of every registered
// entity's columns and relationships, adapted from the teacher's
// connection.go PrintSchematic debug helper.
func (r *Registry) DescribeRegistry(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		d := r.entities[name]
		fmt.Fprintf(w, "entity %s -> table %s\n", d.Name, d.TableName)

		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.AppendHeader(table.Row{"Property", "Column", "PK", "Nullable", "Generation"})
		for _, p := range d.Properties {
			t.AppendRow(table.Row{p.Name, p.ColumnName, p.IsPrimaryKey, p.Nullable, generationName(p.GenerationStrategy)})
		}
		t.Render()

		if len(d.Relationships) > 0 {
			relNames := make([]string, 0, len(d.Relationships))
			for rn := range d.Relationships {
				relNames = append(relNames, rn)
			}
			sort.Strings(relNames)

			rt := table.NewWriter()
			rt.SetOutputMirror(w)
			rt.AppendHeader(table.Row{"Relationship", "Kind", "Target", "Owner", "Cascade"})
			for _, rn := range relNames {
				rel := d.Relationships[rn]
				rt.AppendRow(table.Row{rn, relationKindName(rel.Kind), rel.TargetEntity, rel.IsOwner, cascadeNames(rel.CascadeFlags)})
			}
			rt.Render()
		}
	}
}

func generationName(g GenerationStrategy) string {
	switch g {
	case GenerationIdentity:
		return "identity"
	case GenerationSequence:
		return "sequence"
	case GenerationUUID:
		return "uuid"
	case GenerationApplication:
		return "application"
	default:
		return "none"
	}
}

func relationKindName(k RelationshipKind) string {
	switch k {
	case ManyToOne:
		return "ManyToOne"
	case OneToMany:
		return "OneToMany"
	case OneToOne:
		return "OneToOne"
	case ManyToMany:
		return "ManyToMany"
	default:
		return "?"
	}
}

func cascadeNames(f CascadeFlags) string {
	var parts []string
	if f.Has(CascadePersist) {
		parts = append(parts, "persist")
	}
	if f.Has(CascadeMerge) {
		parts = append(parts, "merge")
	}
	if f.Has(CascadeRemove) {
		parts = append(parts, "remove")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}
