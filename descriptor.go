package cpqlorm

// TypeTag classifies the storage type of a property (spec.md §3).
type TypeTag int

const (
	TypeInteger8 TypeTag = iota
	TypeInteger16
	TypeInteger32
	TypeInteger64
	TypeDecimal
	TypeFloat32
	TypeFloat64
	TypeBoolean
	TypeText
	TypeTimestamp
	TypeUUID
	TypeBytes
)

// GenerationStrategy controls how a primary-key value is produced.
type GenerationStrategy int

const (
	GenerationNone GenerationStrategy = iota
	GenerationIdentity
	GenerationSequence
	GenerationUUID
	GenerationApplication
)

// RelationshipKind enumerates the four association shapes (spec.md §3).
type RelationshipKind int

const (
	ManyToOne RelationshipKind = iota
	OneToMany
	OneToOne
	ManyToMany
)

// FetchMode controls whether a relationship loads eagerly via join or
// lazily on demand.
type FetchMode int

const (
	FetchLazy FetchMode = iota
	FetchEager
)

// CascadeFlags is a bitset over {persist, merge, remove}.
type CascadeFlags uint8

const (
	CascadePersist CascadeFlags = 1 << iota
	CascadeMerge
	CascadeRemove
)

func (f CascadeFlags) Has(flag CascadeFlags) bool { return f&flag != 0 }

// PropertyDescriptor describes one scalar column-backed field.
type PropertyDescriptor struct {
	Name               string
	ColumnName         string
	TypeTag            TypeTag
	Nullable           bool
	IsPrimaryKey       bool
	GenerationStrategy GenerationStrategy
	Length             int // 0 means unspecified
	Insertable         bool
	Updatable          bool
}

// JoinColumn describes the FK column for ManyToOne/OneToOne owner sides
// and for the inverse-FK side of OneToMany (spec.md §3).
type JoinColumn struct {
	Name             string
	ReferencedColumn string
	Nullable         bool
	Unique           bool
	Insertable       bool
	Updatable        bool
}

// JoinTable describes the association table for a ManyToMany owner side.
type JoinTable struct {
	Name            string
	Schema          string
	OwnerFKColumns  []string
	InverseFKColumns []string
}

// RelationshipDescriptor describes one association from the owning
// EntityDescriptor to another entity, by name (spec.md §3).
type RelationshipDescriptor struct {
	Name          string
	Kind          RelationshipKind
	TargetEntity  string
	IsOwner       bool
	MappedBy      string // non-empty iff inverse side
	JoinColumn    *JoinColumn
	JoinTable     *JoinTable
	FetchMode     FetchMode
	CascadeFlags  CascadeFlags
	OrphanRemoval bool
}

// NamedQuery pairs a name with CPQL-or-native query text.
type NamedQuery struct {
	Text     string
	IsNative bool
}

// EntityDescriptor is the immutable identity of one entity type
// (spec.md §3). Built once by the registry, thereafter read-only.
type EntityDescriptor struct {
	Name       string
	TableName  string
	Schema     string
	Properties []*PropertyDescriptor

	// propertiesByName indexes Properties for O(1) lookup; built at
	// registry.Build() time, never mutated afterward.
	propertiesByName map[string]*PropertyDescriptor

	PrimaryKey *PropertyDescriptor

	Relationships map[string]*RelationshipDescriptor

	NamedQueries map[string]NamedQuery

	TenantProperty *PropertyDescriptor

	// CascadeRelationships is the subset of Relationships whose cascade
	// flags are non-empty; computed once at Build() time.
	CascadeRelationships map[string]*RelationshipDescriptor
}

// Property looks up a property by name (case-sensitive; CPQL property
// paths are resolved case-sensitively once past keyword matching).
func (d *EntityDescriptor) Property(name string) (*PropertyDescriptor, bool) {
	p, ok := d.propertiesByName[name]
	return p, ok
}

// ColumnFor returns the column name bound to property name, defaulting to
// the property name itself if not found (callers that need existence
// checking should use Property directly).
func (d *EntityDescriptor) ColumnFor(propertyName string) string {
	if p, ok := d.propertiesByName[propertyName]; ok {
		return p.ColumnName
	}
	return propertyName
}
