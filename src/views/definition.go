package views

// A duality view definition is a tree of table mappings. Each node maps
// one table's columns to JSON fields and declares which operations the
// view permits there. The same definition can arrive through the
// annotation command syntax or through the declarative YAML graph; both
// build this structure.

type ViewDefinition struct {
	// Name is the name of the view.
	Name string

	// Root is the table mapping the documents are rooted at.
	Root NodeDefinition
}

type NodeDefinition struct {
	// Table is the source table for this node.
	Table string

	// Fields are the columns exposed as JSON fields, in the order they
	// appear in the document.
	Fields []FieldDefinition

	// Children are the nested relationships of this node.
	Children []ChildDefinition

	// Operation annotations. The paired flags are tri-state: neither set
	// means "use the default", both set is a conflict the compiler
	// rejects.
	Insert, NoInsert bool
	Update, NoUpdate bool
	Delete, NoDelete bool
}

type FieldDefinition struct {
	// Name is the JSON field name.
	Name string

	// Column is the source column. Empty means the column shares the
	// JSON field name.
	Column string

	Insert, NoInsert bool
	Update, NoUpdate bool

	// Check controls whether the field participates in the document
	// version tag. Fields default to checked.
	Check, NoCheck bool
}

type ChildDefinition struct {
	// Key is the JSON key the child appears under. Unnested children
	// have no key; their fields merge into the parent object.
	Key string

	// Many marks a to-many relationship, emitted as an array.
	Many bool

	// Unnest flattens a to-one child's fields into the parent object.
	Unnest bool

	// ForeignKey names the constraint that joins the child, for schemas
	// where more than one foreign key connects the two tables.
	ForeignKey string

	Node NodeDefinition
}
