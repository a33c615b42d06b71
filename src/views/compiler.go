package views

import (
	"fmt"

	"dualdb/src/helpers"
	"dualdb/src/schema"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// NodeID indexes a node in the plan's arena. The root is always node 0.
type NodeID int

// NoParent marks the root node's parent slot.
const NoParent NodeID = -1

type Cardinality int

const (
	One Cardinality = iota
	Many
)

// PermissionSet is the flat capability record of a plan node, checked
// by lookup on every write.
type PermissionSet struct {
	Insert bool
	Update bool
	Delete bool
}

type PlanField struct {
	// Name is the JSON field name; Path is the dotted path from the
	// document root.
	Name   string
	Column string
	Path   string

	Insertable bool
	Updatable  bool

	// Checked fields participate in the version tag.
	Checked bool

	// Key marks fields bound to the node table's primary key columns.
	Key bool
}

type PlanNode struct {
	ID     NodeID
	Parent NodeID

	Table   *schema.Table
	JSONKey string
	Card    Cardinality
	Unnest  bool
	Perms   PermissionSet

	Fields   []PlanField
	Children []NodeID

	// Join columns. For a to-many child the foreign key lives on this
	// node's table and references the parent; for a to-one child it
	// lives on the parent's table and references this node.
	FKName     string
	FKColumns  []string
	RefColumns []string
}

type PathRef struct {
	Node  NodeID
	Field int
}

// MappingPlan is the compiled, read-optimized form of a view
// definition: a node arena plus a field-to-path dictionary. Plans are
// immutable once compiled.
type MappingPlan struct {
	ViewName string
	PlanID   string
	Nodes    []PlanNode
	Paths    map[string]PathRef
}

func (p *MappingPlan) Root() *PlanNode {
	return &p.Nodes[0]
}

func (p *MappingPlan) Node(id NodeID) *PlanNode {
	return &p.Nodes[id]
}

func (n *PlanNode) FieldByName(name string) (*PlanField, bool) {
	for i := range n.Fields {
		if n.Fields[i].Name == name {
			return &n.Fields[i], true
		}
	}
	return nil, false
}

func (n *PlanNode) FieldByColumn(column string) (*PlanField, bool) {
	for i := range n.Fields {
		if n.Fields[i].Column == column {
			return &n.Fields[i], true
		}
	}
	return nil, false
}

// KeyFields returns the fields bound to the node table's primary key.
func (n *PlanNode) KeyFields() []*PlanField {
	var keys []*PlanField
	for i := range n.Fields {
		if n.Fields[i].Key {
			keys = append(keys, &n.Fields[i])
		}
	}
	return keys
}

// RootKey translates a document's key fields into primary key column
// values of the root table.
func (p *MappingPlan) RootKey(doc map[string]interface{}) (map[string]interface{}, error) {
	root := p.Root()
	key := make(map[string]interface{})
	for _, f := range root.KeyFields() {
		v, ok := doc[f.Name]
		if !ok || v == nil {
			return nil, fmt.Errorf("document key field '%s' is missing", f.Name)
		}
		key[f.Column] = v
	}
	return key, nil
}

type compiler struct {
	view   string
	schema *schema.Schema
	plan   *MappingPlan
	errs   error
	logger *zap.SugaredLogger
}

func (c *compiler) failf(format string, args ...interface{}) {
	c.errs = multierr.Append(c.errs, fmt.Errorf(format, args...))
}

// ancestorSig identifies a containment step for cycle detection: the
// same table joined through the same foreign key must not contain
// itself.
type ancestorSig struct {
	table string
	fk    string
}

// Compile translates a view definition into a mapping plan against the
// given schema. Compilation is pure: it touches no data, and every
// problem found is reported together inside one SchemaError.
func Compile(def *ViewDefinition, sch *schema.Schema, logger *zap.SugaredLogger) (*MappingPlan, error) {
	if def.Name == "" {
		return nil, &SchemaError{View: def.Name, Detail: "view has no name"}
	}

	c := &compiler{
		view:   def.Name,
		schema: sch,
		logger: logger,
		plan: &MappingPlan{
			ViewName: def.Name,
			PlanID:   helpers.GenerateUUID(),
			Paths:    make(map[string]PathRef),
		},
	}

	rootPerms := PermissionSet{Insert: true, Update: true, Delete: true}
	c.compileNode(&def.Root, NoParent, ChildDefinition{}, rootPerms, "", nil, make(map[string]bool))

	if c.errs != nil {
		return nil, &SchemaError{View: def.Name, Detail: c.errs.Error()}
	}

	if logger != nil {
		logger.Infow("Compiled duality view",
			"view", def.Name,
			"planID", c.plan.PlanID,
			"nodes", len(c.plan.Nodes))
	}

	return c.plan, nil
}

// resolveFlag applies a tri-state annotation pair over a default.
func (c *compiler) resolveFlag(on, off, def bool, what string) bool {
	if on && off {
		c.failf("conflicting annotations on %s", what)
		return def
	}
	if on {
		return true
	}
	if off {
		return false
	}
	return def
}

// compileNode appends a node for the definition and recurses into its
// children. names is the JSON namespace of the object the node's fields
// land in, shared with the parent for unnested nodes.
func (c *compiler) compileNode(nd *NodeDefinition, parent NodeID, link ChildDefinition, defaultPerms PermissionSet, pathPrefix string, ancestors []ancestorSig, names map[string]bool) NodeID {
	id := NodeID(len(c.plan.Nodes))
	c.plan.Nodes = append(c.plan.Nodes, PlanNode{
		ID:      id,
		Parent:  parent,
		JSONKey: link.Key,
		Unnest:  link.Unnest,
	})

	table, ok := c.schema.Table(nd.Table)
	if !ok {
		c.failf("table '%s' does not exist", nd.Table)
		return id
	}

	node := &c.plan.Nodes[id]
	node.Table = table
	if link.Many {
		node.Card = Many
	} else {
		node.Card = One
	}

	nodeLabel := fmt.Sprintf("node '%s'", nd.Table)
	node.Perms = PermissionSet{
		Insert: c.resolveFlag(nd.Insert, nd.NoInsert, defaultPerms.Insert, nodeLabel),
		Update: c.resolveFlag(nd.Update, nd.NoUpdate, defaultPerms.Update, nodeLabel),
		Delete: c.resolveFlag(nd.Delete, nd.NoDelete, defaultPerms.Delete, nodeLabel),
	}

	// Resolve the join to the parent
	if parent != NoParent {
		c.resolveJoin(node, link)
	}

	// Cycle check: a table contained in itself through the same foreign
	// key would nest forever
	sig := ancestorSig{table: nd.Table, fk: node.FKName}
	for _, a := range ancestors {
		if a == sig {
			c.failf("cyclic containment: table '%s' contains itself through foreign key '%s'", nd.Table, node.FKName)
			return id
		}
	}
	ancestors = append(ancestors, sig)

	// Map the fields
	mappedColumns := make(map[string]bool)
	for _, fd := range nd.Fields {
		column := fd.Column
		if column == "" {
			column = fd.Name
		}
		col, ok := table.Column(column)
		if !ok {
			c.failf("table '%s' has no column '%s'", nd.Table, column)
			continue
		}
		if names[fd.Name] {
			c.failf("JSON field '%s' appears more than once in the same object", fd.Name)
			continue
		}
		names[fd.Name] = true
		mappedColumns[col.Name] = true

		fieldLabel := fmt.Sprintf("field '%s'", fd.Name)
		field := PlanField{
			Name:       fd.Name,
			Column:     col.Name,
			Path:       pathPrefix + fd.Name,
			Insertable: c.resolveFlag(fd.Insert, fd.NoInsert, node.Perms.Insert, fieldLabel),
			Updatable:  c.resolveFlag(fd.Update, fd.NoUpdate, node.Perms.Update, fieldLabel),
			Checked:    c.resolveFlag(fd.Check, fd.NoCheck, true, fieldLabel),
			Key:        table.IsPrimaryKey(col.Name),
		}
		node.Fields = append(node.Fields, field)
		c.plan.Paths[field.Path] = PathRef{Node: id, Field: len(node.Fields) - 1}
	}

	// Every node must expose its table's full primary key so documents
	// and rows can be matched on write
	for _, pk := range table.PrimaryKey {
		if !mappedColumns[pk] {
			c.failf("node for table '%s' must map primary key column '%s'", nd.Table, pk)
		}
	}

	// Recurse into children
	for i := range nd.Children {
		cd := &nd.Children[i]
		if cd.Unnest {
			if cd.Many {
				c.failf("child '%s' of table '%s' cannot be both unnested and to-many", cd.Node.Table, nd.Table)
				continue
			}
			if cd.Key != "" {
				c.failf("unnested child '%s' of table '%s' must not declare a JSON key", cd.Node.Table, nd.Table)
				continue
			}
		} else if cd.Key == "" {
			c.failf("nested child of table '%s' must declare a JSON key", nd.Table)
			continue
		}

		childPrefix := pathPrefix
		childNames := names
		if !cd.Unnest {
			if names[cd.Key] {
				c.failf("JSON field '%s' appears more than once in the same object", cd.Key)
				continue
			}
			names[cd.Key] = true
			childPrefix = pathPrefix + cd.Key + "."
			childNames = make(map[string]bool)
		}

		childID := c.compileNode(&cd.Node, id, *cd, PermissionSet{}, childPrefix, ancestors, childNames)
		c.plan.Nodes[id].Children = append(c.plan.Nodes[id].Children, childID)
	}

	return id
}

// resolveJoin finds the foreign key connecting a child node to its
// parent. To-many children carry the key themselves; to-one children
// are referenced by the parent.
func (c *compiler) resolveJoin(node *PlanNode, link ChildDefinition) {
	parentTable := c.plan.Nodes[node.Parent].Table
	if parentTable == nil {
		return
	}

	var owner *schema.Table
	var refTable string
	if node.Card == Many {
		owner = node.Table
		refTable = parentTable.Name
	} else {
		owner = parentTable
		refTable = node.Table.Name
	}

	var fk *schema.ForeignKey
	if link.ForeignKey != "" {
		named, ok := owner.ForeignKey(link.ForeignKey)
		if !ok || named.RefTable != refTable {
			c.failf("table '%s' has no foreign key '%s' referencing table '%s'", owner.Name, link.ForeignKey, refTable)
			return
		}
		fk = named
	} else {
		candidates := owner.ForeignKeysTo(refTable)
		switch len(candidates) {
		case 0:
			c.failf("no foreign key connects table '%s' to table '%s'", owner.Name, refTable)
			return
		case 1:
			fk = candidates[0]
		default:
			c.failf("more than one foreign key connects table '%s' to table '%s'; name one with a foreign key annotation", owner.Name, refTable)
			return
		}
	}

	node.FKName = fk.Name
	node.FKColumns = fk.Columns
	node.RefColumns = fk.RefColumns
}
