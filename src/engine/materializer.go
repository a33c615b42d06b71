package engine

import (
	"fmt"

	"dualdb/src/store"
	"dualdb/src/views"

	"go.uber.org/zap"
)

// Materializer assembles JSON documents from relational rows following
// a mapping plan. It never caches document state: every document is
// built from the rows as they are when it is produced.
type Materializer struct {
	store  *store.Store
	logger *zap.SugaredLogger
}

func NewMaterializer(s *store.Store, logger *zap.SugaredLogger) *Materializer {
	return &Materializer{store: s, logger: logger}
}

// ReadOptions shape the result set of a query. Keep and Remove are
// mutually exclusive projections applied after the version tag is
// computed, so a projected document still carries the tag of its full
// content.
type ReadOptions struct {
	Keep       []string
	Remove     []string
	OrderBy    string
	Descending bool
}

// DocumentCursor yields the documents of a view one at a time. The set
// of root rows is fixed when the cursor opens; each document is
// materialized lazily from current data, so a cursor held across writes
// observes them.
type DocumentCursor struct {
	mat  *Materializer
	plan *views.MappingPlan
	pred *PathPredicate
	opts ReadOptions

	keys []store.Key
	pos  int

	// ordered results are materialized up front
	eager  []*Document
	sorted bool
}

// Materialize opens a cursor over every document of the view matching
// the predicate. A nil predicate matches everything.
func (m *Materializer) Materialize(plan *views.MappingPlan, pred *PathPredicate, opts ReadOptions) (*DocumentCursor, error) {
	if len(opts.Keep) > 0 && len(opts.Remove) > 0 {
		return nil, fmt.Errorf("keep and remove projections cannot be combined")
	}

	root := plan.Root()
	rows, err := m.store.Rows(root.Table.Name)
	if err != nil {
		return nil, fmt.Errorf("error reading root table for view '%s': %w", plan.ViewName, err)
	}

	cursor := &DocumentCursor{mat: m, plan: plan, pred: pred, opts: opts}
	for _, row := range rows {
		cursor.keys = append(cursor.keys, store.KeyOf(root.Table, row))
	}

	if opts.OrderBy != "" {
		if err := cursor.materializeAll(); err != nil {
			return nil, err
		}
	}

	return cursor, nil
}

// MaterializeByKey builds the single document rooted at the given
// primary key, or ErrDocumentNotFound.
func (m *Materializer) MaterializeByKey(plan *views.MappingPlan, key store.Key) (*Document, error) {
	root := plan.Root()
	row, ok := m.store.Get(root.Table.Name, key)
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return m.buildDocument(plan, row)
}

// Next returns the next matching document, or nil when the cursor is
// exhausted. Root rows deleted since the cursor opened are skipped.
func (c *DocumentCursor) Next() (*Document, error) {
	if c.sorted {
		if c.pos >= len(c.eager) {
			return nil, nil
		}
		doc := c.eager[c.pos]
		c.pos++
		return doc, nil
	}

	root := c.plan.Root()
	for c.pos < len(c.keys) {
		key := c.keys[c.pos]
		c.pos++

		row, ok := c.mat.store.Get(root.Table.Name, key)
		if !ok {
			continue
		}
		doc, err := c.mat.buildDocument(c.plan, row)
		if err != nil {
			return nil, err
		}
		if !EvaluatePredicate(c.pred, doc.Fields) {
			continue
		}
		if err := applyProjection(doc, c.opts); err != nil {
			return nil, err
		}
		return doc, nil
	}
	return nil, nil
}

// All drains the cursor.
func (c *DocumentCursor) All() ([]*Document, error) {
	var docs []*Document
	for {
		doc, err := c.Next()
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return docs, nil
		}
		docs = append(docs, doc)
	}
}

// materializeAll builds, filters and orders the whole result set; used
// when an ordering is requested.
func (c *DocumentCursor) materializeAll() error {
	root := c.plan.Root()
	for _, key := range c.keys {
		row, ok := c.mat.store.Get(root.Table.Name, key)
		if !ok {
			continue
		}
		doc, err := c.mat.buildDocument(c.plan, row)
		if err != nil {
			return err
		}
		if !EvaluatePredicate(c.pred, doc.Fields) {
			continue
		}
		c.eager = append(c.eager, doc)
	}

	sortDocuments(c.eager, c.opts.OrderBy, c.opts.Descending)
	for _, doc := range c.eager {
		if err := applyProjection(doc, c.opts); err != nil {
			return err
		}
	}
	c.sorted = true
	return nil
}

func (m *Materializer) buildDocument(plan *views.MappingPlan, row store.Row) (*Document, error) {
	fields, err := m.buildNode(plan, 0, row)
	if err != nil {
		return nil, err
	}

	tag, err := ComputeTag(plan, fields)
	if err != nil {
		return nil, err
	}

	return &Document{
		View:   plan.ViewName,
		Key:    store.KeyOf(plan.Root().Table, row),
		Fields: fields,
		Etag:   tag,
	}, nil
}

// buildNode materializes one row as a JSON object, recursing into the
// node's children. To-many children become arrays in primary key order;
// unnested children splice their fields into this object.
func (m *Materializer) buildNode(plan *views.MappingPlan, id views.NodeID, row store.Row) (map[string]interface{}, error) {
	node := plan.Node(id)

	obj := make(map[string]interface{}, len(node.Fields)+len(node.Children))
	for _, f := range node.Fields {
		obj[f.Name] = row[f.Column]
	}

	for _, childID := range node.Children {
		child := plan.Node(childID)

		if child.Card == views.Many {
			match := make(store.Row, len(child.FKColumns))
			for i, col := range child.FKColumns {
				match[col] = row[child.RefColumns[i]]
			}
			childRows, err := m.store.RowsWhere(child.Table.Name, match)
			if err != nil {
				return nil, fmt.Errorf("error reading child table '%s': %w", child.Table.Name, err)
			}

			arr := make([]interface{}, 0, len(childRows))
			for _, childRow := range childRows {
				childObj, err := m.buildNode(plan, childID, childRow)
				if err != nil {
					return nil, err
				}
				arr = append(arr, childObj)
			}
			obj[child.JSONKey] = arr
			continue
		}

		childRow, ok := m.lookupOneChild(child, row)
		if !ok {
			if child.Unnest {
				for _, f := range child.Fields {
					obj[f.Name] = nil
				}
			} else {
				obj[child.JSONKey] = nil
			}
			continue
		}

		childObj, err := m.buildNode(plan, childID, childRow)
		if err != nil {
			return nil, err
		}
		if child.Unnest {
			for k, v := range childObj {
				obj[k] = v
			}
		} else {
			obj[child.JSONKey] = childObj
		}
	}

	return obj, nil
}

// lookupOneChild follows a to-one join from the parent row. A null
// foreign key resolves to no row.
func (m *Materializer) lookupOneChild(child *views.PlanNode, parentRow store.Row) (store.Row, bool) {
	key := make(store.Key, len(child.RefColumns))
	for i, refCol := range child.RefColumns {
		v := parentRow[child.FKColumns[i]]
		if v == nil {
			return nil, false
		}
		key[refCol] = v
	}
	return m.store.Get(child.Table.Name, key)
}

func applyProjection(doc *Document, opts ReadOptions) error {
	if len(opts.Keep) > 0 {
		return keepPaths(doc.Fields, opts.Keep)
	}
	for _, path := range opts.Remove {
		// removing an absent path is a no-op
		_ = removePath(doc.Fields, path)
	}
	return nil
}
