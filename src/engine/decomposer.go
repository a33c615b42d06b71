package engine

import (
	"fmt"
	"strings"

	"dualdb/src/store"
	"dualdb/src/views"

	"go.uber.org/zap"
)

// Decomposer breaks document writes into row operations following a
// mapping plan. Every operation runs inside one store transaction, so a
// rejected write leaves no partial effect.
//
// An element of a document that carries the key of an existing row
// attaches that row instead of creating a new one; differing field
// values and a differing parent link become updates, gated by the
// node's permissions.
type Decomposer struct {
	store  *store.Store
	mat    *Materializer
	logger *zap.SugaredLogger
}

func NewDecomposer(s *store.Store, logger *zap.SugaredLogger) *Decomposer {
	return &Decomposer{
		store:  s,
		mat:    NewMaterializer(s, logger),
		logger: logger,
	}
}

// Insert decomposes a new document into row inserts and attachments of
// existing rows, commits them, and returns the materialized result.
func (d *Decomposer) Insert(plan *views.MappingPlan, doc map[string]interface{}) (*Document, error) {
	d.store.LockWrites()
	defer d.store.UnlockWrites()

	content, _ := stripMetadata(doc)

	root := plan.Root()
	if !root.Perms.Insert {
		return nil, &PermissionError{View: plan.ViewName, Path: "$", Op: "insert", Detail: "view does not permit document creation"}
	}

	rootKey, err := d.nodeKey(root, content)
	if err != nil {
		return nil, err
	}
	if _, exists := d.store.Get(root.Table.Name, rootKey); exists {
		return nil, &store.ConstraintError{Table: root.Table.Name, Constraint: "primary key", Detail: fmt.Sprintf("a document with key %v already exists", rootKey)}
	}

	txn := d.store.Begin()
	if _, err := d.writeNode(txn, plan, 0, content, nil, "$"); err != nil {
		txn.Rollback()
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}

	if d.logger != nil {
		d.logger.Infow("Inserted document", "view", plan.ViewName, "key", rootKey)
	}
	return d.mat.MaterializeByKey(plan, rootKey)
}

// Replace swaps the whole document for the submitted one. The rows are
// diffed against the desired state: changed fields become updates,
// array elements no longer present are deleted or detached, new
// elements are inserted or attached. A version tag in the submitted
// metadata is checked against the same state the commit applies over;
// an empty tag replaces unconditionally.
func (d *Decomposer) Replace(plan *views.MappingPlan, key store.Key, doc map[string]interface{}) (*Document, error) {
	d.store.LockWrites()
	defer d.store.UnlockWrites()
	return d.replace(plan, key, doc)
}

// replace carries the body of Replace. Callers hold the store's write
// lock, so no other writer can commit between the tag check and this
// transaction's commit.
func (d *Decomposer) replace(plan *views.MappingPlan, key store.Key, doc map[string]interface{}) (*Document, error) {
	content, expected := stripMetadata(doc)

	current, err := d.mat.MaterializeByKey(plan, key)
	if err != nil {
		return nil, err
	}
	if expected != "" {
		if err := CheckTag(plan.ViewName, expected, current.Etag); err != nil {
			return nil, err
		}
	}

	root := plan.Root()
	rootRow, ok := d.store.Get(root.Table.Name, key)
	if !ok {
		return nil, ErrDocumentNotFound
	}

	txn := d.store.Begin()
	if err := d.replaceNode(txn, plan, 0, rootRow, content, nil, "$"); err != nil {
		txn.Rollback()
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}

	if d.logger != nil {
		d.logger.Infow("Replaced document", "view", plan.ViewName, "key", key)
	}
	return d.mat.MaterializeByKey(plan, key)
}

// Delete removes the document rooted at the key. The removal cascades
// only through nodes that permit deletion; to-many children of
// non-deletable nodes are detached when their link is optional, and
// referenced to-one rows survive when anything else still points at
// them.
func (d *Decomposer) Delete(plan *views.MappingPlan, key store.Key, expectedTag string) error {
	d.store.LockWrites()
	defer d.store.UnlockWrites()

	current, err := d.mat.MaterializeByKey(plan, key)
	if err != nil {
		return err
	}
	if expectedTag != "" {
		if err := CheckTag(plan.ViewName, expectedTag, current.Etag); err != nil {
			return err
		}
	}

	root := plan.Root()
	if !root.Perms.Delete {
		return &PermissionError{View: plan.ViewName, Path: "$", Op: "delete", Detail: "view does not permit document deletion"}
	}

	rootRow, ok := d.store.Get(root.Table.Name, key)
	if !ok {
		return ErrDocumentNotFound
	}

	txn := d.store.Begin()
	if err := d.deleteNodeRow(txn, plan, 0, rootRow, "$"); err != nil {
		txn.Rollback()
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}

	if d.logger != nil {
		d.logger.Infow("Deleted document", "view", plan.ViewName, "key", key)
	}
	return nil
}

// writeNode upserts one document object: attach when a row with the
// object's key exists, insert otherwise. link carries the foreign key
// columns binding the row to its parent; the returned key identifies
// the written row.
func (d *Decomposer) writeNode(txn *store.Txn, plan *views.MappingPlan, id views.NodeID, obj map[string]interface{}, link store.Row, path string) (store.Key, error) {
	node := plan.Node(id)

	if err := d.checkKnownKeys(plan, id, obj, path); err != nil {
		return nil, err
	}

	key, err := d.elementKey(plan, node, obj, path)
	if err != nil {
		return nil, err
	}

	if existing, found := txn.Get(node.Table.Name, key); found {
		return key, d.attachNode(txn, plan, id, existing, obj, link, path)
	}

	if !node.Perms.Insert {
		return nil, &PermissionError{View: plan.ViewName, Path: path, Op: "insert", Detail: fmt.Sprintf("no row of table '%s' has key %v and the view does not permit creating one", node.Table.Name, key)}
	}

	row := make(store.Row, len(node.Fields)+len(link))
	for _, f := range node.Fields {
		v, present := obj[f.Name]
		if !present {
			continue
		}
		if v != nil && !f.Insertable && !f.Key {
			return nil, &PermissionError{View: plan.ViewName, Path: childPath(path, f.Name), Op: "insert", Detail: "field does not accept a value on creation"}
		}
		row[f.Column] = v
	}
	for col, v := range link {
		row[col] = v
	}

	if err := d.resolveOneChildren(txn, plan, node, obj, row, nil, path); err != nil {
		return nil, err
	}

	if err := txn.Insert(node.Table.Name, row); err != nil {
		return nil, err
	}

	return key, d.writeManyChildren(txn, plan, node, obj, row, path)
}

// attachNode binds an existing row into the document being written.
// Provided values that differ from the row, and a differing parent
// link, become updates; absent values are left untouched.
func (d *Decomposer) attachNode(txn *store.Txn, plan *views.MappingPlan, id views.NodeID, existing store.Row, obj map[string]interface{}, link store.Row, path string) error {
	node := plan.Node(id)
	changes := make(store.Row)

	for _, f := range node.Fields {
		if f.Key {
			continue
		}
		v, present := obj[f.Name]
		if !present {
			continue
		}
		norm, err := d.normalizeField(node, &f, v)
		if err != nil {
			return err
		}
		if store.ValuesEqual(existing[f.Column], norm) {
			continue
		}
		if !f.Updatable {
			return &PermissionError{View: plan.ViewName, Path: childPath(path, f.Name), Op: "update", Detail: "field is not updatable"}
		}
		changes[f.Column] = norm
	}

	for col, v := range link {
		if store.ValuesEqual(existing[col], v) {
			continue
		}
		if !node.Perms.Update {
			return &PermissionError{View: plan.ViewName, Path: path, Op: "update", Detail: fmt.Sprintf("element references row of table '%s' under a different parent and the view does not permit moving it", node.Table.Name)}
		}
		changes[col] = v
	}

	if err := d.resolveOneChildren(txn, plan, node, obj, changes, existing, path); err != nil {
		return err
	}

	if len(changes) > 0 {
		if err := txn.Update(node.Table.Name, store.KeyOf(node.Table, existing), changes); err != nil {
			return err
		}
	}

	merged := existing.Clone()
	for col, v := range changes {
		merged[col] = v
	}
	return d.writeManyChildren(txn, plan, node, obj, merged, path)
}

// resolveOneChildren handles the to-one children of an object being
// written: each provided child is upserted first so the parent's
// foreign key columns can point at it. When existing is nil the parent
// is a fresh insert and absent children leave the link null; on an
// attach, absent children leave the link alone.
func (d *Decomposer) resolveOneChildren(txn *store.Txn, plan *views.MappingPlan, node *views.PlanNode, obj map[string]interface{}, out store.Row, existing store.Row, path string) error {
	for _, childID := range node.Children {
		child := plan.Node(childID)
		if child.Card != views.One {
			continue
		}

		childObj, provided := d.oneChildValue(plan, child, obj)
		cp := oneChildPath(path, child)

		if childObj == nil {
			if !provided && existing != nil {
				continue
			}
			if existing != nil && !fkIsNull(existing, child.FKColumns) && !node.Perms.Update {
				return &PermissionError{View: plan.ViewName, Path: cp, Op: "update", Detail: "view does not permit detaching this reference"}
			}
			if existing == nil || provided {
				for _, col := range child.FKColumns {
					out[col] = nil
				}
			}
			continue
		}

		childKey, err := d.writeNode(txn, plan, childID, childObj, nil, cp)
		if err != nil {
			return err
		}

		repointed := false
		for i, col := range child.FKColumns {
			v := childKey[child.RefColumns[i]]
			if existing == nil || !store.ValuesEqual(existing[col], v) {
				out[col] = v
				repointed = repointed || existing != nil
			}
		}
		if repointed && !node.Perms.Update {
			return &PermissionError{View: plan.ViewName, Path: cp, Op: "update", Detail: "view does not permit re-pointing this reference"}
		}
	}
	return nil
}

// writeManyChildren upserts the elements of every provided child array.
// Elements absent from an array are left alone; only Replace removes
// them.
func (d *Decomposer) writeManyChildren(txn *store.Txn, plan *views.MappingPlan, node *views.PlanNode, obj map[string]interface{}, row store.Row, path string) error {
	for _, childID := range node.Children {
		child := plan.Node(childID)
		if child.Card != views.Many {
			continue
		}

		raw, present := obj[child.JSONKey]
		if !present || raw == nil {
			continue
		}
		arr, ok := raw.([]interface{})
		if !ok {
			return &UnsupportedError{Op: "insert", Detail: fmt.Sprintf("field '%s' must be an array", childPath(path, child.JSONKey))}
		}

		link := d.childLink(child, row)
		seen := make(map[string]bool)
		for i, elem := range arr {
			elemObj, ok := elem.(map[string]interface{})
			if !ok {
				return &UnsupportedError{Op: "insert", Detail: fmt.Sprintf("elements of '%s' must be objects", childPath(path, child.JSONKey))}
			}
			elemPath := fmt.Sprintf("%s[%d]", childPath(path, child.JSONKey), i)

			key, err := d.writeNode(txn, plan, childID, elemObj, link, elemPath)
			if err != nil {
				return err
			}
			if err := noteSeen(seen, child, key, elemPath); err != nil {
				return err
			}
		}
	}
	return nil
}

// replaceNode drives one object of a full replace: the row is updated
// to exactly the submitted state. Absent updatable fields become null,
// absent non-updatable fields keep their value, and child arrays are
// diffed element by element.
func (d *Decomposer) replaceNode(txn *store.Txn, plan *views.MappingPlan, id views.NodeID, existing store.Row, obj map[string]interface{}, link store.Row, path string) error {
	node := plan.Node(id)

	if err := d.checkKnownKeys(plan, id, obj, path); err != nil {
		return err
	}

	changes := make(store.Row)
	for _, f := range node.Fields {
		v, present := obj[f.Name]

		if f.Key {
			if present {
				norm, err := d.normalizeField(node, &f, v)
				if err != nil {
					return err
				}
				if !store.ValuesEqual(existing[f.Column], norm) {
					return &PermissionError{View: plan.ViewName, Path: childPath(path, f.Name), Op: "update", Detail: "key fields are immutable"}
				}
			}
			continue
		}

		if !present {
			// an updatable field missing from the submitted state is
			// cleared; a non-updatable one silently keeps its value
			if f.Updatable && existing[f.Column] != nil {
				changes[f.Column] = nil
			}
			continue
		}

		norm, err := d.normalizeField(node, &f, v)
		if err != nil {
			return err
		}
		if store.ValuesEqual(existing[f.Column], norm) {
			continue
		}
		if !f.Updatable {
			return &PermissionError{View: plan.ViewName, Path: childPath(path, f.Name), Op: "update", Detail: "field is not updatable"}
		}
		changes[f.Column] = norm
	}

	for col, v := range link {
		if store.ValuesEqual(existing[col], v) {
			continue
		}
		if !node.Perms.Update {
			return &PermissionError{View: plan.ViewName, Path: path, Op: "update", Detail: fmt.Sprintf("element references row of table '%s' under a different parent and the view does not permit moving it", node.Table.Name)}
		}
		changes[col] = v
	}

	if err := d.replaceOneChildren(txn, plan, node, existing, obj, changes, path); err != nil {
		return err
	}

	if len(changes) > 0 {
		if err := txn.Update(node.Table.Name, store.KeyOf(node.Table, existing), changes); err != nil {
			return err
		}
	}

	merged := existing.Clone()
	for col, v := range changes {
		merged[col] = v
	}
	return d.replaceManyChildren(txn, plan, node, obj, merged, path)
}

// replaceOneChildren reconciles to-one references with the submitted
// state: a null or absent child detaches, a child with a new key
// re-points, and the target row itself is replaced recursively.
func (d *Decomposer) replaceOneChildren(txn *store.Txn, plan *views.MappingPlan, node *views.PlanNode, existing store.Row, obj map[string]interface{}, changes store.Row, path string) error {
	for _, childID := range node.Children {
		child := plan.Node(childID)
		if child.Card != views.One {
			continue
		}

		childObj, _ := d.oneChildValue(plan, child, obj)
		cp := oneChildPath(path, child)

		if childObj == nil {
			if fkIsNull(existing, child.FKColumns) {
				continue
			}
			if !node.Perms.Update {
				return &PermissionError{View: plan.ViewName, Path: cp, Op: "update", Detail: "view does not permit detaching this reference"}
			}
			for _, col := range child.FKColumns {
				changes[col] = nil
			}
			continue
		}

		key, err := d.elementKey(plan, child, childObj, cp)
		if err != nil {
			return err
		}

		if target, found := txn.Get(child.Table.Name, key); found {
			if err := d.replaceNode(txn, plan, childID, target, childObj, nil, cp); err != nil {
				return err
			}
		} else {
			if _, err := d.writeNode(txn, plan, childID, childObj, nil, cp); err != nil {
				return err
			}
		}

		repointed := false
		for i, col := range child.FKColumns {
			v := key[child.RefColumns[i]]
			if !store.ValuesEqual(existing[col], v) {
				changes[col] = v
				repointed = true
			}
		}
		if repointed && !node.Perms.Update {
			return &PermissionError{View: plan.ViewName, Path: cp, Op: "update", Detail: "view does not permit re-pointing this reference"}
		}
	}
	return nil
}

// replaceManyChildren diffs each child array against the rows currently
// linked to the parent. Present elements are replaced, attached or
// inserted; rows absent from the array are deleted when the node
// permits it, detached when the link is optional, and rejected
// otherwise. An absent array means no children.
func (d *Decomposer) replaceManyChildren(txn *store.Txn, plan *views.MappingPlan, node *views.PlanNode, obj map[string]interface{}, row store.Row, path string) error {
	for _, childID := range node.Children {
		child := plan.Node(childID)
		if child.Card != views.Many {
			continue
		}

		arrPath := childPath(path, child.JSONKey)
		var arr []interface{}
		if raw, present := obj[child.JSONKey]; present && raw != nil {
			var ok bool
			arr, ok = raw.([]interface{})
			if !ok {
				return &UnsupportedError{Op: "replace", Detail: fmt.Sprintf("field '%s' must be an array", arrPath)}
			}
		}

		link := d.childLink(child, row)
		seen := make(map[string]bool)

		for i, elem := range arr {
			elemObj, ok := elem.(map[string]interface{})
			if !ok {
				return &UnsupportedError{Op: "replace", Detail: fmt.Sprintf("elements of '%s' must be objects", arrPath)}
			}
			elemPath := fmt.Sprintf("%s[%d]", arrPath, i)

			key, err := d.elementKey(plan, child, elemObj, elemPath)
			if err != nil {
				return err
			}
			if err := noteSeen(seen, child, key, elemPath); err != nil {
				return err
			}

			if target, found := txn.Get(child.Table.Name, key); found {
				if err := d.replaceNode(txn, plan, childID, target, elemObj, link, elemPath); err != nil {
					return err
				}
			} else {
				if _, err := d.writeNode(txn, plan, childID, elemObj, link, elemPath); err != nil {
					return err
				}
			}
		}

		// rows linked to the parent but missing from the array
		current, err := txn.RowsWhere(child.Table.Name, link)
		if err != nil {
			return err
		}
		for _, childRow := range current {
			key := store.KeyOf(child.Table, childRow)
			if seen[keyFingerprint(child, key)] {
				continue
			}
			if err := d.dropChildRow(txn, plan, childID, childRow, arrPath); err != nil {
				return err
			}
		}
	}
	return nil
}

// dropChildRow removes a to-many child row that fell out of its
// parent's array: delete when permitted, detach when the link is
// optional.
func (d *Decomposer) dropChildRow(txn *store.Txn, plan *views.MappingPlan, id views.NodeID, row store.Row, path string) error {
	child := plan.Node(id)

	if child.Perms.Delete {
		return d.deleteNodeRow(txn, plan, id, row, path)
	}

	if child.Perms.Update && d.fkNullable(child) {
		detach := make(store.Row, len(child.FKColumns))
		for _, col := range child.FKColumns {
			detach[col] = nil
		}
		return txn.Update(child.Table.Name, store.KeyOf(child.Table, row), detach)
	}

	return &PermissionError{View: plan.ViewName, Path: path, Op: "delete", Detail: fmt.Sprintf("row %v of table '%s' cannot be removed from the document: the view permits neither deleting nor detaching it", store.KeyOf(child.Table, row), child.Table.Name)}
}

// deleteNodeRow deletes one row and cascades into its children. To-one
// rows survive when the view cannot delete them or when anything else
// still references them.
func (d *Decomposer) deleteNodeRow(txn *store.Txn, plan *views.MappingPlan, id views.NodeID, row store.Row, path string) error {
	node := plan.Node(id)

	for _, childID := range node.Children {
		child := plan.Node(childID)
		if child.Card != views.Many {
			continue
		}

		children, err := txn.RowsWhere(child.Table.Name, d.childLink(child, row))
		if err != nil {
			return err
		}
		for _, childRow := range children {
			if err := d.dropChildRow(txn, plan, childID, childRow, oneChildPath(path, child)); err != nil {
				return err
			}
		}
	}

	if err := txn.Delete(node.Table.Name, store.KeyOf(node.Table, row)); err != nil {
		return err
	}

	for _, childID := range node.Children {
		child := plan.Node(childID)
		if child.Card != views.One || !child.Perms.Delete {
			continue
		}

		key := make(store.Key, len(child.RefColumns))
		null := false
		for i, refCol := range child.RefColumns {
			v := row[child.FKColumns[i]]
			if v == nil {
				null = true
				break
			}
			key[refCol] = v
		}
		if null {
			continue
		}

		childRow, found := txn.Get(child.Table.Name, key)
		if !found {
			continue
		}

		// a row still referenced from elsewhere survives the cascade
		refs, err := d.store.ReferenceCount(child.Table.Name, key)
		if err != nil {
			return err
		}
		if refs > 1 {
			continue
		}

		if err := d.deleteNodeRow(txn, plan, childID, childRow, oneChildPath(path, child)); err != nil {
			return err
		}
	}

	return nil
}

// elementKey resolves a document element's primary key. A non-insertable
// node cannot match any row without its key fields, so omitting them
// there is a permission problem, not a constraint problem.
func (d *Decomposer) elementKey(plan *views.MappingPlan, node *views.PlanNode, obj map[string]interface{}, path string) (store.Key, error) {
	if !node.Perms.Insert {
		for _, f := range node.KeyFields() {
			if v, present := obj[f.Name]; !present || v == nil {
				return nil, &PermissionError{View: plan.ViewName, Path: childPath(path, f.Name), Op: "insert", Detail: fmt.Sprintf("element omits key field '%s', no row of table '%s' can match, and the view does not permit creating one", f.Name, node.Table.Name)}
			}
		}
	}
	return d.nodeKey(node, obj)
}

// nodeKey extracts a node's primary key from a document object.
func (d *Decomposer) nodeKey(node *views.PlanNode, obj map[string]interface{}) (store.Key, error) {
	key := make(store.Key, len(node.Table.PrimaryKey))
	for _, f := range node.KeyFields() {
		v, present := obj[f.Name]
		if !present || v == nil {
			return nil, &store.ConstraintError{Table: node.Table.Name, Constraint: "primary key", Detail: fmt.Sprintf("document element is missing key field '%s'", f.Name)}
		}
		norm, err := d.normalizeField(node, f, v)
		if err != nil {
			return nil, err
		}
		key[f.Column] = norm
	}
	return key, nil
}

func (d *Decomposer) normalizeField(node *views.PlanNode, f *views.PlanField, v interface{}) (interface{}, error) {
	col, ok := node.Table.Column(f.Column)
	if !ok {
		return nil, fmt.Errorf("table '%s' has no column '%s'", node.Table.Name, f.Column)
	}
	norm, err := store.NormalizeValue(col, v)
	if err != nil {
		return nil, &store.ConstraintError{Table: node.Table.Name, Detail: err.Error()}
	}
	return norm, nil
}

// oneChildValue pulls the value of a to-one child out of the parent
// object: the nested object for a keyed child, or the spliced fields
// for an unnested one. The second return reports whether the document
// said anything about the child at all.
func (d *Decomposer) oneChildValue(plan *views.MappingPlan, child *views.PlanNode, obj map[string]interface{}) (map[string]interface{}, bool) {
	if !child.Unnest {
		raw, present := obj[child.JSONKey]
		if !present || raw == nil {
			return nil, present
		}
		childObj, ok := raw.(map[string]interface{})
		if !ok {
			return nil, present
		}
		return childObj, true
	}

	names := objectKeys(plan, child.ID)
	childObj := make(map[string]interface{})
	provided := false
	any := false
	for name := range names {
		v, present := obj[name]
		if !present {
			continue
		}
		provided = true
		childObj[name] = v
		if v != nil {
			any = true
		}
	}
	if !any {
		return nil, provided
	}
	return childObj, true
}

// childLink builds the foreign key columns a to-many child row must
// carry to belong to the given parent row.
func (d *Decomposer) childLink(child *views.PlanNode, parentRow store.Row) store.Row {
	link := make(store.Row, len(child.FKColumns))
	for i, col := range child.FKColumns {
		link[col] = parentRow[child.RefColumns[i]]
	}
	return link
}

// fkNullable reports whether every link column of the node may hold
// null.
func (d *Decomposer) fkNullable(node *views.PlanNode) bool {
	for _, colName := range node.FKColumns {
		col, ok := node.Table.Column(colName)
		if !ok || col.Required {
			return false
		}
	}
	return true
}

// checkKnownKeys rejects fields the view does not map at this object
// level.
func (d *Decomposer) checkKnownKeys(plan *views.MappingPlan, id views.NodeID, obj map[string]interface{}, path string) error {
	names := objectKeys(plan, id)
	for k := range obj {
		if !names[k] {
			return &UnsupportedError{Op: "write", Detail: fmt.Sprintf("view '%s' maps no field '%s' at '%s'", plan.ViewName, k, path)}
		}
	}
	return nil
}

// objectKeys collects the JSON names belonging to a node's object
// level: its fields, its nested child keys, and the spliced names of
// unnested children.
func objectKeys(plan *views.MappingPlan, id views.NodeID) map[string]bool {
	node := plan.Node(id)
	names := make(map[string]bool, len(node.Fields)+len(node.Children))
	for _, f := range node.Fields {
		names[f.Name] = true
	}
	for _, childID := range node.Children {
		child := plan.Node(childID)
		if child.Unnest {
			for name := range objectKeys(plan, childID) {
				names[name] = true
			}
		} else {
			names[child.JSONKey] = true
		}
	}
	return names
}

func fkIsNull(row store.Row, columns []string) bool {
	for _, col := range columns {
		if row[col] != nil {
			return false
		}
	}
	return true
}

func noteSeen(seen map[string]bool, child *views.PlanNode, key store.Key, path string) error {
	fp := keyFingerprint(child, key)
	if seen[fp] {
		return &store.ConstraintError{Table: child.Table.Name, Constraint: "primary key", Detail: fmt.Sprintf("array element '%s' repeats key %v", path, key)}
	}
	seen[fp] = true
	return nil
}

func keyFingerprint(node *views.PlanNode, key store.Key) string {
	parts := make([]string, 0, len(node.Table.PrimaryKey))
	for _, pk := range node.Table.PrimaryKey {
		parts = append(parts, fmt.Sprintf("%v", key[pk]))
	}
	return strings.Join(parts, "\x1f")
}

func childPath(path, name string) string {
	return path + "." + name
}

// oneChildPath names a child node for error reporting; unnested
// children share their parent's path.
func oneChildPath(path string, child *views.PlanNode) string {
	if child.Unnest || child.JSONKey == "" {
		return path
	}
	return childPath(path, child.JSONKey)
}
