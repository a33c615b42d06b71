package store

import (
	"fmt"
	"strings"

	"dualdb/src/helpers"
	"dualdb/src/schema"
)

type opKind int

const (
	opInsert opKind = iota
	opUpdate
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opInsert:
		return "INSERT"
	case opUpdate:
		return "UPDATE"
	case opDelete:
		return "DELETE"
	}
	return "UNKNOWN"
}

type rowOp struct {
	kind   opKind
	table  string
	keyStr string
	row    Row // full row for insert/update, nil for delete
}

// Txn stages row operations against the store. Nothing is visible to
// other readers until Commit, and Commit applies every staged operation
// or none of them. Constraint checks run at commit time against the
// final state the transaction would produce.
type Txn struct {
	store   *Store
	TxnID   string
	ops     []rowOp
	overlay map[string]map[string]*Row // table -> key -> row (nil entry = deleted)
	done    bool
}

// Begin starts a new transaction.
func (s *Store) Begin() *Txn {
	return &Txn{
		store:   s,
		TxnID:   helpers.GenerateUUID(),
		overlay: make(map[string]map[string]*Row),
	}
}

func (t *Txn) tableOverlay(table string) map[string]*Row {
	o, ok := t.overlay[table]
	if !ok {
		o = make(map[string]*Row)
		t.overlay[table] = o
	}
	return o
}

// Insert stages a new row. Columns absent from the row are stored as
// null; required-column and key checks run at commit.
func (t *Txn) Insert(table string, row Row) error {
	tbl, ok := t.store.schema.Table(table)
	if !ok {
		return fmt.Errorf("table '%s' does not exist", table)
	}

	normalized, err := NormalizeRow(tbl, row)
	if err != nil {
		return &ConstraintError{Table: table, Detail: err.Error()}
	}
	// Fill absent columns with explicit nulls
	for _, col := range tbl.Columns {
		if _, present := normalized[col.Name]; !present {
			normalized[col.Name] = nil
		}
	}

	ks, err := keyString(tbl, KeyOf(tbl, normalized))
	if err != nil {
		return &ConstraintError{Table: table, Constraint: "primary key", Detail: err.Error()}
	}

	o := t.tableOverlay(table)
	if staged, exists := o[ks]; exists && staged != nil {
		return &ConstraintError{Table: table, Constraint: "primary key", Detail: fmt.Sprintf("duplicate key staged in the same transaction: %v", KeyOf(tbl, normalized))}
	}

	o[ks] = &normalized
	t.ops = append(t.ops, rowOp{kind: opInsert, table: table, keyStr: ks, row: normalized})
	return nil
}

// Update stages changes onto the row with the given primary key. The
// primary key itself is immutable.
func (t *Txn) Update(table string, key Key, changes Row) error {
	tbl, ok := t.store.schema.Table(table)
	if !ok {
		return fmt.Errorf("table '%s' does not exist", table)
	}

	current, found := t.Get(table, key)
	if !found {
		return &ConstraintError{Table: table, Detail: fmt.Sprintf("no row with key %v", key)}
	}

	normalized, err := NormalizeRow(tbl, changes)
	if err != nil {
		return &ConstraintError{Table: table, Detail: err.Error()}
	}
	for _, pk := range tbl.PrimaryKey {
		if v, present := normalized[pk]; present && !ValuesEqual(v, current[pk]) {
			return &ConstraintError{Table: table, Constraint: "primary key", Detail: fmt.Sprintf("primary key column '%s' is immutable", pk)}
		}
	}

	merged := current.Clone()
	for col, v := range normalized {
		merged[col] = v
	}

	ks, err := keyString(tbl, KeyOf(tbl, merged))
	if err != nil {
		return &ConstraintError{Table: table, Constraint: "primary key", Detail: err.Error()}
	}

	t.tableOverlay(table)[ks] = &merged
	t.ops = append(t.ops, rowOp{kind: opUpdate, table: table, keyStr: ks, row: merged})
	return nil
}

// Delete stages the removal of the row with the given primary key.
func (t *Txn) Delete(table string, key Key) error {
	tbl, ok := t.store.schema.Table(table)
	if !ok {
		return fmt.Errorf("table '%s' does not exist", table)
	}

	if _, found := t.Get(table, key); !found {
		return &ConstraintError{Table: table, Detail: fmt.Sprintf("no row with key %v", key)}
	}

	normKey := make(Key, len(key))
	for _, pk := range tbl.PrimaryKey {
		col, _ := tbl.Column(pk)
		v, err := NormalizeValue(col, key[pk])
		if err != nil {
			return &ConstraintError{Table: table, Constraint: "primary key", Detail: err.Error()}
		}
		normKey[pk] = v
	}

	ks, err := keyString(tbl, normKey)
	if err != nil {
		return &ConstraintError{Table: table, Constraint: "primary key", Detail: err.Error()}
	}

	t.tableOverlay(table)[ks] = nil
	t.ops = append(t.ops, rowOp{kind: opDelete, table: table, keyStr: ks})
	return nil
}

// Get reads a row through the transaction: staged changes shadow the
// committed state.
func (t *Txn) Get(table string, key Key) (Row, bool) {
	tbl, ok := t.store.schema.Table(table)
	if !ok {
		return nil, false
	}

	normKey := make(Key, len(key))
	for _, pk := range tbl.PrimaryKey {
		col, colOK := tbl.Column(pk)
		if !colOK {
			return nil, false
		}
		v, err := NormalizeValue(col, key[pk])
		if err != nil {
			return nil, false
		}
		normKey[pk] = v
	}

	ks, err := keyString(tbl, normKey)
	if err != nil {
		return nil, false
	}

	if o, exists := t.overlay[table]; exists {
		if staged, hit := o[ks]; hit {
			if staged == nil {
				return nil, false
			}
			return staged.Clone(), true
		}
	}
	return t.store.Get(table, key)
}

// RowsWhere reads matching rows through the transaction, ordered by
// primary key.
func (t *Txn) RowsWhere(table string, match Row) ([]Row, error) {
	tbl, ok := t.store.schema.Table(table)
	if !ok {
		return nil, fmt.Errorf("table '%s' does not exist", table)
	}

	committed, err := t.store.RowsWhere(table, match)
	if err != nil {
		return nil, err
	}

	o := t.overlay[table]
	if len(o) == 0 {
		return committed, nil
	}

	var rows []Row
	for _, row := range committed {
		ks, err := keyString(tbl, KeyOf(tbl, row))
		if err != nil {
			continue
		}
		if _, shadowed := o[ks]; shadowed {
			continue
		}
		rows = append(rows, row)
	}
	for _, staged := range o {
		if staged != nil && rowMatches(*staged, match) {
			rows = append(rows, staged.Clone())
		}
	}

	sortRowsByKey(tbl, rows)
	return rows, nil
}

// Rollback discards the transaction.
func (t *Txn) Rollback() {
	t.done = true
	t.ops = nil
	t.overlay = nil
}

// Commit validates every staged operation against the state the
// transaction would produce and applies them all at once. Any
// constraint violation rejects the whole transaction and leaves the
// store untouched.
func (t *Txn) Commit() error {
	if t.done {
		return fmt.Errorf("transaction %s is already finished", t.TxnID)
	}
	t.done = true

	if len(t.ops) == 0 {
		return nil
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy-on-write view of every table this transaction touches
	scratch := make(map[string]map[string]Row)
	for _, op := range t.ops {
		if _, copied := scratch[op.table]; !copied {
			src := s.tables[op.table].rows
			dst := make(map[string]Row, len(src))
			for k, v := range src {
				dst[k] = v
			}
			scratch[op.table] = dst
		}
	}

	deleted := make(map[string]map[string]Row)

	// Apply operations in order
	for _, op := range t.ops {
		rows := scratch[op.table]
		tbl := s.schema.Tables[op.table]
		switch op.kind {
		case opInsert:
			if _, exists := rows[op.keyStr]; exists {
				return &ConstraintError{Table: op.table, Constraint: "primary key", Detail: fmt.Sprintf("duplicate key %v", KeyOf(tbl, op.row))}
			}
			rows[op.keyStr] = op.row
			if deleted[op.table] != nil {
				delete(deleted[op.table], op.keyStr)
			}
		case opUpdate:
			if _, exists := rows[op.keyStr]; !exists {
				return &ConstraintError{Table: op.table, Detail: fmt.Sprintf("row %v vanished before commit", KeyOf(tbl, op.row))}
			}
			rows[op.keyStr] = op.row
		case opDelete:
			old, exists := rows[op.keyStr]
			if !exists {
				return &ConstraintError{Table: op.table, Detail: "row vanished before commit"}
			}
			delete(rows, op.keyStr)
			if deleted[op.table] == nil {
				deleted[op.table] = make(map[string]Row)
			}
			deleted[op.table][op.keyStr] = old
		}
	}

	finalRows := func(table string) map[string]Row {
		if rows, touched := scratch[table]; touched {
			return rows
		}
		return s.tables[table].rows
	}

	// Validate the final state of every touched table
	for table := range scratch {
		tbl := s.schema.Tables[table]

		for _, op := range t.ops {
			if op.table != table || op.kind == opDelete {
				continue
			}
			row, still := scratch[table][op.keyStr]
			if !still {
				continue
			}

			for _, col := range tbl.Columns {
				if col.Required && row[col.Name] == nil {
					return &ConstraintError{Table: table, Constraint: "not null", Detail: fmt.Sprintf("column '%s' must have a value", col.Name)}
				}
			}

			for i := range tbl.ForeignKeys {
				fk := &tbl.ForeignKeys[i]
				refKey, complete := fkTargetKey(row, fk)
				if !complete {
					continue // null reference
				}
				refTable := s.schema.Tables[fk.RefTable]
				ks, err := keyString(refTable, refKey)
				if err != nil {
					return &ConstraintError{Table: table, Constraint: fk.Name, Detail: err.Error()}
				}
				if _, exists := finalRows(fk.RefTable)[ks]; !exists {
					return &ConstraintError{Table: table, Constraint: fk.Name, Detail: fmt.Sprintf("referenced row %v does not exist in table '%s'", refKey, fk.RefTable)}
				}
			}
		}

		for _, uq := range tbl.Uniques {
			seen := make(map[string]bool)
			for _, row := range scratch[table] {
				tuple, complete := uniqueTuple(row, uq.Columns)
				if !complete {
					continue // nulls do not collide
				}
				if seen[tuple] {
					return &ConstraintError{Table: table, Constraint: uq.Name, Detail: fmt.Sprintf("duplicate value for columns %v", uq.Columns)}
				}
				seen[tuple] = true
			}
		}
	}

	// Deleted rows must not leave dangling references behind
	for table, removed := range deleted {
		tbl := s.schema.Tables[table]
		for ks, old := range removed {
			if _, reinserted := scratch[table][ks]; reinserted {
				continue
			}
			key := KeyOf(tbl, old)
			for _, name := range s.schema.Order {
				other := s.schema.Tables[name]
				for i := range other.ForeignKeys {
					fk := &other.ForeignKeys[i]
					if fk.RefTable != table {
						continue
					}
					for _, row := range finalRows(name) {
						if fkPointsAt(row, fk, tbl, key) {
							return &ConstraintError{Table: name, Constraint: fk.Name, Detail: fmt.Sprintf("row still references deleted row %v of table '%s'", key, table)}
						}
					}
				}
			}
		}
	}

	// All checks passed; make the new state visible
	for table, rows := range scratch {
		s.tables[table].rows = rows
	}

	if s.journal != nil {
		for _, op := range t.ops {
			if err := s.journal.AddEntry(op.kind.String(), op.table, fmt.Sprintf("txn=%s key=%s", t.TxnID, op.keyStr)); err != nil && s.logger != nil {
				s.logger.Warnf("Failed to journal %s on '%s': %v", op.kind, op.table, err)
			}
		}
	}

	return nil
}

// fkTargetKey builds the referenced key from a row's foreign key
// columns. Incomplete (null) references return false.
func fkTargetKey(row Row, fk *schema.ForeignKey) (Key, bool) {
	key := make(Key, len(fk.Columns))
	for i, colName := range fk.Columns {
		v := row[colName]
		if v == nil {
			return nil, false
		}
		key[fk.RefColumns[i]] = v
	}
	return key, true
}

func uniqueTuple(row Row, columns []string) (string, bool) {
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		v := row[col]
		if v == nil {
			return "", false
		}
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	return strings.Join(parts, "\x1f"), true
}
