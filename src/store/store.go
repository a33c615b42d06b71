package store

import (
	"fmt"
	"sync"

	"dualdb/src/schema"

	"go.uber.org/zap"
)

// Store holds the relational ground truth: every table's rows, guarded
// by the schema's constraints. All mutation flows through transactions
// obtained from Begin; reads see the last committed state.
type Store struct {
	mu      sync.RWMutex
	writes  sync.Mutex
	schema  *schema.Schema
	tables  map[string]*tableRows
	journal *Journal
	logger  *zap.SugaredLogger
}

type tableRows struct {
	rows map[string]Row
}

func NewStore(sch *schema.Schema, logger *zap.SugaredLogger) *Store {
	s := &Store{
		schema: sch,
		tables: make(map[string]*tableRows),
		logger: logger,
	}
	for _, name := range sch.Order {
		s.tables[name] = &tableRows{rows: make(map[string]Row)}
	}
	return s
}

// WithJournal attaches a journal; every committed transaction is logged
// to it before the commit returns.
func (s *Store) WithJournal(j *Journal) *Store {
	s.journal = j
	return s
}

func (s *Store) Schema() *schema.Schema {
	return s.schema
}

// LockWrites serializes a read-validate-commit sequence against every
// other such sequence on this store. A writer that checks state before
// committing must hold this lock across both steps, or another writer
// can commit in between. Row readers are not blocked.
func (s *Store) LockWrites() {
	s.writes.Lock()
}

// UnlockWrites releases the write sequence lock.
func (s *Store) UnlockWrites() {
	s.writes.Unlock()
}

// Get returns a copy of the row with the given primary key.
func (s *Store) Get(table string, key Key) (Row, bool) {
	t, ok := s.schema.Table(table)
	if !ok {
		return nil, false
	}
	ks, err := keyString(t, key)
	if err != nil {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.tables[table].rows[ks]
	if !ok {
		return nil, false
	}
	return row.Clone(), true
}

// Rows returns copies of every row in the table, ordered by primary key.
func (s *Store) Rows(table string) ([]Row, error) {
	t, ok := s.schema.Table(table)
	if !ok {
		return nil, fmt.Errorf("table '%s' does not exist", table)
	}

	s.mu.RLock()
	rows := make([]Row, 0, len(s.tables[table].rows))
	for _, row := range s.tables[table].rows {
		rows = append(rows, row.Clone())
	}
	s.mu.RUnlock()

	sortRowsByKey(t, rows)
	return rows, nil
}

// RowsWhere returns copies of every row whose values match all entries
// in the given column/value set, ordered by primary key.
func (s *Store) RowsWhere(table string, match Row) ([]Row, error) {
	t, ok := s.schema.Table(table)
	if !ok {
		return nil, fmt.Errorf("table '%s' does not exist", table)
	}

	s.mu.RLock()
	var rows []Row
	for _, row := range s.tables[table].rows {
		if rowMatches(row, match) {
			rows = append(rows, row.Clone())
		}
	}
	s.mu.RUnlock()

	sortRowsByKey(t, rows)
	return rows, nil
}

// Count returns the number of rows currently in the table.
func (s *Store) Count(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[table]
	if !ok {
		return 0
	}
	return len(t.rows)
}

// ReferenceCount counts the rows across all tables whose foreign keys
// point at the given row of refTable.
func (s *Store) ReferenceCount(refTable string, key Key) (int, error) {
	target, ok := s.schema.Table(refTable)
	if !ok {
		return 0, fmt.Errorf("table '%s' does not exist", refTable)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, name := range s.schema.Order {
		t := s.schema.Tables[name]
		for _, fk := range t.ForeignKeysTo(refTable) {
			for _, row := range s.tables[name].rows {
				if fkPointsAt(row, fk, target, key) {
					count++
				}
			}
		}
	}
	return count, nil
}

func rowMatches(row Row, match Row) bool {
	for col, want := range match {
		if !ValuesEqual(row[col], want) {
			return false
		}
	}
	return true
}

// fkPointsAt reports whether the row's foreign key columns reference the
// given key of the target table. Null foreign keys reference nothing.
func fkPointsAt(row Row, fk *schema.ForeignKey, target *schema.Table, key Key) bool {
	for i, colName := range fk.Columns {
		v := row[colName]
		if v == nil {
			return false
		}
		if !ValuesEqual(v, key[fk.RefColumns[i]]) {
			return false
		}
	}
	return true
}
