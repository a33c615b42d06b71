package schema

import (
	"fmt"

	"go.uber.org/multierr"
)

// Supported column types
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeBool   = "bool"
)

type Schema struct {
	// Tables is a map of table names to Table objects.
	Tables map[string]*Table

	// Order is the declaration order of the tables.
	Order []string
}

type Table struct {
	// Name is the name of the table.
	Name string

	// Columns are the typed columns of the table, in declaration order.
	Columns []Column

	// PrimaryKey lists the column names that form the primary key.
	PrimaryKey []string

	// ForeignKeys are the declared references to other tables.
	ForeignKeys []ForeignKey

	// Uniques are the declared uniqueness constraints.
	Uniques []UniqueConstraint
}

type Column struct {
	Name     string
	Type     string // string, int, float, bool
	Required bool   // Indicates if the column can be null
	Unique   bool
}

type ForeignKey struct {
	// Name is the name of the constraint.
	Name string

	// Columns are the referencing columns on the owning table.
	Columns []string

	// RefTable is the referenced table.
	RefTable string

	// RefColumns are the referenced columns (the target's primary key).
	RefColumns []string
}

type UniqueConstraint struct {
	Name    string
	Columns []string
}

func NewSchema() *Schema {
	return &Schema{
		Tables: make(map[string]*Table),
	}
}

// AddTable registers a table with the schema
func (s *Schema) AddTable(t *Table) error {
	if _, exists := s.Tables[t.Name]; exists {
		return fmt.Errorf("table '%s' already exists in schema", t.Name)
	}
	s.Tables[t.Name] = t
	s.Order = append(s.Order, t.Name)
	return nil
}

func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.Tables[name]
	return t, ok
}

func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

func (t *Table) IsPrimaryKey(column string) bool {
	for _, pk := range t.PrimaryKey {
		if pk == column {
			return true
		}
	}
	return false
}

// ForeignKeysTo returns every foreign key on this table that references
// the given table.
func (t *Table) ForeignKeysTo(refTable string) []*ForeignKey {
	var fks []*ForeignKey
	for i := range t.ForeignKeys {
		if t.ForeignKeys[i].RefTable == refTable {
			fks = append(fks, &t.ForeignKeys[i])
		}
	}
	return fks
}

// ForeignKey returns the foreign key with the given constraint name.
func (t *Table) ForeignKey(name string) (*ForeignKey, bool) {
	for i := range t.ForeignKeys {
		if t.ForeignKeys[i].Name == name {
			return &t.ForeignKeys[i], true
		}
	}
	return nil, false
}

// Required reports whether every referencing column of the foreign key
// is declared NOT NULL on the owning table.
func (fk *ForeignKey) RequiredOn(t *Table) bool {
	for _, colName := range fk.Columns {
		col, ok := t.Column(colName)
		if !ok || !col.Required {
			return false
		}
	}
	return true
}

func validColumnType(colType string) bool {
	switch colType {
	case TypeString, TypeInt, TypeFloat, TypeBool:
		return true
	}
	return false
}

// Validate checks the schema for structural problems and returns every
// problem found, combined into one error.
func (s *Schema) Validate() error {
	var errs error

	for _, name := range s.Order {
		t := s.Tables[name]

		if len(t.Columns) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("table '%s' has no columns", t.Name))
		}
		seen := make(map[string]bool)
		for _, col := range t.Columns {
			if seen[col.Name] {
				errs = multierr.Append(errs, fmt.Errorf("table '%s' declares column '%s' more than once", t.Name, col.Name))
			}
			seen[col.Name] = true
			if !validColumnType(col.Type) {
				errs = multierr.Append(errs, fmt.Errorf("table '%s' column '%s' has unknown type '%s'", t.Name, col.Name, col.Type))
			}
		}

		if len(t.PrimaryKey) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("table '%s' has no primary key", t.Name))
		}
		for _, pk := range t.PrimaryKey {
			col, ok := t.Column(pk)
			if !ok {
				errs = multierr.Append(errs, fmt.Errorf("table '%s' primary key references unknown column '%s'", t.Name, pk))
				continue
			}
			if !col.Required {
				errs = multierr.Append(errs, fmt.Errorf("table '%s' primary key column '%s' must be required", t.Name, pk))
			}
		}

		for _, fk := range t.ForeignKeys {
			ref, ok := s.Table(fk.RefTable)
			if !ok {
				errs = multierr.Append(errs, fmt.Errorf("table '%s' foreign key '%s' references unknown table '%s'", t.Name, fk.Name, fk.RefTable))
				continue
			}
			if len(fk.Columns) != len(fk.RefColumns) {
				errs = multierr.Append(errs, fmt.Errorf("table '%s' foreign key '%s' has mismatched column counts", t.Name, fk.Name))
				continue
			}
			for _, colName := range fk.Columns {
				if _, ok := t.Column(colName); !ok {
					errs = multierr.Append(errs, fmt.Errorf("table '%s' foreign key '%s' references unknown column '%s'", t.Name, fk.Name, colName))
				}
			}
			for _, colName := range fk.RefColumns {
				if _, ok := ref.Column(colName); !ok {
					errs = multierr.Append(errs, fmt.Errorf("table '%s' foreign key '%s' references unknown column '%s' on table '%s'", t.Name, fk.Name, colName, fk.RefTable))
				}
			}
			// References resolve through the target's primary key
			if len(fk.RefColumns) == len(ref.PrimaryKey) {
				for i, colName := range fk.RefColumns {
					if ref.PrimaryKey[i] != colName {
						errs = multierr.Append(errs, fmt.Errorf("table '%s' foreign key '%s' must reference the primary key of table '%s'", t.Name, fk.Name, fk.RefTable))
						break
					}
				}
			} else {
				errs = multierr.Append(errs, fmt.Errorf("table '%s' foreign key '%s' must reference the primary key of table '%s'", t.Name, fk.Name, fk.RefTable))
			}
		}

		for _, uq := range t.Uniques {
			for _, colName := range uq.Columns {
				if _, ok := t.Column(colName); !ok {
					errs = multierr.Append(errs, fmt.Errorf("table '%s' unique constraint '%s' references unknown column '%s'", t.Name, uq.Name, colName))
				}
			}
		}
	}

	return errs
}
