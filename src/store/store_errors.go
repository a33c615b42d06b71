package store

import "fmt"

// ConstraintError is returned when a write would violate a relational
// constraint: a duplicate primary key, a broken unique constraint, a
// missing required value, or a dangling foreign key reference. The
// transaction that produced it is rolled back in full.
type ConstraintError struct {
	Table      string
	Constraint string
	Detail     string
}

func (e *ConstraintError) Error() string {
	if e.Constraint == "" {
		return fmt.Sprintf("constraint violation on table '%s': %s", e.Table, e.Detail)
	}
	return fmt.Sprintf("constraint violation on table '%s' (%s): %s", e.Table, e.Constraint, e.Detail)
}
