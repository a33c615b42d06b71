package views

import "fmt"

// SchemaError is returned when a view definition cannot be compiled:
// unknown tables or columns, cyclic containment, conflicting
// annotations, or an unresolvable join. The view is rejected outright.
type SchemaError struct {
	View   string
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid view definition '%s': %s", e.View, e.Detail)
}
