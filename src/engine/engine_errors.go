package engine

// Error kinds for the write and read paths. Schema compilation errors
// live in the views package, relational constraint violations in the
// store package; everything here covers document-level operations.

import (
	"errors"
	"fmt"
)

// ErrDocumentNotFound is returned when a by-key operation addresses a
// root row that does not exist.
var ErrDocumentNotFound = errors.New("document not found")

// PermissionError is returned when a write touches a path the view
// does not permit for that operation. The operation is rejected with no
// partial effect.
type PermissionError struct {
	View   string
	Path   string
	Op     string
	Detail string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("operation '%s' not permitted on '%s' of view '%s': %s", e.Op, e.Path, e.View, e.Detail)
}

// ConcurrencyError is returned when the expected version tag no longer
// matches the document. The caller must re-read and retry; nothing was
// written.
type ConcurrencyError struct {
	View     string
	Expected string
	Current  string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("stale version tag for view '%s': expected %s, current %s", e.View, e.Expected, e.Current)
}

// UnsupportedError is returned when an operation shape cannot be
// expressed, such as patching array elements through a merge patch.
type UnsupportedError struct {
	Op     string
	Detail string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported %s operation: %s", e.Op, e.Detail)
}
