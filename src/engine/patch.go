package engine

import (
	"fmt"

	"dualdb/src/store"
	"dualdb/src/views"
)

// MergePatch applies a shallow merge patch to the document: object
// members are merged recursively, scalars overwrite, and an explicit
// null clears the field or detaches the reference. Arrays cannot be
// patched this way and are rejected; use Replace or Transform for
// element changes.
func (d *Decomposer) MergePatch(plan *views.MappingPlan, key store.Key, patch map[string]interface{}) (*Document, error) {
	d.store.LockWrites()
	defer d.store.UnlockWrites()

	content, expected := stripMetadata(patch)

	current, err := d.mat.MaterializeByKey(plan, key)
	if err != nil {
		return nil, err
	}
	if expected != "" {
		if err := CheckTag(plan.ViewName, expected, current.Etag); err != nil {
			return nil, err
		}
	}

	merged := deepCopyMap(current.Fields)
	if err := applyMerge(merged, content, "$"); err != nil {
		return nil, err
	}

	// the tag was checked above; pin the rewrite to the state just read
	merged[MetadataField] = map[string]interface{}{"etag": current.Etag}
	return d.replace(plan, key, merged)
}

func applyMerge(target, patch map[string]interface{}, path string) error {
	for k, v := range patch {
		p := childPath(path, k)
		switch pv := v.(type) {
		case []interface{}:
			return &UnsupportedError{Op: "merge-patch", Detail: fmt.Sprintf("'%s' is an array; arrays cannot be merge-patched", p)}
		case map[string]interface{}:
			inner, ok := target[k].(map[string]interface{})
			if !ok {
				inner = make(map[string]interface{})
				target[k] = inner
			}
			if err := applyMerge(inner, pv, p); err != nil {
				return err
			}
		default:
			target[k] = v
		}
	}
	return nil
}

// Transform ops. Set writes a value at a path, Remove drops the field
// or array element at a path, Keep prunes the document down to the
// listed paths. Paths address array elements by position (`result[0]`)
// or by a field value (`result[driverId=103]`).
const (
	TransformSet    = "set"
	TransformRemove = "remove"
	TransformKeep   = "keep"
)

type TransformOp struct {
	Op    string
	Path  string
	Value interface{}
	Paths []string
}

// Transform edits the document in place through a sequence of path
// operations and writes the result back as a full replace under the
// version tag read at the start.
func (d *Decomposer) Transform(plan *views.MappingPlan, key store.Key, ops []TransformOp, expectedTag string) (*Document, error) {
	d.store.LockWrites()
	defer d.store.UnlockWrites()

	current, err := d.mat.MaterializeByKey(plan, key)
	if err != nil {
		return nil, err
	}
	if expectedTag != "" {
		if err := CheckTag(plan.ViewName, expectedTag, current.Etag); err != nil {
			return nil, err
		}
	}

	fields := deepCopyMap(current.Fields)
	for _, op := range ops {
		switch op.Op {
		case TransformSet:
			if err := setPath(fields, op.Path, op.Value); err != nil {
				return nil, &UnsupportedError{Op: "transform", Detail: err.Error()}
			}
		case TransformRemove:
			if err := removePath(fields, op.Path); err != nil {
				return nil, &UnsupportedError{Op: "transform", Detail: err.Error()}
			}
		case TransformKeep:
			paths := op.Paths
			if len(paths) == 0 && op.Path != "" {
				paths = []string{op.Path}
			}
			if err := keepPaths(fields, paths); err != nil {
				return nil, &UnsupportedError{Op: "transform", Detail: err.Error()}
			}
		default:
			return nil, &UnsupportedError{Op: "transform", Detail: fmt.Sprintf("unknown operation '%s'", op.Op)}
		}
	}

	fields[MetadataField] = map[string]interface{}{"etag": current.Etag}
	return d.replace(plan, key, fields)
}
