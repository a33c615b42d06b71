package engine

// Dotted-path utilities shared by projection, predicates and the
// transform operations. A path addresses nested objects with dots and
// array elements with a selector: `result[2]` by position, or
// `result[driverId=103]` by a key field value.

import (
	"fmt"
	"strconv"
	"strings"

	"dualdb/src/helpers"
	"dualdb/src/store"
)

type selectorKind int

const (
	selNone selectorKind = iota
	selIndex
	selMatch
)

type pathSegment struct {
	Name       string
	Selector   selectorKind
	Index      int
	MatchField string
	MatchValue interface{}
}

// parseDocPath splits a dotted path into segments, honoring bracketed
// array selectors.
func parseDocPath(path string) ([]pathSegment, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("empty path")
	}

	var segments []pathSegment
	var current strings.Builder
	depth := 0

	flush := func() error {
		raw := current.String()
		current.Reset()
		if raw == "" {
			return fmt.Errorf("empty segment in path '%s'", path)
		}
		seg, err := parseSegment(raw)
		if err != nil {
			return fmt.Errorf("path '%s': %w", path, err)
		}
		segments = append(segments, seg)
		return nil
	}

	for i := 0; i < len(path); i++ {
		ch := path[i]
		switch ch {
		case '[':
			depth++
			current.WriteByte(ch)
		case ']':
			depth--
			current.WriteByte(ch)
		case '.':
			if depth > 0 {
				current.WriteByte(ch)
				continue
			}
			if err := flush(); err != nil {
				return nil, err
			}
		default:
			current.WriteByte(ch)
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced brackets in path '%s'", path)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return segments, nil
}

func parseSegment(raw string) (pathSegment, error) {
	open := strings.IndexByte(raw, '[')
	if open == -1 {
		return pathSegment{Name: raw}, nil
	}
	if !strings.HasSuffix(raw, "]") {
		return pathSegment{}, fmt.Errorf("malformed selector in segment '%s'", raw)
	}

	seg := pathSegment{Name: raw[:open]}
	inner := raw[open+1 : len(raw)-1]

	if eq := strings.IndexByte(inner, '='); eq != -1 {
		seg.Selector = selMatch
		seg.MatchField = strings.TrimSpace(inner[:eq])
		seg.MatchValue = parseLiteral(strings.TrimSpace(inner[eq+1:]))
		return seg, nil
	}

	idx, err := strconv.Atoi(strings.TrimSpace(inner))
	if err != nil {
		return pathSegment{}, fmt.Errorf("malformed selector in segment '%s'", raw)
	}
	seg.Selector = selIndex
	seg.Index = idx
	return seg, nil
}

// parseLiteral turns a textual value into the matching Go type.
func parseLiteral(token string) interface{} {
	if strings.HasPrefix(token, "\"") || strings.HasPrefix(token, "'") {
		return helpers.StripQuotes(token)
	}
	if strings.EqualFold(token, "true") {
		return true
	}
	if strings.EqualFold(token, "false") {
		return false
	}
	if intVal, err := strconv.ParseInt(token, 10, 64); err == nil {
		return intVal
	}
	if floatVal, err := strconv.ParseFloat(token, 64); err == nil {
		return floatVal
	}
	return token
}

// lookupPath collects every value at the dotted path, flattening
// through arrays.
func lookupPath(fields map[string]interface{}, path string) []interface{} {
	segments, err := parseDocPath(path)
	if err != nil {
		return nil
	}
	return collect(fields, segments)
}

func collect(v interface{}, segments []pathSegment) []interface{} {
	if len(segments) == 0 {
		return []interface{}{v}
	}

	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}

	seg := segments[0]
	next, present := obj[seg.Name]
	if !present {
		return nil
	}

	if arr, isArr := next.([]interface{}); isArr {
		switch seg.Selector {
		case selNone:
			var out []interface{}
			for _, elem := range arr {
				out = append(out, collect(elem, segments[1:])...)
			}
			return out
		default:
			idx, err := findElement(arr, seg)
			if err != nil {
				return nil
			}
			return collect(arr[idx], segments[1:])
		}
	}

	if seg.Selector != selNone {
		return nil
	}
	return collect(next, segments[1:])
}

func findElement(arr []interface{}, seg pathSegment) (int, error) {
	switch seg.Selector {
	case selIndex:
		if seg.Index < 0 || seg.Index >= len(arr) {
			return 0, fmt.Errorf("index %d is out of bounds for array '%s'", seg.Index, seg.Name)
		}
		return seg.Index, nil
	case selMatch:
		for i, elem := range arr {
			if elemMap, ok := elem.(map[string]interface{}); ok {
				if store.ValuesEqual(normalizeLoose(elemMap[seg.MatchField]), normalizeLoose(seg.MatchValue)) {
					return i, nil
				}
			}
		}
		return 0, fmt.Errorf("no element of array '%s' matches %s=%v", seg.Name, seg.MatchField, seg.MatchValue)
	}
	return 0, fmt.Errorf("array '%s' requires a selector", seg.Name)
}

// normalizeLoose widens numeric values so JSON-decoded and stored
// values compare equal.
func normalizeLoose(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float32:
		return float64(n)
	}
	return v
}

// setPath writes a value at the path, which must resolve through
// existing objects.
func setPath(fields map[string]interface{}, path string, value interface{}) error {
	segments, err := parseDocPath(path)
	if err != nil {
		return err
	}

	parent, last, err := descend(fields, segments)
	if err != nil {
		return err
	}

	if last.Selector == selNone {
		parent[last.Name] = value
		return nil
	}

	arr, ok := parent[last.Name].([]interface{})
	if !ok {
		return fmt.Errorf("'%s' is not an array", last.Name)
	}
	idx, err := findElement(arr, last)
	if err != nil {
		return err
	}
	arr[idx] = value
	return nil
}

// removePath removes the field or array element at the path.
func removePath(fields map[string]interface{}, path string) error {
	segments, err := parseDocPath(path)
	if err != nil {
		return err
	}

	parent, last, err := descend(fields, segments)
	if err != nil {
		return err
	}

	if last.Selector == selNone {
		delete(parent, last.Name)
		return nil
	}

	arr, ok := parent[last.Name].([]interface{})
	if !ok {
		return fmt.Errorf("'%s' is not an array", last.Name)
	}
	idx, err := findElement(arr, last)
	if err != nil {
		return err
	}
	parent[last.Name] = append(arr[:idx:idx], arr[idx+1:]...)
	return nil
}

// descend walks to the object holding the final segment.
func descend(fields map[string]interface{}, segments []pathSegment) (map[string]interface{}, pathSegment, error) {
	cur := fields
	for _, seg := range segments[:len(segments)-1] {
		next, present := cur[seg.Name]
		if !present {
			return nil, pathSegment{}, fmt.Errorf("path segment '%s' does not resolve", seg.Name)
		}

		if arr, isArr := next.([]interface{}); isArr {
			idx, err := findElement(arr, seg)
			if err != nil {
				return nil, pathSegment{}, err
			}
			next = arr[idx]
		} else if seg.Selector != selNone {
			return nil, pathSegment{}, fmt.Errorf("'%s' is not an array", seg.Name)
		}

		obj, ok := next.(map[string]interface{})
		if !ok {
			return nil, pathSegment{}, fmt.Errorf("path segment '%s' does not resolve to an object", seg.Name)
		}
		cur = obj
	}
	return cur, segments[len(segments)-1], nil
}

// keepPaths prunes the object down to the listed dotted paths. Inside
// arrays the remaining path applies to every element.
func keepPaths(fields map[string]interface{}, paths []string) error {
	tree := make(map[string]interface{})
	for _, path := range paths {
		segments, err := parseDocPath(path)
		if err != nil {
			return err
		}
		node := tree
		for i, seg := range segments {
			if existing, ok := node[seg.Name].(map[string]interface{}); ok {
				node = existing
				continue
			}
			if i == len(segments)-1 {
				node[seg.Name] = true
				break
			}
			child := make(map[string]interface{})
			node[seg.Name] = child
			node = child
		}
	}
	pruneToTree(fields, tree)
	return nil
}

func pruneToTree(obj map[string]interface{}, tree map[string]interface{}) {
	for k, v := range obj {
		sub, present := tree[k]
		if !present {
			delete(obj, k)
			continue
		}
		subTree, isTree := sub.(map[string]interface{})
		if !isTree {
			continue // leaf: keep whole value
		}
		switch inner := v.(type) {
		case map[string]interface{}:
			pruneToTree(inner, subTree)
		case []interface{}:
			for _, elem := range inner {
				if elemMap, ok := elem.(map[string]interface{}); ok {
					pruneToTree(elemMap, subTree)
				}
			}
		}
	}
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = deepCopyValue(elem)
		}
		return out
	}
	return v
}
