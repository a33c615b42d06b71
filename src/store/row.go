package store

import (
	"fmt"
	"sort"
	"strings"

	"dualdb/src/schema"
)

// Row is a tuple of column values, keyed by column name.
type Row map[string]interface{}

// Key identifies one row by its primary key column values.
type Key map[string]interface{}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// NormalizeValue coerces a raw value into the canonical Go type for the
// column: int64, float64, bool or string. Nil passes through untouched.
func NormalizeValue(col *schema.Column, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	switch col.Type {
	case schema.TypeInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n == float64(int64(n)) {
				return int64(n), nil
			}
			return nil, fmt.Errorf("value %v is not an integer", v)
		case float32:
			if float64(n) == float64(int64(n)) {
				return int64(n), nil
			}
			return nil, fmt.Errorf("value %v is not an integer", v)
		}
	case schema.TypeFloat:
		switch n := v.(type) {
		case int:
			return float64(n), nil
		case int32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case float32:
			return float64(n), nil
		case float64:
			return n, nil
		}
	case schema.TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case schema.TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	}

	return nil, fmt.Errorf("value %v (%T) does not fit column type '%s'", v, v, col.Type)
}

// NormalizeRow coerces every known column value in the row. Unknown
// columns are rejected.
func NormalizeRow(t *schema.Table, row Row) (Row, error) {
	out := make(Row, len(row))
	for name, value := range row {
		col, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("table '%s' has no column '%s'", t.Name, name)
		}
		normalized, err := NormalizeValue(col, value)
		if err != nil {
			return nil, fmt.Errorf("column '%s.%s': %w", t.Name, name, err)
		}
		out[name] = normalized
	}
	return out, nil
}

// KeyOf extracts the primary key of a row.
func KeyOf(t *schema.Table, row Row) Key {
	key := make(Key, len(t.PrimaryKey))
	for _, pk := range t.PrimaryKey {
		key[pk] = row[pk]
	}
	return key
}

// keyString builds the internal map key for a primary key value set.
func keyString(t *schema.Table, key Key) (string, error) {
	parts := make([]string, 0, len(t.PrimaryKey))
	for _, pk := range t.PrimaryKey {
		v, ok := key[pk]
		if !ok || v == nil {
			return "", fmt.Errorf("primary key column '%s.%s' has no value", t.Name, pk)
		}
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	return strings.Join(parts, "\x1f"), nil
}

// ValuesEqual compares two normalized values, treating integers and
// floats of equal magnitude as the same value.
func ValuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af == bf
	}
	return a == b
}

// CompareValues orders two normalized values. Mixed-type values fall
// back to their string forms.
func CompareValues(a, b interface{}) int {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return 0
		}
		if a == nil {
			return -1
		}
		return 1
	}

	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return strings.Compare(as, bs)
	}

	ab, aIsBool := a.(bool)
	bb, bIsBool := b.(bool)
	if aIsBool && bIsBool {
		if ab == bb {
			return 0
		}
		if !ab {
			return -1
		}
		return 1
	}

	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// sortRowsByKey orders rows by their primary key values, ascending.
func sortRowsByKey(t *schema.Table, rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, pk := range t.PrimaryKey {
			c := CompareValues(rows[i][pk], rows[j][pk])
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}
