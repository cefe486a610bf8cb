package sequence

import (
	"fmt"
	"sort"
)

// Table maps keys to counts or probabilities. Lookups of unseen keys fall
// back to the value stored under the unknown token.
type Table struct {
	values map[string]float64
	unk    string
}

// NewTable builds a Table from m. The map is copied. It fails if m is empty
// or does not contain unk.
func NewTable(m map[string]float64, unk string) (Table, error) {
	if len(m) == 0 {
		return Table{}, ErrEmptyTable
	}
	if _, ok := m[unk]; !ok {
		return Table{}, ErrMissingUnknown
	}
	values := make(map[string]float64, len(m))
	for k, v := range m {
		values[k] = v
	}
	return Table{values: values, unk: unk}, nil
}

// Get returns the value for k, or the unknown token's value if k is unseen.
func (t Table) Get(k string) float64 {
	if v, ok := t.values[k]; ok {
		return v
	}
	return t.values[t.unk]
}

// Has reports whether k was present at construction.
func (t Table) Has(k string) bool {
	_, ok := t.values[k]
	return ok
}

// Len returns the number of keys.
func (t Table) Len() int {
	return len(t.values)
}

// Keys returns the keys in sorted order.
func (t Table) Keys() []string {
	keys := make([]string, 0, len(t.values))
	for k := range t.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sum returns the total of all values.
func (t Table) Sum() float64 {
	var s float64
	for _, k := range t.Keys() {
		s += t.values[k]
	}
	return s
}

// Unknown returns the unknown token of the table.
func (t Table) Unknown() string {
	return t.unk
}

// IsZero reports whether the table was never constructed.
func (t Table) IsZero() bool {
	return t.values == nil
}

// Map returns a copy of the underlying values.
func (t Table) Map() map[string]float64 {
	m := make(map[string]float64, len(t.values))
	for k, v := range t.values {
		m[k] = v
	}
	return m
}

// Matrix maps a first-level key to a row Table. Each level falls back to the
// unknown token independently.
type Matrix struct {
	rows map[string]Table
	unk  string
}

// NewMatrix builds a Matrix from a nested map. It fails if m is empty, if
// unk is not a row, or if any row does not contain unk.
func NewMatrix(m map[string]map[string]float64, unk string) (Matrix, error) {
	if len(m) == 0 {
		return Matrix{}, ErrEmptyTable
	}
	if _, ok := m[unk]; !ok {
		return Matrix{}, ErrMissingUnknown
	}
	rows := make(map[string]Table, len(m))
	for k, row := range m {
		t, err := NewTable(row, unk)
		if err != nil {
			return Matrix{}, fmt.Errorf("row %q: %w", k, err)
		}
		rows[k] = t
	}
	return Matrix{rows: rows, unk: unk}, nil
}

// Row returns the row for k, or the unknown token's row if k is unseen.
func (m Matrix) Row(k string) Table {
	if r, ok := m.rows[k]; ok {
		return r
	}
	return m.rows[m.unk]
}

// Get returns the value at (k1, k2) with fallback at both levels.
func (m Matrix) Get(k1, k2 string) float64 {
	return m.Row(k1).Get(k2)
}

// Has reports whether k was a row at construction.
func (m Matrix) Has(k string) bool {
	_, ok := m.rows[k]
	return ok
}

// Len returns the number of rows.
func (m Matrix) Len() int {
	return len(m.rows)
}

// Keys returns the row keys in sorted order.
func (m Matrix) Keys() []string {
	keys := make([]string, 0, len(m.rows))
	for k := range m.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Unknown returns the unknown token of the matrix.
func (m Matrix) Unknown() string {
	return m.unk
}

// IsZero reports whether the matrix was never constructed.
func (m Matrix) IsZero() bool {
	return m.rows == nil
}
