package record

import (
	"fmt"
	"sort"
)

// Frame is a small tabular structure: named columns and rows of values in
// column order. It is the input contract of the model package.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// Shape wraps a single InternalRecord into a one-row Frame. Columns are the
// record's keys in sorted order. Shape does not check that the columns match
// anything a model expects.
func Shape(rec InternalRecord) *Frame {
	cols := make([]string, 0, len(rec))
	for name := range rec {
		cols = append(cols, name)
	}
	sort.Strings(cols)

	row := make([]any, len(cols))
	for i, name := range cols {
		row[i] = rec[name]
	}

	return &Frame{
		Columns: cols,
		Rows:    [][]any{row},
	}
}

// Len returns the number of rows
func (f *Frame) Len() int {
	return len(f.Rows)
}

// Row returns row i as a column name → value map
func (f *Frame) Row(i int) (map[string]any, error) {
	if i < 0 || i >= len(f.Rows) {
		return nil, fmt.Errorf("row %d out of range (frame has %d rows)", i, len(f.Rows))
	}
	values := f.Rows[i]
	if len(values) != len(f.Columns) {
		return nil, fmt.Errorf("row %d has %d values for %d columns", i, len(values), len(f.Columns))
	}

	row := make(map[string]any, len(f.Columns))
	for j, name := range f.Columns {
		row[name] = values[j]
	}
	return row, nil
}

// HasColumn reports whether the frame carries a column with the given name
func (f *Frame) HasColumn(name string) bool {
	for _, c := range f.Columns {
		if c == name {
			return true
		}
	}
	return false
}
