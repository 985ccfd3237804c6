package table

import (
	"fmt"
	"strings"
)

// Table is an ordered, in-memory tabular value: a header plus string rows.
//
// Everything crossing the pipeline boundary (CSV input, enriched output,
// query results) is a Table. Cell values are strings; typed interpretation
// is left to the storage layer.
type Table struct {
	Columns []string
	Rows    [][]string
}

// New returns an empty table with the given column header.
func New(columns ...string) *Table {
	return &Table{Columns: columns}
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of the named column, matched
// case-insensitively, or -1 if the column does not exist.
func (t *Table) ColumnIndex(name string) int {
	name = strings.TrimSpace(name)
	for i, col := range t.Columns {
		if strings.EqualFold(strings.TrimSpace(col), name) {
			return i
		}
	}
	return -1
}

// Column returns all values of the named column in row order.
func (t *Table) Column(name string) ([]string, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("missing column %q", name)
	}
	out := make([]string, 0, len(t.Rows))
	for i, row := range t.Rows {
		if idx >= len(row) {
			return nil, fmt.Errorf("row %d has %d columns, want at least %d", i, len(row), idx+1)
		}
		out = append(out, row[idx])
	}
	return out, nil
}

// Append adds one row. The row must match the header width.
func (t *Table) Append(row []string) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("row has %d columns, header has %d", len(row), len(t.Columns))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// WithColumns returns a copy of the table extended by extra columns. The
// values function is called once per row with the original row index and
// must return exactly one value per added column. Row order is preserved.
func (t *Table) WithColumns(names []string, values func(i int) []string) (*Table, error) {
	out := &Table{
		Columns: append(append([]string{}, t.Columns...), names...),
		Rows:    make([][]string, 0, len(t.Rows)),
	}
	for i, row := range t.Rows {
		extra := values(i)
		if len(extra) != len(names) {
			return nil, fmt.Errorf("row %d: got %d extra values, want %d", i, len(extra), len(names))
		}
		out.Rows = append(out.Rows, append(append([]string{}, row...), extra...))
	}
	return out, nil
}
