package local

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/smartetl/annotator/pkg/pipeline/table"
)

// ReadTable reads a CSV file with a header row into a Table.
func ReadTable(r io.Reader) (*table.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make([]string, len(header))
	for i, col := range header {
		cols[i] = strings.TrimSpace(col)
	}

	t := table.New(cols...)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if len(rec) < len(cols) {
			return nil, fmt.Errorf("row has %d columns, want at least %d", len(rec), len(cols))
		}
		if err := t.Append(rec[:len(cols)]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// WriteTable writes a Table as CSV with a header row.
func WriteTable(w io.Writer, t *table.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
