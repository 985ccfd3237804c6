// Package store is the relational storage backend for enriched tables,
// backed by SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smartetl/annotator/pkg/pipeline/schema"
	"github.com/smartetl/annotator/pkg/pipeline/table"
)

// StorageError reports a backend failure: unavailable database, malformed
// table, failed statement. It is surfaced to the caller and not retried
// by this layer.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e == nil {
		return "storage error"
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DB wraps a SQLite database file.
type DB struct {
	db *sql.DB
}

func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	if err := db.Ping(); err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Handle exposes the underlying connection for collaborators that keep
// their own tables in the same file (the durable enrichment cache).
func (d *DB) Handle() *sql.DB {
	return d.db
}

// Write replaces the named table wholesale with the given rows. All
// columns are stored as TEXT; typed reads are the query layer's concern.
func (d *DB) Write(ctx context.Context, name string, tbl *table.Table) error {
	if err := validIdent(name); err != nil {
		return &StorageError{Op: "write", Err: err}
	}
	if len(tbl.Columns) == 0 {
		return &StorageError{Op: "write", Err: fmt.Errorf("table %q has no columns", name)}
	}
	cols := make([]string, len(tbl.Columns))
	marks := make([]string, len(tbl.Columns))
	for i, c := range tbl.Columns {
		if err := validIdent(c); err != nil {
			return &StorageError{Op: "write", Err: err}
		}
		cols[i] = quoteIdent(c) + " TEXT"
		marks[i] = "?"
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "write", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+quoteIdent(name)); err != nil {
		return &StorageError{Op: "write", Err: err}
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(cols, ", "))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return &StorageError{Op: "write", Err: err}
	}

	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(name), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return &StorageError{Op: "write", Err: err}
	}
	defer func() {
		_ = stmt.Close()
	}()
	for i, row := range tbl.Rows {
		args := make([]any, len(row))
		for j, v := range row {
			args[j] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return &StorageError{Op: "write", Err: fmt.Errorf("row %d: %w", i, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "write", Err: err}
	}
	return nil
}

// Read returns the full contents of the named table.
func (d *DB) Read(ctx context.Context, name string) (*table.Table, error) {
	if err := validIdent(name); err != nil {
		return nil, &StorageError{Op: "read", Err: err}
	}
	return d.Query(ctx, `SELECT * FROM `+quoteIdent(name))
}

// Query executes an already-validated SQL statement and returns the rows.
// Validation is QueryGuard's job; nothing here inspects the statement.
func (d *DB) Query(ctx context.Context, sqlText string) (*table.Table, error) {
	rows, err := d.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	defer func() {
		_ = rows.Close()
	}()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	out := table.New(cols...)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &StorageError{Op: "query", Err: err}
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			row[i] = formatValue(v)
		}
		if err := out.Append(row); err != nil {
			return nil, &StorageError{Op: "query", Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	return out, nil
}

// Tables lists the user tables in the database.
func (d *DB) Tables(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, &StorageError{Op: "tables", Err: err}
	}
	defer func() {
		_ = rows.Close()
	}()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &StorageError{Op: "tables", Err: err}
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Schema introspects the named table into a logical contract.
func (d *DB) Schema(ctx context.Context, name string) (schema.TableContract, error) {
	if err := validIdent(name); err != nil {
		return schema.TableContract{}, &StorageError{Op: "schema", Err: err}
	}
	rows, err := d.db.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?)`, name)
	if err != nil {
		return schema.TableContract{}, &StorageError{Op: "schema", Err: err}
	}
	defer func() {
		_ = rows.Close()
	}()

	contract := schema.TableContract{Table: name}
	for rows.Next() {
		var colName, colType string
		if err := rows.Scan(&colName, &colType); err != nil {
			return schema.TableContract{}, &StorageError{Op: "schema", Err: err}
		}
		contract.Fields = append(contract.Fields, schema.Field{
			Name: colName,
			Type: schema.NormalizeType(colType),
		})
	}
	if err := rows.Err(); err != nil {
		return schema.TableContract{}, &StorageError{Op: "schema", Err: err}
	}
	if len(contract.Fields) == 0 {
		return schema.TableContract{}, &StorageError{Op: "schema", Err: fmt.Errorf("table %q does not exist", name)}
	}
	return contract, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

func validIdent(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("empty identifier")
	}
	if strings.ContainsAny(name, "\"`;") {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.TrimSpace(name) + `"`
}
