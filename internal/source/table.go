package source

import (
	"context"
	"database/sql"
	"errors"
)

// ErrDataSource marks a profile table that is absent, unreadable or cannot be
// parsed at all. Individual malformed rows never produce it.
var ErrDataSource = errors.New("data source error")

// Loader yields a raw profile table. CSV files and the SQLite profiles table
// both implement it.
type Loader interface {
	Load(ctx context.Context) (Table, error)
}

// Row is one record; cells are aligned with Table.Columns.
type Row []sql.NullString

// Table is a raw tabular data source with named columns and nullable cells.
type Table struct {
	Columns []string
	Rows    []Row
}

// ColumnIndex returns the position of the named column, or -1.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Cell returns the value at (row, col). Cells beyond the end of a short row
// are reported as null.
func (t Table) Cell(row, col int) sql.NullString {
	if row < 0 || row >= len(t.Rows) || col < 0 {
		return sql.NullString{}
	}
	r := t.Rows[row]
	if col >= len(r) {
		return sql.NullString{}
	}
	return r[col]
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }
