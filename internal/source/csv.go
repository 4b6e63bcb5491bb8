package source

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// nullTokens are cell values read as missing in exported profile dumps. The
// match is exact: whitespace-only or padded cells are values.
var nullTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"n/a":  true,
	"NaN":  true,
	"nan":  true,
	"-NaN": true,
	"-nan": true,
	"NULL": true,
	"null": true,
	"None": true,
	"#N/A": true,
	"#NA":  true,
	"<NA>": true,
}

// CSVFile loads a profile table from a CSV file with a header row.
type CSVFile struct {
	Path string
}

// Load reads and parses the file.
func (f CSVFile) Load(ctx context.Context) (Table, error) {
	if err := ctx.Err(); err != nil {
		return Table{}, err
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return Table{}, fmt.Errorf("%w: opening %s: %w", ErrDataSource, f.Path, err)
	}
	defer file.Close()

	t, err := ReadCSV(file)
	if err != nil {
		return Table{}, fmt.Errorf("%s: %w", f.Path, err)
	}
	return t, nil
}

// ReadCSV parses CSV data with a header row into a Table. Rows with fewer or
// more fields than the header are kept; missing cells read as null and extra
// cells are dropped. Only an unreadable stream or a missing header fails.
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, fmt.Errorf("%w: missing header row", ErrDataSource)
	}
	if err != nil {
		return Table{}, fmt.Errorf("%w: reading header: %w", ErrDataSource, err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	t := Table{Columns: columns}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("%w: reading row %d: %w", ErrDataSource, len(t.Rows), err)
		}
		row := make(Row, len(columns))
		for i := range columns {
			if i >= len(record) {
				break
			}
			row[i] = nullable(record[i])
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func nullable(v string) sql.NullString {
	if nullTokens[v] {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
