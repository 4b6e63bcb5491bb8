package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/cohatch/internal/source"
)

// ReplaceProfiles stores t as the profile table, discarding any previous
// import. Cells keep their null/non-null distinction.
func (s *Store) ReplaceProfiles(ctx context.Context, t source.Table, from string) (ProfileImport, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ProfileImport{}, fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{"DELETE FROM profile_columns", "DELETE FROM profile_rows"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return ProfileImport{}, fmt.Errorf("clearing profiles: %w", err)
		}
	}

	for i, name := range t.Columns {
		if _, err := tx.ExecContext(ctx, "INSERT INTO profile_columns (position, name) VALUES (?, ?)", i, name); err != nil {
			return ProfileImport{}, fmt.Errorf("inserting column %q: %w", name, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO profile_rows (row_index, cells) VALUES (?, ?)")
	if err != nil {
		return ProfileImport{}, fmt.Errorf("preparing row insert: %w", err)
	}
	defer stmt.Close()

	for i := range t.Rows {
		cells := make([]*string, len(t.Columns))
		for c := range t.Columns {
			if v := t.Cell(i, c); v.Valid {
				cells[c] = &v.String
			}
		}
		b, err := json.Marshal(cells)
		if err != nil {
			return ProfileImport{}, fmt.Errorf("encoding row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, i, string(b)); err != nil {
			return ProfileImport{}, fmt.Errorf("inserting row %d: %w", i, err)
		}
	}

	imp := ProfileImport{
		ID:         uuid.NewString(),
		Source:     from,
		RowCount:   len(t.Rows),
		ImportedAt: time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO profile_imports (id, source, row_count, imported_at) VALUES (?, ?, ?, ?)",
		imp.ID, imp.Source, imp.RowCount, imp.ImportedAt.Format(timeLayout),
	); err != nil {
		return ProfileImport{}, fmt.Errorf("recording import: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ProfileImport{}, fmt.Errorf("committing import: %w", err)
	}
	return imp, nil
}

// ProfileTable returns the stored profile table in import order. It fails
// with source.ErrDataSource when nothing has been imported.
func (s *Store) ProfileTable(ctx context.Context) (source.Table, error) {
	var t source.Table

	rows, err := s.db.QueryContext(ctx, "SELECT name FROM profile_columns ORDER BY position ASC")
	if err != nil {
		return t, fmt.Errorf("%w: reading profile columns: %w", source.ErrDataSource, err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return t, fmt.Errorf("%w: %w", source.ErrDataSource, err)
		}
		t.Columns = append(t.Columns, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return t, fmt.Errorf("%w: %w", source.ErrDataSource, err)
	}
	if len(t.Columns) == 0 {
		return t, fmt.Errorf("%w: no profiles imported; run `cohatch import` first", source.ErrDataSource)
	}

	rows, err = s.db.QueryContext(ctx, "SELECT row_index, cells FROM profile_rows ORDER BY row_index ASC")
	if err != nil {
		return t, fmt.Errorf("%w: reading profile rows: %w", source.ErrDataSource, err)
	}
	defer rows.Close()

	for rows.Next() {
		var idx int
		var raw string
		if err := rows.Scan(&idx, &raw); err != nil {
			return t, fmt.Errorf("%w: %w", source.ErrDataSource, err)
		}
		var cells []*string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return t, fmt.Errorf("%w: decoding row %d: %w", source.ErrDataSource, idx, err)
		}
		row := make(source.Row, len(cells))
		for i, c := range cells {
			if c != nil {
				row[i] = sql.NullString{String: *c, Valid: true}
			}
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return t, fmt.Errorf("%w: %w", source.ErrDataSource, err)
	}
	return t, nil
}

// LastImport returns the most recent profile import.
func (s *Store) LastImport(ctx context.Context) (ProfileImport, error) {
	var imp ProfileImport
	var importedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, source, row_count, imported_at FROM profile_imports ORDER BY imported_at DESC LIMIT 1",
	).Scan(&imp.ID, &imp.Source, &imp.RowCount, &importedAt)
	if err == sql.ErrNoRows {
		return ProfileImport{}, ErrNotFound
	}
	if err != nil {
		return ProfileImport{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, importedAt)
	if err != nil {
		return ProfileImport{}, fmt.Errorf("parsing imported_at: %w", err)
	}
	imp.ImportedAt = t
	return imp, nil
}

// ProfileLoader returns a source.Loader reading the stored profile table.
func (s *Store) ProfileLoader() source.Loader {
	return profileLoader{s: s}
}

type profileLoader struct {
	s *Store
}

func (l profileLoader) Load(ctx context.Context) (source.Table, error) {
	return l.s.ProfileTable(ctx)
}
