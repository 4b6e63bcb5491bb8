package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/cohatch/internal/profile"
	"github.com/kalambet/cohatch/internal/retrieval"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RecordMatch stores a completed match and returns its ID.
func (s *Store) RecordMatch(ctx context.Context, query profile.Profile, topN int, matches []retrieval.Match) (string, error) {
	rec := MatchRecord{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Query:     query,
		QueryText: profile.Text(query),
		TopN:      topN,
		Results:   matches,
	}
	if err := s.SaveMatch(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *Store) SaveMatch(ctx context.Context, rec MatchRecord) error {
	if rec.Results == nil {
		rec.Results = []retrieval.Match{}
	}
	q, err := json.Marshal(rec.Query)
	if err != nil {
		return fmt.Errorf("encoding query: %w", err)
	}
	res, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO match_history (id, created_at, query_json, query_text, top_n, results_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt.UTC().Format(timeLayout), string(q), rec.QueryText, rec.TopN, string(res),
	)
	return err
}

func (s *Store) GetMatch(ctx context.Context, id string) (MatchRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, query_json, query_text, top_n, results_json
		FROM match_history WHERE id = ?`, id)
	rec, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return MatchRecord{}, ErrNotFound
	}
	return rec, err
}

// RecentMatches returns up to limit records, newest first.
func (s *Store) RecentMatches(ctx context.Context, limit int) ([]MatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, query_json, query_text, top_n, results_json
		FROM match_history ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []MatchRecord
	for rows.Next() {
		rec, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMatch(sc scanner) (MatchRecord, error) {
	var rec MatchRecord
	var createdAt, q, res string
	if err := sc.Scan(&rec.ID, &createdAt, &q, &rec.QueryText, &rec.TopN, &res); err != nil {
		return MatchRecord{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return MatchRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	rec.CreatedAt = t
	if err := json.Unmarshal([]byte(q), &rec.Query); err != nil {
		return MatchRecord{}, fmt.Errorf("decoding query: %w", err)
	}
	if err := json.Unmarshal([]byte(res), &rec.Results); err != nil {
		return MatchRecord{}, fmt.Errorf("decoding results: %w", err)
	}
	return rec, nil
}
