package storage

import (
	"errors"
	"time"

	"github.com/kalambet/cohatch/internal/profile"
	"github.com/kalambet/cohatch/internal/retrieval"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// MatchRecord is one answered match query.
type MatchRecord struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Query     profile.Profile   `json:"query"`
	QueryText string            `json:"query_text"`
	TopN      int               `json:"top_n"`
	Results   []retrieval.Match `json:"results"`
}

// ProfileImport describes one `cohatch import` run.
type ProfileImport struct {
	ID         string
	Source     string
	RowCount   int
	ImportedAt time.Time
}
