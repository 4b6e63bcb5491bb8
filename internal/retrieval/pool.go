package retrieval

import (
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/cohatch/internal/profile"
)

var (
	// ErrEmptyPool is returned when ranking against a loaded pool with no profiles.
	ErrEmptyPool = errors.New("profile pool is empty")

	// ErrNotLoaded is returned when no pool has been installed yet.
	ErrNotLoaded = errors.New("profile pool not loaded")

	// ErrDimensionMismatch is returned when vectors of different lengths are compared.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Pool is an immutable set of profiles and their embeddings. Profiles[i] is
// described by Embeddings[i].
type Pool struct {
	Profiles   []profile.Profile
	Embeddings [][]float32
	Dim        int
	LoadedAt   time.Time

	norms []float64
}

// NewPool builds a Pool, rejecting misaligned input or vectors of differing
// dimension. An empty pool is valid and has Dim 0.
func NewPool(profiles []profile.Profile, embeddings [][]float32) (*Pool, error) {
	if len(profiles) != len(embeddings) {
		return nil, fmt.Errorf("pool: %d profiles but %d embeddings", len(profiles), len(embeddings))
	}
	dim := 0
	if len(embeddings) > 0 {
		dim = len(embeddings[0])
		if dim == 0 {
			return nil, fmt.Errorf("%w: embedding 0 is empty", ErrDimensionMismatch)
		}
	}
	norms := make([]float64, len(embeddings))
	for i, v := range embeddings {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: embedding %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		norms[i] = norm(v)
	}
	return &Pool{
		Profiles:   profiles,
		Embeddings: embeddings,
		Dim:        dim,
		LoadedAt:   time.Now().UTC(),
		norms:      norms,
	}, nil
}

// Len returns the number of profiles in the pool.
func (p *Pool) Len() int { return len(p.Profiles) }
