package retrieval

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/kalambet/cohatch/internal/profile"
)

// Match is a pool profile with its similarity to a query.
type Match struct {
	Profile profile.Profile `json:"profile"`
	Score   float64         `json:"score"`
}

// Index holds the current Pool. Readers never block: Replace swaps the whole
// pool and in-flight Rank calls keep using the pool they started with.
type Index struct {
	pool atomic.Pointer[Pool]
}

// NewIndex returns an Index with no pool installed.
func NewIndex() *Index {
	return &Index{}
}

// Replace installs p as the current pool.
func (ix *Index) Replace(p *Pool) {
	ix.pool.Store(p)
}

// Pool returns the current pool, or nil before the first Replace.
func (ix *Index) Pool() *Pool {
	return ix.pool.Load()
}

// Loaded reports whether a pool has been installed.
func (ix *Index) Loaded() bool {
	return ix.pool.Load() != nil
}

// Rank scores every pool profile against query by cosine similarity and
// returns the topN best, highest first. Equal scores keep pool order.
// topN is clamped to [0, pool size].
func (ix *Index) Rank(query []float32, topN int) ([]Match, error) {
	p := ix.pool.Load()
	if p == nil {
		return nil, ErrNotLoaded
	}
	return p.Rank(query, topN)
}

// Rank scores query against this pool. See Index.Rank.
func (p *Pool) Rank(query []float32, topN int) ([]Match, error) {
	if p.Len() == 0 {
		return nil, ErrEmptyPool
	}
	if len(query) != p.Dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, pool has %d", ErrDimensionMismatch, len(query), p.Dim)
	}

	qNorm := norm(query)
	matches := make([]Match, p.Len())
	for i, vec := range p.Embeddings {
		matches[i] = Match{
			Profile: p.Profiles[i],
			Score:   cosine(query, vec, qNorm, p.norms[i]),
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	topN = max(0, min(topN, len(matches)))
	return matches[:topN], nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosine computes dot(a,b) / (aNorm * bNorm). A zero-norm side scores 0.
func cosine(a, b []float32, aNorm, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	s := dot / (aNorm * bNorm)
	if math.IsNaN(s) {
		return 0
	}
	return s
}

// CosineSimilarity returns the cosine similarity of two equal-length vectors.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	return cosine(a, b, norm(a), norm(b)), nil
}
