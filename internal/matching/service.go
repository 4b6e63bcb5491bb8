// Package matching owns the profile pool lifecycle and answers match queries.
package matching

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/cohatch/internal/profile"
	"github.com/kalambet/cohatch/internal/retrieval"
	"github.com/kalambet/cohatch/internal/source"
)

// State is the pool lifecycle state.
type State int

const (
	Unloaded State = iota
	Loaded
)

func (s State) String() string {
	switch s {
	case Loaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

// Encoder turns texts into embedding vectors. *retrieval.Embedder implements it.
type Encoder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Recorder persists completed matches. Implementations return the record ID.
type Recorder interface {
	RecordMatch(ctx context.Context, query profile.Profile, topN int, matches []retrieval.Match) (string, error)
}

// PoolInfo summarises an installed pool.
type PoolInfo struct {
	Profiles int       `json:"profiles"`
	Dim      int       `json:"dim"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Result is the answer to one match query.
type Result struct {
	ID      string            `json:"id,omitempty"`
	Query   profile.Profile   `json:"query"`
	Matches []retrieval.Match `json:"matches"`
}

// Service builds pools from a source.Loader and ranks queries against them.
// Ingest and Reload are serialized; Match never waits on them once a pool
// is installed.
type Service struct {
	loader   source.Loader
	encoder  Encoder
	index    *retrieval.Index
	recorder Recorder
	logger   *slog.Logger

	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder persists every successful match through r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the service logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service. loader may be nil, in which case pools can only be
// installed through Ingest.
func New(loader source.Loader, enc Encoder, index *retrieval.Index, opts ...Option) *Service {
	s := &Service{
		loader:  loader,
		encoder: enc,
		index:   index,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State reports whether a pool is installed.
func (s *Service) State() State {
	if s.index.Loaded() {
		return Loaded
	}
	return Unloaded
}

// Pool returns the current pool, or nil while Unloaded.
func (s *Service) Pool() *retrieval.Pool {
	return s.index.Pool()
}

// Info summarises the current pool. ok is false while Unloaded.
func (s *Service) Info() (info PoolInfo, ok bool) {
	p := s.index.Pool()
	if p == nil {
		return PoolInfo{}, false
	}
	return infoOf(p), true
}

// Ingest normalizes t, embeds every profile and installs the result as the
// new pool. On failure the previous pool, if any, stays in place.
func (s *Service) Ingest(ctx context.Context, t source.Table) (PoolInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ingestLocked(ctx, t)
}

// Reload reads the configured source and replaces the pool.
func (s *Service) Reload(ctx context.Context) (PoolInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked(ctx)
}

// Match ranks q against the pool and returns the best topN profiles. While
// Unloaded every call attempts a load first and returns its error on failure.
func (s *Service) Match(ctx context.Context, q profile.Query, topN int) (Result, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return Result{}, err
	}

	qp := profile.FromQuery(q)
	vec, err := s.encoder.Embed(ctx, profile.Text(qp))
	if err != nil {
		return Result{}, fmt.Errorf("embedding query: %w", err)
	}
	matches, err := s.index.Rank(vec, topN)
	if err != nil {
		return Result{}, err
	}

	res := Result{Query: qp, Matches: matches}
	for _, m := range matches {
		s.logger.Debug("match", "name", m.Profile.Name, "score", m.Score)
	}
	if s.recorder != nil {
		id, err := s.recorder.RecordMatch(ctx, qp, topN, matches)
		if err != nil {
			s.logger.Warn("recording match failed", "error", err)
		}
		res.ID = id
	}
	return res, nil
}

func (s *Service) ensureLoaded(ctx context.Context) error {
	if s.index.Loaded() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index.Loaded() {
		return nil
	}
	_, err := s.reloadLocked(ctx)
	return err
}

func (s *Service) reloadLocked(ctx context.Context) (PoolInfo, error) {
	if s.loader == nil {
		return PoolInfo{}, fmt.Errorf("%w: no profile source configured", source.ErrDataSource)
	}
	t, err := s.loader.Load(ctx)
	if err != nil {
		s.logger.Warn("loading profiles failed", "error", err)
		return PoolInfo{}, err
	}
	return s.ingestLocked(ctx, t)
}

func (s *Service) ingestLocked(ctx context.Context, t source.Table) (PoolInfo, error) {
	start := time.Now()
	profiles := profile.Normalize(t)

	vecs, err := s.encoder.EmbedBatch(ctx, profile.Texts(profiles))
	if err != nil {
		s.logger.Warn("embedding profiles failed", "profiles", len(profiles), "error", err)
		return PoolInfo{}, err
	}
	if vecs == nil {
		vecs = [][]float32{}
	}

	pool, err := retrieval.NewPool(profiles, vecs)
	if err != nil {
		return PoolInfo{}, fmt.Errorf("%w: %w", retrieval.ErrEncoding, err)
	}
	s.index.Replace(pool)

	info := infoOf(pool)
	s.logger.Info("profile pool loaded",
		"profiles", info.Profiles,
		"dim", info.Dim,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return info, nil
}

func infoOf(p *retrieval.Pool) PoolInfo {
	return PoolInfo{Profiles: p.Len(), Dim: p.Dim, LoadedAt: p.LoadedAt}
}
