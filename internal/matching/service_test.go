package matching

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kalambet/cohatch/internal/profile"
	"github.com/kalambet/cohatch/internal/retrieval"
	"github.com/kalambet/cohatch/internal/source"
)

const hashDim = 64

// hashEncoder is a deterministic bag-of-words embedding.
type hashEncoder struct {
	fail  error
	calls atomic.Int32
}

func (h *hashEncoder) Embed(_ context.Context, text string) ([]float32, error) {
	h.calls.Add(1)
	if h.fail != nil {
		return nil, h.fail
	}
	return hashVector(text), nil
}

func (h *hashEncoder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func hashVector(text string) []float32 {
	v := make([]float32, hashDim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		f := fnv.New32a()
		f.Write([]byte(tok))
		v[f.Sum32()%hashDim]++
	}
	return v
}

type stubLoader struct {
	mu    sync.Mutex
	table source.Table
	err   error
	calls int
}

func (l *stubLoader) Load(_ context.Context) (source.Table, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return source.Table{}, l.err
	}
	return l.table, nil
}

func (l *stubLoader) set(t source.Table, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.table, l.err = t, err
}

func (l *stubLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func makeTable(cols []string, rows ...[]string) source.Table {
	t := source.Table{Columns: cols}
	for _, r := range rows {
		row := make(source.Row, len(r))
		for i, c := range r {
			row[i] = sql.NullString{String: c, Valid: true}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func founders() source.Table {
	return makeTable(
		[]string{"name", "about", "sphere", "specialties", "locations"},
		[]string{"Alice", "Pastry chef running a bakery", "Food", "Baking, Pastry", "Paris"},
		[]string{"Carol", "Machine learning engineer building fraud detection for payments", "Fintech", "Python, Machine Learning", "Berlin"},
		[]string{"Bob", "Marine biologist studying coral reefs", "Science", "Diving, Research", "Sydney"},
	)
}

func newService(l source.Loader, enc Encoder, opts ...Option) *Service {
	return New(l, enc, retrieval.NewIndex(), opts...)
}

func TestMatch_EndToEnd(t *testing.T) {
	svc := newService(&stubLoader{table: founders()}, &hashEncoder{})

	q := profile.Query{
		Bio:      "Machine learning engineer building fraud detection for payments",
		Industry: "Fintech",
		Skills:   []profile.Skill{{Name: "Python"}, {Name: "Machine Learning"}},
		Location: "Berlin",
	}
	res, err := svc.Match(context.Background(), q, 1)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(res.Matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(res.Matches))
	}
	if res.Matches[0].Profile.Name != "Carol" {
		t.Errorf("top match = %q, want Carol", res.Matches[0].Profile.Name)
	}

	all, err := svc.Match(context.Background(), q, 3)
	if err != nil {
		t.Fatalf("Match(3): %v", err)
	}
	for _, m := range all.Matches[1:] {
		if m.Score >= all.Matches[0].Score {
			t.Errorf("%s scored %f, not below top score %f", m.Profile.Name, m.Score, all.Matches[0].Score)
		}
	}
}

func TestMatch_Deterministic(t *testing.T) {
	svc := newService(&stubLoader{table: founders()}, &hashEncoder{})
	q := profile.Query{Bio: "coral reef research", Skills: []profile.Skill{{Name: "Diving"}}}

	first, err := svc.Match(context.Background(), q, 3)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	second, err := svc.Match(context.Background(), q, 3)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	for i := range first.Matches {
		if first.Matches[i].Profile.Name != second.Matches[i].Profile.Name ||
			first.Matches[i].Score != second.Matches[i].Score {
			t.Errorf("match %d differs: %+v vs %+v", i, first.Matches[i], second.Matches[i])
		}
	}
}

func TestMatch_FailedLoadStaysUnloaded(t *testing.T) {
	loader := &stubLoader{err: source.ErrDataSource}
	svc := newService(loader, &hashEncoder{})

	for i := 1; i <= 3; i++ {
		_, err := svc.Match(context.Background(), profile.Query{}, 3)
		if !errors.Is(err, source.ErrDataSource) {
			t.Fatalf("call %d: err = %v, want ErrDataSource", i, err)
		}
		if svc.State() != Unloaded {
			t.Fatalf("call %d: state = %v, want unloaded", i, svc.State())
		}
		if loader.count() != i {
			t.Fatalf("call %d: loader calls = %d, want %d", i, loader.count(), i)
		}
	}

	loader.set(founders(), nil)
	if _, err := svc.Match(context.Background(), profile.Query{}, 3); err != nil {
		t.Fatalf("Match after recovery: %v", err)
	}
	if svc.State() != Loaded {
		t.Errorf("state = %v, want loaded", svc.State())
	}
}

func TestIngest_EncodingFailureStaysUnloaded(t *testing.T) {
	enc := &hashEncoder{fail: fmt.Errorf("%w: connection refused", retrieval.ErrEncoding)}
	svc := newService(nil, enc)

	_, err := svc.Ingest(context.Background(), founders())
	if !errors.Is(err, retrieval.ErrEncoding) {
		t.Fatalf("err = %v, want ErrEncoding", err)
	}
	if svc.State() != Unloaded {
		t.Errorf("state = %v, want unloaded", svc.State())
	}
}

func TestIngest_Aligned(t *testing.T) {
	svc := newService(nil, &hashEncoder{})
	info, err := svc.Ingest(context.Background(), founders())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if info.Profiles != 3 || info.Dim != hashDim {
		t.Errorf("info = %+v, want 3 profiles of dim %d", info, hashDim)
	}

	p := svc.Pool()
	if len(p.Profiles) != len(p.Embeddings) {
		t.Fatalf("%d profiles, %d embeddings", len(p.Profiles), len(p.Embeddings))
	}
	for i, pr := range p.Profiles {
		want := hashVector(profile.Text(pr))
		for j := range want {
			if p.Embeddings[i][j] != want[j] {
				t.Fatalf("embedding %d does not describe profile %q", i, pr.Name)
			}
		}
	}
}

func TestReload_FailureKeepsPool(t *testing.T) {
	loader := &stubLoader{table: founders()}
	svc := newService(loader, &hashEncoder{})
	if _, err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	before := svc.Pool()

	loader.set(source.Table{}, source.ErrDataSource)
	if _, err := svc.Reload(context.Background()); !errors.Is(err, source.ErrDataSource) {
		t.Fatalf("err = %v, want ErrDataSource", err)
	}
	if svc.Pool() != before {
		t.Error("failed reload replaced the pool")
	}
	if svc.State() != Loaded {
		t.Errorf("state = %v, want loaded", svc.State())
	}
}

func TestReload_NoLoader(t *testing.T) {
	svc := newService(nil, &hashEncoder{})
	if _, err := svc.Reload(context.Background()); !errors.Is(err, source.ErrDataSource) {
		t.Fatalf("err = %v, want ErrDataSource", err)
	}
}

func TestMatch_EmptyPool(t *testing.T) {
	loader := &stubLoader{table: makeTable([]string{"name", "about"})}
	svc := newService(loader, &hashEncoder{})

	_, err := svc.Match(context.Background(), profile.Query{Bio: "x"}, 3)
	if !errors.Is(err, retrieval.ErrEmptyPool) {
		t.Fatalf("err = %v, want ErrEmptyPool", err)
	}
	if svc.State() != Loaded {
		t.Errorf("state = %v, want loaded", svc.State())
	}
	info, ok := svc.Info()
	if !ok || info.Profiles != 0 {
		t.Errorf("Info() = %+v, %v; want 0 profiles", info, ok)
	}
}

func TestMatch_ConcurrentLazyLoad(t *testing.T) {
	loader := &stubLoader{table: founders()}
	svc := newService(loader, &hashEncoder{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Match(context.Background(), profile.Query{Bio: "bakery"}, 2); err != nil {
				t.Errorf("Match: %v", err)
			}
		}()
	}
	wg.Wait()

	if loader.count() != 1 {
		t.Errorf("loader calls = %d, want 1", loader.count())
	}
}

func TestMatch_ConcurrentWithReload(t *testing.T) {
	loader := &stubLoader{table: founders()}
	svc := newService(loader, &hashEncoder{})
	if _, err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, err := svc.Match(context.Background(), profile.Query{Bio: "payments"}, 3)
			if err != nil {
				t.Errorf("Match: %v", err)
				return
			}
			if len(res.Matches) != 3 {
				t.Errorf("got %d matches, want 3", len(res.Matches))
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := svc.Reload(context.Background()); err != nil {
				t.Errorf("Reload: %v", err)
			}
		}()
	}
	wg.Wait()
}

type memRecorder struct {
	topN    int
	matches []retrieval.Match
	err     error
}

func (r *memRecorder) RecordMatch(_ context.Context, _ profile.Profile, topN int, matches []retrieval.Match) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.topN, r.matches = topN, matches
	return "rec-1", nil
}

func TestMatch_Recorder(t *testing.T) {
	rec := &memRecorder{}
	svc := newService(&stubLoader{table: founders()}, &hashEncoder{}, WithRecorder(rec))

	res, err := svc.Match(context.Background(), profile.Query{Bio: "bakery"}, 2)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res.ID != "rec-1" {
		t.Errorf("ID = %q, want rec-1", res.ID)
	}
	if rec.topN != 2 || len(rec.matches) != 2 {
		t.Errorf("recorded topN=%d matches=%d, want 2/2", rec.topN, len(rec.matches))
	}
	if res.Query.Name != profile.DefaultQueryName {
		t.Errorf("query name = %q, want default", res.Query.Name)
	}
}

func TestMatch_RecorderFailureIgnored(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	svc := newService(&stubLoader{table: founders()}, &hashEncoder{}, WithRecorder(rec))

	res, err := svc.Match(context.Background(), profile.Query{Bio: "bakery"}, 1)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res.ID != "" || len(res.Matches) != 1 {
		t.Errorf("res = %+v, want one match without ID", res)
	}
}
