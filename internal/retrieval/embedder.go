package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/cohatch/internal/engine"
	"golang.org/x/sync/errgroup"
)

// ErrEncoding is returned when the embedding engine is unavailable or fails.
var ErrEncoding = errors.New("encoding error")

// DefaultConcurrency bounds in-flight engine requests during a batch.
const DefaultConcurrency = 4

// batchChunk is the number of texts sent per request to engines that
// implement engine.BatchEmbedder.
const batchChunk = 64

// Embedder wraps an Engine to generate text embeddings.
type Embedder struct {
	engine      engine.Engine
	model       string
	concurrency int
}

// NewEmbedder creates an Embedder using the given Engine and model name.
// A non-positive concurrency falls back to DefaultConcurrency.
func NewEmbedder(e engine.Engine, model string, concurrency int) *Embedder {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Embedder{engine: e, model: model, concurrency: concurrency}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string { return e.model }

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding text: %w", ErrEncoding, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: engine returned an empty vector", ErrEncoding)
	}
	return vec, nil
}

// EmbedBatch returns one vector per text, index aligned with texts.
// Returns nil (not error) for empty/nil input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	if be, ok := e.engine.(engine.BatchEmbedder); ok {
		for start := 0; start < len(texts); start += batchChunk {
			end := min(start+batchChunk, len(texts))
			g.Go(func() error {
				vecs, err := be.EmbedBatch(gCtx, e.model, texts[start:end])
				if err != nil {
					return fmt.Errorf("%w: embedding texts %d-%d: %w", ErrEncoding, start, end-1, err)
				}
				if len(vecs) != end-start {
					return fmt.Errorf("%w: got %d vectors for %d texts", ErrEncoding, len(vecs), end-start)
				}
				copy(results[start:end], vecs)
				return nil
			})
		}
	} else {
		for i, text := range texts {
			g.Go(func() error {
				vec, err := e.engine.Embed(gCtx, e.model, text)
				if err != nil {
					return fmt.Errorf("%w: embedding text %d: %w", ErrEncoding, i, err)
				}
				results[i] = vec
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, v := range results {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: engine returned an empty vector for text %d", ErrEncoding, i)
		}
	}
	return results, nil
}
