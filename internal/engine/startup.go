package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// EnsureReady checks that the Engine is reachable and the embedding model is
// available, pulling it when the backend supports that. It then embeds a probe
// string and returns the model's vector dimension. Any failure here means no
// pool can ever be built, so callers should abort startup.
func EnsureReady(ctx context.Context, e Engine, embedModel string, w io.Writer) (int, error) {
	if !e.IsRunning(ctx) {
		return 0, fmt.Errorf("embedding engine is not running; please ensure the backend is started")
	}
	if embedModel == "" {
		return 0, fmt.Errorf("no embedding model configured")
	}

	if e.HasModel(ctx, embedModel) {
		fmt.Fprintf(w, "model %s: ready\n", embedModel)
	} else {
		fmt.Fprintf(w, "model %s: pulling...\n", embedModel)
		err := e.PullModel(ctx, embedModel, func(p PullProgress) {
			if p.Total > 0 {
				pct := float64(p.Completed) / float64(p.Total) * 100
				fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, pct)
			} else {
				fmt.Fprintf(w, "  %s\n", p.Status)
			}
		})
		if errors.Is(err, ErrPullUnsupported) {
			return 0, fmt.Errorf("model %s is not served by the backend", embedModel)
		}
		if err != nil {
			return 0, fmt.Errorf("pulling model %s: %w", embedModel, err)
		}
	}

	vec, err := e.Embed(ctx, embedModel, "ping")
	if err != nil {
		return 0, fmt.Errorf("probing model %s: %w", embedModel, err)
	}
	if len(vec) == 0 {
		return 0, fmt.Errorf("model %s returned an empty embedding", embedModel)
	}
	fmt.Fprintf(w, "model %s: ready (%d dimensions)\n", embedModel, len(vec))
	return len(vec), nil
}
