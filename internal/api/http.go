package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/cohatch/internal/matching"
	"github.com/kalambet/cohatch/internal/profile"
	"github.com/kalambet/cohatch/internal/retrieval"
	"github.com/kalambet/cohatch/internal/source"
	"github.com/kalambet/cohatch/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// MaxTopN bounds the number of matches a single request may ask for.
const MaxTopN = 100

// Matcher is the matching service as seen by the transport layer.
type Matcher interface {
	Match(ctx context.Context, q profile.Query, topN int) (matching.Result, error)
	Reload(ctx context.Context) (matching.PoolInfo, error)
	State() matching.State
	Info() (matching.PoolInfo, bool)
	Pool() *retrieval.Pool
}

// History reads persisted match results.
type History interface {
	GetMatch(ctx context.Context, id string) (storage.MatchRecord, error)
	RecentMatches(ctx context.Context, limit int) ([]storage.MatchRecord, error)
}

// Deps holds dependencies for the HTTP API.
type Deps struct {
	Matcher     Matcher
	History     History // optional; history routes return 404 when nil
	DefaultTopN int
	Logger      *slog.Logger
}

// MatchRequest is a query profile plus an optional result count.
type MatchRequest struct {
	profile.Query
	TopN *int `json:"top_n,omitempty"`
}

// CofounderMatch is one entry of a match response.
type CofounderMatch struct {
	Name            string          `json:"name"`
	Bio             string          `json:"bio"`
	Skills          []profile.Skill `json:"skills"`
	Industry        string          `json:"industry"`
	Location        string          `json:"location"`
	SimilarityScore float64         `json:"similarity_score"`
}

// MatchResponse is the body returned by POST /match_cofounders/.
type MatchResponse struct {
	ID      string           `json:"id,omitempty"`
	Matches []CofounderMatch `json:"matches"`
}

// NewHandler returns the HTTP API.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.DefaultTopN <= 0 {
		deps.DefaultTopN = 3
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(deps.Logger))

	r.Get("/", handleRoot(deps))
	r.Get("/health", handleHealth)
	r.Post("/match_cofounders", handleMatch(deps))
	r.Post("/match_cofounders/", handleMatch(deps))
	r.Post("/pool/reload", handleReload(deps))
	r.Get("/debug/profiles", handleDebugProfiles(deps))
	r.Get("/matches", handleListMatches(deps))
	r.Get("/matches/{id}", handleGetMatch(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleRoot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, _ := deps.Matcher.Info()
		writeJSON(w, http.StatusOK, map[string]any{
			"api":             "Cohatch Matching API",
			"profiles_loaded": info.Profiles,
			"state":           deps.Matcher.State().String(),
		})
	}
}

func handleMatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req MatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		topN := deps.DefaultTopN
		if req.TopN != nil {
			topN = *req.TopN
		}
		if topN < 0 || topN > MaxTopN {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "top_n must be between 0 and %d", MaxTopN)
			return
		}

		res, err := deps.Matcher.Match(r.Context(), req.Query, topN)
		if err != nil {
			deps.Logger.Error("matching profiles failed", "error", err)
			writeMatchError(w, err)
			return
		}

		deps.Logger.Info("returning matches", "count", len(res.Matches), "id", res.ID)
		writeJSON(w, http.StatusOK, toResponse(res))
	}
}

func toResponse(res matching.Result) MatchResponse {
	out := MatchResponse{ID: res.ID, Matches: make([]CofounderMatch, len(res.Matches))}
	for i, m := range res.Matches {
		out.Matches[i] = CofounderMatch{
			Name:            m.Profile.Name,
			Bio:             m.Profile.Bio,
			Skills:          m.Profile.Skills,
			Industry:        m.Profile.Industry,
			Location:        m.Profile.Location,
			SimilarityScore: m.Score,
		}
	}
	return out
}

func handleReload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := deps.Matcher.Reload(r.Context())
		if err != nil {
			deps.Logger.Error("reloading pool failed", "error", err)
			writeMatchError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func handleDebugProfiles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Matcher.Pool() == nil {
			if _, err := deps.Matcher.Reload(r.Context()); err != nil {
				deps.Logger.Debug("debug profiles: pool not loaded", "error", err)
			}
		}

		sample := []profile.Profile{}
		count := 0
		if p := deps.Matcher.Pool(); p != nil {
			count = p.Len()
			sample = p.Profiles[:min(3, count)]
		}

		dir, _ := os.Getwd()
		files := []string{}
		if entries, err := os.ReadDir("."); err == nil {
			for _, e := range entries {
				files = append(files, e.Name())
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"state":              deps.Matcher.State().String(),
			"profiles_count":     count,
			"sample_profiles":    sample,
			"directory":          dir,
			"files_in_directory": files,
			"go_version":         runtime.Version(),
		})
	}
}

func handleListMatches(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.History == nil {
			httpError(w, http.StatusNotFound, "not_found", "match history is disabled")
			return
		}
		limit := parseIntParam(r, "limit", 20, 100)

		recs, err := deps.History.RecentMatches(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list matches: %v", err)
			return
		}
		if recs == nil {
			recs = []storage.MatchRecord{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func handleGetMatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.History == nil {
			httpError(w, http.StatusNotFound, "not_found", "match history is disabled")
			return
		}
		id := chi.URLParam(r, "id")

		rec, err := deps.History.GetMatch(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "match %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get match: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// writeMatchError maps core error kinds to distinct status codes and types.
func writeMatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, source.ErrDataSource):
		httpError(w, http.StatusServiceUnavailable, "data_source_error", "failed to load profiles: %v", err)
	case errors.Is(err, retrieval.ErrEncoding):
		httpError(w, http.StatusBadGateway, "encoding_error", "embedding failed: %v", err)
	case errors.Is(err, retrieval.ErrEmptyPool):
		httpError(w, http.StatusConflict, "empty_pool_error", "%v", err)
	case errors.Is(err, retrieval.ErrDimensionMismatch):
		httpError(w, http.StatusInternalServerError, "encoding_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func parseIntParam(r *http.Request, key string, def, max int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
