package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/cohatch/internal/api"
	"github.com/kalambet/cohatch/internal/config"
	"github.com/kalambet/cohatch/internal/engine"
	"github.com/kalambet/cohatch/internal/ingest"
	"github.com/kalambet/cohatch/internal/matching"
	"github.com/kalambet/cohatch/internal/retrieval"
	"github.com/kalambet/cohatch/internal/source"
	"github.com/kalambet/cohatch/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the matching HTTP server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the matching tools over MCP (stdio transport)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cohatch system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

// newLogger builds the process logger. Logs always go to stderr so the MCP
// stdio transport keeps stdout for protocol messages.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// app is the wired matching stack shared by serve and mcp.
type app struct {
	cfg     config.Config
	store   *storage.Store
	service *matching.Service
	logger  *slog.Logger
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing storage", "error", err)
	}
}

func detectConfig(cfg config.Config) engine.DetectConfig {
	return engine.DetectConfig{
		Backend:       cfg.Engine.Backend,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		OpenAIBaseURL: cfg.Engine.OpenAIBaseURL,
		OpenAIAPIKey:  cfg.Engine.OpenAIAPIKey,
		GeminiBaseURL: cfg.Engine.GeminiBaseURL,
		GeminiAPIKey:  cfg.Engine.GeminiAPIKey,
	}
}

// prepareEngine selects the embedding backend and waits until it can embed.
// Readiness failures are reported as retrieval.ErrEncoding.
func prepareEngine(ctx context.Context, cfg config.Config, w io.Writer) (engine.Engine, int, error) {
	eng, err := engine.Detect(ctx, detectConfig(cfg))
	if err != nil {
		return nil, 0, fmt.Errorf("detecting embedding engine: %w", err)
	}
	dim, err := engine.EnsureReady(ctx, eng, cfg.Ollama.EmbedModel, w)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", retrieval.ErrEncoding, err)
	}
	return eng, dim, nil
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	eng, dim, err := prepareEngine(ctx, cfg, os.Stderr)
	if err != nil {
		return nil, err
	}
	logger.Info("embedding engine ready", "backend", cfg.Engine.Backend, "model", cfg.Ollama.EmbedModel, "dim", dim)

	store, err := storage.Open(ctx, cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	var loader source.Loader
	switch cfg.Source.Kind {
	case config.SourceSQLite:
		loader = store.ProfileLoader()
	default:
		loader = source.NewCSVLoader(cfg.Source.Path, source.DefaultCSVPaths)
	}

	embedder := retrieval.NewEmbedder(eng, cfg.Ollama.EmbedModel, cfg.Matching.EmbedConcurrency)
	svc := matching.New(loader, embedder, retrieval.NewIndex(),
		matching.WithRecorder(store),
		matching.WithLogger(logger),
	)

	if cfg.Matching.EagerLoad {
		start := time.Now()
		if info, err := svc.Reload(ctx); err != nil {
			logger.Warn("initial profile load failed, will retry on first match", "error", err)
		} else {
			logger.Info("profile pool loaded", "profiles", info.Profiles, "dim", info.Dim, "duration", time.Since(start))
		}
	}

	return &app{cfg: cfg, store: store, service: svc, logger: logger}, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "cohatch version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := api.NewHandler(api.Deps{
		Matcher:     a.service,
		History:     a.store,
		DefaultTopN: cfg.Matching.TopN,
		Logger:      logger,
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Matching.ReloadInterval > 0 {
		worker := ingest.NewWorker(a.service, cfg.Matching.ReloadInterval)
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})
		logger.Info("periodic pool reload enabled", "interval", cfg.Matching.ReloadInterval)
	}

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "cohatch listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown with timeout once a signal arrives or the listener fails.
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Matcher:     a.service,
		History:     a.store,
		DefaultTopN: cfg.Matching.TopN,
		Version:     version,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	logger.Info("MCP server started (stdio transport)")
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Check server health and pool state.
	client := &apiClient{baseURL: serverURL(cfg.Server), httpClient: &http.Client{Timeout: 2 * time.Second}}
	resp, err := client.get(ctx, "/")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		var root struct {
			ProfilesLoaded int    `json:"profiles_loaded"`
			State          string `json:"state"`
		}
		if err := decodeJSON(resp, &root); err != nil {
			printStatus("Server", "error (%v)", err)
		} else {
			printStatus("Server", "running on %s", client.baseURL)
			printStatus("Pool", "%s (%d profiles)", root.State, root.ProfilesLoaded)
		}
	}

	// Check the embedding backend.
	eng, err := engine.Detect(ctx, detectConfig(cfg))
	switch {
	case err != nil:
		printStatus("Engine", "misconfigured (%v)", err)
	case eng.IsRunning(ctx):
		printStatus("Engine", "%s running", cfg.Engine.Backend)
		if eng.HasModel(ctx, cfg.Ollama.EmbedModel) {
			printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
		} else {
			printStatus("Embed model", "%s (missing)", cfg.Ollama.EmbedModel)
		}
	default:
		printStatus("Engine", "%s not running", cfg.Engine.Backend)
	}

	printStatus("Source", "%s", sourceLabel(cfg.Source))

	if store, err := storage.Open(ctx, cfg.Storage.DataDir); err == nil {
		if v, err := store.SchemaVersion(ctx); err == nil {
			printStatus("Storage", "schema v%d", v)
		}
		if imp, err := store.LastImport(ctx); err == nil {
			printStatus("Last import", "%d profiles from %s at %s", imp.RowCount, imp.Source, imp.ImportedAt.Format(time.RFC3339))
		}
		store.Close()
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func sourceLabel(s config.SourceConfig) string {
	switch {
	case s.Kind == config.SourceSQLite:
		return "imported profiles (sqlite)"
	case s.Path != "":
		return "csv " + s.Path
	default:
		return "csv (discover linkedin_profiles.csv)"
	}
}
