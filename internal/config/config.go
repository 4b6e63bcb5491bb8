package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Ollama   OllamaConfig
	Engine   EngineConfig
	Storage  StorageConfig
	Source   SourceConfig
	Matching MatchingConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
}

// EngineConfig selects the embedding backend. API keys are secrets and are
// only read from the environment or the platform secret store.
type EngineConfig struct {
	Backend       string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	GeminiBaseURL string
	GeminiAPIKey  string
}

type StorageConfig struct {
	DataDir string
}

// SourceConfig locates the profile table. An empty Path with Kind "csv"
// probes the default CSV locations on every load.
type SourceConfig struct {
	Kind string
	Path string
}

type MatchingConfig struct {
	TopN             int
	EmbedConcurrency int
	ReloadInterval   time.Duration
	EagerLoad        bool
}

type LogConfig struct {
	Level  string
	Format string
}

// Profile source kinds.
const (
	SourceCSV    = "csv"
	SourceSQLite = "sqlite"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
		},
		Engine: EngineConfig{
			Backend: "ollama",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Source: SourceConfig{
			Kind: SourceCSV,
		},
		Matching: MatchingConfig{
			TopN:             3,
			EmbedConcurrency: 4,
			EagerLoad:        true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: dev.cohatch) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a YAML file at $XDG_CONFIG_HOME/cohatch/config.yaml
// and secrets come from the environment or $XDG_DATA_HOME/cohatch/secrets.yaml.
//
// A .env file in the working directory is loaded into the environment first.
// Environment variables (COHATCH_*) override backend values on all platforms.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Engine.Backend == "openai" && cfg.Engine.OpenAIAPIKey == "" {
		if key, err := kc.Get("cohatch", "openai_api_key"); err == nil && key != "" {
			cfg.Engine.OpenAIAPIKey = key
		}
	}
	if cfg.Engine.Backend == "gemini" && cfg.Engine.GeminiAPIKey == "" {
		if key, err := kc.Get("cohatch", "gemini_api_key"); err == nil && key != "" {
			cfg.Engine.GeminiAPIKey = key
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Engine.Backend {
	case "ollama":
		if c.Ollama.BaseURL == "" {
			errs = append(errs, errors.New("ollama.base_url is required for the ollama backend"))
		}
	case "openai":
		if c.Engine.OpenAIBaseURL == "" {
			errs = append(errs, errors.New("engine.openai_base_url is required for the openai backend"))
		}
	case "gemini":
	default:
		errs = append(errs, fmt.Errorf("engine.backend %q must be ollama, openai or gemini", c.Engine.Backend))
	}
	if c.Ollama.EmbedModel == "" {
		errs = append(errs, errors.New("ollama.embed_model must not be empty"))
	}
	if c.Source.Kind != SourceCSV && c.Source.Kind != SourceSQLite {
		errs = append(errs, fmt.Errorf("source.kind %q must be %s or %s", c.Source.Kind, SourceCSV, SourceSQLite))
	}
	if c.Matching.TopN <= 0 {
		errs = append(errs, fmt.Errorf("matching.top_n must be positive, got %d", c.Matching.TopN))
	}
	if c.Matching.EmbedConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("matching.embed_concurrency must be positive, got %d", c.Matching.EmbedConcurrency))
	}
	if c.Matching.ReloadInterval < 0 {
		errs = append(errs, fmt.Errorf("matching.reload_interval must not be negative, got %s", c.Matching.ReloadInterval))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel returns the configured level, or info if it is unrecognised.
func (l LogConfig) SlogLevel() slog.Level {
	lvl, err := parseLevel(l.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level %q must be debug, info, warn or error", s)
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
