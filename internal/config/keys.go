package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "COHATCH_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "COHATCH_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "ollama.base_url", typ: kString, env: "COHATCH_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "COHATCH_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "engine.backend", typ: kString, env: "COHATCH_ENGINE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Engine.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Backend },
	},
	{
		key: "engine.openai_base_url", typ: kString, env: "COHATCH_ENGINE_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Engine.OpenAIBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.OpenAIBaseURL },
	},
	{
		key: "engine.openai_api_key", typ: kString, env: "COHATCH_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Engine.OpenAIAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.OpenAIAPIKey },
	},
	{
		key: "engine.gemini_base_url", typ: kString, env: "COHATCH_ENGINE_GEMINI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Engine.GeminiBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.GeminiBaseURL },
	},
	{
		key: "engine.gemini_api_key", typ: kString, env: "COHATCH_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Engine.GeminiAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.GeminiAPIKey },
	},
	{
		key: "storage.data_dir", typ: kString, env: "COHATCH_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "source.kind", typ: kString, env: "COHATCH_SOURCE_KIND",
		apply:   func(cfg *Config, v any) { cfg.Source.Kind = v.(string) },
		extract: func(cfg Config) any { return cfg.Source.Kind },
	},
	{
		key: "source.path", typ: kString, env: "COHATCH_SOURCE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Source.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Source.Path },
	},
	{
		key: "matching.top_n", typ: kInt, env: "COHATCH_MATCHING_TOP_N",
		apply:   func(cfg *Config, v any) { cfg.Matching.TopN = v.(int) },
		extract: func(cfg Config) any { return cfg.Matching.TopN },
	},
	{
		key: "matching.embed_concurrency", typ: kInt, env: "COHATCH_MATCHING_EMBED_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Matching.EmbedConcurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Matching.EmbedConcurrency },
	},
	{
		key: "matching.reload_interval", typ: kDuration, env: "COHATCH_MATCHING_RELOAD_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Matching.ReloadInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Matching.ReloadInterval },
	},
	{
		key: "matching.eager_load", typ: kBool, env: "COHATCH_MATCHING_EAGER_LOAD",
		apply:   func(cfg *Config, v any) { cfg.Matching.EagerLoad = v.(bool) },
		extract: func(cfg Config) any { return cfg.Matching.EagerLoad },
	},
	{
		key: "log.level", typ: kString, env: "COHATCH_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "COHATCH_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
}

// parseValue converts a raw string to the Go type of t.
func parseValue(t keyType, raw string) (any, error) {
	switch t {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool, kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if pv, err := parseValue(s.typ, v); err == nil {
					s.apply(cfg, pv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
