package engine

import (
	"context"
	"fmt"
)

// Supported backend names.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Backend       string
	OllamaBaseURL string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	GeminiBaseURL string
	GeminiAPIKey  string
}

// Detect returns the engine for the configured backend. An empty backend
// means Ollama.
func Detect(ctx context.Context, cfg DetectConfig) (Engine, error) {
	switch cfg.Backend {
	case "", BackendOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL), nil
	case BackendOpenAI:
		if cfg.OpenAIBaseURL == "" {
			return nil, fmt.Errorf("openai backend requires a base URL")
		}
		return NewOpenAIEngine(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey), nil
	case BackendGemini:
		e, err := NewGeminiEngine(ctx, cfg.GeminiBaseURL, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown engine backend %q", cfg.Backend)
	}
}
