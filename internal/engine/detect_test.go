package engine

import (
	"context"
	"testing"
)

func TestDetect_DefaultsToOllama(t *testing.T) {
	e, err := Detect(context.Background(), DetectConfig{OllamaBaseURL: "http://localhost:11434"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := e.(*OllamaEngine); !ok {
		t.Errorf("Detect returned %T, want *OllamaEngine", e)
	}
}

func TestDetect_OpenAI(t *testing.T) {
	e, err := Detect(context.Background(), DetectConfig{Backend: BackendOpenAI, OpenAIBaseURL: "http://localhost:8080/v1"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := e.(*OpenAIEngine); !ok {
		t.Errorf("Detect returned %T, want *OpenAIEngine", e)
	}
}

func TestDetect_Gemini(t *testing.T) {
	e, err := Detect(context.Background(), DetectConfig{Backend: BackendGemini, GeminiAPIKey: "gm-test"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := e.(*GeminiEngine); !ok {
		t.Errorf("Detect returned %T, want *GeminiEngine", e)
	}
}

func TestDetect_Errors(t *testing.T) {
	ctx := context.Background()
	if _, err := Detect(ctx, DetectConfig{Backend: BackendOpenAI}); err == nil {
		t.Error("expected error for openai backend without base URL")
	}
	if _, err := Detect(ctx, DetectConfig{Backend: "tensorflow"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
