// Package llm_client puts the Gemini and Ollama backends behind one Provider
// used by the planner, the reporter and the llm.generate_content tool.
package llm_client

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNotInitialized = errors.New("llm provider not initialized")

type Config struct {
	Backend    string
	Model      string
	OllamaHost string
	// APIKey overrides GEMINI_API_KEY.
	APIKey string
}

type Provider interface {
	Name() string
	DefaultModel() string
	AllowedModelOrDefault(model string) string
	Generate(ctx context.Context, prompt, model string) (string, error)
	GenerateJSON(ctx context.Context, prompt, model string, schema any) (string, error)
}

func New(ctx context.Context, cfg Config) (Provider, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	var (
		p   Provider
		err error
	)
	switch backend {
	case "", "gemini":
		var g *geminiProvider
		g, err = newGemini(ctx, cfg)
		p = g
	case "ollama":
		var o *ollamaProvider
		o, err = newOllama(cfg)
		p = o
	default:
		return nil, fmt.Errorf("unsupported LLM backend: %s", backend)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
