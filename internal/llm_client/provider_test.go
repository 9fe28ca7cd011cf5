package llm_client

import (
	"context"
	"testing"
)

func TestNewRejectsUnknownBackend(t *testing.T) {
	if _, err := New(context.Background(), Config{Backend: "claude-local"}); err == nil {
		t.Error("expected an error for an unknown backend")
	}
}

func TestGeminiModelGuard(t *testing.T) {
	p := &geminiProvider{model: "gemini-1.5-pro"}
	testCases := []struct {
		name  string
		model string
		want  string
	}{
		{name: "empty uses configured", model: "", want: "gemini-1.5-pro"},
		{name: "gemini model passes", model: "gemini-2.5-flash", want: "gemini-2.5-flash"},
		{name: "foreign model falls back", model: "gpt-4o", want: geminiDefault},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.AllowedModelOrDefault(tc.model); got != tc.want {
				t.Errorf("AllowedModelOrDefault(%q) = %q, want %q", tc.model, got, tc.want)
			}
		})
	}
}

func TestOllamaExplicitHost(t *testing.T) {
	p, err := New(context.Background(), Config{Backend: "ollama", OllamaHost: "http://127.0.0.1:11434", Model: "llama3"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "ollama" || p.AllowedModelOrDefault("") != "llama3" {
		t.Errorf("provider = %s, model = %s", p.Name(), p.AllowedModelOrDefault(""))
	}
}
