package llm

import (
	"context"
	"fmt"

	"myhelper/internal/llm_client"
	"myhelper/internal/utils"
)

// Generator serves llm.* tools from the configured provider.
type Generator struct {
	provider llm_client.Provider
}

func NewGenerator(p llm_client.Provider) *Generator {
	return &Generator{provider: p}
}

func (g *Generator) GenerateContent(ctx context.Context, prompt, model string) (map[string]any, error) {
	if g == nil || g.provider == nil {
		return nil, llm_client.ErrNotInitialized
	}
	model = g.provider.AllowedModelOrDefault(model)
	text, err := g.provider.Generate(ctx, prompt, model)
	if err != nil {
		return nil, err
	}
	return map[string]any{"generated_content": text, "model": model}, nil
}

func (g *Generator) HandleLlmAction(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
	switch operation {
	case "generate_content":
		prompt, err := utils.GetString(params, "prompt")
		if err != nil {
			return nil, err
		}
		return g.GenerateContent(ctx, prompt, utils.GetOptionalString(params, "model", ""))
	default:
		return nil, fmt.Errorf("unknown llm operation: %s", operation)
	}
}
