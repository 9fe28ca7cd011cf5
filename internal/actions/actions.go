// Package actions dispatches in-process function tools by their
// "category.operation" name.
package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"myhelper/internal/actions/debug"
	"myhelper/internal/actions/html"
	"myhelper/internal/actions/list"
	"myhelper/internal/actions/llm"
	"myhelper/internal/actions/system"
	"myhelper/internal/actions/url"
)

// Names lists every function a catalog may reference.
var Names = []string{
	"debug.echo", "debug.sleep", "debug.fail",
	"html.links", "html.inner_text", "html.select_all",
	"url.normalize",
	"list.pluck", "list.unique",
	"llm.generate_content",
	"system.read_file", "system.write_file", "system.list_directory",
}

// Functions holds the dependencies the stateful categories need. A nil
// Sandbox or LLM disables that category.
type Functions struct {
	Sandbox *system.Sandbox
	LLM     *llm.Generator
}

func (f *Functions) Has(name string) bool {
	i := sort.SearchStrings(sortedNames, name)
	return i < len(sortedNames) && sortedNames[i] == name
}

var sortedNames = func() []string {
	out := append([]string(nil), Names...)
	sort.Strings(out)
	return out
}()

func (f *Functions) Execute(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid function name format: '%s'", name)
	}
	category, operation := parts[0], parts[1]

	switch category {
	case "debug":
		return debug.HandleDebugAction(ctx, operation, params)
	case "html":
		return html.HandleHtmlAction(ctx, operation, params)
	case "url":
		return url.HandleURLAction(ctx, operation, params)
	case "list":
		return list.HandleListAction(ctx, operation, params)
	case "system":
		if f.Sandbox == nil {
			return nil, fmt.Errorf("system functions are disabled: no sandbox configured")
		}
		return f.Sandbox.HandleSystemAction(ctx, operation, params)
	case "llm":
		if f.LLM == nil {
			return nil, fmt.Errorf("llm functions are disabled: no provider configured")
		}
		return f.LLM.HandleLlmAction(ctx, operation, params)
	}
	return nil, fmt.Errorf("unknown function category: %s", category)
}
