package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleCatalog = `
tools:
  - id: echo_tool
    kind: command
    description: Echoes a message.
    timeout: 5s
    command:
      argv: ["echo", "{{.message}}"]
    params:
      - name: message
        type: string
  - id: fetch_status
    kind: http
    http:
      method: GET
      url: "https://status.example.com/{{.service}}"
    params:
      - name: service
        type: enum
        enum: [api, web]
        required: true
  - id: links
    kind: function
    function:
      name: html.links
    params:
      - name: url
        type: string
        required: true
tasks:
  - id: daily_check
    name: Daily check
    description: Checks services every morning.
    tools: [echo_tool, fetch_status]
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	echo, ok := c.Tool("echo_tool")
	if !ok {
		t.Fatal("echo_tool missing")
	}
	if echo.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", echo.Timeout)
	}
	fetch, _ := c.Tool("fetch_status")
	if fetch.Timeout != DefaultToolTimeout || fetch.Name != "fetch_status" {
		t.Errorf("defaults not applied: %+v", fetch)
	}
	if len(c.Tools()) != 3 || len(c.Tasks()) != 1 {
		t.Errorf("tools=%d tasks=%d", len(c.Tools()), len(c.Tasks()))
	}

	task, _ := c.Task("daily_check")
	prompt := c.GeneratePromptPart(task)
	if !strings.Contains(prompt, "`fetch_status`") || !strings.Contains(prompt, "service:enum(api|web) required") {
		t.Errorf("prompt part missing tool details:\n%s", prompt)
	}
	if strings.Contains(prompt, "`links`") {
		t.Error("prompt part lists a tool the task does not authorize")
	}
}

func TestSchemaIsClosed(t *testing.T) {
	c, err := New([]Tool{{
		ID:       "notify",
		Kind:     KindFunction,
		Function: &FunctionSpec{Name: "debug.echo"},
		Params: []Param{
			{Name: "text", Type: TypeString, Required: true},
			{Name: "count", Type: TypeNumber},
			{Name: "loud", Type: TypeBoolean},
			{Name: "level", Type: TypeEnum, Enum: []string{"info", "warn"}},
		},
	}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	schema, _ := c.Schema("notify")

	testCases := []struct {
		name    string
		params  map[string]any
		wantErr bool
	}{
		{name: "required only", params: map[string]any{"text": "hi"}},
		{name: "all typed", params: map[string]any{"text": "hi", "count": 2.0, "loud": true, "level": "warn"}},
		{name: "missing required", params: map[string]any{"count": 1.0}, wantErr: true},
		{name: "extra parameter", params: map[string]any{"text": "hi", "color": "red"}, wantErr: true},
		{name: "wrong type", params: map[string]any{"text": "hi", "count": "two"}, wantErr: true},
		{name: "enum outside set", params: map[string]any{"text": "hi", "level": "debug"}, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := schema.Validate(tc.params)
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestNewRejectsBadDefinitions(t *testing.T) {
	echo := Tool{ID: "echo", Kind: KindCommand, Command: &CommandSpec{Argv: []string{"echo"}}}
	testCases := []struct {
		name  string
		tools []Tool
		tasks []Task
	}{
		{name: "kind without matching spec", tools: []Tool{{ID: "x", Kind: KindHTTP, Command: &CommandSpec{Argv: []string{"ls"}}}}},
		{name: "two variants set", tools: []Tool{{ID: "x", Kind: KindCommand, Command: &CommandSpec{Argv: []string{"ls"}}, HTTP: &HTTPSpec{URL: "http://x"}}}},
		{name: "unknown kind", tools: []Tool{{ID: "x", Kind: "grpc", Function: &FunctionSpec{Name: "f"}}}},
		{name: "enum without values", tools: []Tool{{ID: "x", Kind: KindFunction, Function: &FunctionSpec{Name: "f"}, Params: []Param{{Name: "p", Type: TypeEnum}}}}},
		{name: "unknown param type", tools: []Tool{{ID: "x", Kind: KindFunction, Function: &FunctionSpec{Name: "f"}, Params: []Param{{Name: "p", Type: "date"}}}}},
		{name: "duplicate tool", tools: []Tool{echo, echo}},
		{name: "task with unknown tool", tools: []Tool{echo}, tasks: []Task{{ID: "t", Tools: []string{"missing"}}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.tools, tc.tasks); err == nil {
				t.Error("expected an error, got nil")
			}
		})
	}
}
