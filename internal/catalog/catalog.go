// Package catalog holds the tool and task definitions loaded for a run.
// Definitions are immutable once New returns.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"myhelper/internal/store"
)

// Kind is the closed set of invocation kinds.
type Kind string

const (
	KindCommand  Kind = "command"
	KindHTTP     Kind = "http"
	KindFunction Kind = "function"
)

type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeEnum    ParamType = "enum"
)

type Param struct {
	Name        string    `yaml:"name" json:"name"`
	Type        ParamType `yaml:"type" json:"type"`
	Required    bool      `yaml:"required" json:"required"`
	Description string    `yaml:"description" json:"description,omitempty"`
	Enum        []string  `yaml:"enum" json:"enum,omitempty"`
	Pattern     string    `yaml:"pattern" json:"pattern,omitempty"`
	MaxLength   *int      `yaml:"max_length" json:"max_length,omitempty"`
	Minimum     *float64  `yaml:"minimum" json:"minimum,omitempty"`
	Maximum     *float64  `yaml:"maximum" json:"maximum,omitempty"`
}

// CommandSpec runs Argv directly, never through a shell. Each element is a
// text/template rendered against the parameters.
type CommandSpec struct {
	Argv []string          `yaml:"argv" json:"argv"`
	Dir  string            `yaml:"dir" json:"dir,omitempty"`
	Env  map[string]string `yaml:"env" json:"env,omitempty"`
}

// HTTPSpec templates URL, headers and body against the parameters. An
// empty Body sends the parameters as a JSON object for non-GET methods.
type HTTPSpec struct {
	Method  string            `yaml:"method" json:"method"`
	URL     string            `yaml:"url" json:"url"`
	Headers map[string]string `yaml:"headers" json:"headers,omitempty"`
	Body    string            `yaml:"body" json:"body,omitempty"`
}

type FunctionSpec struct {
	Name string `yaml:"name" json:"name"`
}

// Tool is a tagged variant: Kind selects which one of Command, HTTP or
// Function is set.
type Tool struct {
	ID          string        `yaml:"id" json:"id"`
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description" json:"description,omitempty"`
	Kind        Kind          `yaml:"kind" json:"kind"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	Risky       bool          `yaml:"risky" json:"risky,omitempty"`
	Params      []Param       `yaml:"params" json:"params"`

	Command  *CommandSpec  `yaml:"command" json:"command,omitempty"`
	HTTP     *HTTPSpec     `yaml:"http" json:"http,omitempty"`
	Function *FunctionSpec `yaml:"function" json:"function,omitempty"`
}

type Task struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Tools       []string `yaml:"tools" json:"tools"`
}

const DefaultToolTimeout = 30 * time.Second

type Catalog struct {
	tools   map[string]Tool
	tasks   map[string]Task
	schemas map[string]*jsonschema.Schema
	toolIDs []string
	taskIDs []string
}

type file struct {
	Tools []Tool `yaml:"tools"`
	Tasks []Task `yaml:"tasks"`
}

// Load reads a YAML (or JSON) catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read catalog file: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("could not parse catalog %s: %w", path, err)
	}
	return New(f.Tools, f.Tasks)
}

// New validates the definitions and compiles each tool's parameter schema.
func New(tools []Tool, tasks []Task) (*Catalog, error) {
	c := &Catalog{
		tools:   make(map[string]Tool, len(tools)),
		tasks:   make(map[string]Task, len(tasks)),
		schemas: make(map[string]*jsonschema.Schema, len(tools)),
	}
	for _, t := range tools {
		if t.Timeout <= 0 {
			t.Timeout = DefaultToolTimeout
		}
		if strings.TrimSpace(t.Name) == "" {
			t.Name = t.ID
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.tools[t.ID]; dup {
			return nil, fmt.Errorf("duplicate tool id %q", t.ID)
		}
		schema, err := compileSchema(t)
		if err != nil {
			return nil, fmt.Errorf("tool %s: compile parameter schema: %w", t.ID, err)
		}
		c.tools[t.ID] = t
		c.schemas[t.ID] = schema
		c.toolIDs = append(c.toolIDs, t.ID)
	}
	for _, task := range tasks {
		if strings.TrimSpace(task.ID) == "" {
			return nil, fmt.Errorf("task without id")
		}
		if _, dup := c.tasks[task.ID]; dup {
			return nil, fmt.Errorf("duplicate task id %q", task.ID)
		}
		for _, id := range task.Tools {
			if _, ok := c.tools[id]; !ok {
				return nil, fmt.Errorf("task %s authorizes unknown tool %q", task.ID, id)
			}
		}
		c.tasks[task.ID] = task
		c.taskIDs = append(c.taskIDs, task.ID)
	}
	sort.Strings(c.toolIDs)
	sort.Strings(c.taskIDs)
	return c, nil
}

func (t Tool) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("tool without id")
	}
	set := 0
	for _, present := range []bool{t.Command != nil, t.HTTP != nil, t.Function != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("tool %s: exactly one of command, http or function must be set", t.ID)
	}
	switch t.Kind {
	case KindCommand:
		if t.Command == nil || len(t.Command.Argv) == 0 {
			return fmt.Errorf("tool %s: command kind needs command.argv", t.ID)
		}
	case KindHTTP:
		if t.HTTP == nil || strings.TrimSpace(t.HTTP.URL) == "" {
			return fmt.Errorf("tool %s: http kind needs http.url", t.ID)
		}
	case KindFunction:
		if t.Function == nil || strings.TrimSpace(t.Function.Name) == "" {
			return fmt.Errorf("tool %s: function kind needs function.name", t.ID)
		}
	default:
		return fmt.Errorf("tool %s: unknown kind %q", t.ID, t.Kind)
	}

	seen := map[string]struct{}{}
	for _, p := range t.Params {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("tool %s: parameter without name", t.ID)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("tool %s: duplicate parameter %q", t.ID, p.Name)
		}
		seen[p.Name] = struct{}{}
		switch p.Type {
		case TypeString, TypeNumber, TypeBoolean:
		case TypeEnum:
			if len(p.Enum) == 0 {
				return fmt.Errorf("tool %s: enum parameter %q has no values", t.ID, p.Name)
			}
		default:
			return fmt.Errorf("tool %s: parameter %q has unknown type %q", t.ID, p.Name, p.Type)
		}
	}
	return nil
}

func (c *Catalog) Tool(id string) (Tool, bool) {
	t, ok := c.tools[id]
	return t, ok
}

func (c *Catalog) Task(id string) (Task, bool) {
	t, ok := c.tasks[id]
	return t, ok
}

// Schema returns the compiled parameter schema of a tool.
func (c *Catalog) Schema(id string) (*jsonschema.Schema, bool) {
	s, ok := c.schemas[id]
	return s, ok
}

func (c *Catalog) Tools() []Tool {
	out := make([]Tool, 0, len(c.toolIDs))
	for _, id := range c.toolIDs {
		out = append(out, c.tools[id])
	}
	return out
}

func (c *Catalog) Tasks() []Task {
	out := make([]Task, 0, len(c.taskIDs))
	for _, id := range c.taskIDs {
		out = append(out, c.tasks[id])
	}
	return out
}

// Publish writes every definition to the store so they are addressable by id.
func (c *Catalog) Publish(ctx context.Context, s store.Store) error {
	for _, t := range c.Tools() {
		if err := s.Put(ctx, store.KindTool, t.ID, t); err != nil {
			return err
		}
	}
	for _, t := range c.Tasks() {
		if err := s.Put(ctx, store.KindTask, t.ID, t); err != nil {
			return err
		}
	}
	return nil
}

// GeneratePromptPart describes the tools a task may use, for the planner.
func (c *Catalog) GeneratePromptPart(task Task) string {
	var sb strings.Builder
	sb.WriteString("AVAILABLE TOOLS & PARAMETERS:\n")
	for _, id := range task.Tools {
		t := c.tools[id]
		var params []string
		for _, p := range t.Params {
			desc := fmt.Sprintf("%s:%s", p.Name, p.Type)
			if p.Type == TypeEnum {
				desc += "(" + strings.Join(p.Enum, "|") + ")"
			}
			if p.Required {
				desc += " required"
			}
			params = append(params, desc)
		}
		sb.WriteString(fmt.Sprintf("- `%s`: %s Parameters: `[%s]`.\n", t.ID, t.Description, strings.Join(params, ", ")))
	}
	return sb.String()
}

func schemaDoc(t Tool) map[string]any {
	props := map[string]any{}
	required := []string{}
	for _, p := range t.Params {
		prop := map[string]any{}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		switch p.Type {
		case TypeString:
			prop["type"] = "string"
			if p.Pattern != "" {
				prop["pattern"] = p.Pattern
			}
			if p.MaxLength != nil {
				prop["maxLength"] = *p.MaxLength
			}
		case TypeNumber:
			prop["type"] = "number"
			if p.Minimum != nil {
				prop["minimum"] = *p.Minimum
			}
			if p.Maximum != nil {
				prop["maximum"] = *p.Maximum
			}
		case TypeBoolean:
			prop["type"] = "boolean"
		case TypeEnum:
			prop["type"] = "string"
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func compileSchema(t Tool) (*jsonschema.Schema, error) {
	doc, err := json.Marshal(schemaDoc(t))
	if err != nil {
		return nil, err
	}
	return jsonschema.CompileString("tool-"+t.ID+".schema.json", string(doc))
}
