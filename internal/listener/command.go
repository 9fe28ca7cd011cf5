package listener

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Verb string

const (
	VerbSubmit Verb = "submit"
	VerbStatus Verb = "status"
	VerbQueue  Verb = "queue"
	VerbHelp   Verb = "help"
	VerbExit   Verb = "exit"
)

const Help = `commands:
  submit <task_id> [key=value ...]   create a mission
  status <mission_id>                show a mission
  queue                              list waiting missions
  exit`

// Command is one parsed console line.
type Command struct {
	Verb    Verb
	Arg     string
	Trigger map[string]any
}

// ParseCommand splits a console line. Values in key=value pairs are decoded
// as JSON scalars when they parse, so n=3 is a number and ok=true a boolean.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}
	cmd := Command{Verb: Verb(strings.ToLower(fields[0]))}
	args := fields[1:]

	switch cmd.Verb {
	case VerbQueue, VerbHelp, VerbExit:
		if len(args) > 0 {
			return Command{}, fmt.Errorf("%s takes no arguments", cmd.Verb)
		}
	case VerbStatus:
		if len(args) != 1 {
			return Command{}, fmt.Errorf("usage: status <mission_id>")
		}
		cmd.Arg = args[0]
	case VerbSubmit:
		if len(args) == 0 {
			return Command{}, fmt.Errorf("usage: submit <task_id> [key=value ...]")
		}
		cmd.Arg = args[0]
		trigger, err := ParseTrigger(args[1:])
		if err != nil {
			return Command{}, err
		}
		cmd.Trigger = trigger
	default:
		return Command{}, fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	return cmd, nil
}

// ParseTrigger builds a trigger context from key=value pairs.
func ParseTrigger(pairs []string) (map[string]any, error) {
	trigger := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("bad trigger pair %q, want key=value", kv)
		}
		trigger[k] = parseValue(v)
	}
	return trigger, nil
}

func parseValue(v string) any {
	if _, err := strconv.ParseFloat(v, 64); err == nil || v == "true" || v == "false" || v == "null" {
		var out any
		if json.Unmarshal([]byte(v), &out) == nil {
			return out
		}
	}
	return v
}
