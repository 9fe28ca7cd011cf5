package list

import (
	"context"
	"encoding/json"
	"fmt"

	"myhelper/internal/utils"
)

func handlePluck(params map[string]any) (map[string]any, error) {
	listJSON, err := utils.GetString(params, "list_json")
	if err != nil {
		return nil, err
	}
	field, err := utils.GetString(params, "field")
	if err != nil {
		return nil, err
	}
	var arr []map[string]any
	if err := json.Unmarshal([]byte(listJSON), &arr); err != nil {
		return nil, fmt.Errorf("list_json must be array of objects: %w", err)
	}
	out := make([]string, 0, len(arr))
	for _, obj := range arr {
		if v, ok := obj[field]; ok {
			out = append(out, fmt.Sprintf("%v", v))
		}
	}
	b, _ := json.Marshal(out)
	return map[string]any{"values_json": string(b)}, nil
}

func handleUnique(params map[string]any) (map[string]any, error) {
	listJSON, err := utils.GetString(params, "list_json")
	if err != nil {
		return nil, err
	}
	var arr []any
	if err := json.Unmarshal([]byte(listJSON), &arr); err != nil {
		return nil, fmt.Errorf("list_json must be array: %w", err)
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		s := fmt.Sprintf("%v", v)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	b, _ := json.Marshal(out)
	return map[string]any{"list_json": string(b), "count": len(out)}, nil
}

func HandleListAction(_ context.Context, operation string, params map[string]any) (map[string]any, error) {
	switch operation {
	case "pluck":
		return handlePluck(params)
	case "unique":
		return handleUnique(params)
	default:
		return nil, fmt.Errorf("unknown list operation: %s", operation)
	}
}
