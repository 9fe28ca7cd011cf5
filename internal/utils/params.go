package utils

import (
	"fmt"
	"strconv"
	"strings"
)

func GetString(params map[string]any, key string) (string, error) {
	value, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter: '%s'", key)
	}
	strValue, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("parameter '%s' has an invalid type (expected string)", key)
	}
	return strValue, nil
}

// GetOptionalString returns def when key is absent or not a string.
func GetOptionalString(params map[string]any, key, def string) string {
	if s, ok := params[key].(string); ok {
		return s
	}
	return def
}

func GetInt(params map[string]any, key string) (int, error) {
	v, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("missing required parameter: '%s'", key)
	}
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("parameter '%s' invalid int: %v", key, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("parameter '%s' has unsupported type %T", key, v)
	}
}

func GetOptionalInt(params map[string]any, key string, def int) int {
	if _, ok := params[key]; !ok {
		return def
	}
	n, err := GetInt(params, key)
	if err != nil {
		return def
	}
	return n
}

func GetBool(params map[string]any, key string) bool {
	switch t := params[key].(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	default:
		return false
	}
}
