package url

import (
	"context"
	"encoding/json"
	"fmt"

	"myhelper/internal/utils"
)

func HandleURLAction(_ context.Context, operation string, params map[string]any) (map[string]any, error) {
	switch operation {
	case "normalize":
		urlsJSON, err := utils.GetString(params, "urls_json")
		if err != nil {
			return nil, err
		}
		base := utils.GetOptionalString(params, "base_url", "")
		var urls []string
		if err := json.Unmarshal([]byte(urlsJSON), &urls); err != nil {
			return nil, fmt.Errorf("urls_json must be array of strings: %w", err)
		}
		out := make([]string, 0, len(urls))
		seen := make(map[string]struct{}, len(urls))
		for _, u := range urls {
			abs := utils.ResolveURL(base, u)
			if _, dup := seen[abs]; dup {
				continue
			}
			seen[abs] = struct{}{}
			out = append(out, abs)
		}
		b, _ := json.Marshal(out)
		return map[string]any{"urls_json": string(b), "count": len(out)}, nil
	default:
		return nil, fmt.Errorf("unknown url operation: %s", operation)
	}
}
