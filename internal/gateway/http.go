package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"myhelper/internal/catalog"
	"myhelper/internal/failure"
)

func (g *Gateway) runHTTP(ctx context.Context, tool catalog.Tool, params map[string]any) (map[string]any, error) {
	spec := tool.HTTP
	data := templateData(tool, params)

	method := strings.ToUpper(strings.TrimSpace(spec.Method))
	if method == "" {
		method = http.MethodGet
	}
	url, err := render(tool.ID+".url", spec.URL, data)
	if err != nil {
		return nil, failure.Wrap(failure.KindValidation, err, "tool %s: render url", tool.ID)
	}

	var body io.Reader
	contentType := ""
	switch {
	case spec.Body != "":
		rendered, err := render(tool.ID+".body", spec.Body, data)
		if err != nil {
			return nil, failure.Wrap(failure.KindValidation, err, "tool %s: render body", tool.ID)
		}
		body = strings.NewReader(rendered)
	case method != http.MethodGet && method != http.MethodHead:
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, failure.Wrap(failure.KindValidation, err, "tool %s: encode body", tool.ID)
		}
		body = strings.NewReader(string(raw))
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, failure.Wrap(failure.KindValidation, err, "tool %s: build request", tool.ID)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range spec.Headers {
		rendered, err := render(tool.ID+".header."+k, v, data)
		if err != nil {
			return nil, failure.Wrap(failure.KindValidation, err, "tool %s: render header %s", tool.ID, k)
		}
		req.Header.Set(k, rendered)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, failure.Wrap(failure.KindTimeout, err, "tool %s", tool.ID)
		}
		return nil, failure.Transient(err, "tool %s: request failed", tool.ID)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(g.maxOutput)+1))
	if err != nil {
		return nil, failure.Transient(err, "tool %s: read response", tool.ID)
	}
	out := map[string]any{"status_code": resp.StatusCode}
	if len(raw) > g.maxOutput {
		raw = raw[:g.maxOutput]
		out["truncated"] = true
	}
	out["body"] = string(raw)
	var decoded any
	if json.Unmarshal(raw, &decoded) == nil {
		out["json"] = decoded
	}

	switch {
	case resp.StatusCode >= 500:
		return out, failure.Transient(fmt.Errorf("status %d", resp.StatusCode), "tool %s", tool.ID)
	case resp.StatusCode >= 400:
		return out, failure.New(failure.KindExecution, "tool %s: status %d", tool.ID, resp.StatusCode)
	}
	return out, nil
}
