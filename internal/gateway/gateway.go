// Package gateway is the trust boundary for side effects. Every tool call a
// plan makes is checked here, in order: protocol, authorization, catalog
// lookup, parameters. Only then is it dispatched to the handler for the
// tool's kind. The gateway never retries.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"time"

	"myhelper/internal/catalog"
	"myhelper/internal/failure"
	"myhelper/internal/logger"
	"myhelper/internal/metrics"
	"myhelper/internal/protocol"
)

const defaultMaxOutput = 64 * 1024

// Functions runs in-process tools by name.
type Functions interface {
	Has(name string) bool
	Execute(ctx context.Context, name string, params map[string]any) (map[string]any, error)
}

type Options struct {
	// SandboxDir is the working directory root for command tools.
	SandboxDir string
	HTTPClient *http.Client
	// MaxOutput caps captured stdout, stderr and HTTP bodies, in bytes.
	MaxOutput int
	// RunAs is the identity command tools run under. When it is nil and
	// the engine runs as root, command tools are refused unless
	// AllowPrivileged is set.
	RunAs           *Credential
	AllowPrivileged bool
	Logger          *slog.Logger
}

// Credential is a numeric uid/gid pair.
type Credential struct {
	UID, GID uint32
}

type Gateway struct {
	catalog         *catalog.Catalog
	funcs           Functions
	sandboxDir      string
	client          *http.Client
	maxOutput       int
	runAs           *Credential
	allowPrivileged bool
	euid            func() int
	log             *slog.Logger
}

func New(cat *catalog.Catalog, funcs Functions, opts Options) *Gateway {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	maxOutput := opts.MaxOutput
	if maxOutput <= 0 {
		maxOutput = defaultMaxOutput
	}
	return &Gateway{
		catalog:         cat,
		funcs:           funcs,
		sandboxDir:      opts.SandboxDir,
		client:          client,
		maxOutput:       maxOutput,
		runAs:           opts.RunAs,
		allowPrivileged: opts.AllowPrivileged,
		euid:            os.Geteuid,
		log:             logger.Component(opts.Logger, "gateway"),
	}
}

// Invoke validates and runs req. The returned Result is always populated;
// the error carries the failure classification the executor retries on.
func (g *Gateway) Invoke(ctx context.Context, req protocol.Request, authorized []string) (protocol.Result, error) {
	tool, params, err := g.admit(req, authorized)
	if err != nil {
		metrics.ObserveTool(req.ToolName, "rejected", 0)
		g.log.Warn("invocation rejected", "tool", req.ToolName, "request_id", req.RequestID, "error", err)
		return failed(err), err
	}

	start := time.Now()
	output, err := g.execute(ctx, tool, params)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveTool(tool.ID, string(protocol.StatusFailed), elapsed)
		g.log.Info("invocation failed", "tool", tool.ID, "request_id", req.RequestID,
			"kind", failure.KindOf(err), "duration_ms", elapsed.Milliseconds(), "error", err)
		res := failed(err)
		res.Output = output
		return res, err
	}
	metrics.ObserveTool(tool.ID, string(protocol.StatusSuccess), elapsed)
	g.log.Debug("invocation succeeded", "tool", tool.ID, "request_id", req.RequestID, "duration_ms", elapsed.Milliseconds())
	return protocol.Result{Status: protocol.StatusSuccess, Output: output}, nil
}

// admit runs the validation stages. Each one rejects the request outright.
func (g *Gateway) admit(req protocol.Request, authorized []string) (catalog.Tool, map[string]any, error) {
	if req.Protocol != protocol.Name {
		return catalog.Tool{}, nil, failure.New(failure.KindValidation, "unsupported protocol %q", req.Protocol)
	}
	if _, ok := protocol.SupportedVersions[req.Version]; !ok {
		return catalog.Tool{}, nil, failure.New(failure.KindValidation, "unsupported protocol version %q", req.Version)
	}
	if req.RequestID == "" {
		return catalog.Tool{}, nil, failure.New(failure.KindValidation, "request_id is required")
	}

	if !slices.Contains(authorized, req.ToolName) {
		return catalog.Tool{}, nil, failure.New(failure.KindValidation, "tool %q is not authorized for this task", req.ToolName)
	}

	tool, ok := g.catalog.Tool(req.ToolName)
	if !ok {
		return catalog.Tool{}, nil, failure.New(failure.KindNotFound, "tool %q is not in the catalog", req.ToolName)
	}
	schema, ok := g.catalog.Schema(tool.ID)
	if !ok {
		return catalog.Tool{}, nil, failure.New(failure.KindInternal, "tool %q has no compiled schema", tool.ID)
	}

	params, err := normalizeParams(req.Parameters)
	if err != nil {
		return catalog.Tool{}, nil, failure.Wrap(failure.KindValidation, err, "tool %s: parameters are not a JSON object", tool.ID)
	}
	if err := schema.Validate(params); err != nil {
		return catalog.Tool{}, nil, failure.Wrap(failure.KindValidation, err, "tool %s: invalid parameters", tool.ID)
	}
	return tool, params, nil
}

func (g *Gateway) execute(ctx context.Context, tool catalog.Tool, params map[string]any) (out map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, failure.New(failure.KindInternal, "panic in tool %s: %v", tool.ID, rec)
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, tool.Timeout)
	defer cancel()

	switch tool.Kind {
	case catalog.KindCommand:
		out, err = g.runCommand(callCtx, tool, params)
	case catalog.KindHTTP:
		out, err = g.runHTTP(callCtx, tool, params)
	case catalog.KindFunction:
		out, err = g.runFunction(callCtx, tool, params)
	default:
		return nil, failure.New(failure.KindInternal, "tool %s: unhandled kind %q", tool.ID, tool.Kind)
	}
	if err != nil && callCtx.Err() != nil && !failure.Is(err, failure.KindTimeout) {
		err = failure.Wrap(failure.KindTimeout, callCtx.Err(), "tool %s exceeded %s", tool.ID, tool.Timeout)
	}
	return out, err
}

// normalizeParams round-trips through JSON so numbers arrive as float64
// whatever the caller built the map with.
func normalizeParams(params map[string]any) (map[string]any, error) {
	if params == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func failed(err error) protocol.Result {
	return protocol.Result{Status: protocol.StatusFailed, Error: err.Error(), ErrorKind: failure.KindOf(err)}
}

func (g *Gateway) runFunction(ctx context.Context, tool catalog.Tool, params map[string]any) (map[string]any, error) {
	name := tool.Function.Name
	if g.funcs == nil || !g.funcs.Has(name) {
		return nil, failure.New(failure.KindNotFound, "tool %s: function %q is not registered", tool.ID, name)
	}
	out, err := g.funcs.Execute(ctx, name, params)
	if err != nil {
		if failure.KindOf(err) != failure.KindInternal {
			return out, err
		}
		return out, failure.Wrap(failure.KindExecution, err, "%s", name)
	}
	return out, nil
}
