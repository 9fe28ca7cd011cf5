// Package protocol defines the invocation messages exchanged between the
// plan executor and the tool gateway.
package protocol

import (
	"github.com/google/uuid"

	"myhelper/internal/failure"
)

const (
	Name    = "MCP"
	Version = "1.0"
)

// SupportedVersions lists the request versions the gateway accepts.
var SupportedVersions = map[string]struct{}{Version: {}}

type Request struct {
	Protocol   string         `json:"protocol"`
	Version    string         `json:"version"`
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
	RequestID  string         `json:"request_id"`
}

// NewRequest builds a current-version request with a fresh request id.
func NewRequest(tool string, params map[string]any) Request {
	if params == nil {
		params = map[string]any{}
	}
	return Request{
		Protocol:   Name,
		Version:    Version,
		ToolName:   tool,
		Parameters: params,
		RequestID:  uuid.NewString(),
	}
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Result is the normalized outcome of one invocation, whatever handler ran.
type Result struct {
	Status    Status         `json:"status"`
	Output    map[string]any `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorKind failure.Kind   `json:"error_kind,omitempty"`
}
