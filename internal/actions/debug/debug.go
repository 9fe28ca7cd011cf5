// Package debug provides deterministic tools for exercising plans: echo,
// sleep and a configurable failure.
package debug

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"myhelper/internal/failure"
	"myhelper/internal/utils"
)

func wait(ctx context.Context, durationMs int) error {
	if durationMs <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(durationMs) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func Echo(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

func Sleep(ctx context.Context, durationMs int) (map[string]any, error) {
	if err := wait(ctx, durationMs); err != nil {
		return map[string]any{"status": "cancelled"}, err
	}
	return map[string]any{"status": "ok", "result": uuid.NewString()}, nil
}

// Fail always errors after durationMs. A transient failure is retryable by
// the plan executor.
func Fail(ctx context.Context, message string, durationMs int, transient bool) error {
	if err := wait(ctx, durationMs); err != nil {
		return err
	}
	if message == "" {
		message = "debug.fail triggered"
	}
	if transient {
		return failure.Transient(errors.New(message), "debug.fail")
	}
	return errors.New(message)
}

func HandleDebugAction(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
	switch operation {
	case "echo":
		return Echo(params), nil
	case "sleep":
		return Sleep(ctx, utils.GetOptionalInt(params, "duration_ms", 0))
	case "fail":
		msg := utils.GetOptionalString(params, "message", "")
		return nil, Fail(ctx, msg, utils.GetOptionalInt(params, "duration_ms", 0), utils.GetBool(params, "transient"))
	default:
		return nil, fmt.Errorf("unknown debug operation: %s", operation)
	}
}
