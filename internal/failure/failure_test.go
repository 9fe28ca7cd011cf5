package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil error", err: nil, want: ""},
		{name: "direct failure", err: New(KindValidation, "bad"), want: KindValidation},
		{name: "wrapped failure", err: fmt.Errorf("outer: %w", New(KindStorage, "disk")), want: KindStorage},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: KindTimeout},
		{name: "plain error", err: errors.New("boom"), want: KindInternal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "timeout", err: New(KindTimeout, "slow"), want: true},
		{name: "transient execution", err: Transient(errors.New("reset"), "connection"), want: true},
		{name: "plain execution", err: New(KindExecution, "exit 1"), want: false},
		{name: "validation", err: New(KindValidation, "missing"), want: false},
		{name: "raw deadline", err: context.DeadlineExceeded, want: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Retryable(tc.err); got != tc.want {
				t.Errorf("Retryable() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDetailsOf(t *testing.T) {
	d := DetailsOf(Wrap(KindPlanning, errors.New("empty"), "planner returned no steps"))
	if d.Kind != KindPlanning {
		t.Errorf("kind = %q, want planning", d.Kind)
	}
	if d.Message == "" {
		t.Error("expected a non-empty message")
	}
	if DetailsOf(nil) != nil {
		t.Error("expected nil details for nil error")
	}
}
