package tracing

import (
	"context"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error: %v", err)
	}
}

func TestSampler(t *testing.T) {
	testCases := []struct {
		name string
		rate float64
		want string
	}{
		{name: "unset samples everything", rate: 0, want: "AlwaysOnSampler"},
		{name: "full rate", rate: 1, want: "AlwaysOnSampler"},
		{name: "ratio", rate: 0.25, want: "TraceIDRatioBased{0.25}"},
		{name: "negative disables", rate: -1, want: "AlwaysOffSampler"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Sampler(tc.rate).Description(); !strings.Contains(got, tc.want) {
				t.Errorf("Sampler(%v) = %s, want it to contain %s", tc.rate, got, tc.want)
			}
		})
	}
}

func TestNewProviderRecordsServiceName(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := NewProvider(Config{Environment: "test"}, sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(ended))
	}
	var service string
	for _, kv := range ended[0].Resource().Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	if service != ServiceName {
		t.Errorf("service.name = %q, want %q", service, ServiceName)
	}
}
