package telemetry

import (
	"context"
	"io"
	"log"
	"testing"
)

func TestSetupTracingDisabled(t *testing.T) {
	logger := log.New(io.Discard, "", 0)

	for _, exporter := range []string{"", "none", " NONE "} {
		shutdown, err := SetupTracing(context.Background(), TraceConfig{
			ServiceName: "photoflow-test",
			Exporter:    exporter,
		}, logger)
		if err != nil {
			t.Fatalf("exporter %q: unexpected error: %v", exporter, err)
		}
		if shutdown == nil {
			t.Fatalf("exporter %q: expected a shutdown func", exporter)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("exporter %q: shutdown returned error: %v", exporter, err)
		}
	}
}

func TestSetupTracingRejectsUnknownExporter(t *testing.T) {
	_, err := SetupTracing(context.Background(), TraceConfig{
		ServiceName: "photoflow-test",
		Exporter:    "jaeger",
	}, nil)
	if err == nil {
		t.Fatal("expected an error for an unknown exporter")
	}
}

func TestSetupTracingOTLPRequiresEndpoint(t *testing.T) {
	_, err := SetupTracing(context.Background(), TraceConfig{
		ServiceName: "photoflow-test",
		Exporter:    "otlp",
	}, nil)
	if err == nil {
		t.Fatal("expected an error when the otlp endpoint is empty")
	}
}
