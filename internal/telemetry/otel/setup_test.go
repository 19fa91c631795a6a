package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	providers, err := NewProviders(context.Background(), "  ", "opsgate", false)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
		t.Fatal("providers should be non-nil for empty endpoint")
	}
	if err := providers.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name         string
		endpoint     string
		override     bool
		wantTarget   string
		wantInsecure bool
		wantErr      bool
	}{
		{"bare host port", "localhost:4317", false, "localhost:4317", true, false},
		{"http", "http://collector:4317", false, "collector:4317", true, false},
		{"https uses tls", "https://collector:4317", false, "collector:4317", false, false},
		{"https with override", "https://collector:4317", true, "collector:4317", true, false},
		{"path dropped", "http://localhost:4317/v1/traces", false, "localhost:4317", true, false},
		{"missing host", "http://", false, "", false, true},
		{"bad url", "http://[::1", false, "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col, err := parseEndpoint(tt.endpoint, tt.override)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseEndpoint(%q) should fail", tt.endpoint)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseEndpoint: %v", err)
			}
			if col.target != tt.wantTarget {
				t.Errorf("target = %q, want %q", col.target, tt.wantTarget)
			}
			if col.insecure != tt.wantInsecure {
				t.Errorf("insecure = %v, want %v", col.insecure, tt.wantInsecure)
			}
		})
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	if _, err := NewProviders(context.Background(), "http://", "opsgate", false); err == nil {
		t.Fatal("NewProviders with missing host should fail")
	}
}

func TestSetGlobal(t *testing.T) {
	ctx := context.Background()
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(ctx) }()

	oldTP := otel.GetTracerProvider()
	oldMP := otel.GetMeterProvider()
	defer func() {
		otel.SetTracerProvider(oldTP)
		otel.SetMeterProvider(oldMP)
	}()

	(&Providers{TracerProvider: tp}).SetGlobal()
	if otel.GetTracerProvider() == oldTP {
		t.Error("TracerProvider should be updated")
	}
	if otel.GetMeterProvider() != oldMP {
		t.Error("MeterProvider should not change when nil")
	}

	// nil providers must not panic
	(&Providers{}).SetGlobal()
}
