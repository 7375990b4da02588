// Package tracing owns the one piece of distributed-trace correlation that
// is core's responsibility per spec §6: the correlation header name and the
// trace/span ID format every agent must echo back. Actually exporting spans
// to a backend is an external collaborator's job; this package only wires
// an optional OTLP exporter in as the global tracer provider.
//
// Trimmed down from the teacher's SpanCorrelator/StreamConsumer pipeline
// (consumer.go, correlator.go, exporters.go, tempo_client.go), which
// reconstructed complete traces from a Redis stream of span events — a
// concern this mesh's agents don't produce (no shared event bus for spans),
// so only the ID/header format and export plumbing survive.
package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// HeaderName is the HTTP header carrying the correlation trace ID across an
// agent-to-agent (or meshctl-to-agent) call.
const HeaderName = "X-Trace-ID"

// NewTraceID generates a 16-byte (32 hex char) trace ID in the same shape
// OpenTelemetry uses, so correlation IDs this mesh mints interoperate with
// an OTLP backend if one is configured.
func NewTraceID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// NewSpanID generates an 8-byte (16 hex char) span ID.
func NewSpanID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Config controls whether an OTLP exporter is installed and where it sends
// spans. The registry's handlers do not start spans of their own.
type Config struct {
	Enabled  bool   `env:"MCP_MESH_DISTRIBUTED_TRACING_ENABLED" envDefault:"false"`
	Endpoint string `env:"MCP_MESH_TRACING_ENDPOINT" envDefault:""`
	Protocol string `env:"MCP_MESH_TRACING_PROTOCOL" envDefault:"grpc"` // grpc | http
}

// Manager owns the OTel SDK tracer provider lifecycle.
type Manager struct {
	cfg      Config
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewManager builds a Manager. When cfg.Enabled is false it's a harmless
// no-op: Tracer() still returns a usable (noop) trace.Tracer.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{cfg: cfg, tracer: otel.Tracer("mcp-mesh-registry")}
	if !cfg.Enabled {
		return m, nil
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("tracing enabled but MCP_MESH_TRACING_ENDPOINT is not set")
	}

	exporter, err := newOTLPExporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build OTLP exporter: %w", err)
	}

	m.provider = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(m.provider)
	m.tracer = m.provider.Tracer("mcp-mesh-registry")
	return m, nil
}

func newOTLPExporter(cfg Config) (sdktrace.SpanExporter, error) {
	ctx := context.Background()
	if cfg.Protocol == "http" {
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
	}
	return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
}

// Tracer returns the underlying OTel tracer, usable whether or not export is
// enabled.
func (m *Manager) Tracer() trace.Tracer { return m.tracer }

// Enabled reports whether export is configured.
func (m *Manager) Enabled() bool { return m.cfg.Enabled }

// Shutdown flushes and closes the exporter, if one was started.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
