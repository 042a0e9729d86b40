package telemetry

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vinayprograms/drainkit/errors"
	"github.com/vinayprograms/drainkit/shutdown"
)

func spanNames(spans tracetest.SpanStubs) []string {
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name
	}
	return names
}

func TestInitProvider_Invalid(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	tests := []struct {
		name string
		cfg  ProviderConfig
	}{
		{"no endpoint", ProviderConfig{}},
		{"unknown protocol", ProviderConfig{Endpoint: "localhost:4317", Protocol: "udp"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InitProvider(context.Background(), tt.cfg)
			assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))
		})
	}
}

func TestProvider_ExportsDrainSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	p, err := NewProvider(exp, ProviderConfig{ServiceName: "test"})
	require.NoError(t, err)

	registry, err := shutdown.New(shutdown.Config{}, shutdown.WithTracerProvider(p.TracerProvider()))
	require.NoError(t, err)
	registry.RegisterAsyncFunc("noop", func(context.Context) error { return nil })
	registry.RegisterSyncFunc("telemetry", p.ForceFlush)

	require.NoError(t, registry.Shutdown(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()))

	names := spanNames(exp.GetSpans())
	assert.Contains(t, names, "shutdown.drain")
	assert.Contains(t, names, "shutdown.phase")
}

func TestStartServerSpan_ContinuesTrace(t *testing.T) {
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	exp := tracetest.NewInMemoryExporter()
	p, err := NewProvider(exp, ProviderConfig{})
	require.NoError(t, err)
	p.Install()

	// client side
	ctx, parent := StartSpan(context.Background(), "client")
	req := httptest.NewRequest("POST", "/events", nil)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	EndSpan(parent, nil)

	_, span := StartServerSpan(req, "POST /events")
	EndSpan(span, errors.New(errors.ErrCodeSendFailed, "no receivers"))

	require.NoError(t, p.ForceFlush(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 2)
	client, server := spans[0], spans[1]
	assert.Equal(t, "client", client.Name)
	assert.Equal(t, client.SpanContext.TraceID(), server.SpanContext.TraceID())
	assert.Equal(t, client.SpanContext.SpanID(), server.Parent.SpanID())
	assert.Equal(t, codes.Error, server.Status.Code)
	assert.Equal(t, codes.Ok, client.Status.Code)
}
