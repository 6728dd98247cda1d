package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	tracingopts "github.com/kart-io/handbook-rag/pkg/options/tracing"
)

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *tracingopts.Options)
		wantErr int
	}{
		{"disabled skips checks", func(o *tracingopts.Options) { o.Endpoint = ""; o.ExporterType = "bogus" }, 0},
		{"valid grpc", func(o *tracingopts.Options) { o.Enabled = true }, 0},
		{"missing endpoint", func(o *tracingopts.Options) { o.Enabled = true; o.Endpoint = "" }, 1},
		{"stdout needs no endpoint", func(o *tracingopts.Options) { o.Enabled = true; o.ExporterType = tracingopts.ExporterStdout; o.Endpoint = "" }, 0},
		{"bad exporter and ratio", func(o *tracingopts.Options) { o.Enabled = true; o.ExporterType = "zipkin"; o.SamplerRatio = 2 }, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tracingopts.NewOptions()
			tt.mutate(o)
			assert.Len(t, o.Validate(), tt.wantErr)
		})
	}
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(tracingopts.NewOptions(), "v0.0.0-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	assert.NotNil(t, p.Tracer("handbook"))
	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
}

func TestNewProviderNoopExporter(t *testing.T) {
	o := tracingopts.NewOptions()
	o.Enabled = true
	o.ExporterType = tracingopts.ExporterNoop
	o.SamplerType = tracingopts.SamplerAlwaysOn

	p, err := NewProvider(o, "v0.0.0-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	_, span := p.Tracer("handbook").Start(context.Background(), "ask")
	assert.True(t, span.IsRecording())
	span.End()
	assert.NoError(t, p.ForceFlush(context.Background()))
}

func TestNewProviderRejectsInvalidOptions(t *testing.T) {
	o := tracingopts.NewOptions()
	o.Enabled = true
	o.SamplerType = "sometimes"

	_, err := NewProvider(o, "")
	assert.Error(t, err)
}

func TestSpanHelpers(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	assert.Empty(t, TraceID(context.Background()))

	ctx, span := Start(context.Background(), "handbook", "search")
	Annotate(ctx, KeyTopK.Int(8))
	Fail(ctx, errors.New("namespace BMI failed"))
	Fail(ctx, nil)
	assert.Len(t, TraceID(ctx), 32)
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "search", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Contains(t, ended[0].Attributes(), KeyTopK.Int(8))
}
