package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auracast/auracast/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "auracast-pipeline",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
	})

	require.NoError(t, err)
	assert.NotNil(t, provider)
	assert.NotNil(t, provider.Tracer)
	assert.NotNil(t, provider.Meter)

	// Disabled telemetry leaves the SDK providers unset.
	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)

	assert.NoError(t, provider.Shutdown(ctx))
}

func TestInit_DisabledWithoutServiceName(t *testing.T) {
	provider, err := telemetry.Init(context.Background(), telemetry.Config{})

	require.NoError(t, err)
	assert.NotNil(t, provider.Tracer)
}

func TestProvider_Shutdown_NilProviders(t *testing.T) {
	provider := &telemetry.Provider{}
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestTracer_ReturnsGlobalTracer(t *testing.T) {
	_, span := telemetry.Tracer("auracast/test").Start(context.Background(), "stage")
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
}

func TestMeter_ReturnsGlobalMeter(t *testing.T) {
	counter, err := telemetry.Meter("auracast/test").Int64Counter("rows")
	require.NoError(t, err)
	assert.NotNil(t, counter)
}
