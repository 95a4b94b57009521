package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitTracing_DisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{ServiceName: "coursehub"}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracing_Stdout(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{ServiceName: "coursehub", Mode: "stdout"}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestTracingConfig_Enabled(t *testing.T) {
	assert.False(t, TracingConfig{}.Enabled())
	assert.True(t, TracingConfig{Endpoint: "localhost:4318"}.Enabled())
	assert.True(t, TracingConfig{Mode: "otlp"}.Enabled())
}
