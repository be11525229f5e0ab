package rtelemetry

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetGlobalConfig() {
	globalConfig = nil
	configOnce = sync.Once{}
}

func TestInitDisabled(t *testing.T) {
	resetGlobalConfig()
	os.Unsetenv("OTEL_ENABLED")

	shutdown, err := Init(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestEnabledReflectsInit(t *testing.T) {
	resetGlobalConfig()

	_, err := Init(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, Enabled())
}
