package rtelemetry

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/replistore/crdb/pkg/rconfig"
)

func clearOtelEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"OTEL_ENABLED", "OTEL_SERVICE_NAME", "OTEL_SERVICE_VERSION",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_PROTOCOL",
		"OTEL_EXPORTER_OTLP_HEADERS", "OTEL_EXPORTER_OTLP_INSECURE",
		"OTEL_TRACES_SAMPLER", "OTEL_TRACES_SAMPLER_ARG", "OTEL_RESOURCE_ATTRIBUTES",
	}
	for _, k := range keys {
		old := os.Getenv(k)
		os.Unsetenv(k)
		t.Cleanup(func() { os.Setenv(k, old) })
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearOtelEnv(t)

	cfg := LoadFromEnv()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "crdb-coordinator", cfg.ServiceName)
	assert.Equal(t, "unknown", cfg.ServiceVersion)
	assert.Equal(t, "grpc", cfg.Protocol)
}

func TestLoadFromEnvHeaders(t *testing.T) {
	clearOtelEnv(t)
	os.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "Authorization=Bearer token123,X-Custom=value")

	cfg := LoadFromEnv()
	assert.Equal(t, "Bearer token123", cfg.Headers["Authorization"])
	assert.Equal(t, "value", cfg.Headers["X-Custom"])
}

func TestLoadFromRconfigOverridesEnabled(t *testing.T) {
	clearOtelEnv(t)

	cfg := LoadFromRconfig(rconfig.TelemetryConfig{Enabled: true, ServiceName: "my-coordinator"})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "my-coordinator", cfg.ServiceName)
}

func TestParseKeyValuePairs(t *testing.T) {
	assert.Equal(t, map[string]string{}, parseKeyValuePairs(""))
	assert.Equal(t, map[string]string{"key": "value"}, parseKeyValuePairs("key=value"))
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, parseKeyValuePairs("a=1,b=2"))
	assert.Equal(t, map[string]string{"Authorization": "Bearer token=abc"}, parseKeyValuePairs("Authorization=Bearer token=abc"))
}
