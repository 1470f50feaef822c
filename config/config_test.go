package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solforge/rpc-router/services"
	"github.com/solforge/rpc-router/services/providers"
)

const validYAML = `
environment: test
server:
  host: 127.0.0.1
  port: 9000
routing:
  policy: health_first
  health_check_interval: 5s
  health_check_timeout: 2s
  max_error_rate: 0.3
  max_latency_ms: 1500
  circuit_breaker_threshold: 4
  circuit_breaker_timeout: 20s
  bundle_success_rate_threshold: 0.75
providers:
  helius:
    kind: helius
    endpoint: https://mainnet.helius-rpc.com
    priority: 0
    features: [fee_estimate, shredstream]
  jito:
    kind: jito
    endpoint: https://mainnet.block-engine.jito.wtf
    ws_endpoint: wss://mainnet.block-engine.jito.wtf/ws
    priority: 1
    features: [bundles, shredstream]
  solana:
    kind: solana
    endpoint: https://api.mainnet-beta.solana.com
    priority: 5
    requests_per_second: 10
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "router.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address())
	assert.Equal(t, 5*time.Second, cfg.Routing.HealthCheckInterval.Std())
	assert.Equal(t, 4, cfg.Routing.CircuitBreakerThreshold)
	assert.InDelta(t, 0.75, cfg.Routing.BundleSuccessRateThreshold, 0.001)
	assert.Len(t, cfg.Providers, 3)

	helius := cfg.Providers["helius"]
	assert.True(t, helius.Enabled())
	features, err := helius.FeatureSet()
	require.NoError(t, err)
	assert.True(t, features.Has(providers.FeatureRawCall), "raw call is always implied")
	assert.True(t, features.Has(providers.FeatureFeeEstimate))
	assert.False(t, features.Has(providers.FeatureBundles))

	solana := cfg.Providers["solana"]
	assert.Equal(t, 10, solana.RequestsPerSecond)
	assert.Equal(t, 5, solana.Priority)
}

func TestLoadDefaultsApplied(t *testing.T) {
	minimal := `
providers:
  solana:
    kind: solana
    endpoint: https://api.mainnet-beta.solana.com
`
	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, "health_first", cfg.Routing.Policy)
	assert.Equal(t, 10*time.Second, cfg.Routing.HealthCheckInterval.Std())
	assert.Equal(t, 5, cfg.Routing.CircuitBreakerThreshold)
	assert.Equal(t, 8899, cfg.Server.Port)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoadEmptyProvidersFails(t *testing.T) {
	_, err := Load(writeConfig(t, `
providers: {}
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrConfig)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/router.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrConfig)
}

func TestLoadMalformedFields(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing endpoint",
			yaml: `
providers:
  solana:
    kind: solana
`,
		},
		{
			name: "unknown kind",
			yaml: `
providers:
  mystery:
    kind: quantum
    endpoint: https://example.com
`,
		},
		{
			name: "bad endpoint url",
			yaml: `
providers:
  solana:
    kind: solana
    endpoint: "not a url"
`,
		},
		{
			name: "unknown feature",
			yaml: `
providers:
  solana:
    kind: solana
    endpoint: https://api.mainnet-beta.solana.com
    features: [teleport]
`,
		},
		{
			name: "bad duration",
			yaml: `
routing:
  health_check_interval: soon
providers:
  solana:
    kind: solana
    endpoint: https://api.mainnet-beta.solana.com
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)

			var routerErr *services.RouterError
			require.True(t, errors.As(err, &routerErr))
			assert.Equal(t, services.ErrorTypeConfig, routerErr.Type)
		})
	}
}

func TestEnvOverridesAPIKey(t *testing.T) {
	t.Setenv("HELIUS_API_KEY", "secret-from-env")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "secret-from-env", cfg.Providers["helius"].APIKey)
	assert.Empty(t, cfg.Providers["jito"].APIKey, "other providers untouched")
}

func TestEnvOverridesRoutingPolicy(t *testing.T) {
	t.Setenv("ROUTING_POLICY", "round_robin")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "round_robin", cfg.Routing.Policy)
}

func TestDisabledProviderToggle(t *testing.T) {
	yaml := `
providers:
  solana:
    kind: solana
    endpoint: https://api.mainnet-beta.solana.com
    disabled: true
`
	cfg, err := Load(writeConfig(t, yaml))
	require.NoError(t, err)
	assert.False(t, cfg.Providers["solana"].Enabled())
}
