package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/solforge/rpc-router/services"
	"github.com/solforge/rpc-router/services/providers"
)

// Duration wraps time.Duration with YAML support for values like "30s"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the complete router configuration. It is immutable
// after construction; changing the provider set requires a restart.
type Config struct {
	Environment   string                    `yaml:"environment"`
	Server        ServerConfig              `yaml:"server"`
	Routing       RoutingConfig             `yaml:"routing"`
	Providers     map[string]ProviderConfig `yaml:"providers" validate:"required,min=1,dive"`
	Observability ObservabilityConfig       `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port" validate:"gt=0,lte=65535"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// RoutingConfig holds the routing block
type RoutingConfig struct {
	// Policy selects the routing strategy; empty means health-first
	Policy string `yaml:"policy"`

	// HealthCheckInterval is the per-provider probe cycle period
	HealthCheckInterval Duration `yaml:"health_check_interval"`

	// HealthCheckTimeout bounds each individual probe
	HealthCheckTimeout Duration `yaml:"health_check_timeout"`

	// MaxErrorRate above which a provider is unhealthy
	MaxErrorRate float64 `yaml:"max_error_rate" validate:"gte=0,lte=1"`

	// MaxLatencyMs above which a provider is unhealthy
	MaxLatencyMs float64 `yaml:"max_latency_ms"`

	// CircuitBreakerThreshold is the consecutive-failure count opening a circuit
	CircuitBreakerThreshold int `yaml:"circuit_breaker_threshold"`

	// CircuitBreakerTimeout is how long a circuit stays open
	CircuitBreakerTimeout Duration `yaml:"circuit_breaker_timeout"`

	// LatencyThresholdMs classifies a provider as fast-path
	LatencyThresholdMs float64 `yaml:"latency_threshold_ms"`

	// BundleSuccessRateThreshold below which the rolling bundle rate is
	// flagged as degraded
	BundleSuccessRateThreshold float64 `yaml:"bundle_success_rate_threshold" validate:"gte=0,lte=1"`

	// RequestTimeout is the default deadline for top-level operations
	RequestTimeout Duration `yaml:"request_timeout"`

	// FeeCacheTTL caches fee estimates per urgency; zero disables the cache
	FeeCacheTTL Duration `yaml:"fee_cache_ttl"`
}

// ProviderConfig describes one upstream backend
type ProviderConfig struct {
	// Kind selects the adapter implementation
	Kind string `yaml:"kind" validate:"required,oneof=helius jito solana"`

	// Endpoint is the HTTP JSON-RPC URL
	Endpoint string `yaml:"endpoint" validate:"required,url"`

	// WSEndpoint is the websocket URL for shredstream-capable backends
	WSEndpoint string `yaml:"ws_endpoint"`

	// APIKey authenticates against the backend, when required
	APIKey string `yaml:"api_key"`

	// Disabled removes the provider from routing without dropping it from
	// the registry; health probing continues
	Disabled bool `yaml:"disabled"`

	// Priority orders providers; lower is preferred
	Priority int `yaml:"priority"`

	// Features the provider supports beyond raw calls
	Features []string `yaml:"features"`

	// RequestsPerSecond caps outbound pacing; zero disables it
	RequestsPerSecond int `yaml:"requests_per_second"`

	// Timeout bounds each HTTP request to this backend
	Timeout Duration `yaml:"timeout"`
}

// Enabled reports the operator toggle
func (p ProviderConfig) Enabled() bool {
	return !p.Disabled
}

// FeatureSet parses the configured feature names
func (p ProviderConfig) FeatureSet() (providers.FeatureSet, error) {
	features := providers.NewFeatureSet(providers.FeatureRawCall)
	for _, name := range p.Features {
		f, err := providers.ParseFeature(name)
		if err != nil {
			return nil, err
		}
		features[f] = true
	}
	return features, nil
}

// ObservabilityConfig holds logging and metrics configuration
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"` // json or console
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// Load builds configuration from a YAML file plus environment overrides.
// Construction fails with a config error when the provider mapping is empty
// or a required field is missing or malformed.
func Load(path string) (*Config, error) {
	// Load .env if present; ignore absence
	_ = godotenv.Load(".env")

	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, services.NewConfigError("failed to read config file", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, services.NewConfigError("failed to parse config file", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns the baseline configuration before file and env merging
func defaults() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8899,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Routing: RoutingConfig{
			Policy:                     "health_first",
			HealthCheckInterval:        Duration(10 * time.Second),
			HealthCheckTimeout:         Duration(3 * time.Second),
			MaxErrorRate:               0.5,
			MaxLatencyMs:               2000,
			CircuitBreakerThreshold:    5,
			CircuitBreakerTimeout:      Duration(30 * time.Second),
			LatencyThresholdMs:         150,
			BundleSuccessRateThreshold: 0.8,
			RequestTimeout:             Duration(15 * time.Second),
			FeeCacheTTL:                Duration(2 * time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}

// applyEnvOverrides merges environment variables over the file values
func applyEnvOverrides(cfg *Config) {
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsInt("SERVER_PORT", cfg.Server.Port)
	cfg.Routing.Policy = getEnv("ROUTING_POLICY", cfg.Routing.Policy)
	cfg.Observability.LogLevel = getEnv("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = getEnv("LOG_FORMAT", cfg.Observability.LogFormat)
	cfg.Observability.MetricsEnabled = getEnvAsBool("METRICS_ENABLED", cfg.Observability.MetricsEnabled)

	// Per-provider API keys: HELIUS_API_KEY overrides providers.helius.api_key
	for name, provider := range cfg.Providers {
		if key := os.Getenv(envKeyFor(name)); key != "" {
			provider.APIKey = key
			cfg.Providers[name] = provider
		}
	}
}

// envKeyFor maps a provider name to its API key variable (e.g. HELIUS_API_KEY)
func envKeyFor(name string) string {
	upper := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
			upper = append(upper, c-'a'+'A')
		case c == '-' || c == '.':
			upper = append(upper, '_')
		default:
			upper = append(upper, c)
		}
	}
	return string(upper) + "_API_KEY"
}

// Validate checks structural constraints and field values
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return services.NewConfigError("provider mapping cannot be empty", nil)
	}

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return services.NewConfigError("config validation failed", err)
	}

	if c.Routing.HealthCheckInterval.Std() <= 0 {
		return services.NewConfigError("health_check_interval must be positive", nil)
	}
	if c.Routing.HealthCheckTimeout.Std() <= 0 {
		return services.NewConfigError("health_check_timeout must be positive", nil)
	}
	if c.Routing.CircuitBreakerThreshold <= 0 {
		return services.NewConfigError("circuit_breaker_threshold must be positive", nil)
	}
	if c.Routing.CircuitBreakerTimeout.Std() <= 0 {
		return services.NewConfigError("circuit_breaker_timeout must be positive", nil)
	}
	if c.Routing.MaxLatencyMs <= 0 {
		return services.NewConfigError("max_latency_ms must be positive", nil)
	}

	for name, provider := range c.Providers {
		if _, err := provider.FeatureSet(); err != nil {
			return services.NewConfigError(fmt.Sprintf("provider %s: invalid features", name), err)
		}
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
