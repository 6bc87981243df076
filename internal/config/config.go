package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Guard     GuardConfig     `yaml:"guard" envconfig:"GUARD"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// ServerConfig contains HTTP server configuration of the guarded host
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"min=1s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"min=1s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" validate:"min=1s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"min=1s"`
}

// GuardConfig contains the verification and drift detection settings
type GuardConfig struct {
	// AuthorityURL is the verification endpoint; the listening port is
	// appended as ?port=N.
	AuthorityURL string `yaml:"authority_url" envconfig:"AUTHORITY_URL" validate:"required,url"`
	// ReportedPort overrides the port sent to the authority. Zero means
	// Server.Port.
	ReportedPort     int           `yaml:"reported_port" envconfig:"REPORTED_PORT" validate:"min=0,max=65535"`
	CheckInterval    time.Duration `yaml:"check_interval" envconfig:"CHECK_INTERVAL" validate:"min=1s"`
	MaxMismatchCount int           `yaml:"max_mismatch_count" envconfig:"MAX_MISMATCH_COUNT" validate:"min=1"`
	// ResetOnCleanTick also clears the mismatch counter on ticks where no
	// probe produced an address. Matching ticks always clear it.
	ResetOnCleanTick bool          `yaml:"reset_on_clean_tick" envconfig:"RESET_ON_CLEAN_TICK"`
	ProbeServices    []string      `yaml:"probe_services" envconfig:"PROBE_SERVICES" validate:"min=1,dive,url"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" envconfig:"CONNECT_TIMEOUT" validate:"min=100ms"`
	ReadTimeout      time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"min=100ms"`
	// PinnedKeys are hex SHA-256 SPKI hashes accepted for the authority host.
	PinnedKeys []string `yaml:"pinned_keys" envconfig:"PINNED_KEYS" validate:"dive,hexadecimal,len=64"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	EnableMetrics  bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	EnableTracing  bool    `yaml:"enable_tracing" envconfig:"ENABLE_TRACING"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"min=0,max=1"`
}

// RateLimitConfig contains rate limiting configuration for the status API
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gt=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"min=1"`
}

// Load builds the configuration from defaults, the optional config file and
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom is like Load but reads the YAML file at path. An empty path skips
// the file layer.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// normalize fixes up values that are accepted loosely
func (c *Config) normalize() {
	c.Guard.AuthorityURL = strings.TrimSpace(c.Guard.AuthorityURL)
	for i, svc := range c.Guard.ProbeServices {
		c.Guard.ProbeServices[i] = strings.TrimSpace(svc)
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Output = strings.ToLower(c.Logging.Output)

	// Always JSON
	c.Logging.Format = DefaultLogFormat
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = DefaultLogFile
	}
}

// Validate checks the configuration against its struct tags
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return err
	}
	return nil
}

// HostPort returns the port reported to the verification authority
func (c *Config) HostPort() int {
	if c.Guard.ReportedPort != 0 {
		return c.Guard.ReportedPort
	}
	return c.Server.Port
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG_FILE"); p != "" {
		return p
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // env vars only
}

// Default returns default configuration. The authority URL has no default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultServerPort,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Guard: GuardConfig{
			CheckInterval:    DefaultCheckInterval,
			MaxMismatchCount: DefaultMaxMismatchCount,
			ResetOnCleanTick: DefaultResetOnCleanTick,
			ProbeServices:    DefaultProbeServices(),
			ConnectTimeout:   DefaultConnectTimeout,
			ReadTimeout:      DefaultReadTimeout,
		},
		Logging: LoggingConfig{
			Level:    DefaultLogLevel,
			Format:   DefaultLogFormat,
			Output:   "console",
			FilePath: DefaultLogFile,
		},
		Telemetry: TelemetryConfig{
			Environment:    "development",
			EnableMetrics:  true,
			EnableTracing:  false,
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     20,
			Burst:   10,
		},
	}
}
