package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment variable, e.g. SALES_SERVER_PORT.
const EnvPrefix = "SALES"

// ConfigFileEnv names the optional YAML file. Values in the file apply to
// settings the environment leaves unset.
const ConfigFileEnv = EnvPrefix + "_CONFIG_FILE"

type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Data      DataConfig      `yaml:"data" envconfig:"DATA"`
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	Summary   SummaryConfig   `yaml:"summary" envconfig:"SUMMARY"`
	Logger    LoggerConfig    `yaml:"logger" envconfig:"LOGGER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST" default:"localhost"`
	Port            int           `yaml:"port" envconfig:"PORT" default:"8084"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

type DataConfig struct {
	RawFile       string `yaml:"raw_file" envconfig:"RAW_FILE" default:"data/weekly_raw_data.csv"`
	DatasetFile   string `yaml:"dataset_file" envconfig:"DATASET_FILE" default:"data/sales_data.csv"`
	DatasetFormat string `yaml:"dataset_format" envconfig:"DATASET_FORMAT" default:"csv"`
	ScenarioFile  string `yaml:"scenario_file" envconfig:"SCENARIO_FILE" default:"data/scenarios.xlsx"`
}

type PipelineConfig struct {
	MinWeeks     int `yaml:"min_weeks" envconfig:"MIN_WEEKS" default:"114"`
	ForecastYear int `yaml:"forecast_year" envconfig:"FORECAST_YEAR" default:"2021"`
	// Seed fixes the R2 draws. Zero leaves them unseeded.
	Seed uint64 `yaml:"seed" envconfig:"SEED" default:"0"`
}

// SummaryConfig has no defaults: the reference year must be chosen.
type SummaryConfig struct {
	ReferenceYear int `yaml:"reference_year" envconfig:"REFERENCE_YEAR"`
}

type LoggerConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format string `yaml:"format" envconfig:"FORMAT" default:"json"`
}

type SecurityConfig struct {
	EnableRateLimit bool     `yaml:"enable_rate_limit" envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RateLimitRPS    int      `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" default:"100"`
	RateLimitBurst  int      `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" default:"10"`
	AllowedOrigins  []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8084"`
	TrustedProxies  []string `yaml:"trusted_proxies" envconfig:"TRUSTED_PROXIES" default:"127.0.0.1"`
}

type TelemetryConfig struct {
	// TraceExporter is "stdout" or "none".
	TraceExporter  string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" default:"none"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads .env (if present), the environment and the optional YAML file,
// in increasing order of precedence for the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if path := os.Getenv(ConfigFileEnv); path != "" {
		fileCfg, switches, err := loadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
		mergeFile(&cfg, fileCfg)
		mergeSwitches(&cfg, switches)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// fileSwitches re-reads the boolean settings of the YAML file. A nil
// pointer means the key is absent, so an explicit false can still switch a
// default off.
type fileSwitches struct {
	Security struct {
		EnableRateLimit *bool `yaml:"enable_rate_limit"`
	} `yaml:"security"`
	Telemetry struct {
		MetricsEnabled *bool `yaml:"metrics_enabled"`
	} `yaml:"telemetry"`
}

func loadFromFile(path string) (*Config, *fileSwitches, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, nil, err
	}
	var switches fileSwitches
	if err := yaml.Unmarshal(data, &switches); err != nil {
		return nil, nil, err
	}
	return &cfg, &switches, nil
}

func envKey(parts ...string) string {
	return EnvPrefix + "_" + strings.Join(parts, "_")
}

// overlay copies a non-zero file value unless the environment set key.
func overlay[T comparable](dst *T, file T, key string) {
	var zero T
	if file == zero {
		return
	}
	if _, ok := os.LookupEnv(key); ok {
		return
	}
	*dst = file
}

func overlaySlice(dst *[]string, file []string, key string) {
	if len(file) == 0 {
		return
	}
	if _, ok := os.LookupEnv(key); ok {
		return
	}
	*dst = file
}

func overlayBool(dst *bool, file *bool, key string) {
	if file == nil {
		return
	}
	if _, ok := os.LookupEnv(key); ok {
		return
	}
	*dst = *file
}

func mergeSwitches(cfg *Config, file *fileSwitches) {
	overlayBool(&cfg.Security.EnableRateLimit, file.Security.EnableRateLimit, envKey("SECURITY", "RATE_LIMIT_ENABLED"))
	overlayBool(&cfg.Telemetry.MetricsEnabled, file.Telemetry.MetricsEnabled, envKey("TELEMETRY", "METRICS_ENABLED"))
}

func mergeFile(cfg, file *Config) {
	overlay(&cfg.Server.Host, file.Server.Host, envKey("SERVER", "HOST"))
	overlay(&cfg.Server.Port, file.Server.Port, envKey("SERVER", "PORT"))
	overlay(&cfg.Server.ReadTimeout, file.Server.ReadTimeout, envKey("SERVER", "READ_TIMEOUT"))
	overlay(&cfg.Server.WriteTimeout, file.Server.WriteTimeout, envKey("SERVER", "WRITE_TIMEOUT"))
	overlay(&cfg.Server.IdleTimeout, file.Server.IdleTimeout, envKey("SERVER", "IDLE_TIMEOUT"))
	overlay(&cfg.Server.ShutdownTimeout, file.Server.ShutdownTimeout, envKey("SERVER", "SHUTDOWN_TIMEOUT"))

	overlay(&cfg.Data.RawFile, file.Data.RawFile, envKey("DATA", "RAW_FILE"))
	overlay(&cfg.Data.DatasetFile, file.Data.DatasetFile, envKey("DATA", "DATASET_FILE"))
	overlay(&cfg.Data.DatasetFormat, file.Data.DatasetFormat, envKey("DATA", "DATASET_FORMAT"))
	overlay(&cfg.Data.ScenarioFile, file.Data.ScenarioFile, envKey("DATA", "SCENARIO_FILE"))

	overlay(&cfg.Pipeline.MinWeeks, file.Pipeline.MinWeeks, envKey("PIPELINE", "MIN_WEEKS"))
	overlay(&cfg.Pipeline.ForecastYear, file.Pipeline.ForecastYear, envKey("PIPELINE", "FORECAST_YEAR"))
	overlay(&cfg.Pipeline.Seed, file.Pipeline.Seed, envKey("PIPELINE", "SEED"))

	overlay(&cfg.Summary.ReferenceYear, file.Summary.ReferenceYear, envKey("SUMMARY", "REFERENCE_YEAR"))

	overlay(&cfg.Logger.Level, file.Logger.Level, envKey("LOGGER", "LEVEL"))
	overlay(&cfg.Logger.Format, file.Logger.Format, envKey("LOGGER", "FORMAT"))

	overlay(&cfg.Security.RateLimitRPS, file.Security.RateLimitRPS, envKey("SECURITY", "RATE_LIMIT_RPS"))
	overlay(&cfg.Security.RateLimitBurst, file.Security.RateLimitBurst, envKey("SECURITY", "RATE_LIMIT_BURST"))
	overlaySlice(&cfg.Security.AllowedOrigins, file.Security.AllowedOrigins, envKey("SECURITY", "ALLOWED_ORIGINS"))
	overlaySlice(&cfg.Security.TrustedProxies, file.Security.TrustedProxies, envKey("SECURITY", "TRUSTED_PROXIES"))

	overlay(&cfg.Telemetry.TraceExporter, file.Telemetry.TraceExporter, envKey("TELEMETRY", "TRACE_EXPORTER"))
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Data.DatasetFile == "" {
		return fmt.Errorf("dataset file path cannot be empty")
	}

	validFormats := []string{"csv", "parquet"}
	if !slices.Contains(validFormats, c.Data.DatasetFormat) {
		return fmt.Errorf("invalid dataset format %q, must be one of: %s", c.Data.DatasetFormat, strings.Join(validFormats, ", "))
	}

	if c.Pipeline.MinWeeks < 0 {
		return fmt.Errorf("pipeline min weeks cannot be negative")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !slices.Contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	validExporters := []string{"stdout", "none"}
	if !slices.Contains(validExporters, c.Telemetry.TraceExporter) {
		return fmt.Errorf("invalid trace exporter %q, must be one of: %s", c.Telemetry.TraceExporter, strings.Join(validExporters, ", "))
	}

	return nil
}

// ValidateDashboard checks the settings only the web server needs.
func (c *Config) ValidateDashboard() error {
	if c.Summary.ReferenceYear <= 0 {
		return fmt.Errorf("%s is required", envKey("SUMMARY", "REFERENCE_YEAR"))
	}
	if c.Data.ScenarioFile == "" {
		return fmt.Errorf("scenario file path cannot be empty")
	}
	return nil
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
