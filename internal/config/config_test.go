package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8084, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "data/sales_data.csv", cfg.Data.DatasetFile)
	assert.Equal(t, "csv", cfg.Data.DatasetFormat)
	assert.Equal(t, 114, cfg.Pipeline.MinWeeks)
	assert.Equal(t, 2021, cfg.Pipeline.ForecastYear)
	assert.Zero(t, cfg.Pipeline.Seed)
	assert.Zero(t, cfg.Summary.ReferenceYear)
	assert.Equal(t, []string{"http://localhost:8084"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, "none", cfg.Telemetry.TraceExporter)
	assert.True(t, cfg.Telemetry.MetricsEnabled)
	assert.Equal(t, "localhost:8084", cfg.Address())

	assert.Error(t, cfg.ValidateDashboard(), "reference year has no default")
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SALES_SERVER_PORT", "9090")
	t.Setenv("SALES_DATA_DATASET_FORMAT", "parquet")
	t.Setenv("SALES_PIPELINE_SEED", "42")
	t.Setenv("SALES_SUMMARY_REFERENCE_YEAR", "2020")
	t.Setenv("SALES_SECURITY_ALLOWED_ORIGINS", "http://a.test,http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "parquet", cfg.Data.DatasetFormat)
	assert.EqualValues(t, 42, cfg.Pipeline.Seed)
	assert.Equal(t, 2020, cfg.Summary.ReferenceYear)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Security.AllowedOrigins)
	assert.NoError(t, cfg.ValidateDashboard())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SALES_SUMMARY_REFERENCE_YEAR=2019\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("SALES_SUMMARY_REFERENCE_YEAR") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2019, cfg.Summary.ReferenceYear)
}

func TestLoad_FileFillsUnsetValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(ConfigFileEnv, writeYAML(t, `
server:
  port: 7000
  read_timeout: 5s
data:
  dataset_file: /srv/sales.parquet
  dataset_format: parquet
summary:
  reference_year: 2020
logger:
  level: debug
`))
	t.Setenv("SALES_LOGGER_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "/srv/sales.parquet", cfg.Data.DatasetFile)
	assert.Equal(t, "parquet", cfg.Data.DatasetFormat)
	assert.Equal(t, 2020, cfg.Summary.ReferenceYear)
	assert.Equal(t, "warn", cfg.Logger.Level, "environment wins over the file")
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout, "defaults survive for keys the file omits")
}

func TestLoad_FileSwitchesOff(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(ConfigFileEnv, writeYAML(t, `
security:
  enable_rate_limit: false
telemetry:
  metrics_enabled: false
`))

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Security.EnableRateLimit)
	assert.False(t, cfg.Telemetry.MetricsEnabled)

	t.Setenv("SALES_TELEMETRY_METRICS_ENABLED", "true")
	cfg, err = Load()
	require.NoError(t, err)
	assert.False(t, cfg.Security.EnableRateLimit)
	assert.True(t, cfg.Telemetry.MetricsEnabled, "environment wins over the file")
}

func TestLoad_FileWithoutSwitchesKeepsDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(ConfigFileEnv, writeYAML(t, "server:\n  port: 7000\n"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Security.EnableRateLimit)
	assert.True(t, cfg.Telemetry.MetricsEnabled)
}

func TestLoad_FileErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)

	t.Setenv(ConfigFileEnv, writeYAML(t, "server:\n  prot: 1\n"))
	_, err = Load()
	assert.Error(t, err, "unknown keys are rejected")
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SALES_SERVER_PORT", "not-a-port")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:    ServerConfig{Port: 8084, ReadTimeout: time.Second, WriteTimeout: time.Second},
			Data:      DataConfig{DatasetFile: "sales.csv", DatasetFormat: "csv", ScenarioFile: "s.xlsx"},
			Pipeline:  PipelineConfig{MinWeeks: 114},
			Summary:   SummaryConfig{ReferenceYear: 2020},
			Logger:    LoggerConfig{Level: "info", Format: "json"},
			Security:  SecurityConfig{RateLimitRPS: 1, RateLimitBurst: 1},
			Telemetry: TelemetryConfig{TraceExporter: "none"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "server port"},
		{"read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }, "read timeout"},
		{"write timeout", func(c *Config) { c.Server.WriteTimeout = 0 }, "write timeout"},
		{"dataset path", func(c *Config) { c.Data.DatasetFile = "" }, "dataset file"},
		{"dataset format", func(c *Config) { c.Data.DatasetFormat = "xlsx" }, "dataset format"},
		{"min weeks", func(c *Config) { c.Pipeline.MinWeeks = -1 }, "min weeks"},
		{"log level", func(c *Config) { c.Logger.Level = "trace" }, "log level"},
		{"log format", func(c *Config) { c.Logger.Format = "xml" }, "log format"},
		{"rps", func(c *Config) { c.Security.RateLimitRPS = 0 }, "RPS"},
		{"burst", func(c *Config) { c.Security.RateLimitBurst = 0 }, "burst"},
		{"exporter", func(c *Config) { c.Telemetry.TraceExporter = "jaeger" }, "trace exporter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateDashboard(t *testing.T) {
	cfg := Config{Data: DataConfig{ScenarioFile: "s.xlsx"}}
	assert.ErrorContains(t, cfg.ValidateDashboard(), "SALES_SUMMARY_REFERENCE_YEAR")

	cfg.Summary.ReferenceYear = 2020
	assert.NoError(t, cfg.ValidateDashboard())
}
