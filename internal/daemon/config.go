// Package daemon holds process-level configuration for the aaas server.
//
// Configuration is layered: DefaultConfig, then the TOML file, then
// AAAS_* environment variables (e.g. AAAS_API_PORT, AAAS_ORACLE_SOURCE_URL).
package daemon

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AAAS_"

// Config is the full daemon configuration.
type Config struct {
	API       APIConfig       `toml:"api" envPrefix:"API_"`
	Storage   StorageConfig   `toml:"storage" envPrefix:"STORAGE_"`
	Token     TokenConfig     `toml:"token" envPrefix:"TOKEN_"`
	Oracle    OracleConfig    `toml:"oracle" envPrefix:"ORACLE_"`
	Telemetry TelemetryConfig `toml:"telemetry" envPrefix:"TELEMETRY_"`
	Log       LogConfig       `toml:"log" envPrefix:"LOG_"`
}

// APIConfig controls the HTTP server.
type APIConfig struct {
	Host           string `toml:"host" env:"HOST"`
	Port           int    `toml:"port" env:"PORT"`
	RequestTimeout string `toml:"request_timeout" env:"REQUEST_TIMEOUT"`
	Metrics        bool   `toml:"metrics" env:"METRICS"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Dir string `toml:"dir" env:"DIR"` // empty means ~/.aaas
}

// TokenConfig describes the custody token.
type TokenConfig struct {
	Decimals uint8 `toml:"decimals" env:"DECIMALS"`
}

// OracleConfig controls the automated-metric oracle.
type OracleConfig struct {
	Enabled       bool     `toml:"enabled" env:"ENABLED"`
	Operator      string   `toml:"operator" env:"OPERATOR"`
	SourceURL     string   `toml:"source_url" env:"SOURCE_URL"`
	Metrics       []string `toml:"metrics" env:"METRICS" envSeparator:","`
	Interval      string   `toml:"interval" env:"INTERVAL"`
	Timeout       string   `toml:"timeout" env:"TIMEOUT"`
	MaxConcurrent int      `toml:"max_concurrent" env:"MAX_CONCURRENT"`
	Retries       int      `toml:"retries" env:"RETRIES"`
}

// TelemetryConfig controls trace export.
type TelemetryConfig struct {
	ServiceName string  `toml:"service_name" env:"SERVICE_NAME"`
	Exporter    string  `toml:"exporter" env:"EXPORTER"` // none, stdout, otlp
	Endpoint    string  `toml:"endpoint" env:"ENDPOINT"`
	SampleRatio float64 `toml:"sample_ratio" env:"SAMPLE_RATIO"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `toml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format string `toml:"format" env:"FORMAT"` // text, json
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8420,
			RequestTimeout: "30s",
			Metrics:        true,
		},
		Token: TokenConfig{Decimals: 6},
		Oracle: OracleConfig{
			Metrics:       []string{"steps"},
			Interval:      "1m",
			Timeout:       "10s",
			MaxConcurrent: 4,
			Retries:       3,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "aaas",
			Exporter:    "none",
			SampleRatio: 1.0,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error; unknown keys in it are.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		default:
			if undecoded := meta.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, len(undecoded))
				for i, k := range undecoded {
					keys[i] = k.String()
				}
				return cfg, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
			}
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values the server cannot start without.
func (c Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.Token.Decimals > 18 {
		return fmt.Errorf("token.decimals %d exceeds 18", c.Token.Decimals)
	}
	for name, raw := range map[string]string{
		"api.request_timeout": c.API.RequestTimeout,
		"oracle.interval":     c.Oracle.Interval,
		"oracle.timeout":      c.Oracle.Timeout,
	} {
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			return fmt.Errorf("%s: invalid duration %q", name, raw)
		}
	}
	if c.Oracle.Enabled {
		if c.Oracle.Operator == "" {
			return errors.New("oracle.operator is required when the oracle is enabled")
		}
		if c.Oracle.SourceURL == "" {
			return errors.New("oracle.source_url is required when the oracle is enabled")
		}
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio %v out of [0,1]", c.Telemetry.SampleRatio)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Write encodes the configuration as TOML.
func (c Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// ─── Accessors ──────────────────────────────────────────────────────────────

// Addr returns the API listen address.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RequestTimeoutDuration parses RequestTimeout (default 30s).
func (c APIConfig) RequestTimeoutDuration() time.Duration {
	return parseDuration(c.RequestTimeout, 30*time.Second)
}

// IntervalDuration parses Interval (default 1m).
func (c OracleConfig) IntervalDuration() time.Duration {
	return parseDuration(c.Interval, time.Minute)
}

// TimeoutDuration parses Timeout (default 10s).
func (c OracleConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

// DataDir returns the storage directory, defaulting to ~/.aaas.
func (c StorageConfig) DataDir() (string, error) {
	if c.Dir != "" {
		return c.Dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".aaas"), nil
}

// DefaultPath is the config file read when none is given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "aaas.toml"
	}
	return filepath.Join(home, ".aaas", "config.toml")
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// ─── Logging ────────────────────────────────────────────────────────────────

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level: unknown level %q", s)
	}
}

// NewLogger builds the process logger writing to w.
func NewLogger(c LogConfig, w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Level)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
