// Package config loads the ETL configuration from a YAML file with
// environment variable overrides. Credentials for object storage are never
// injected into the process environment by this package; whatever the
// operator supplies is passed through to the storage drivers as opaque
// configuration.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface of the ETL.
type Config struct {
	Input   InputConfig   `yaml:"input"`
	Output  OutputConfig  `yaml:"output"`
	ETL     ETLConfig     `yaml:"etl"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// InputConfig locates the raw JSON event sources.
type InputConfig struct {
	Backend    string `yaml:"backend"` // "local" | "s3" | "gcs"
	LocalDir   string `yaml:"local_dir"`
	Bucket     string `yaml:"bucket"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Region   string `yaml:"s3_region"`

	// Collection prefixes under the input root.
	SongPrefix string `yaml:"song_prefix"`
	LogPrefix  string `yaml:"log_prefix"`
}

// OutputConfig locates the star-schema destination.
type OutputConfig struct {
	Backend     string `yaml:"backend"` // "local" | "s3" | "gcs"
	LocalDir    string `yaml:"local_dir"`
	Bucket      string `yaml:"bucket"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3Region    string `yaml:"s3_region"`
	Prefix      string `yaml:"prefix"`
	Compression string `yaml:"compression"` // "snappy" | "zstd" | "gzip" | "none"
}

// ETLConfig tunes the transform stages.
type ETLConfig struct {
	Workers int `yaml:"workers"` // decode worker pool size

	// Strict rejects records with any field coercion failure instead of
	// nulling the field. Default is permissive.
	Strict bool `yaml:"strict"`

	// Timezone for timestamp decomposition, IANA name. Default UTC.
	Timezone string `yaml:"timezone"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Format string `yaml:"format"` // "json" | "text"
	Level  string `yaml:"level"`  // "debug" | "info" | "warn" | "error"
}

// MetricsConfig configures the optional Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // e.g. ":9090"
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Input: InputConfig{
			Backend:    "local",
			LocalDir:   "./data",
			SongPrefix: "song_data/",
			LogPrefix:  "log_data/",
		},
		Output: OutputConfig{
			Backend:     "local",
			LocalDir:    "./lake",
			Compression: "snappy",
		},
		ETL: ETLConfig{
			Workers:  4,
			Timezone: "UTC",
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
	}
}

// Load reads configuration from path (optional), then applies environment
// overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MustLoad loads the configuration or exits.
func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("[config] %v", err)
	}
	return cfg
}

// Validate checks the configuration for obvious mistakes before any pipeline
// runs; a bad configuration is fatal up front.
func (c Config) Validate() error {
	switch c.Input.Backend {
	case "local":
		if c.Input.LocalDir == "" {
			return fmt.Errorf("input.local_dir required for local backend")
		}
	case "s3", "gcs":
		if c.Input.Bucket == "" {
			return fmt.Errorf("input.bucket required for %s backend", c.Input.Backend)
		}
	default:
		return fmt.Errorf("unknown input backend: %s", c.Input.Backend)
	}

	switch c.Output.Backend {
	case "local":
		if c.Output.LocalDir == "" {
			return fmt.Errorf("output.local_dir required for local backend")
		}
	case "s3", "gcs":
		if c.Output.Bucket == "" {
			return fmt.Errorf("output.bucket required for %s backend", c.Output.Backend)
		}
	default:
		return fmt.Errorf("unknown output backend: %s", c.Output.Backend)
	}

	if c.ETL.Workers < 1 {
		return fmt.Errorf("etl.workers must be at least 1")
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Input.Backend = getenvDefault("INPUT_BACKEND", cfg.Input.Backend)
	cfg.Input.LocalDir = getenvDefault("INPUT_DIR", cfg.Input.LocalDir)
	cfg.Input.Bucket = getenvDefault("INPUT_BUCKET", cfg.Input.Bucket)
	cfg.Output.Backend = getenvDefault("OUTPUT_BACKEND", cfg.Output.Backend)
	cfg.Output.LocalDir = getenvDefault("OUTPUT_DIR", cfg.Output.LocalDir)
	cfg.Output.Bucket = getenvDefault("OUTPUT_BUCKET", cfg.Output.Bucket)
	cfg.Output.Prefix = getenvDefault("OUTPUT_PREFIX", cfg.Output.Prefix)
	cfg.Logging.Format = getenvDefault("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.Level = getenvDefault("LOG_LEVEL", cfg.Logging.Level)

	if v := os.Getenv("ETL_WORKERS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.ETL.Workers = parsed
		}
	}
	if v := os.Getenv("ETL_STRICT"); v != "" {
		cfg.ETL.Strict = v == "true"
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true"
	}
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
