// Package config loads video-screen settings. Precedence, lowest first:
// built-in defaults, the YAML file, VIDEO_SCREEN_* environment variables,
// then command-line flags (applied by the caller).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VIDEO_SCREEN_"

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreDynamo = "dynamodb"
	StoreNone   = "none"
)

// Config is the full set of settings, read once per command.
type Config struct {
	EnableAI       bool          `yaml:"enable_ai"`
	Provider       string        `yaml:"provider"`
	Model          string        `yaml:"model"`
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	APIKeySSMParam string        `yaml:"api_key_ssm_param"`
	Sensitivity    float64       `yaml:"sensitivity"`
	OutputDir      string        `yaml:"output_dir"`
	UseVideoDir    bool          `yaml:"use_video_dir"`
	Concurrency    int           `yaml:"concurrency"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	LockPort       int           `yaml:"lock_port"`
	LogLevel       string        `yaml:"log_level"`
	Metrics        bool          `yaml:"metrics"`
	Store          StoreConfig   `yaml:"store"`
	Report         ReportConfig  `yaml:"report"`
}

// StoreConfig selects where session history is kept.
type StoreConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	DynamoTable string `yaml:"dynamo_table"`
}

// ReportConfig controls report export.
type ReportConfig struct {
	Bundle       bool   `yaml:"bundle"`
	S3Bucket     string `yaml:"s3_bucket"`
	S3Prefix     string `yaml:"s3_prefix"`
	ThumbnailMax int    `yaml:"thumbnail_max"`
}

// Dir returns ~/.video-screen, falling back to the working directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".video-screen"
	}
	return filepath.Join(home, ".video-screen")
}

// DefaultPath is the config file read when --config is not given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		EnableAI:       true,
		Provider:       "zhipu",
		Sensitivity:    0.3,
		UseVideoDir:    true,
		Concurrency:    2,
		MaxAttempts:    3,
		RetryBaseDelay: 2 * time.Second,
		PollInterval:   200 * time.Millisecond,
		LockPort:       52525,
		LogLevel:       "info",
		Store: StoreConfig{
			Driver:     StoreSQLite,
			SQLitePath: filepath.Join(Dir(), "history.db"),
		},
		Report: ReportConfig{
			ThumbnailMax: 480,
		},
	}
}

// Load applies the YAML file at path and environment overrides on top of
// the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"PROVIDER":          &c.Provider,
		"MODEL":             &c.Model,
		"BASE_URL":          &c.BaseURL,
		"API_KEY_SSM_PARAM": &c.APIKeySSMParam,
		"OUTPUT_DIR":        &c.OutputDir,
		"LOG_LEVEL":         &c.LogLevel,
		"STORE_DRIVER":      &c.Store.Driver,
		"SQLITE_PATH":       &c.Store.SQLitePath,
		"DYNAMO_TABLE":      &c.Store.DynamoTable,
		"S3_BUCKET":         &c.Report.S3Bucket,
		"S3_PREFIX":         &c.Report.S3Prefix,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"ENABLE_AI":     &c.EnableAI,
		"USE_VIDEO_DIR": &c.UseVideoDir,
		"METRICS":       &c.Metrics,
		"REPORT_BUNDLE": &c.Report.Bundle,
	}
	for name, dst := range bools {
		if v, ok := lookup(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, name, v, err)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"CONCURRENCY":   &c.Concurrency,
		"MAX_ATTEMPTS":  &c.MaxAttempts,
		"LOCK_PORT":     &c.LockPort,
		"THUMBNAIL_MAX": &c.Report.ThumbnailMax,
	}
	for name, dst := range ints {
		if v, ok := lookup(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, name, v, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"RETRY_BASE_DELAY": &c.RetryBaseDelay,
		"POLL_INTERVAL":    &c.PollInterval,
	}
	for name, dst := range durations {
		if v, ok := lookup(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, name, v, err)
			}
			*dst = d
		}
	}

	if v, ok := lookup("SENSITIVITY"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sSENSITIVITY=%q: %w", EnvPrefix, v, err)
		}
		c.Sensitivity = f
	}
	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Validate checks ranges and cross-field requirements.
func (c Config) Validate() error {
	var errs []error
	if c.Sensitivity < 0.1 || c.Sensitivity > 0.9 {
		errs = append(errs, fmt.Errorf("sensitivity must be between 0.1 and 0.9, got %.2f", c.Sensitivity))
	}
	if c.Concurrency < 1 || c.Concurrency > 16 {
		errs = append(errs, fmt.Errorf("concurrency must be between 1 and 16, got %d", c.Concurrency))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts))
	}
	if c.RetryBaseDelay < 0 {
		errs = append(errs, fmt.Errorf("retry_base_delay must not be negative"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive"))
	}
	if c.LockPort < 0 || c.LockPort > 65535 {
		errs = append(errs, fmt.Errorf("lock_port out of range: %d", c.LockPort))
	}
	if !c.UseVideoDir && c.OutputDir == "" {
		errs = append(errs, fmt.Errorf("output_dir is required when use_video_dir is false"))
	}
	switch c.Store.Driver {
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, fmt.Errorf("store.sqlite_path is required for the sqlite driver"))
		}
	case StoreDynamo:
		if c.Store.DynamoTable == "" {
			errs = append(errs, fmt.Errorf("store.dynamo_table is required for the dynamodb driver"))
		}
	case StoreNone, "":
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error", "":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}
