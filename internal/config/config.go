package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	rchttp "github.com/ligustah/rangecheck/internal/http"
	"github.com/ligustah/rangecheck/internal/progress"
	"github.com/ligustah/rangecheck/internal/retry"
)

// Config defines configuration for the rangecheck CLI.
type Config struct {
	URL           string        `yaml:"url"`
	Object        string        `yaml:"object"`
	File          string        `yaml:"file"`
	Size          int64         `yaml:"size"`
	BlockSize     int64         `yaml:"block_size"`
	Workers       int           `yaml:"workers"`
	Start         int64         `yaml:"start"`
	End           int64         `yaml:"end"`
	RangeHeader   string        `yaml:"range_header"`
	Timeout       time.Duration `yaml:"timeout"`
	Report        string        `yaml:"report"`
	ReportKey     string        `yaml:"report_key"`
	Resume        bool          `yaml:"resume"`
	SkipSizeCheck bool          `yaml:"skip_size_check"`
	Progress      bool          `yaml:"progress"`
	Retry         RetryConfig   `yaml:"retry"`
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
	Policy     string        `yaml:"policy"`
	Jitter     bool          `yaml:"jitter"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		BlockSize:   32 * 1024 * 1024, // 32MiB
		Workers:     64,
		RangeHeader: rchttp.HeaderRange,
		Timeout:     5 * time.Minute,
		Retry: RetryConfig{
			Attempts:   5,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
			Policy:     string(retry.Linear),
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
type yamlConfig struct {
	URL           string          `yaml:"url"`
	Object        string          `yaml:"object"`
	File          string          `yaml:"file"`
	Size          string          `yaml:"size"`
	BlockSize     string          `yaml:"block_size"`
	Workers       int             `yaml:"workers"`
	Start         string          `yaml:"start"`
	End           string          `yaml:"end"`
	RangeHeader   string          `yaml:"range_header"`
	Timeout       string          `yaml:"timeout"`
	Report        string          `yaml:"report"`
	ReportKey     string          `yaml:"report_key"`
	Resume        bool            `yaml:"resume"`
	SkipSizeCheck bool            `yaml:"skip_size_check"`
	Progress      bool            `yaml:"progress"`
	Retry         yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   *int   `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
	Policy     string `yaml:"policy"`
	Jitter     bool   `yaml:"jitter"`
}

// LoadFromFile loads configuration from a YAML file on top of Default().
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.URL != "" {
		cfg.URL = yc.URL
	}
	if yc.Object != "" {
		cfg.Object = yc.Object
	}
	if yc.File != "" {
		cfg.File = yc.File
	}
	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	if yc.RangeHeader != "" {
		cfg.RangeHeader = yc.RangeHeader
	}
	if yc.Report != "" {
		cfg.Report = yc.Report
	}
	if yc.ReportKey != "" {
		cfg.ReportKey = yc.ReportKey
	}
	cfg.Resume = yc.Resume
	cfg.SkipSizeCheck = yc.SkipSizeCheck
	cfg.Progress = yc.Progress

	sizes := []struct {
		name string
		raw  string
		dst  *int64
	}{
		{"size", yc.Size, &cfg.Size},
		{"block_size", yc.BlockSize, &cfg.BlockSize},
		{"start", yc.Start, &cfg.Start},
		{"end", yc.End, &cfg.End},
	}
	for _, s := range sizes {
		if s.raw == "" {
			continue
		}
		n, err := progress.ParseBytes(s.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", s.name, err)
		}
		*s.dst = n
	}

	if yc.Timeout != "" {
		d, err := time.ParseDuration(yc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}

	// attempts: 0 is meaningful (no retries), so presence matters
	if yc.Retry.Attempts != nil {
		cfg.Retry.Attempts = *yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}
	if yc.Retry.Policy != "" {
		cfg.Retry.Policy = yc.Retry.Policy
	}
	cfg.Retry.Jitter = yc.Retry.Jitter

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the RANGECHECK_ prefix.
func (c *Config) LoadFromEnv() error {
	strs := []struct {
		key string
		dst *string
	}{
		{"RANGECHECK_URL", &c.URL},
		{"RANGECHECK_OBJECT", &c.Object},
		{"RANGECHECK_FILE", &c.File},
		{"RANGECHECK_RANGE_HEADER", &c.RangeHeader},
		{"RANGECHECK_REPORT", &c.Report},
		{"RANGECHECK_REPORT_KEY", &c.ReportKey},
		{"RANGECHECK_RETRY_POLICY", &c.Retry.Policy},
	}
	for _, s := range strs {
		if v := os.Getenv(s.key); v != "" {
			*s.dst = v
		}
	}

	sizes := []struct {
		key string
		dst *int64
	}{
		{"RANGECHECK_SIZE", &c.Size},
		{"RANGECHECK_BLOCK_SIZE", &c.BlockSize},
		{"RANGECHECK_START", &c.Start},
		{"RANGECHECK_END", &c.End},
	}
	for _, s := range sizes {
		if v := os.Getenv(s.key); v != "" {
			n, err := progress.ParseBytes(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", s.key, err)
			}
			*s.dst = n
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"RANGECHECK_WORKERS", &c.Workers},
		{"RANGECHECK_RETRY_ATTEMPTS", &c.Retry.Attempts},
	}
	for _, s := range ints {
		if v := os.Getenv(s.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", s.key, err)
			}
			*s.dst = n
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"RANGECHECK_TIMEOUT", &c.Timeout},
		{"RANGECHECK_RETRY_BACKOFF", &c.Retry.Backoff},
		{"RANGECHECK_RETRY_MAX_BACKOFF", &c.Retry.MaxBackoff},
	}
	for _, s := range durations {
		if v := os.Getenv(s.key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", s.key, err)
			}
			*s.dst = d
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"RANGECHECK_RESUME", &c.Resume},
		{"RANGECHECK_SKIP_SIZE_CHECK", &c.SkipSizeCheck},
		{"RANGECHECK_PROGRESS", &c.Progress},
		{"RANGECHECK_RETRY_JITTER", &c.Retry.Jitter},
	}
	for _, s := range bools {
		if v := os.Getenv(s.key); v != "" {
			*s.dst = v == "true" || v == "1"
		}
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("config: url is required")
	}
	if c.File == "" {
		return errors.New("config: file is required")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.BlockSize <= 0 {
		return errors.New("config: block_size must be positive")
	}
	if c.Size < 0 || c.Start < 0 || c.End < 0 {
		return errors.New("config: size, start and end must not be negative")
	}
	if c.End != 0 && c.End <= c.Start {
		return errors.New("config: end must be greater than start")
	}
	if c.Retry.Attempts < 0 {
		return errors.New("config: retry.attempts must not be negative")
	}
	if c.RangeHeader != rchttp.HeaderRange && c.RangeHeader != rchttp.HeaderMSRange {
		return fmt.Errorf("config: range_header must be %q or %q", rchttp.HeaderRange, rchttp.HeaderMSRange)
	}
	if _, err := retry.ParseKind(c.Retry.Policy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.URL != "" {
		c.URL = override.URL
	}
	if override.Object != "" {
		c.Object = override.Object
	}
	if override.File != "" {
		c.File = override.File
	}
	if override.Size != 0 {
		c.Size = override.Size
	}
	if override.BlockSize != 0 {
		c.BlockSize = override.BlockSize
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.Start != 0 {
		c.Start = override.Start
	}
	if override.End != 0 {
		c.End = override.End
	}
	if override.RangeHeader != "" {
		c.RangeHeader = override.RangeHeader
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.Report != "" {
		c.Report = override.Report
	}
	if override.ReportKey != "" {
		c.ReportKey = override.ReportKey
	}
	if override.Resume {
		c.Resume = override.Resume
	}
	if override.SkipSizeCheck {
		c.SkipSizeCheck = override.SkipSizeCheck
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	if override.Retry.Policy != "" {
		c.Retry.Policy = override.Retry.Policy
	}
	if override.Retry.Jitter {
		c.Retry.Jitter = override.Retry.Jitter
	}
	return c
}

// RetryPolicy converts the retry section into a retry.Policy. Call Validate
// first.
func (c *Config) RetryPolicy() retry.Policy {
	kind, _ := retry.ParseKind(c.Retry.Policy)
	return retry.Policy{
		Attempts:   c.Retry.Attempts,
		Backoff:    c.Retry.Backoff,
		MaxBackoff: c.Retry.MaxBackoff,
		Kind:       kind,
		Jitter:     c.Retry.Jitter,
	}
}

// HTTPOptions returns client options for the configured remote.
func (c *Config) HTTPOptions() rchttp.Options {
	opts := rchttp.DefaultOptions()
	opts.MaxIdleConnsPerHost = c.Workers * 2
	opts.Timeout = c.Timeout
	opts.Retry = c.RetryPolicy()
	opts.RangeHeader = c.RangeHeader
	return opts
}
