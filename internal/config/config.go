// Package config loads run configuration: defaults, then an optional YAML
// file, then environment overrides. The API key only ever comes from the
// environment, never from a file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Model is the gateway model identifier used for both enrichment and
	// query translation.
	Model   string
	APIKey  string
	BaseURL string

	BatchSize      int
	Workers        int
	MaxRetries     int
	RequestTimeout time.Duration
	RateLimitRPS   float64

	DBPath     string
	Table      string
	TextColumn string
	RowCap     int
}

func Default() Config {
	return Config{
		Model:          "gemini-2.5-flash-lite",
		BatchSize:      10,
		Workers:        8,
		MaxRetries:     3,
		RequestTimeout: 30 * time.Second,
		RateLimitRPS:   0,
		DBPath:         "data/processed/reviews.db",
		Table:          "reviews",
		TextColumn:     "text",
		RowCap:         200,
	}
}

// fileConfig is the YAML shape. Durations are strings ("30s").
type fileConfig struct {
	Model          string   `yaml:"model"`
	BaseURL        string   `yaml:"base_url"`
	BatchSize      *int     `yaml:"batch_size"`
	Workers        *int     `yaml:"workers"`
	MaxRetries     *int     `yaml:"max_retries"`
	RequestTimeout string   `yaml:"request_timeout"`
	RateLimitRPS   *float64 `yaml:"rate_limit_rps"`
	DBPath         string   `yaml:"db_path"`
	Table          string   `yaml:"table"`
	TextColumn     string   `yaml:"text_column"`
	RowCap         *int     `yaml:"row_cap"`
}

// Load builds the effective configuration. path may be empty (no file).
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
		if err := applyFile(&cfg, fc); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, fc fileConfig) error {
	if s := strings.TrimSpace(fc.Model); s != "" {
		cfg.Model = s
	}
	if s := strings.TrimSpace(fc.BaseURL); s != "" {
		cfg.BaseURL = s
	}
	if fc.BatchSize != nil {
		cfg.BatchSize = *fc.BatchSize
	}
	if fc.Workers != nil {
		cfg.Workers = *fc.Workers
	}
	if fc.MaxRetries != nil {
		cfg.MaxRetries = *fc.MaxRetries
	}
	if s := strings.TrimSpace(fc.RequestTimeout); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid request_timeout %q: %w", s, err)
		}
		cfg.RequestTimeout = d
	}
	if fc.RateLimitRPS != nil {
		cfg.RateLimitRPS = *fc.RateLimitRPS
	}
	if s := strings.TrimSpace(fc.DBPath); s != "" {
		cfg.DBPath = s
	}
	if s := strings.TrimSpace(fc.Table); s != "" {
		cfg.Table = s
	}
	if s := strings.TrimSpace(fc.TextColumn); s != "" {
		cfg.TextColumn = s
	}
	if fc.RowCap != nil {
		cfg.RowCap = *fc.RowCap
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.APIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if s := strings.TrimSpace(os.Getenv("GEMINI_MODEL")); s != "" {
		cfg.Model = s
	}
	if s := strings.TrimSpace(os.Getenv("GEMINI_BASE_URL")); s != "" {
		cfg.BaseURL = s
	}

	var err error
	if cfg.BatchSize, err = envInt("BATCH_SIZE", cfg.BatchSize); err != nil {
		return err
	}
	if cfg.Workers, err = envInt("WORKERS", cfg.Workers); err != nil {
		return err
	}
	if cfg.MaxRetries, err = envInt("MAX_RETRIES", cfg.MaxRetries); err != nil {
		return err
	}
	if cfg.RequestTimeout, err = envDuration("REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return err
	}
	if cfg.RateLimitRPS, err = envFloat("RATE_LIMIT_RPS", cfg.RateLimitRPS); err != nil {
		return err
	}
	if s := strings.TrimSpace(os.Getenv("DB_PATH")); s != "" {
		cfg.DBPath = s
	}
	return nil
}

func envInt(varName string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envFloat(varName string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(varName string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
