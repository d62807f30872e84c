package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docpull/docpull/pkg/logging"
	"github.com/docpull/docpull/pkg/queue"
)

// Config is the resolved CLI configuration. Precedence: flags over
// environment (DOCPULL_*) over config file over defaults.
type Config struct {
	SourceURL  string
	UserAgent  string
	DestDir    string
	StateDSN   string
	StateKey   string
	LowerBound string
	UpperBound string

	MaxConcurrent     int
	DelayBetween      time.Duration
	ThrottlePerMinute int
	MaxRetries        int
	RetryDelay        time.Duration
	RetryFailed       bool

	Adaptive    bool
	MetricsAddr string
	LogLevel    string
	LogPretty   bool
}

// defaultConfig returns the built-in defaults. Queue pacing defaults
// come from the queue package so the CLI and library agree.
func defaultConfig() Config {
	q := queue.DefaultConfig()
	return Config{
		UserAgent:         "docpull/0.1.0 (ops@docpull.dev)",
		DestDir:           "documents",
		StateDSN:          "docpull.db",
		StateKey:          "collection:default",
		MaxConcurrent:     q.MaxConcurrent,
		DelayBetween:      q.DelayBetween,
		ThrottlePerMinute: q.ThrottlePerMinute,
		MaxRetries:        q.MaxRetries,
		RetryDelay:        q.RetryDelay,
		RetryFailed:       true,
		Adaptive:          true,
		LogLevel:          string(logging.LevelInfo),
	}
}

// yamlConfig is used for YAML unmarshaling: durations come in as
// strings, and fields whose zero value is meaningful use pointers so
// an omitted field keeps its default.
type yamlConfig struct {
	SourceURL  string `yaml:"source_url"`
	UserAgent  string `yaml:"user_agent"`
	DestDir    string `yaml:"dest_dir"`
	StateDSN   string `yaml:"state_dsn"`
	StateKey   string `yaml:"state_key"`
	LowerBound string `yaml:"lower_bound"`
	UpperBound string `yaml:"upper_bound"`

	MaxConcurrent     int    `yaml:"max_concurrent"`
	DelayBetween      string `yaml:"delay_between"`
	ThrottlePerMinute int    `yaml:"throttle_per_minute"`
	MaxRetries        *int   `yaml:"max_retries"`
	RetryDelay        string `yaml:"retry_delay"`
	RetryFailed       *bool  `yaml:"retry_failed"`

	Adaptive    *bool  `yaml:"adaptive"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogPretty   *bool  `yaml:"log_pretty"`
}

// loadConfig loads configuration from a YAML file, merged over the
// defaults.
func loadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := defaultConfig()

	if yc.SourceURL != "" {
		cfg.SourceURL = yc.SourceURL
	}
	if yc.UserAgent != "" {
		cfg.UserAgent = yc.UserAgent
	}
	if yc.DestDir != "" {
		cfg.DestDir = yc.DestDir
	}
	if yc.StateDSN != "" {
		cfg.StateDSN = yc.StateDSN
	}
	if yc.StateKey != "" {
		cfg.StateKey = yc.StateKey
	}
	if yc.LowerBound != "" {
		cfg.LowerBound = yc.LowerBound
	}
	if yc.UpperBound != "" {
		cfg.UpperBound = yc.UpperBound
	}
	if yc.MaxConcurrent != 0 {
		cfg.MaxConcurrent = yc.MaxConcurrent
	}
	if yc.DelayBetween != "" {
		d, err := time.ParseDuration(yc.DelayBetween)
		if err != nil {
			return Config{}, fmt.Errorf("parse delay_between: %w", err)
		}
		cfg.DelayBetween = d
	}
	if yc.ThrottlePerMinute != 0 {
		cfg.ThrottlePerMinute = yc.ThrottlePerMinute
	}
	if yc.MaxRetries != nil {
		cfg.MaxRetries = *yc.MaxRetries
	}
	if yc.RetryDelay != "" {
		d, err := time.ParseDuration(yc.RetryDelay)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry_delay: %w", err)
		}
		cfg.RetryDelay = d
	}
	if yc.RetryFailed != nil {
		cfg.RetryFailed = *yc.RetryFailed
	}
	if yc.Adaptive != nil {
		cfg.Adaptive = *yc.Adaptive
	}
	if yc.MetricsAddr != "" {
		cfg.MetricsAddr = yc.MetricsAddr
	}
	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}
	if yc.LogPretty != nil {
		cfg.LogPretty = *yc.LogPretty
	}

	return cfg, nil
}

// applyEnv overrides configuration from DOCPULL_* environment variables.
func applyEnv(cfg *Config) {
	cfg.SourceURL = getEnv("DOCPULL_SOURCE_URL", cfg.SourceURL)
	cfg.UserAgent = getEnv("DOCPULL_USER_AGENT", cfg.UserAgent)
	cfg.DestDir = getEnv("DOCPULL_DEST_DIR", cfg.DestDir)
	cfg.StateDSN = getEnv("DOCPULL_STATE_DSN", cfg.StateDSN)
	cfg.StateKey = getEnv("DOCPULL_STATE_KEY", cfg.StateKey)
	cfg.LowerBound = getEnv("DOCPULL_LOWER_BOUND", cfg.LowerBound)
	cfg.UpperBound = getEnv("DOCPULL_UPPER_BOUND", cfg.UpperBound)
	cfg.MaxConcurrent = getEnvInt("DOCPULL_MAX_CONCURRENT", cfg.MaxConcurrent)
	cfg.DelayBetween = getEnvDuration("DOCPULL_DELAY_BETWEEN", cfg.DelayBetween)
	cfg.ThrottlePerMinute = getEnvInt("DOCPULL_THROTTLE_PER_MINUTE", cfg.ThrottlePerMinute)
	cfg.MaxRetries = getEnvInt("DOCPULL_MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryDelay = getEnvDuration("DOCPULL_RETRY_DELAY", cfg.RetryDelay)
	cfg.RetryFailed = getEnvBool("DOCPULL_RETRY_FAILED", cfg.RetryFailed)
	cfg.Adaptive = getEnvBool("DOCPULL_ADAPTIVE", cfg.Adaptive)
	cfg.MetricsAddr = getEnv("DOCPULL_METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = getEnv("DOCPULL_LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = getEnvBool("DOCPULL_LOG_PRETTY", cfg.LogPretty)
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
