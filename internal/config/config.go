// Package config provides centralized configuration management for the Messari collector.
// Configuration is layered: built-in defaults, then an optional JSON or YAML file,
// then a .env file, then process environment variables. The merged result is
// validated before any component sees it.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names
const (
	EnvAPIKey       = "MESSARI_API_KEY"
	EnvBaseURL      = "MESSARI_BASE_URL"
	EnvTimeout      = "MESSARI_TIMEOUT"
	EnvRateLimit    = "MESSARI_RATE_LIMIT"
	EnvInterval     = "MESSARI_INTERVAL"
	EnvMaxAttempts  = "MESSARI_RETRY_ATTEMPTS"
	EnvLogLevel     = "MESSARI_LOG_LEVEL"
	EnvLogFormat    = "MESSARI_LOG_FORMAT"
	EnvLogOutput    = "MESSARI_LOG_OUTPUT"
	EnvLogFile      = "MESSARI_LOG_FILE"
	EnvOutputFormat = "MESSARI_OUTPUT_FORMAT"
	EnvPrecision    = "MESSARI_PRECISION"
)

// DefaultEnvFile is read when present in the working directory.
const DefaultEnvFile = ".env"

// AppConfig represents the complete application configuration
type AppConfig struct {
	AppName string `json:"app_name" yaml:"app_name"`
	Version string `json:"version" yaml:"version"`

	API     APIConfig     `json:"api" yaml:"api"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Output  OutputConfig  `json:"output" yaml:"output"`
}

// APIConfig configures the Messari API client
type APIConfig struct {
	BaseURL      string            `json:"base_url" yaml:"base_url"`           // API root, no trailing path
	APIKey       string            `json:"api_key" yaml:"api_key"`             // Sent as x-messari-api-key
	Timeout      string            `json:"timeout" yaml:"timeout"`             // HTTP request timeout
	RateLimit    int               `json:"rate_limit" yaml:"rate_limit"`       // Requests per minute, 0 disables pacing
	Interval     string            `json:"interval" yaml:"interval"`           // Time-series granularity
	Column       string            `json:"column" yaml:"column"`               // Time-series value column
	MetricFields string            `json:"metric_fields" yaml:"metric_fields"` // Optional fields filter for metrics
	RetryPolicy  RetryPolicyConfig `json:"retry_policy" yaml:"retry_policy"`
}

// RetryPolicyConfig configures retry behavior
type RetryPolicyConfig struct {
	MaxAttempts     int    `json:"max_attempts" yaml:"max_attempts"`         // 1 means no retry
	InitialDelay    string `json:"initial_delay" yaml:"initial_delay"`       // Initial delay between retries
	MaxDelay        string `json:"max_delay" yaml:"max_delay"`               // Maximum delay between retries
	BackoffStrategy string `json:"backoff_strategy" yaml:"backoff_strategy"` // fixed, exponential, linear
	Jitter          bool   `json:"jitter" yaml:"jitter"`
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level         string            `json:"level" yaml:"level"`             // debug, info, warn, error
	Format        string            `json:"format" yaml:"format"`           // json, text
	Output        string            `json:"output" yaml:"output"`           // stdout, stderr, file
	FilePath      string            `json:"file_path" yaml:"file_path"`     // Log file path
	MaxSize       int               `json:"max_size" yaml:"max_size"`       // Maximum log file size in MB
	MaxBackups    int               `json:"max_backups" yaml:"max_backups"` // Maximum log file backups
	MaxAge        int               `json:"max_age" yaml:"max_age"`         // Maximum log file age in days
	Compress      bool              `json:"compress" yaml:"compress"`
	ContextFields map[string]string `json:"context_fields" yaml:"context_fields"`
}

// OutputConfig configures how tables are rendered
type OutputConfig struct {
	Format    string `json:"format" yaml:"format"`       // table, csv, json
	Precision int    `json:"precision" yaml:"precision"` // Decimal places for rendered cells
}

// ConfigManager handles configuration loading and validation
type ConfigManager struct {
	config     *AppConfig
	configPath string
	envFile    string
	logger     *slog.Logger
	lookup     func(string) (string, bool)
}

// NewConfigManager creates a new configuration manager. An empty configPath
// means defaults plus environment only.
func NewConfigManager(configPath string, logger *slog.Logger) *ConfigManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &ConfigManager{
		configPath: configPath,
		envFile:    DefaultEnvFile,
		logger:     logger,
		lookup:     os.LookupEnv,
	}
}

// SetEnvFile overrides the .env location. An empty path disables it.
func (cm *ConfigManager) SetEnvFile(path string) {
	cm.envFile = path
}

// LoadConfig loads configuration from multiple sources with priority order:
// 1. Environment variables (highest priority)
// 2. .env file
// 3. Configuration file
// 4. Default values (lowest priority)
func (cm *ConfigManager) LoadConfig(ctx context.Context) (*AppConfig, error) {
	config := DefaultConfig()

	if cm.configPath != "" {
		if err := cm.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	dotenv, err := cm.readEnvFile()
	if err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	cm.loadFromEnv(config, dotenv)

	if err := cm.validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cm.config = config
	cm.logger.Debug("configuration loaded",
		"config_path", cm.configPath,
		"base_url", config.API.BaseURL,
		"api_key_set", config.API.APIKey != "",
		"log_level", config.Logging.Level)

	return config, nil
}

// loadFromFile loads configuration from a JSON or YAML file, chosen by extension
func (cm *ConfigManager) loadFromFile(config *AppConfig) error {
	data, err := os.ReadFile(cm.configPath)
	if errors.Is(err, os.ErrNotExist) {
		cm.logger.Debug("config file does not exist, using defaults", "path", cm.configPath)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cm.configPath, err)
	}

	switch strings.ToLower(filepath.Ext(cm.configPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", cm.configPath, err)
	}

	cm.logger.Debug("loaded configuration from file", "path", cm.configPath)
	return nil
}

// readEnvFile parses the .env file without touching the process environment
func (cm *ConfigManager) readEnvFile() (map[string]string, error) {
	if cm.envFile == "" {
		return nil, nil
	}
	if _, err := os.Stat(cm.envFile); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return godotenv.Read(cm.envFile)
}

// loadFromEnv applies environment overrides; the process environment wins over .env
func (cm *ConfigManager) loadFromEnv(config *AppConfig, dotenv map[string]string) {
	get := func(key string) string {
		if val, ok := cm.lookup(key); ok && val != "" {
			return val
		}
		return dotenv[key]
	}

	if val := get(EnvAPIKey); val != "" {
		config.API.APIKey = val
	}
	if val := get(EnvBaseURL); val != "" {
		config.API.BaseURL = strings.TrimRight(val, "/")
	}
	if val := get(EnvTimeout); val != "" {
		config.API.Timeout = val
	}
	if val := get(EnvRateLimit); val != "" {
		if rateLimit, err := strconv.Atoi(val); err == nil {
			config.API.RateLimit = rateLimit
		}
	}
	if val := get(EnvInterval); val != "" {
		config.API.Interval = val
	}
	if val := get(EnvMaxAttempts); val != "" {
		if attempts, err := strconv.Atoi(val); err == nil {
			config.API.RetryPolicy.MaxAttempts = attempts
		}
	}

	if val := get(EnvLogLevel); val != "" {
		config.Logging.Level = strings.ToLower(val)
	}
	if val := get(EnvLogFormat); val != "" {
		config.Logging.Format = strings.ToLower(val)
	}
	if val := get(EnvLogOutput); val != "" {
		config.Logging.Output = strings.ToLower(val)
	}
	if val := get(EnvLogFile); val != "" {
		config.Logging.FilePath = val
	}

	if val := get(EnvOutputFormat); val != "" {
		config.Output.Format = strings.ToLower(val)
	}
	if val := get(EnvPrecision); val != "" {
		if precision, err := strconv.Atoi(val); err == nil {
			config.Output.Precision = precision
		}
	}
}

// validateConfig validates the configuration for consistency and required fields
func (cm *ConfigManager) validateConfig(config *AppConfig) error {
	var errs []string

	if config.API.BaseURL == "" {
		errs = append(errs, "api.base_url is required")
	} else if u, err := url.Parse(config.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "api.base_url must be an absolute URL")
	}
	if d, err := time.ParseDuration(config.API.Timeout); err != nil || d <= 0 {
		errs = append(errs, "api.timeout must be a positive duration")
	}
	if config.API.RateLimit < 0 {
		errs = append(errs, "api.rate_limit must not be negative")
	}
	if config.API.Interval == "" {
		errs = append(errs, "api.interval is required")
	}
	validColumns := map[string]bool{"open": true, "high": true, "low": true, "close": true, "volume": true}
	if !validColumns[config.API.Column] {
		errs = append(errs, "api.column must be one of: open, high, low, close, volume")
	}

	policy := config.API.RetryPolicy
	if policy.MaxAttempts < 1 {
		errs = append(errs, "api.retry_policy.max_attempts must be at least 1")
	}
	if policy.MaxAttempts > 1 {
		if _, err := time.ParseDuration(policy.InitialDelay); err != nil {
			errs = append(errs, fmt.Sprintf("api.retry_policy.initial_delay is not a valid duration: %v", err))
		}
		if _, err := time.ParseDuration(policy.MaxDelay); err != nil {
			errs = append(errs, fmt.Sprintf("api.retry_policy.max_delay is not a valid duration: %v", err))
		}
		validStrategies := map[string]bool{"fixed": true, "exponential": true, "linear": true}
		if !validStrategies[policy.BackoffStrategy] {
			errs = append(errs, "api.retry_policy.backoff_strategy must be one of: fixed, exponential, linear")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[config.Logging.Level] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[config.Logging.Format] {
		errs = append(errs, "logging.format must be one of: json, text")
	}
	validLogOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validLogOutputs[config.Logging.Output] {
		errs = append(errs, "logging.output must be one of: stdout, stderr, file")
	}
	if config.Logging.Output == "file" && config.Logging.FilePath == "" {
		errs = append(errs, "logging.file_path is required when logging.output is file")
	}

	validOutputFormats := map[string]bool{"table": true, "csv": true, "json": true}
	if !validOutputFormats[config.Output.Format] {
		errs = append(errs, "output.format must be one of: table, csv, json")
	}
	if config.Output.Precision < 0 || config.Output.Precision > 18 {
		errs = append(errs, "output.precision must be between 0 and 18")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation errors:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *AppConfig {
	return cm.config
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		AppName: "messari-collector",
		Version: "1.0.0",
		API: APIConfig{
			BaseURL:   "https://data.messari.io",
			Timeout:   "30s",
			RateLimit: 0,
			Interval:  "1d",
			Column:    "close",
			RetryPolicy: RetryPolicyConfig{
				MaxAttempts:     1,
				InitialDelay:    "1s",
				MaxDelay:        "30s",
				BackoffStrategy: "exponential",
				Jitter:          true,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSize:    100, // 100MB
			MaxBackups: 5,
			MaxAge:     30, // 30 days
			Compress:   true,
			ContextFields: map[string]string{
				"service": "messari-collector",
			},
		},
		Output: OutputConfig{
			Format:    "table",
			Precision: 8,
		},
	}
}

// TimeoutDuration returns the parsed request timeout
func (c APIConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// String returns a string representation of the configuration (excluding sensitive data)
func (c *AppConfig) String() string {
	sanitized := *c
	if sanitized.API.APIKey != "" {
		sanitized.API.APIKey = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(&sanitized, "", "  ")
	return string(data)
}
