package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // zone database for minimal container images

	"gopkg.in/yaml.v3"

	"agriscore/adapters/redis"
	"agriscore/adapters/sqlx"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	// Environment and profile settings
	Environment Environment `json:"environment" yaml:"environment" env:"AGRISCORE_ENV"`
	Profile     string      `json:"profile" yaml:"profile" env:"AGRISCORE_PROFILE"`

	Server   ServerConfig   `json:"server" yaml:"server"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Scoring  ScoringConfig  `json:"scoring" yaml:"scoring"`
	Auth     AuthConfig     `json:"auth" yaml:"auth"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
	Security SecurityConfig `json:"security" yaml:"security"`
	Webhooks WebhookConfig  `json:"webhooks" yaml:"webhooks"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" yaml:"address" env:"AGRISCORE_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" yaml:"path_prefix" env:"AGRISCORE_SERVER_PATH_PREFIX"`
	CORSOrigins       []string      `json:"cors_origins,omitempty" yaml:"cors_origins" env:"AGRISCORE_SERVER_CORS_ORIGINS"`
	ReadTimeout       time.Duration `json:"read_timeout" yaml:"read_timeout" env:"AGRISCORE_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" yaml:"write_timeout" env:"AGRISCORE_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" yaml:"idle_timeout" env:"AGRISCORE_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" yaml:"read_header_timeout" env:"AGRISCORE_SERVER_READ_HEADER_TIMEOUT"`
	RequestTimeout    time.Duration `json:"request_timeout" yaml:"request_timeout" env:"AGRISCORE_SERVER_REQUEST_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"AGRISCORE_SERVER_SHUTDOWN_TIMEOUT"`
}

// StorageConfig holds storage adapter configuration
type StorageConfig struct {
	Adapter string       `json:"adapter" yaml:"adapter" env:"AGRISCORE_STORAGE_ADAPTER"`
	Redis   redis.Config `json:"redis,omitempty" yaml:"redis"`
	SQL     sqlx.Config  `json:"sql,omitempty" yaml:"sql"`
	File    FileConfig   `json:"file,omitempty" yaml:"file"`
}

// FileConfig holds JSON file storage configuration
type FileConfig struct {
	Path string `json:"path" yaml:"path" env:"AGRISCORE_STORAGE_FILE_PATH"`
}

// ScoringConfig tunes the scoring engine.
type ScoringConfig struct {
	// Timezone is the IANA zone that decides calendar days for streaks and periods.
	Timezone               string `json:"timezone" yaml:"timezone" env:"AGRISCORE_SCORING_TIMEZONE"`
	ActivityLogLimit       int    `json:"activity_log_limit" yaml:"activity_log_limit" env:"AGRISCORE_SCORING_ACTIVITY_LOG_LIMIT"`
	LeaderboardDefaultSize int    `json:"leaderboard_default_size" yaml:"leaderboard_default_size" env:"AGRISCORE_SCORING_LEADERBOARD_DEFAULT"`
	LeaderboardMaxSize     int    `json:"leaderboard_max_size" yaml:"leaderboard_max_size" env:"AGRISCORE_SCORING_LEADERBOARD_MAX"`
	// DispatchMode is "sync" or "async".
	DispatchMode string `json:"dispatch_mode" yaml:"dispatch_mode" env:"AGRISCORE_SCORING_DISPATCH_MODE"`
	QueueSize    int    `json:"queue_size" yaml:"queue_size" env:"AGRISCORE_SCORING_QUEUE_SIZE"`
	Workers      int    `json:"workers" yaml:"workers" env:"AGRISCORE_SCORING_WORKERS"`
}

// Location resolves Timezone.
func (s ScoringConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// AuthConfig configures caller identity.
type AuthConfig struct {
	// JWTSecret enables HS256 bearer tokens; without it callers are identified by X-User-ID.
	JWTSecret string `json:"jwt_secret,omitempty" yaml:"jwt_secret" env:"AGRISCORE_AUTH_JWT_SECRET"`
	JWTIssuer string `json:"jwt_issuer,omitempty" yaml:"jwt_issuer" env:"AGRISCORE_AUTH_JWT_ISSUER"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" yaml:"level" env:"AGRISCORE_LOG_LEVEL"`
	Format     string            `json:"format" yaml:"format" env:"AGRISCORE_LOG_FORMAT"`
	Output     string            `json:"output" yaml:"output" env:"AGRISCORE_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes" env:"AGRISCORE_LOG_ATTRIBUTES"`
}

// MetricsConfig controls the in-process engagement analytics.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" env:"AGRISCORE_METRICS_ENABLED"`
	// TopActivities caps the activity breakdown in the engagement report.
	TopActivities int `json:"top_activities" yaml:"top_activities" env:"AGRISCORE_METRICS_TOP_ACTIVITIES"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" yaml:"enable_rate_limit" env:"AGRISCORE_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit"`
	APIKeys         []string        `json:"api_keys,omitempty" yaml:"api_keys" env:"AGRISCORE_SECURITY_API_KEYS"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute" env:"AGRISCORE_SECURITY_RATE_LIMIT_RPM"`
	BurstSize         int `json:"burst_size" yaml:"burst_size" env:"AGRISCORE_SECURITY_RATE_LIMIT_BURST"`
}

// WebhookConfig lists endpoints that receive scoring events.
type WebhookConfig struct {
	Endpoints []string `json:"endpoints,omitempty" yaml:"endpoints" env:"AGRISCORE_WEBHOOK_ENDPOINTS"`
	// EventTypes restricts delivery; empty means badge, level and achievement events.
	EventTypes []string      `json:"event_types,omitempty" yaml:"event_types" env:"AGRISCORE_WEBHOOK_EVENT_TYPES"`
	Secret     string        `json:"secret,omitempty" yaml:"secret" env:"AGRISCORE_WEBHOOK_SECRET"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout" env:"AGRISCORE_WEBHOOK_TIMEOUT"`
}

// Load builds the configuration from the profile named by AGRISCORE_PROFILE
// (default "development"), then applies environment overrides and validates.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	if name := os.Getenv("AGRISCORE_PROFILE"); name != "" {
		p, err := LoadProfile(name)
		if err != nil {
			return nil, err
		}
		cfg = p
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := LoadSecrets(cfg, NewEnvironmentSecretStore()); err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	switch strings.ToLower(filepath.Ext(cleanPath)) {
	case ".json", ".yaml", ".yml":
	default:
		return errors.New("config file must have .json, .yaml or .yml extension")
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}

	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file on top of the
// defaults. Environment variables override file values.
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	file, err := os.Open(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := decodeFile(path, data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := LoadSecrets(cfg, NewEnvironmentSecretStore()); err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func decodeFile(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	default:
		return json.Unmarshal(data, cfg)
	}
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigins:       []string{"*"},
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			RequestTimeout:    5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: "memory",
			Redis:   redis.DefaultConfig(),
			SQL:     sqlx.DefaultConfig(sqlx.DriverPostgres),
			File: FileConfig{
				Path: "./data/agriscore.json",
			},
		},
		Scoring: ScoringConfig{
			Timezone:               "UTC",
			ActivityLogLimit:       50,
			LeaderboardDefaultSize: 10,
			LeaderboardMaxSize:     100,
			DispatchMode:           "async",
			QueueSize:              1024,
			Workers:                4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			TopActivities: 5,
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 120,
				BurstSize:         20,
			},
			APIKeys: []string{},
		},
		Webhooks: WebhookConfig{
			Timeout: 2 * time.Second,
		},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}

	sections := []struct {
		name string
		fn   func() error
	}{
		{"server", c.Server.Validate},
		{"storage", c.Storage.Validate},
		{"scoring", c.Scoring.Validate},
		{"logging", c.Logging.Validate},
		{"metrics", c.Metrics.Validate},
		{"security", c.Security.Validate},
		{"webhooks", c.Webhooks.Validate},
	}
	for _, s := range sections {
		if err := s.fn(); err != nil {
			errs = append(errs, fmt.Sprintf("%s config: %v", s.name, err))
		}
	}

	// header-based identity is only safe behind a gateway that holds an API key
	if c.Environment == EnvProduction && c.Auth.JWTSecret == "" && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "auth config: production requires auth.jwt_secret or security.api_keys")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c

	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = "[REDACTED]"
	}
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = "[REDACTED]"
	}
	if cfg.Auth.JWTSecret != "" {
		cfg.Auth.JWTSecret = "[REDACTED]"
	}
	if cfg.Webhooks.Secret != "" {
		cfg.Webhooks.Secret = "[REDACTED]"
	}
	if len(cfg.Security.APIKeys) > 0 {
		cfg.Security.APIKeys = []string{"[REDACTED]"}
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
