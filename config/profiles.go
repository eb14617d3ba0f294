package config

import (
	"fmt"
	"strings"
)

// LoadProfile returns the defaults for a named deployment profile. Profiles only
// pick sensible starting values; env vars and files still override them.
func LoadProfile(name string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Profile = strings.ToLower(strings.TrimSpace(name))

	switch Environment(cfg.Profile) {
	case EnvDevelopment:
		cfg.Environment = EnvDevelopment
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	case EnvTesting:
		cfg.Environment = EnvTesting
		cfg.Logging.Level = "warn"
		cfg.Storage.Adapter = "memory"
		cfg.Scoring.DispatchMode = "sync"
		cfg.Metrics.Enabled = false
	case EnvStaging:
		cfg.Environment = EnvStaging
		cfg.Storage.Adapter = "redis"
		cfg.Security.EnableRateLimit = true
	case EnvProduction:
		cfg.Environment = EnvProduction
		cfg.Storage.Adapter = "sql"
		cfg.Server.CORSOrigins = nil
		cfg.Security.EnableRateLimit = true
		cfg.Logging.Level = "info"
		cfg.Logging.Format = "json"
	default:
		return nil, fmt.Errorf("unknown profile %q", name)
	}
	return cfg, nil
}
