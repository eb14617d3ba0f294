package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrSecretNotFound is returned when a secret is not set.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore resolves secrets by key.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
}

// EnvironmentSecretStore reads secrets from environment variables. KEY_FILE
// pointing at a file (Docker and Kubernetes secret mounts) takes precedence
// over KEY itself.
type EnvironmentSecretStore struct {
	prefix string
}

// NewEnvironmentSecretStore creates a store reading unprefixed variable names.
func NewEnvironmentSecretStore() *EnvironmentSecretStore {
	return &EnvironmentSecretStore{}
}

// NewPrefixedSecretStore creates a store that prepends prefix to every key.
func NewPrefixedSecretStore(prefix string) *EnvironmentSecretStore {
	return &EnvironmentSecretStore{prefix: prefix}
}

func (s *EnvironmentSecretStore) Get(_ context.Context, key string) (string, error) {
	name := s.prefix + key
	if path := os.Getenv(name + "_FILE"); path != "" {
		b, err := os.ReadFile(path) // #nosec G304 - operator supplied secret mount
		if err != nil {
			return "", fmt.Errorf("read secret %s: %w", name, err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
}

// GetWithDefault returns the secret or def when it is missing or unreadable.
func (s *EnvironmentSecretStore) GetWithDefault(ctx context.Context, key, def string) string {
	v, err := s.Get(ctx, key)
	if err != nil {
		return def
	}
	return v
}

// LoadSecrets fills empty secret fields of cfg from store. Missing secrets are
// not an error; unreadable ones are.
func LoadSecrets(cfg *Config, store SecretStore) error {
	ctx := context.Background()
	targets := []struct {
		key string
		dst *string
	}{
		{"AGRISCORE_AUTH_JWT_SECRET", &cfg.Auth.JWTSecret},
		{"AGRISCORE_SQL_DSN", &cfg.Storage.SQL.DSN},
		{"AGRISCORE_REDIS_PASSWORD", &cfg.Storage.Redis.Password},
		{"AGRISCORE_WEBHOOK_SECRET", &cfg.Webhooks.Secret},
	}
	for _, t := range targets {
		if *t.dst != "" {
			continue
		}
		v, err := store.Get(ctx, t.key)
		if errors.Is(err, ErrSecretNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		*t.dst = v
	}
	return nil
}
