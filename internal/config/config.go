package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the prefix for environment overrides, e.g.
// FESTMATCH_API_BASE_URL -> api.base_url
const DefaultEnvPrefix = "FESTMATCH_"

type Config interface {
	EnvConfig
	APIConfig
	ClientConfig
	StorageConfig
}

type mainConfig struct {
	EnvVars
	API
	Client
	Storage
}

type loader struct {
	envPrefix string
	filePath  string
	overrides map[string]any
}

// Option configures how the configuration is loaded.
type Option func(*loader)

// WithConfigFile loads a YAML file between the defaults and the environment.
func WithConfigFile(path string) Option {
	return func(l *loader) {
		l.filePath = path
	}
}

// WithEnvPrefix overrides DefaultEnvPrefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *loader) {
		l.envPrefix = prefix
	}
}

// WithValue sets a key after every other source has been applied.
func WithValue(key string, value any) Option {
	return func(l *loader) {
		l.overrides[key] = value
	}
}

// New loads configuration with priority: override > env > file > default.
func New(options ...Option) (Config, error) {
	l := &loader{
		envPrefix: DefaultEnvPrefix,
		overrides: make(map[string]any),
	}
	for _, opt := range options {
		opt(l)
	}

	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("config default %s: %w", key, err)
		}
	}

	if l.filePath != "" {
		if err := k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", l.filePath, err)
		}
	}

	prefix := l.envPrefix
	envProvider := env.Provider(prefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, prefix))
		// Only the first underscore separates the section from the key.
		return strings.Replace(s, "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	for key, value := range l.overrides {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("config override %s: %w", key, err)
		}
	}

	return mainConfig{
		EnvVars: EnvVars{k: k},
		API:     API{k: k},
		Client:  Client{k: k},
		Storage: Storage{k: k},
	}, nil
}

var defaults = map[string]any{
	"app.name":                "Festmatch",
	"app.env":                 "DEV",
	"log.level":               "info",
	"api.base_url":            "http://localhost:8080",
	"api.refresh_path":        "/auth/refresh",
	"api.login_paths":         "/auth/kakao/login,/auth/login",
	"api.bridge_path":         "/auth/firebase-token",
	"client.expiry_threshold": "90s",
	"client.refresh_timeout":  "10s",
	"client.request_timeout":  "30s",
	"client.rate_limit":       0.0,
	"client.rate_burst":       1,
	"storage.dir":             "./data/session",
	"storage.encryption_key":  "",
}
