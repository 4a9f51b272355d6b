// Package config loads the service configuration from environment
// variables. Everything has a development-friendly default except the
// secrets, which must be provided explicitly.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// OAuthProvider holds the credentials for one external provider.
// A provider with no client id is simply disabled; its routes return
// a validation error instead of redirecting.
type OAuthProvider struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// Enabled reports whether the provider has credentials configured.
func (p OAuthProvider) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// Config is the full service configuration.
type Config struct {
	Port    int    `env:"PORT" envDefault:"8080"`
	DBPath  string `env:"DB_PATH" envDefault:"data/identity.db"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// JWTSecret signs session tokens. No default on purpose: a guessable
	// secret lets anyone forge sessions.
	JWTSecret string `env:"JWT_SECRET"`

	GitHub  OAuthProvider `envPrefix:"GITHUB_"`
	Google  OAuthProvider `envPrefix:"GOOGLE_"`
	Twitter OAuthProvider `envPrefix:"TWITTER_"`
}

// Load parses the configuration from the process environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("config: JWT_SECRET is required")
	}
	return &cfg, nil
}

// CallbackURL builds the OAuth redirect URL for a provider.
func (c *Config) CallbackURL(provider string) string {
	return fmt.Sprintf("%s/auth/%s/callback", c.BaseURL, provider)
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
