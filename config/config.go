// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package config loads the relying party configuration from defaults, a YAML
// file and OIDC_RP_ environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/hashicorp/oidc-rp/oidc"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// MinSessionSecretLen is the minimum length in bytes of session.secret.
const MinSessionSecretLen = 32

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config is the relying party's configuration.
type Config struct {
	OIDC    OIDCConfig    `koanf:"oidc"`
	Session SessionConfig `koanf:"session"`
	Users   UsersConfig   `koanf:"users"`
	Redis   RedisConfig   `koanf:"redis"`
	Policy  PolicyConfig  `koanf:"policy"`
	Server  ServerConfig  `koanf:"server"`
	Log     LogConfig     `koanf:"log"`
}

// OIDCConfig configures the provider.
type OIDCConfig struct {
	// DiscoveryURL is the full URL of the provider's
	// .well-known/openid-configuration document.
	DiscoveryURL    string            `koanf:"discovery_url"`
	ClientID        string            `koanf:"client_id"`
	ClientSecret    oidc.ClientSecret `koanf:"client_secret"`
	RedirectURL     string            `koanf:"redirect_url"`
	Scopes          []string          `koanf:"scopes"`
	ProviderCA      string            `koanf:"provider_ca"`
	ProviderTimeout time.Duration     `koanf:"provider_timeout"`
}

type SessionConfig struct {
	Secret       string        `koanf:"secret"`
	CookieName   string        `koanf:"cookie_name"`
	CookieSecure bool          `koanf:"cookie_secure"`
	TTL          time.Duration `koanf:"ttl"`
	Backend      string        `koanf:"backend"`
}

type UsersConfig struct {
	Backend string `koanf:"backend"`
	DSN     string `koanf:"dsn"`
}

type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// PolicyConfig configures the checks run after a successful login and by
// the external-auth endpoint.
type PolicyConfig struct {
	DenyUsernames   []string      `koanf:"deny_usernames"`
	ExternalURL     string        `koanf:"external_url"`
	ExternalTimeout time.Duration `koanf:"external_timeout"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
}

type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

// Defaults returns the configuration applied before any file or environment
// source.
func Defaults() *Config {
	return &Config{
		OIDC: OIDCConfig{
			Scopes:          []string{"profile", "email"},
			ProviderTimeout: oidc.DefaultProviderTimeout,
		},
		Session: SessionConfig{
			CookieName:   "oidc_rp_session",
			CookieSecure: true,
			TTL:          8 * time.Hour,
			Backend:      BackendMemory,
		},
		Users: UsersConfig{
			Backend: BackendMemory,
		},
		Redis: RedisConfig{
			Addr:      "127.0.0.1:6379",
			KeyPrefix: "oidc-rp:",
		},
		Policy: PolicyConfig{
			ExternalTimeout: 30 * time.Second,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	var result *multierror.Error
	add := func(format string, a ...interface{}) {
		result = multierror.Append(result, fmt.Errorf(format, a...))
	}

	if err := validateURL(c.OIDC.DiscoveryURL); err != nil {
		add("oidc.discovery_url: %w", err)
	}
	if c.OIDC.ClientID == "" {
		add("oidc.client_id is empty")
	}
	if c.OIDC.ClientSecret == "" {
		add("oidc.client_secret is empty")
	}
	if err := validateURL(c.OIDC.RedirectURL); err != nil {
		add("oidc.redirect_url: %w", err)
	}
	if c.OIDC.ProviderTimeout <= 0 {
		add("oidc.provider_timeout must be positive")
	}

	if len(c.Session.Secret) < MinSessionSecretLen {
		add("session.secret must be at least %d bytes", MinSessionSecretLen)
	}
	if c.Session.CookieName == "" {
		add("session.cookie_name is empty")
	}
	if c.Session.TTL < 0 {
		add("session.ttl must not be negative")
	}
	switch c.Session.Backend {
	case BackendMemory, BackendRedis:
	default:
		add("session.backend %q is not one of memory, redis", c.Session.Backend)
	}

	switch c.Users.Backend {
	case BackendMemory, BackendRedis:
	case BackendSQLite, BackendPostgres:
		if c.Users.DSN == "" {
			add("users.dsn is required for the %s backend", c.Users.Backend)
		}
	default:
		add("users.backend %q is not one of memory, redis, sqlite, postgres", c.Users.Backend)
	}

	if c.usesRedis() && c.Redis.Addr == "" {
		add("redis.addr is required when a redis backend is configured")
	}

	if c.Policy.ExternalURL != "" {
		if err := validateURL(c.Policy.ExternalURL); err != nil {
			add("policy.external_url: %w", err)
		}
	}
	if c.Policy.ExternalTimeout <= 0 {
		add("policy.external_timeout must be positive")
	}

	if c.Server.Addr == "" {
		add("server.addr is empty")
	}
	if hclog.LevelFromString(c.Log.Level) == hclog.NoLevel {
		add("log.level %q is not a valid level", c.Log.Level)
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) usesRedis() bool {
	return c.Session.Backend == BackendRedis || c.Users.Backend == BackendRedis
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() hclog.Level {
	return hclog.LevelFromString(c.Log.Level)
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" || (!strings.EqualFold(u.Scheme, "http") && !strings.EqualFold(u.Scheme, "https")) {
		return fmt.Errorf("%q is not an http(s) url", raw)
	}
	return nil
}
