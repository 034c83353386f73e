// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	sdkHttp "github.com/hashicorp/oidc-rp/sdk/http"
)

// DefaultProviderTimeout bounds every request made to the provider when a
// Config doesn't specify a ProviderTimeout.
const DefaultProviderTimeout = 10 * time.Second

// ClientSecret is an oauth client secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// Config represents the configuration for a typical 3-legged OIDC
// authorization code flow.
type Config struct {
	// ClientId is the relying party id
	ClientId string

	// ClientSecret is the relying party secret
	ClientSecret ClientSecret

	// Scopes is a list of additional oidc scopes to request of the provider.
	// The required "openid" scope is always requested.
	Scopes []string

	// DiscoveryURL is the full URL of the provider's discovery document, for
	// example https://keycloak.example.com/realms/demo/.well-known/openid-configuration
	DiscoveryURL string

	// RedirectUrl is the URL the provider redirects to after authentication
	RedirectUrl string

	// ProviderCA is an optional CA cert to use when sending requests to the provider.
	ProviderCA string

	// ProviderTimeout bounds every request sent to the provider.
	ProviderTimeout time.Duration
}

// NewConfig composes a new config for a provider.
// Supported options:
//
//	WithProviderCA
//	WithProviderTimeout
//	WithScopes
func NewConfig(discoveryURL string, clientId string, clientSecret ClientSecret, redirectUrl string, opt ...Option) (*Config, error) {
	const op = "oidc.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		DiscoveryURL:    discoveryURL,
		ClientId:        clientId,
		ClientSecret:    clientSecret,
		RedirectUrl:     redirectUrl,
		Scopes:          opts.withScopes,
		ProviderCA:      opts.withProviderCA,
		ProviderTimeout: opts.withProviderTimeout,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the provider configuration. It verifies the discovery and redirect
// URLs are well formed http(s) URLs, but it doesn't verify the discovery URL
// is reachable.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if c.ClientId == "" {
		return fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter)
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("%s: client secret is empty: %w", op, ErrInvalidParameter)
	}
	if c.DiscoveryURL == "" {
		return fmt.Errorf("%s: discovery URL is empty: %w", op, ErrInvalidParameter)
	}
	if c.RedirectUrl == "" {
		return fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	for _, f := range []struct{ name, raw string }{
		{"discovery URL", c.DiscoveryURL},
		{"redirect URL", c.RedirectUrl},
	} {
		u, err := url.Parse(f.raw)
		if err != nil {
			return fmt.Errorf("%s: %s %q is invalid: %w", op, f.name, f.raw, ErrInvalidParameter)
		}
		if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return fmt.Errorf("%s: %s %q is not an absolute http or https URL: %w", op, f.name, f.raw, ErrInvalidParameter)
		}
	}
	if c.ProviderTimeout < 0 {
		return fmt.Errorf("%s: provider timeout is negative: %w", op, ErrInvalidParameter)
	}
	return nil
}

// HttpClient is a helper function that creates a new http client for the
// provider configured
func (c *Config) HttpClient() (*http.Client, error) {
	const op = "Config.HttpClient"
	client, err := sdkHttp.NewClient(c.ProviderCA, c.ProviderTimeout)
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

// HttpClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key used
// by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
func HttpClientContext(ctx context.Context, client *http.Client) context.Context {
	// simple to implement as a wrapper for the coreos package
	return oidc.ClientContext(ctx, client)
}

// configOptions is the set of available options
type configOptions struct {
	withScopes          []string
	withProviderCA      string
	withProviderTimeout time.Duration
}

// configDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func configDefaults() configOptions {
	return configOptions{
		withProviderTimeout: DefaultProviderTimeout,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed
// in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithScopes provides an optional list of scopes for the provider's config.
// Duplicates and the implicit "openid" scope are removed.
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			seen := make(map[string]bool, len(scopes))
			o.withScopes = make([]string, 0, len(scopes))
			for _, s := range scopes {
				s = strings.TrimSpace(s)
				if s == "" || s == oidc.ScopeOpenID || seen[s] {
					continue
				}
				seen[s] = true
				o.withScopes = append(o.withScopes, s)
			}
		}
	}
}

// WithProviderCA provides an optional CA cert for the provider's config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithProviderTimeout provides an optional timeout for requests sent to the
// provider. Zero disables the client side timeout.
func WithProviderTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderTimeout = d
		}
	}
}
