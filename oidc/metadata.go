// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/hashicorp/oidc-rp/jwt"
)

// ProviderMetadata is the subset of a provider's discovery document the
// relying party depends on.
type ProviderMetadata struct {
	Issuer      string
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	JWKSURL     string
	Algorithms  []string

	provider *oidc.Provider
}

// Endpoint returns the provider's oauth2 endpoints.
func (m *ProviderMetadata) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{AuthURL: m.AuthURL, TokenURL: m.TokenURL}
}

// MetadataSource supplies provider metadata and the key set that verifies
// the provider's tokens.
type MetadataSource interface {
	Metadata(ctx context.Context) (*ProviderMetadata, error)
	SigningKeys(ctx context.Context) (jwt.KeySet, error)
}

// MetadataCache fetches a provider's discovery document on first use and
// keeps it, with the provider's remote key set, for the life of the process.
// It is safe for concurrent use; concurrent first callers share a single
// fetch, and failed fetches are not remembered.
type MetadataCache struct {
	discoveryURL string
	client       *http.Client
	logger       hclog.Logger
	fetches      *prometheus.CounterVec

	group singleflight.Group

	mu      sync.RWMutex
	current *discovered

	// backgroundCtx carries the http client for background key set fetches
	// and is cancelled by Done.
	backgroundCtx       context.Context
	backgroundCtxCancel context.CancelFunc
}

type discovered struct {
	metadata *ProviderMetadata
	keys     jwt.KeySet
}

var _ MetadataSource = (*MetadataCache)(nil)

// NewMetadataCache creates a MetadataCache for the discovery document at
// discoveryURL (the full .well-known/openid-configuration URL). No request is
// made until the metadata is first needed.
//
// See MetadataCache.Done() which must be called to release resources.
//
// Supported options: WithHTTPClient, WithLogger, WithRegisterer
func NewMetadataCache(discoveryURL string, opt ...Option) (*MetadataCache, error) {
	const op = "oidc.NewMetadataCache"
	if discoveryURL == "" {
		return nil, fmt.Errorf("%s: discovery URL is empty: %w", op, ErrInvalidParameter)
	}
	opts := getMetadataOpts(opt...)
	fetches, err := metadataFetchCounter(opts.withRegisterer)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MetadataCache{
		discoveryURL:        discoveryURL,
		client:              opts.withHTTPClient,
		logger:              opts.withLogger,
		fetches:             fetches,
		backgroundCtx:       HttpClientContext(ctx, opts.withHTTPClient),
		backgroundCtxCancel: cancel,
	}, nil
}

// Done with the cache's background resources and must be called for every
// MetadataCache created.
func (c *MetadataCache) Done() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backgroundCtxCancel != nil {
		c.backgroundCtxCancel()
		c.backgroundCtxCancel = nil
	}
}

// Metadata returns the provider metadata, fetching it on first use. Errors
// wrap ErrProviderUnavailable.
func (c *MetadataCache) Metadata(ctx context.Context) (*ProviderMetadata, error) {
	const op = "MetadataCache.Metadata"
	d, err := c.get(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return d.metadata, nil
}

// SigningKeys returns the provider's key set, fetching the metadata on first
// use. Errors wrap ErrProviderUnavailable.
func (c *MetadataCache) SigningKeys(ctx context.Context) (jwt.KeySet, error) {
	const op = "MetadataCache.SigningKeys"
	d, err := c.get(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return d.keys, nil
}

// Refresh fetches the discovery document again and replaces the cached
// metadata and key set on success. On failure the previous values are kept.
func (c *MetadataCache) Refresh(ctx context.Context) error {
	const op = "MetadataCache.Refresh"
	if _, err := c.get(ctx, true); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *MetadataCache) cached() *discovered {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *MetadataCache) get(ctx context.Context, force bool) (*discovered, error) {
	if !force {
		if d := c.cached(); d != nil {
			return d, nil
		}
	}
	key := "metadata"
	if force {
		key = "refresh"
	}
	// The fetch is shared, so it runs detached from the caller that started
	// it. Every caller still gives up when its own ctx ends.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		// another caller may have finished the fetch while we waited
		if d := c.cached(); d != nil && !force {
			return d, nil
		}
		fetchCtx := context.WithoutCancel(ctx)
		if c.client.Timeout == 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(fetchCtx, DefaultProviderTimeout)
			defer cancel()
		}
		d, err := c.fetch(fetchCtx)
		if err != nil {
			c.fetches.WithLabelValues("failure").Inc()
			c.logger.Warn("provider metadata fetch failed", "discovery_url", c.discoveryURL, "error", err)
			return nil, err
		}
		c.fetches.WithLabelValues("success").Inc()
		c.logger.Debug("provider metadata fetched", "issuer", d.metadata.Issuer, "jwks_uri", d.metadata.JWKSURL)

		c.mu.Lock()
		c.current = d
		c.mu.Unlock()
		return d, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("gave up waiting for provider metadata: %w: %w", ErrProviderUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*discovered), nil
	}
}

func (c *MetadataCache) fetch(ctx context.Context) (*discovered, error) {
	const op = "MetadataCache.fetch"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create discovery request: %w: %w", op, ErrProviderUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: discovery request failed: %w: %w", op, ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read discovery response: %w: %w", op, ErrProviderUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: discovery returned %s: %w", op, resp.Status, ErrProviderUnavailable)
	}

	var pc oidc.ProviderConfig
	if err := json.Unmarshal(body, &pc); err != nil {
		return nil, fmt.Errorf("%s: malformed discovery document: %w: %w", op, ErrProviderUnavailable, err)
	}
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"issuer", pc.IssuerURL},
		{"authorization_endpoint", pc.AuthURL},
		{"token_endpoint", pc.TokenURL},
		{"jwks_uri", pc.JWKSURL},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s: discovery document is missing %v: %w", op, missing, ErrProviderUnavailable)
	}

	keys, err := jwt.NewJSONWebKeySet(c.backgroundCtx, pc.JWKSURL, "")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create key set: %w: %w", op, ErrProviderUnavailable, err)
	}

	return &discovered{
		metadata: &ProviderMetadata{
			Issuer:      pc.IssuerURL,
			AuthURL:     pc.AuthURL,
			TokenURL:    pc.TokenURL,
			UserInfoURL: pc.UserInfoURL,
			JWKSURL:     pc.JWKSURL,
			Algorithms:  pc.Algorithms,
			provider:    pc.NewProvider(c.backgroundCtx),
		},
		keys: keys,
	}, nil
}

// metadataOptions is the set of available options for MetadataCache
type metadataOptions struct {
	withHTTPClient *http.Client
	withLogger     hclog.Logger
	withRegisterer prometheus.Registerer
}

func metadataDefaults() metadataOptions {
	return metadataOptions{
		withHTTPClient: http.DefaultClient,
		withLogger:     hclog.NewNullLogger(),
	}
}

func getMetadataOpts(opt ...Option) metadataOptions {
	opts := metadataDefaults()
	ApplyOpts(&opts, opt...)
	if opts.withHTTPClient == nil {
		opts.withHTTPClient = http.DefaultClient
	}
	return opts
}

func metadataFetchCounter(r prometheus.Registerer) (*prometheus.CounterVec, error) {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oidc_rp_metadata_fetch_total",
		Help: "Provider discovery document fetches by result.",
	}, []string{"result"})
	if r == nil {
		return cv, nil
	}
	if err := r.Register(cv); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("unable to register metadata fetch counter: %w", err)
	}
	return cv, nil
}
