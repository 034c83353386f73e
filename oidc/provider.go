// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/oauth2"
)

// Provider provides integration with a provider using the typical
// 3-legged OIDC authorization code flow.
type Provider struct {
	config   *Config
	client   *http.Client
	metadata *MetadataCache
	verifier *Verifier
	logger   hclog.Logger
	now      func() time.Time

	mu   sync.Mutex
	done bool
}

// NewProvider creates and initializes a Provider for the OIDC authorization
// code flow. No request is made to the provider until its metadata is first
// needed.
//
// See Provider.Done() which must be called to release provider resources.
//
// Supported options: WithNow, WithLogger, WithRegisterer
func NewProvider(c *Config, opt ...Option) (*Provider, error) {
	const op = "NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}
	opts := getProviderOpts(opt...)

	client, err := c.HttpClient()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	cache, err := NewMetadataCache(
		c.DiscoveryURL,
		WithHTTPClient(client),
		WithLogger(opts.withLogger.Named("metadata")),
		WithRegisterer(opts.withRegisterer),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create metadata cache: %w", op, err)
	}
	verifier, err := NewVerifier(cache, c.ClientId, WithNow(opts.withNowFunc))
	if err != nil {
		cache.Done() // release the cache's background resources
		return nil, fmt.Errorf("%s: unable to create verifier: %w", op, err)
	}
	return &Provider{
		config:   c,
		client:   client,
		metadata: cache,
		verifier: verifier,
		logger:   opts.withLogger,
		now:      opts.withNowFunc,
	}, nil
}

// Done with the provider's background resources and must be called for every
// Provider created
func (p *Provider) Done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.done {
		p.metadata.Done()
		p.done = true
	}
}

// Verifier returns the provider's id_token verifier.
func (p *Provider) Verifier() *Verifier { return p.verifier }

// RedirectURL returns the configured redirect URL of the callback.
func (p *Provider) RedirectURL() string { return p.config.RedirectUrl }

// MetadataCache returns the cache holding the provider's discovery metadata.
func (p *Provider) MetadataCache() *MetadataCache { return p.metadata }

// AuthURL will generate a URL the caller can use to kick off an OIDC
// authorization code flow with the provider. The URL carries the request's
// state, nonce and S256 PKCE challenge.
//
// See NewRequest() to create a Request with a valid State, Nonce and PKCE
// code verifier.
func (p *Provider) AuthURL(ctx context.Context, req *Request) (string, error) {
	const op = "Provider.AuthURL"
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if req.IsExpired(WithNow(p.now)) {
		return "", fmt.Errorf("%s: request is expired: %w", op, ErrExpiredRequest)
	}
	md, err := p.metadata.Metadata(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	oauth2Config := p.oauth2Config(md, req.RedirectURL)
	authCodeOpts := []oauth2.AuthCodeOption{
		oidc.Nonce(req.Nonce),
		oauth2.S256ChallengeOption(req.CodeVerifier),
	}
	if locales := req.UILocalesParam(); locales != "" {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("ui_locales", locales))
	}
	return oauth2Config.AuthCodeURL(req.State, authCodeOpts...), nil
}

// Exchange will request a token from the oidc token endpoint, using the
// authorizationCode and authorizationState it received in an earlier
// successful oidc authentication response.
//
// It will also validate the authorizationState it receives against the
// existing Request for the user's oidc authentication flow.
//
// On success, the Token returned includes the verified id_token and, when the
// provider publishes a userinfo endpoint, the userinfo claims for the same
// subject. Errors wrap:
//
//	ErrProviderUnavailable  the provider could not be reached
//	ErrLoginFailed          the provider rejected the code (invalid_grant, ...)
//	ErrInvalidToken         the id_token failed verification
//	ErrInvalidNonce         the id_token was issued for another request
//	ErrProtocol             no id_token, no subject, or a userinfo subject mismatch
func (p *Provider) Exchange(ctx context.Context, req *Request, authorizationState string, authorizationCode string) (*Token, error) {
	const op = "Provider.Exchange"
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if req.State != authorizationState {
		return nil, fmt.Errorf("%s: authentication request state and authorization state are not equal: %w", op, ErrResponseStateInvalid)
	}
	if req.IsExpired(WithNow(p.now)) {
		return nil, fmt.Errorf("%s: authentication request is expired: %w", op, ErrExpiredRequest)
	}
	if authorizationCode == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}
	md, err := p.metadata.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	oauth2Config := p.oauth2Config(md, req.RedirectURL)
	oauth2Token, err := oauth2Config.Exchange(HttpClientContext(ctx, p.client), authorizationCode, oauth2.VerifierOption(req.CodeVerifier))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w", op, classifyProviderErr(err, ErrLoginFailed))
	}

	rawIdToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok || rawIdToken == "" {
		return nil, fmt.Errorf("%s: id_token is missing from auth code exchange: %w: %w", op, ErrProtocol, ErrMissingIdToken)
	}
	identity, err := p.VerifyIdToken(ctx, IdToken(rawIdToken), req.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%s: id_token failed verification: %w", op, err)
	}
	if identity.Subject == "" {
		return nil, fmt.Errorf("%s: id_token has no subject: %w", op, ErrProtocol)
	}

	t := &Token{
		IdToken:     IdToken(rawIdToken),
		Identity:    identity,
		AccessToken: AccessToken(oauth2Token.AccessToken),
		Expiry:      oauth2Token.Expiry,
	}
	if md.UserInfoURL != "" {
		var claims map[string]interface{}
		if err := p.UserInfo(ctx, oauth2.StaticTokenSource(oauth2Token), &claims); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		sub, _ := claims["sub"].(string)
		if sub != identity.Subject {
			return nil, fmt.Errorf("%s: userinfo subject %q does not match id_token subject: %w", op, sub, ErrProtocol)
		}
		t.UserInfo = claims
	}
	p.logger.Debug("authorization code exchanged", "subject", identity.Subject, "userinfo", t.UserInfo != nil)
	return t, nil
}

// UserInfo gets the UserInfo claims from the provider using the token produced
// by the tokenSource.
func (p *Provider) UserInfo(ctx context.Context, tokenSource oauth2.TokenSource, claims interface{}) error {
	const op = "Provider.UserInfo"
	if tokenSource == nil {
		return fmt.Errorf("%s: token source is nil: %w", op, ErrInvalidParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	md, err := p.metadata.Metadata(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if md.UserInfoURL == "" {
		return fmt.Errorf("%s: provider has no userinfo endpoint: %w", op, ErrUserInfoFailed)
	}
	userinfo, err := md.provider.UserInfo(HttpClientContext(ctx, p.client), tokenSource)
	if err != nil {
		return fmt.Errorf("%s: provider UserInfo request failed: %w: %w", op, ErrUserInfoFailed, classifyUserInfoErr(err))
	}
	if err := userinfo.Claims(claims); err != nil {
		return fmt.Errorf("%s: failed to get UserInfo claims: %w: %w", op, ErrProtocol, err)
	}
	return nil
}

// VerifyIdToken will verify the inbound IdToken with the provider's Verifier
// and check it carries the expected nonce.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (p *Provider) VerifyIdToken(ctx context.Context, t IdToken, nonce string) (*IdentityToken, error) {
	const op = "Provider.VerifyIdToken"
	if nonce == "" {
		return nil, fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	}
	identity, err := p.verifier.Verify(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := VerifyNonce(identity, nonce); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return identity, nil
}

func (p *Provider) oauth2Config(md *ProviderMetadata, redirectURL string) *oauth2.Config {
	// Add the "openid" scope, which is a required scope for oidc flows
	scopes := append([]string{oidc.ScopeOpenID}, p.config.Scopes...)
	return &oauth2.Config{
		ClientID:     p.config.ClientId,
		ClientSecret: string(p.config.ClientSecret),
		RedirectURL:  redirectURL,
		Endpoint:     md.Endpoint(),
		Scopes:       scopes,
	}
}

// classifyProviderErr maps an error from a provider round trip. Transport
// failures and provider side 5xx responses become ErrProviderUnavailable and
// an OAuth error response becomes rejected. Anything else is a protocol
// violation.
func classifyProviderErr(err error, rejected error) error {
	var urlErr *url.Error
	var retrieveErr *oauth2.RetrieveError
	switch {
	case errors.As(err, &retrieveErr):
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
		}
		return fmt.Errorf("%w: %w", rejected, err)
	case errors.As(err, &urlErr), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
}

// classifyUserInfoErr maps an error from go-oidc's UserInfo, which reports an
// unsuccessful response as a plain "<status>: <body>" error.
func classifyUserInfoErr(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		status, _, _ := strings.Cut(err.Error(), " ")
		if code, convErr := strconv.Atoi(status); convErr == nil && code >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
		}
	}
	return classifyProviderErr(err, ErrProtocol)
}

// providerOptions is the set of available options for Provider
type providerOptions struct {
	withNowFunc    func() time.Time
	withLogger     hclog.Logger
	withRegisterer prometheus.Registerer
}

func providerDefaults() providerOptions {
	return providerOptions{
		withNowFunc: time.Now,
		withLogger:  hclog.NewNullLogger(),
	}
}

func getProviderOpts(opt ...Option) providerOptions {
	opts := providerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
