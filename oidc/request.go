// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/text/language"
)

// DefaultRequestExpirySkew defines a default time skew when checking a
// Request's expiration.
const DefaultRequestExpirySkew = 1 * time.Second

// Request represents one in-flight OIDC authentication attempt for a user.
// It holds what's needed to complete the attempt when the provider redirects
// back: State identifies the attempt (preventing CSRF), Nonce binds the
// resulting id_token to it (preventing replay) and CodeVerifier is the PKCE
// secret for the code exchange.
//
// Fields are exported so a Request can be persisted by a request store. A
// Request is consumed exactly once.
type Request struct {
	// State is the opaque value sent as the "state" parameter. It cannot equal
	// Nonce.
	State string `json:"state"`

	// Nonce is sent as the "nonce" parameter and must come back as the
	// id_token's "nonce" claim.
	Nonce string `json:"nonce"`

	// CodeVerifier is the PKCE code verifier; its S256 challenge is sent
	// with the authentication request.
	CodeVerifier string `json:"code_verifier"`

	// RedirectURL is where the provider sends the user back to.
	RedirectURL string `json:"redirect_url"`

	// Expiration is when the attempt can no longer be completed.
	Expiration time.Time `json:"expiration"`

	// UILocales are the end user's preferred languages for the provider's
	// login pages, sent as the "ui_locales" parameter.
	UILocales []language.Tag `json:"ui_locales,omitempty"`
}

// NewRequest creates a new Request with a random State, Nonce and PKCE code
// verifier, which expires expireIn from now.
//
// Supported options: WithNow, WithUILocales
func NewRequest(expireIn time.Duration, redirectURL string, opt ...Option) (*Request, error) {
	const op = "oidc.NewRequest"
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	if redirectURL == "" {
		return nil, fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	opts := getReqOpts(opt...)
	state, err := NewID(WithPrefix("st"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's state: %w", op, err)
	}
	nonce, err := NewID(WithPrefix("n"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's nonce: %w", op, err)
	}
	return &Request{
		State:        state,
		Nonce:        nonce,
		CodeVerifier: oauth2.GenerateVerifier(),
		RedirectURL:  redirectURL,
		Expiration:   opts.withNowFunc().Add(expireIn),
		UILocales:    opts.withUILocales,
	}, nil
}

// UILocalesParam returns the request's UILocales as a space separated
// "ui_locales" value, or "" when there are none.
func (r *Request) UILocalesParam() string {
	locales := make([]string, 0, len(r.UILocales))
	for _, t := range r.UILocales {
		locales = append(locales, t.String())
	}
	return strings.Join(locales, " ")
}

// IsExpired returns true if the request has expired. Supports the
// WithExpirySkew and WithNow options; without WithExpirySkew the
// DefaultRequestExpirySkew is used.
func (r *Request) IsExpired(opt ...Option) bool {
	opts := getReqOpts(opt...)
	return r.Expiration.Before(opts.withNowFunc().Add(opts.withExpirySkew))
}

// Validate returns an error when the request can't be used to start or
// complete an authentication attempt.
func (r *Request) Validate() error {
	const op = "Request.Validate"
	switch {
	case r == nil:
		return fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	case r.State == "":
		return fmt.Errorf("%s: state is empty: %w", op, ErrInvalidParameter)
	case r.Nonce == "":
		return fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	case r.State == r.Nonce:
		return fmt.Errorf("%s: state and nonce cannot be equal: %w", op, ErrInvalidParameter)
	case r.CodeVerifier == "":
		return fmt.Errorf("%s: code verifier is empty: %w", op, ErrInvalidParameter)
	case r.RedirectURL == "":
		return fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	return nil
}

// reqOptions is the set of available options for Request functions
type reqOptions struct {
	withNowFunc    func() time.Time
	withExpirySkew time.Duration
	withUILocales  []language.Tag
}

// reqDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func reqDefaults() reqOptions {
	return reqOptions{
		withNowFunc:    time.Now,
		withExpirySkew: DefaultRequestExpirySkew,
	}
}

// getReqOpts gets the request defaults and applies the opt overrides passed in
func getReqOpts(opt ...Option) reqOptions {
	opts := reqDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithUILocales provides an optional list of preferred languages for the
// provider's login pages for: NewRequest
func WithUILocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			o.withUILocales = locales
		}
	}
}
