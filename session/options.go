// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// DefaultKeyPrefix is the default prefix of every redis key written by this
// package.
const DefaultKeyPrefix = "oidc-rp:"

type storeOptions struct {
	withKeyPrefix string
	withTTL       time.Duration
	withClock     clockwork.Clock
}

func storeDefaults() storeOptions {
	return storeOptions{
		withKeyPrefix: DefaultKeyPrefix,
		withClock:     clockwork.NewRealClock(),
	}
}

func getStoreOpts(opt ...Option) storeOptions {
	opts := storeDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithKeyPrefix provides an optional redis key prefix for: RedisStore,
// RedisRequestStore
func WithKeyPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok {
			o.withKeyPrefix = prefix
		}
	}
}

// WithTTL provides an optional storage TTL for sessions kept by RedisStore.
// It bounds storage only; an expired id_token is rejected by verification
// well before. Zero means no TTL.
func WithTTL(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok {
			o.withTTL = d
		}
	}
}

// WithClock provides an optional clock for: MemoryRequestStore,
// RedisRequestStore
func WithClock(c clockwork.Clock) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok && c != nil {
			o.withClock = c
		}
	}
}

// DefaultCookieName is the default name of the session cookie.
const DefaultCookieName = "oidc_rp_session"

type cookieOptions struct {
	withName     string
	withPath     string
	withSecure   bool
	withMaxAge   int
	withSameSite http.SameSite
}

func cookieDefaults() cookieOptions {
	return cookieOptions{
		withName:     DefaultCookieName,
		withPath:     "/",
		withSecure:   true,
		withSameSite: http.SameSiteLaxMode,
	}
}

func getCookieOpts(opt ...Option) cookieOptions {
	opts := cookieDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithCookieName provides an optional cookie name for: CookieCodec
func WithCookieName(name string) Option {
	return func(o interface{}) {
		if o, ok := o.(*cookieOptions); ok && name != "" {
			o.withName = name
		}
	}
}

// WithCookiePath provides an optional cookie path for: CookieCodec
func WithCookiePath(path string) Option {
	return func(o interface{}) {
		if o, ok := o.(*cookieOptions); ok && path != "" {
			o.withPath = path
		}
	}
}

// WithCookieSecure sets the cookie's Secure attribute for: CookieCodec. It
// defaults to true.
func WithCookieSecure(secure bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*cookieOptions); ok {
			o.withSecure = secure
		}
	}
}

// WithCookieMaxAge provides an optional cookie lifetime for: CookieCodec.
// Zero means a browser session cookie.
func WithCookieMaxAge(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*cookieOptions); ok && d >= 0 {
			o.withMaxAge = int(d / time.Second)
		}
	}
}
